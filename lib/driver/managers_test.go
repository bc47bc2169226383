// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver_test

import (
	"git.loadgrid.org/loadgrid.git/lib/driver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&ManagersSuite{})

// ManagersSuite covers the sub-resource operations, which resolve the
// hosting agent through the resource's ancestry (member -> pool ->
// listener -> loadbalancer).
type ManagersSuite struct {
	DriverSuite
	lb       loadgrid.LoadBalancer
	listener loadgrid.Listener
	pool     loadgrid.Pool
}

func (s *ManagersSuite) SetUpTest(c *check.C) {
	s.DriverSuite.SetUpTest(c)
	s.lb = s.addAssignedLB(c, "agent-a")
	s.listener = loadgrid.Listener{LoadBalancerID: s.lb.ID, Protocol: "HTTP", ProtocolPort: 80}
	c.Assert(s.reg.CreateListener(s.ctx, &s.listener), check.IsNil)
	s.pool = loadgrid.Pool{ListenerID: s.listener.ID, LBAlgorithm: "ROUND_ROBIN"}
	c.Assert(s.reg.CreatePool(s.ctx, &s.pool), check.IsNil)
}

func (s *ManagersSuite) TestCreateListener(c *check.C) {
	l := loadgrid.Listener{LoadBalancerID: s.lb.ID, Protocol: "HTTPS", ProtocolPort: 443}
	c.Assert(s.drv.CreateListener(s.ctx, &l), check.IsNil)
	c.Check(l.ID, check.Not(check.Equals), "")

	casts := s.notifier.CastsFor("host-a")
	c.Assert(casts, check.HasLen, 1)
	c.Check(casts[0].Verb, check.Equals, driver.VerbCreateListener)
	c.Check(casts[0].Payload["listener"].(map[string]interface{})["id"], check.Equals, l.ID)
}

func (s *ManagersSuite) TestUpdateListener(c *check.C) {
	upd := s.listener
	upd.ProtocolPort = 8080
	c.Assert(s.drv.UpdateListener(s.ctx, s.listener, upd), check.IsNil)

	stored, err := s.reg.GetListener(s.ctx, s.listener.ID)
	c.Assert(err, check.IsNil)
	c.Check(stored.ProtocolPort, check.Equals, 8080)

	casts := s.notifier.CastsFor("host-a")
	c.Assert(casts, check.HasLen, 1)
	c.Check(casts[0].Verb, check.Equals, driver.VerbUpdateListener)
	c.Check(casts[0].Payload["old_listener"].(map[string]interface{})["protocol_port"], check.Equals, float64(80))
	c.Check(casts[0].Payload["listener"].(map[string]interface{})["protocol_port"], check.Equals, float64(8080))
}

func (s *ManagersSuite) TestDeleteListener(c *check.C) {
	c.Assert(s.drv.DeleteListener(s.ctx, s.listener), check.IsNil)

	_, err := s.reg.GetListener(s.ctx, s.listener.ID)
	c.Check(err, check.Equals, driver.ErrNotFound)

	// Deleting a sub-resource recomputes the parent's provisioning
	// status.
	lb, err := s.reg.GetLoadBalancer(s.ctx, s.lb.ID)
	c.Assert(err, check.IsNil)
	c.Check(lb.ProvisioningStatus, check.Equals, loadgrid.ProvisioningStatusActive)

	casts := s.notifier.CastsFor("host-a")
	c.Assert(casts, check.HasLen, 1)
	c.Check(casts[0].Verb, check.Equals, driver.VerbDeleteListener)
}

func (s *ManagersSuite) TestPoolLifecycle(c *check.C) {
	p := loadgrid.Pool{ListenerID: s.listener.ID, LBAlgorithm: "LEAST_CONNECTIONS"}
	c.Assert(s.drv.CreatePool(s.ctx, &p), check.IsNil)
	upd := p
	upd.LBAlgorithm = "SOURCE_IP"
	c.Assert(s.drv.UpdatePool(s.ctx, p, upd), check.IsNil)
	c.Assert(s.drv.DeletePool(s.ctx, upd), check.IsNil)
	c.Check(s.notifier.Verbs(), check.DeepEquals, []string{
		driver.VerbCreatePool, driver.VerbUpdatePool, driver.VerbDeletePool,
	})
	for _, cast := range s.notifier.Casts() {
		c.Check(cast.Host, check.Equals, "host-a")
	}
}

func (s *ManagersSuite) TestMemberAncestryResolution(c *check.C) {
	m := loadgrid.Member{PoolID: s.pool.ID, Address: "10.0.0.5", ProtocolPort: 8000, Weight: 1}
	c.Assert(s.drv.CreateMember(s.ctx, &m), check.IsNil)

	casts := s.notifier.CastsFor("host-a")
	c.Assert(casts, check.HasLen, 1)
	c.Check(casts[0].Verb, check.Equals, driver.VerbCreateMember)
	c.Check(casts[0].Payload["member"].(map[string]interface{})["address"], check.Equals, "10.0.0.5")
}

func (s *ManagersSuite) TestHealthMonitorLifecycle(c *check.C) {
	hm := loadgrid.HealthMonitor{PoolID: s.pool.ID, Type: "HTTP", Delay: 5, Timeout: 3, MaxRetries: 2}
	c.Assert(s.drv.CreateHealthMonitor(s.ctx, &hm), check.IsNil)
	upd := hm
	upd.Delay = 10
	c.Assert(s.drv.UpdateHealthMonitor(s.ctx, hm, upd), check.IsNil)
	c.Assert(s.drv.DeleteHealthMonitor(s.ctx, upd), check.IsNil)
	c.Check(s.notifier.Verbs(), check.DeepEquals, []string{
		driver.VerbCreateHealthMonitor, driver.VerbUpdateHealthMonitor, driver.VerbDeleteHealthMonitor,
	})
}

func (s *ManagersSuite) TestCreateMemberNoAgent(c *check.C) {
	// A member under a loadbalancer with no hosting agent is
	// persisted, but there is nobody to notify.
	lb := loadgrid.LoadBalancer{}
	c.Assert(s.reg.CreateLoadBalancer(s.ctx, &lb), check.IsNil)
	l := loadgrid.Listener{LoadBalancerID: lb.ID}
	c.Assert(s.reg.CreateListener(s.ctx, &l), check.IsNil)
	p := loadgrid.Pool{ListenerID: l.ID}
	c.Assert(s.reg.CreatePool(s.ctx, &p), check.IsNil)

	m := loadgrid.Member{PoolID: p.ID, Address: "10.0.0.9"}
	err := s.drv.CreateMember(s.ctx, &m)
	c.Check(err, check.FitsTypeOf, driver.NoActiveAgentError{})
	_, getErr := s.reg.GetMember(s.ctx, m.ID)
	c.Check(getErr, check.IsNil)
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}

func (s *ManagersSuite) TestDeleteMemberNoAgent(c *check.C) {
	m := loadgrid.Member{PoolID: s.pool.ID, Address: "10.0.0.7"}
	c.Assert(s.reg.CreateMember(s.ctx, &m), check.IsNil)
	delete(s.reg.Assignments, s.lb.ID)

	err := s.drv.DeleteMember(s.ctx, m)
	c.Check(err, check.FitsTypeOf, driver.NoActiveAgentError{})

	// Local cleanup still happened.
	_, getErr := s.reg.GetMember(s.ctx, m.ID)
	c.Check(getErr, check.Equals, driver.ErrNotFound)
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}

func (s *ManagersSuite) TestUpdateUnknownResource(c *check.C) {
	err := s.drv.UpdateListener(s.ctx, loadgrid.Listener{ID: "nope"}, loadgrid.Listener{ID: "nope"})
	c.Check(err, check.Equals, driver.ErrNotFound)
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}
