// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver_test

import (
	"time"

	"git.loadgrid.org/loadgrid.git/lib/driver"
	"git.loadgrid.org/loadgrid.git/lib/driver/test"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/prometheus/client_golang/prometheus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&RescheduleSuite{})

type RescheduleSuite struct {
	DriverSuite
}

func (s *RescheduleSuite) failedAgent() loadgrid.Agent {
	s.reg.SetActive("agent-a", false)
	return s.reg.Agents["agent-a"]
}

func (s *RescheduleSuite) TestRescheduleAgent(c *check.C) {
	lb1 := s.addAssignedLB(c, "agent-a")
	lb2 := s.addAssignedLB(c, "agent-a")
	failed := s.failedAgent()

	s.drv.RescheduleAgent(s.ctx, failed)

	c.Check(s.reg.AgentFor(lb1.ID), check.Equals, "agent-b")
	c.Check(s.reg.AgentFor(lb2.ID), check.Equals, "agent-b")

	// For each moved loadbalancer, the new agent hears about it
	// before the failed agent is told to drop it.
	c.Check(s.notifier.Verbs(), check.DeepEquals, []string{
		driver.VerbInstanceAdded, driver.VerbInstanceRemoved,
		driver.VerbInstanceAdded, driver.VerbInstanceRemoved,
	})
	added := s.notifier.CastsFor("host-b")
	c.Assert(added, check.HasLen, 2)
	for _, cast := range added {
		c.Check(cast.Verb, check.Equals, driver.VerbInstanceAdded)
		c.Check(cast.Payload["driver_name"], check.Equals, "haproxy")
	}
	removed := s.notifier.CastsFor("host-a")
	c.Assert(removed, check.HasLen, 2)
	for _, cast := range removed {
		c.Check(cast.Verb, check.Equals, driver.VerbInstanceRemoved)
	}
}

func (s *RescheduleSuite) TestReschedulePinnedStays(c *check.C) {
	lb := loadgrid.LoadBalancer{PinnedAgentID: "agent-a"}
	c.Assert(s.reg.CreateLoadBalancer(s.ctx, &lb), check.IsNil)
	c.Assert(s.reg.AssignLoadBalancer(s.ctx, lb.ID, "agent-a"), check.IsNil)
	failed := s.failedAgent()

	s.drv.RescheduleAgent(s.ctx, failed)

	c.Check(s.reg.AgentFor(lb.ID), check.Equals, "agent-a")
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}

func (s *RescheduleSuite) TestRescheduleMixedBatch(c *check.C) {
	// One loadbalancer on the failed agent cannot move (pinned);
	// that must not stop the other one from being rescheduled.
	pinned := loadgrid.LoadBalancer{PinnedAgentID: "agent-a"}
	c.Assert(s.reg.CreateLoadBalancer(s.ctx, &pinned), check.IsNil)
	c.Assert(s.reg.AssignLoadBalancer(s.ctx, pinned.ID, "agent-a"), check.IsNil)
	movable := s.addAssignedLB(c, "agent-a")
	failed := s.failedAgent()

	s.drv.RescheduleAgent(s.ctx, failed)

	c.Check(s.reg.AgentFor(pinned.ID), check.Equals, "agent-a")
	c.Check(s.reg.AgentFor(movable.ID), check.Equals, "agent-b")

	// Exactly one added/removed pair, for the movable one.
	c.Check(s.notifier.Verbs(), check.DeepEquals, []string{
		driver.VerbInstanceAdded, driver.VerbInstanceRemoved,
	})
	casts := s.notifier.CastsFor("host-b")
	c.Assert(casts, check.HasLen, 1)
	lb, ok := casts[0].Payload["loadbalancer"].(map[string]interface{})
	c.Assert(ok, check.Equals, true)
	c.Check(lb["id"], check.Equals, movable.ID)
}

func (s *RescheduleSuite) TestRescheduleNoEligibleAgent(c *check.C) {
	lb := s.addAssignedLB(c, "agent-a")
	s.reg.SetActive("agent-b", false)
	failed := s.failedAgent()

	s.drv.RescheduleAgent(s.ctx, failed)

	// The loadbalancer is left where it is; a later poll retries
	// once an agent comes back.
	c.Check(s.reg.AgentFor(lb.ID), check.Equals, "agent-a")
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}

func (s *RescheduleSuite) TestRescheduleIdempotent(c *check.C) {
	lb := s.addAssignedLB(c, "agent-a")
	failed := s.failedAgent()

	s.drv.RescheduleAgent(s.ctx, failed)
	c.Check(s.reg.AgentFor(lb.ID), check.Equals, "agent-b")
	c.Assert(s.notifier.Casts(), check.HasLen, 2)

	// Calling again (e.g., a second monitor edge or an operator
	// request) finds everything already placed and sends nothing.
	s.notifier.Reset()
	s.drv.RescheduleAgent(s.ctx, failed)
	c.Check(s.reg.AgentFor(lb.ID), check.Equals, "agent-b")
	c.Check(s.notifier.Casts(), check.HasLen, 0)
}

// TestMonitorTriggersReschedule exercises the full loop: the monitor
// notices a dead agent and the driver moves its loadbalancers.
func (s *RescheduleSuite) TestMonitorTriggersReschedule(c *check.C) {
	s.drv.Close()
	drv, err := driver.New(s.ctx, testCluster(10*time.Millisecond), s.reg, s.notifier, nil, prometheus.NewRegistry())
	c.Assert(err, check.IsNil)
	defer drv.Close()

	lb := s.addAssignedLB(c, "agent-a")
	drv.Start()

	// Wait for the monitor to see agent-a alive.
	for deadline := time.Now().Add(5 * time.Second); ; {
		if active := drv.ActiveAgents(); len(active) == 2 {
			break
		}
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for monitor to mark agents active")
		}
		time.Sleep(time.Millisecond)
	}

	s.reg.SetActive("agent-a", false)

	for deadline := time.Now().Add(5 * time.Second); ; {
		if s.reg.AgentFor(lb.ID) == "agent-b" {
			break
		}
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for reschedule")
		}
		time.Sleep(time.Millisecond)
	}
	var verbs []string
	for deadline := time.Now().Add(5 * time.Second); ; {
		if verbs = s.notifier.Verbs(); len(verbs) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for notifications")
		}
		time.Sleep(time.Millisecond)
	}
	c.Check(verbs[0], check.Equals, driver.VerbInstanceAdded)
	c.Check(verbs[1], check.Equals, driver.VerbInstanceRemoved)
}

// ensure the fakes satisfy the production interfaces
var _ driver.Registry = &test.Registry{}
var _ driver.Notifier = &test.Notifier{}
