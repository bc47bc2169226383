// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&APISuite{})

type APISuite struct {
	DriverSuite
}

func (s *APISuite) serve(c *check.C, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reqBody bytes.Buffer
	if body != nil {
		c.Assert(json.NewEncoder(&reqBody).Encode(body), check.IsNil)
	}
	req := httptest.NewRequest(method, path, &reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.drv.ServeHTTP(resp, req)
	return resp
}

func (s *APISuite) TestAuthRequired(c *check.C) {
	resp := s.serve(c, "GET", "/loadgrid/v1/driver/agents", "", nil)
	c.Check(resp.Code, check.Equals, http.StatusUnauthorized)
	resp = s.serve(c, "GET", "/loadgrid/v1/driver/agents", "wrongtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusForbidden)
}

func (s *APISuite) TestListAgents(c *check.C) {
	resp := s.serve(c, "GET", "/loadgrid/v1/driver/agents", "testtoken", nil)
	c.Assert(resp.Code, check.Equals, http.StatusOK)
	var body struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &body), check.IsNil)
	c.Assert(body.Items, check.HasLen, 2)
	c.Check(body.Items[0].ID, check.Equals, "agent-a")
	c.Check(body.Items[1].ID, check.Equals, "agent-b")
}

func (s *APISuite) TestOwningAgent(c *check.C) {
	lb := s.addAssignedLB(c, "agent-b")
	resp := s.serve(c, "GET", "/loadgrid/v1/driver/loadbalancers/"+lb.ID+"/agent", "testtoken", nil)
	c.Assert(resp.Code, check.Equals, http.StatusOK)
	var agent struct {
		ID string `json:"id"`
	}
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &agent), check.IsNil)
	c.Check(agent.ID, check.Equals, "agent-b")

	resp = s.serve(c, "GET", "/loadgrid/v1/driver/loadbalancers/unassigned/agent", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusNotFound)
}

func (s *APISuite) TestForceReschedule(c *check.C) {
	lb := s.addAssignedLB(c, "agent-a")
	s.reg.SetActive("agent-a", false)
	resp := s.serve(c, "POST", "/loadgrid/v1/driver/agents/agent-a/reschedule", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(s.reg.AgentFor(lb.ID), check.Equals, "agent-b")

	resp = s.serve(c, "POST", "/loadgrid/v1/driver/agents/nonexistent/reschedule", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusNotFound)
}

func (s *APISuite) TestHeartbeat(c *check.C) {
	resp := s.serve(c, "POST", "/loadgrid/v1/agents/agent-new/heartbeat", "testtoken", map[string]interface{}{
		"host":       "host-new",
		"agent_type": "loadbalancer",
	})
	c.Assert(resp.Code, check.Equals, http.StatusOK)

	agent, ok := s.reg.Agents["agent-new"]
	c.Assert(ok, check.Equals, true)
	c.Check(agent.Host, check.Equals, "host-new")
	c.Check(agent.AdminStateUp, check.Equals, true)
	c.Check(agent.IsActive, check.Equals, true)

	resp = s.serve(c, "POST", "/loadgrid/v1/agents/agent-new/heartbeat", "testtoken", "not an object")
	c.Check(resp.Code, check.Equals, http.StatusBadRequest)
}

func (s *APISuite) TestStatusReport(c *check.C) {
	lb := s.addAssignedLB(c, "agent-a")
	resp := s.serve(c, "POST", "/loadgrid/v1/loadbalancers/"+lb.ID+"/status", "testtoken", map[string]string{
		"provisioning_status": "ACTIVE",
		"operating_status":    "ONLINE",
	})
	c.Assert(resp.Code, check.Equals, http.StatusOK)

	stored, err := s.reg.GetLoadBalancer(s.ctx, lb.ID)
	c.Assert(err, check.IsNil)
	c.Check(string(stored.ProvisioningStatus), check.Equals, "ACTIVE")
	c.Check(stored.OperatingStatus, check.Equals, "ONLINE")

	resp = s.serve(c, "POST", "/loadgrid/v1/loadbalancers/nope/status", "testtoken", map[string]string{
		"provisioning_status": "ACTIVE",
	})
	c.Check(resp.Code, check.Equals, http.StatusNotFound)
}

func (s *APISuite) TestMetricsAndHealth(c *check.C) {
	resp := s.serve(c, "GET", "/metrics", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Matches, `(?ms).*loadgrid_driver_reschedules_total.*`)

	resp = s.serve(c, "GET", "/_health/ping", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Equals, "{\"health\":\"OK\"}\n")

	// Ping reports unhealthy when the registry is unreachable.
	s.reg.Err = errors.New("registry down")
	resp = s.serve(c, "GET", "/_health/ping", "testtoken", nil)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Matches, `(?ms).*"health":"ERROR".*registry down.*`)
	s.reg.Err = nil
}
