// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/auth"
	"git.loadgrid.org/loadgrid.git/sdk/go/health"
	"git.loadgrid.org/loadgrid.git/sdk/go/httpserver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newAPIHandler builds the driver's HTTP surface: management endpoints
// for operators, plus (when this driver owns the process-wide
// consumer) the callback endpoints agents report in to.
func (drv *Driver) newAPIHandler(consumer bool) http.Handler {
	mux := httprouter.New()
	mux.Handle("GET", "/loadgrid/v1/driver/agents", drv.apiAgents)
	mux.Handle("GET", "/loadgrid/v1/driver/loadbalancers/:id/agent", drv.apiOwningAgent)
	mux.Handle("POST", "/loadgrid/v1/driver/agents/:id/reschedule", drv.apiReschedule)
	if consumer {
		mux.Handle("POST", "/loadgrid/v1/agents/:id/heartbeat", drv.apiHeartbeat)
		mux.Handle("POST", "/loadgrid/v1/loadbalancers/:id/status", drv.apiStatus)
	}
	metricsH := promhttp.HandlerFor(drv.reg, promhttp.HandlerOpts{
		ErrorLog: drv.logger,
	})
	mux.Handler("GET", "/metrics", metricsH)
	mux.Handler("GET", "/_health/:check", &health.Handler{
		Token:  drv.cluster.ManagementToken,
		Prefix: "/_health/",
		Check:  drv.CheckHealth,
	})
	return auth.RequireLiteralToken(drv.cluster.ManagementToken, mux)
}

func (drv *Driver) sendError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var noActive NoActiveAgentError
	var noEligible NoEligibleAgentError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.As(err, &noActive), errors.As(err, &noEligible):
		code = http.StatusNotFound
	}
	httpserver.Error(w, err.Error(), code)
}

func (drv *Driver) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (drv *Driver) apiAgents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	agents, err := drv.db.ListAgents(r.Context())
	if err != nil {
		drv.sendError(w, err)
		return
	}
	drv.sendJSON(w, map[string]interface{}{
		"items":         agents,
		"active_agents": drv.ActiveAgents(),
	})
}

func (drv *Driver) apiOwningAgent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	agent, err := drv.owningAgent(r.Context(), ps.ByName("id"))
	if err != nil {
		drv.sendError(w, err)
		return
	}
	drv.sendJSON(w, agent)
}

// apiReschedule lets an operator force failover handling for one
// agent without waiting for the monitor to notice, e.g. before taking
// the agent host down for maintenance.
func (drv *Driver) apiReschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	agents, err := drv.db.ListAgents(r.Context())
	if err != nil {
		drv.sendError(w, err)
		return
	}
	for _, agent := range agents {
		if agent.ID == id {
			drv.RescheduleAgent(r.Context(), agent)
			drv.sendJSON(w, map[string]interface{}{"agent_id": id})
			return
		}
	}
	drv.sendError(w, ErrNotFound)
}

type heartbeatRequest struct {
	Host         string `json:"host"`
	AgentType    string `json:"agent_type"`
	AdminStateUp *bool  `json:"admin_state_up"`
}

func (drv *Driver) apiHeartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var hb heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		httpserver.Error(w, "invalid heartbeat body: "+err.Error(), http.StatusBadRequest)
		return
	}
	agent := loadgrid.Agent{
		ID:              ps.ByName("id"),
		Host:            hb.Host,
		AgentType:       hb.AgentType,
		AdminStateUp:    true,
		LastHeartbeatAt: time.Now(),
	}
	if hb.AdminStateUp != nil {
		agent.AdminStateUp = *hb.AdminStateUp
	}
	if err := drv.db.TouchAgent(r.Context(), agent); err != nil {
		drv.sendError(w, err)
		return
	}
	drv.sendJSON(w, map[string]interface{}{"agent_id": agent.ID})
}

type statusRequest struct {
	ProvisioningStatus loadgrid.ProvisioningStatus `json:"provisioning_status"`
	OperatingStatus    string                      `json:"operating_status"`
}

func (drv *Driver) apiStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var st statusRequest
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		httpserver.Error(w, "invalid status body: "+err.Error(), http.StatusBadRequest)
		return
	}
	id := ps.ByName("id")
	if err := drv.db.SetLoadBalancerStatus(r.Context(), id, st.ProvisioningStatus, st.OperatingStatus); err != nil {
		drv.sendError(w, err)
		return
	}
	drv.sendJSON(w, map[string]interface{}{"loadbalancer_id": id})
}
