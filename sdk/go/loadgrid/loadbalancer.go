// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package loadgrid

import "time"

// Agent is a worker process capable of hosting loadbalancer
// instances. Agents self-register and report heartbeats; the registry
// derives IsActive from heartbeat staleness.
type Agent struct {
	ID              string    `json:"id"`
	Host            string    `json:"host"`
	AgentType       string    `json:"agent_type"`
	AdminStateUp    bool      `json:"admin_state_up"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	IsActive        bool      `json:"is_active"`
}

// ProvisioningStatus is the lifecycle status of a loadbalancer or one
// of its sub-resources, as recorded in the registry.
type ProvisioningStatus string

const (
	ProvisioningStatusPending ProvisioningStatus = "PENDING"
	ProvisioningStatusActive  ProvisioningStatus = "ACTIVE"
	ProvisioningStatusError   ProvisioningStatus = "ERROR"
	ProvisioningStatusDeleted ProvisioningStatus = "DELETED"
)

// LoadBalancer is a long-lived workload owned by at most one agent at
// a time. PinnedAgentID, if set, pins the instance to a specific agent
// and excludes it from automatic rescheduling.
type LoadBalancer struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	VIPAddress         string             `json:"vip_address"`
	AdminStateUp       bool               `json:"admin_state_up"`
	PinnedAgentID      string             `json:"pinned_agent_id,omitempty"`
	ProvisioningStatus ProvisioningStatus `json:"provisioning_status"`
	OperatingStatus    string             `json:"operating_status"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Listener accepts frontend traffic for a loadbalancer.
type Listener struct {
	ID             string             `json:"id"`
	LoadBalancerID string             `json:"loadbalancer_id"`
	Name           string             `json:"name"`
	Protocol       string             `json:"protocol"`
	ProtocolPort   int                `json:"protocol_port"`
	AdminStateUp   bool               `json:"admin_state_up"`
	Status         ProvisioningStatus `json:"provisioning_status"`
}

// Pool groups backend members behind a listener.
type Pool struct {
	ID           string             `json:"id"`
	ListenerID   string             `json:"listener_id"`
	Name         string             `json:"name"`
	LBAlgorithm  string             `json:"lb_algorithm"`
	Protocol     string             `json:"protocol"`
	AdminStateUp bool               `json:"admin_state_up"`
	Status       ProvisioningStatus `json:"provisioning_status"`
}

// Member is one backend server in a pool.
type Member struct {
	ID           string             `json:"id"`
	PoolID       string             `json:"pool_id"`
	Address      string             `json:"address"`
	ProtocolPort int                `json:"protocol_port"`
	Weight       int                `json:"weight"`
	AdminStateUp bool               `json:"admin_state_up"`
	Status       ProvisioningStatus `json:"provisioning_status"`
}

// HealthMonitor describes backend health checking for a pool. (This
// is agent-side member probing, unrelated to the control plane's own
// agent liveness monitoring.)
type HealthMonitor struct {
	ID           string             `json:"id"`
	PoolID       string             `json:"pool_id"`
	Type         string             `json:"type"`
	Delay        int                `json:"delay"`
	Timeout      int                `json:"timeout"`
	MaxRetries   int                `json:"max_retries"`
	AdminStateUp bool               `json:"admin_state_up"`
	Status       ProvisioningStatus `json:"provisioning_status"`
}
