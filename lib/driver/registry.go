// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// Registry is the durable store of agents, loadbalancers,
// sub-resources, and the agent-to-loadbalancer assignment. The
// production implementation is lib/ctrlpg; tests use the in-memory
// stub in lib/driver/test.
//
// Writes are expected to be atomic per record (last writer wins); the
// driver does not take any cross-record locks.
type Registry interface {
	// ListAgents returns the full agent roster. IsActive is
	// derived from heartbeat staleness by the registry; no
	// filtering is applied here.
	ListAgents(ctx context.Context) ([]loadgrid.Agent, error)

	// TouchAgent records a heartbeat, inserting the agent record
	// if it is not yet known (agent self-registration).
	TouchAgent(ctx context.Context, agent loadgrid.Agent) error

	// LoadBalancersOnAgent returns the loadbalancers currently
	// assigned to the given agent.
	LoadBalancersOnAgent(ctx context.Context, agentID string) ([]loadgrid.LoadBalancer, error)

	// OwningAgent returns the agent currently assigned the given
	// loadbalancer, or nil if there is none.
	OwningAgent(ctx context.Context, loadBalancerID string) (*loadgrid.Agent, error)

	// AssignLoadBalancer records agentID as the owner of the
	// loadbalancer, replacing any existing assignment.
	AssignLoadBalancer(ctx context.Context, loadBalancerID, agentID string) error

	CreateLoadBalancer(ctx context.Context, lb *loadgrid.LoadBalancer) error
	GetLoadBalancer(ctx context.Context, id string) (loadgrid.LoadBalancer, error)
	UpdateLoadBalancer(ctx context.Context, lb loadgrid.LoadBalancer) error
	DeleteLoadBalancer(ctx context.Context, id string) error

	// SetLoadBalancerStatus records status reported back by the
	// hosting agent.
	SetLoadBalancerStatus(ctx context.Context, id string, provisioning loadgrid.ProvisioningStatus, operating string) error

	// UpdateProvisioningStatus recomputes the loadbalancer's
	// derived provisioning status from its remaining
	// sub-resources (called after a sub-resource is deleted).
	UpdateProvisioningStatus(ctx context.Context, loadBalancerID string) error

	CreateListener(ctx context.Context, l *loadgrid.Listener) error
	GetListener(ctx context.Context, id string) (loadgrid.Listener, error)
	UpdateListener(ctx context.Context, l loadgrid.Listener) error
	DeleteListener(ctx context.Context, id string) error

	CreatePool(ctx context.Context, p *loadgrid.Pool) error
	GetPool(ctx context.Context, id string) (loadgrid.Pool, error)
	UpdatePool(ctx context.Context, p loadgrid.Pool) error
	DeletePool(ctx context.Context, id string) error

	CreateMember(ctx context.Context, m *loadgrid.Member) error
	GetMember(ctx context.Context, id string) (loadgrid.Member, error)
	UpdateMember(ctx context.Context, m loadgrid.Member) error
	DeleteMember(ctx context.Context, id string) error

	CreateHealthMonitor(ctx context.Context, hm *loadgrid.HealthMonitor) error
	GetHealthMonitor(ctx context.Context, id string) (loadgrid.HealthMonitor, error)
	UpdateHealthMonitor(ctx context.Context, hm loadgrid.HealthMonitor) error
	DeleteHealthMonitor(ctx context.Context, id string) error
}
