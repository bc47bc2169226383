// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package placement implements the pluggable policies that pick an
// agent for a loadbalancer, both for initial placement and for
// failover reassignment.
package placement

import (
	"context"
	"fmt"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// Registry is the subset of the driver's registry that placement
// policies need. Policies always re-read current state through it, so
// repeating a Schedule or Reschedule call is safe.
type Registry interface {
	ListAgents(ctx context.Context) ([]loadgrid.Agent, error)
	GetLoadBalancer(ctx context.Context, id string) (loadgrid.LoadBalancer, error)
	OwningAgent(ctx context.Context, loadBalancerID string) (*loadgrid.Agent, error)
	AssignLoadBalancer(ctx context.Context, loadBalancerID, agentID string) error
}

// A Policy selects agents for loadbalancers. Both methods return
// (nil, nil) when no eligible agent exists -- including when the
// loadbalancer is pinned to a host and therefore must not be moved.
// On success the returned agent has already been recorded as the
// loadbalancer's owner in the registry.
type Policy interface {
	Schedule(ctx context.Context, reg Registry, lb loadgrid.LoadBalancer, deviceDriver string) (*loadgrid.Agent, error)
	Reschedule(ctx context.Context, reg Registry, loadBalancerID, deviceDriver string) (*loadgrid.Agent, error)
}

var policies = map[string]func() Policy{
	"chance":     func() Policy { return &ChanceScheduler{} },
	"roundrobin": func() Policy { return &RoundRobinScheduler{} },
}

// New returns the policy with the given configuration name.
func New(name string) (Policy, error) {
	factory, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unsupported scheduler driver %q", name)
	}
	return factory(), nil
}

// eligibleAgents returns the agents able to take new work: active,
// administratively up, and not the excluded (failed) agent. If
// pinnedID is non-empty, only that agent can qualify.
func eligibleAgents(ctx context.Context, reg Registry, pinnedID, excludeID string) ([]loadgrid.Agent, error) {
	agents, err := reg.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	var eligible []loadgrid.Agent
	for _, agent := range agents {
		if !agent.IsActive || !agent.AdminStateUp {
			continue
		}
		if agent.ID == excludeID {
			continue
		}
		if pinnedID != "" && agent.ID != pinnedID {
			continue
		}
		eligible = append(eligible, agent)
	}
	return eligible, nil
}

// schedule implements the shared schedule path: keep an existing
// assignment if there is one, otherwise pick among eligible agents
// with the given choose func and record the assignment.
func schedule(ctx context.Context, reg Registry, lb loadgrid.LoadBalancer, choose func([]loadgrid.Agent) loadgrid.Agent) (*loadgrid.Agent, error) {
	if current, err := reg.OwningAgent(ctx, lb.ID); err != nil {
		return nil, err
	} else if current != nil {
		return current, nil
	}
	eligible, err := eligibleAgents(ctx, reg, lb.PinnedAgentID, "")
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	agent := choose(eligible)
	if err := reg.AssignLoadBalancer(ctx, lb.ID, agent.ID); err != nil {
		return nil, err
	}
	return &agent, nil
}

// reschedule implements the shared failover path. Pinned
// loadbalancers are declined. If the current owner is active again
// (e.g., a second invocation after a successful reassignment), the
// existing assignment is kept.
func reschedule(ctx context.Context, reg Registry, loadBalancerID string, choose func([]loadgrid.Agent) loadgrid.Agent) (*loadgrid.Agent, error) {
	lb, err := reg.GetLoadBalancer(ctx, loadBalancerID)
	if err != nil {
		return nil, err
	}
	if lb.PinnedAgentID != "" {
		return nil, nil
	}
	current, err := reg.OwningAgent(ctx, loadBalancerID)
	if err != nil {
		return nil, err
	}
	excludeID := ""
	if current != nil {
		if current.IsActive && current.AdminStateUp {
			return current, nil
		}
		excludeID = current.ID
	}
	eligible, err := eligibleAgents(ctx, reg, "", excludeID)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	agent := choose(eligible)
	if err := reg.AssignLoadBalancer(ctx, loadBalancerID, agent.ID); err != nil {
		return nil, err
	}
	return &agent, nil
}
