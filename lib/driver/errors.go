// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"errors"
	"fmt"
)

// ErrDriverMisconfigured is returned by New when the cluster config
// does not name a device driver for the agents to use.
var ErrDriverMisconfigured = errors.New("device driver must be specified in driver configuration")

// ErrNotFound is returned by Registry implementations when a resource
// does not exist.
var ErrNotFound = errors.New("not found")

// NoEligibleAgentError is returned by CreateLoadBalancer when the
// placement policy finds no agent able to host a new loadbalancer.
// The loadbalancer remains unassigned in the registry.
type NoEligibleAgentError struct {
	LoadBalancerID string
}

func (e NoEligibleAgentError) Error() string {
	return fmt.Sprintf("no eligible agent found for loadbalancer %s", e.LoadBalancerID)
}

// NoActiveAgentError is returned by operations that need the current
// owner of a loadbalancer when no agent owns it. Delete operations
// still perform their local registry cleanup before returning this
// error; only the agent notification is skipped.
type NoActiveAgentError struct {
	LoadBalancerID string
}

func (e NoActiveAgentError) Error() string {
	return fmt.Sprintf("no agent hosting loadbalancer %s", e.LoadBalancerID)
}
