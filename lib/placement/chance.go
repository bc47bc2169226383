// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package placement

import (
	"context"
	"math/rand"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// ChanceScheduler picks a random eligible agent. This is the default
// policy.
type ChanceScheduler struct{}

func (*ChanceScheduler) Schedule(ctx context.Context, reg Registry, lb loadgrid.LoadBalancer, deviceDriver string) (*loadgrid.Agent, error) {
	return schedule(ctx, reg, lb, chooseRandom)
}

func (*ChanceScheduler) Reschedule(ctx context.Context, reg Registry, loadBalancerID, deviceDriver string) (*loadgrid.Agent, error) {
	return reschedule(ctx, reg, loadBalancerID, chooseRandom)
}

func chooseRandom(agents []loadgrid.Agent) loadgrid.Agent {
	return agents[rand.Intn(len(agents))]
}
