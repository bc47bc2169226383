// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package placement

import (
	"context"
	"sort"
	"sync"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// RoundRobinScheduler cycles through eligible agents in id order.
// The cursor is per-process, not persisted; after a restart the cycle
// starts over, which is harmless (placement does not promise a
// balanced distribution, only a spread).
type RoundRobinScheduler struct {
	mtx  sync.Mutex
	next int
}

func (rr *RoundRobinScheduler) Schedule(ctx context.Context, reg Registry, lb loadgrid.LoadBalancer, deviceDriver string) (*loadgrid.Agent, error) {
	return schedule(ctx, reg, lb, rr.choose)
}

func (rr *RoundRobinScheduler) Reschedule(ctx context.Context, reg Registry, loadBalancerID, deviceDriver string) (*loadgrid.Agent, error) {
	return reschedule(ctx, reg, loadBalancerID, rr.choose)
}

func (rr *RoundRobinScheduler) choose(agents []loadgrid.Agent) loadgrid.Agent {
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	rr.mtx.Lock()
	defer rr.mtx.Unlock()
	agent := agents[rr.next%len(agents)]
	rr.next++
	return agent
}
