// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package test provides fakes for testing driver behavior without a
// database or live agents.
package test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"git.loadgrid.org/loadgrid.git/lib/driver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// Registry is a thread-safe in-memory driver.Registry. The zero value
// is ready to use. Tests mutate the exported maps directly (while no
// driver goroutine is running) or through the interface methods.
type Registry struct {
	mtx sync.Mutex

	Agents         map[string]loadgrid.Agent
	LoadBalancers  map[string]loadgrid.LoadBalancer
	Listeners      map[string]loadgrid.Listener
	Pools          map[string]loadgrid.Pool
	Members        map[string]loadgrid.Member
	HealthMonitors map[string]loadgrid.HealthMonitor

	// Assignments maps loadbalancer id to agent id.
	Assignments map[string]string

	// Err, if set, causes every method to fail with it.
	Err error

	nextID int
}

func (r *Registry) init() {
	if r.Agents == nil {
		r.Agents = map[string]loadgrid.Agent{}
	}
	if r.LoadBalancers == nil {
		r.LoadBalancers = map[string]loadgrid.LoadBalancer{}
	}
	if r.Listeners == nil {
		r.Listeners = map[string]loadgrid.Listener{}
	}
	if r.Pools == nil {
		r.Pools = map[string]loadgrid.Pool{}
	}
	if r.Members == nil {
		r.Members = map[string]loadgrid.Member{}
	}
	if r.HealthMonitors == nil {
		r.HealthMonitors = map[string]loadgrid.HealthMonitor{}
	}
	if r.Assignments == nil {
		r.Assignments = map[string]string{}
	}
}

func (r *Registry) newID() string {
	r.nextID++
	return fmt.Sprintf("stub-%04d", r.nextID)
}

// SetAgent inserts or replaces an agent record.
func (r *Registry) SetAgent(agent loadgrid.Agent) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	r.Agents[agent.ID] = agent
}

// SetActive flips an agent's derived liveness, as a stale/fresh
// heartbeat would.
func (r *Registry) SetActive(agentID string, active bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	agent := r.Agents[agentID]
	agent.IsActive = active
	r.Agents[agentID] = agent
}

// AgentFor returns the assigned agent id for a loadbalancer, or "".
func (r *Registry) AgentFor(loadBalancerID string) string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	return r.Assignments[loadBalancerID]
}

func (r *Registry) ListAgents(ctx context.Context) ([]loadgrid.Agent, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return nil, r.Err
	}
	var ids []string
	for id := range r.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var agents []loadgrid.Agent
	for _, id := range ids {
		agents = append(agents, r.Agents[id])
	}
	return agents, nil
}

func (r *Registry) TouchAgent(ctx context.Context, agent loadgrid.Agent) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	agent.IsActive = true
	r.Agents[agent.ID] = agent
	return nil
}

func (r *Registry) LoadBalancersOnAgent(ctx context.Context, agentID string) ([]loadgrid.LoadBalancer, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return nil, r.Err
	}
	var ids []string
	for lbID, aID := range r.Assignments {
		if aID == agentID {
			ids = append(ids, lbID)
		}
	}
	sort.Strings(ids)
	var lbs []loadgrid.LoadBalancer
	for _, id := range ids {
		lbs = append(lbs, r.LoadBalancers[id])
	}
	return lbs, nil
}

func (r *Registry) OwningAgent(ctx context.Context, loadBalancerID string) (*loadgrid.Agent, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return nil, r.Err
	}
	agentID, ok := r.Assignments[loadBalancerID]
	if !ok {
		return nil, nil
	}
	agent, ok := r.Agents[agentID]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

func (r *Registry) AssignLoadBalancer(ctx context.Context, loadBalancerID, agentID string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	r.Assignments[loadBalancerID] = agentID
	return nil
}

func (r *Registry) CreateLoadBalancer(ctx context.Context, lb *loadgrid.LoadBalancer) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if lb.ID == "" {
		lb.ID = r.newID()
	}
	if lb.ProvisioningStatus == "" {
		lb.ProvisioningStatus = loadgrid.ProvisioningStatusPending
	}
	r.LoadBalancers[lb.ID] = *lb
	return nil
}

func (r *Registry) GetLoadBalancer(ctx context.Context, id string) (loadgrid.LoadBalancer, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return loadgrid.LoadBalancer{}, r.Err
	}
	lb, ok := r.LoadBalancers[id]
	if !ok {
		return loadgrid.LoadBalancer{}, driver.ErrNotFound
	}
	return lb, nil
}

func (r *Registry) UpdateLoadBalancer(ctx context.Context, lb loadgrid.LoadBalancer) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.LoadBalancers[lb.ID]; !ok {
		return driver.ErrNotFound
	}
	r.LoadBalancers[lb.ID] = lb
	return nil
}

func (r *Registry) DeleteLoadBalancer(ctx context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.LoadBalancers[id]; !ok {
		return driver.ErrNotFound
	}
	delete(r.LoadBalancers, id)
	delete(r.Assignments, id)
	return nil
}

func (r *Registry) SetLoadBalancerStatus(ctx context.Context, id string, provisioning loadgrid.ProvisioningStatus, operating string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	lb, ok := r.LoadBalancers[id]
	if !ok {
		return driver.ErrNotFound
	}
	lb.ProvisioningStatus = provisioning
	lb.OperatingStatus = operating
	r.LoadBalancers[id] = lb
	return nil
}

func (r *Registry) UpdateProvisioningStatus(ctx context.Context, loadBalancerID string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	lb, ok := r.LoadBalancers[loadBalancerID]
	if !ok {
		return driver.ErrNotFound
	}
	lb.ProvisioningStatus = loadgrid.ProvisioningStatusActive
	r.LoadBalancers[loadBalancerID] = lb
	return nil
}

func (r *Registry) CreateListener(ctx context.Context, l *loadgrid.Listener) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if l.ID == "" {
		l.ID = r.newID()
	}
	r.Listeners[l.ID] = *l
	return nil
}

func (r *Registry) GetListener(ctx context.Context, id string) (loadgrid.Listener, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return loadgrid.Listener{}, r.Err
	}
	l, ok := r.Listeners[id]
	if !ok {
		return loadgrid.Listener{}, driver.ErrNotFound
	}
	return l, nil
}

func (r *Registry) UpdateListener(ctx context.Context, l loadgrid.Listener) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Listeners[l.ID]; !ok {
		return driver.ErrNotFound
	}
	r.Listeners[l.ID] = l
	return nil
}

func (r *Registry) DeleteListener(ctx context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Listeners[id]; !ok {
		return driver.ErrNotFound
	}
	delete(r.Listeners, id)
	return nil
}

func (r *Registry) CreatePool(ctx context.Context, p *loadgrid.Pool) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if p.ID == "" {
		p.ID = r.newID()
	}
	r.Pools[p.ID] = *p
	return nil
}

func (r *Registry) GetPool(ctx context.Context, id string) (loadgrid.Pool, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return loadgrid.Pool{}, r.Err
	}
	p, ok := r.Pools[id]
	if !ok {
		return loadgrid.Pool{}, driver.ErrNotFound
	}
	return p, nil
}

func (r *Registry) UpdatePool(ctx context.Context, p loadgrid.Pool) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Pools[p.ID]; !ok {
		return driver.ErrNotFound
	}
	r.Pools[p.ID] = p
	return nil
}

func (r *Registry) DeletePool(ctx context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Pools[id]; !ok {
		return driver.ErrNotFound
	}
	delete(r.Pools, id)
	return nil
}

func (r *Registry) CreateMember(ctx context.Context, m *loadgrid.Member) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if m.ID == "" {
		m.ID = r.newID()
	}
	r.Members[m.ID] = *m
	return nil
}

func (r *Registry) GetMember(ctx context.Context, id string) (loadgrid.Member, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return loadgrid.Member{}, r.Err
	}
	m, ok := r.Members[id]
	if !ok {
		return loadgrid.Member{}, driver.ErrNotFound
	}
	return m, nil
}

func (r *Registry) UpdateMember(ctx context.Context, m loadgrid.Member) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Members[m.ID]; !ok {
		return driver.ErrNotFound
	}
	r.Members[m.ID] = m
	return nil
}

func (r *Registry) DeleteMember(ctx context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.Members[id]; !ok {
		return driver.ErrNotFound
	}
	delete(r.Members, id)
	return nil
}

func (r *Registry) CreateHealthMonitor(ctx context.Context, hm *loadgrid.HealthMonitor) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if hm.ID == "" {
		hm.ID = r.newID()
	}
	r.HealthMonitors[hm.ID] = *hm
	return nil
}

func (r *Registry) GetHealthMonitor(ctx context.Context, id string) (loadgrid.HealthMonitor, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return loadgrid.HealthMonitor{}, r.Err
	}
	hm, ok := r.HealthMonitors[id]
	if !ok {
		return loadgrid.HealthMonitor{}, driver.ErrNotFound
	}
	return hm, nil
}

func (r *Registry) UpdateHealthMonitor(ctx context.Context, hm loadgrid.HealthMonitor) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.HealthMonitors[hm.ID]; !ok {
		return driver.ErrNotFound
	}
	r.HealthMonitors[hm.ID] = hm
	return nil
}

func (r *Registry) DeleteHealthMonitor(ctx context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.init()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.HealthMonitors[id]; !ok {
		return driver.ErrNotFound
	}
	delete(r.HealthMonitors, id)
	return nil
}
