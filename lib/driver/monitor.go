// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type healthState int

const (
	// A newly observed agent starts out inactive: an agent that
	// is already down when the process starts must not trigger a
	// failover, and an agent that is up simply transitions to
	// active on the first poll (with no notification).
	stateInactive healthState = iota
	stateActive
)

func (s healthState) String() string {
	if s == stateActive {
		return "active"
	}
	return "inactive"
}

// agentHealth is the monitor's view of one agent: a two-state machine
// whose edges are driven by polling, plus the time of the last
// observation.
type agentHealth struct {
	state    healthState
	observed time.Time
}

// monitor polls the registry's agent roster on a fixed interval and
// invokes onDown exactly once per active-to-inactive transition. The
// active-agent set is a cache of the registry's is_active computation
// as of the most recent poll; it is rebuilt incrementally, never
// wholesale-replaced, so each transition is detected exactly once.
type monitor struct {
	logger   logrus.FieldLogger
	registry Registry
	onDown   func(context.Context, loadgrid.Agent)
	interval time.Duration

	agents map[string]*agentHealth
	mtx    sync.Mutex

	runOnce sync.Once
	stop    chan struct{}
	stopped chan struct{}

	mPolls  prometheus.Counter
	mActive prometheus.Gauge
}

func newMonitor(logger logrus.FieldLogger, registry Registry, reg *prometheus.Registry, interval time.Duration, onDown func(context.Context, loadgrid.Agent)) *monitor {
	m := &monitor{
		logger:   logger,
		registry: registry,
		onDown:   onDown,
		interval: interval,
		agents:   map[string]*agentHealth{},
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	m.registerMetrics(reg)
	return m
}

func (m *monitor) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m.mPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "monitor_polls_total",
		Help:      "Number of completed agent liveness polls.",
	})
	reg.MustRegister(m.mPolls)
	m.mActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "agents_active",
		Help:      "Number of agents in the active-agent set as of the last poll.",
	})
	reg.MustRegister(m.mActive)
}

// Start starts the monitor loop. Start can be called multiple times
// with no ill effect. If the configured interval is zero, monitoring
// is disabled and the loop never starts; agents going down will not
// trigger rescheduling (this is the documented "off" configuration,
// not an error).
func (m *monitor) Start(ctx context.Context) {
	m.runOnce.Do(func() { go m.run(ctx) })
}

// Stop terminates the loop. An in-flight poll finishes first; the
// active-agent set is not persisted, so a restart rebuilds it from
// scratch (first poll after restart treats every agent as newly
// observed).
func (m *monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.stopped
}

func (m *monitor) run(ctx context.Context) {
	defer close(m.stopped)
	if m.interval <= 0 {
		m.logger.Info("agent monitoring disabled by configuration")
		return
	}
	// The ticker's first tick arrives one full interval after
	// Start, giving agents time to report in after a control
	// plane restart.
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkAgentStates(ctx)
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// checkAgentStates performs one poll: fetch the roster, apply each
// agent's derived is_active to its state machine, and fire onDown for
// every active-to-inactive edge. A failed poll is logged and skipped;
// the loop continues at the next tick.
func (m *monitor) checkAgentStates(ctx context.Context) {
	agents, err := m.registry.ListAgents(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("agent poll failed")
		return
	}
	for _, agent := range agents {
		if down := m.observe(agent); down {
			m.logger.WithFields(logrus.Fields{
				"AgentID": agent.ID,
				"Host":    agent.Host,
			}).Warn("agent became inactive; rescheduling its loadbalancers to other eligible agents")
			m.onDown(ctx, agent)
		}
	}
	m.mtx.Lock()
	active := 0
	for _, h := range m.agents {
		if h.state == stateActive {
			active++
		}
	}
	m.mtx.Unlock()
	m.mActive.Set(float64(active))
	m.mPolls.Inc()
}

// observe feeds one roster entry into the agent's state machine and
// reports whether this observation was an active-to-inactive edge.
func (m *monitor) observe(agent loadgrid.Agent) (wentDown bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	h, ok := m.agents[agent.ID]
	if !ok {
		h = &agentHealth{state: stateInactive}
		m.agents[agent.ID] = h
	}
	h.observed = time.Now()
	switch {
	case agent.IsActive && h.state == stateInactive:
		h.state = stateActive
	case !agent.IsActive && h.state == stateActive:
		h.state = stateInactive
		wentDown = true
	}
	return
}

// ActiveAgents returns the ids in the active-agent set, sorted. For
// diagnostics only; the set is owned by the monitor loop.
func (m *monitor) ActiveAgents() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var ids []string
	for id, h := range m.agents {
		if h.state == stateActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
