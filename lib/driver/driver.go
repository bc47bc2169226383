// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package driver implements the control-plane half of the
// driver/agent split: it decides which agent hosts each loadbalancer,
// pushes create/update/delete commands to agents asynchronously, and
// moves loadbalancers off agents that stop heartbeating.
package driver

import (
	"context"
	"net/http"
	"sync"

	"git.loadgrid.org/loadgrid.git/lib/placement"
	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Composition is the state shared by co-installed drivers in a single
// process. Process-wide facilities -- the agent monitor loop and the
// inbound agent-facing consumer -- must only be set up by the first
// driver; later drivers detect the already-configured state and skip.
type Composition struct {
	mtx        sync.Mutex
	monitoring bool
	consumer   bool
}

func (comp *Composition) claimMonitoring() bool {
	comp.mtx.Lock()
	defer comp.mtx.Unlock()
	if comp.monitoring {
		return false
	}
	comp.monitoring = true
	return true
}

func (comp *Composition) claimConsumer() bool {
	comp.mtx.Lock()
	defer comp.mtx.Unlock()
	if comp.consumer {
		return false
	}
	comp.consumer = true
	return true
}

// Driver owns the scheduling-assignment protocol for one device
// driver kind. A zero Driver is not usable; call New.
type Driver struct {
	cluster      *loadgrid.Cluster
	ctx          context.Context
	logger       logrus.FieldLogger
	db           Registry
	notifier     Notifier
	ownNotifier  *HTTPNotifier // set if we created the notifier and must stop it
	policy       placement.Policy
	comp         *Composition
	reg          *prometheus.Registry
	deviceDriver string

	monitor     *monitor // nil if another driver owns monitoring
	httpHandler http.Handler

	setupOnce sync.Once
	closeOnce sync.Once
	stopped   chan struct{}

	mReschedules        prometheus.Counter
	mRescheduleFailures prometheus.Counter
}

// New validates the cluster config and returns an unstarted Driver.
// comp may be nil if this is the only driver in the process; notifier
// may be nil to use an HTTPNotifier with the configured callback port.
func New(ctx context.Context, cluster *loadgrid.Cluster, db Registry, notifier Notifier, comp *Composition, reg *prometheus.Registry) (*Driver, error) {
	if cluster.Driver.DeviceDriver == "" {
		return nil, ErrDriverMisconfigured
	}
	policy, err := placement.New(cluster.Driver.SchedulerDriver)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		comp = &Composition{}
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	logger := ctxlog.FromContext(ctx).WithField("DeviceDriver", cluster.Driver.DeviceDriver)
	drv := &Driver{
		cluster:      cluster,
		ctx:          ctx,
		logger:       logger,
		db:           db,
		notifier:     notifier,
		policy:       policy,
		comp:         comp,
		reg:          reg,
		deviceDriver: cluster.Driver.DeviceDriver,
		stopped:      make(chan struct{}),
	}
	if drv.notifier == nil {
		hn := NewHTTPNotifier(logger, reg, cluster.Driver.AgentCallbackPort, cluster.Driver.NotifyQueueSize)
		drv.notifier = hn
		drv.ownNotifier = hn
	}
	drv.registerMetrics(reg)
	return drv, nil
}

func (drv *Driver) registerMetrics(reg *prometheus.Registry) {
	drv.mReschedules = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "reschedules_total",
		Help:      "Number of loadbalancers successfully reassigned away from inactive agents.",
	})
	reg.MustRegister(drv.mReschedules)
	drv.mRescheduleFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "reschedule_failures_total",
		Help:      "Number of loadbalancers that could not be reassigned (no eligible agent, or policy error).",
	})
	reg.MustRegister(drv.mRescheduleFailures)
}

// Start starts the background monitor loop and builds the HTTP
// surface. Start can be called multiple times with no ill effect.
func (drv *Driver) Start() {
	drv.setupOnce.Do(drv.setup)
}

func (drv *Driver) setup() {
	if drv.comp.claimMonitoring() {
		drv.monitor = newMonitor(drv.logger, drv.db, drv.reg,
			drv.cluster.Driver.MonitoringInterval.Duration(),
			drv.RescheduleAgent)
		drv.monitor.Start(drv.ctx)
	}
	drv.httpHandler = drv.newAPIHandler(drv.comp.claimConsumer())
}

// ServeHTTP implements service.Handler.
func (drv *Driver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	drv.Start()
	drv.httpHandler.ServeHTTP(w, r)
}

// CheckHealth implements service.Handler.
func (drv *Driver) CheckHealth() error {
	drv.Start()
	_, err := drv.db.ListAgents(drv.ctx)
	return err
}

// Done implements service.Handler.
func (drv *Driver) Done() <-chan struct{} {
	return drv.stopped
}

// Close stops the monitor loop and the notifier (if owned) and
// releases resources. Typically used in tests.
func (drv *Driver) Close() {
	drv.Start()
	drv.closeOnce.Do(func() {
		if drv.monitor != nil {
			drv.monitor.Stop()
		}
		if drv.ownNotifier != nil {
			drv.ownNotifier.Stop()
		}
		close(drv.stopped)
	})
}

// owningAgent returns the agent currently hosting the given
// loadbalancer, or NoActiveAgentError if there is none.
func (drv *Driver) owningAgent(ctx context.Context, loadBalancerID string) (*loadgrid.Agent, error) {
	agent, err := drv.db.OwningAgent(ctx, loadBalancerID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, NoActiveAgentError{LoadBalancerID: loadBalancerID}
	}
	return agent, nil
}

// CreateLoadBalancer persists the loadbalancer, asks the placement
// policy for an agent, and pushes the create command to that agent.
// If no agent is eligible the loadbalancer stays unassigned (pending)
// in the registry, no notification is sent, and NoEligibleAgentError
// is returned for the caller to surface.
func (drv *Driver) CreateLoadBalancer(ctx context.Context, lb *loadgrid.LoadBalancer) error {
	drv.Start()
	if err := drv.db.CreateLoadBalancer(ctx, lb); err != nil {
		return err
	}
	agent, err := drv.policy.Schedule(ctx, drv.db, *lb, drv.deviceDriver)
	if err != nil {
		return err
	}
	if agent == nil {
		return NoEligibleAgentError{LoadBalancerID: lb.ID}
	}
	drv.notifier.Cast(ctx, agent.Host, VerbCreateLoadBalancer, castPayload{
		"loadbalancer": lb,
		"driver_name":  drv.deviceDriver,
	})
	return nil
}

// UpdateLoadBalancer persists the new definition and pushes both
// snapshots to the hosting agent, which is expected to diff them.
func (drv *Driver) UpdateLoadBalancer(ctx context.Context, old, upd loadgrid.LoadBalancer) error {
	drv.Start()
	if err := drv.db.UpdateLoadBalancer(ctx, upd); err != nil {
		return err
	}
	agent, err := drv.owningAgent(ctx, upd.ID)
	if err != nil {
		return err
	}
	drv.notifier.Cast(ctx, agent.Host, VerbUpdateLoadBalancer, castPayload{
		"old_loadbalancer": old,
		"loadbalancer":     upd,
	})
	return nil
}

// DeleteLoadBalancer removes the loadbalancer from the registry, then
// tells the hosting agent to tear it down. The registry is mutated
// before (and regardless of) agent acknowledgment: the notification
// is a best-effort cleanup signal, not a two-phase commit. If no
// agent hosts the loadbalancer, local deletion still happens and
// NoActiveAgentError is returned with the notification skipped.
func (drv *Driver) DeleteLoadBalancer(ctx context.Context, lb loadgrid.LoadBalancer) error {
	drv.Start()
	agent, agentErr := drv.owningAgent(ctx, lb.ID)
	if err := drv.db.DeleteLoadBalancer(ctx, lb.ID); err != nil {
		return err
	}
	if agentErr != nil {
		return agentErr
	}
	drv.notifier.Cast(ctx, agent.Host, VerbDeleteLoadBalancer, castPayload{
		"loadbalancer": lb,
	})
	return nil
}

// AgentUpdated tells an agent its admin state changed.
func (drv *Driver) AgentUpdated(ctx context.Context, agent loadgrid.Agent) {
	drv.Start()
	drv.notifier.Cast(ctx, agent.Host, VerbAgentUpdated, castPayload{
		"admin_state_up": agent.AdminStateUp,
	})
}

// ActiveAgents returns the monitor's active-agent set, or nil if
// monitoring is owned by another driver in this process. Diagnostics
// only.
func (drv *Driver) ActiveAgents() []string {
	drv.Start()
	if drv.monitor == nil {
		return nil
	}
	return drv.monitor.ActiveAgents()
}
