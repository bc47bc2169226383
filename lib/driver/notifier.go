// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Notification verbs understood by agents. Each cast is addressed to
// exactly one agent host; none expects a reply.
const (
	VerbAgentUpdated    = "agent_updated"
	VerbInstanceAdded   = "instance_added"
	VerbInstanceRemoved = "instance_removed"

	VerbCreateLoadBalancer  = "create_loadbalancer"
	VerbUpdateLoadBalancer  = "update_loadbalancer"
	VerbDeleteLoadBalancer  = "delete_loadbalancer"
	VerbCreateListener      = "create_listener"
	VerbUpdateListener      = "update_listener"
	VerbDeleteListener      = "delete_listener"
	VerbCreatePool          = "create_pool"
	VerbUpdatePool          = "update_pool"
	VerbDeletePool          = "delete_pool"
	VerbCreateMember        = "create_member"
	VerbUpdateMember        = "update_member"
	VerbDeleteMember        = "delete_member"
	VerbCreateHealthMonitor = "create_healthmonitor"
	VerbUpdateHealthMonitor = "update_healthmonitor"
	VerbDeleteHealthMonitor = "delete_healthmonitor"
)

// castPayload is the JSON body of a cast notification.
type castPayload map[string]interface{}

// A Notifier delivers one-way cast notifications to agent hosts.
// Cast never blocks on delivery and never reports delivery failure to
// the caller; failures are logged and counted.
type Notifier interface {
	Cast(ctx context.Context, host, verb string, payload interface{})
}

const (
	defaultCastQueueSize = 1000
	castRequestTimeout   = 10 * time.Second
)

type queuedCast struct {
	host string
	verb string
	body []byte
}

// HTTPNotifier delivers casts by POSTing JSON to
// http://{host}:{port}/loadgrid/v1/cast/{verb} on the agent host.
//
// Casts are queued in memory and drained by a single goroutine, so
// delivery order matches Cast order. When the queue is full, new
// casts are dropped (and logged) rather than blocking the caller.
type HTTPNotifier struct {
	logger    logrus.FieldLogger
	port      int
	queueSize int

	client *retryablehttp.Client
	queue  chan queuedCast

	setupOnce sync.Once
	stop      chan struct{}
	stopped   chan struct{}

	mCasts   *prometheus.CounterVec
	mErrors  prometheus.Counter
	mDropped prometheus.Counter
}

// NewHTTPNotifier creates an HTTPNotifier. The drain goroutine starts
// on the first Cast.
func NewHTTPNotifier(logger logrus.FieldLogger, reg *prometheus.Registry, port, queueSize int) *HTTPNotifier {
	if queueSize <= 0 {
		queueSize = defaultCastQueueSize
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = castRequestTimeout
	client.Logger = nil
	n := &HTTPNotifier{
		logger:    logger,
		port:      port,
		queueSize: queueSize,
		client:    client,
	}
	n.registerMetrics(reg)
	return n
}

func (n *HTTPNotifier) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	n.mCasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "notifications_total",
		Help:      "Number of cast notifications enqueued, by verb.",
	}, []string{"verb"})
	reg.MustRegister(n.mCasts)
	n.mErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "notification_errors_total",
		Help:      "Number of cast notifications that could not be delivered.",
	})
	reg.MustRegister(n.mErrors)
	n.mDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loadgrid",
		Subsystem: "driver",
		Name:      "notifications_dropped_total",
		Help:      "Number of cast notifications dropped because the queue was full.",
	})
	reg.MustRegister(n.mDropped)
}

func (n *HTTPNotifier) setup() {
	n.queue = make(chan queuedCast, n.queueSize)
	n.stop = make(chan struct{})
	n.stopped = make(chan struct{})
	go n.run()
}

// Cast implements Notifier.
func (n *HTTPNotifier) Cast(ctx context.Context, host, verb string, payload interface{}) {
	n.setupOnce.Do(n.setup)
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"Host": host,
			"Verb": verb,
		}).WithError(err).Error("cannot encode cast payload")
		n.mErrors.Inc()
		return
	}
	n.mCasts.WithLabelValues(verb).Inc()
	select {
	case n.queue <- queuedCast{host: host, verb: verb, body: body}:
	default:
		n.mDropped.Inc()
		n.logger.WithFields(logrus.Fields{
			"Host": host,
			"Verb": verb,
		}).Warn("cast queue full, dropping notification")
	}
}

// Stop drains nothing further and returns once the drain goroutine
// has exited. Queued casts that have not been sent are discarded.
func (n *HTTPNotifier) Stop() {
	n.setupOnce.Do(n.setup)
	close(n.stop)
	<-n.stopped
}

func (n *HTTPNotifier) run() {
	defer close(n.stopped)
	for {
		select {
		case qc := <-n.queue:
			n.deliver(qc)
		case <-n.stop:
			return
		}
	}
}

func (n *HTTPNotifier) deliver(qc queuedCast) {
	url := fmt.Sprintf("http://%s:%d/loadgrid/v1/cast/%s", qc.host, n.port, qc.verb)
	req, err := retryablehttp.NewRequest("POST", url, bytes.NewReader(qc.body))
	if err != nil {
		n.mErrors.Inc()
		n.logger.WithField("URL", url).WithError(err).Error("cannot build cast request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		// Best effort: the agent may be down (that is often
		// why we are notifying its replacement).
		n.mErrors.Inc()
		n.logger.WithFields(logrus.Fields{
			"Host": qc.host,
			"Verb": qc.verb,
		}).WithError(err).Warn("cast delivery failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.mErrors.Inc()
		n.logger.WithFields(logrus.Fields{
			"Host":   qc.host,
			"Verb":   qc.verb,
			"Status": resp.StatusCode,
		}).Warn("agent rejected cast")
	}
}
