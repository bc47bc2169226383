// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&NotifierSuite{})

type NotifierSuite struct{}

type receivedCast struct {
	path string
	body map[string]interface{}
}

// fakeAgent is an HTTP endpoint that records incoming casts.
type fakeAgent struct {
	mtx      sync.Mutex
	received []receivedCast
	gate     chan struct{} // if non-nil, handler blocks until it can receive
	srv      *httptest.Server
	host     string
	port     int
}

func newFakeAgent(c *check.C) *fakeAgent {
	fa := &fakeAgent{}
	fa.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fa.gate != nil {
			<-fa.gate
		}
		buf, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		json.Unmarshal(buf, &body)
		fa.mtx.Lock()
		fa.received = append(fa.received, receivedCast{path: r.URL.Path, body: body})
		fa.mtx.Unlock()
	}))
	host, portstr, err := net.SplitHostPort(fa.srv.Listener.Addr().String())
	c.Assert(err, check.IsNil)
	fa.host = host
	fa.port, err = strconv.Atoi(portstr)
	c.Assert(err, check.IsNil)
	return fa
}

func (fa *fakeAgent) casts() []receivedCast {
	fa.mtx.Lock()
	defer fa.mtx.Unlock()
	return append([]receivedCast(nil), fa.received...)
}

func (fa *fakeAgent) waitCasts(c *check.C, n int) []receivedCast {
	for deadline := time.Now().Add(5 * time.Second); ; {
		if got := fa.casts(); len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			c.Fatalf("timed out waiting for %d casts, have %d", n, len(fa.casts()))
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *NotifierSuite) TestDeliveryOrderAndPath(c *check.C) {
	fa := newFakeAgent(c)
	defer fa.srv.Close()
	n := NewHTTPNotifier(ctxlog.TestLogger(c), prometheus.NewRegistry(), fa.port, 10)
	defer n.Stop()

	ctx := context.Background()
	n.Cast(ctx, fa.host, VerbInstanceAdded, castPayload{"loadbalancer": map[string]string{"id": "lb1"}})
	n.Cast(ctx, fa.host, VerbInstanceRemoved, castPayload{"loadbalancer": map[string]string{"id": "lb1"}})
	n.Cast(ctx, fa.host, VerbAgentUpdated, castPayload{"admin_state_up": true})

	got := fa.waitCasts(c, 3)
	c.Check(got[0].path, check.Equals, "/loadgrid/v1/cast/instance_added")
	c.Check(got[1].path, check.Equals, "/loadgrid/v1/cast/instance_removed")
	c.Check(got[2].path, check.Equals, "/loadgrid/v1/cast/agent_updated")
	c.Check(got[0].body["loadbalancer"].(map[string]interface{})["id"], check.Equals, "lb1")
}

func (s *NotifierSuite) TestQueueFullDrops(c *check.C) {
	fa := newFakeAgent(c)
	defer fa.srv.Close()
	fa.gate = make(chan struct{})
	reg := prometheus.NewRegistry()
	n := NewHTTPNotifier(ctxlog.TestLogger(c), reg, fa.port, 1)
	defer n.Stop()

	ctx := context.Background()
	// First cast is picked up by the drain goroutine and blocks in
	// the agent handler.
	n.Cast(ctx, fa.host, VerbCreateLoadBalancer, castPayload{"seq": 1})
	for deadline := time.Now().Add(5 * time.Second); len(n.queue) > 0; {
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for drain goroutine")
		}
		time.Sleep(time.Millisecond)
	}
	// Second fills the queue; third is dropped.
	n.Cast(ctx, fa.host, VerbCreateLoadBalancer, castPayload{"seq": 2})
	n.Cast(ctx, fa.host, VerbCreateLoadBalancer, castPayload{"seq": 3})
	close(fa.gate)

	got := fa.waitCasts(c, 2)
	c.Check(got, check.HasLen, 2)
	c.Check(got[0].body["seq"], check.Equals, float64(1))
	c.Check(got[1].body["seq"], check.Equals, float64(2))

	mfs, err := reg.Gather()
	c.Assert(err, check.IsNil)
	dropped := -1.0
	for _, mf := range mfs {
		if mf.GetName() == "loadgrid_driver_notifications_dropped_total" {
			dropped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	c.Check(dropped, check.Equals, 1.0)
}

func (s *NotifierSuite) TestUnreachableAgentDoesNotBlock(c *check.C) {
	// Casting to a host nobody listens on must not block the caller
	// or wedge the queue.
	n := NewHTTPNotifier(ctxlog.TestLogger(c), prometheus.NewRegistry(), 9, 10)
	defer n.Stop()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		n.Cast(ctx, "127.0.0.1", VerbDeleteLoadBalancer, castPayload{"loadbalancer": nil})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("Cast blocked")
	}
}
