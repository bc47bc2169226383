// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&MonitorSuite{})

type MonitorSuite struct{}

// rosterStub implements just enough of Registry for the monitor.
type rosterStub struct {
	Registry
	mtx    sync.Mutex
	agents []loadgrid.Agent
	err    error
}

func (s *rosterStub) ListAgents(ctx context.Context) ([]loadgrid.Agent, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]loadgrid.Agent(nil), s.agents...), nil
}

func (s *rosterStub) set(agents ...loadgrid.Agent) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.agents = agents
}

func (s *rosterStub) setErr(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.err = err
}

type downRecorder struct {
	ch chan loadgrid.Agent
}

func newDownRecorder() *downRecorder {
	return &downRecorder{ch: make(chan loadgrid.Agent, 100)}
}

func (r *downRecorder) onDown(ctx context.Context, agent loadgrid.Agent) {
	r.ch <- agent
}

func (r *downRecorder) wait(c *check.C) loadgrid.Agent {
	select {
	case agent := <-r.ch:
		return agent
	case <-time.After(5 * time.Second):
		c.Fatal("timed out waiting for down notification")
		return loadgrid.Agent{}
	}
}

func (r *downRecorder) expectNone(c *check.C, d time.Duration) {
	select {
	case agent := <-r.ch:
		c.Fatalf("unexpected down notification for %s", agent.ID)
	case <-time.After(d):
	}
}

func (s *MonitorSuite) newRunning(c *check.C, roster *rosterStub, rec *downRecorder) *monitor {
	m := newMonitor(ctxlog.TestLogger(c), roster, nil, time.Millisecond, rec.onDown)
	m.Start(context.Background())
	return m
}

func (s *MonitorSuite) TestDownEdgeFiresOnce(c *check.C) {
	roster := &rosterStub{}
	roster.set(loadgrid.Agent{ID: "a1", Host: "h1", IsActive: true})
	rec := newDownRecorder()
	m := s.newRunning(c, roster, rec)
	defer m.Stop()

	// No notification while the agent stays up.
	rec.expectNone(c, 20*time.Millisecond)

	roster.set(loadgrid.Agent{ID: "a1", Host: "h1", IsActive: false})
	down := rec.wait(c)
	c.Check(down.ID, check.Equals, "a1")

	// The edge fired exactly once; staying down produces nothing
	// further.
	rec.expectNone(c, 20*time.Millisecond)
}

func (s *MonitorSuite) TestFlapFiresPerEdge(c *check.C) {
	roster := &rosterStub{}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: true})
	rec := newDownRecorder()
	m := s.newRunning(c, roster, rec)
	defer m.Stop()

	for deadline := time.Now().Add(5 * time.Second); len(m.ActiveAgents()) == 0; {
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for first poll")
		}
		time.Sleep(time.Millisecond)
	}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: false})
	rec.wait(c)
	roster.set(loadgrid.Agent{ID: "a1", IsActive: true})
	// Wait for the monitor to see the recovery before failing it
	// again.
	for deadline := time.Now().Add(5 * time.Second); len(m.ActiveAgents()) == 0; {
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for recovery")
		}
		time.Sleep(time.Millisecond)
	}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: false})
	rec.wait(c)
}

func (s *MonitorSuite) TestInitiallyDownAgentIsQuiet(c *check.C) {
	// An agent that is already down when monitoring starts must not
	// trigger a failover storm on startup.
	roster := &rosterStub{}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: false})
	rec := newDownRecorder()
	m := s.newRunning(c, roster, rec)
	defer m.Stop()
	rec.expectNone(c, 30*time.Millisecond)
	c.Check(m.ActiveAgents(), check.HasLen, 0)
}

func (s *MonitorSuite) TestPollErrorSkipsCycle(c *check.C) {
	roster := &rosterStub{}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: true})
	rec := newDownRecorder()
	m := s.newRunning(c, roster, rec)
	defer m.Stop()

	for deadline := time.Now().Add(5 * time.Second); len(m.ActiveAgents()) == 0; {
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for first poll")
		}
		time.Sleep(time.Millisecond)
	}
	roster.setErr(errors.New("database is down"))
	rec.expectNone(c, 30*time.Millisecond)

	// When polling recovers, state machine edges resume.
	roster.setErr(nil)
	roster.set(loadgrid.Agent{ID: "a1", IsActive: false})
	down := rec.wait(c)
	c.Check(down.ID, check.Equals, "a1")
}

func (s *MonitorSuite) TestDisabled(c *check.C) {
	roster := &rosterStub{}
	roster.set(loadgrid.Agent{ID: "a1", IsActive: true})
	rec := newDownRecorder()
	m := newMonitor(ctxlog.TestLogger(c), roster, nil, 0, rec.onDown)
	m.Start(context.Background())
	roster.set(loadgrid.Agent{ID: "a1", IsActive: false})
	rec.expectNone(c, 30*time.Millisecond)
	m.Stop()
}

func (s *MonitorSuite) TestActiveAgentsSorted(c *check.C) {
	roster := &rosterStub{}
	roster.set(
		loadgrid.Agent{ID: "a2", IsActive: true},
		loadgrid.Agent{ID: "a1", IsActive: true},
		loadgrid.Agent{ID: "a3", IsActive: false},
	)
	rec := newDownRecorder()
	m := s.newRunning(c, roster, rec)
	defer m.Stop()
	for deadline := time.Now().Add(5 * time.Second); len(m.ActiveAgents()) < 2; {
		if time.Now().After(deadline) {
			c.Fatal("timed out waiting for poll")
		}
		time.Sleep(time.Millisecond)
	}
	c.Check(m.ActiveAgents(), check.DeepEquals, []string{"a1", "a2"})
}
