// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package ctrlpg implements the driver registry on PostgreSQL.
//
// Agent liveness is not stored: is_active is computed from heartbeat
// staleness at read time, so a stuck control plane never serves a
// frozen liveness view after it resumes.
package ctrlpg

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Registry implements driver.Registry on a PostgreSQL database. The
// connection is established lazily on first use.
type Registry struct {
	cluster  *loadgrid.Cluster
	logger   logrus.FieldLogger
	downTime time.Duration

	setupOnce sync.Once
	setupErr  error
	db        *sqlx.DB
}

func New(ctx context.Context, cluster *loadgrid.Cluster) *Registry {
	return &Registry{
		cluster:  cluster,
		logger:   ctxlog.FromContext(ctx),
		downTime: cluster.Driver.AgentDownTime.Duration(),
	}
}

// ConnectionString converts the config's key/value connection map
// into a libpq DSN. Keys are emitted in sorted order so the result is
// stable.
func ConnectionString(conn loadgrid.PostgreSQLConnection) string {
	var keys []string
	for k := range conn {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		v := conn[k]
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, fmt.Sprintf("%s='%s'", k, v))
	}
	return strings.Join(parts, " ")
}

func (r *Registry) getDB(ctx context.Context) (*sqlx.DB, error) {
	r.setupOnce.Do(func() {
		db, err := sqlx.Open("postgres", ConnectionString(r.cluster.PostgreSQL.Connection))
		if err != nil {
			r.setupErr = fmt.Errorf("postgresql open: %w", err)
			return
		}
		if max := r.cluster.PostgreSQL.ConnectionPool; max > 0 {
			db.SetMaxOpenConns(max)
		}
		if err := db.PingContext(ctx); err != nil {
			r.setupErr = fmt.Errorf("postgresql connect: %w", err)
			return
		}
		if err := setupSchema(ctx, db); err != nil {
			r.setupErr = fmt.Errorf("postgresql schema: %w", err)
			return
		}
		r.logger.Info("connected to postgresql")
		r.db = db
	})
	return r.db, r.setupErr
}

// Close closes the underlying connection pool, if one was opened.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id text PRIMARY KEY,
		host text NOT NULL,
		agent_type text NOT NULL DEFAULT '',
		admin_state_up boolean NOT NULL DEFAULT true,
		last_heartbeat_at timestamptz NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS loadbalancers (
		id text PRIMARY KEY,
		name text NOT NULL DEFAULT '',
		vip_address text NOT NULL DEFAULT '',
		admin_state_up boolean NOT NULL DEFAULT true,
		pinned_agent_id text NOT NULL DEFAULT '',
		provisioning_status text NOT NULL DEFAULT 'PENDING',
		operating_status text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now())`,
	`CREATE TABLE IF NOT EXISTS agent_assignments (
		loadbalancer_id text PRIMARY KEY REFERENCES loadbalancers (id) ON DELETE CASCADE,
		agent_id text NOT NULL REFERENCES agents (id))`,
	`CREATE INDEX IF NOT EXISTS agent_assignments_agent_id ON agent_assignments (agent_id)`,
	`CREATE TABLE IF NOT EXISTS listeners (
		id text PRIMARY KEY,
		loadbalancer_id text NOT NULL REFERENCES loadbalancers (id) ON DELETE CASCADE,
		name text NOT NULL DEFAULT '',
		protocol text NOT NULL DEFAULT '',
		protocol_port integer NOT NULL DEFAULT 0,
		admin_state_up boolean NOT NULL DEFAULT true,
		provisioning_status text NOT NULL DEFAULT 'PENDING')`,
	`CREATE TABLE IF NOT EXISTS pools (
		id text PRIMARY KEY,
		listener_id text NOT NULL REFERENCES listeners (id) ON DELETE CASCADE,
		name text NOT NULL DEFAULT '',
		lb_algorithm text NOT NULL DEFAULT '',
		protocol text NOT NULL DEFAULT '',
		admin_state_up boolean NOT NULL DEFAULT true,
		provisioning_status text NOT NULL DEFAULT 'PENDING')`,
	`CREATE TABLE IF NOT EXISTS members (
		id text PRIMARY KEY,
		pool_id text NOT NULL REFERENCES pools (id) ON DELETE CASCADE,
		address text NOT NULL DEFAULT '',
		protocol_port integer NOT NULL DEFAULT 0,
		weight integer NOT NULL DEFAULT 1,
		admin_state_up boolean NOT NULL DEFAULT true,
		provisioning_status text NOT NULL DEFAULT 'PENDING')`,
	`CREATE TABLE IF NOT EXISTS healthmonitors (
		id text PRIMARY KEY,
		pool_id text NOT NULL REFERENCES pools (id) ON DELETE CASCADE,
		type text NOT NULL DEFAULT '',
		delay integer NOT NULL DEFAULT 0,
		timeout integer NOT NULL DEFAULT 0,
		max_retries integer NOT NULL DEFAULT 0,
		admin_state_up boolean NOT NULL DEFAULT true,
		provisioning_status text NOT NULL DEFAULT 'PENDING')`,
}

func setupSchema(ctx context.Context, db *sqlx.DB) error {
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
