// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package ctrlpg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

type agentRow struct {
	ID              string    `db:"id"`
	Host            string    `db:"host"`
	AgentType       string    `db:"agent_type"`
	AdminStateUp    bool      `db:"admin_state_up"`
	LastHeartbeatAt time.Time `db:"last_heartbeat_at"`
	IsActive        bool      `db:"is_active"`
}

func (row agentRow) toAgent() loadgrid.Agent {
	return loadgrid.Agent{
		ID:              row.ID,
		Host:            row.Host,
		AgentType:       row.AgentType,
		AdminStateUp:    row.AdminStateUp,
		LastHeartbeatAt: row.LastHeartbeatAt,
		IsActive:        row.IsActive,
	}
}

const agentColumns = `id, host, agent_type, admin_state_up, last_heartbeat_at,
	last_heartbeat_at > now() - make_interval(secs => $1) AS is_active`

func (r *Registry) ListAgents(ctx context.Context) ([]loadgrid.Agent, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []agentRow
	err = db.SelectContext(ctx, &rows,
		`SELECT `+agentColumns+` FROM agents ORDER BY id`,
		r.downTime.Seconds())
	if err != nil {
		return nil, err
	}
	agents := make([]loadgrid.Agent, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, row.toAgent())
	}
	return agents, nil
}

func (r *Registry) TouchAgent(ctx context.Context, agent loadgrid.Agent) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO agents (id, host, agent_type, admin_state_up, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			host = EXCLUDED.host,
			agent_type = EXCLUDED.agent_type,
			admin_state_up = EXCLUDED.admin_state_up,
			last_heartbeat_at = now()`,
		agent.ID, agent.Host, agent.AgentType, agent.AdminStateUp)
	return err
}

func (r *Registry) OwningAgent(ctx context.Context, loadBalancerID string) (*loadgrid.Agent, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var row agentRow
	err = db.GetContext(ctx, &row, `
		SELECT `+agentColumns+`
		FROM agents JOIN agent_assignments ON agents.id = agent_assignments.agent_id
		WHERE agent_assignments.loadbalancer_id = $2`,
		r.downTime.Seconds(), loadBalancerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	agent := row.toAgent()
	return &agent, nil
}

func (r *Registry) AssignLoadBalancer(ctx context.Context, loadBalancerID, agentID string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO agent_assignments (loadbalancer_id, agent_id)
		VALUES ($1, $2)
		ON CONFLICT (loadbalancer_id) DO UPDATE SET agent_id = EXCLUDED.agent_id`,
		loadBalancerID, agentID)
	return err
}

func (r *Registry) LoadBalancersOnAgent(ctx context.Context, agentID string) ([]loadgrid.LoadBalancer, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []loadBalancerRow
	err = db.SelectContext(ctx, &rows, `
		SELECT loadbalancers.*
		FROM loadbalancers JOIN agent_assignments ON loadbalancers.id = agent_assignments.loadbalancer_id
		WHERE agent_assignments.agent_id = $1
		ORDER BY loadbalancers.id`,
		agentID)
	if err != nil {
		return nil, err
	}
	lbs := make([]loadgrid.LoadBalancer, 0, len(rows))
	for _, row := range rows {
		lbs = append(lbs, row.toLoadBalancer())
	}
	return lbs, nil
}
