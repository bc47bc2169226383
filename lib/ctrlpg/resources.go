// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package ctrlpg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"git.loadgrid.org/loadgrid.git/lib/driver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/google/uuid"
)

type loadBalancerRow struct {
	ID                 string    `db:"id"`
	Name               string    `db:"name"`
	VIPAddress         string    `db:"vip_address"`
	AdminStateUp       bool      `db:"admin_state_up"`
	PinnedAgentID      string    `db:"pinned_agent_id"`
	ProvisioningStatus string    `db:"provisioning_status"`
	OperatingStatus    string    `db:"operating_status"`
	CreatedAt          time.Time `db:"created_at"`
}

func (row loadBalancerRow) toLoadBalancer() loadgrid.LoadBalancer {
	return loadgrid.LoadBalancer{
		ID:                 row.ID,
		Name:               row.Name,
		VIPAddress:         row.VIPAddress,
		AdminStateUp:       row.AdminStateUp,
		PinnedAgentID:      row.PinnedAgentID,
		ProvisioningStatus: loadgrid.ProvisioningStatus(row.ProvisioningStatus),
		OperatingStatus:    row.OperatingStatus,
		CreatedAt:          row.CreatedAt,
	}
}

// checkAffected maps an update/delete that touched no rows to
// ErrNotFound.
func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return driver.ErrNotFound
	}
	return err
}

func (r *Registry) CreateLoadBalancer(ctx context.Context, lb *loadgrid.LoadBalancer) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if lb.ID == "" {
		lb.ID = uuid.New().String()
	}
	if lb.ProvisioningStatus == "" {
		lb.ProvisioningStatus = loadgrid.ProvisioningStatusPending
	}
	lb.CreatedAt = time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO loadbalancers
			(id, name, vip_address, admin_state_up, pinned_agent_id, provisioning_status, operating_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		lb.ID, lb.Name, lb.VIPAddress, lb.AdminStateUp, lb.PinnedAgentID,
		string(lb.ProvisioningStatus), lb.OperatingStatus, lb.CreatedAt)
	return err
}

func (r *Registry) GetLoadBalancer(ctx context.Context, id string) (loadgrid.LoadBalancer, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return loadgrid.LoadBalancer{}, err
	}
	var row loadBalancerRow
	err = db.GetContext(ctx, &row, `SELECT * FROM loadbalancers WHERE id = $1`, id)
	if err != nil {
		return loadgrid.LoadBalancer{}, notFound(err)
	}
	return row.toLoadBalancer(), nil
}

func (r *Registry) UpdateLoadBalancer(ctx context.Context, lb loadgrid.LoadBalancer) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE loadbalancers SET
			name = $2,
			vip_address = $3,
			admin_state_up = $4,
			pinned_agent_id = $5,
			provisioning_status = $6,
			operating_status = $7
		WHERE id = $1`,
		lb.ID, lb.Name, lb.VIPAddress, lb.AdminStateUp, lb.PinnedAgentID,
		string(lb.ProvisioningStatus), lb.OperatingStatus))
}

func (r *Registry) DeleteLoadBalancer(ctx context.Context, id string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `DELETE FROM loadbalancers WHERE id = $1`, id))
}

func (r *Registry) SetLoadBalancerStatus(ctx context.Context, id string, provisioning loadgrid.ProvisioningStatus, operating string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE loadbalancers SET provisioning_status = $2, operating_status = $3
		WHERE id = $1`,
		id, string(provisioning), operating))
}

// UpdateProvisioningStatus recomputes the loadbalancer's derived
// status: ERROR if any remaining sub-resource is in ERROR, otherwise
// ACTIVE.
func (r *Registry) UpdateProvisioningStatus(ctx context.Context, loadBalancerID string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE loadbalancers SET provisioning_status = CASE WHEN EXISTS (
			SELECT 1 FROM listeners
				WHERE listeners.loadbalancer_id = loadbalancers.id
				AND listeners.provisioning_status = 'ERROR'
			UNION
			SELECT 1 FROM pools JOIN listeners ON pools.listener_id = listeners.id
				WHERE listeners.loadbalancer_id = loadbalancers.id
				AND pools.provisioning_status = 'ERROR'
			UNION
			SELECT 1 FROM members
				JOIN pools ON members.pool_id = pools.id
				JOIN listeners ON pools.listener_id = listeners.id
				WHERE listeners.loadbalancer_id = loadbalancers.id
				AND members.provisioning_status = 'ERROR'
			UNION
			SELECT 1 FROM healthmonitors
				JOIN pools ON healthmonitors.pool_id = pools.id
				JOIN listeners ON pools.listener_id = listeners.id
				WHERE listeners.loadbalancer_id = loadbalancers.id
				AND healthmonitors.provisioning_status = 'ERROR'
		) THEN 'ERROR' ELSE 'ACTIVE' END
		WHERE id = $1`,
		loadBalancerID))
}

type listenerRow struct {
	ID                 string `db:"id"`
	LoadBalancerID     string `db:"loadbalancer_id"`
	Name               string `db:"name"`
	Protocol           string `db:"protocol"`
	ProtocolPort       int    `db:"protocol_port"`
	AdminStateUp       bool   `db:"admin_state_up"`
	ProvisioningStatus string `db:"provisioning_status"`
}

func (r *Registry) CreateListener(ctx context.Context, l *loadgrid.Listener) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = loadgrid.ProvisioningStatusPending
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO listeners
			(id, loadbalancer_id, name, protocol, protocol_port, admin_state_up, provisioning_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.LoadBalancerID, l.Name, l.Protocol, l.ProtocolPort, l.AdminStateUp, string(l.Status))
	return err
}

func (r *Registry) GetListener(ctx context.Context, id string) (loadgrid.Listener, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return loadgrid.Listener{}, err
	}
	var row listenerRow
	err = db.GetContext(ctx, &row, `SELECT * FROM listeners WHERE id = $1`, id)
	if err != nil {
		return loadgrid.Listener{}, notFound(err)
	}
	return loadgrid.Listener{
		ID:             row.ID,
		LoadBalancerID: row.LoadBalancerID,
		Name:           row.Name,
		Protocol:       row.Protocol,
		ProtocolPort:   row.ProtocolPort,
		AdminStateUp:   row.AdminStateUp,
		Status:         loadgrid.ProvisioningStatus(row.ProvisioningStatus),
	}, nil
}

func (r *Registry) UpdateListener(ctx context.Context, l loadgrid.Listener) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE listeners SET
			name = $2, protocol = $3, protocol_port = $4,
			admin_state_up = $5, provisioning_status = $6
		WHERE id = $1`,
		l.ID, l.Name, l.Protocol, l.ProtocolPort, l.AdminStateUp, string(l.Status)))
}

func (r *Registry) DeleteListener(ctx context.Context, id string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `DELETE FROM listeners WHERE id = $1`, id))
}

type poolRow struct {
	ID                 string `db:"id"`
	ListenerID         string `db:"listener_id"`
	Name               string `db:"name"`
	LBAlgorithm        string `db:"lb_algorithm"`
	Protocol           string `db:"protocol"`
	AdminStateUp       bool   `db:"admin_state_up"`
	ProvisioningStatus string `db:"provisioning_status"`
}

func (r *Registry) CreatePool(ctx context.Context, p *loadgrid.Pool) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = loadgrid.ProvisioningStatusPending
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO pools
			(id, listener_id, name, lb_algorithm, protocol, admin_state_up, provisioning_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ListenerID, p.Name, p.LBAlgorithm, p.Protocol, p.AdminStateUp, string(p.Status))
	return err
}

func (r *Registry) GetPool(ctx context.Context, id string) (loadgrid.Pool, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return loadgrid.Pool{}, err
	}
	var row poolRow
	err = db.GetContext(ctx, &row, `SELECT * FROM pools WHERE id = $1`, id)
	if err != nil {
		return loadgrid.Pool{}, notFound(err)
	}
	return loadgrid.Pool{
		ID:           row.ID,
		ListenerID:   row.ListenerID,
		Name:         row.Name,
		LBAlgorithm:  row.LBAlgorithm,
		Protocol:     row.Protocol,
		AdminStateUp: row.AdminStateUp,
		Status:       loadgrid.ProvisioningStatus(row.ProvisioningStatus),
	}, nil
}

func (r *Registry) UpdatePool(ctx context.Context, p loadgrid.Pool) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE pools SET
			name = $2, lb_algorithm = $3, protocol = $4,
			admin_state_up = $5, provisioning_status = $6
		WHERE id = $1`,
		p.ID, p.Name, p.LBAlgorithm, p.Protocol, p.AdminStateUp, string(p.Status)))
}

func (r *Registry) DeletePool(ctx context.Context, id string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `DELETE FROM pools WHERE id = $1`, id))
}

type memberRow struct {
	ID                 string `db:"id"`
	PoolID             string `db:"pool_id"`
	Address            string `db:"address"`
	ProtocolPort       int    `db:"protocol_port"`
	Weight             int    `db:"weight"`
	AdminStateUp       bool   `db:"admin_state_up"`
	ProvisioningStatus string `db:"provisioning_status"`
}

func (r *Registry) CreateMember(ctx context.Context, m *loadgrid.Member) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = loadgrid.ProvisioningStatusPending
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO members
			(id, pool_id, address, protocol_port, weight, admin_state_up, provisioning_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.PoolID, m.Address, m.ProtocolPort, m.Weight, m.AdminStateUp, string(m.Status))
	return err
}

func (r *Registry) GetMember(ctx context.Context, id string) (loadgrid.Member, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return loadgrid.Member{}, err
	}
	var row memberRow
	err = db.GetContext(ctx, &row, `SELECT * FROM members WHERE id = $1`, id)
	if err != nil {
		return loadgrid.Member{}, notFound(err)
	}
	return loadgrid.Member{
		ID:           row.ID,
		PoolID:       row.PoolID,
		Address:      row.Address,
		ProtocolPort: row.ProtocolPort,
		Weight:       row.Weight,
		AdminStateUp: row.AdminStateUp,
		Status:       loadgrid.ProvisioningStatus(row.ProvisioningStatus),
	}, nil
}

func (r *Registry) UpdateMember(ctx context.Context, m loadgrid.Member) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE members SET
			address = $2, protocol_port = $3, weight = $4,
			admin_state_up = $5, provisioning_status = $6
		WHERE id = $1`,
		m.ID, m.Address, m.ProtocolPort, m.Weight, m.AdminStateUp, string(m.Status)))
}

func (r *Registry) DeleteMember(ctx context.Context, id string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id))
}

type healthMonitorRow struct {
	ID                 string `db:"id"`
	PoolID             string `db:"pool_id"`
	Type               string `db:"type"`
	Delay              int    `db:"delay"`
	Timeout            int    `db:"timeout"`
	MaxRetries         int    `db:"max_retries"`
	AdminStateUp       bool   `db:"admin_state_up"`
	ProvisioningStatus string `db:"provisioning_status"`
}

func (r *Registry) CreateHealthMonitor(ctx context.Context, hm *loadgrid.HealthMonitor) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if hm.ID == "" {
		hm.ID = uuid.New().String()
	}
	if hm.Status == "" {
		hm.Status = loadgrid.ProvisioningStatusPending
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO healthmonitors
			(id, pool_id, type, delay, timeout, max_retries, admin_state_up, provisioning_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		hm.ID, hm.PoolID, hm.Type, hm.Delay, hm.Timeout, hm.MaxRetries, hm.AdminStateUp, string(hm.Status))
	return err
}

func (r *Registry) GetHealthMonitor(ctx context.Context, id string) (loadgrid.HealthMonitor, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return loadgrid.HealthMonitor{}, err
	}
	var row healthMonitorRow
	err = db.GetContext(ctx, &row, `SELECT * FROM healthmonitors WHERE id = $1`, id)
	if err != nil {
		return loadgrid.HealthMonitor{}, notFound(err)
	}
	return loadgrid.HealthMonitor{
		ID:           row.ID,
		PoolID:       row.PoolID,
		Type:         row.Type,
		Delay:        row.Delay,
		Timeout:      row.Timeout,
		MaxRetries:   row.MaxRetries,
		AdminStateUp: row.AdminStateUp,
		Status:       loadgrid.ProvisioningStatus(row.ProvisioningStatus),
	}, nil
}

func (r *Registry) UpdateHealthMonitor(ctx context.Context, hm loadgrid.HealthMonitor) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `
		UPDATE healthmonitors SET
			type = $2, delay = $3, timeout = $4, max_retries = $5,
			admin_state_up = $6, provisioning_status = $7
		WHERE id = $1`,
		hm.ID, hm.Type, hm.Delay, hm.Timeout, hm.MaxRetries, hm.AdminStateUp, string(hm.Status)))
}

func (r *Registry) DeleteHealthMonitor(ctx context.Context, id string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return checkAffected(db.ExecContext(ctx, `DELETE FROM healthmonitors WHERE id = $1`, id))
}
