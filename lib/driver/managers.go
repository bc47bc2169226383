// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
)

// Listener, pool, member, and healthmonitor operations all follow the
// same shape: persist locally, resolve the owning agent through the
// resource's ancestry, cast. resourceKind captures the per-kind
// pieces; the create/update/delete templates below supply the shared
// orchestration.
type resourceKind[T any] struct {
	// name is the payload key and the suffix of the cast verbs
	// ("listener" yields create_listener etc.).
	name string

	id      func(res *T) string
	ownerID func(ctx context.Context, reg Registry, res *T) (string, error)
	create  func(ctx context.Context, reg Registry, res *T) error
	update  func(ctx context.Context, reg Registry, res T) error
	remove  func(ctx context.Context, reg Registry, id string) error
}

var listenerKind = resourceKind[loadgrid.Listener]{
	name: "listener",
	id:   func(l *loadgrid.Listener) string { return l.ID },
	ownerID: func(ctx context.Context, reg Registry, l *loadgrid.Listener) (string, error) {
		return l.LoadBalancerID, nil
	},
	create: func(ctx context.Context, reg Registry, l *loadgrid.Listener) error { return reg.CreateListener(ctx, l) },
	update: func(ctx context.Context, reg Registry, l loadgrid.Listener) error { return reg.UpdateListener(ctx, l) },
	remove: func(ctx context.Context, reg Registry, id string) error { return reg.DeleteListener(ctx, id) },
}

var poolKind = resourceKind[loadgrid.Pool]{
	name: "pool",
	id:   func(p *loadgrid.Pool) string { return p.ID },
	ownerID: func(ctx context.Context, reg Registry, p *loadgrid.Pool) (string, error) {
		l, err := reg.GetListener(ctx, p.ListenerID)
		if err != nil {
			return "", err
		}
		return l.LoadBalancerID, nil
	},
	create: func(ctx context.Context, reg Registry, p *loadgrid.Pool) error { return reg.CreatePool(ctx, p) },
	update: func(ctx context.Context, reg Registry, p loadgrid.Pool) error { return reg.UpdatePool(ctx, p) },
	remove: func(ctx context.Context, reg Registry, id string) error { return reg.DeletePool(ctx, id) },
}

var memberKind = resourceKind[loadgrid.Member]{
	name: "member",
	id:   func(m *loadgrid.Member) string { return m.ID },
	ownerID: func(ctx context.Context, reg Registry, m *loadgrid.Member) (string, error) {
		return poolOwner(ctx, reg, m.PoolID)
	},
	create: func(ctx context.Context, reg Registry, m *loadgrid.Member) error { return reg.CreateMember(ctx, m) },
	update: func(ctx context.Context, reg Registry, m loadgrid.Member) error { return reg.UpdateMember(ctx, m) },
	remove: func(ctx context.Context, reg Registry, id string) error { return reg.DeleteMember(ctx, id) },
}

var healthMonitorKind = resourceKind[loadgrid.HealthMonitor]{
	name: "healthmonitor",
	id:   func(hm *loadgrid.HealthMonitor) string { return hm.ID },
	ownerID: func(ctx context.Context, reg Registry, hm *loadgrid.HealthMonitor) (string, error) {
		return poolOwner(ctx, reg, hm.PoolID)
	},
	create: func(ctx context.Context, reg Registry, hm *loadgrid.HealthMonitor) error {
		return reg.CreateHealthMonitor(ctx, hm)
	},
	update: func(ctx context.Context, reg Registry, hm loadgrid.HealthMonitor) error {
		return reg.UpdateHealthMonitor(ctx, hm)
	},
	remove: func(ctx context.Context, reg Registry, id string) error { return reg.DeleteHealthMonitor(ctx, id) },
}

func poolOwner(ctx context.Context, reg Registry, poolID string) (string, error) {
	p, err := reg.GetPool(ctx, poolID)
	if err != nil {
		return "", err
	}
	l, err := reg.GetListener(ctx, p.ListenerID)
	if err != nil {
		return "", err
	}
	return l.LoadBalancerID, nil
}

// createResource persists the resource and casts create_{kind} to the
// agent hosting the parent loadbalancer. If the loadbalancer has no
// agent, the resource is still persisted and NoActiveAgentError is
// returned.
func createResource[T any](ctx context.Context, drv *Driver, kind resourceKind[T], res *T) error {
	if err := kind.create(ctx, drv.db, res); err != nil {
		return err
	}
	lbID, err := kind.ownerID(ctx, drv.db, res)
	if err != nil {
		return err
	}
	agent, err := drv.owningAgent(ctx, lbID)
	if err != nil {
		return err
	}
	drv.notifier.Cast(ctx, agent.Host, "create_"+kind.name, castPayload{
		kind.name: res,
	})
	return nil
}

// updateResource persists the new definition and casts update_{kind}
// carrying both the old and new snapshots.
func updateResource[T any](ctx context.Context, drv *Driver, kind resourceKind[T], old, upd T) error {
	if err := kind.update(ctx, drv.db, upd); err != nil {
		return err
	}
	lbID, err := kind.ownerID(ctx, drv.db, &upd)
	if err != nil {
		return err
	}
	agent, err := drv.owningAgent(ctx, lbID)
	if err != nil {
		return err
	}
	drv.notifier.Cast(ctx, agent.Host, "update_"+kind.name, castPayload{
		"old_" + kind.name: old,
		kind.name:          upd,
	})
	return nil
}

// deleteResource removes the resource from the registry, recomputes
// the parent loadbalancer's provisioning status, and casts
// delete_{kind}. The owning agent is resolved before the local delete
// (the ancestry rows are gone afterwards). As with loadbalancer
// deletion, the registry delete is not rolled back if no agent can be
// notified; NoActiveAgentError tells the caller the cast was skipped.
func deleteResource[T any](ctx context.Context, drv *Driver, kind resourceKind[T], res T) error {
	lbID, err := kind.ownerID(ctx, drv.db, &res)
	if err != nil {
		return err
	}
	agent, agentErr := drv.owningAgent(ctx, lbID)
	if err := kind.remove(ctx, drv.db, kind.id(&res)); err != nil {
		return err
	}
	if err := drv.db.UpdateProvisioningStatus(ctx, lbID); err != nil {
		drv.logger.WithField("LoadBalancerID", lbID).WithError(err).Warn("cannot update provisioning status after delete")
	}
	if agentErr != nil {
		return agentErr
	}
	drv.notifier.Cast(ctx, agent.Host, "delete_"+kind.name, castPayload{
		kind.name: res,
	})
	return nil
}

func (drv *Driver) CreateListener(ctx context.Context, l *loadgrid.Listener) error {
	drv.Start()
	return createResource(ctx, drv, listenerKind, l)
}

func (drv *Driver) UpdateListener(ctx context.Context, old, upd loadgrid.Listener) error {
	drv.Start()
	return updateResource(ctx, drv, listenerKind, old, upd)
}

func (drv *Driver) DeleteListener(ctx context.Context, l loadgrid.Listener) error {
	drv.Start()
	return deleteResource(ctx, drv, listenerKind, l)
}

func (drv *Driver) CreatePool(ctx context.Context, p *loadgrid.Pool) error {
	drv.Start()
	return createResource(ctx, drv, poolKind, p)
}

func (drv *Driver) UpdatePool(ctx context.Context, old, upd loadgrid.Pool) error {
	drv.Start()
	return updateResource(ctx, drv, poolKind, old, upd)
}

func (drv *Driver) DeletePool(ctx context.Context, p loadgrid.Pool) error {
	drv.Start()
	return deleteResource(ctx, drv, poolKind, p)
}

func (drv *Driver) CreateMember(ctx context.Context, m *loadgrid.Member) error {
	drv.Start()
	return createResource(ctx, drv, memberKind, m)
}

func (drv *Driver) UpdateMember(ctx context.Context, old, upd loadgrid.Member) error {
	drv.Start()
	return updateResource(ctx, drv, memberKind, old, upd)
}

func (drv *Driver) DeleteMember(ctx context.Context, m loadgrid.Member) error {
	drv.Start()
	return deleteResource(ctx, drv, memberKind, m)
}

func (drv *Driver) CreateHealthMonitor(ctx context.Context, hm *loadgrid.HealthMonitor) error {
	drv.Start()
	return createResource(ctx, drv, healthMonitorKind, hm)
}

func (drv *Driver) UpdateHealthMonitor(ctx context.Context, old, upd loadgrid.HealthMonitor) error {
	drv.Start()
	return updateResource(ctx, drv, healthMonitorKind, old, upd)
}

func (drv *Driver) DeleteHealthMonitor(ctx context.Context, hm loadgrid.HealthMonitor) error {
	drv.Start()
	return deleteResource(ctx, drv, healthMonitorKind, hm)
}
