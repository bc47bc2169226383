// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package driver

import (
	"context"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/sirupsen/logrus"
)

// RescheduleAgent moves every loadbalancer off the given (presumed
// failed) agent. Each loadbalancer is handled independently: one that
// cannot be moved (no eligible agent, pinned, or a registry error) is
// logged and skipped, and the rest are still attempted. Repeating the
// call is safe: loadbalancers already moved keep their new owner.
//
// For each successful move, the new agent is notified with
// instance_added strictly before the failed agent is notified with
// instance_removed, so an agent observing both casts never concludes
// the loadbalancer is orphaned.
func (drv *Driver) RescheduleAgent(ctx context.Context, failed loadgrid.Agent) {
	drv.Start()
	lbs, err := drv.db.LoadBalancersOnAgent(ctx, failed.ID)
	if err != nil {
		drv.logger.WithField("AgentID", failed.ID).WithError(err).Warn("cannot list loadbalancers on failed agent")
		return
	}
	for _, lb := range lbs {
		logger := drv.logger.WithFields(logrus.Fields{
			"LoadBalancerID": lb.ID,
			"FailedAgentID":  failed.ID,
		})
		newAgent, err := drv.policy.Reschedule(ctx, drv.db, lb.ID, drv.deviceDriver)
		if err != nil {
			drv.mRescheduleFailures.Inc()
			logger.WithError(err).Warn("reschedule failed")
			continue
		}
		if newAgent == nil {
			drv.mRescheduleFailures.Inc()
			logger.Warn("no eligible agent found for loadbalancer")
			continue
		}
		if newAgent.ID == failed.ID {
			// Policy kept the assignment (agent recovered
			// between the down edge and this call). Nothing to
			// notify.
			continue
		}
		drv.mReschedules.Inc()
		logger.WithField("NewAgentID", newAgent.ID).Info("rescheduled loadbalancer")
		drv.notifier.Cast(ctx, newAgent.Host, VerbInstanceAdded, castPayload{
			"loadbalancer": lb,
			"driver_name":  drv.deviceDriver,
		})
		drv.notifier.Cast(ctx, failed.Host, VerbInstanceRemoved, castPayload{
			"loadbalancer": lb,
		})
	}
}
