// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package loadgrid

import (
	"fmt"
)

const DefaultConfigFile = "/etc/loadgrid/config.yml"

type Config struct {
	Clusters map[string]Cluster
}

// GetCluster returns the cluster config for the given cluster ID, or
// the default/only configured cluster if clusterID is "".
func (sc *Config) GetCluster(clusterID string) (*Cluster, error) {
	if clusterID == "" {
		if len(sc.Clusters) == 0 {
			return nil, fmt.Errorf("no clusters configured")
		} else if len(sc.Clusters) > 1 {
			return nil, fmt.Errorf("multiple clusters configured, cannot choose")
		} else {
			for id, cc := range sc.Clusters {
				cc.ClusterID = id
				return &cc, nil
			}
		}
	}
	if cc, ok := sc.Clusters[clusterID]; !ok {
		return nil, fmt.Errorf("cluster %q is not configured", clusterID)
	} else {
		cc.ClusterID = clusterID
		return &cc, nil
	}
}

type Cluster struct {
	ClusterID       string `json:"-"`
	ManagementToken string
	Services        Services
	SystemLogs      struct {
		LogLevel string
		Format   string
	}
	PostgreSQL PostgreSQL
	API        struct {
		RequestTimeout        Duration
		MaxConcurrentRequests int
	}
	Driver DriverConfig
}

// DriverConfig configures the agent driver: which device driver tag
// is pushed to agents, which placement policy is used, and how agent
// liveness monitoring behaves.
type DriverConfig struct {
	// Device driver the agents must use for instances created by
	// this control plane. Required; New fails without it.
	DeviceDriver string

	// Placement policy name ("chance", "roundrobin").
	SchedulerDriver string

	// Seconds between agent liveness polls. Zero disables the
	// monitor loop entirely (documented "off" configuration).
	MonitoringInterval Duration

	// An agent whose last heartbeat is older than this is
	// considered inactive.
	AgentDownTime Duration

	// Port on each agent host accepting cast notifications.
	AgentCallbackPort int

	// Maximum number of undelivered casts held in memory before
	// new casts are dropped (and logged).
	NotifyQueueSize int
}

type Services struct {
	Controller Service
}

type Service struct {
	InternalURLs map[URL]ServiceInstance
}

type ServiceInstance struct{}

type PostgreSQL struct {
	Connection     PostgreSQLConnection
	ConnectionPool int
}

type PostgreSQLConnection map[string]string

type ServiceName string

const (
	ServiceNameController ServiceName = "loadgrid-controller"
)

// Map returns all services as a name-to-config map.
func (svcs Services) Map() map[ServiceName]Service {
	return map[ServiceName]Service{
		ServiceNameController: svcs.Controller,
	}
}
