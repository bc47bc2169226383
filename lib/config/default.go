// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

// DefaultYAML is the compiled-in configuration, with "xxxxx" standing
// in for the cluster ID. Every key that Load accepts appears here;
// keys with no sensible default (like Driver.DeviceDriver) are
// deliberately absent so their absence can be detected.
var DefaultYAML = []byte(`
Clusters:
  xxxxx:
    ManagementToken: ""
    SystemLogs:
      LogLevel: info
      Format: json
    Services:
      Controller:
        InternalURLs: {}
    API:
      RequestTimeout: 5m
      MaxConcurrentRequests: 64
    PostgreSQL:
      ConnectionPool: 32
      Connection:
        client_encoding: utf8
    Driver:
      SchedulerDriver: chance
      MonitoringInterval: 10s
      AgentDownTime: 75s
      AgentCallbackPort: 9445
      NotifyQueueSize: 1000
`)
