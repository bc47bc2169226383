// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"os"

	"git.loadgrid.org/loadgrid.git/lib/cmd"
	"git.loadgrid.org/loadgrid.git/lib/ctrlpg"
	"git.loadgrid.org/loadgrid.git/lib/driver"
	"git.loadgrid.org/loadgrid.git/lib/service"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/prometheus/client_golang/prometheus"
)

var handler = cmd.Multi(map[string]cmd.RunFunc{
	"version":   cmd.Version.RunCommand,
	"-version":  cmd.Version.RunCommand,
	"--version": cmd.Version.RunCommand,

	"controller": service.Command(loadgrid.ServiceNameController, newController),
})

func newController(ctx context.Context, cluster *loadgrid.Cluster, reg *prometheus.Registry) service.Handler {
	db := ctrlpg.New(ctx, cluster)
	drv, err := driver.New(ctx, cluster, db, nil, nil, reg)
	if err != nil {
		return service.ErrorHandler(ctx, cluster, reg, err)
	}
	return drv
}

func main() {
	os.Exit(handler(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
