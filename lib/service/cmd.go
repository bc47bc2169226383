// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package service provides a cmd.RunFunc that brings up a system
// service: load config, set up logging, listen on the configured
// address, and serve until the handler says it is done.
package service

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"git.loadgrid.org/loadgrid.git/lib/cmd"
	"git.loadgrid.org/loadgrid.git/lib/config"
	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"git.loadgrid.org/loadgrid.git/sdk/go/httpserver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Handler is the interface a service implementation must satisfy to
// be run by Command.
type Handler interface {
	http.Handler
	// CheckHealth returns nil if the service is healthy enough to
	// start accepting requests.
	CheckHealth() error
	// Done returns a channel that closes when the service should
	// shut down.
	Done() <-chan struct{}
}

// NewHandlerFunc creates a Handler for the given cluster. Component
// metrics should be registered on reg.
type NewHandlerFunc func(ctx context.Context, cluster *loadgrid.Cluster, reg *prometheus.Registry) Handler

type command struct {
	newHandler NewHandlerFunc
	svcName    loadgrid.ServiceName
	ctx        context.Context // enables tests to shut down service; no public API yet
}

// Command returns a cmd.RunFunc that loads config and runs the given
// service.
func Command(svcName loadgrid.ServiceName, newHandler NewHandlerFunc) cmd.RunFunc {
	return (&command{
		newHandler: newHandler,
		svcName:    svcName,
		ctx:        context.Background(),
	}).Run
}

func (c *command) Run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var log logrus.FieldLogger = ctxlog.New(stderr, "json", "info")

	var err error
	defer func() {
		if err != nil {
			log.WithError(err).Error("exiting")
		}
	}()

	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	loader := config.NewLoader(stdin, log)
	loader.SetupFlags(flags)
	versionFlag := flags.Bool("version", false, "Write version information to stdout and exit 0")
	clusterID := flags.String("cluster-id", "", "Cluster `id` to use from the config file (if more than one is defined)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *versionFlag {
		return cmd.Version.RunCommand(prog, args, stdin, stdout, stderr)
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	cluster, err := cfg.GetCluster(*clusterID)
	if err != nil {
		return 1
	}

	// Now that we've read the config, replace the generic logger
	// with one configured per SystemLogs.
	log = ctxlog.New(stderr, cluster.SystemLogs.Format, cluster.SystemLogs.LogLevel).WithFields(logrus.Fields{
		"ClusterID": cluster.ClusterID,
		"PID":       os.Getpid(),
	})
	ctx := ctxlog.Context(c.ctx, log)

	listenURL, err := getListenAddr(cluster.Services, c.svcName)
	if err != nil {
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "loadgrid",
		Name:      "version_running",
		Help:      "Indicated version is running.",
		ConstLabels: prometheus.Labels{
			"version": cmd.Version.String(),
		},
	}, func() float64 { return 1 }))

	handler := c.newHandler(ctx, cluster, reg)
	if err = handler.CheckHealth(); err != nil {
		return 1
	}

	var h http.Handler = handler
	if timeout := cluster.API.RequestTimeout.Duration(); timeout > 0 {
		h = http.TimeoutHandler(h, timeout, "")
	}
	h = &httpserver.RequestLimiter{Handler: h, MaxConcurrent: cluster.API.MaxConcurrentRequests}
	srv := &httpserver.Server{
		Server: http.Server{
			Handler: httpserver.LogRequests(log, h),
		},
		Addr: listenURL.Host,
	}
	err = srv.Start()
	if err != nil {
		return 1
	}
	log.WithFields(logrus.Fields{
		"URL":     listenURL.String(),
		"Listen":  srv.Addr,
		"Service": c.svcName,
		"Version": cmd.Version.String(),
	}).Info("listening")
	if _, err2 := daemon.SdNotify(false, "READY=1"); err2 != nil {
		log.WithError(err2).Errorf("error notifying init daemon")
	}
	go func() {
		<-handler.Done()
		srv.Close()
	}()
	err = srv.Wait()
	if err != nil {
		return 1
	}
	return 0
}

func getListenAddr(svcs loadgrid.Services, prog loadgrid.ServiceName) (loadgrid.URL, error) {
	svc, ok := svcs.Map()[prog]
	if !ok {
		return loadgrid.URL{}, fmt.Errorf("unknown service name %q", prog)
	}
	for url := range svc.InternalURLs {
		// For now, use the first one. TODO: Support multiple
		// InternalURLs per service, and use LOADGRID_SERVICE_URL
		// to pick the right one for this process.
		return url, nil
	}
	return loadgrid.URL{}, fmt.Errorf("configuration does not enable the %s service on this host", prog)
}
