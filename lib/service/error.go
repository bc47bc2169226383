// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"net/http"

	"git.loadgrid.org/loadgrid.git/sdk/go/ctxlog"
	"git.loadgrid.org/loadgrid.git/sdk/go/httpserver"
	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorHandler returns a Handler that reports itself as unhealthy and
// responds 500 to all requests. It is used when a service cannot
// initialize (e.g., invalid configuration) but the failure should be
// reported through the normal health machinery instead of a crash
// loop.
func ErrorHandler(ctx context.Context, _ *loadgrid.Cluster, _ *prometheus.Registry, err error) Handler {
	ctxlog.FromContext(ctx).WithError(err).Error("service setup failed")
	return errorHandler{err: err}
}

type errorHandler struct {
	err error
}

func (h errorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpserver.Error(w, h.err.Error(), http.StatusInternalServerError)
}

func (h errorHandler) CheckHealth() error {
	return h.err
}

// Done returns a nil channel: the error state never resolves itself,
// the process must be restarted with a fixed configuration.
func (h errorHandler) Done() <-chan struct{} {
	return nil
}
