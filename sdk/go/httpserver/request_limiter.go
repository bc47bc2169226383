// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"sync"
)

// RequestLimiter wraps an http.Handler, limiting the number of
// concurrent requests being handled by the wrapped Handler. Requests
// that arrive when the handler is already at the limit are rejected
// with 503.
type RequestLimiter struct {
	Handler http.Handler

	// Maximum number of requests being handled at once. Zero means
	// no limit.
	MaxConcurrent int

	setupOnce sync.Once
	sem       chan struct{}
}

func (rl *RequestLimiter) setup() {
	if rl.MaxConcurrent > 0 {
		rl.sem = make(chan struct{}, rl.MaxConcurrent)
	}
}

func (rl *RequestLimiter) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	rl.setupOnce.Do(rl.setup)
	if rl.sem == nil {
		rl.Handler.ServeHTTP(resp, req)
		return
	}
	select {
	case rl.sem <- struct{}{}:
		defer func() { <-rl.sem }()
		rl.Handler.ServeHTTP(resp, req)
	default:
		resp.WriteHeader(http.StatusServiceUnavailable)
	}
}
