// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package health implements the authenticated "/_health/ping"
// endpoint the controller serves on its management address.
package health

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler is an http.Handler that responds to authenticated ping
// requests with JSON responses like {"health":"OK"} or
// {"health":"ERROR","error":"error text"}.
type Handler struct {
	// Authentication token. If empty, all requests will return 404.
	Token string

	// Route prefix, typically "/_health/".
	Prefix string

	// Check reports whether the service is able to do its job,
	// e.g., reach its database. If nil, ping always succeeds.
	Check func() error
}

var healthyBody = []byte(`{"health":"OK"}` + "\n")

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := h.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	if h.Token == "" {
		http.Error(w, "disabled", http.StatusNotFound)
		return
	}
	if r.URL.Path != prefix+"ping" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if ah := r.Header.Get("Authorization"); ah == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	} else if ah != "Bearer "+h.Token {
		http.Error(w, "authorization error", http.StatusForbidden)
		return
	}
	if h.Check != nil {
		if err := h.Check(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"health": "ERROR",
				"error":  err.Error(),
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(healthyBody)
}
