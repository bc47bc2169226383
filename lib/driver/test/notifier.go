// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package test

import (
	"context"
	"encoding/json"
	"sync"
)

// Cast is one recorded notification.
type Cast struct {
	Host    string
	Verb    string
	Payload map[string]interface{}
}

// Notifier records casts instead of delivering them. Payloads are
// round-tripped through JSON so tests inspect exactly what an agent
// would receive.
type Notifier struct {
	mtx   sync.Mutex
	casts []Cast
}

func (n *Notifier) Cast(ctx context.Context, host, verb string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		panic(err)
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.casts = append(n.casts, Cast{Host: host, Verb: verb, Payload: decoded})
}

// Casts returns all recorded casts in Cast order.
func (n *Notifier) Casts() []Cast {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]Cast(nil), n.casts...)
}

// CastsFor returns the recorded casts addressed to the given host, in
// Cast order.
func (n *Notifier) CastsFor(host string) []Cast {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	var out []Cast
	for _, c := range n.casts {
		if c.Host == host {
			out = append(out, c)
		}
	}
	return out
}

// Verbs returns the verbs of all recorded casts, in Cast order.
func (n *Notifier) Verbs() []string {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	var out []string
	for _, c := range n.casts {
		out = append(out, c.Verb)
	}
	return out
}

// Reset discards recorded casts.
func (n *Notifier) Reset() {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.casts = nil
}
