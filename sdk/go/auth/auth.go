// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"strings"
)

// Credentials are the tokens accompanying an incoming request.
type Credentials struct {
	Tokens []string
}

// CredentialsFromRequest returns the credentials in the given
// request's Authorization header ("Bearer ..." or the older "OAuth2
// ..." form).
func CredentialsFromRequest(r *http.Request) *Credentials {
	c := &Credentials{}
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		for _, prefix := range []string{"Bearer ", "OAuth2 "} {
			if strings.HasPrefix(hdr, prefix) {
				c.Tokens = append(c.Tokens, strings.TrimSpace(hdr[len(prefix):]))
			}
		}
	}
	return c
}
