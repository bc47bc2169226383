// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package loadgrid

import "net/url"

// URL is a url.URL that is usable as a map key in YAML/JSON configs.
type URL url.URL

// UnmarshalText implements encoding.TextUnmarshaler, so URL can be
// used as a map key in configuration files.
func (su *URL) UnmarshalText(text []byte) error {
	u, err := url.Parse(string(text))
	if err == nil {
		*su = URL(*u)
		if su.Path == "" && su.Host != "" {
			// Refuse to accept URLs that cannot be
			// reconstructed exactly from String().
			su.Path = "/"
		}
	}
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (su URL) MarshalText() ([]byte, error) {
	return []byte(su.String()), nil
}

func (su URL) String() string {
	return (*url.URL)(&su).String()
}
