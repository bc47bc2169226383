// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package config loads the site configuration file.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"git.loadgrid.org/loadgrid.git/sdk/go/loadgrid"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// Loader reads the site config file, applies compiled-in defaults for
// each cluster that appears in it, and returns the resulting
// loadgrid.Config.
type Loader struct {
	Stdin  io.Reader
	Logger logrus.FieldLogger
	Path   string

	configdata []byte
}

func NewLoader(stdin io.Reader, logger logrus.FieldLogger) *Loader {
	ldr := &Loader{Stdin: stdin, Logger: logger}
	ldr.Path = loadgrid.DefaultConfigFile
	return ldr
}

// SetupFlags configures a flagset so arguments like -config X can be
// used to change the loader's Path.
func (ldr *Loader) SetupFlags(flagset *flag.FlagSet) {
	flagset.StringVar(&ldr.Path, "config", ldr.Path, "Site configuration `file`")
}

// Load reads the config file (or Stdin, if Path is "-"), overlays it
// on the compiled-in defaults, and returns the resulting config.
//
// Defaults are applied before the file contents, so an explicit zero
// in the file (e.g., "MonitoringInterval: 0s") is preserved rather
// than being mistaken for an unset field.
func (ldr *Loader) Load() (*loadgrid.Config, error) {
	if ldr.configdata == nil {
		buf, err := ldr.loadBytes()
		if err != nil {
			return nil, err
		}
		ldr.configdata = buf
	}

	// Load the config into a dummy map to get the cluster ID
	// keys, discarding the values; then set up defaults for each
	// cluster ID; then load the real config on top of the
	// defaults.
	var dummy struct {
		Clusters map[string]struct{}
	}
	err := yaml.Unmarshal(ldr.configdata, &dummy)
	if err != nil {
		return nil, err
	}
	if len(dummy.Clusters) == 0 {
		return nil, errors.New("config does not define any clusters")
	}

	var cfg loadgrid.Config
	for id := range dummy.Clusters {
		err = yaml.Unmarshal(bytes.Replace(DefaultYAML, []byte("xxxxx"), []byte(id), -1), &cfg)
		if err != nil {
			return nil, fmt.Errorf("loading defaults for %s: %s", id, err)
		}
	}
	err = yaml.Unmarshal(ldr.configdata, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (ldr *Loader) loadBytes() ([]byte, error) {
	if ldr.Path == "-" {
		return io.ReadAll(ldr.Stdin)
	}
	f, err := os.Open(ldr.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
