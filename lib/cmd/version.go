// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"regexp"
)

// version is set by the build script via -ldflags.
var version = "dev"

// Version is a RunFunc that prints the build version.
var Version versionCommand

type versionCommand struct{}

func (versionCommand) String() string {
	return version
}

func (versionCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = regexp.MustCompile(` -*version$`).ReplaceAllString(prog, "")
	fmt.Fprintf(stdout, "%s %s\n", prog, version)
	return 0
}
