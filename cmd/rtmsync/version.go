// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/version"
)

func (a *app) versionCommand() *cli.Command {
	var params cli.JSONOutput

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(_ context.Context, _ []string) error {
			if done, err := params.EmitJSON(a.stdout, version.Current()); done {
				return err
			}
			fmt.Fprintf(a.stdout, "rtmsync %s\n", version.Full())
			return nil
		},
	}
}
