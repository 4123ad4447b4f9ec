// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "rtmsync",
		Description: `rtmsync: requirements traceability matrix synchronizer.

Keeps epics, user stories, tests and defects in a local store, mirrors
epics, stories and defects as GitHub issues, and labels every issue by
rule (priority, epic, component, release, GDPR, status).`,
		Stderr: a.stderr,
		Subcommands: []*cli.Command{
			a.syncCommand(),
			a.importCommand(),
			a.reportCommand(),
			a.labelsCommand(),
			a.statusCommand(),
			a.versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Load the matrix from an authoring file",
				Command:     "rtmsync import rtm.yaml",
			},
			{
				Description: "Create the labels the rules can produce",
				Command:     "rtmsync labels bootstrap",
			},
			{
				Description: "Run one reconciliation cycle",
				Command:     "rtmsync sync",
			},
			{
				Description: "Keep syncing every 15 minutes until interrupted",
				Command:     "rtmsync sync --interval 15m",
			},
		},
	}
}
