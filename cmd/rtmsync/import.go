// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/rtmfile"
)

type importParams struct {
	ConfigParams
	cli.JSONOutput
	DryRun bool `flag:"dry-run,n" desc:"validate only, write nothing"`
}

type importResult struct {
	Files    []string `json:"files"`
	Entities int      `json:"entities"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

func (a *app) importCommand() *cli.Command {
	var params importParams

	return &cli.Command{
		Name:    "import",
		Summary: "Load epics, stories, tests and defects from files",
		Description: `Import RTM authoring files into the store.

Files are YAML (.yaml, .yml) or JSONC (.json, .jsonc: JSON with
comments and trailing commas) with top-level epics, user_stories,
tests and defects lists. Every file is validated first; all entities
from all files are then written in one transaction, so either the whole
import lands or none of it does. Entities replace stored ones with the
same identifier.`,
		Usage: "rtmsync import <file>... [flags]",
		Examples: []cli.Example{
			{Description: "Import the matrix", Command: "rtmsync import rtm.yaml"},
			{Description: "Check a file without importing", Command: "rtmsync import --dry-run defects.jsonc"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("import", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one file is required\n\nUsage: rtmsync import <file>...")
			}

			combined := &rtmfile.File{}
			for _, path := range args {
				file, err := rtmfile.ReadFile(path)
				if err != nil {
					return err
				}
				combined.Epics = append(combined.Epics, file.Epics...)
				combined.UserStories = append(combined.UserStories, file.UserStories...)
				combined.Tests = append(combined.Tests, file.Tests...)
				combined.Defects = append(combined.Defects, file.Defects...)
			}
			if err := combined.Validate(); err != nil {
				return fmt.Errorf("invalid RTM data:\n%w", err)
			}

			result := importResult{Files: args, Entities: combined.Len(), DryRun: params.DryRun}
			if !params.DryRun {
				s, err := a.open(params.ConfigParams, "import")
				if err != nil {
					return err
				}
				defer s.Close()

				previous, err := s.store.Commit(ctx, combined.Batch())
				if err != nil {
					return err
				}
				for _, prior := range previous {
					if prior.Existed() {
						result.Updated++
					} else {
						result.Created++
					}
				}
				s.logger.Info("imported RTM files", "files", len(args), "created", result.Created, "updated", result.Updated)
			}

			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			if params.DryRun {
				fmt.Fprintf(a.stdout, "%d entities valid; nothing written\n", result.Entities)
				return nil
			}
			fmt.Fprintf(a.stdout, "imported %d entities (%d new, %d replaced)\n", result.Entities, result.Created, result.Updated)
			return nil
		},
	}
}
