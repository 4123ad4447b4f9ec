// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/rtmsync"
)

func (a *app) labelsCommand() *cli.Command {
	return &cli.Command{
		Name:    "labels",
		Summary: "Manage the label vocabulary and preview rule results",
		Description: `Label commands.

The rules only ever apply labels that exist in the repository. Run
"labels bootstrap" once per repository, and again after adding epics or
releases, to create the labels the rules can produce.`,
		Subcommands: []*cli.Command{
			a.labelsBootstrapCommand(),
			a.labelsEvaluateCommand(),
		},
	}
}

type bootstrapParams struct {
	ConfigParams
	cli.JSONOutput
	DryRun bool `flag:"dry-run,n" desc:"list the missing labels without creating them"`
}

func (a *app) labelsBootstrapCommand() *cli.Command {
	var params bootstrapParams

	return &cli.Command{
		Name:    "bootstrap",
		Summary: "Create the canonical labels missing from the repository",
		Description: `Create every label the rules can produce that the repository lacks:
priority/*, status/*, component/*, gdpr/*, release/MVP,
release/unscheduled, one release label per release in the store, one
epic label per epic, and needs-triage. Existing labels are matched
case-insensitively and left untouched.`,
		Usage: "rtmsync labels bootstrap [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("labels bootstrap", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			s, err := a.open(params.ConfigParams, "labels/bootstrap")
			if err != nil {
				return err
			}
			defer s.Close()
			syncer, err := a.syncer(s, nil)
			if err != nil {
				return err
			}

			created, bootstrapErr := syncer.BootstrapLabels(ctx, params.DryRun)
			if done, err := params.EmitJSON(a.stdout, created); done {
				if err != nil {
					return err
				}
				return bootstrapErr
			}

			verb := "created"
			if params.DryRun {
				verb = "missing"
			}
			writer := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			for _, definition := range created {
				fmt.Fprintf(writer, "%s\t#%s\t%s\n", definition.Name, definition.Color, definition.Description)
			}
			writer.Flush()
			fmt.Fprintf(a.stdout, "%d label(s) %s\n", len(created), verb)
			return bootstrapErr
		},
	}
}

type evaluateParams struct {
	ConfigParams
	cli.JSONOutput
	Issue int `flag:"issue,i" desc:"issue number"`
}

func (a *app) labelsEvaluateCommand() *cli.Command {
	var params evaluateParams

	return &cli.Command{
		Name:    "evaluate",
		Summary: "Show the labels the rules would set on an issue",
		Description: `Evaluate the label rules for one issue against the current store and
label vocabulary, and print the delta a sync would write. Nothing is
written, neither to GitHub nor to the store.`,
		Usage: "rtmsync labels evaluate <issue> [flags]",
		Examples: []cli.Example{
			{Description: "Preview issue 42", Command: "rtmsync labels evaluate 42"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("labels evaluate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected 1 positional argument, got %d", len(args))
			}
			if len(args) == 1 {
				number, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
				if err != nil {
					return fmt.Errorf("invalid issue number %q", args[0])
				}
				params.Issue = number
			}
			if params.Issue <= 0 {
				return fmt.Errorf("issue number is required\n\nUsage: rtmsync labels evaluate <issue>")
			}

			s, err := a.open(params.ConfigParams, "labels/evaluate")
			if err != nil {
				return err
			}
			defer s.Close()
			syncer, err := a.syncer(s, nil)
			if err != nil {
				return err
			}

			preview, err := syncer.Preview(ctx, params.Issue)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, preview); done {
				return err
			}
			a.printPreview(preview)
			return nil
		},
	}
}

func (a *app) printPreview(preview *rtmsync.Preview) {
	subject := "untracked"
	switch {
	case preview.EntityID != "":
		subject = preview.EntityID
	case !preview.Form:
		subject = "untracked, no issue form: left alone"
	}
	fmt.Fprintf(a.stdout, "issue #%d (%s)\n", preview.IssueNumber, subject)

	writer := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "current\t%s\n", joinLabels(preview.Current))
	fmt.Fprintf(writer, "result\t%s\n", joinLabels(preview.Labels))
	if len(preview.Added) > 0 {
		fmt.Fprintf(writer, "add\t%s\n", joinLabels(preview.Added))
	}
	if len(preview.Removed) > 0 {
		fmt.Fprintf(writer, "remove\t%s\n", joinLabels(preview.Removed))
	}
	if len(preview.Dropped) > 0 {
		fmt.Fprintf(writer, "not in vocabulary\t%s\n", joinLabels(preview.Dropped))
	}
	writer.Flush()

	for _, warning := range preview.Warnings {
		fmt.Fprintf(a.stdout, "warning: %s: %s\n", warning.Kind, warning.Message)
	}
	if preview.Orphaned {
		fmt.Fprintln(a.stdout, "the user story is orphaned: its epic does not exist")
	}
	if len(preview.Added) == 0 && len(preview.Removed) == 0 {
		fmt.Fprintln(a.stdout, "no change")
	}
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "(none)"
	}
	return strings.Join(labels, ", ")
}
