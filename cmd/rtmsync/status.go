// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/rtmsync"
)

type statusParams struct {
	ConfigParams
	cli.JSONOutput
	State string `flag:"state" desc:"only entities in this state (unsynced, synced, drifted)"`
}

func (a *app) statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "List the sync state of every tracked entity",
		Description: `List every epic, user story and defect with its sync state:

  unsynced   no issue yet, or an issue that was never fully labeled
  synced     the issue's labels reflect the entity
  drifted    the entity changed since its last sync; the next cycle relabels it

The state comes from the store alone; GitHub is not contacted.`,
		Usage: "rtmsync status [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			switch rtmsync.State(params.State) {
			case "", rtmsync.StateUnsynced, rtmsync.StateSynced, rtmsync.StateDrifted, rtmsync.StateReconciling:
			default:
				return fmt.Errorf("--state: unknown state %q", params.State)
			}

			s, err := a.open(params.ConfigParams, "status")
			if err != nil {
				return err
			}
			defer s.Close()
			syncer, err := a.syncer(s, nil)
			if err != nil {
				return err
			}

			states, err := syncer.States(ctx)
			if err != nil {
				return err
			}
			if params.State != "" {
				filtered := states[:0]
				for _, state := range states {
					if state.State == rtmsync.State(params.State) {
						filtered = append(filtered, state)
					}
				}
				states = filtered
			}

			if done, err := params.EmitJSON(a.stdout, states); done {
				return err
			}

			writer := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "ENTITY\tKIND\tSTATE\tISSUE\tLAST SYNCED")
			for _, state := range states {
				issue, synced := "-", "-"
				if state.IssueNumber > 0 {
					issue = fmt.Sprintf("#%d", state.IssueNumber)
				}
				if !state.LastSyncedAt.IsZero() {
					synced = state.LastSyncedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", state.EntityID, state.Kind, state.State, issue, synced)
			}
			return writer.Flush()
		},
	}
}
