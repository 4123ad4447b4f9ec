// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/rtmsync"
)

// exitDeferred is the exit code of a cycle that left items for the
// next one.
const exitDeferred = 2

type syncParams struct {
	ConfigParams
	cli.JSONOutput
	Interval time.Duration `flag:"interval" desc:"run a cycle every interval until interrupted"`
	Daemon   bool          `flag:"daemon" desc:"like --interval, using sync.interval from the config"`
	Full     bool          `flag:"full" desc:"re-evaluate every tracked entity, not only changed ones"`
	Workers  int           `flag:"workers" desc:"override sync.workers"`
}

func (a *app) syncCommand() *cli.Command {
	var params syncParams

	return &cli.Command{
		Name:    "sync",
		Summary: "Reconcile the store with GitHub issues",
		Description: `Run a reconciliation cycle.

A cycle pulls issues edited since the last checkpoint and merges their
declared fields into the store, creates issues for new entities, and
writes the label set the rules compute for every entity whose
labeling-relevant fields changed. Issues filed through the issue form
that mirror no entity are labeled too.

The cycle summary goes to stdout. The exit code is 2 when any item
failed or was not reached; those items are retried by the next cycle.

With --interval or --daemon, cycles repeat until SIGINT or SIGTERM and
the exit code is 0.`,
		Usage: "rtmsync sync [flags]",
		Examples: []cli.Example{
			{Description: "One cycle, summary as JSON", Command: "rtmsync sync --json"},
			{Description: "Relabel everything after editing label rules", Command: "rtmsync sync --full"},
			{Description: "Run as a service", Command: "rtmsync sync --daemon"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("sync", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.Workers < 0 {
				return fmt.Errorf("--workers must not be negative")
			}

			s, err := a.open(params.ConfigParams, "sync")
			if err != nil {
				return err
			}
			defer s.Close()

			interval := params.Interval
			if params.Daemon && interval == 0 {
				if interval, err = s.config.Sync.IntervalDuration(); err != nil {
					return err
				}
			}

			syncer, err := a.syncer(s, func(cfg *rtmsync.Config) {
				cfg.Full = params.Full
				if params.Workers > 0 {
					cfg.Workers = params.Workers
				}
				if interval > 0 {
					cfg.OnCycle = func(summary *rtmsync.Summary, err error) {
						if err == nil {
							a.printSummary(&params, summary)
						}
					}
				}
			})
			if err != nil {
				return err
			}

			if interval > 0 {
				s.logger.Info("running periodic sync", "interval", interval)
				return syncer.Run(ctx, interval)
			}

			summary, err := syncer.RunCycle(ctx)
			if err != nil {
				return err
			}
			if err := a.printSummary(&params, summary); err != nil {
				return err
			}
			if summary.Deferred() > 0 || len(summary.Failures) > 0 {
				return &cli.ExitError{Code: exitDeferred}
			}
			return nil
		},
	}
}

func (a *app) printSummary(params *syncParams, summary *rtmsync.Summary) error {
	if done, err := params.EmitJSON(a.stdout, summary); done {
		return err
	}
	return summary.WriteText(a.stdout)
}
