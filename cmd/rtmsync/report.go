// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/report"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

type reportParams struct {
	ConfigParams
	Status    string `flag:"status" desc:"only items with this status"`
	Component string `flag:"component" desc:"only items in this component"`
	Priority  string `flag:"priority" desc:"only items with this priority"`
	Compress  string `flag:"compress" desc:"none, zstd or lz4 (default: report.compression)"`
	Indent    bool   `flag:"indent" desc:"pretty-print the JSON"`
	Output    string `flag:"output,o" default:"-" desc:"output file, - for stdout"`
}

func (a *app) reportCommand() *cli.Command {
	var params reportParams

	return &cli.Command{
		Name:    "report",
		Summary: "Export the traceability report as JSON",
		Description: `Write the traceability report: every epic with its user stories,
tests and defects, stories whose epic is missing, infrastructure tests,
and coverage counts. The report is read from the store only; GitHub is
not contacted.

Filters apply to stories and defects. An epic is listed when it matches
or when any of its items match.`,
		Usage: "rtmsync report [flags]",
		Examples: []cli.Example{
			{Description: "GDPR work still in progress", Command: "rtmsync report --component gdpr --status in-progress --indent"},
			{Description: "Compressed export for the dashboard", Command: "rtmsync report --compress zstd -o rtm.json.zst"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("report", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			filter, err := parseFilter(params)
			if err != nil {
				return err
			}

			s, err := a.open(params.ConfigParams, "report")
			if err != nil {
				return err
			}
			defer s.Close()

			compressionName := params.Compress
			if compressionName == "" {
				compressionName = s.config.Report.Compression
			}
			compression, err := report.ParseCompression(compressionName)
			if err != nil {
				return err
			}

			snapshot, err := s.store.Snapshot(ctx)
			if err != nil {
				return err
			}
			projected := report.Project(snapshot, filter, a.clock.Now())
			options := report.Options{Compression: compression, Indent: params.Indent || s.config.Report.Indent}

			if params.Output == "-" || params.Output == "" {
				return report.Write(a.stdout, projected, options)
			}
			if err := writeFile(params.Output, func(w io.Writer) error {
				return report.Write(w, projected, options)
			}); err != nil {
				return err
			}
			s.logger.Info("report written", "path", params.Output,
				"epics", projected.Summary.Epics, "user_stories", projected.Summary.UserStories,
				"compression", compressionName)
			return nil
		},
	}
}

func parseFilter(params reportParams) (report.Filter, error) {
	var filter report.Filter
	if params.Status != "" {
		status, ok := rtm.ParseStatus(params.Status)
		if !ok {
			return filter, fmt.Errorf("--status: unknown status %q (want one of %v)", params.Status, rtm.Statuses)
		}
		filter.Status = status
	}
	if params.Component != "" {
		component, ok := rtm.ParseComponent(params.Component)
		if !ok {
			return filter, fmt.Errorf("--component: unknown component %q (want one of %v)", params.Component, rtm.Components)
		}
		filter.Component = component
	}
	if params.Priority != "" {
		priority, ok := rtm.ParsePriority(params.Priority)
		if !ok {
			return filter, fmt.Errorf("--priority: unknown priority %q (want one of %v)", params.Priority, rtm.Priorities)
		}
		filter.Priority = priority
	}
	return filter, nil
}

// writeFile writes through a temporary file renamed into place, so a
// failed export never leaves a truncated report behind.
func writeFile(path string, write func(io.Writer) error) error {
	temporary := path + ".tmp"
	file, err := os.Create(temporary)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporary, err)
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(temporary)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("writing %s: %w", temporary, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
