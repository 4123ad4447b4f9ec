// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	root := &Command{
		Name: "rtmsync",
		Subcommands: []*Command{
			{Name: "version", Run: func(context.Context, []string) error { called = "version"; return nil }},
			{Name: "sync", Run: func(context.Context, []string) error { called = "sync"; return nil }},
		},
	}

	if err := root.Execute(context.Background(), []string{"sync"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "sync" {
		t.Errorf("dispatched to %q, want %q", called, "sync")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var receivedArgs []string
	root := &Command{
		Name: "rtmsync",
		Subcommands: []*Command{{
			Name: "labels",
			Subcommands: []*Command{{
				Name: "evaluate",
				Run: func(_ context.Context, args []string) error {
					receivedArgs = args
					return nil
				},
			}},
		}},
	}

	if err := root.Execute(context.Background(), []string{"labels", "evaluate", "42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "42" {
		t.Errorf("args = %v, want [42]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var output string
	var file string
	command := &Command{
		Name: "report",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("report", pflag.ContinueOnError)
			flagSet.StringVarP(&output, "output", "o", "-", "output path")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				file = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"-o", "rtm.json", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if output != "rtm.json" || file != "extra" {
		t.Errorf("output = %q, file = %q", output, file)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "sync",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flagSet.Duration("interval", 0, "daemon interval")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--intervall", "5m"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --interval?") {
		t.Errorf("error %q lacks the suggestion", err)
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name:        "rtmsync",
		Subcommands: []*Command{{Name: "status"}, {Name: "report"}},
	}
	err := root.Execute(context.Background(), []string{"staus"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "status"?`) {
		t.Errorf("error = %v, want a suggestion for status", err)
	}

	err = root.Execute(context.Background(), []string{"deploy-everything"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion for a distant name", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	var help bytes.Buffer
	root := &Command{Name: "rtmsync", Stderr: &help, Subcommands: []*Command{{Name: "labels", Summary: "Manage labels"}}}
	err := root.Execute(context.Background(), nil)
	if err == nil || err.Error() != "subcommand required" {
		t.Errorf("error = %v, want subcommand required", err)
	}
	if !strings.Contains(help.String(), "labels   Manage labels") {
		t.Errorf("help output missing command listing:\n%s", help.String())
	}
}

func TestCommand_HelpGoesToRootStderr(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:   "rtmsync",
		Stderr: &help,
		Subcommands: []*Command{{
			Name:     "sync",
			Summary:  "Run a reconciliation cycle",
			Examples: []Example{{Description: "Run every 15 minutes", Command: "rtmsync sync --interval 15m"}},
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
				flagSet.Bool("full", false, "re-evaluate every entity")
				return flagSet
			},
			Run: func(context.Context, []string) error { t.Error("Run called for --help"); return nil },
		}},
	}
	if err := root.Execute(context.Background(), []string{"sync", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	for _, want := range []string{"Usage:\n  rtmsync sync [flags]", "--full", "# Run every 15 minutes"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, help.String())
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"sync", "", 4},
		{"sync", "sync", 0},
		{"staus", "status", 1},
		{"reprot", "report", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
