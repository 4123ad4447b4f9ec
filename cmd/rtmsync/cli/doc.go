// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for rtmsync.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. Commands are assembled into a tree in cmd/rtmsync and
// dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and help output with examples.
//
// When a user types an unknown subcommand or flag, the framework
// suggests the closest known name by Levenshtein distance (at most 3).
//
// Parameter structs bind their flags through struct tags with
// [FlagsFromParams]; embedding [JSONOutput] adds --json.
package cli
