// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/rtmsync/cmd/rtmsync/cli"
	"github.com/bureau-foundation/rtmsync/lib/clock"
	"github.com/bureau-foundation/rtmsync/lib/config"
	"github.com/bureau-foundation/rtmsync/lib/github"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
	"github.com/bureau-foundation/rtmsync/lib/rtmsync"
	"github.com/bureau-foundation/rtmsync/lib/tracker"
)

// app carries what every command needs from its surroundings.
type app struct {
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock

	// newTracker builds the issue client for a loaded config.
	newTracker func(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (tracker.Client, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		clock:      clock.Real(),
		newTracker: newGitHubTracker,
	}
}

func newGitHubTracker(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (tracker.Client, error) {
	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}
	client, err := github.NewClient(github.Config{
		BaseURL:           cfg.GitHub.BaseURL,
		Token:             token,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
		Clock:             clk,
		Logger:            logger.With("component", "github"),
	})
	if err != nil {
		return nil, err
	}
	return tracker.NewGitHub(client, cfg.GitHub.Owner, cfg.GitHub.Repo), nil
}

// ConfigParams are the flags shared by every command that reads the
// config file.
type ConfigParams struct {
	Config  string `flag:"config,c" desc:"config file (default: $RTMSYNC_CONFIG)"`
	Verbose bool   `flag:"verbose,v" desc:"log at debug level"`
}

// session is an opened config, logger and store for one command run.
type session struct {
	config *config.Config
	logger *slog.Logger
	store  *rtmstore.Store
}

func (a *app) open(params ConfigParams, command string) (*session, error) {
	var cfg *config.Config
	var err error
	if params.Config != "" {
		cfg, err = config.LoadFile(params.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cli.NewCommandLogger(a.stderr, params.Verbose).With("command", command)
	if err := cfg.EnsureStoreDir(); err != nil {
		return nil, err
	}
	store, err := rtmstore.Open(rtmstore.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger.With("component", "rtmstore"),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "path", cfg.Store.Path, "environment", cfg.Environment)
	return &session{config: cfg, logger: logger, store: store}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// syncer builds a Syncer over the session's store and a fresh issue
// client. configure may adjust the config before validation.
func (a *app) syncer(s *session, configure func(*rtmsync.Config)) (*rtmsync.Syncer, error) {
	client, err := a.newTracker(s.config, a.clock, s.logger)
	if err != nil {
		return nil, err
	}
	timeout, err := s.config.Sync.CycleTimeoutDuration()
	if err != nil {
		return nil, err
	}
	cfg := rtmsync.Config{
		Store:        s.store,
		Tracker:      client,
		Clock:        a.clock,
		Logger:       s.logger.With("component", "rtmsync"),
		Workers:      s.config.Sync.Workers,
		CycleTimeout: timeout,
	}
	if configure != nil {
		configure(&cfg)
	}
	return rtmsync.New(cfg)
}
