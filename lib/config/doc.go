// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for rtmsync.
//
// Configuration is loaded from a single file specified by either the
// RTMSYNC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production paces GitHub requests by
// default.
//
// Store paths get ${HOME}, ${RTMSYNC_ROOT} and ${VAR:-default}
// expansion after loading. The GitHub token is never stored in the
// file: [Config.Token] reads it from the variable named by
// github.token_env, and a .env file beside the config is loaded into
// the environment (without overriding set variables) so the token can
// live there.
package config
