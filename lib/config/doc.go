// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the blobstore
// service.
//
// Configuration is loaded from a single file specified by either the
// BLOBSTORE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. Files ending in
// .json or .jsonc are accepted too; comments and trailing commas are
// stripped before decoding.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches.
//
// ${VAR} and ${VAR:-default} patterns are expanded in path fields
// after loading. No other environment variables override config values.
//
// Sizes accept either a byte count or a human-readable string such as
// "256KiB" or "64MB"; durations use Go syntax ("5m", "30s").
package config
