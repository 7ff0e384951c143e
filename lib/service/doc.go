// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process scaffolding shared by blobstore
// binaries: a JSON slog logger, an HTTP server with readiness
// signalling and graceful shutdown, and [RunAll] for running several
// servers under one context.
//
// Binaries compose these in their own main() function. The package
// provides building blocks, not a runtime.
package service
