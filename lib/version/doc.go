// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for blobstore binaries.
//
// [GitCommit], [BuildTime] and [Version] are injected with -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/blobstore/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision recorded by the Go
// toolchain is used if present.
package version
