// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// blobstore is the command-line client for blobstore-service. It
// speaks the chunked object transfer protocol over WebSocket or a
// stream socket.
package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		stdoutIsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
	if err := a.root().execute(os.Args[1:], os.Stderr); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the process environment so commands can run against
// buffers in tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	stdoutIsTerminal func() bool
}
