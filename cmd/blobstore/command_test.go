// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommandDispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &command{
		name: "blobstore",
		subcommands: []*command{
			{name: "put", run: func(args []string) error { called = "put"; return nil }},
			{name: "get", run: func(args []string) error {
				called = "get"
				receivedArgs = args
				return nil
			}},
		},
	}

	if err := root.execute([]string{"get", "object-1"}, io.Discard); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if called != "get" {
		t.Errorf("dispatched to %q, want get", called)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "object-1" {
		t.Errorf("args = %v, want [object-1]", receivedArgs)
	}
}

func TestCommandParsesFlags(t *testing.T) {
	var (
		output string
		force  bool
		rest   []string
	)
	root := &command{
		name: "blobstore",
		subcommands: []*command{{
			name: "get",
			flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
				flagSet.StringVarP(&output, "output", "o", "", "")
				flagSet.BoolVar(&force, "force", false, "")
				return flagSet
			},
			run: func(args []string) error {
				rest = args
				return nil
			},
		}},
	}

	if err := root.execute([]string{"get", "-o", "out.bin", "id-1", "--force"}, io.Discard); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if output != "out.bin" || !force {
		t.Errorf("output = %q, force = %v", output, force)
	}
	if len(rest) != 1 || rest[0] != "id-1" {
		t.Errorf("positional args = %v, want [id-1]", rest)
	}
}

func TestCommandSuggestions(t *testing.T) {
	root := &command{
		name: "blobstore",
		subcommands: []*command{
			{name: "list", run: func([]string) error { return nil }},
			{
				name: "stat",
				flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("stat", pflag.ContinueOnError)
					flagSet.String("address", "", "")
					return flagSet
				},
				run: func([]string) error { return nil },
			},
		},
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"misspelled command", []string{"lsit"}, `did you mean "list"?`},
		{"unrelated command", []string{"frobnicate"}, `unknown command "frobnicate"`},
		{"misspelled flag", []string{"stat", "--adress", "x"}, "did you mean --address?"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := root.execute(test.args, io.Discard)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not contain %q", err, test.want)
			}
		})
	}
}

func TestCommandHelp(t *testing.T) {
	a := newTestApp(t, "unix:///nonexistent")
	var help bytes.Buffer

	if err := a.root().execute([]string{"--help"}, &help); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, name := range []string{"put", "get", "del", "list", "stat", "version"} {
		if !strings.Contains(help.String(), name) {
			t.Errorf("help output does not list %q:\n%s", name, help.String())
		}
	}

	help.Reset()
	if err := a.root().execute([]string{"get", "--help"}, &help); err != nil {
		t.Fatalf("execute get --help: %v", err)
	}
	if !strings.Contains(help.String(), "--output") {
		t.Errorf("get help does not describe --output:\n%s", help.String())
	}
}

func TestSubcommandRequired(t *testing.T) {
	a := newTestApp(t, "unix:///nonexistent")
	if err := a.root().execute(nil, io.Discard); err == nil {
		t.Fatal("expected an error with no subcommand")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"put", "put", 0},
		{"stat", "stats", 1},
		{"lsit", "list", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
