// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/session"
	"github.com/bureau-foundation/blobstore/lib/testutil"
	"github.com/bureau-foundation/blobstore/transport"
)

// testApp runs CLI commands against in-memory stdio.
type testApp struct {
	*app
	stdin    *bytes.Buffer
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	terminal bool
}

func newTestApp(t *testing.T, address string) *testApp {
	t.Helper()
	ta := &testApp{
		stdin:  &bytes.Buffer{},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	ta.app = &app{
		stdin:  ta.stdin,
		stdout: ta.stdout,
		stderr: ta.stderr,
		getenv: func(name string) string {
			if name == addressVariable {
				return address
			}
			return ""
		},
		stdoutIsTerminal: func() bool { return ta.terminal },
	}
	return ta
}

func (ta *testApp) run(t *testing.T, args ...string) error {
	t.Helper()
	ta.stdout.Reset()
	ta.stderr.Reset()
	return ta.root().execute(args, io.Discard)
}

func (ta *testApp) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := ta.run(t, args...); err != nil {
		t.Fatalf("blobstore %s: %v (stderr: %s)", strings.Join(args, " "), err, ta.stderr.String())
	}
	return ta.stdout.String()
}

// startService serves a memory store on a Unix socket and returns its
// client address.
func startService(t *testing.T, options objectstore.Options) (string, *objectstore.Store) {
	t.Helper()
	store := objectstore.New(objectstore.NewMemoryBackend(), options)
	server := session.NewServer(store, session.Config{})

	socketPath := filepath.Join(testutil.SocketDir(t), "blobstore.sock")
	streamServer := &transport.StreamServer{
		Network: "unix",
		Address: socketPath,
		Handler: server.ServeConn,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- streamServer.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "waiting for stream server shutdown")
	})

	testutil.RequireClosed(t, streamServer.Ready(), 5*time.Second, "waiting for stream server")
	return "unix://" + socketPath, store
}

func TestPutGetFile(t *testing.T) {
	address, _ := startService(t, objectstore.Options{Compression: objectstore.CompressionZstd})
	cli := newTestApp(t, address)

	payload := testutil.RandomBytes(t, 10_000)
	dir := t.TempDir()
	source := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(source, payload, 0644); err != nil {
		t.Fatal(err)
	}

	id := strings.TrimSpace(cli.mustRun(t, "put", "--id", "report", "--chunk-size", "1KiB", source))
	if id != "report" {
		t.Fatalf("put printed %q, want report", id)
	}
	if !strings.Contains(cli.stderr.String(), "9.8 KiB") {
		t.Errorf("put summary %q does not give the human size", cli.stderr.String())
	}

	destination := filepath.Join(dir, "copy.bin")
	cli.mustRun(t, "get", "-o", destination, "report")
	copied, err := os.ReadFile(destination)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(copied, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(copied), len(payload))
	}
}

func TestPutStdinGeneratesID(t *testing.T) {
	address, store := startService(t, objectstore.Options{})
	cli := newTestApp(t, address)

	cli.stdin.WriteString("from stdin")
	id := strings.TrimSpace(cli.mustRun(t, "put", "-"))
	if id == "" {
		t.Fatal("put printed no id")
	}

	object, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", id, err)
	}
	if string(object.Data) != "from stdin" {
		t.Errorf("stored %q", object.Data)
	}

	if got := cli.mustRun(t, "get", id); got != "from stdin" {
		t.Errorf("get to stdout = %q", got)
	}
}

func TestGetRefusesTerminal(t *testing.T) {
	address, store := startService(t, objectstore.Options{})
	if _, err := store.Put(context.Background(), "binary", []byte{0x00, 0x01}); err != nil {
		t.Fatal(err)
	}
	cli := newTestApp(t, address)
	cli.terminal = true

	err := cli.run(t, "get", "binary")
	if err == nil || !strings.Contains(err.Error(), "terminal") {
		t.Fatalf("get to a terminal: err = %v, want a refusal", err)
	}
	if cli.stdout.Len() != 0 {
		t.Errorf("wrote %d bytes to the terminal", cli.stdout.Len())
	}

	if got := cli.mustRun(t, "get", "--force", "binary"); got != "\x00\x01" {
		t.Errorf("get --force = %q", got)
	}
}

func TestGetPassthrough(t *testing.T) {
	address, store := startService(t, objectstore.Options{
		Compression: objectstore.CompressionDeflateRaw,
		ReadMode:    objectstore.ReadPassthrough,
	})
	payload := bytes.Repeat([]byte("passthrough "), 200)
	if _, err := store.Put(context.Background(), "squeezed", payload); err != nil {
		t.Fatal(err)
	}
	cli := newTestApp(t, address)

	if got := cli.mustRun(t, "get", "--passthrough", "squeezed"); got != string(payload) {
		t.Errorf("get --passthrough returned %d bytes, want %d", len(got), len(payload))
	}
	if got := cli.mustRun(t, "get", "squeezed"); got == string(payload) {
		t.Error("get without --passthrough returned canonical bytes from a passthrough service")
	}
}

func TestGetMissingExitCode(t *testing.T) {
	address, _ := startService(t, objectstore.Options{})
	cli := newTestApp(t, address)

	for _, args := range [][]string{{"get", "absent"}, {"stat", "absent"}} {
		err := cli.run(t, args...)
		var exit *exitError
		if !errors.As(err, &exit) || exit.code != exitNotFound {
			t.Fatalf("%v: err = %v, want exit code %d", args, err, exitNotFound)
		}
		if !strings.Contains(cli.stderr.String(), "not found") {
			t.Errorf("%v: stderr = %q", args, cli.stderr.String())
		}
	}
}

func TestGetOutputRemovedOnFailure(t *testing.T) {
	address, _ := startService(t, objectstore.Options{})
	cli := newTestApp(t, address)

	destination := filepath.Join(t.TempDir(), "absent.bin")
	if err := cli.run(t, "get", "-o", destination, "absent"); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(destination); !os.IsNotExist(err) {
		t.Errorf("partial output left behind: %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	address, store := startService(t, objectstore.Options{})
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.Put(ctx, key, []byte(key)); err != nil {
			t.Fatal(err)
		}
	}
	cli := newTestApp(t, address)

	if got := cli.mustRun(t, "list"); got != "a\nb\nc\n" {
		t.Errorf("list = %q", got)
	}

	if got := cli.mustRun(t, "del", "a", "c", "never-existed"); got != "deleted a\ndeleted c\ndeleted never-existed\n" {
		t.Errorf("del output = %q", got)
	}
	if got := cli.mustRun(t, "list"); got != "b\n" {
		t.Errorf("list after delete = %q", got)
	}
}

func TestStat(t *testing.T) {
	address, store := startService(t, objectstore.Options{Compression: objectstore.CompressionLZ4})
	payload := bytes.Repeat([]byte{'z'}, 4096)
	info, err := store.Put(context.Background(), "zeds", payload)
	if err != nil {
		t.Fatal(err)
	}
	cli := newTestApp(t, address)

	text := cli.mustRun(t, "stat", "zeds")
	for _, want := range []string{"4.0 KiB (4096 bytes)", "lz4", info.Digest.String()} {
		if !strings.Contains(text, want) {
			t.Errorf("stat output missing %q:\n%s", want, text)
		}
	}

	var decoded statOutput
	if err := json.Unmarshal([]byte(cli.mustRun(t, "stat", "--json", "zeds")), &decoded); err != nil {
		t.Fatalf("decoding stat --json: %v", err)
	}
	if decoded.ID != "zeds" || decoded.Size != 4096 || decoded.Compression != "lz4" || decoded.Digest != info.Digest.String() {
		t.Errorf("stat --json = %+v", decoded)
	}
}

func TestInvalidChunkSize(t *testing.T) {
	address, _ := startService(t, objectstore.Options{})
	cli := newTestApp(t, address)
	cli.stdin.WriteString("x")

	err := cli.run(t, "put", "--chunk-size", "lots", "-")
	if err == nil || !strings.Contains(err.Error(), "--chunk-size") {
		t.Fatalf("err = %v, want a --chunk-size error", err)
	}
}

func TestVersion(t *testing.T) {
	cli := newTestApp(t, "unix:///nonexistent")
	if got := cli.mustRun(t, "version"); !strings.HasPrefix(got, "blobstore ") {
		t.Errorf("version = %q", got)
	}
}
