// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/blobstore/lib/client"
	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/protocol"
	"github.com/bureau-foundation/blobstore/lib/version"
)

const (
	addressVariable = "BLOBSTORE_ADDRESS"
	defaultAddress  = "ws://127.0.0.1:8080/ws"

	// exitNotFound is the exit code for get and stat of a missing
	// object.
	exitNotFound = 2
)

func (a *app) root() *command {
	return &command{
		name:    "blobstore",
		summary: "Store and retrieve objects on a blobstore service",
		subcommands: []*command{
			a.putCommand(),
			a.getCommand(),
			a.deleteCommand(),
			a.listCommand(),
			a.statCommand(),
			a.versionCommand(),
		},
	}
}

// connectionOptions are the flags every object command shares.
type connectionOptions struct {
	address     string
	chunkSize   string
	passthrough bool
	timeout     time.Duration
	verbose     bool
}

func (a *app) addConnectionFlags(flagSet *pflag.FlagSet, options *connectionOptions) {
	address := a.getenv(addressVariable)
	if address == "" {
		address = defaultAddress
	}
	flagSet.StringVarP(&options.address, "address", "a", address,
		"service address: ws://, wss://, unix://, tcp:// or a socket path (env "+addressVariable+")")
	flagSet.StringVar(&options.chunkSize, "chunk-size", "256KiB", "size of each uploaded binary frame")
	flagSet.BoolVar(&options.passthrough, "passthrough", false,
		"the service returns stored bytes as-is; decompress locally")
	flagSet.DurationVar(&options.timeout, "timeout", 0, "give up after this long (0 waits forever)")
	flagSet.BoolVarP(&options.verbose, "verbose", "v", false, "log protocol activity to stderr")
}

// connect dials the service. The returned cancel releases the timeout
// and must be called after the client is closed.
func (a *app) connect(options connectionOptions) (context.Context, context.CancelFunc, *client.Client, error) {
	chunkSize, err := humanize.ParseBytes(options.chunkSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("--chunk-size: %w", err)
	}
	if chunkSize == 0 || chunkSize > uint64(protocol.DefaultChunkSize)*64 {
		return nil, nil, nil, fmt.Errorf("--chunk-size must be between 1 byte and %s", humanize.IBytes(uint64(protocol.DefaultChunkSize)*64))
	}

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if options.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
	}

	level := slog.LevelWarn
	if options.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	blobClient, err := client.Dial(ctx, options.address, client.Options{
		ChunkSize:   int(chunkSize),
		Passthrough: options.passthrough,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connecting to %s: %w", options.address, err)
	}
	return ctx, cancel, blobClient, nil
}

// notFound reports a missing object on stderr and converts it to an
// exit code; other errors pass through.
func (a *app) notFound(id string, err error) error {
	if objectstore.IsNotFound(err) {
		fmt.Fprintf(a.stderr, "blobstore: object %q not found\n", id)
		return &exitError{code: exitNotFound}
	}
	return err
}

func (a *app) putCommand() *command {
	var (
		connection connectionOptions
		id         string
	)
	return &command{
		name:    "put",
		summary: "Upload a file or stdin as an object",
		description: "Upload a file (or stdin when the argument is \"-\") as one object.\n" +
			"Without --id the service generates the id. The id is printed on stdout.",
		usage: "blobstore put [flags] <file|->",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &connection)
			flagSet.StringVar(&id, "id", "", "object id (default: generated by the service)")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("put takes exactly one file argument (use - for stdin)")
			}
			if id != "" {
				if err := objectstore.ValidateKey(id); err != nil {
					return err
				}
			}

			source := a.stdin
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				source = file
			}

			ctx, cancel, blobClient, err := a.connect(connection)
			if err != nil {
				return err
			}
			defer cancel()
			defer blobClient.Close()

			counter := &countingReader{reader: source}
			committed, err := blobClient.Upload(ctx, id, counter)
			if err != nil {
				if errors.Is(err, objectstore.ErrPayloadTooLarge) {
					return fmt.Errorf("the service rejected %s as too large", humanize.IBytes(uint64(counter.count)))
				}
				return fmt.Errorf("uploading: %w", err)
			}
			fmt.Fprintln(a.stdout, committed)
			fmt.Fprintf(a.stderr, "stored %s (%s)\n", committed, humanize.IBytes(uint64(counter.count)))
			return nil
		},
	}
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (r *countingReader) Read(buffer []byte) (int, error) {
	n, err := r.reader.Read(buffer)
	r.count += int64(n)
	return n, err
}

func (a *app) getCommand() *command {
	var (
		connection connectionOptions
		output     string
		force      bool
	)
	return &command{
		name:    "get",
		summary: "Download an object",
		description: "Download an object to stdout or to --output. Binary output is not\n" +
			"written to a terminal unless --force is given.",
		usage: "blobstore get [flags] <id>",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &connection)
			flagSet.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
			flagSet.BoolVarP(&force, "force", "f", false, "write to stdout even when it is a terminal")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("get takes exactly one object id")
			}
			id := args[0]

			toStdout := output == "" || output == "-"
			if toStdout && !force && a.stdoutIsTerminal() {
				return fmt.Errorf("refusing to write object %s to a terminal (use --output or --force)", id)
			}

			ctx, cancel, blobClient, err := a.connect(connection)
			if err != nil {
				return err
			}
			defer cancel()
			defer blobClient.Close()

			if toStdout {
				if _, err := a.download(ctx, blobClient, id, connection.passthrough, a.stdout); err != nil {
					return a.notFound(id, err)
				}
				return nil
			}

			file, err := os.Create(output)
			if err != nil {
				return err
			}
			written, err := a.download(ctx, blobClient, id, connection.passthrough, file)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(output)
				return a.notFound(id, err)
			}
			fmt.Fprintf(a.stderr, "wrote %s to %s\n", humanize.IBytes(uint64(written)), output)
			return nil
		},
	}
}

// download streams the object to w. Passthrough deployments need the
// whole stored encoding before it can be decompressed.
func (a *app) download(ctx context.Context, blobClient *client.Client, id string, passthrough bool, w io.Writer) (int64, error) {
	if !passthrough {
		return blobClient.Download(ctx, id, w)
	}
	payload, err := blobClient.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(payload)
	return int64(n), err
}

func (a *app) deleteCommand() *command {
	var connection connectionOptions
	return &command{
		name:    "del",
		summary: "Delete objects",
		usage:   "blobstore del [flags] <id>...",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("del", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &connection)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("del takes at least one object id")
			}
			ctx, cancel, blobClient, err := a.connect(connection)
			if err != nil {
				return err
			}
			defer cancel()
			defer blobClient.Close()

			for _, id := range args {
				if err := blobClient.Delete(ctx, id); err != nil {
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				fmt.Fprintf(a.stdout, "deleted %s\n", id)
			}
			return nil
		},
	}
}

func (a *app) listCommand() *command {
	var connection connectionOptions
	return &command{
		name:    "list",
		summary: "List object ids",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &connection)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("list takes no arguments")
			}
			ctx, cancel, blobClient, err := a.connect(connection)
			if err != nil {
				return err
			}
			defer cancel()
			defer blobClient.Close()

			keys, err := blobClient.List(ctx)
			if err != nil {
				return fmt.Errorf("listing: %w", err)
			}
			for _, key := range keys {
				fmt.Fprintln(a.stdout, key)
			}
			return nil
		},
	}
}

type statOutput struct {
	ID          string    `json:"id"`
	Size        int64     `json:"size"`
	Compression string    `json:"compression"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *app) statCommand() *command {
	var (
		connection connectionOptions
		jsonOutput bool
	)
	return &command{
		name:    "stat",
		summary: "Show object metadata",
		usage:   "blobstore stat [flags] <id>",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stat", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &connection)
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("stat takes exactly one object id")
			}
			id := args[0]

			ctx, cancel, blobClient, err := a.connect(connection)
			if err != nil {
				return err
			}
			defer cancel()
			defer blobClient.Close()

			info, err := blobClient.Stat(ctx, id)
			if err != nil {
				return a.notFound(id, err)
			}

			if jsonOutput {
				encoder := json.NewEncoder(a.stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(statOutput{
					ID:          info.Key,
					Size:        info.Size,
					Compression: info.Compression.String(),
					Digest:      info.Digest.String(),
					CreatedAt:   info.CreatedAt.UTC(),
				})
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "id\t%s\n", info.Key)
			fmt.Fprintf(tw, "size\t%s (%d bytes)\n", humanize.IBytes(uint64(info.Size)), info.Size)
			fmt.Fprintf(tw, "compression\t%s\n", info.Compression)
			fmt.Fprintf(tw, "digest\t%s\n", info.Digest)
			fmt.Fprintf(tw, "created\t%s (%s)\n", info.CreatedAt.UTC().Format(time.RFC3339), humanize.Time(info.CreatedAt))
			return tw.Flush()
		},
	}
}

func (a *app) versionCommand() *command {
	return &command{
		name:    "version",
		summary: "Print version information",
		run: func(args []string) error {
			fmt.Fprintf(a.stdout, "blobstore %s\n", version.Full())
			return nil
		},
	}
}
