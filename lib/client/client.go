// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client speaks the chunked object transfer protocol to a
// blobstore service over any protocol.Conn.
//
// A Client runs one command at a time; concurrent calls serialize.
// Open several Clients for parallel transfers.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/protocol"
	"github.com/bureau-foundation/blobstore/transport"
)

// Options configures a Client.
type Options struct {
	// ChunkSize is the size of the binary frames Upload sends.
	// Defaults to protocol.DefaultChunkSize.
	ChunkSize int

	// Passthrough tells Get that the service returns stored bytes
	// as-is. Get then fetches the object's compression scheme with
	// STAT and decompresses locally.
	Passthrough bool

	Logger *slog.Logger
}

// Client is a protocol client bound to one connection.
type Client struct {
	conn    protocol.Conn
	options Options
	logger  *slog.Logger

	mu sync.Mutex
}

// New returns a Client using conn. The Client owns conn.
func New(conn protocol.Conn, options Options) *Client {
	if options.ChunkSize <= 0 {
		options.ChunkSize = protocol.DefaultChunkSize
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{conn: conn, options: options, logger: options.Logger}
}

// Dial connects to address and returns a Client. Accepted forms:
//
//	ws://host:port/ws, wss://host/ws   WebSocket
//	unix:///run/blobstore.sock         stream socket
//	tcp://host:port                    stream socket
//	/run/blobstore.sock                stream socket (bare path)
func Dial(ctx context.Context, address string, options Options) (*Client, error) {
	var (
		conn protocol.Conn
		err  error
	)
	switch {
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		conn, err = transport.DialWebSocket(ctx, address)
	case strings.HasPrefix(address, "unix://"):
		conn, err = transport.DialStream(ctx, "unix", strings.TrimPrefix(address, "unix://"))
	case strings.HasPrefix(address, "tcp://"):
		conn, err = transport.DialStream(ctx, "tcp", strings.TrimPrefix(address, "tcp://"))
	case strings.HasPrefix(address, "/"):
		conn, err = transport.DialStream(ctx, "unix", address)
	default:
		return nil, fmt.Errorf("unsupported service address %q (want ws://, wss://, unix://, tcp:// or an absolute socket path)", address)
	}
	if err != nil {
		return nil, err
	}
	return New(conn, options), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, frame protocol.Frame) error {
	if err := c.conn.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// readReply reads the next frame and parses it as a text reply.
func (c *Client) readReply(ctx context.Context) (protocol.Reply, error) {
	frame, err := c.conn.ReadFrame(ctx)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("reading reply: %w", err)
	}
	if frame.Kind != protocol.KindText {
		return protocol.Reply{}, fmt.Errorf("expected a text reply, got %d binary bytes", len(frame.Data))
	}
	return protocol.ParseReply(string(frame.Data))
}

// roundTrip sends command and returns the single reply, converting
// an ERROR reply into a *protocol.RemoteError.
func (c *Client) roundTrip(ctx context.Context, command protocol.Command) (protocol.Reply, error) {
	if err := c.send(ctx, command.Frame()); err != nil {
		return protocol.Reply{}, err
	}
	reply, err := c.readReply(ctx)
	if err != nil {
		return protocol.Reply{}, err
	}
	if err := reply.Err(); err != nil {
		return protocol.Reply{}, fmt.Errorf("%s: %w", command, err)
	}
	return reply, nil
}

// Upload stores the contents of r under id and returns the id. An
// empty id asks the service to generate one.
func (c *Client) Upload(ctx context.Context, id string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	begin := protocol.Command{Verb: protocol.VerbNewID, ID: id}
	if id == "" {
		begin.Verb = protocol.VerbAdd
	}
	reply, err := c.roundTrip(ctx, begin)
	if err != nil {
		return "", err
	}
	if err := reply.Expect(protocol.VerbReady, id); err != nil {
		return "", err
	}
	id = reply.Argument

	// The service only replies during the upload when it rejects a
	// chunk, so replies are read concurrently: a client that only
	// wrote could fill the connection while the service blocks on
	// its error reply.
	failed := make(chan struct{})
	result := make(chan error, 1)
	go func() { result <- c.awaitCommit(ctx, id, failed) }()

	sent, writeErr := c.sendChunks(ctx, r, failed)
	if writeErr == nil {
		writeErr = c.send(ctx, protocol.Command{Verb: protocol.VerbEndUpload, ID: id}.Frame())
	}
	if writeErr != nil {
		// Unblock the reader; the connection is unusable now.
		c.conn.Close()
		<-result
		return "", writeErr
	}
	if err := <-result; err != nil {
		return "", err
	}
	c.logger.Debug("upload committed", "object_id", id, "size", sent)
	return id, nil
}

// sendChunks streams r as binary frames, stopping early if failed is
// closed.
func (c *Client) sendChunks(ctx context.Context, r io.Reader, failed <-chan struct{}) (int64, error) {
	buffer := make([]byte, c.options.ChunkSize)
	var sent int64
	for {
		select {
		case <-failed:
			return sent, nil
		default:
		}

		n, err := io.ReadFull(r, buffer)
		if n > 0 {
			if sendErr := c.send(ctx, protocol.Binary(buffer[:n])); sendErr != nil {
				return sent, sendErr
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("reading upload source: %w", err)
		}
	}
}

// awaitCommit reads replies until the service acknowledges or rejects
// the ENDUPLOAD for id. A rejected chunk aborts the upload on the
// service side, so after the first ERROR the ENDUPLOAD reply is
// UPLOAD_MISMATCH; the first error is the one reported.
func (c *Client) awaitCommit(ctx context.Context, id string, failed chan<- struct{}) error {
	var firstErr error
	for {
		reply, err := c.readReply(ctx)
		if err != nil {
			if firstErr != nil {
				return firstErr
			}
			return err
		}
		if remoteErr := reply.Err(); remoteErr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("uploading %s: %w", id, remoteErr)
				close(failed)
			}
			var remote *protocol.RemoteError
			if errors.As(remoteErr, &remote) && remote.Code == protocol.CodeUploadMismatch {
				return firstErr
			}
			continue
		}
		if err := reply.Expect(protocol.VerbAdded, id); err != nil {
			return err
		}
		return firstErr
	}
}

// Put stores data under id. See Upload.
func (c *Client) Put(ctx context.Context, id string, data []byte) (string, error) {
	return c.Upload(ctx, id, bytes.NewReader(data))
}

// Download writes the object to w and returns the number of bytes
// written. In passthrough deployments these are the stored bytes.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, protocol.Command{Verb: protocol.VerbGet, ID: id}.Frame()); err != nil {
		return 0, err
	}
	var written int64
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			return written, fmt.Errorf("reading GET reply: %w", err)
		}
		if frame.Kind == protocol.KindBinary {
			n, err := w.Write(frame.Data)
			written += int64(n)
			if err != nil {
				// Drain the rest so the connection stays in step.
				return written, errors.Join(fmt.Errorf("writing %s: %w", id, err), c.drainGet(ctx))
			}
			continue
		}

		reply, err := protocol.ParseReply(string(frame.Data))
		if err != nil {
			return written, err
		}
		if err := reply.Expect(protocol.VerbEnd, id); err != nil {
			return written, fmt.Errorf("GET:%s: %w", id, err)
		}
		return written, nil
	}
}

func (c *Client) drainGet(ctx context.Context) error {
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		if frame.Kind == protocol.KindText {
			return nil
		}
	}
}

// Get returns the object's canonical payload. With Options.Passthrough
// the stored bytes are decompressed locally.
func (c *Client) Get(ctx context.Context, id string) ([]byte, error) {
	var info objectstore.Info
	if c.options.Passthrough {
		var err error
		if info, err = c.Stat(ctx, id); err != nil {
			return nil, err
		}
	}

	var buffer bytes.Buffer
	if _, err := c.Download(ctx, id, &buffer); err != nil {
		return nil, err
	}
	if !c.options.Passthrough || info.Compression == objectstore.CompressionNone {
		return buffer.Bytes(), nil
	}
	payload, err := objectstore.Decompress(buffer.Bytes(), info.Compression, info.Size)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", id, err)
	}
	return payload, nil
}

// Delete removes id. Deleting an absent object succeeds.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(ctx, protocol.Command{Verb: protocol.VerbDelete, ID: id})
	if err != nil {
		return err
	}
	return reply.Expect(protocol.VerbDeleted, id)
}

// List returns every committed key.
func (c *Client) List(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(ctx, protocol.Command{Verb: protocol.VerbList})
	if err != nil {
		return nil, err
	}
	if err := reply.Expect(protocol.VerbList, ""); err != nil {
		return nil, err
	}
	return reply.Keys(), nil
}

// Stat returns the object's metadata. Compression is the stored
// encoding.
func (c *Client) Stat(ctx context.Context, id string) (objectstore.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(ctx, protocol.Command{Verb: protocol.VerbStat, ID: id})
	if err != nil {
		return objectstore.Info{}, err
	}
	if err := reply.Expect(protocol.VerbStat, ""); err != nil {
		return objectstore.Info{}, err
	}
	return reply.Info()
}
