// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
	"github.com/bureau-foundation/blobstore/lib/protocol"
)

// ErrIdleTimeout is returned by Serve when no frame arrives within
// Config.IdleTimeout.
var ErrIdleTimeout = errors.New("session: idle timeout")

// legacyAddPrefix marks a legacy binary upload chunk.
var legacyAddPrefix = []byte("ADD:")

// State is the session's position in the upload state machine.
type State uint8

const (
	StateIdle State = iota
	StateUploading
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config controls session behavior. The zero value is usable: GET
// replies use protocol.DefaultChunkSize, legacy mode is off and there
// is no idle timeout.
type Config struct {
	// ChunkSize is the maximum size of each binary frame in a GET
	// reply.
	ChunkSize int

	// LegacyShortFrameCommit enables the binary-command compatibility
	// mode described in the package documentation.
	LegacyShortFrameCommit bool

	// LargeMessageThreshold is the legacy chunk size at or above
	// which an ADD: chunk does not end the upload. Defaults to
	// protocol.DefaultChunkSize.
	LargeMessageThreshold int

	// IdleTimeout ends the session when no frame arrives for this
	// long. Zero disables it.
	IdleTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.LargeMessageThreshold <= 0 {
		c.LargeMessageThreshold = protocol.DefaultChunkSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Session is the protocol state of one connection. It is not safe for
// concurrent use: frames are handled one at a time, in arrival order.
type Session struct {
	store  *objectstore.Store
	conn   protocol.Conn
	config Config
	logger *slog.Logger

	state    State
	uploadID string
	buffer   []byte

	// legacy is set while the upload in progress was started by an
	// ADD: binary frame.
	legacy bool
}

// New returns an Idle session reading from and replying on conn.
func New(store *objectstore.Store, conn protocol.Conn, config Config) *Session {
	config = config.withDefaults()
	return &Session{
		store:  store,
		conn:   conn,
		config: config,
		logger: config.Logger,
		state:  StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// UploadID returns the id of the upload in progress, or "".
func (s *Session) UploadID() string { return s.uploadID }

// Buffered returns the number of bytes accumulated for the upload in
// progress.
func (s *Session) Buffered() int { return len(s.buffer) }

// Serve handles frames until the connection ends, then closes conn and
// moves to Closed, discarding any uncommitted upload. It returns nil
// when the peer disconnects or ctx is cancelled, ErrIdleTimeout on
// timeout, and the transport error otherwise. A frame the transport
// rejects as oversized is answered with ERROR:PAYLOAD_TOO_LARGE and
// does not end the session.
func (s *Session) Serve(ctx context.Context) error {
	defer s.close()

	for {
		frame, err := s.readFrame(ctx)
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			if err := s.rejectOversizedFrame(ctx, err); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("writing reply: %w", err)
			}
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, protocol.ErrClosed), ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				return ErrIdleTimeout
			default:
				return fmt.Errorf("reading frame: %w", err)
			}
		}
		if err := s.HandleFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

// rejectOversizedFrame answers a frame the transport refused for its
// size. An upload in progress is discarded, since one of its chunks is
// lost.
func (s *Session) rejectOversizedFrame(ctx context.Context, cause error) error {
	if s.state == StateUploading {
		s.logger.Info("discarding upload after oversized frame",
			"object_id", s.uploadID,
			"buffered", len(s.buffer),
			"error", cause,
		)
		s.reset()
	} else {
		s.logger.Info("rejected oversized frame", "error", cause)
	}
	return s.replyError(ctx, protocol.CodePayloadTooLarge)
}

func (s *Session) readFrame(ctx context.Context) (protocol.Frame, error) {
	if s.config.IdleTimeout <= 0 {
		return s.conn.ReadFrame(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, s.config.IdleTimeout)
	defer cancel()
	return s.conn.ReadFrame(readCtx)
}

func (s *Session) close() {
	if s.state == StateUploading {
		s.logger.Info("discarding uncommitted upload",
			"object_id", s.uploadID,
			"buffered", len(s.buffer),
		)
	}
	s.reset()
	s.state = StateClosed
	s.conn.Close()
}

// HandleFrame applies one frame. Protocol-level failures are answered
// with an ERROR reply and do not produce an error; the returned error
// is always a failure to write to the connection.
func (s *Session) HandleFrame(ctx context.Context, frame protocol.Frame) error {
	if s.state == StateClosed {
		return protocol.ErrClosed
	}

	switch frame.Kind {
	case protocol.KindText:
		return s.handleControl(ctx, string(frame.Data))

	case protocol.KindBinary:
		if s.config.LegacyShortFrameCommit && (s.state == StateIdle || s.legacy) {
			return s.handleLegacy(ctx, frame.Data)
		}
		if s.state != StateUploading {
			return s.replyError(ctx, protocol.CodeNoUpload)
		}
		return s.appendChunk(ctx, frame.Data)

	default:
		return s.replyError(ctx, protocol.CodeMalformedFrame)
	}
}

func (s *Session) handleControl(ctx context.Context, text string) error {
	command, err := protocol.ParseCommand(text)
	if err != nil {
		s.logger.Debug("rejected control frame", "error", err)
		return s.replyError(ctx, protocol.CodeFor(err))
	}
	s.logger.Debug("control frame", "command", string(command.Verb), "object_id", command.ID)

	switch command.Verb {
	case protocol.VerbNewID, protocol.VerbAdd:
		id := command.ID
		if id == "" {
			id = objectstore.NewKey()
		}
		s.begin(id, false)
		return s.reply(ctx, protocol.Ready(id))

	case protocol.VerbEndUpload:
		if s.state != StateUploading || command.ID != s.uploadID {
			return s.replyError(ctx, protocol.CodeUploadMismatch)
		}
		return s.commit(ctx)

	case protocol.VerbAbort:
		if s.state != StateUploading || command.ID != s.uploadID {
			return s.replyError(ctx, protocol.CodeUploadMismatch)
		}
		s.logger.Info("upload aborted", "object_id", s.uploadID, "buffered", len(s.buffer))
		s.reset()
		return s.reply(ctx, protocol.Aborted(command.ID))

	case protocol.VerbGet:
		return s.get(ctx, command.ID)

	case protocol.VerbDelete:
		if _, err := s.store.Delete(ctx, command.ID); err != nil {
			s.logger.Error("delete failed", "object_id", command.ID, "error", err)
			return s.replyError(ctx, protocol.CodeFor(err))
		}
		return s.reply(ctx, protocol.Deleted(command.ID))

	case protocol.VerbList:
		keys, err := s.store.ListKeys(ctx)
		if err != nil {
			s.logger.Error("list failed", "error", err)
			return s.replyError(ctx, protocol.CodeFor(err))
		}
		return s.reply(ctx, protocol.List(keys))

	case protocol.VerbStat:
		info, err := s.store.Stat(ctx, command.ID)
		if err != nil {
			return s.replyStoreError(ctx, command.ID, err)
		}
		return s.reply(ctx, protocol.Stat(info))

	default:
		return s.replyError(ctx, protocol.CodeUnknownCommand)
	}
}

// begin starts an upload for id, abandoning any upload in progress.
func (s *Session) begin(id string, legacy bool) {
	if s.state == StateUploading {
		s.logger.Info("abandoning upload for new upload",
			"object_id", s.uploadID,
			"buffered", len(s.buffer),
			"new_object_id", id,
		)
	}
	s.state = StateUploading
	s.uploadID = id
	s.buffer = nil
	s.legacy = legacy
}

func (s *Session) reset() {
	s.state = StateIdle
	s.uploadID = ""
	s.buffer = nil
	s.legacy = false
}

// appendChunk adds data to the upload buffer. It replies only when the
// chunk pushes the upload past the store's size limit, in which case
// the upload is discarded.
func (s *Session) appendChunk(ctx context.Context, data []byte) error {
	limit := s.store.MaxObjectSize()
	if limit > 0 && int64(len(s.buffer))+int64(len(data)) > limit {
		s.logger.Info("upload exceeds maximum object size",
			"object_id", s.uploadID,
			"buffered", len(s.buffer),
			"chunk", len(data),
			"limit", limit,
		)
		s.reset()
		return s.replyError(ctx, protocol.CodePayloadTooLarge)
	}
	s.buffer = append(s.buffer, data...)
	return nil
}

// commit hands the buffer to the store. The store owns the bytes from
// here on, so the session drops its reference rather than reusing the
// backing array. Success or failure, the session returns to Idle.
func (s *Session) commit(ctx context.Context) error {
	id, payload := s.uploadID, s.buffer
	s.reset()

	info, err := s.store.Put(ctx, id, payload)
	if err != nil {
		s.logger.Error("commit failed", "object_id", id, "size", len(payload), "error", err)
		return s.replyError(ctx, protocol.CodeFor(err))
	}
	s.logger.Info("upload committed",
		"object_id", id,
		"size", info.Size,
		"stored_size", info.StoredSize,
	)
	return s.reply(ctx, protocol.Added(id))
}

// get streams the committed object as binary chunks followed by END.
// An empty object produces no chunks.
func (s *Session) get(ctx context.Context, id string) error {
	object, err := s.store.Get(ctx, id)
	if err != nil {
		return s.replyStoreError(ctx, id, err)
	}
	chunks := 0
	for chunk := range protocol.Chunks(object.Data, s.config.ChunkSize) {
		if err := s.conn.WriteFrame(ctx, protocol.Binary(chunk)); err != nil {
			return err
		}
		chunks++
	}
	s.logger.Debug("object streamed", "object_id", id, "size", len(object.Data), "chunks", chunks)
	return s.reply(ctx, protocol.End(id))
}

// handleLegacy interprets a binary frame in legacy mode.
func (s *Session) handleLegacy(ctx context.Context, data []byte) error {
	if !bytes.HasPrefix(data, legacyAddPrefix) {
		return s.handleControl(ctx, string(data))
	}

	chunk := data[len(legacyAddPrefix):]
	if s.state != StateUploading {
		s.begin(objectstore.NewKey(), true)
	}
	if err := s.appendChunk(ctx, chunk); err != nil || s.state != StateUploading {
		return err
	}
	if len(chunk) < s.config.LargeMessageThreshold {
		return s.commit(ctx)
	}
	return nil
}

func (s *Session) replyStoreError(ctx context.Context, id string, err error) error {
	if !objectstore.IsNotFound(err) {
		s.logger.Error("store read failed", "object_id", id, "error", err)
	}
	return s.replyError(ctx, protocol.CodeFor(err))
}

func (s *Session) replyError(ctx context.Context, code protocol.ErrorCode) error {
	return s.reply(ctx, protocol.Error(code))
}

func (s *Session) reply(ctx context.Context, frame protocol.Frame) error {
	return s.conn.WriteFrame(ctx, frame)
}
