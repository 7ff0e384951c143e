// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
)

// Server reply verbs. STAT and LIST share their spelling with the
// request verbs.
const (
	VerbReady   Verb = "READY"
	VerbAdded   Verb = "ADDED"
	VerbAborted Verb = "ABORTED"
	VerbDeleted Verb = "DELETED"
	VerbEnd     Verb = "END"
	VerbError   Verb = "ERROR"
)

// ErrorCode is the reason carried by an ERROR reply.
type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUploadMismatch  ErrorCode = "UPLOAD_MISMATCH"
	CodeUnknownCommand  ErrorCode = "UNKNOWN_COMMAND"
	CodeMalformedFrame  ErrorCode = "MALFORMED_FRAME"
	CodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeNoUpload        ErrorCode = "NO_UPLOAD"
	CodeInternal        ErrorCode = "INTERNAL"
)

// CodeFor maps an error from command handling to its wire code.
// Anything unrecognized is INTERNAL.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, objectstore.ErrPayloadTooLarge), errors.Is(err, ErrFrameTooLarge):
		return CodePayloadTooLarge
	case errors.Is(err, ErrMalformedFrame), errors.Is(err, objectstore.ErrInvalidKey):
		return CodeMalformedFrame
	case errors.Is(err, ErrUnknownCommand):
		return CodeUnknownCommand
	default:
		return CodeInternal
	}
}

// RemoteError is an ERROR reply surfaced to a client.
type RemoteError struct {
	Code ErrorCode
}

func (e *RemoteError) Error() string {
	return "server replied ERROR:" + string(e.Code)
}

// Is lets errors.Is(err, objectstore.ErrNotFound) hold for a
// NOT_FOUND reply.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case objectstore.ErrNotFound:
		return e.Code == CodeNotFound
	case objectstore.ErrPayloadTooLarge:
		return e.Code == CodePayloadTooLarge
	}
	return false
}

func reply(verb Verb, argument string) Frame {
	return Text(string(verb) + ":" + argument)
}

func Ready(id string) Frame   { return reply(VerbReady, id) }
func Added(id string) Frame   { return reply(VerbAdded, id) }
func Aborted(id string) Frame { return reply(VerbAborted, id) }
func Deleted(id string) Frame { return reply(VerbDeleted, id) }
func End(id string) Frame     { return reply(VerbEnd, id) }

// Error returns an ERROR reply.
func Error(code ErrorCode) Frame { return reply(VerbError, string(code)) }

// List returns a LIST reply. Keys never contain commas
// (objectstore.ValidateKey), so the join is unambiguous.
func List(keys []string) Frame {
	return reply(VerbList, strings.Join(keys, ","))
}

// Stat returns a STAT reply describing info.
func Stat(info objectstore.Info) Frame {
	return reply(VerbStat, strings.Join([]string{
		info.Key,
		strconv.FormatInt(info.Size, 10),
		info.Compression.String(),
		info.Digest.String(),
		strconv.FormatInt(info.CreatedAt.Unix(), 10),
	}, ","))
}

// Reply is a parsed server text frame.
type Reply struct {
	Verb     Verb
	Argument string
}

// ParseReply parses a server text frame.
func ParseReply(text string) (Reply, error) {
	verb, argument, found := strings.Cut(text, ":")
	if !found || verb == "" {
		if Verb(text) == VerbList {
			return Reply{Verb: VerbList}, nil
		}
		return Reply{}, fmt.Errorf("%w: reply %q", ErrMalformedFrame, truncate(text, 64))
	}
	return Reply{Verb: Verb(verb), Argument: argument}, nil
}

// Err returns a *RemoteError for an ERROR reply, and nil otherwise.
func (r Reply) Err() error {
	if r.Verb != VerbError {
		return nil
	}
	return &RemoteError{Code: ErrorCode(r.Argument)}
}

// Expect returns an error unless the reply is verb with argument id.
// An ERROR reply is returned as its *RemoteError.
func (r Reply) Expect(verb Verb, id string) error {
	if err := r.Err(); err != nil {
		return err
	}
	if r.Verb != verb {
		return fmt.Errorf("expected %s reply, got %s", verb, r.Verb)
	}
	if id != "" && r.Argument != id {
		return fmt.Errorf("expected %s:%s, got %s:%s", verb, id, r.Verb, r.Argument)
	}
	return nil
}

// Keys splits a LIST reply's argument.
func (r Reply) Keys() []string {
	if r.Argument == "" {
		return []string{}
	}
	return strings.Split(r.Argument, ",")
}

// Info parses a STAT reply's argument.
func (r Reply) Info() (objectstore.Info, error) {
	fields := strings.Split(r.Argument, ",")
	if len(fields) != 5 {
		return objectstore.Info{}, fmt.Errorf("%w: STAT reply has %d fields, want 5", ErrMalformedFrame, len(fields))
	}

	info := objectstore.Info{Key: fields[0]}
	var err error
	if info.Size, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return objectstore.Info{}, fmt.Errorf("%w: STAT size: %w", ErrMalformedFrame, err)
	}
	if info.Compression, err = objectstore.ParseCompression(fields[2]); err != nil {
		return objectstore.Info{}, fmt.Errorf("%w: STAT compression: %w", ErrMalformedFrame, err)
	}
	if info.Digest, err = objectstore.ParseDigest(fields[3]); err != nil {
		return objectstore.Info{}, fmt.Errorf("%w: STAT digest: %w", ErrMalformedFrame, err)
	}
	created, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return objectstore.Info{}, fmt.Errorf("%w: STAT created: %w", ErrMalformedFrame, err)
	}
	info.CreatedAt = time.Unix(created, 0).UTC()
	return info, nil
}
