// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// DefaultChunkSize is the size of the binary frames a GET reply is
// split into, and the legacy short-frame threshold.
const DefaultChunkSize = 256 * 1024

// DefaultMaxFrameSize bounds the payload of one inbound frame when a
// transport is given no limit of its own.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// Kind distinguishes control frames from payload frames.
type Kind uint8

const (
	// KindText is a UTF-8 control frame.
	KindText Kind = 1

	// KindBinary is a raw payload frame.
	KindBinary Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is one message on a connection.
type Frame struct {
	Kind Kind
	Data []byte
}

// Text returns a text frame carrying s.
func Text(s string) Frame {
	return Frame{Kind: KindText, Data: []byte(s)}
}

// Binary returns a binary frame carrying data. The slice is not copied.
func Binary(data []byte) Frame {
	return Frame{Kind: KindBinary, Data: data}
}

// ErrClosed is returned by Conn methods once the connection has been
// closed locally. A peer closing the connection surfaces as io.EOF.
var ErrClosed = errors.New("protocol: connection closed")

// ErrFrameTooLarge is returned by ReadFrame when an inbound frame
// exceeds the transport's size limit. The frame is dropped. Whether the
// connection can carry further frames depends on the transport.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Conn sends and receives discrete frames. Frames are delivered in
// order and intact. ReadFrame is only called from one goroutine at a
// time, as is WriteFrame; the two may run concurrently. The Data of a
// frame returned by ReadFrame is owned by the caller. An oversized
// inbound frame makes ReadFrame return ErrFrameTooLarge.
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, frame Frame) error
	Close() error
}

// Chunks splits payload into consecutive slices of at most size bytes.
// An empty payload yields nothing. A size of zero or less means
// DefaultChunkSize. The yielded slices alias payload.
func Chunks(payload []byte, size int) iter.Seq[[]byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return slices.Chunk(payload, size)
}
