// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/bureau-foundation/blobstore/lib/protocol"
)

// pipeBuffer is how many frames each direction of a Pipe holds before
// WriteFrame blocks.
const pipeBuffer = 16

var _ protocol.Conn = (*PipeConn)(nil)

// PipeConn is one end of an in-memory frame pipe.
type PipeConn struct {
	incoming <-chan protocol.Frame
	outgoing chan<- protocol.Frame

	done       chan struct{}
	closeOnce  sync.Once
	remoteDone <-chan struct{}
}

// Pipe returns two connected ends. Frames written on one are read on
// the other in order. After one end closes, the other reads any frames
// still buffered and then io.EOF.
func Pipe() (*PipeConn, *PipeConn) {
	aToB := make(chan protocol.Frame, pipeBuffer)
	bToA := make(chan protocol.Frame, pipeBuffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &PipeConn{incoming: bToA, outgoing: aToB, done: aDone, remoteDone: bDone}
	b := &PipeConn{incoming: aToB, outgoing: bToA, done: bDone, remoteDone: aDone}
	return a, b
}

func (p *PipeConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	select {
	case frame := <-p.incoming:
		return frame, nil
	case <-p.done:
		return protocol.Frame{}, protocol.ErrClosed
	case <-p.remoteDone:
		select {
		case frame := <-p.incoming:
			return frame, nil
		default:
			return protocol.Frame{}, io.EOF
		}
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

// WriteFrame copies frame.Data, so the caller may reuse its buffer.
func (p *PipeConn) WriteFrame(ctx context.Context, frame protocol.Frame) error {
	select {
	case <-p.done:
		return protocol.ErrClosed
	case <-p.remoteDone:
		return io.ErrClosedPipe
	default:
	}

	frame.Data = slices.Clone(frame.Data)
	select {
	case p.outgoing <- frame:
		return nil
	case <-p.done:
		return protocol.ErrClosed
	case <-p.remoteDone:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
