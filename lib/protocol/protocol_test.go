// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		want    Command
		wantErr error
	}{
		{"NEWID:abc", Command{Verb: VerbNewID, ID: "abc"}, nil},
		{"NEWID:abc\r\n", Command{Verb: VerbNewID, ID: "abc"}, nil},
		{"ADD", Command{Verb: VerbAdd}, nil},
		{"ADD:", Command{Verb: VerbAdd}, nil},
		{"ADD:xyz", Command{Verb: VerbAdd, ID: "xyz"}, nil},
		{"ENDUPLOAD:abc", Command{Verb: VerbEndUpload, ID: "abc"}, nil},
		{"ABORT:abc", Command{Verb: VerbAbort, ID: "abc"}, nil},
		{"GET:abc", Command{Verb: VerbGet, ID: "abc"}, nil},
		{"DEL:abc", Command{Verb: VerbDelete, ID: "abc"}, nil},
		{"STAT:abc", Command{Verb: VerbStat, ID: "abc"}, nil},
		{"LIST", Command{Verb: VerbList}, nil},
		{"LIST:", Command{Verb: VerbList}, nil},

		{"NEWID", Command{}, ErrMalformedFrame},
		{"NEWID:", Command{}, ErrMalformedFrame},
		{"GET:", Command{}, ErrMalformedFrame},
		{"DEL:a,b", Command{}, ErrMalformedFrame},
		{"GET:has space", Command{}, ErrMalformedFrame},
		{"LIST:extra", Command{}, ErrMalformedFrame},

		{"", Command{}, ErrUnknownCommand},
		{"get:abc", Command{}, ErrUnknownCommand},
		{"PUT:abc", Command{}, ErrUnknownCommand},
		{"hello world", Command{}, ErrUnknownCommand},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.text), func(t *testing.T) {
			got, err := ParseCommand(test.text)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("ParseCommand error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if got != test.want {
				t.Fatalf("ParseCommand = %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	if got := (Command{Verb: VerbList}).String(); got != "LIST" {
		t.Errorf("LIST renders as %q", got)
	}
	if got := (Command{Verb: VerbGet, ID: "k"}).String(); got != "GET:k" {
		t.Errorf("GET renders as %q", got)
	}
	frame := (Command{Verb: VerbDelete, ID: "k"}).Frame()
	if frame.Kind != KindText || string(frame.Data) != "DEL:k" {
		t.Errorf("Frame() = %s %q", frame.Kind, frame.Data)
	}
}

func TestChunks(t *testing.T) {
	const size = 10
	tests := []struct {
		length     int
		wantFrames int
	}{
		{0, 0},
		{1, 1},
		{size, 1},
		{size + 1, 2},
		{3*size + 7, 4},
		{4 * size, 4},
	}
	for _, test := range tests {
		payload := bytes.Repeat([]byte{0xAB}, test.length)
		var reassembled []byte
		frames := 0
		for chunk := range Chunks(payload, size) {
			if len(chunk) == 0 || len(chunk) > size {
				t.Fatalf("length %d: chunk of %d bytes", test.length, len(chunk))
			}
			reassembled = append(reassembled, chunk...)
			frames++
		}
		if frames != test.wantFrames {
			t.Errorf("length %d: %d chunks, want %d", test.length, frames, test.wantFrames)
		}
		if !bytes.Equal(reassembled, payload) {
			t.Errorf("length %d: chunks do not reassemble to the payload", test.length)
		}
	}
}

func TestChunksDefaultSize(t *testing.T) {
	payload := make([]byte, DefaultChunkSize+1)
	count := 0
	for range Chunks(payload, 0) {
		count++
	}
	if count != 2 {
		t.Fatalf("got %d chunks with default size, want 2", count)
	}
}

func TestReplyBuilders(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{Ready("k"), "READY:k"},
		{Added("k"), "ADDED:k"},
		{Aborted("k"), "ABORTED:k"},
		{Deleted("k"), "DELETED:k"},
		{End("k"), "END:k"},
		{Error(CodeNotFound), "ERROR:NOT_FOUND"},
		{List(nil), "LIST:"},
		{List([]string{"a", "c"}), "LIST:a,c"},
	}
	for _, test := range tests {
		if test.frame.Kind != KindText {
			t.Errorf("%s: kind %s, want text", test.want, test.frame.Kind)
		}
		if string(test.frame.Data) != test.want {
			t.Errorf("got %q, want %q", test.frame.Data, test.want)
		}
	}
}

func TestParseReplyList(t *testing.T) {
	for text, want := range map[string][]string{
		"LIST":       {},
		"LIST:":      {},
		"LIST:a":     {"a"},
		"LIST:a,b,c": {"a", "b", "c"},
	} {
		reply, err := ParseReply(text)
		if err != nil {
			t.Fatalf("ParseReply(%q): %v", text, err)
		}
		if reply.Verb != VerbList {
			t.Fatalf("ParseReply(%q).Verb = %s", text, reply.Verb)
		}
		if got := reply.Keys(); !slices.Equal(got, want) {
			t.Errorf("ParseReply(%q).Keys() = %v, want %v", text, got, want)
		}
	}
}

func TestReplyExpect(t *testing.T) {
	reply, _ := ParseReply("ADDED:k")
	if err := reply.Expect(VerbAdded, "k"); err != nil {
		t.Errorf("Expect(ADDED, k): %v", err)
	}
	if err := reply.Expect(VerbAdded, "other"); err == nil {
		t.Error("Expect accepted a mismatched id")
	}
	if err := reply.Expect(VerbReady, ""); err == nil {
		t.Error("Expect accepted a mismatched verb")
	}

	errorReply, _ := ParseReply("ERROR:NOT_FOUND")
	err := errorReply.Expect(VerbAdded, "k")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != CodeNotFound {
		t.Fatalf("Expect on ERROR reply = %v, want *RemoteError NOT_FOUND", err)
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Error("NOT_FOUND reply does not match objectstore.ErrNotFound")
	}
}

func TestStatReplyRoundTrip(t *testing.T) {
	payload := []byte("stat me")
	info := objectstore.Info{
		Key:         "obj",
		Size:        int64(len(payload)),
		Compression: objectstore.CompressionZstd,
		Digest:      objectstore.ComputeDigest(payload),
		CreatedAt:   time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	}
	frame := Stat(info)
	reply, err := ParseReply(string(frame.Data))
	if err != nil {
		t.Fatal(err)
	}
	got, err := reply.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if got.Key != info.Key || got.Size != info.Size || got.Compression != info.Compression ||
		got.Digest != info.Digest || !got.CreatedAt.Equal(info.CreatedAt) {
		t.Fatalf("STAT round trip = %+v, want %+v", got, info)
	}

	bad, _ := ParseReply("STAT:obj,notanumber,none," + strings.Repeat("0", 64) + ",0")
	if _, err := bad.Info(); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Info on bad size = %v, want ErrMalformedFrame", err)
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{objectstore.ErrNotFound, CodeNotFound},
		{fmt.Errorf("wrapped: %w", objectstore.ErrPayloadTooLarge), CodePayloadTooLarge},
		{fmt.Errorf("reading: %w", ErrFrameTooLarge), CodePayloadTooLarge},
		{ErrMalformedFrame, CodeMalformedFrame},
		{objectstore.ErrInvalidKey, CodeMalformedFrame},
		{ErrUnknownCommand, CodeUnknownCommand},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, test := range tests {
		if got := CodeFor(test.err); got != test.want {
			t.Errorf("CodeFor(%v) = %s, want %s", test.err, got, test.want)
		}
	}
}
