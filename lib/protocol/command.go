// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/blobstore/lib/objectstore"
)

var (
	// ErrMalformedFrame is returned for a known verb with a missing,
	// superfluous or invalid argument.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrUnknownCommand is returned for a control frame whose verb is
	// not recognized.
	ErrUnknownCommand = errors.New("protocol: unknown command")
)

// Verb names a control command.
type Verb string

const (
	VerbNewID     Verb = "NEWID"
	VerbAdd       Verb = "ADD"
	VerbEndUpload Verb = "ENDUPLOAD"
	VerbAbort     Verb = "ABORT"
	VerbGet       Verb = "GET"
	VerbDelete    Verb = "DEL"
	VerbList      Verb = "LIST"
	VerbStat      Verb = "STAT"
)

type argumentRule uint8

const (
	argumentRequired argumentRule = iota
	argumentOptional
	argumentForbidden
)

var verbRules = map[Verb]argumentRule{
	VerbNewID:     argumentRequired,
	VerbAdd:       argumentOptional,
	VerbEndUpload: argumentRequired,
	VerbAbort:     argumentRequired,
	VerbGet:       argumentRequired,
	VerbDelete:    argumentRequired,
	VerbList:      argumentForbidden,
	VerbStat:      argumentRequired,
}

// Command is a parsed control frame.
type Command struct {
	Verb Verb

	// ID is the object key argument. Empty for LIST, and for ADD
	// without an id.
	ID string
}

// String renders the command in wire form.
func (c Command) String() string {
	if c.ID == "" {
		return string(c.Verb)
	}
	return string(c.Verb) + ":" + c.ID
}

// Frame returns the command as a text frame.
func (c Command) Frame() Frame {
	return Text(c.String())
}

// ParseCommand parses the text of a control frame. A trailing CR/LF
// is ignored so line-oriented tools can drive the protocol. Ids are
// checked with objectstore.ValidateKey.
func ParseCommand(text string) (Command, error) {
	text = strings.TrimRight(text, "\r\n")
	verbText, argument, hasArgument := strings.Cut(text, ":")
	verb := Verb(verbText)

	rule, known := verbRules[verb]
	if !known {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, truncate(verbText, 32))
	}

	switch rule {
	case argumentRequired:
		if argument == "" {
			return Command{}, fmt.Errorf("%w: %s requires an object id", ErrMalformedFrame, verb)
		}
	case argumentForbidden:
		if argument != "" {
			return Command{}, fmt.Errorf("%w: %s takes no argument", ErrMalformedFrame, verb)
		}
	}
	if hasArgument && argument != "" {
		if err := objectstore.ValidateKey(argument); err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
	}
	return Command{Verb: verb, ID: argument}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
