// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The object store stamps every committed object with a creation time
// and the transports compute read deadlines from the current time.
// Both take a Clock rather than calling time.Now directly so tests can
// assert exact timestamps:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := objectstore.New(backend, objectstore.Options{Clock: c})
//	c.Advance(time.Minute)
package clock
