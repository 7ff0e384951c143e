// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": []byte{1, 2, 3}, "mid": "x"}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestStreamSequence(t *testing.T) {
	type message struct {
		Kind uint8  `cbor:"kind"`
		Data []byte `cbor:"data"`
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	want := []message{
		{Kind: 1, Data: []byte("GET:abc")},
		{Kind: 2, Data: bytes.Repeat([]byte{0xAB}, 4096)},
		{Kind: 2, Data: nil},
	}
	for _, m := range want {
		if err := encoder.Encode(m); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, expected := range want {
		var got message
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode #%d: %v", i, err)
		}
		if got.Kind != expected.Kind || !bytes.Equal(got.Data, expected.Data) {
			t.Errorf("message #%d = %+v, want %+v", i, got, expected)
		}
	}
}
