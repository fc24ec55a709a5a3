// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"testing"
)

func TestMaterializeAndReadResourcesUncompressed(t *testing.T) {
	entries := map[uint32]ResourceEntry{
		1: {Data: []byte("hello")},
		2: {Data: []byte("world!")},
	}
	offsets, stream, err := MaterializeResources(entries, []uint32{1, 2})
	if err != nil {
		t.Fatalf("MaterializeResources() failed, reason: %v", err)
	}

	got, err := ReadResource(stream, offsets[1], false)
	if err != nil {
		t.Fatalf("ReadResource(rid 1) failed, reason: %v", err)
	}
	if !bytes.Equal(got, entries[1].Data) {
		t.Errorf("ReadResource(rid 1) = %q, want %q", got, entries[1].Data)
	}

	got, err = ReadResource(stream, offsets[2], false)
	if err != nil {
		t.Fatalf("ReadResource(rid 2) failed, reason: %v", err)
	}
	if !bytes.Equal(got, entries[2].Data) {
		t.Errorf("ReadResource(rid 2) = %q, want %q", got, entries[2].Data)
	}
}

func TestMaterializeAndReadResourcesCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("compress-me "), 200)
	entries := map[uint32]ResourceEntry{
		1: {Data: payload, Compressed: true},
	}
	offsets, stream, err := MaterializeResources(entries, []uint32{1})
	if err != nil {
		t.Fatalf("MaterializeResources() failed, reason: %v", err)
	}

	got, err := ReadResource(stream, offsets[1], true)
	if err != nil {
		t.Fatalf("ReadResource() failed, reason: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("ReadResource() did not round-trip the zstd-compressed payload")
	}

	// A zstd-compressed payload should actually compress this repetitive input.
	raw, err := ReadResource(stream, offsets[1], false)
	if err != nil {
		t.Fatalf("ReadResource(raw) failed, reason: %v", err)
	}
	if len(raw) >= len(payload) {
		t.Errorf("compressed entry is %d bytes, not smaller than the %d-byte original", len(raw), len(payload))
	}
}

func TestMaterializeResourcesUnknownRidErrors(t *testing.T) {
	entries := map[uint32]ResourceEntry{1: {Data: []byte("x")}}
	if _, _, err := MaterializeResources(entries, []uint32{1, 2}); err == nil {
		t.Fatal("MaterializeResources() with an order entry absent from entries succeeded, want error")
	}
}

func TestReadResourceOutOfBounds(t *testing.T) {
	stream := []byte{0x05, 0x00, 0x00, 0x00, 'a'} // declares 5 bytes, only 1 present
	if _, err := ReadResource(stream, 0, false); err == nil {
		t.Fatal("ReadResource() past stream end succeeded, want error")
	}
}
