// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"fmt"
)

// GUIDSize is the fixed on-disk size of one #GUID heap record.
const GUIDSize = 16

// GUID is a fixed 16-byte #GUID heap record, kept as raw bytes rather than
// decoded into a structured GUID type: nothing in the metadata engine needs
// to interpret the bytes, only to round-trip them.
type GUID [GUIDSize]byte

// String renders g in the canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
// form, mixed-endian per the .NET Guid layout (first three fields
// little-endian, last two big-endian).
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(g[0])|uint32(g[1])<<8|uint32(g[2])<<16|uint32(g[3])<<24,
		uint16(g[4])|uint16(g[5])<<8,
		uint16(g[6])|uint16(g[7])<<8,
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}

// GUIDHeap is the #GUID heap: fixed 16-byte records addressed by a 1-based
// record number (index 0 means "no GUID").
type GUIDHeap struct {
	*Heap[GUID]
}

func guidHeapCodec() heapCodec[GUID] {
	return heapCodec[GUID]{
		decode: func(data []byte, index uint32) (GUID, uint32, error) {
			// index here is a 1-based record number; the byte offset of
			// record N is (N-1)*16.
			off := (index - 1) * GUIDSize
			if uint64(off)+GUIDSize > uint64(len(data)) {
				return GUID{}, 0, fmt.Errorf("%w: #GUID record %d", ErrOutOfBounds, index)
			}
			var g GUID
			copy(g[:], data[off:off+GUIDSize])
			return g, 1, nil
		},
		encode: func(g GUID) []byte {
			b := make([]byte, GUIDSize)
			copy(b, g[:])
			return b
		},
		size: func(GUID) uint32 {
			// The #GUID heap's index space is 1-based record numbers, not
			// byte offsets (unlike the other three heaps), so appending one
			// record advances the running index by 1, not by GUIDSize.
			return 1
		},
		count: func(data []byte) uint32 {
			// +1 because record numbering is 1-based: a heap with one
			// 16-byte record spans indices [1, 2).
			return uint32(len(data))/GUIDSize + 1
		},
		startIndex: 1,
		byteOffset: func(index uint32) uint32 { return (index - 1) * GUIDSize },
		hashKey: func(g GUID) uint64 {
			// Cheap non-cryptographic fold; GUID heaps are small so
			// collisions just cost an extra bytes.Equal comparison.
			var h uint64
			for i, b := range g {
				h ^= uint64(b) << (8 * (i % 8))
			}
			return h
		},
		equal: func(a, b GUID) bool { return bytes.Equal(a[:], b[:]) },
	}
}

// NewGUIDHeap builds a GUIDHeap over original bytes parsed from the image's
// #GUID stream.
func NewGUIDHeap(original []byte) *GUIDHeap {
	recordCount := uint32(len(original)) / GUIDSize
	return &GUIDHeap{Heap: newHeap(original, recordCount+1, guidHeapCodec())}
}
