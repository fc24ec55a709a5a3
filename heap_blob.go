// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"fmt"
)

// BlobHeap is the #Blob heap: length-prefixed arbitrary byte payloads
// (signatures, custom attribute values, constants, marshalling
// descriptors), every appended entry taking compressed_len(len)+len bytes.
type BlobHeap struct {
	*Heap[[]byte]
}

func blobHeapCodec(dedup bool) heapCodec[[]byte] {
	c := heapCodec[[]byte]{
		decode: func(data []byte, index uint32) ([]byte, uint32, error) {
			cur := &Cursor{Data: data, Pos: index}
			b, err := cur.ReadLengthPrefixedBytes()
			if err != nil {
				return nil, 0, fmt.Errorf("#Blob heap at %d: %w", index, err)
			}
			return b, cur.Pos - index, nil
		},
		encode: func(b []byte) []byte {
			cur := &Cursor{}
			_ = cur.WriteLengthPrefixedBytes(b)
			return cur.Data
		},
		size: func(b []byte) uint32 {
			n, _ := CompressedUintSize(uint32(len(b)))
			return n + uint32(len(b))
		},
		count: func(data []byte) uint32 {
			return uint32(len(data))
		},
	}
	if dedup {
		c.hashKey = defaultHashKey(func(b []byte) []byte { return b })
		c.equal = bytes.Equal
	}
	return c
}

// NewBlobHeap builds a BlobHeap over original bytes parsed from the
// image's #Blob stream. dedup enables xxhash-backed append deduplication,
// useful because the same signature or custom-attribute blob is commonly
// appended by more than one builder in the same session.
func NewBlobHeap(original []byte, dedup bool) *BlobHeap {
	return &BlobHeap{Heap: newHeap(original, uint32(len(original)), blobHeapCodec(dedup))}
}
