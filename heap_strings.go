// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// StringsHeap is the #Strings heap: UTF-8, NUL-terminated strings, every
// appended entry taking utf8_len+1 bytes.
type StringsHeap struct {
	*Heap[string]
}

func stringsHeapCodec(dedup bool) heapCodec[string] {
	c := heapCodec[string]{
		decode: func(data []byte, index uint32) (string, uint32, error) {
			c := &Cursor{Data: data, Pos: index}
			s, err := c.ReadCString()
			if err != nil {
				return "", 0, fmt.Errorf("#Strings heap at %d: %w", index, err)
			}
			return s, c.Pos - index, nil
		},
		encode: func(s string) []byte {
			b := make([]byte, 0, len(s)+1)
			b = append(b, s...)
			return append(b, 0)
		},
		size: func(s string) uint32 {
			return uint32(len(s)) + 1
		},
		count: func(data []byte) uint32 {
			return uint32(len(data))
		},
	}
	if dedup {
		c.hashKey = defaultHashKey(c.encode)
		c.equal = func(a, b string) bool { return a == b }
	}
	return c
}

// NewStringsHeap builds a StringsHeap over original bytes parsed from the
// image's #Strings stream. dedup enables xxhash-backed append
// deduplication.
func NewStringsHeap(original []byte, dedup bool) *StringsHeap {
	return &StringsHeap{Heap: newHeap(original, uint32(len(original)), stringsHeapCodec(dedup))}
}
