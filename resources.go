// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ResourceEntry is one pending embedded managed resource: ManifestResource
// rows with a null Implementation coded index point into the CLR header's
// Resources directory blob rather than an external .resources file, and
// this is the payload write-back materialises at the offset it assigns.
//
// Compressed marks an engine-specific extension beyond ECMA-335 II.22.24:
// the format itself stores each entry as a plain 4-byte length prefix plus
// raw bytes, with no compression scheme of its own. A Compressed entry is
// zstd-framed after that length prefix instead of stored raw, which a
// stock .NET reader's Assembly.GetManifestResourceStream has no idea to
// undo; ReadResource is this engine's counterpart for reading such entries
// back, not a reimplementation of how the CLR resolves them.
type ResourceEntry struct {
	Data       []byte
	Compressed bool
}

var zstdEncoderOpts = []zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedDefault)}

// MaterializeResources lays out entries (visited in the order order lists,
// so callers control the resulting blob's determinism) into one contiguous
// resource stream, compressing the entries that asked for it, and returns
// the byte offset each rid landed at alongside the assembled stream. Offsets
// are relative to the start of the stream, matching how ManifestResource.Offset
// is defined when Implementation is null (ECMA-335 II.22.24).
func MaterializeResources(entries map[uint32]ResourceEntry, order []uint32) (map[uint32]uint32, []byte, error) {
	offsets := make(map[uint32]uint32, len(order))
	var out []byte
	var enc *zstd.Encoder
	for _, rid := range order {
		entry, ok := entries[rid]
		if !ok {
			return nil, nil, fmt.Errorf("%w: resource materialization order references unknown rid 0x%X", ErrInvalidModification, rid)
		}
		payload := entry.Data
		if entry.Compressed {
			if enc == nil {
				var err error
				enc, err = zstd.NewWriter(nil, zstdEncoderOpts...)
				if err != nil {
					return nil, nil, fmt.Errorf("resource stream zstd writer: %w", err)
				}
				defer enc.Close()
			}
			payload = enc.EncodeAll(entry.Data, nil)
		}
		offsets[rid] = uint32(len(out))
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
		out = append(out, lenPrefix[:]...)
		out = append(out, payload...)
	}
	return offsets, out, nil
}

// ReadResource extracts the entry at offset within stream, zstd-decoding it
// first if compressed reports the entry was stored that way (per
// ResourceEntry.Compressed's doc comment, a plain .NET reader cannot make
// this determination on its own; the caller is expected to already know,
// e.g. by having written the image with this engine).
func ReadResource(stream []byte, offset uint32, compressed bool) ([]byte, error) {
	if uint64(offset)+4 > uint64(len(stream)) {
		return nil, fmt.Errorf("%w: resource offset 0x%X", ErrOutOfBounds, offset)
	}
	size := binary.LittleEndian.Uint32(stream[offset:])
	start := offset + 4
	if uint64(start)+uint64(size) > uint64(len(stream)) {
		return nil, fmt.Errorf("%w: resource at offset 0x%X declares %d bytes past stream end", ErrOutOfBounds, offset, size)
	}
	raw := stream[start : start+size]
	if !compressed {
		return append([]byte(nil), raw...), nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("resource stream zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("resource at offset 0x%X: %w", offset, err)
	}
	return data, nil
}
