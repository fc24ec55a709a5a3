// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// heapCodec supplies the per-element-type operations a Heap[T] needs: how
// to decode an element starting at a byte offset, how big it would be if
// appended, and how to encode it. The four concrete heaps (#Strings, #US,
// #Blob, #GUID) each provide one of these; Heap[T] carries the append/
// modify/remove bookkeeping common to all of them, matching the shared
// interface spec.md describes for the four heap types.
type heapCodec[T any] struct {
	decode func(data []byte, index uint32) (value T, footprint uint32, err error)
	encode func(value T) []byte
	size   func(value T) uint32
	// count returns how many index units original currently spans: byte
	// length for the #Strings/#US/#Blob heaps, record count for #GUID
	// (whose indices are 1-based record numbers, not byte offsets).
	count func(original []byte) uint32
	// startIndex is the first valid index in this heap's index space: 0 for
	// the byte-addressed heaps, 1 for the GUID heap (index 0 there means
	// "no GUID" and addresses no record).
	startIndex uint32
	// hashKey, if non-nil, enables append-time dedup: values that hash equal
	// and compare equal to an already-appended value reuse its index instead
	// of being appended again.
	hashKey func(value T) uint64
	equal   func(a, b T) bool
	// byteOffset converts an index into this heap's byte offset within
	// original, for heaps whose index space is not itself a byte offset
	// (the #GUID heap's 1-based record numbers). nil means index IS the
	// byte offset, true for the three byte-addressed heaps.
	byteOffset func(index uint32) uint32
}

// Heap is the generic engine shared by all four heap stores. original holds
// the as-parsed bytes (or, for the GUID heap, is indexed by 16-byte
// records); changes overlays pending append/modify/remove state on top of
// it. Heap never mutates original in place; get/iterate present the
// overlaid view, and write-back is the only consumer that materialises
// changes into new bytes.
type Heap[T any] struct {
	original []byte
	codec    heapCodec[T]
	changes  *HeapChangeSet[T]
	dedup    map[uint64][]appendedItem[T]
}

// newHeap constructs a Heap over original data, seeding the running append
// counter at nextIndex (the original byte length for strings/US/blob; for
// GUID the caller passes the record count plus one) and using codec for
// element access.
func newHeap[T any](original []byte, nextIndex uint32, codec heapCodec[T]) *Heap[T] {
	h := &Heap[T]{
		original: original,
		codec:    codec,
		changes:  newHeapChangeSet[T](nextIndex),
	}
	if codec.hashKey != nil {
		h.dedup = make(map[uint64][]appendedItem[T])
	}
	return h
}

// OriginalByteSize returns the size of the heap at parse time.
func (h *Heap[T]) OriginalByteSize() uint32 {
	return uint32(len(h.original))
}

// FinalIndexBound returns one past the highest index this heap will occupy
// once every pending append is materialized: a byte count for the three
// byte-addressed heaps, a record count for the #GUID heap. Used to decide
// whether a heap's final size needs the wide (4-byte) index flag.
func (h *Heap[T]) FinalIndexBound() uint32 {
	return h.changes.nextIndex
}

// originalCount returns how many index units (bytes, or GUID records) the
// original content spans.
func (h *Heap[T]) originalCount() uint32 {
	return h.codec.count(h.original)
}

// Get decodes and returns the element at index, honoring any pending
// modification and erroring if the index has been removed.
func (h *Heap[T]) Get(index uint32) (T, error) {
	var zero T
	if strategy, removed := h.changes.IsRemoved(index); removed {
		return zero, fmt.Errorf("%w: heap index %d was removed (%s)", ErrInvalidModification, index, strategy)
	}
	if v, ok := h.changes.modified[index]; ok {
		return v, nil
	}
	for _, a := range h.changes.appended {
		if a.Index == index {
			return a.Value, nil
		}
	}
	if index < h.codec.startIndex || index >= h.originalCount() {
		return zero, fmt.Errorf("%w: heap index %d", ErrOutOfBounds, index)
	}
	v, _, err := h.codec.decode(h.original, index)
	return v, err
}

// HeapEntry is one (index, value) pair yielded by Iterate.
type HeapEntry[T any] struct {
	Index uint32
	Value T
}

// Iterate walks every live element of the heap, original content first
// (skipping removed/overlaying modified indices) followed by appended
// items in append order. It makes a single pass and returns every live
// entry in one slice; each call re-walks from the start.
func (h *Heap[T]) Iterate() ([]HeapEntry[T], error) {
	var out []HeapEntry[T]
	off := h.codec.startIndex
	for off < h.originalCount() {
		if _, removed := h.changes.IsRemoved(off); removed {
			_, footprint, err := h.codec.decode(h.original, off)
			if err != nil {
				return nil, err
			}
			off += footprint
			continue
		}
		if v, ok := h.changes.modified[off]; ok {
			_, footprint, err := h.codec.decode(h.original, off)
			if err != nil {
				return nil, err
			}
			out = append(out, HeapEntry[T]{Index: off, Value: v})
			off += footprint
			continue
		}
		v, footprint, err := h.codec.decode(h.original, off)
		if err != nil {
			return nil, err
		}
		out = append(out, HeapEntry[T]{Index: off, Value: v})
		off += footprint
	}
	for _, a := range h.changes.appended {
		if _, removed := h.changes.IsRemoved(a.Index); removed {
			continue
		}
		out = append(out, HeapEntry[T]{Index: a.Index, Value: a.Value})
	}
	return out, nil
}

// Append records value in the change set and returns the index it will
// occupy once written. If the codec supports dedup and an equal value was
// already appended, the existing index is returned instead and no new
// entry is recorded; this never changes an index already handed out.
func (h *Heap[T]) Append(value T) uint32 {
	if h.dedup != nil {
		key := h.codec.hashKey(value)
		for _, cand := range h.dedup[key] {
			if h.codec.equal(cand.Value, value) {
				return cand.Index
			}
		}
	}
	idx := h.changes.Append(value, h.codec.size(value))
	if h.dedup != nil {
		key := h.codec.hashKey(value)
		h.dedup[key] = append(h.dedup[key], appendedItem[T]{Value: value, Index: idx})
	}
	return idx
}

// Modify overwrites the entry at index with value. Legal unconditionally at
// the change-set level; MaterializeBytes rejects a modification whose
// encoded size differs from the original slot's.
func (h *Heap[T]) Modify(index uint32, value T) {
	h.changes.Modify(index, value)
}

// Remove marks index for removal under strategy.
func (h *Heap[T]) Remove(index uint32, strategy RemovalStrategy) {
	h.changes.Remove(index, strategy)
}

// Replace wipes all pending state and installs data as a new original,
// reseeding the append counter at seedIndex (len(data) for byte-addressed
// heaps, a record count for the GUID heap).
func (h *Heap[T]) Replace(data []byte, seedIndex uint32) {
	h.original = data
	h.changes.Reset(seedIndex)
	if h.dedup != nil {
		h.dedup = make(map[uint64][]appendedItem[T])
	}
}

// MaterializeBytes produces the final on-disk bytes for this heap: the
// original content with any in-place modifications patched (only legal
// when the replacement's encoded size matches the original slot, since a
// byte-addressed heap cannot grow a slot without shifting every later
// index) followed by every appended entry, in append order. Removed
// entries are never physically deleted: doing so would shift every index
// after them, invalidating every surviving reference. A removal only ever
// means "no live row points at this slot any more" (enforced earlier by
// the change-cascade/validation passes), not "these bytes are gone".
func (h *Heap[T]) MaterializeBytes() ([]byte, error) {
	out := append([]byte(nil), h.original...)
	for idx, v := range h.changes.modified {
		if _, removed := h.changes.IsRemoved(idx); removed {
			continue
		}
		_, footprint, err := h.codec.decode(h.original, idx)
		if err != nil {
			return nil, err
		}
		encoded := h.codec.encode(v)
		if h.codec.byteOffset != nil {
			// footprint is in index units; convert it to the slot's byte size.
			footprint = h.codec.byteOffset(idx+footprint) - h.codec.byteOffset(idx)
		}
		if uint32(len(encoded)) != footprint {
			return nil, fmt.Errorf("%w: heap index %d changed size (%d -> %d bytes) on modify, which would shift every later index",
				ErrHeapShrink, idx, footprint, len(encoded))
		}
		byteOff := idx
		if h.codec.byteOffset != nil {
			byteOff = h.codec.byteOffset(idx)
		}
		copy(out[byteOff:], encoded)
	}
	for _, a := range h.changes.appended {
		if _, removed := h.changes.IsRemoved(a.Index); removed {
			continue
		}
		out = append(out, h.codec.encode(a.Value)...)
	}
	return out, nil
}

// defaultHashKey hashes the encoded bytes of value with xxhash, used by the
// string and blob heaps to build an O(1) append-time dedup index instead of
// an O(n) linear scan over everything appended so far.
func defaultHashKey[T any](encode func(T) []byte) func(T) uint64 {
	return func(v T) uint64 {
		return xxhash.Sum64(encode(v))
	}
}
