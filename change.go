// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// RemovalStrategy selects how a removal handles surviving references to the
// removed heap entry or table row.
type RemovalStrategy int

const (
	// FailIfReferenced aborts the write if any surviving row still points at
	// the removed target.
	FailIfReferenced RemovalStrategy = iota
	// RemoveReferences cascades: any row referencing the removed target is
	// itself marked for removal. Cascades iterate to a fixed point.
	RemoveReferences
	// NullifyReferences rewrites referencing fields to the null reference
	// instead of removing the referencing row.
	NullifyReferences
)

// String names the strategy, used in validator/error messages.
func (s RemovalStrategy) String() string {
	switch s {
	case FailIfReferenced:
		return "fail_if_referenced"
	case RemoveReferences:
		return "remove_references"
	case NullifyReferences:
		return "nullify_references"
	default:
		return "unknown"
	}
}

// appendedItem pairs a pending heap append with the index it will occupy
// once written; the index is assigned eagerly so callers can use it for
// downstream references within the same builder session.
type appendedItem[T any] struct {
	Value T
	Index uint32
}

// HeapChangeSet accumulates append/modify/remove operations against one
// heap without touching the heap's original bytes; Heap[T] overlays these
// on top of the original content for get/iterate and materialises them at
// write-back time.
type HeapChangeSet[T any] struct {
	nextIndex uint32
	appended  []appendedItem[T]
	modified  map[uint32]T
	removed   map[uint32]RemovalStrategy
}

func newHeapChangeSet[T any](nextIndex uint32) *HeapChangeSet[T] {
	return &HeapChangeSet[T]{
		nextIndex: nextIndex,
		modified:  make(map[uint32]T),
		removed:   make(map[uint32]RemovalStrategy),
	}
}

// Append records value as pending, consuming footprint bytes (or one record
// for the GUID heap) from the running index counter, and returns the index
// it will occupy once written.
func (cs *HeapChangeSet[T]) Append(value T, footprint uint32) uint32 {
	idx := cs.nextIndex
	cs.appended = append(cs.appended, appendedItem[T]{Value: value, Index: idx})
	cs.nextIndex += footprint
	return idx
}

// Modify records a same-slot replacement for an existing index.
func (cs *HeapChangeSet[T]) Modify(index uint32, value T) {
	cs.modified[index] = value
}

// Remove marks index for removal under strategy.
func (cs *HeapChangeSet[T]) Remove(index uint32, strategy RemovalStrategy) {
	cs.removed[index] = strategy
}

// IsRemoved reports whether index has been marked for removal, and under
// which strategy.
func (cs *HeapChangeSet[T]) IsRemoved(index uint32) (RemovalStrategy, bool) {
	s, ok := cs.removed[index]
	return s, ok
}

// Reset discards all pending append/modify/remove state and reseeds the
// running index counter, used by full-replacement of a heap's bytes.
func (cs *HeapChangeSet[T]) Reset(nextIndex uint32) {
	cs.nextIndex = nextIndex
	cs.appended = nil
	cs.modified = make(map[uint32]T)
	cs.removed = make(map[uint32]RemovalStrategy)
}

// TableRowChange accumulates insert/modify/remove operations against one
// metadata table, mirroring HeapChangeSet's shape for the row-oriented side
// of the change model.
type TableRowChange struct {
	originalRowCount uint32
	inserted         []Row
	modified         map[uint32]Row
	removed          map[uint32]RemovalStrategy
}

func newTableRowChange(originalRowCount uint32) *TableRowChange {
	return &TableRowChange{
		originalRowCount: originalRowCount,
		modified:         make(map[uint32]Row),
		removed:          make(map[uint32]RemovalStrategy),
	}
}

// Insert appends row to the table and returns the 1-based rid it will
// occupy: original_row_count + insert_position + 1.
func (tc *TableRowChange) Insert(row Row) uint32 {
	rid := tc.originalRowCount + uint32(len(tc.inserted)) + 1
	row.RID = rid
	tc.inserted = append(tc.inserted, row)
	return rid
}

// Modify records a replacement row for an existing rid.
func (tc *TableRowChange) Modify(rid uint32, row Row) {
	row.RID = rid
	tc.modified[rid] = row
}

// Remove marks rid for removal under strategy.
func (tc *TableRowChange) Remove(rid uint32, strategy RemovalStrategy) {
	tc.removed[rid] = strategy
}

// FinalRowCount returns the row count after applying inserts and removals
// (modifications do not change the count).
func (tc *TableRowChange) FinalRowCount() uint32 {
	return tc.originalRowCount + uint32(len(tc.inserted)) - uint32(len(tc.removed))
}
