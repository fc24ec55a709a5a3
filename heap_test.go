// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "testing"

func rawStringsHeap(strs ...string) []byte {
	var out []byte
	for _, s := range strs {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}

func TestStringsHeapGetOriginal(t *testing.T) {
	original := rawStringsHeap("", "Foo", "Bar")
	h := NewStringsHeap(original, true)

	tests := []struct {
		index uint32
		want  string
	}{
		{0, ""},
		{1, "Foo"},
		{5, "Bar"},
	}
	for _, tt := range tests {
		got, err := h.Get(tt.index)
		if err != nil {
			t.Fatalf("Get(%d) failed, reason: %v", tt.index, err)
		}
		if got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestStringsHeapAppendAndDedup(t *testing.T) {
	original := rawStringsHeap("", "Foo")
	h := NewStringsHeap(original, true)

	idx1 := h.Append("Bar")
	idx2 := h.Append("Bar") // same value: dedup must reuse idx1
	if idx1 != idx2 {
		t.Errorf("Append() of an identical string returned distinct indices %d and %d", idx1, idx2)
	}

	got, err := h.Get(idx1)
	if err != nil {
		t.Fatalf("Get(%d) failed, reason: %v", idx1, err)
	}
	if got != "Bar" {
		t.Errorf("Get(%d) = %q, want %q", idx1, got, "Bar")
	}
}

func TestStringsHeapMaterializeBytesAppendsAfterOriginal(t *testing.T) {
	original := rawStringsHeap("", "Foo")
	h := NewStringsHeap(original, true)
	h.Append("Bar")

	out, err := h.MaterializeBytes()
	if err != nil {
		t.Fatalf("MaterializeBytes() failed, reason: %v", err)
	}
	want := rawStringsHeap("", "Foo", "Bar")
	if string(out) != string(want) {
		t.Errorf("MaterializeBytes() = %q, want %q", out, want)
	}
}

func TestStringsHeapRemovedIndexErrors(t *testing.T) {
	original := rawStringsHeap("", "Foo")
	h := NewStringsHeap(original, true)
	h.Remove(1, FailIfReferenced)

	if _, err := h.Get(1); err == nil {
		t.Fatal("Get() of a removed index succeeded, want error")
	}
}

func TestStringsHeapMaterializeBytesNeverShrinksOriginal(t *testing.T) {
	// Removal must never physically delete original bytes: surviving
	// indices (byte offsets) would otherwise shift.
	original := rawStringsHeap("", "Foo", "Bar")
	h := NewStringsHeap(original, true)
	h.Remove(1, FailIfReferenced)

	out, err := h.MaterializeBytes()
	if err != nil {
		t.Fatalf("MaterializeBytes() failed, reason: %v", err)
	}
	if len(out) != len(original) {
		t.Errorf("MaterializeBytes() shrank a removal to %d bytes, want unchanged %d", len(out), len(original))
	}
}

func TestStringsHeapModifySameSizeInPlace(t *testing.T) {
	original := rawStringsHeap("", "Foo")
	h := NewStringsHeap(original, true)
	h.Modify(1, "Bar") // same encoded length as "Foo"

	out, err := h.MaterializeBytes()
	if err != nil {
		t.Fatalf("MaterializeBytes() failed, reason: %v", err)
	}
	want := rawStringsHeap("", "Bar")
	if string(out) != string(want) {
		t.Errorf("MaterializeBytes() = %q, want %q", out, want)
	}
}

func TestStringsHeapModifyGrowingSizeFailsMaterialize(t *testing.T) {
	original := rawStringsHeap("", "Foo")
	h := NewStringsHeap(original, true)
	h.Modify(1, "MuchLonger")

	if _, err := h.MaterializeBytes(); err == nil {
		t.Fatal("MaterializeBytes() with a size-changing modify succeeded, want error")
	}
}

func TestStringsHeapOutOfBoundsGet(t *testing.T) {
	h := NewStringsHeap(rawStringsHeap(""), true)
	if _, err := h.Get(100); err == nil {
		t.Fatal("Get() past the end of the heap succeeded, want error")
	}
}
