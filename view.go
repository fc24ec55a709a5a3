// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// View is a read-only, shared handle onto one parsed managed PE image. It
// owns the underlying byte buffer (loaded via mmap or a plain read) and
// every heap/table reader borrows from it; the view outlives all such
// borrows (ECMA-335 concurrency model: immutable shared views, single-
// writer editable wrapper).
type View struct {
	pe *File

	strings     *StringsHeap
	userStrings *UserStringsHeap
	blobs       *BlobHeap
	guids       *GUIDHeap
}

// FromFile opens path, parses its PE/CLR/metadata structure, and returns a
// read-only View. The file is memory-mapped read-only by file.go's New
// (github.com/edsrzf/mmap-go); heaps and tables read from that one shared
// buffer, and no reference counting is kept.
func FromFile(path string) (*View, error) {
	pe, err := New(path, &Options{})
	if err != nil {
		return nil, err
	}
	if err := pe.Parse(); err != nil {
		return nil, err
	}
	return newView(pe)
}

// FromMem parses data (an in-memory PE image) and returns a read-only View.
func FromMem(data []byte) (*View, error) {
	pe, err := NewBytes(data, &Options{})
	if err != nil {
		return nil, err
	}
	if err := pe.Parse(); err != nil {
		return nil, err
	}
	return newView(pe)
}

func newView(pe *File) (*View, error) {
	if !pe.HasCLR {
		return nil, ErrNoCLRHeader
	}
	v := &View{pe: pe}
	v.strings = NewStringsHeap(pe.CLR.MetadataStreams["#Strings"], true)
	v.userStrings = NewUserStringsHeap(pe.CLR.MetadataStreams["#US"])
	v.blobs = NewBlobHeap(pe.CLR.MetadataStreams["#Blob"], true)
	v.guids = NewGUIDHeap(pe.CLR.MetadataStreams["#GUID"])
	return v, nil
}

// Strings returns the #Strings heap reader.
func (v *View) Strings() *StringsHeap { return v.strings }

// UserStrings returns the #US heap reader.
func (v *View) UserStrings() *UserStringsHeap { return v.userStrings }

// Blobs returns the #Blob heap reader.
func (v *View) Blobs() *BlobHeap { return v.blobs }

// GUIDs returns the #GUID heap reader.
func (v *View) GUIDs() *GUIDHeap { return v.guids }

// TableInfo returns the row-count/heap-flag-derived width engine for this
// view's tables.
func (v *View) TableInfo() *TableInfo { return v.pe.tableInfo() }

// Table returns the raw parsed rows of tableID as the typed slice
// dotnet_metadata_tables.go/tables_aux.go produced (e.g. []TypeDefTableRow
// for the TypeDef table); callers type-assert the result. Returns nil if
// the table is absent from the image.
func (v *View) Table(tableID int) interface{} {
	t, ok := v.pe.CLR.MetadataTables[tableID]
	if !ok || t == nil {
		return nil
	}
	return t.Content
}

// ReadTableRow decodes rid's row of tableID into the generic Row shape
// tables.go/change.go/the builders work against, independent of the typed
// Table*Row structs Table returns. This is the same row reader write-back
// uses to diff a modified row against its original content.
func (v *View) ReadTableRow(tableID int, rid uint32) (Row, error) {
	return readOriginalRow(v.pe, tableID, rid)
}

// RowCount returns the number of rows tableID has.
func (v *View) RowCount(tableID int) uint32 {
	return v.TableInfo().RowCount(tableID)
}

// MethodBody decodes the method body of the MethodDef row identified by
// rid, resolving its RVA through the underlying image.
func (v *View) MethodBody(rid uint32) (*MethodBody, error) {
	methods, ok := v.Table(MethodDef).([]MethodDefTableRow)
	if !ok {
		return nil, fmt.Errorf("%w: MethodDef table not parsed", ErrMalformed)
	}
	if rid == 0 || int(rid) > len(methods) {
		return nil, fmt.Errorf("%w: MethodDef rid %d", ErrOutOfBounds, rid)
	}
	row := methods[rid-1]
	if row.RVA == 0 {
		return nil, nil // abstract/extern method: no body
	}
	off := v.pe.GetOffsetFromRva(row.RVA)
	if off >= uint32(len(v.pe.data)) {
		return nil, fmt.Errorf("%w: method body RVA 0x%X", ErrOutOfBounds, row.RVA)
	}
	c := NewCursor(v.pe.data[off:])
	return DecodeMethodBody(c)
}

// ToEditable wraps v in an Editable change-tracking session.
func (v *View) ToEditable() *Editable {
	return newEditable(v)
}
