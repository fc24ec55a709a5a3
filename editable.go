// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// Editable is the single-writer session spec.md §5's concurrency model
// describes: it borrows a read-only View and accumulates heap/table
// mutations in a ChangeModel without ever touching the view's original
// bytes, until ValidateAndApplyChanges commits them and WriteToFile/
// WriteToMem materialises a new image. Not safe for concurrent mutation
// from multiple goroutines; the view it borrows from may still be shared
// read-only elsewhere while this session is open.
type Editable struct {
	view  *View
	model *ChangeModel

	validated bool
}

func newEditable(v *View) *Editable {
	tables := make(map[int]*TableRowChange, TableCount)
	for id := 0; id < TableCount; id++ {
		tables[id] = newTableRowChange(v.RowCount(id))
	}
	return &Editable{
		view: v,
		model: &ChangeModel{
			Tables:    tables,
			Resources: make(map[uint32]ResourceEntry),
		},
	}
}

// StringAdd appends s to the #Strings heap and returns the index it will
// occupy once written.
func (e *Editable) StringAdd(s string) uint32 {
	e.validated = false
	return e.view.Strings().Append(s)
}

// UserStringAdd appends s to the #US heap.
func (e *Editable) UserStringAdd(s UserString) uint32 {
	e.validated = false
	return e.view.UserStrings().Append(s)
}

// BlobAdd appends b to the #Blob heap.
func (e *Editable) BlobAdd(b []byte) uint32 {
	e.validated = false
	return e.view.Blobs().Append(b)
}

// GUIDAdd appends g to the #GUID heap.
func (e *Editable) GUIDAdd(g GUID) uint32 {
	e.validated = false
	return e.view.GUIDs().Append(g)
}

// TableRowAdd appends row to tableID and returns the token identifying the
// new row.
func (e *Editable) TableRowAdd(tableID int, row Row) (Token, error) {
	change, ok := e.model.Tables[tableID]
	if !ok {
		return 0, fmt.Errorf("%w: unknown table id %d", ErrInvalidModification, tableID)
	}
	row.Table = tableID
	rid := change.Insert(row)
	e.validated = false
	return NewToken(tableID, rid), nil
}

// TableRowModify replaces the row at (tableID, rid) with row.
func (e *Editable) TableRowModify(tableID int, rid uint32, row Row) error {
	change, ok := e.model.Tables[tableID]
	if !ok {
		return fmt.Errorf("%w: unknown table id %d", ErrInvalidModification, tableID)
	}
	row.Table = tableID
	change.Modify(rid, row)
	e.validated = false
	return nil
}

// TableRowRemove marks (tableID, rid) for removal under strategy. Whether
// the removal succeeds (and what it cascades onto) is decided at
// ValidateAndApplyChanges time.
func (e *Editable) TableRowRemove(tableID int, rid uint32, strategy RemovalStrategy) error {
	change, ok := e.model.Tables[tableID]
	if !ok {
		return fmt.Errorf("%w: unknown table id %d", ErrInvalidModification, tableID)
	}
	change.Remove(rid, strategy)
	e.validated = false
	return nil
}

// ManifestResourceSetData stages data as rid's embedded resource payload,
// written into the CLR header's Resources directory blob at write-back
// time and its ManifestResource row's Offset patched to match. compress
// requests this engine's zstd framing (see ResourceEntry) rather than
// ECMA-335's plain length-prefixed storage; a reader other than this
// engine will not know to undo it.
func (e *Editable) ManifestResourceSetData(rid uint32, data []byte, compress bool) error {
	change, ok := e.model.Tables[ManifestResource]
	if !ok || rid == 0 || rid > change.FinalRowCount() {
		return fmt.Errorf("%w: ManifestResource rid 0x%X", ErrOutOfBounds, rid)
	}
	e.model.Resources[rid] = ResourceEntry{Data: data, Compressed: compress}
	e.validated = false
	return nil
}

// ValidateAndApplyChanges runs the validation registry against the pending
// change set and, if it passes, resolves every pending removal's cascade to
// a fixed point. It must be called (and must succeed) before WriteToFile/
// WriteToMem; calling it again after further edits simply re-validates.
func (e *Editable) ValidateAndApplyChanges(profile ValidationProfile) (*ValidationReport, error) {
	report := RunValidators(e, profile)
	if !report.Success() {
		return report, ErrValidationFailed
	}
	if err := ResolveRemovals(e.view.pe, e.model); err != nil {
		return report, err
	}
	e.validated = true
	return report, nil
}

// WriteToFile materialises every pending change into a new managed PE image
// and writes it to path.
func (e *Editable) WriteToFile(path string) error {
	data, err := e.WriteToMem()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// WriteToMem materialises every pending change into a new managed PE image
// and returns it.
func (e *Editable) WriteToMem() ([]byte, error) {
	if !e.validated {
		return nil, fmt.Errorf("%w: ValidateAndApplyChanges must succeed before writing", ErrInvalidModification)
	}
	return WriteBack(e.view, e.model)
}
