// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// BuilderContext is the shared handle every fluent per-concept builder
// (TypeDefBuilder, MethodDefBuilder, ClassBuilder, ...) holds onto: it
// forwards heap/table mutations to the borrowed Editable and lets a builder
// look up the row id a future table_row_add on a given table would receive,
// without actually inserting anything, so e.g. a TypeDef row can record the
// FieldList/MethodList rid range its not-yet-built Field/MethodDef children
// will occupy.
type BuilderContext struct {
	ed *Editable
}

// NewBuilderContext returns a BuilderContext over ed.
func NewBuilderContext(ed *Editable) *BuilderContext {
	return &BuilderContext{ed: ed}
}

// StringAdd appends s to the #Strings heap.
func (b *BuilderContext) StringAdd(s string) uint32 { return b.ed.StringAdd(s) }

// BlobAdd appends v to the #Blob heap.
func (b *BuilderContext) BlobAdd(v []byte) uint32 { return b.ed.BlobAdd(v) }

// GUIDAdd appends g to the #GUID heap.
func (b *BuilderContext) GUIDAdd(g GUID) uint32 { return b.ed.GUIDAdd(g) }

// UserStringAdd appends s to the #US heap.
func (b *BuilderContext) UserStringAdd(s UserString) uint32 { return b.ed.UserStringAdd(s) }

// TableRowAdd appends row to tableID and returns the token identifying it.
func (b *BuilderContext) TableRowAdd(tableID int, row Row) (Token, error) {
	return b.ed.TableRowAdd(tableID, row)
}

// NextRID returns the 1-based rid the next TableRowAdd against tableID would
// assign, without reserving it: a plain peek at originalRowCount plus the
// inserts already queued this session.
func (b *BuilderContext) NextRID(tableID int) uint32 {
	change, ok := b.ed.model.Tables[tableID]
	if !ok {
		return 1
	}
	return change.originalRowCount + uint32(len(change.inserted)) + 1
}

// TableInfo exposes the borrowed view's current TableInfo, needed to encode
// coded-index field values (EncodeCodedIndex packs a tag plus row id; it
// does not depend on final row counts, so it is safe to call mid-build).
func (b *BuilderContext) TableInfo() *TableInfo {
	return b.ed.view.TableInfo()
}

// EncodeCoded packs a reference to (tableID, rid) into family's coded-index
// representation.
func (b *BuilderContext) EncodeCoded(tableID int, rid uint32, family codedidx) (uint32, error) {
	return b.TableInfo().EncodeCodedIndex(tableID, rid, family)
}

// encodeCodedToken is EncodeCoded taking a Token, returning 0 for the null
// token (the usual "no reference" encoding for an optional coded-index
// field such as TypeDef.Extends on System.Object).
func (b *BuilderContext) encodeCodedToken(tok Token, family codedidx) (uint32, error) {
	if tok.IsNull() {
		return 0, nil
	}
	return b.EncodeCoded(tok.Table(), tok.RID(), family)
}
