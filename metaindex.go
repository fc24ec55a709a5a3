// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// heapKind tags one of the three heaps a table-row field can index into
// (the GUID heap never appears as a width-4-capable index in the core 45
// tables' row shapes except Module/ENCLog/ENCMap, but is modeled the same
// way for uniformity).
type heapKind int

const (
	idxString heapKind = iota
	idxGUID
	idxBlob
)

// tableIdx tags a row field that indexes a single fixed table (as opposed
// to a coded index spanning several tables). Its value is the table id
// itself, so idxField == tableIdx(Field) etc.
type tableIdx int

const (
	idxTypeDef      = tableIdx(TypeDef)
	idxField        = tableIdx(Field)
	idxMethodDef    = tableIdx(MethodDef)
	idxParam        = tableIdx(Param)
	idxEvent        = tableIdx(Event)
	idxProperty     = tableIdx(Property)
	idxModuleRef    = tableIdx(ModuleRef)
	idxGenericParam = tableIdx(GenericParam)
	idxAssemblyRef  = tableIdx(AssemblyRef)
)

// idxHasCustomDebugInformation is the coded-index family used by portable-
// PDB CustomDebugInformation rows (ECMA-335 does not define this table in
// the core 45; it is reserved here so the closed set of coded-index
// families documented in spec.md §3 is complete even though no core table
// in this engine emits it). PDB support is out of scope (see Non-goals).
var idxHasCustomDebugInformation = codedidx{tagbits: 5, idx: []int{
	MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module,
	DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly,
	AssemblyRef, FileMD, ExportedType, ManifestResource, GenericParam,
	GenericParamConstraint, MethodSpec,
}}

// tableInfo lazily builds and caches the TableInfo derived from the parsed
// tables-stream header: per-table row counts plus the three heap-size
// flags. Every readFromMetadataStream call and every write-back pass uses
// this, never ad-hoc width arithmetic, so a single source of truth governs
// index widths (spec.md §4.4/§9 "always re-emit, never cache widths").
func (pe *File) tableInfo() *TableInfo {
	if pe.CLR.TableInfo != nil {
		return pe.CLR.TableInfo
	}
	var counts [TableCount]uint32
	for id, t := range pe.CLR.MetadataTables {
		if id >= 0 && id < TableCount {
			counts[id] = t.CountCols
		}
	}
	pe.CLR.TableInfo = NewTableInfo(counts, pe.CLR.MetadataTablesStreamHeader.Heaps)
	return pe.CLR.TableInfo
}

// readFromMetadataStream reads one row field at off, whose encoding is
// selected by kind: a heap index (heapKind), a single-table index
// (tableIdx), or a multi-table coded index (codedidx). It returns the
// number of bytes consumed so callers can advance their cursor, mirroring
// every parseMetadata*Table function's `off += indexSize` pattern.
func (pe *File) readFromMetadataStream(kind interface{}, off uint32, out *uint32) (uint32, error) {
	ti := pe.tableInfo()

	readWidth := func(width uint32) (uint32, error) {
		if width == 4 {
			v, err := pe.ReadUint32(off)
			if err != nil {
				return 0, err
			}
			*out = v
			return 4, nil
		}
		v, err := pe.ReadUint16(off)
		if err != nil {
			return 0, err
		}
		*out = uint32(v)
		return 2, nil
	}

	switch k := kind.(type) {
	case heapKind:
		switch k {
		case idxString:
			return readWidth(ti.StringIndexSize())
		case idxGUID:
			return readWidth(ti.GUIDIndexSize())
		case idxBlob:
			return readWidth(ti.BlobIndexSize())
		}
		return 0, fmt.Errorf("%w: unknown heap kind %d", ErrMalformed, k)

	case tableIdx:
		return readWidth(ti.TableIndexSize(int(k)))

	case codedidx:
		return readWidth(ti.CodedIndexSize(k))

	default:
		return 0, fmt.Errorf("%w: unsupported metadata index kind %T", ErrMalformed, kind)
	}
}
