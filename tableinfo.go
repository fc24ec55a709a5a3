// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"
	"math/bits"
)

// TableCount is the number of metadata tables ECMA-335 II.22 defines
// (Module=0 through GenericParamConstraint=44).
const TableCount = GenericParamConstraint + 1

// TableInfo is derived once from a tables-stream header (the 64-bit valid
// bitmap, the row-count array, and the heap-size flags) and then used by
// every table-row codec to decide field widths. It is immutable once built;
// a change set that alters row counts or heap sizes must rebuild a fresh
// TableInfo before any row is re-emitted; widening even one table pushes
// every field that references it from 2 to 4 bytes, so stale TableInfo
// values can silently corrupt a write-back.
type TableInfo struct {
	rowCounts  [TableCount]uint32
	wideString bool
	wideGUID   bool
	wideBlob   bool
}

// NewTableInfo builds a TableInfo from per-table row counts (tables absent
// from the source bitmap are left at 0) and the three heap-size flag bits
// (0x01 string, 0x02 GUID, 0x04 blob) read from the tables-stream header.
func NewTableInfo(rowCounts [TableCount]uint32, heapSizeFlags uint8) *TableInfo {
	return &TableInfo{
		rowCounts:  rowCounts,
		wideString: heapSizeFlags&0x01 != 0,
		wideGUID:   heapSizeFlags&0x02 != 0,
		wideBlob:   heapSizeFlags&0x04 != 0,
	}
}

// RowCount returns the number of rows TableInfo was built with for tableID.
func (ti *TableInfo) RowCount(tableID int) uint32 {
	if tableID < 0 || tableID >= TableCount {
		return 0
	}
	return ti.rowCounts[tableID]
}

// ceilLog2 returns ceil(log2(n)), treating n == 0 the same as n == 1 (a
// table with zero rows still needs at least one bit to index "no row").
func ceilLog2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return uint32(bits.Len32(n - 1))
}

// rowBits returns the number of bits needed to address any row of tableID:
// every 1-based row id up to the row count, plus 0 for "no row".
func (ti *TableInfo) rowBits(tableID int) uint32 {
	return ceilLog2(ti.RowCount(tableID) + 1)
}

// TableIndexSize returns the byte width (2 or 4) of a plain table_idx<T>
// field: 2 bytes if the table's row count fits in 16 bits, else 4.
func (ti *TableInfo) TableIndexSize(tableID int) uint32 {
	if ti.RowCount(tableID) > 0xFFFF {
		return 4
	}
	return 2
}

// StringIndexSize returns the byte width of #Strings heap indices.
func (ti *TableInfo) StringIndexSize() uint32 {
	if ti.wideString {
		return 4
	}
	return 2
}

// GUIDIndexSize returns the byte width of #GUID heap indices.
func (ti *TableInfo) GUIDIndexSize() uint32 {
	if ti.wideGUID {
		return 4
	}
	return 2
}

// BlobIndexSize returns the byte width of #Blob heap indices.
func (ti *TableInfo) BlobIndexSize() uint32 {
	if ti.wideBlob {
		return 4
	}
	return 2
}

// CodedIndexSize returns the byte width (2 or 4) of a coded index spanning
// family's member tables: the bits needed are the widest member's row bits
// plus ceil(log2(len(family))) tag bits.
func (ti *TableInfo) CodedIndexSize(family codedidx) uint32 {
	var maxRowBits uint32
	for _, tbl := range family.idx {
		if b := ti.rowBits(tbl); b > maxRowBits {
			maxRowBits = b
		}
	}
	totalBits := maxRowBits + uint32(family.tagbits)
	if totalBits <= 16 {
		return 2
	}
	return 4
}

// EncodeCodedIndex packs tableID/rowID into the coded-index value for
// family: the tag selecting tableID occupies the low tagbits bits, the row
// id occupies the remaining high bits.
func (ti *TableInfo) EncodeCodedIndex(tableID int, rowID uint32, family codedidx) (uint32, error) {
	tag := -1
	for i, tbl := range family.idx {
		if tbl == tableID {
			tag = i
			break
		}
	}
	if tag < 0 {
		return 0, fmt.Errorf("%w: table %s is not a member of this coded-index family",
			ErrInvalidModification, MetadataTableIndexToString(tableID))
	}
	return rowID<<family.tagbits | uint32(tag), nil
}

// DecodeCodedIndex unpacks a coded-index value into the table it selects
// and the row id inside that table.
func (ti *TableInfo) DecodeCodedIndex(value uint32, family codedidx) (tableID int, rowID uint32, err error) {
	tag := value & ((1 << family.tagbits) - 1)
	if int(tag) >= len(family.idx) {
		return 0, 0, fmt.Errorf("%w: coded-index tag %d out of range for %d-member family",
			ErrMalformed, tag, len(family.idx))
	}
	if family.idx[tag] < 0 {
		return 0, 0, fmt.Errorf("%w: coded-index tag %d is reserved and never emitted",
			ErrMalformed, tag)
	}
	return family.idx[tag], value >> family.tagbits, nil
}
