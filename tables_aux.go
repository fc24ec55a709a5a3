// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// This file covers the metadata tables dotnet_metadata_tables.go leaves out
// because they either never appear in optimized (#~) metadata (the five
// Ptr lookup tables, ENCLog/ENCMap) or are vanishingly rare in practice
// (AssemblyProcessor/AssemblyOS/AssemblyRefProcessor/AssemblyRefOS, and the
// File table). All twelve read codecs are reproduced here from
// ECMA-335 II.22 for completeness: a compliant #- (unoptimized) stream can
// set any of them, and the write-back must be able to round-trip one even
// if builders never emit new rows into them.

// FieldPtr 0x03 - a class-to-fields lookup table that only appears in
// unoptimized (#-) metadata.
type FieldPtrTableRow struct {
	Field uint32 `json:"field"` // an index into the Field table
}

func (pe *File) parseMetadataFieldPtrTable(off uint32) ([]FieldPtrTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[FieldPtr].CountCols)
	rows := make([]FieldPtrTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if indexSize, err = pe.readFromMetadataStream(idxField, off, &rows[i].Field); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// MethodPtr 0x05 - a class-to-methods lookup table, unoptimized metadata
// only.
type MethodPtrTableRow struct {
	Method uint32 `json:"method"` // an index into the MethodDef table
}

func (pe *File) parseMetadataMethodPtrTable(off uint32) ([]MethodPtrTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[MethodPtr].CountCols)
	rows := make([]MethodPtrTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if indexSize, err = pe.readFromMetadataStream(idxMethodDef, off, &rows[i].Method); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// ParamPtr 0x07 - a method-to-parameters lookup table, unoptimized metadata
// only.
type ParamPtrTableRow struct {
	Param uint32 `json:"param"` // an index into the Param table
}

func (pe *File) parseMetadataParamPtrTable(off uint32) ([]ParamPtrTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[ParamPtr].CountCols)
	rows := make([]ParamPtrTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if indexSize, err = pe.readFromMetadataStream(idxParam, off, &rows[i].Param); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// EventPtr 0x13 - an event-map-to-events lookup table, unoptimized metadata
// only.
type EventPtrTableRow struct {
	Event uint32 `json:"event"` // an index into the Event table
}

func (pe *File) parseMetadataEventPtrTable(off uint32) ([]EventPtrTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[EventPtr].CountCols)
	rows := make([]EventPtrTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if indexSize, err = pe.readFromMetadataStream(idxEvent, off, &rows[i].Event); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// PropertyPtr 0x16 - a property-map-to-properties lookup table, unoptimized
// metadata only.
type PropertyPtrTableRow struct {
	Property uint32 `json:"property"` // an index into the Property table
}

func (pe *File) parseMetadataPropertyPtrTable(off uint32) ([]PropertyPtrTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[PropertyPtr].CountCols)
	rows := make([]PropertyPtrTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if indexSize, err = pe.readFromMetadataStream(idxProperty, off, &rows[i].Property); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// ENCLog 0x1e - edit-and-continue log entries, unoptimized metadata only.
type ENCLogTableRow struct {
	Token    uint32 `json:"token"`     // a 4-byte metadata token
	FuncCode uint32 `json:"func_code"` // a 4-byte edit-and-continue operation code
}

func (pe *File) parseMetadataENCLogTable(off uint32) ([]ENCLogTableRow, uint32, error) {
	var err error
	var n uint32
	rowCount := int(pe.CLR.MetadataTables[ENCLog].CountCols)
	rows := make([]ENCLogTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].Token, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if rows[i].FuncCode, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
	}
	return rows, n, nil
}

// ENCMap 0x1f - edit-and-continue token remapping, unoptimized metadata
// only.
type ENCMapTableRow struct {
	Token uint32 `json:"token"` // a 4-byte metadata token
}

func (pe *File) parseMetadataENCMapTable(off uint32) ([]ENCMapTableRow, uint32, error) {
	var err error
	var n uint32
	rowCount := int(pe.CLR.MetadataTables[ENCMap].CountCols)
	rows := make([]ENCMapTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].Token, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
	}
	return rows, n, nil
}

func (pe *File) parseMetadataAssemblyProcessorTable(off uint32) ([]AssemblyProcessorTableRow, uint32, error) {
	var err error
	var n uint32
	rowCount := int(pe.CLR.MetadataTables[AssemblyProcessor].CountCols)
	rows := make([]AssemblyProcessorTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].Processor, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
	}
	return rows, n, nil
}

func (pe *File) parseMetadataAssemblyOSTable(off uint32) ([]AssemblyOSTableRow, uint32, error) {
	var err error
	var n uint32
	rowCount := int(pe.CLR.MetadataTables[AssemblyOS].CountCols)
	rows := make([]AssemblyOSTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].OSPlatformID, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if rows[i].OSMajorVersion, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if rows[i].OSMinorVersion, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
	}
	return rows, n, nil
}

func (pe *File) parseMetadataAssemblyRefProcessorTable(off uint32) ([]AssemblyRefProcessorTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[AssemblyRefProcessor].CountCols)
	rows := make([]AssemblyRefProcessorTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].Processor, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if indexSize, err = pe.readFromMetadataStream(idxAssemblyRef, off, &rows[i].AssemblyRef); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

func (pe *File) parseMetadataAssemblyRefOSTable(off uint32) ([]AssemblyRefOSTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[AssemblyRefOS].CountCols)
	rows := make([]AssemblyRefOSTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].OSPlatformID, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if rows[i].OSMajorVersion, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if rows[i].OSMinorVersion, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if indexSize, err = pe.readFromMetadataStream(idxAssemblyRef, off, &rows[i].AssemblyRef); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}

// File 0x26 - the File table (named FileMD in the table-id constants to
// avoid colliding with the os.File-adjacent identifiers this package
// otherwise uses).
func (pe *File) parseMetadataFileTable(off uint32) ([]FileTableRow, uint32, error) {
	var err error
	var indexSize, n uint32
	rowCount := int(pe.CLR.MetadataTables[FileMD].CountCols)
	rows := make([]FileTableRow, rowCount)
	for i := 0; i < rowCount; i++ {
		if rows[i].Flags, err = pe.ReadUint32(off); err != nil {
			return rows, n, err
		}
		off += 4
		n += 4
		if indexSize, err = pe.readFromMetadataStream(idxString, off, &rows[i].Name); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
		if indexSize, err = pe.readFromMetadataStream(idxBlob, off, &rows[i].HashValue); err != nil {
			return rows, n, err
		}
		off += indexSize
		n += indexSize
	}
	return rows, n, nil
}
