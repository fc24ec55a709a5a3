// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// FieldKind identifies the on-disk encoding of one Row field: a plain
// inline integer, a heap index, a single-table index, or a coded index.
// This is the generic, table-shape-agnostic counterpart to the typed
// Table*Row structs dotnet_metadata_tables.go exposes for convenient
// read-only access: the change model, builders, and write-back all work
// against Row/TableShape instead, because they need to recompute field
// widths from a post-edit TableInfo rather than trust widths baked into an
// already-parsed struct.
type FieldKind int

const (
	FieldU16 FieldKind = iota
	FieldU32
	FieldStringIndex
	FieldGUIDIndex
	FieldBlobIndex
	FieldTableIndex
	FieldCodedIndex
)

// FieldSpec describes one field of a table row shape.
type FieldSpec struct {
	Name   string
	Kind   FieldKind
	Table  int      // valid when Kind == FieldTableIndex
	Family codedidx // valid when Kind == FieldCodedIndex
}

// TableShape is the ECMA-335 II.22 row shape for one table: an ordered
// list of fields, each produced/consumed in that order by ReadRow/
// WriteRow.
type TableShape struct {
	ID     int
	Name   string
	Fields []FieldSpec
}

// Row is a generic row value: the table it belongs to, its 1-based row id
// (0 before insertion and for rows the builder session assigned but the
// caller hasn't yet looked up), and its field values in shape order. Every
// field value is stored as a plain uint32 regardless of on-disk width
// (u16 fields simply never use the top 16 bits) so one generic type serves
// every table without 45 hand-written structs on the write side.
type Row struct {
	Table  int
	RID    uint32
	Fields []uint32
}

func f(name string, kind FieldKind) FieldSpec { return FieldSpec{Name: name, Kind: kind} }
func ft(name string, table int) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldTableIndex, Table: table}
}
func fc(name string, family codedidx) FieldSpec {
	return FieldSpec{Name: name, Kind: FieldCodedIndex, Family: family}
}

// tableShapes holds the ECMA-335 II.22 shape of every one of the 45 core
// tables, indexed by table id. It mirrors, field for field, the row
// structs and parseMetadata*Table functions in dotnet_metadata_tables.go
// and tables_aux.go; the two are kept in lockstep deliberately; a
// discrepancy between a Table*Row struct and its TableShape entry is a bug.
var tableShapes = buildTableShapes()

func buildTableShapes() [TableCount]TableShape {
	var shapes [TableCount]TableShape
	set := func(id int, name string, fields ...FieldSpec) {
		shapes[id] = TableShape{ID: id, Name: name, Fields: fields}
	}

	set(Module, "Module",
		f("Generation", FieldU16), f("Name", FieldStringIndex),
		f("Mvid", FieldGUIDIndex), f("EncId", FieldGUIDIndex), f("EncBaseId", FieldGUIDIndex))
	set(TypeRef, "TypeRef",
		fc("ResolutionScope", idxResolutionScope), f("TypeName", FieldStringIndex), f("TypeNamespace", FieldStringIndex))
	set(TypeDef, "TypeDef",
		f("Flags", FieldU32), f("TypeName", FieldStringIndex), f("TypeNamespace", FieldStringIndex),
		fc("Extends", idxTypeDefOrRef), ft("FieldList", Field), ft("MethodList", MethodDef))
	set(FieldPtr, "FieldPtr", ft("Field", Field))
	set(Field, "Field",
		f("Flags", FieldU16), f("Name", FieldStringIndex), f("Signature", FieldBlobIndex))
	set(MethodPtr, "MethodPtr", ft("Method", MethodDef))
	set(MethodDef, "MethodDef",
		f("RVA", FieldU32), f("ImplFlags", FieldU16), f("Flags", FieldU16),
		f("Name", FieldStringIndex), f("Signature", FieldBlobIndex), ft("ParamList", Param))
	set(ParamPtr, "ParamPtr", ft("Param", Param))
	set(Param, "Param",
		f("Flags", FieldU16), f("Sequence", FieldU16), f("Name", FieldStringIndex))
	set(InterfaceImpl, "InterfaceImpl",
		ft("Class", TypeDef), fc("Interface", idxTypeDefOrRef))
	set(MemberRef, "MemberRef",
		fc("Class", idxMemberRefParent), f("Name", FieldStringIndex), f("Signature", FieldBlobIndex))
	set(Constant, "Constant",
		f("Type", FieldU16), fc("Parent", idxHasConstant), f("Value", FieldBlobIndex))
	set(CustomAttribute, "CustomAttribute",
		fc("Parent", idxHasCustomAttributes), fc("Type", idxCustomAttributeType), f("Value", FieldBlobIndex))
	set(FieldMarshal, "FieldMarshal",
		fc("Parent", idxHasFieldMarshall), f("NativeType", FieldBlobIndex))
	set(DeclSecurity, "DeclSecurity",
		f("Action", FieldU16), fc("Parent", idxHasDeclSecurity), f("PermissionSet", FieldBlobIndex))
	set(ClassLayout, "ClassLayout",
		f("PackingSize", FieldU16), f("ClassSize", FieldU32), ft("Parent", TypeDef))
	set(FieldLayout, "FieldLayout",
		f("Offset", FieldU32), ft("Field", Field))
	set(StandAloneSig, "StandAloneSig", f("Signature", FieldBlobIndex))
	set(EventMap, "EventMap",
		ft("Parent", TypeDef), ft("EventList", Event))
	set(EventPtr, "EventPtr", ft("Event", Event))
	set(Event, "Event",
		f("EventFlags", FieldU16), f("Name", FieldStringIndex), fc("EventType", idxTypeDefOrRef))
	set(PropertyMap, "PropertyMap",
		ft("Parent", TypeDef), ft("PropertyList", Property))
	set(PropertyPtr, "PropertyPtr", ft("Property", Property))
	set(Property, "Property",
		f("Flags", FieldU16), f("Name", FieldStringIndex), f("Type", FieldBlobIndex))
	set(MethodSemantics, "MethodSemantics",
		f("Semantics", FieldU16), ft("Method", MethodDef), fc("Association", idxHasSemantics))
	set(MethodImpl, "MethodImpl",
		ft("Class", TypeDef), fc("MethodBody", idxMethodDefOrRef), fc("MethodDeclaration", idxMethodDefOrRef))
	set(ModuleRef, "ModuleRef", f("Name", FieldStringIndex))
	set(TypeSpec, "TypeSpec", f("Signature", FieldBlobIndex))
	set(ImplMap, "ImplMap",
		f("MappingFlags", FieldU16), fc("MemberForwarded", idxMemberForwarded),
		f("ImportName", FieldStringIndex), ft("ImportScope", ModuleRef))
	set(FieldRVA, "FieldRVA",
		f("RVA", FieldU32), ft("Field", Field))
	set(ENCLog, "ENCLog", f("Token", FieldU32), f("FuncCode", FieldU32))
	set(ENCMap, "ENCMap", f("Token", FieldU32))
	set(Assembly, "Assembly",
		f("HashAlgId", FieldU32), f("MajorVersion", FieldU16), f("MinorVersion", FieldU16),
		f("BuildNumber", FieldU16), f("RevisionNumber", FieldU16), f("Flags", FieldU32),
		f("PublicKey", FieldBlobIndex), f("Name", FieldStringIndex), f("Culture", FieldStringIndex))
	set(AssemblyProcessor, "AssemblyProcessor", f("Processor", FieldU32))
	set(AssemblyOS, "AssemblyOS",
		f("OSPlatformId", FieldU32), f("OSMajorVersion", FieldU32), f("OSMinorVersion", FieldU32))
	set(AssemblyRef, "AssemblyRef",
		f("MajorVersion", FieldU16), f("MinorVersion", FieldU16), f("BuildNumber", FieldU16),
		f("RevisionNumber", FieldU16), f("Flags", FieldU32), f("PublicKeyOrToken", FieldBlobIndex),
		f("Name", FieldStringIndex), f("Culture", FieldStringIndex), f("HashValue", FieldBlobIndex))
	set(AssemblyRefProcessor, "AssemblyRefProcessor",
		f("Processor", FieldU32), ft("AssemblyRef", AssemblyRef))
	set(AssemblyRefOS, "AssemblyRefOS",
		f("OSPlatformId", FieldU32), f("OSMajorVersion", FieldU32), f("OSMinorVersion", FieldU32),
		ft("AssemblyRef", AssemblyRef))
	set(FileMD, "File",
		f("Flags", FieldU32), f("Name", FieldStringIndex), f("HashValue", FieldBlobIndex))
	set(ExportedType, "ExportedType",
		f("Flags", FieldU32), f("TypeDefId", FieldU32), f("TypeName", FieldStringIndex),
		f("TypeNamespace", FieldStringIndex), fc("Implementation", idxImplementation))
	set(ManifestResource, "ManifestResource",
		f("Offset", FieldU32), f("Flags", FieldU32), f("Name", FieldStringIndex), fc("Implementation", idxImplementation))
	set(NestedClass, "NestedClass",
		ft("NestedClass", TypeDef), ft("EnclosingClass", TypeDef))
	set(GenericParam, "GenericParam",
		f("Number", FieldU16), f("Flags", FieldU16), fc("Owner", idxTypeOrMethodDef), f("Name", FieldStringIndex))
	set(MethodSpec, "MethodSpec",
		fc("Method", idxMethodDefOrRef), f("Instantiation", FieldBlobIndex))
	set(GenericParamConstraint, "GenericParamConstraint",
		ft("Owner", GenericParam), fc("Constraint", idxTypeDefOrRef))

	return shapes
}

// Shape returns the ECMA-335 row shape for tableID, or the zero TableShape
// (no fields) if tableID is out of range.
func Shape(tableID int) TableShape {
	if tableID < 0 || tableID >= TableCount {
		return TableShape{}
	}
	return tableShapes[tableID]
}

// fieldWidth returns the encoded byte width of one field given ti.
func fieldWidth(ti *TableInfo, spec FieldSpec) (uint32, error) {
	switch spec.Kind {
	case FieldU16:
		return 2, nil
	case FieldU32:
		return 4, nil
	case FieldStringIndex:
		return ti.StringIndexSize(), nil
	case FieldGUIDIndex:
		return ti.GUIDIndexSize(), nil
	case FieldBlobIndex:
		return ti.BlobIndexSize(), nil
	case FieldTableIndex:
		return ti.TableIndexSize(spec.Table), nil
	case FieldCodedIndex:
		return ti.CodedIndexSize(spec.Family), nil
	default:
		return 0, fmt.Errorf("%w: unknown field kind %d", ErrMalformed, spec.Kind)
	}
}

// RowSize computes the byte size a row of tableID occupies given ti, by
// summing each field's width. This must be recomputed after every
// TableInfo rebuild; a cached size from a stale TableInfo silently
// corrupts a write-back (spec.md §9).
func RowSize(ti *TableInfo, tableID int) (uint32, error) {
	shape := Shape(tableID)
	var total uint32
	for _, spec := range shape.Fields {
		w, err := fieldWidth(ti, spec)
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}

// ReadRow decodes one row of tableID at the cursor, using ti to decide
// each field's width.
func ReadRow(c *Cursor, ti *TableInfo, tableID int, rid uint32) (Row, error) {
	shape := Shape(tableID)
	row := Row{Table: tableID, RID: rid, Fields: make([]uint32, len(shape.Fields))}
	for i, spec := range shape.Fields {
		w, err := fieldWidth(ti, spec)
		if err != nil {
			return Row{}, err
		}
		var v uint32
		if w == 2 {
			v16, err := c.ReadU16()
			if err != nil {
				return Row{}, fmt.Errorf("%s.%s rid %d: %w", shape.Name, spec.Name, rid, err)
			}
			v = uint32(v16)
		} else {
			v, err = c.ReadU32()
			if err != nil {
				return Row{}, fmt.Errorf("%s.%s rid %d: %w", shape.Name, spec.Name, rid, err)
			}
		}
		row.Fields[i] = v
	}
	return row, nil
}

// WriteRow encodes row at the cursor, using ti to decide each field's
// width. row.Fields must have exactly len(Shape(row.Table).Fields)
// entries.
func WriteRow(c *Cursor, ti *TableInfo, row Row) error {
	shape := Shape(row.Table)
	if len(row.Fields) != len(shape.Fields) {
		return fmt.Errorf("%w: %s row has %d fields, shape wants %d",
			ErrInvalidModification, shape.Name, len(row.Fields), len(shape.Fields))
	}
	for i, spec := range shape.Fields {
		w, err := fieldWidth(ti, spec)
		if err != nil {
			return err
		}
		v := row.Fields[i]
		if w == 2 {
			if v > 0xFFFF {
				return fmt.Errorf("%w: %s.%s value 0x%X does not fit in 2 bytes",
					ErrInvalidModification, shape.Name, spec.Name, v)
			}
			c.WriteU16(uint16(v))
		} else {
			c.WriteU32(v)
		}
	}
	return nil
}

// FieldIndex returns the position of fieldName within tableID's shape, or
// -1 if the shape has no such field.
func FieldIndex(tableID int, fieldName string) int {
	for i, spec := range Shape(tableID).Fields {
		if spec.Name == fieldName {
			return i
		}
	}
	return -1
}
