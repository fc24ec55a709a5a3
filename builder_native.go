// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// NativeImportBuilder and NativeExportBuilder synthesize the PE-level
// native import/export directory structures a CLI image's unmanaged half
// needs — the classic hybrid-PE entry point stub (an _IMPORT_DESCRIPTOR for
// mscoree.dll plus an ILT/IAT pair resolving _CorExeMain/_CorDllMain, the
// shape imports.go's ImageImportDescriptor/ImageThunkData32 already model
// on the read side) and, for a mixed-mode or native-export-carrying image,
// an export directory. Both builders only produce byte layouts and the
// ImageDataDirectory values that should point at them: placing the bytes
// inside the image and growing a section to hold them is a section-layout
// decision writeback.go's emitImage deliberately leaves to its existing
// "metadata section, last-section-only" growth path, not to these
// builders — synthesizing an entirely new code/data region alongside an
// edited metadata region is the same full linker-relayout scope this
// engine's write-back explicitly does not attempt.

// NativeImportEntry is one named (never ordinal-only; CLR hybrid stubs
// always import _CorExeMain/_CorDllMain by name) import thunk to include in
// one DLL's import descriptor.
type NativeImportEntry struct {
	Name string
	Hint uint16
}

// NativeImportLayout is the synthesized byte layout for one DLL's import
// descriptor plus its ILT, IAT, and hint/name table, all expressed as
// offsets relative to layoutBase (the RVA the caller will place Bytes at).
type NativeImportLayout struct {
	Bytes []byte

	DescriptorOffset uint32 // offset of the ImageImportDescriptor within Bytes
	ILTOffset        uint32 // offset of the import lookup table
	IATOffset        uint32 // offset of the import address table; becomes the JMP stub's operand
	NamesOffset      uint32 // offset of the first hint/name entry
}

// BuildNativeImport32 lays out a PE32 import descriptor for dllName
// importing entries, in file order, terminated by the mandatory all-zero
// descriptor/thunk sentinels ECMA-335/PE-COFF requires to mark the end of
// each table.
func BuildNativeImport32(dllName string, entries []NativeImportEntry, layoutBase uint32) (*NativeImportLayout, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: native import descriptor needs at least one entry", ErrInvalidModification)
	}

	c := NewCursor(nil)

	// Reserve the descriptor itself (one ImageImportDescriptor, 20 bytes)
	// first; its RVA fields are patched in after the tables that follow it
	// have been laid out, since their offsets are only known afterward.
	descOff := uint32(len(c.Data))
	c.WriteBytes(make([]byte, 20))

	iltOff := uint32(len(c.Data))
	for range entries {
		c.WriteU32(0) // patched below once each entry's hint/name offset is known
	}
	c.WriteU32(0) // ILT terminator

	iatOff := uint32(len(c.Data))
	for range entries {
		c.WriteU32(0)
	}
	c.WriteU32(0) // IAT terminator

	namesOff := uint32(len(c.Data))
	entryOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		entryOffsets[i] = uint32(len(c.Data))
		c.WriteU16(e.Hint)
		c.WriteBytes(append([]byte(e.Name), 0))
		if len(c.Data)%2 != 0 {
			c.WriteU8(0)
		}
	}

	nameOff := uint32(len(c.Data))
	c.WriteBytes(append([]byte(dllName), 0))

	for i, off := range entryOffsets {
		writeU32At(c.Data, iltOff+uint32(i)*4, layoutBase+off)
		writeU32At(c.Data, iatOff+uint32(i)*4, layoutBase+off)
	}

	writeU32At(c.Data, descOff+0, layoutBase+iltOff)   // OriginalFirstThunk
	writeU32At(c.Data, descOff+4, 0)                   // TimeDateStamp (unbound)
	writeU32At(c.Data, descOff+8, 0xFFFFFFFF)           // ForwarderChain: none
	writeU32At(c.Data, descOff+12, layoutBase+nameOff) // Name
	writeU32At(c.Data, descOff+16, layoutBase+iatOff)  // FirstThunk

	return &NativeImportLayout{
		Bytes:            c.Data,
		DescriptorOffset: descOff,
		ILTOffset:        iltOff,
		IATOffset:        iatOff,
		NamesOffset:      namesOff,
	}, nil
}

// NativeExportEntry is one named export: its RVA relative to the image
// base (not to this layout), and its ordinal-table position is implied by
// its index in the slice passed to BuildNativeExport.
type NativeExportEntry struct {
	Name string
	RVA  uint32
}

// NativeExportLayout is the synthesized byte layout for an export
// directory plus its address table, name-pointer table, ordinal table, and
// name strings, all expressed as offsets relative to layoutBase.
type NativeExportLayout struct {
	Bytes              []byte
	DirectoryOffset    uint32
	AddressTableOffset uint32
}

// BuildNativeExport lays out an export directory exporting entries by
// name, ordinals assigned densely starting at base ordinal 1 in slice
// order, per the Export Directory Table format (PE-COFF spec 6.3).
func BuildNativeExport(dllName string, entries []NativeExportEntry, layoutBase uint32) (*NativeExportLayout, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: native export directory needs at least one entry", ErrInvalidModification)
	}

	c := NewCursor(nil)
	dirOff := uint32(len(c.Data))
	c.WriteBytes(make([]byte, 40)) // IMAGE_EXPORT_DIRECTORY is 40 bytes

	addrTableOff := uint32(len(c.Data))
	for _, e := range entries {
		c.WriteU32(e.RVA)
	}

	namePtrTableOff := uint32(len(c.Data))
	for range entries {
		c.WriteU32(0) // patched below
	}

	ordTableOff := uint32(len(c.Data))
	for i := range entries {
		c.WriteU16(uint16(i))
	}

	nameOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		nameOffsets[i] = uint32(len(c.Data))
		c.WriteBytes(append([]byte(e.Name), 0))
	}
	dllNameOff := uint32(len(c.Data))
	c.WriteBytes(append([]byte(dllName), 0))

	for i, off := range nameOffsets {
		writeU32At(c.Data, namePtrTableOff+uint32(i)*4, layoutBase+off)
	}

	writeU32At(c.Data, dirOff+0, 0)                              // Characteristics
	writeU32At(c.Data, dirOff+4, 0)                              // TimeDateStamp
	c.Data[dirOff+8], c.Data[dirOff+9] = 0, 0                    // MajorVersion
	c.Data[dirOff+10], c.Data[dirOff+11] = 0, 0                  // MinorVersion
	writeU32At(c.Data, dirOff+12, layoutBase+dllNameOff)         // Name
	writeU32At(c.Data, dirOff+16, 1)                             // Base ordinal
	writeU32At(c.Data, dirOff+20, uint32(len(entries)))          // NumberOfFunctions
	writeU32At(c.Data, dirOff+24, uint32(len(entries)))          // NumberOfNames
	writeU32At(c.Data, dirOff+28, layoutBase+addrTableOff)       // AddressOfFunctions
	writeU32At(c.Data, dirOff+32, layoutBase+namePtrTableOff)    // AddressOfNames
	writeU32At(c.Data, dirOff+36, layoutBase+ordTableOff)        // AddressOfNameOrdinals

	return &NativeExportLayout{
		Bytes:              c.Data,
		DirectoryOffset:    dirOff,
		AddressTableOffset: addrTableOff,
	}, nil
}
