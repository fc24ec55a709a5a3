// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"context"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
)

// methodBodyVerifyConcurrency bounds how many MethodDef bodies
// verifyMethodBodyRoundTrips decodes and re-encodes at once; unbounded
// fan-out over a large assembly's method table would otherwise spike
// memory well past what decoding one body at a time needs.
const methodBodyVerifyConcurrency = 16

// verifyMethodBodyRoundTrips decodes every MethodDef body present in the
// original image and re-encodes it, failing write-back if any body fails
// to decode or to re-encode; the re-encoded bytes are not compared with
// the original ones. WriteBack never touches method
// bodies itself (they stay at their original RVA, untouched by the
// metadata-section rewrite), so this is a corruption sanity check against
// the CIL codec rather than something the new image's bytes depend on:
// a body that fails to round-trip here means cil_methodbody.go's decoder
// and encoder have drifted out of sync for some body shape present in this
// assembly, and writing the image back out would be silently lossy.
func verifyMethodBodyRoundTrips(v *View) error {
	methods, ok := v.Table(MethodDef).([]MethodDefTableRow)
	if !ok {
		return nil
	}
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(methodBodyVerifyConcurrency)
	for rid := uint32(1); rid <= uint32(len(methods)); rid++ {
		rid := rid
		g.Go(func() error {
			body, err := v.MethodBody(rid)
			if err != nil {
				return fmt.Errorf("MethodDef[0x%X] body: %w", rid, err)
			}
			if body == nil {
				return nil
			}
			if _, err := EncodeMethodBody(body); err != nil {
				return fmt.Errorf("MethodDef[0x%X] body round-trip: %w", rid, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// WriteBack materialises a ChangeModel into a brand new managed PE image,
// per spec.md §4.9's three phases: (1) the caller has already validated and
// cascaded the change model (Editable.ValidateAndApplyChanges); (2) sizing
// computes the final heap/table byte layout from a rebuilt TableInfo; (3)
// emit lays the new metadata section into a copy of the original image,
// preserving every other section, the PE headers, and the section table,
// and updates only the CLR header's MetaData directory entry (plus its
// Resources entry when resources are staged) and, when the metadata
// section grows, that section's header and the optional header's
// SizeOfImage.
//
// The metadata section (the one the CLR header's MetaData RVA points into)
// must be the last section in the file for a size increase to be handled;
// every other section is carried over unmodified. This mirrors how
// dotnet-produced images are laid out in practice (the section holding the
// CLR header and metadata is usually followed only by .rsrc/.reloc, which
// this engine leaves untouched, so growing metadata past its original
// section would require relocating those trailing sections too — out of
// scope here, the same way spec.md's Non-goals exclude full linker-level
// relayout).
func WriteBack(v *View, model *ChangeModel) ([]byte, error) {
	pe := v.pe

	if err := verifyMethodBodyRoundTrips(v); err != nil {
		return nil, fmt.Errorf("method body verification: %w", err)
	}

	resourcesBlob, err := stageResourceOffsets(v, model)
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}

	ti, err := rebuildTableInfo(v, model)
	if err != nil {
		return nil, err
	}

	strings, err := v.Strings().MaterializeBytes()
	if err != nil {
		return nil, fmt.Errorf("#Strings heap: %w", err)
	}
	blobs, err := v.Blobs().MaterializeBytes()
	if err != nil {
		return nil, fmt.Errorf("#Blob heap: %w", err)
	}
	userStrings, err := v.UserStrings().MaterializeBytes()
	if err != nil {
		return nil, fmt.Errorf("#US heap: %w", err)
	}
	guids, err := v.GUIDs().MaterializeBytes()
	if err != nil {
		return nil, fmt.Errorf("#GUID heap: %w", err)
	}

	tablesStream, err := materializeTablesStream(pe, model, ti)
	if err != nil {
		return nil, fmt.Errorf("tables stream: %w", err)
	}

	metadataRoot := buildMetadataRoot(pe, tablesStream, strings, userStrings, guids, blobs)

	return emitImage(pe, metadataRoot, resourcesBlob)
}

// stageResourceOffsets lays out model's pending resource payloads (if any)
// into one stream and rewrites each affected ManifestResource row's Offset
// field in place within model, so materializeTablesStream picks up the
// final offsets without needing to know about resources itself. Returns
// nil when no resources are pending.
func stageResourceOffsets(v *View, model *ChangeModel) ([]byte, error) {
	if len(model.Resources) == 0 {
		return nil, nil
	}
	change, ok := model.Tables[ManifestResource]
	if !ok {
		return nil, fmt.Errorf("%w: ManifestResource table not tracked", ErrInvalidModification)
	}
	order := make([]uint32, 0, len(model.Resources))
	for rid := range model.Resources {
		order = append(order, rid)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	offsets, blob, err := MaterializeResources(model.Resources, order)
	if err != nil {
		return nil, err
	}
	for _, rid := range order {
		row, err := resolveFinalRow(v.pe, change, ManifestResource, rid)
		if err != nil {
			return nil, fmt.Errorf("ManifestResource[0x%X]: %w", rid, err)
		}
		row.Fields[0] = offsets[rid]
		change.Modify(rid, row)
	}
	return blob, nil
}

// rebuildTableInfo derives the TableInfo a write-back must use: final row
// counts (original + inserted - removed) for every table, and the heap
// size flags the newly-materialized heaps need (a heap whose final size no
// longer fits a 2-byte offset must widen its flag even if the original
// image did not).
func rebuildTableInfo(v *View, model *ChangeModel) (*TableInfo, error) {
	pe := v.pe
	var rowCounts [TableCount]uint32
	for id := 0; id < TableCount; id++ {
		rowCounts[id] = pe.CLR.TableInfo.RowCount(id)
		if change, ok := model.Tables[id]; ok {
			rowCounts[id] = change.FinalRowCount()
		}
	}

	heapFlags := uint8(0)
	if v.Strings().FinalIndexBound() > 0xFFFF {
		heapFlags |= 0x01
	}
	if v.GUIDs().FinalIndexBound() > 0xFFFF {
		heapFlags |= 0x02
	}
	if v.Blobs().FinalIndexBound() > 0xFFFF {
		heapFlags |= 0x04
	}
	return NewTableInfo(rowCounts, heapFlags), nil
}

func materializeTablesStream(pe *File, model *ChangeModel, ti *TableInfo) ([]byte, error) {
	c := NewCursor(nil)
	hdr := pe.CLR.MetadataTablesStreamHeader
	c.WriteU32(0)
	c.WriteU8(hdr.MajorVersion)
	c.WriteU8(hdr.MinorVersion)
	c.WriteU8(hdr.Heaps)
	c.WriteU8(0) // rid width byte: informative only, readers derive it from row counts
	c.WriteU64(hdr.MaskValid)
	c.WriteU64(hdr.Sorted)

	for id := 0; id < TableCount; id++ {
		if n := ti.RowCount(id); n > 0 {
			c.WriteU32(n)
		}
	}

	for id := 0; id < TableCount; id++ {
		change := model.Tables[id]
		final := ti.RowCount(id)
		for rid := uint32(1); rid <= final; rid++ {
			row, err := resolveFinalRow(pe, change, id, rid)
			if err != nil {
				return nil, err
			}
			if err := WriteRow(c, ti, row); err != nil {
				return nil, fmt.Errorf("table %d row %d: %w", id, rid, err)
			}
		}
	}
	return c.Data, nil
}

// resolveFinalRow returns the row that should occupy (tableID, rid) in the
// final image: a pending insert/modify if one exists, otherwise the
// originally parsed row re-read through the generic Row codec.
func resolveFinalRow(pe *File, change *TableRowChange, tableID int, rid uint32) (Row, error) {
	if change != nil {
		if row, ok := change.modified[rid]; ok {
			return row, nil
		}
		if rid > change.originalRowCount {
			return change.inserted[rid-change.originalRowCount-1], nil
		}
	}
	return readOriginalRow(pe, tableID, rid)
}

// readOriginalRow re-derives a Row from the as-parsed tables stream, since
// the generic Row/TableShape codec and the typed Table*Row structs must
// stay byte-for-byte equivalent (tables.go's FieldSpec list mirrors each
// typed struct's field order exactly).
func readOriginalRow(pe *File, tableID int, rid uint32) (Row, error) {
	ti := pe.tableInfo()
	off, err := originalRowOffset(pe, tableID, rid, ti)
	if err != nil {
		return Row{}, err
	}
	c := NewCursor(pe.data)
	c.Pos = off
	return ReadRow(c, ti, tableID, rid)
}

// originalRowOffset locates rid's byte offset within the as-parsed tables
// stream by walking every preceding table's row size, since the original
// parse did not retain per-row offsets.
func originalRowOffset(pe *File, tableID int, rid uint32, ti *TableInfo) (uint32, error) {
	base, err := tablesStreamBaseOffset(pe)
	if err != nil {
		return 0, err
	}
	off := tablesStreamHeaderSize(ti)
	for id := 0; id < tableID; id++ {
		rs, err := RowSize(ti, id)
		if err != nil {
			return 0, err
		}
		off += rs * ti.RowCount(id)
	}
	rs, err := RowSize(ti, tableID)
	if err != nil {
		return 0, err
	}
	off += rs * (rid - 1)
	return base + off, nil
}

func tablesStreamHeaderSize(ti *TableInfo) uint32 {
	size := uint32(4 + 1 + 1 + 1 + 1 + 8 + 8)
	for id := 0; id < TableCount; id++ {
		if ti.RowCount(id) > 0 {
			size += 4
		}
	}
	return size
}

func tablesStreamBaseOffset(pe *File) (uint32, error) {
	mdRoot := pe.GetOffsetFromRva(pe.CLR.CLRHeader.MetaData.VirtualAddress)
	for _, sh := range pe.CLR.MetadataStreamHeaders {
		if sh.Name == "#~" || sh.Name == "#-" {
			return mdRoot + sh.Offset, nil
		}
	}
	return 0, fmt.Errorf("%w: no tables stream header", ErrMalformed)
}

// buildMetadataRoot assembles the metadata root (BSJB header, stream
// directory, and the five stream payloads) into one contiguous byte slice,
// 4-byte aligning every stream per ECMA-335 II.24.2.1.
func buildMetadataRoot(pe *File, tables, strings, userStrings, guids, blobs []byte) []byte {
	c := NewCursor(nil)
	hdr := pe.CLR.MetadataHeader
	c.WriteU32(hdr.Signature)
	c.WriteU16(hdr.MajorVersion)
	c.WriteU16(hdr.MinorVersion)
	c.WriteU32(hdr.ExtraData)

	verBytes := append([]byte(hdr.Version), 0)
	for len(verBytes)%4 != 0 {
		verBytes = append(verBytes, 0)
	}
	c.WriteU32(uint32(len(verBytes)))
	c.WriteBytes(verBytes)

	c.WriteU8(hdr.Flags)
	c.WriteU8(0)

	type stream struct {
		name string
		data []byte
	}
	streams := []stream{
		{"#~", tables},
		{"#Strings", strings},
		{"#US", userStrings},
		{"#GUID", guids},
		{"#Blob", blobs},
	}
	c.WriteU16(uint16(len(streams)))

	aligned := make([][]byte, len(streams))
	for i, s := range streams {
		b := append([]byte(nil), s.data...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		aligned[i] = b
	}

	headerBytes := NewCursor(nil)
	offset := uint32(0)
	for i, s := range streams {
		headerBytes.WriteU32(offset)
		headerBytes.WriteU32(uint32(len(aligned[i])))
		nameBytes := append([]byte(s.name), 0)
		for len(nameBytes)%4 != 0 {
			nameBytes = append(nameBytes, 0)
		}
		headerBytes.WriteBytes(nameBytes)
		offset += uint32(len(aligned[i]))
	}
	c.WriteBytes(headerBytes.Data)
	for _, b := range aligned {
		c.WriteBytes(b)
	}
	return c.Data
}

// emitImage copies pe's original bytes, overwrites the metadata section
// with metadataRoot (when metadataRoot no longer fits, the section and the
// file grow; that is done only when the section is the file's last, and
// otherwise it returns ErrInvalidModification), and patches
// the CLR header's MetaData directory entry to match. When resources is
// non-empty it is laid immediately after metadataRoot in the same region
// and the CLR header's Resources directory is patched to point at it;
// resources always forces the grow path (even if metadataRoot alone would
// have fit in place) since the original image reserved no room for it.
func emitImage(pe *File, metadataRoot, resources []byte) ([]byte, error) {
	mdRVA := pe.CLR.CLRHeader.MetaData.VirtualAddress
	sec := pe.getSectionByRva(mdRVA)
	if sec == nil {
		return nil, fmt.Errorf("%w: metadata RVA 0x%X resolves to no section", ErrMalformed, mdRVA)
	}

	out := append([]byte(nil), pe.data...)

	mdFileOff := pe.GetOffsetFromRva(mdRVA)
	secEnd := sec.Header.PointerToRawData + sec.Header.SizeOfRawData
	totalSize := uint32(len(metadataRoot)) + uint32(len(resources))

	var resourcesRVA uint32
	if len(resources) == 0 && mdFileOff+totalSize <= secEnd {
		copy(out[mdFileOff:], metadataRoot)
		for i := mdFileOff + totalSize; i < secEnd && int(i) < len(out); i++ {
			out[i] = 0
		}
	} else {
		if !isLastSection(pe, sec) {
			return nil, fmt.Errorf("%w: new metadata (%d bytes) no longer fits its section and that section is not last in the file", ErrInvalidModification, totalSize)
		}
		fileAlign := fileAlignmentValue(pe)
		secAlign := sectionAlignmentValue(pe)

		newRawSize := alignUint32(mdFileOff-sec.Header.PointerToRawData+totalSize, fileAlign)
		grown := make([]byte, mdFileOff+newRawSize)
		copy(grown, out[:mdFileOff])
		copy(grown[mdFileOff:], metadataRoot)
		if len(resources) > 0 {
			copy(grown[mdFileOff+uint32(len(metadataRoot)):], resources)
			resourcesRVA = mdRVA + uint32(len(metadataRoot))
		}
		out = grown

		newVirtSize := alignUint32(mdRVA-sec.Header.VirtualAddress+totalSize, secAlign)
		patchSectionSizes(out, pe, sec, newRawSize, newVirtSize)
		patchSizeOfImage(out, pe, sec.Header.VirtualAddress+newVirtSize)
	}

	patchCLRHeaderMetaData(out, pe, mdRVA, uint32(len(metadataRoot)))
	if len(resources) > 0 {
		patchCLRHeaderResources(out, pe, resourcesRVA, uint32(len(resources)))
	}
	return out, nil
}

func isLastSection(pe *File, sec *Section) bool {
	for _, s := range pe.Sections {
		if s.Header.PointerToRawData > sec.Header.PointerToRawData {
			return false
		}
	}
	return true
}

func alignUint32(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

func fileAlignmentValue(pe *File) uint32 {
	if pe.Is64 {
		return pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).FileAlignment
	}
	return pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).FileAlignment
}

func sectionAlignmentValue(pe *File) uint32 {
	if pe.Is64 {
		return pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).SectionAlignment
	}
	return pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).SectionAlignment
}

func patchSectionSizes(out []byte, pe *File, sec *Section, rawSize, virtSize uint32) {
	off, ok := sectionHeaderFileOffset(pe, sec)
	if !ok {
		return
	}
	writeU32At(out, off+8, virtSize)
	writeU32At(out, off+16, rawSize)
}

// sectionHeaderFileOffset returns the file offset of sec's 40-byte
// IMAGE_SECTION_HEADER entry in the section table immediately following
// the optional header.
func sectionHeaderFileOffset(pe *File, sec *Section) (uint32, bool) {
	base := uint32(pe.DOSHeader.AddressOfNewEXEHeader) + 4 + uint32(pe.NtHeader.FileHeader.SizeOfOptionalHeader) + 20
	for i := range pe.Sections {
		if pe.Sections[i].Header.VirtualAddress == sec.Header.VirtualAddress {
			return base + uint32(i)*40, true
		}
	}
	return 0, false
}

func patchSizeOfImage(out []byte, pe *File, newSize uint32) {
	writeU32At(out, optionalHeaderFileOffset(pe)+56, newSize)
}

func optionalHeaderFileOffset(pe *File) uint32 {
	return uint32(pe.DOSHeader.AddressOfNewEXEHeader) + 4 + 20
}

// patchCLRHeaderMetaData rewrites the CLR header's own MetaData
// ImageDataDirectory sub-field (offset 8 within IMAGE_COR20_HEADER, after
// Cb/MajorRuntimeVersion/MinorRuntimeVersion) to point at the new metadata
// root. The PE-level data-directory entry that locates the CLR header
// itself never moves; only the structure it points at changes.
func patchCLRHeaderMetaData(out []byte, pe *File, mdRVA, mdSize uint32) {
	var dir DataDirectory
	if pe.Is64 {
		dir = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).DataDirectory[ImageDirectoryEntryCLR]
	} else {
		dir = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).DataDirectory[ImageDirectoryEntryCLR]
	}
	clrHeaderOff := pe.GetOffsetFromRva(dir.VirtualAddress)
	writeU32At(out, clrHeaderOff+8, mdRVA)
	writeU32At(out, clrHeaderOff+12, mdSize)
}

// patchCLRHeaderResources rewrites the CLR header's own Resources
// ImageDataDirectory sub-field (offset 24 within IMAGE_COR20_HEADER, after
// Cb/MajorRuntimeVersion/MinorRuntimeVersion/MetaData/Flags/EntryPointToken)
// to point at the newly materialized resource stream.
func patchCLRHeaderResources(out []byte, pe *File, rva, size uint32) {
	var dir DataDirectory
	if pe.Is64 {
		dir = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).DataDirectory[ImageDirectoryEntryCLR]
	} else {
		dir = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).DataDirectory[ImageDirectoryEntryCLR]
	}
	clrHeaderOff := pe.GetOffsetFromRva(dir.VirtualAddress)
	writeU32At(out, clrHeaderOff+24, rva)
	writeU32At(out, clrHeaderOff+28, size)
}

func writeU32At(out []byte, off, v uint32) {
	if int(off)+4 > len(out) {
		return
	}
	out[off] = byte(v)
	out[off+1] = byte(v >> 8)
	out[off+2] = byte(v >> 16)
	out[off+3] = byte(v >> 24)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
