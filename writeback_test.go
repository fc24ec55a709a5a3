// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"testing"
)

func TestAlignUint32(t *testing.T) {
	tests := []struct {
		v, align, want uint32
	}{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{0x1FF, 0x200, 0x200},
		{0x200, 0x200, 0x200},
	}
	for _, tt := range tests {
		if got := alignUint32(tt.v, tt.align); got != tt.want {
			t.Errorf("alignUint32(%#X, %#X) = %#X, want %#X", tt.v, tt.align, got, tt.want)
		}
	}
}

func TestTablesStreamHeaderSizeGrowsWithPresentTables(t *testing.T) {
	var none [TableCount]uint32
	empty := NewTableInfo(none, 0)
	baseSize := tablesStreamHeaderSize(empty)

	var withModule [TableCount]uint32
	withModule[Module] = 1
	withModule[TypeDef] = 3
	populated := NewTableInfo(withModule, 0)

	gotSize := tablesStreamHeaderSize(populated)
	if gotSize != baseSize+8 { // two present tables, 4 bytes of row-count each
		t.Errorf("tablesStreamHeaderSize() = %d, want %d", gotSize, baseSize+8)
	}
}

func TestBuildMetadataRootRoundTripsStreamDirectory(t *testing.T) {
	pe := &File{
		CLR: CLRData{
			MetadataHeader: MetadataHeader{
				Signature:    0x424A5342,
				MajorVersion: 1,
				MinorVersion: 1,
				Version:      "v4.0.30319",
				Flags:        0,
			},
		},
	}
	tables := []byte{0x01, 0x02, 0x03}
	strings := []byte{0x00, 'A', 0x00}
	userStrings := []byte{0x00}
	guids := make([]byte, 16)
	blobs := []byte{0x00}

	root := buildMetadataRoot(pe, tables, strings, userStrings, guids, blobs)

	if len(root) < 16 {
		t.Fatalf("buildMetadataRoot() produced %d bytes, too small for a BSJB header", len(root))
	}
	sig := uint32(root[0]) | uint32(root[1])<<8 | uint32(root[2])<<16 | uint32(root[3])<<24
	if sig != 0x424A5342 {
		t.Errorf("metadata root signature = %#X, want %#X (BSJB)", sig, 0x424A5342)
	}
	if !bytes.Contains(root, []byte("#~")) {
		t.Error("metadata root is missing the #~ (tables) stream name")
	}
	if !bytes.Contains(root, []byte("#Strings")) {
		t.Error("metadata root is missing the #Strings stream name")
	}
	if !bytes.Contains(root, tables) {
		t.Error("metadata root does not contain the tables stream payload")
	}
}

func TestIsLastSection(t *testing.T) {
	pe := &File{
		Sections: []Section{
			{Header: ImageSectionHeader{PointerToRawData: 0x200}},
			{Header: ImageSectionHeader{PointerToRawData: 0x400}},
		},
	}

	if !isLastSection(pe, &pe.Sections[1]) {
		t.Error("isLastSection() on the section with the highest file offset = false, want true")
	}
	if isLastSection(pe, &pe.Sections[0]) {
		t.Error("isLastSection() on a non-last section = true, want false")
	}
}
