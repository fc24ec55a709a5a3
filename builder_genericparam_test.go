// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "testing"

// newTestEditable builds an Editable over an otherwise-empty managed image,
// enough to exercise the builder layer's heap/table plumbing without a real
// PE file on disk.
func newTestEditable(t *testing.T) *Editable {
	t.Helper()
	var counts [TableCount]uint32
	counts[TypeDef] = 1 // a single owning TypeDef row for GenericParam.Owner
	pe := &File{
		FileInfo: FileInfo{HasCLR: true},
		CLR: CLRData{
			TableInfo:       NewTableInfo(counts, 0),
			MetadataStreams: map[string][]byte{},
		},
	}
	v, err := newView(pe)
	if err != nil {
		t.Fatalf("newView() failed, reason: %v", err)
	}
	return v.ToEditable()
}

func TestGenericParamBuilderBuild(t *testing.T) {
	ed := newTestEditable(t)
	bc := NewBuilderContext(ed)
	owner := NewToken(TypeDef, 1)

	tok, err := NewGenericParamBuilder(bc, owner).
		Number(0).
		Flags(GenericParamVariantCovariant).
		Name("T").
		Build()
	if err != nil {
		t.Fatalf("GenericParamBuilder.Build() failed, reason: %v", err)
	}
	if tok.Table() != GenericParam {
		t.Errorf("Build() token table = %d, want GenericParam (%d)", tok.Table(), GenericParam)
	}
	if tok.RID() != 1 {
		t.Errorf("Build() token rid = %d, want 1", tok.RID())
	}

	row := ed.model.Tables[GenericParam].inserted[0]
	if row.Fields[0] != 0 {
		t.Errorf("row.Fields[Number] = %d, want 0", row.Fields[0])
	}
	if row.Fields[1] != uint32(GenericParamVariantCovariant) {
		t.Errorf("row.Fields[Flags] = %#X, want %#X", row.Fields[1], GenericParamVariantCovariant)
	}
}

func TestGenericParamConstraintBuilderBuild(t *testing.T) {
	ed := newTestEditable(t)
	bc := NewBuilderContext(ed)
	owner := NewToken(TypeDef, 1)

	gpTok, err := NewGenericParamBuilder(bc, owner).Number(0).Name("T").Build()
	if err != nil {
		t.Fatalf("GenericParamBuilder.Build() failed, reason: %v", err)
	}

	constraintTok := NewToken(TypeDef, 1) // constrain T to some TypeDef
	tok, err := NewGenericParamConstraintBuilder(bc, gpTok).
		Constraint(constraintTok).
		Build()
	if err != nil {
		t.Fatalf("GenericParamConstraintBuilder.Build() failed, reason: %v", err)
	}
	if tok.Table() != GenericParamConstraint {
		t.Errorf("Build() token table = %d, want GenericParamConstraint (%d)", tok.Table(), GenericParamConstraint)
	}

	row := ed.model.Tables[GenericParamConstraint].inserted[0]
	if row.Fields[0] != gpTok.RID() {
		t.Errorf("row.Fields[Owner] = %d, want %d", row.Fields[0], gpTok.RID())
	}
}

func TestGenericParamConstraintBuilderRejectsNonGenericParamOwner(t *testing.T) {
	ed := newTestEditable(t)
	bc := NewBuilderContext(ed)

	_, err := NewGenericParamConstraintBuilder(bc, NewToken(TypeDef, 1)).
		Constraint(NewToken(TypeDef, 1)).
		Build()
	if err == nil {
		t.Fatal("Build() with a non-GenericParam owner token succeeded, want error")
	}
}
