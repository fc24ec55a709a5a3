// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// Field attribute flags, ECMA-335 II.23.1.5 (the access-mask low 3 bits
// plus the two most commonly set standalone bits).
const (
	FieldAttrPrivate   uint16 = 0x0001
	FieldAttrPublic    uint16 = 0x0006
	FieldAttrStatic    uint16 = 0x0010
	FieldAttrInitOnly  uint16 = 0x0020
	FieldAttrLiteral   uint16 = 0x0040
	FieldAttrHasDefault uint16 = 0x8000 // informative only; Constant rows are what the runtime reads
)

// FieldBuilder assembles one Field row plus, optionally, the FieldRVA
// (field bound to a byte range of the image rather than constructor-
// initialized) or Constant (compile-time literal default) rows that can
// reference it.
type FieldBuilder struct {
	ctx *BuilderContext

	flags uint16
	name  string
	sig   *TypeSig
}

// NewFieldBuilder starts a Field row builder.
func NewFieldBuilder(ctx *BuilderContext) *FieldBuilder {
	return &FieldBuilder{ctx: ctx}
}

// Flags sets the field's attribute bitset.
func (b *FieldBuilder) Flags(f uint16) *FieldBuilder { b.flags = f; return b }

// Name sets the field's name.
func (b *FieldBuilder) Name(name string) *FieldBuilder { b.name = name; return b }

// Type sets the field's type signature.
func (b *FieldBuilder) Type(t *TypeSig) *FieldBuilder { b.sig = t; return b }

// Build appends the Field row and returns its token.
func (b *FieldBuilder) Build() (Token, error) {
	nameIdx := b.ctx.StringAdd(b.name)
	sigBytes, err := EncodeFieldSignature(b.sig)
	if err != nil {
		return 0, err
	}
	sigIdx := b.ctx.BlobAdd(sigBytes)
	row := Row{Fields: []uint32{uint32(b.flags), nameIdx, sigIdx}}
	return b.ctx.TableRowAdd(Field, row)
}

// AddConstant appends a Constant row giving field a compile-time default
// value, blob-encoded the way a literal field's value is stored per
// ECMA-335 II.22.9 (typeTag is the Constant table's own Type column, one of
// the ELEMENT_TYPE_* primitive tags, and value is the already-encoded
// little-endian payload).
func AddConstant(ctx *BuilderContext, parent Token, typeTag ElementType, value []byte) (Token, error) {
	parentVal, err := ctx.encodeCodedToken(parent, idxHasConstant)
	if err != nil {
		return 0, err
	}
	valueIdx := ctx.BlobAdd(value)
	row := Row{Fields: []uint32{uint32(typeTag), parentVal, valueIdx}}
	return ctx.TableRowAdd(Constant, row)
}

// AddFieldRVA appends a FieldRVA row binding field to rva, used for a
// field whose storage is a fixed byte range of the image (e.g. a
// RuntimeHelpers.InitializeArray-style static data blob) rather than
// constructor-initialized.
func AddFieldRVA(ctx *BuilderContext, field Token, rva uint32) (Token, error) {
	row := Row{Fields: []uint32{rva, field.RID()}}
	return ctx.TableRowAdd(FieldRVA, row)
}
