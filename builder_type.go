// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// TypeDef flags, ECMA-335 II.23.1.15 (the subset builders commonly need;
// the full bitset is wider but every other bit round-trips as a plain
// uint32 passed through Flags).
const (
	TypeAttrPublic       uint32 = 0x00000001
	TypeAttrNotPublic    uint32 = 0x00000000
	TypeAttrSealed       uint32 = 0x00000100
	TypeAttrAbstract     uint32 = 0x00000080
	TypeAttrInterface    uint32 = 0x00000020
	TypeAttrClass        uint32 = 0x00000000
	TypeAttrAutoLayout   uint32 = 0x00000000
	TypeAttrSpecialName  uint32 = 0x00000400
	TypeAttrRTSpecialName uint32 = 0x00000800
)

// TypeDefBuilder assembles one TypeDef row. FieldList/MethodList are
// captured at construction time (the rid the next Field/MethodDef append
// would receive), matching ECMA-335's run-to-next-row-or-end-of-table
// convention: a TypeDef's field/method range is implicit, bounded by the
// following TypeDef's own FieldList/MethodList rather than stored as a
// count.
type TypeDefBuilder struct {
	ctx *BuilderContext

	flags     uint32
	name      string
	namespace string
	extends   Token

	fieldList  uint32
	methodList uint32
}

// NewTypeDefBuilder starts a TypeDef row builder. Calling it pins
// FieldList/MethodList at the table's current append frontier, so any
// FieldBuilder/MethodDefBuilder.Build calls made between this call and this
// builder's own Build must belong to this type (ECMA-335 requires every
// type's field/method run to be contiguous).
func NewTypeDefBuilder(ctx *BuilderContext) *TypeDefBuilder {
	return &TypeDefBuilder{
		ctx:        ctx,
		fieldList:  ctx.NextRID(Field),
		methodList: ctx.NextRID(MethodDef),
	}
}

// Flags sets the TypeDef's attribute bitset.
func (b *TypeDefBuilder) Flags(f uint32) *TypeDefBuilder { b.flags = f; return b }

// Name sets the unqualified type name.
func (b *TypeDefBuilder) Name(name string) *TypeDefBuilder { b.name = name; return b }

// Namespace sets the type's namespace (empty for the global namespace).
func (b *TypeDefBuilder) Namespace(ns string) *TypeDefBuilder { b.namespace = ns; return b }

// Extends sets the base type reference (TypeDef/TypeRef/TypeSpec). Leave
// the zero Token for a type with no base (an interface, or the rare case of
// System.Object itself).
func (b *TypeDefBuilder) Extends(base Token) *TypeDefBuilder { b.extends = base; return b }

// Build appends the TypeDef row and returns its token.
func (b *TypeDefBuilder) Build() (Token, error) {
	nameIdx := b.ctx.StringAdd(b.name)
	var nsIdx uint32
	if b.namespace != "" {
		nsIdx = b.ctx.StringAdd(b.namespace)
	}
	extendsVal, err := b.ctx.encodeCodedToken(b.extends, idxTypeDefOrRef)
	if err != nil {
		return 0, err
	}
	row := Row{Fields: []uint32{
		b.flags, nameIdx, nsIdx, extendsVal, b.fieldList, b.methodList,
	}}
	return b.ctx.TableRowAdd(TypeDef, row)
}
