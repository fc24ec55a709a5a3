// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// Property attribute flags, ECMA-335 II.23.1.14.
const (
	PropertyAttrSpecialName   uint16 = 0x0200
	PropertyAttrRTSpecialName uint16 = 0x0400
	PropertyAttrHasDefault    uint16 = 0x1000
)

// MethodSemantics association-kind flags, ECMA-335 II.23.1.12.
const (
	MethodSemanticSetter   uint16 = 0x0001
	MethodSemanticGetter   uint16 = 0x0002
	MethodSemanticOther    uint16 = 0x0004
	MethodSemanticAddOn    uint16 = 0x0008
	MethodSemanticRemoveOn uint16 = 0x0010
	MethodSemanticFire     uint16 = 0x0020
)

// PropertyBuilder assembles one Property row plus the MethodSemantics rows
// linking it to its getter/setter MethodDefs. A PropertyMap row owning this
// property is the caller's responsibility (ClassBuilder creates it), since
// ECMA-335 requires exactly one PropertyMap row per type that declares any
// properties, not one per property.
type PropertyBuilder struct {
	ctx *BuilderContext

	flags  uint16
	name   string
	sig    *PropertySig
	getter Token
	setter Token
}

// NewPropertyBuilder starts a Property row builder.
func NewPropertyBuilder(ctx *BuilderContext) *PropertyBuilder {
	return &PropertyBuilder{ctx: ctx}
}

// Flags sets the property's attribute bitset.
func (b *PropertyBuilder) Flags(f uint16) *PropertyBuilder { b.flags = f; return b }

// Name sets the property's name.
func (b *PropertyBuilder) Name(name string) *PropertyBuilder { b.name = name; return b }

// Signature sets the property's signature.
func (b *PropertyBuilder) Signature(sig *PropertySig) *PropertyBuilder { b.sig = sig; return b }

// Getter records the MethodDef token backing this property's get accessor.
func (b *PropertyBuilder) Getter(m Token) *PropertyBuilder { b.getter = m; return b }

// Setter records the MethodDef token backing this property's set accessor.
func (b *PropertyBuilder) Setter(m Token) *PropertyBuilder { b.setter = m; return b }

// Build appends the Property row and the MethodSemantics rows wiring its
// getter/setter, returning the property's token.
func (b *PropertyBuilder) Build() (Token, error) {
	nameIdx := b.ctx.StringAdd(b.name)
	sigBytes, err := EncodePropertySignature(b.sig)
	if err != nil {
		return 0, err
	}
	sigIdx := b.ctx.BlobAdd(sigBytes)
	tok, err := b.ctx.TableRowAdd(Property, Row{Fields: []uint32{uint32(b.flags), nameIdx, sigIdx}})
	if err != nil {
		return 0, err
	}
	assocVal, err := b.ctx.encodeCodedToken(tok, idxHasSemantics)
	if err != nil {
		return 0, err
	}
	if !b.getter.IsNull() {
		if _, err := b.ctx.TableRowAdd(MethodSemantics, Row{Fields: []uint32{
			uint32(MethodSemanticGetter), b.getter.RID(), assocVal,
		}}); err != nil {
			return 0, err
		}
	}
	if !b.setter.IsNull() {
		if _, err := b.ctx.TableRowAdd(MethodSemantics, Row{Fields: []uint32{
			uint32(MethodSemanticSetter), b.setter.RID(), assocVal,
		}}); err != nil {
			return 0, err
		}
	}
	return tok, nil
}
