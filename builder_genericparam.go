// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// GenericParam attribute flags, ECMA-335 II.23.1.7.
const (
	GenericParamVariantCovariant             uint16 = 0x0001
	GenericParamVariantContravariant         uint16 = 0x0002
	GenericParamSpecialConstraint            uint16 = 0x0004 // reference type constraint
	GenericParamNotNullableConstraint        uint16 = 0x0008 // value type constraint
	GenericParamDefaultConstructorConstraint uint16 = 0x0010
)

// GenericParamBuilder assembles one GenericParam row, owned by a TypeDef or
// MethodDef token. Number is the zero-based ordinal within owner's own
// parameter list (ECMA-335 II.23.2.8 requires ordinals to be contiguous and
// increasing for a given owner, which this builder does not itself check:
// the caller is expected to call it in declaration order).
type GenericParamBuilder struct {
	ctx *BuilderContext

	number uint16
	flags  uint16
	owner  Token
	name   string
}

// NewGenericParamBuilder starts a GenericParam row builder for owner (a
// TypeDef or MethodDef token).
func NewGenericParamBuilder(ctx *BuilderContext, owner Token) *GenericParamBuilder {
	return &GenericParamBuilder{ctx: ctx, owner: owner}
}

// Number sets the parameter's zero-based ordinal.
func (b *GenericParamBuilder) Number(n uint16) *GenericParamBuilder { b.number = n; return b }

// Flags sets the parameter's variance/special-constraint bitset.
func (b *GenericParamBuilder) Flags(f uint16) *GenericParamBuilder { b.flags = f; return b }

// Name sets the parameter's source name (e.g. "T", "TKey").
func (b *GenericParamBuilder) Name(name string) *GenericParamBuilder { b.name = name; return b }

// Build appends the GenericParam row and returns its token.
func (b *GenericParamBuilder) Build() (Token, error) {
	ownerVal, err := b.ctx.encodeCodedToken(b.owner, idxTypeOrMethodDef)
	if err != nil {
		return 0, err
	}
	nameIdx := b.ctx.StringAdd(b.name)
	row := Row{Fields: []uint32{uint32(b.number), uint32(b.flags), ownerVal, nameIdx}}
	return b.ctx.TableRowAdd(GenericParam, row)
}

// GenericParamConstraintBuilder assembles one GenericParamConstraint row,
// binding a GenericParam to a TypeDef/TypeRef/TypeSpec it must satisfy (an
// interface it implements, or a base class/struct constraint). ECMA-335
// allows several constraint rows per GenericParam, one per constraint type.
type GenericParamConstraintBuilder struct {
	ctx *BuilderContext

	owner      Token
	constraint Token
}

// NewGenericParamConstraintBuilder starts a GenericParamConstraint row
// builder for owner, a token previously returned by GenericParamBuilder.
func NewGenericParamConstraintBuilder(ctx *BuilderContext, owner Token) *GenericParamConstraintBuilder {
	return &GenericParamConstraintBuilder{ctx: ctx, owner: owner}
}

// Constraint sets the TypeDef/TypeRef/TypeSpec the generic parameter is
// constrained to.
func (b *GenericParamConstraintBuilder) Constraint(t Token) *GenericParamConstraintBuilder {
	b.constraint = t
	return b
}

// Build appends the GenericParamConstraint row and returns its token.
func (b *GenericParamConstraintBuilder) Build() (Token, error) {
	if b.owner.Table() != GenericParam {
		return 0, fmt.Errorf("%w: GenericParamConstraint owner must be a GenericParam token", ErrInvalidModification)
	}
	constraintVal, err := b.ctx.encodeCodedToken(b.constraint, idxTypeDefOrRef)
	if err != nil {
		return 0, err
	}
	row := Row{Fields: []uint32{b.owner.RID(), constraintVal}}
	return b.ctx.TableRowAdd(GenericParamConstraint, row)
}
