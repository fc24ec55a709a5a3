// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// CustomAttributeBuilder assembles one CustomAttribute row attaching a
// fixed-arg/named-arg value blob (customattr.go's codec) to any token the
// HasCustomAttribute coded-index family covers.
type CustomAttributeBuilder struct {
	ctx *BuilderContext

	parent Token
	ctor   Token // MethodDef or MemberRef: the attribute's constructor
	value  *CustomAttributeValue
}

// NewCustomAttributeBuilder starts a CustomAttribute row builder.
func NewCustomAttributeBuilder(ctx *BuilderContext) *CustomAttributeBuilder {
	return &CustomAttributeBuilder{ctx: ctx}
}

// Parent sets the token this attribute decorates.
func (b *CustomAttributeBuilder) Parent(tok Token) *CustomAttributeBuilder { b.parent = tok; return b }

// Constructor sets the attribute class's constructor (a MethodDef or
// MemberRef token; any other table is rejected at Build time the same way
// validateAttributeUsage rejects it when read back).
func (b *CustomAttributeBuilder) Constructor(tok Token) *CustomAttributeBuilder { b.ctor = tok; return b }

// Value sets the attribute's fixed-arg/named-arg payload.
func (b *CustomAttributeBuilder) Value(v *CustomAttributeValue) *CustomAttributeBuilder {
	b.value = v
	return b
}

// Build appends the CustomAttribute row and returns its token.
func (b *CustomAttributeBuilder) Build() (Token, error) {
	if b.ctor.Table() != MethodDef && b.ctor.Table() != MemberRef {
		return 0, fmt.Errorf("%w: custom attribute constructor must be a MethodDef or MemberRef, got %s",
			ErrInvalidModification, b.ctor)
	}
	parentVal, err := b.ctx.encodeCodedToken(b.parent, idxHasCustomAttributes)
	if err != nil {
		return 0, err
	}
	ctorVal, err := b.ctx.EncodeCoded(b.ctor.Table(), b.ctor.RID(), idxCustomAttributeType)
	if err != nil {
		return 0, err
	}
	var valueIdx uint32
	if b.value != nil {
		encoded, err := EncodeCustomAttributeValue(b.value)
		if err != nil {
			return 0, err
		}
		valueIdx = b.ctx.BlobAdd(encoded)
	}
	row := Row{Fields: []uint32{parentVal, ctorVal, valueIdx}}
	return b.ctx.TableRowAdd(CustomAttribute, row)
}
