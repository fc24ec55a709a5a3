// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// MethodSpecBuilder assembles one MethodSpec row: a generic method
// instantiation, binding a generic MethodDef/MemberRef to a concrete list
// of type arguments.
type MethodSpecBuilder struct {
	ctx    *BuilderContext
	method Token // MethodDef or MemberRef
	args   []*TypeSig
}

// NewMethodSpecBuilder starts a MethodSpec row builder.
func NewMethodSpecBuilder(ctx *BuilderContext) *MethodSpecBuilder {
	return &MethodSpecBuilder{ctx: ctx}
}

// Method sets the generic method being instantiated.
func (b *MethodSpecBuilder) Method(tok Token) *MethodSpecBuilder { b.method = tok; return b }

// Args sets the instantiation's type arguments, in generic-parameter order.
func (b *MethodSpecBuilder) Args(args ...*TypeSig) *MethodSpecBuilder { b.args = args; return b }

// Build appends the MethodSpec row and returns its token.
func (b *MethodSpecBuilder) Build() (Token, error) {
	methodVal, err := b.ctx.EncodeCoded(b.method.Table(), b.method.RID(), idxMethodDefOrRef)
	if err != nil {
		return 0, err
	}
	instBytes, err := EncodeMethodSpecSignature(b.args)
	if err != nil {
		return 0, err
	}
	instIdx := b.ctx.BlobAdd(instBytes)
	row := Row{Fields: []uint32{methodVal, instIdx}}
	return b.ctx.TableRowAdd(MethodSpec, row)
}
