// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// Method attribute flags, ECMA-335 II.23.1.10 (access mask low 3 bits plus
// the standalone bits builders reach for most often).
const (
	MethodAttrPublic    uint16 = 0x0006
	MethodAttrPrivate   uint16 = 0x0001
	MethodAttrStatic    uint16 = 0x0010
	MethodAttrVirtual   uint16 = 0x0040
	MethodAttrHideBySig uint16 = 0x0080
	MethodAttrAbstract  uint16 = 0x0400
	MethodAttrSpecialName uint16 = 0x0800
	MethodAttrRTSpecialName uint16 = 0x1000
)

// Method implementation flags, ECMA-335 II.23.1.11.
const (
	MethodImplIL      uint16 = 0x0000
	MethodImplNative  uint16 = 0x0001
	MethodImplManaged uint16 = 0x0000
)

// ParamSpec describes one parameter a MethodDefBuilder will emit a Param
// row for. Sequence 0 names the return value itself (used only when it
// needs a [out]/marshalling annotation of its own); ordinary parameters
// start at sequence 1.
type ParamSpec struct {
	Flags    uint16
	Sequence uint16
	Name     string
}

// MethodDefBuilder assembles one MethodDef row, its Param rows, and
// (optionally) a CIL method body. Placing the encoded body's bytes inside
// the image and wiring the resulting RVA back into this row is the
// caller's responsibility: the write-back engine's scope (writeback.go)
// only supports resizing the existing metadata section, not allocating a
// fresh code region, so BuildWithBody returns the encoded body alongside
// the token rather than silently assuming where it will live.
type MethodDefBuilder struct {
	ctx *BuilderContext

	rva       uint32
	implFlags uint16
	flags     uint16
	name      string
	sig       *MethodSig
	params    []ParamSpec
}

// NewMethodDefBuilder starts a MethodDef row builder.
func NewMethodDefBuilder(ctx *BuilderContext) *MethodDefBuilder {
	return &MethodDefBuilder{ctx: ctx, implFlags: MethodImplIL}
}

// Flags sets the method's attribute bitset.
func (b *MethodDefBuilder) Flags(f uint16) *MethodDefBuilder { b.flags = f; return b }

// ImplFlags sets the method's implementation-flags bitset.
func (b *MethodDefBuilder) ImplFlags(f uint16) *MethodDefBuilder { b.implFlags = f; return b }

// Name sets the method's name.
func (b *MethodDefBuilder) Name(name string) *MethodDefBuilder { b.name = name; return b }

// Signature sets the method's signature.
func (b *MethodDefBuilder) Signature(sig *MethodSig) *MethodDefBuilder { b.sig = sig; return b }

// Param appends one Param row specification, in declaration order.
func (b *MethodDefBuilder) Param(p ParamSpec) *MethodDefBuilder {
	b.params = append(b.params, p)
	return b
}

// RVA sets the MethodDef row's RVA directly, for a method whose body
// already exists at a known file location (e.g. an abstract/extern method
// carries RVA 0, or a caller relocating an existing body in place).
func (b *MethodDefBuilder) RVA(rva uint32) *MethodDefBuilder { b.rva = rva; return b }

// Build appends the MethodDef row (and its Param rows) using whatever RVA
// was set via RVA (0 if never called, the correct value for an abstract or
// P/Invoke-forwarded method).
func (b *MethodDefBuilder) Build() (Token, error) {
	nameIdx := b.ctx.StringAdd(b.name)
	sigBytes, err := EncodeMethodSignature(b.sig)
	if err != nil {
		return 0, err
	}
	sigIdx := b.ctx.BlobAdd(sigBytes)
	paramList := b.ctx.NextRID(Param)
	row := Row{Fields: []uint32{
		b.rva, uint32(b.implFlags), uint32(b.flags), nameIdx, sigIdx, paramList,
	}}
	tok, err := b.ctx.TableRowAdd(MethodDef, row)
	if err != nil {
		return 0, err
	}
	for _, p := range b.params {
		pnameIdx := b.ctx.StringAdd(p.Name)
		prow := Row{Fields: []uint32{uint32(p.Flags), uint32(p.Sequence), pnameIdx}}
		if _, err := b.ctx.TableRowAdd(Param, prow); err != nil {
			return 0, err
		}
	}
	return tok, nil
}

// BuildWithBody is Build plus assembling instrs (and exception clauses, if
// any) into a method body. It returns the MethodDef token and the encoded
// body bytes; the caller must place those bytes at an RVA and, since Build
// already wrote the row with whatever RVA was current, call RVA before
// BuildWithBody if that RVA is known ahead of time, or TableRowModify the
// resulting row afterwards once it is.
func (b *MethodDefBuilder) BuildWithBody(instrs []AsmInstruction, maxStack uint16, initLocals bool, localVarSigTok Token, clauses []ExceptionClause) (Token, []byte, error) {
	tok, err := b.Build()
	if err != nil {
		return 0, nil, err
	}
	asm := NewAssembler(instrs)
	code, _, err := asm.Assemble()
	if err != nil {
		return 0, nil, fmt.Errorf("method %s body: %w", b.name, err)
	}
	body := &MethodBody{
		MaxStack:         maxStack,
		LocalVarSigToken: localVarSigTok,
		InitLocals:       initLocals,
		Code:             code,
		ExceptionClauses: clauses,
	}
	encoded, err := EncodeMethodBody(body)
	if err != nil {
		return 0, nil, fmt.Errorf("method %s body: %w", b.name, err)
	}
	return tok, encoded, nil
}
