// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// codedidx describes one coded-index family: the tables a member field may
// point at, keyed by a tag occupying the low tagbits bits of the encoded
// value. idx is indexed by tag; a -1 entry marks a tag the family reserves
// but never emits (CustomAttributeType leaves tags 0, 1 and 4 unused).
type codedidx struct {
	tagbits uint8
	idx     []int
}

// The fixed set of coded-index families, ECMA-335 II.24.2.6. Tag order
// within each family is part of the wire format and must match the
// standard exactly, gaps included.
var (
	idxTypeDefOrRef    = codedidx{tagbits: 2, idx: []int{TypeDef, TypeRef, TypeSpec}}
	idxHasConstant     = codedidx{tagbits: 2, idx: []int{Field, Param, Property}}
	idxHasCustomAttributes = codedidx{tagbits: 5, idx: []int{
		MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module,
		DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly,
		AssemblyRef, FileMD, ExportedType, ManifestResource, GenericParam,
		GenericParamConstraint, MethodSpec,
	}}
	idxHasFieldMarshall = codedidx{tagbits: 1, idx: []int{Field, Param}}
	idxHasDeclSecurity  = codedidx{tagbits: 2, idx: []int{TypeDef, MethodDef, Assembly}}
	idxMemberRefParent  = codedidx{tagbits: 3, idx: []int{TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec}}
	idxHasSemantics     = codedidx{tagbits: 1, idx: []int{Event, Property}}
	idxMethodDefOrRef   = codedidx{tagbits: 1, idx: []int{MethodDef, MemberRef}}
	idxMemberForwarded  = codedidx{tagbits: 1, idx: []int{Field, MethodDef}}
	idxImplementation   = codedidx{tagbits: 2, idx: []int{FileMD, AssemblyRef, ExportedType}}
	// CustomAttributeType reserves tags 0, 1 and 4; only MethodDef (tag 2) and
	// MemberRef (tag 3) are ever emitted.
	idxCustomAttributeType = codedidx{tagbits: 3, idx: []int{-1, -1, MethodDef, MemberRef, -1}}
	idxResolutionScope     = codedidx{tagbits: 2, idx: []int{Module, ModuleRef, AssemblyRef, TypeRef}}
	idxTypeOrMethodDef     = codedidx{tagbits: 1, idx: []int{TypeDef, MethodDef}}
)
