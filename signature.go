// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// ElementType is the ECMA-335 II.23.1.16 element-type tag: the discriminator
// byte that opens every type reference inside a signature blob.
type ElementType byte

// Element-type tags, ECMA-335 II.23.1.16.
const (
	ElementTypeEnd          ElementType = 0x00
	ElementTypeVoid         ElementType = 0x01
	ElementTypeBoolean      ElementType = 0x02
	ElementTypeChar         ElementType = 0x03
	ElementTypeI1           ElementType = 0x04
	ElementTypeU1           ElementType = 0x05
	ElementTypeI2           ElementType = 0x06
	ElementTypeU2           ElementType = 0x07
	ElementTypeI4           ElementType = 0x08
	ElementTypeU4           ElementType = 0x09
	ElementTypeI8           ElementType = 0x0a
	ElementTypeU8           ElementType = 0x0b
	ElementTypeR4           ElementType = 0x0c
	ElementTypeR8           ElementType = 0x0d
	ElementTypeString       ElementType = 0x0e
	ElementTypePtr          ElementType = 0x0f
	ElementTypeByRef        ElementType = 0x10
	ElementTypeValueType    ElementType = 0x11
	ElementTypeClass        ElementType = 0x12
	ElementTypeVar          ElementType = 0x13
	ElementTypeArray        ElementType = 0x14
	ElementTypeGenericInst  ElementType = 0x15
	ElementTypeTypedByRef   ElementType = 0x16
	ElementTypeI            ElementType = 0x18
	ElementTypeU            ElementType = 0x19
	ElementTypeFnPtr        ElementType = 0x1b
	ElementTypeObject       ElementType = 0x1c
	ElementTypeSZArray      ElementType = 0x1d
	ElementTypeMVar         ElementType = 0x1e
	ElementTypeCModReqd     ElementType = 0x1f
	ElementTypeCModOpt      ElementType = 0x20
	ElementTypeInternal     ElementType = 0x21
	ElementTypeModifier     ElementType = 0x40
	ElementTypeSentinel     ElementType = 0x41
	ElementTypePinned       ElementType = 0x45
	ElementTypeTypeCustom   ElementType = 0x50 // C#-style "type" used only in custom-attribute blobs
	ElementTypeBoxedObject  ElementType = 0x51 // boxed value type in a custom-attribute value
	ElementTypeReserved     ElementType = 0x52
	ElementTypeField        ElementType = 0x53 // CustomAttribute named-arg kind: field
	ElementTypeProperty     ElementType = 0x54 // CustomAttribute named-arg kind: property
	ElementTypeEnumCustom   ElementType = 0x55 // enum value in a custom-attribute value
)

func (e ElementType) String() string {
	if n, ok := elementTypeNames[e]; ok {
		return n
	}
	return fmt.Sprintf("ELEMENT_TYPE(0x%02X)", byte(e))
}

var elementTypeNames = map[ElementType]string{
	ElementTypeEnd: "END", ElementTypeVoid: "VOID", ElementTypeBoolean: "BOOLEAN",
	ElementTypeChar: "CHAR", ElementTypeI1: "I1", ElementTypeU1: "U1", ElementTypeI2: "I2",
	ElementTypeU2: "U2", ElementTypeI4: "I4", ElementTypeU4: "U4", ElementTypeI8: "I8",
	ElementTypeU8: "U8", ElementTypeR4: "R4", ElementTypeR8: "R8", ElementTypeString: "STRING",
	ElementTypePtr: "PTR", ElementTypeByRef: "BYREF", ElementTypeValueType: "VALUETYPE",
	ElementTypeClass: "CLASS", ElementTypeVar: "VAR", ElementTypeArray: "ARRAY",
	ElementTypeGenericInst: "GENERICINST", ElementTypeTypedByRef: "TYPEDBYREF", ElementTypeI: "I",
	ElementTypeU: "U", ElementTypeFnPtr: "FNPTR", ElementTypeObject: "OBJECT",
	ElementTypeSZArray: "SZARRAY", ElementTypeMVar: "MVAR", ElementTypeCModReqd: "CMOD_REQD",
	ElementTypeCModOpt: "CMOD_OPT", ElementTypeInternal: "INTERNAL", ElementTypeSentinel: "SENTINEL",
	ElementTypePinned: "PINNED",
}

// Method-signature calling-convention/kind bits, ECMA-335 II.23.2.1 and
// II.23.2.3 (the low nibble is mutually exclusive; HASTHIS/EXPLICITTHIS and
// the generic flag are independent bits).
const (
	SigDefault       byte = 0x00
	SigCDecl         byte = 0x01
	SigStdCall       byte = 0x02
	SigThisCall      byte = 0x03
	SigFastCall      byte = 0x04
	SigVarArg        byte = 0x05
	SigGeneric       byte = 0x10
	SigHasThis       byte = 0x20
	SigExplicitThis  byte = 0x40
	SigKindMask      byte = 0x0f
	SigField         byte = 0x06
	SigLocalVar      byte = 0x07
	SigProperty      byte = 0x08
	SigGenericInst   byte = 0x0a // GENERICINST calling convention for MethodSpec blobs
)

// signatureDepthLimit bounds type-signature nesting; exceeding it is
// ErrRecursionLimit. The marshalling-descriptor decoder does not nest and
// does not consult it.
const signatureDepthLimit = 50

// TypeSig is the tagged-union type-reference model shared by every kind of
// signature: a discriminator (Tag) plus the payload relevant to that tag.
// Only the fields relevant to Tag are populated; the rest are zero.
type TypeSig struct {
	Tag ElementType

	// ValueType / Class: the resolved TypeDefOrRef token.
	TypeToken Token

	// Var / MVar: the generic parameter index.
	GenericIndex uint32

	// Ptr / ByRef / SZArray / Pinned: the single element type.
	Elem *TypeSig

	// Array: element type plus bound/lower-bound lists (ECMA-335 II.23.2.13).
	ArrayElem        *TypeSig
	ArrayRank        uint32
	ArraySizes       []uint32
	ArrayLowerBounds []int32

	// GenericInst: the generic type being instantiated (CLASS or VALUETYPE)
	// plus its type arguments.
	GenericTypeTag ElementType
	GenericType    Token
	GenericArgs    []*TypeSig

	// FnPtr: the full method signature of the function pointer.
	FnPtrSig *MethodSig

	// CModReqd / CModOpt: the modifier's TypeDefOrRef token, then the
	// modified type.
	ModifierToken Token
	Modified      *TypeSig
}

// MethodSig is a method signature, ECMA-335 II.23.2.1-3. Which fields are
// meaningful depends on CallingConvention. Property signatures decode into
// PropertySig and local-variable signatures into a []*TypeSig.
type MethodSig struct {
	CallingConvention byte // low nibble kind (SigDefault..SigVarArg) or SigField/SigProperty/SigLocalVar
	HasThis           bool
	ExplicitThis      bool
	Generic           bool
	GenericParamCount uint32

	RetType *TypeSig // nil for field/local-var/property-without-return signatures

	Params     []*TypeSig
	VarArgs    []*TypeSig // present only when a 0x41 sentinel was seen
	HasVarArgs bool

	// Locals is not set by any decoder in this file; DecodeLocalVarSignature
	// returns a local-variable signature's types as a slice instead.
	Locals []*TypeSig
}

// --- Type signature decode -------------------------------------------------

func decodeTypeSig(c *Cursor, ti *TableInfo, depth int) (*TypeSig, error) {
	if depth > signatureDepthLimit {
		return nil, fmt.Errorf("%w: signature nesting exceeded %d", ErrRecursionLimit, signatureDepthLimit)
	}
	b, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	tag := ElementType(b)

	switch tag {
	case ElementTypeVoid, ElementTypeBoolean, ElementTypeChar,
		ElementTypeI1, ElementTypeU1, ElementTypeI2, ElementTypeU2,
		ElementTypeI4, ElementTypeU4, ElementTypeI8, ElementTypeU8,
		ElementTypeR4, ElementTypeR8, ElementTypeString, ElementTypeI, ElementTypeU,
		ElementTypeObject, ElementTypeTypedByRef:
		return &TypeSig{Tag: tag}, nil

	case ElementTypePtr, ElementTypeByRef, ElementTypeSZArray, ElementTypePinned:
		elem, err := decodeTypeSig(c, ti, depth+1)
		if err != nil {
			return nil, err
		}
		return &TypeSig{Tag: tag, Elem: elem}, nil

	case ElementTypeValueType, ElementTypeClass:
		tok, err := decodeTypeDefOrRefCompressed(c)
		if err != nil {
			return nil, err
		}
		return &TypeSig{Tag: tag, TypeToken: tok}, nil

	case ElementTypeVar, ElementTypeMVar:
		idx, err := c.ReadCompressedUint()
		if err != nil {
			return nil, err
		}
		return &TypeSig{Tag: tag, GenericIndex: idx}, nil

	case ElementTypeArray:
		return decodeArraySig(c, ti, depth)

	case ElementTypeGenericInst:
		return decodeGenericInstSig(c, ti, depth)

	case ElementTypeFnPtr:
		sig, err := decodeMethodSig(c, ti, depth+1)
		if err != nil {
			return nil, err
		}
		return &TypeSig{Tag: tag, FnPtrSig: sig}, nil

	case ElementTypeCModReqd, ElementTypeCModOpt:
		modTok, err := decodeTypeDefOrRefCompressed(c)
		if err != nil {
			return nil, err
		}
		modified, err := decodeTypeSig(c, ti, depth+1)
		if err != nil {
			return nil, err
		}
		return &TypeSig{Tag: tag, ModifierToken: modTok, Modified: modified}, nil

	default:
		return nil, fmt.Errorf("%w: unexpected element type 0x%02X", ErrMalformed, b)
	}
}

// decodeArraySig decodes ECMA-335 II.23.2.13: type rank boundCount bound*
// loBoundCount loBound*.
func decodeArraySig(c *Cursor, ti *TableInfo, depth int) (*TypeSig, error) {
	elem, err := decodeTypeSig(c, ti, depth+1)
	if err != nil {
		return nil, err
	}
	rank, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	numSizes, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	sizes := make([]uint32, numSizes)
	for i := range sizes {
		if sizes[i], err = c.ReadCompressedUint(); err != nil {
			return nil, err
		}
	}
	numLoBounds, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	loBounds := make([]int32, numLoBounds)
	for i := range loBounds {
		if loBounds[i], err = c.ReadCompressedInt(); err != nil {
			return nil, err
		}
	}
	return &TypeSig{
		Tag: ElementTypeArray, ArrayElem: elem, ArrayRank: rank,
		ArraySizes: sizes, ArrayLowerBounds: loBounds,
	}, nil
}

func decodeGenericInstSig(c *Cursor, ti *TableInfo, depth int) (*TypeSig, error) {
	b, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	genTag := ElementType(b)
	if genTag != ElementTypeClass && genTag != ElementTypeValueType {
		return nil, fmt.Errorf("%w: GENERICINST must be preceded by CLASS or VALUETYPE, got 0x%02X", ErrMalformed, b)
	}
	genType, err := decodeTypeDefOrRefCompressed(c)
	if err != nil {
		return nil, err
	}
	argCount, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	args := make([]*TypeSig, argCount)
	for i := range args {
		if args[i], err = decodeTypeSig(c, ti, depth+1); err != nil {
			return nil, err
		}
	}
	return &TypeSig{
		Tag: ElementTypeGenericInst, GenericTypeTag: genTag, GenericType: genType, GenericArgs: args,
	}, nil
}

// decodeTypeDefOrRefCompressed decodes ECMA-335 II.23.2.8: a TypeDefOrRef
// token compressed into the low 2 bits as a tag (TypeDef=0, TypeRef=1,
// TypeSpec=2) and the row id in the remaining bits, itself compressed-uint
// encoded as a whole.
func decodeTypeDefOrRefCompressed(c *Cursor) (Token, error) {
	v, err := c.ReadCompressedUint()
	if err != nil {
		return 0, err
	}
	tag := v & 0x3
	rid := v >> 2
	var tableID int
	switch tag {
	case 0:
		tableID = TypeDef
	case 1:
		tableID = TypeRef
	case 2:
		tableID = TypeSpec
	default:
		return 0, fmt.Errorf("%w: invalid TypeDefOrRef compressed tag %d", ErrMalformed, tag)
	}
	return NewToken(tableID, rid), nil
}

// encodeTypeDefOrRefCompressed is the write-side counterpart of
// decodeTypeDefOrRefCompressed.
func encodeTypeDefOrRefCompressed(c *Cursor, tok Token) error {
	var tag uint32
	switch tok.Table() {
	case TypeDef:
		tag = 0
	case TypeRef:
		tag = 1
	case TypeSpec:
		tag = 2
	default:
		return fmt.Errorf("%w: token %s is not TypeDef/TypeRef/TypeSpec", ErrInvalidModification, tok)
	}
	return c.WriteCompressedUint(tok.RID()<<2 | tag)
}

// --- Type signature encode --------------------------------------------------

func encodeTypeSig(c *Cursor, t *TypeSig) error {
	if t == nil {
		return fmt.Errorf("%w: nil type signature", ErrInvalidModification)
	}
	c.WriteU8(byte(t.Tag))

	switch t.Tag {
	case ElementTypeVoid, ElementTypeBoolean, ElementTypeChar,
		ElementTypeI1, ElementTypeU1, ElementTypeI2, ElementTypeU2,
		ElementTypeI4, ElementTypeU4, ElementTypeI8, ElementTypeU8,
		ElementTypeR4, ElementTypeR8, ElementTypeString, ElementTypeI, ElementTypeU,
		ElementTypeObject, ElementTypeTypedByRef:
		return nil

	case ElementTypePtr, ElementTypeByRef, ElementTypeSZArray, ElementTypePinned:
		return encodeTypeSig(c, t.Elem)

	case ElementTypeValueType, ElementTypeClass:
		return encodeTypeDefOrRefCompressed(c, t.TypeToken)

	case ElementTypeVar, ElementTypeMVar:
		return c.WriteCompressedUint(t.GenericIndex)

	case ElementTypeArray:
		if err := encodeTypeSig(c, t.ArrayElem); err != nil {
			return err
		}
		if err := c.WriteCompressedUint(t.ArrayRank); err != nil {
			return err
		}
		if err := c.WriteCompressedUint(uint32(len(t.ArraySizes))); err != nil {
			return err
		}
		for _, s := range t.ArraySizes {
			if err := c.WriteCompressedUint(s); err != nil {
				return err
			}
		}
		if err := c.WriteCompressedUint(uint32(len(t.ArrayLowerBounds))); err != nil {
			return err
		}
		for _, lb := range t.ArrayLowerBounds {
			if err := c.WriteCompressedInt(lb); err != nil {
				return err
			}
		}
		return nil

	case ElementTypeGenericInst:
		c.WriteU8(byte(t.GenericTypeTag))
		if err := encodeTypeDefOrRefCompressed(c, t.GenericType); err != nil {
			return err
		}
		if err := c.WriteCompressedUint(uint32(len(t.GenericArgs))); err != nil {
			return err
		}
		for _, a := range t.GenericArgs {
			if err := encodeTypeSig(c, a); err != nil {
				return err
			}
		}
		return nil

	case ElementTypeFnPtr:
		return encodeMethodSig(c, t.FnPtrSig)

	case ElementTypeCModReqd, ElementTypeCModOpt:
		if err := encodeTypeDefOrRefCompressed(c, t.ModifierToken); err != nil {
			return err
		}
		return encodeTypeSig(c, t.Modified)

	default:
		return fmt.Errorf("%w: cannot encode element type 0x%02X", ErrInvalidModification, t.Tag)
	}
}

// --- Method / field / property / local-var signatures -----------------------

// decodeMethodSig decodes a method, property, or method-spec-free signature
// sharing the cc-byte + (generic-count) + param-count + ret-type +
// params[+sentinel+varargs] shape of ECMA-335 II.23.2.1-3.
func decodeMethodSig(c *Cursor, ti *TableInfo, depth int) (*MethodSig, error) {
	ccByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	sig := &MethodSig{
		CallingConvention: ccByte & SigKindMask,
		HasThis:           ccByte&SigHasThis != 0,
		ExplicitThis:      ccByte&SigExplicitThis != 0,
		Generic:           ccByte&SigGeneric != 0,
	}
	if sig.Generic {
		if sig.GenericParamCount, err = c.ReadCompressedUint(); err != nil {
			return nil, err
		}
	}
	paramCount, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if sig.RetType, err = decodeTypeSig(c, ti, depth+1); err != nil {
		return nil, err
	}
	for i := uint32(0); i < paramCount; i++ {
		if c.Pos < uint32(len(c.Data)) && c.Data[c.Pos] == byte(ElementTypeSentinel) {
			c.Pos++
			sig.HasVarArgs = true
			continue
		}
		p, err := decodeTypeSig(c, ti, depth+1)
		if err != nil {
			return nil, err
		}
		if sig.HasVarArgs {
			sig.VarArgs = append(sig.VarArgs, p)
		} else {
			sig.Params = append(sig.Params, p)
		}
	}
	return sig, nil
}

func encodeMethodSig(c *Cursor, sig *MethodSig) error {
	if sig == nil {
		return fmt.Errorf("%w: nil method signature", ErrInvalidModification)
	}
	ccByte := sig.CallingConvention
	if sig.HasThis {
		ccByte |= SigHasThis
	}
	if sig.ExplicitThis {
		ccByte |= SigExplicitThis
	}
	if sig.Generic {
		ccByte |= SigGeneric
	}
	c.WriteU8(ccByte)
	if sig.Generic {
		if err := c.WriteCompressedUint(sig.GenericParamCount); err != nil {
			return err
		}
	}
	total := uint32(len(sig.Params))
	if sig.HasVarArgs {
		total += 1 + uint32(len(sig.VarArgs))
	}
	if err := c.WriteCompressedUint(total); err != nil {
		return err
	}
	if err := encodeTypeSig(c, sig.RetType); err != nil {
		return err
	}
	for _, p := range sig.Params {
		if err := encodeTypeSig(c, p); err != nil {
			return err
		}
	}
	if sig.HasVarArgs {
		c.WriteU8(byte(ElementTypeSentinel))
		for _, p := range sig.VarArgs {
			if err := encodeTypeSig(c, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeMethodSignature decodes a MethodDef/MemberRef method signature blob.
func DecodeMethodSignature(blob []byte, ti *TableInfo) (*MethodSig, error) {
	c := NewCursor(blob)
	return decodeMethodSig(c, ti, 0)
}

// EncodeMethodSignature encodes sig into a new blob.
func EncodeMethodSignature(sig *MethodSig) ([]byte, error) {
	c := NewCursor(nil)
	if err := encodeMethodSig(c, sig); err != nil {
		return nil, err
	}
	return c.Data, nil
}

// DecodeFieldSignature decodes ECMA-335 II.23.2.4: FIELD cc-byte then one
// type.
func DecodeFieldSignature(blob []byte, ti *TableInfo) (*TypeSig, error) {
	c := NewCursor(blob)
	ccByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if ccByte != SigField {
		return nil, fmt.Errorf("%w: field signature must start with FIELD (0x06), got 0x%02X", ErrMalformed, ccByte)
	}
	return decodeTypeSig(c, ti, 0)
}

// EncodeFieldSignature encodes t as a field signature blob.
func EncodeFieldSignature(t *TypeSig) ([]byte, error) {
	c := NewCursor(nil)
	c.WriteU8(SigField)
	if err := encodeTypeSig(c, t); err != nil {
		return nil, err
	}
	return c.Data, nil
}

// PropertySig is a property signature, ECMA-335 II.23.2.5.
type PropertySig struct {
	HasThis bool
	Type    *TypeSig
	Params  []*TypeSig
}

// DecodePropertySignature decodes a Property.Type blob.
func DecodePropertySignature(blob []byte, ti *TableInfo) (*PropertySig, error) {
	c := NewCursor(blob)
	ccByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if ccByte&SigKindMask != SigProperty {
		return nil, fmt.Errorf("%w: property signature must start with PROPERTY (0x08), got 0x%02X", ErrMalformed, ccByte)
	}
	sig := &PropertySig{HasThis: ccByte&SigHasThis != 0}
	paramCount, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if sig.Type, err = decodeTypeSig(c, ti, 0); err != nil {
		return nil, err
	}
	for i := uint32(0); i < paramCount; i++ {
		p, err := decodeTypeSig(c, ti, 1)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

// EncodePropertySignature encodes sig into a new blob.
func EncodePropertySignature(sig *PropertySig) ([]byte, error) {
	c := NewCursor(nil)
	ccByte := SigProperty
	if sig.HasThis {
		ccByte |= SigHasThis
	}
	c.WriteU8(ccByte)
	if err := c.WriteCompressedUint(uint32(len(sig.Params))); err != nil {
		return nil, err
	}
	if err := encodeTypeSig(c, sig.Type); err != nil {
		return nil, err
	}
	for _, p := range sig.Params {
		if err := encodeTypeSig(c, p); err != nil {
			return nil, err
		}
	}
	return c.Data, nil
}

// DecodeLocalVarSignature decodes a StandAloneSig blob used as a method
// body's local-variable signature, ECMA-335 II.23.2.6.
func DecodeLocalVarSignature(blob []byte, ti *TableInfo) ([]*TypeSig, error) {
	c := NewCursor(blob)
	ccByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if ccByte != SigLocalVar {
		return nil, fmt.Errorf("%w: local-var signature must start with LOCAL_SIG (0x07), got 0x%02X", ErrMalformed, ccByte)
	}
	count, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	locals := make([]*TypeSig, count)
	for i := range locals {
		if locals[i], err = decodeTypeSig(c, ti, 0); err != nil {
			return nil, err
		}
	}
	return locals, nil
}

// EncodeLocalVarSignature encodes locals into a new blob.
func EncodeLocalVarSignature(locals []*TypeSig) ([]byte, error) {
	c := NewCursor(nil)
	c.WriteU8(SigLocalVar)
	if err := c.WriteCompressedUint(uint32(len(locals))); err != nil {
		return nil, err
	}
	for _, l := range locals {
		if err := encodeTypeSig(c, l); err != nil {
			return nil, err
		}
	}
	return c.Data, nil
}

// DecodeMethodSpecSignature decodes a MethodSpec.Instantiation blob, ECMA-335
// II.23.2.15: GENERICINST cc-byte, count, then count types.
func DecodeMethodSpecSignature(blob []byte, ti *TableInfo) ([]*TypeSig, error) {
	c := NewCursor(blob)
	ccByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if ccByte != SigGenericInst {
		return nil, fmt.Errorf("%w: methodspec signature must start with GENERICINST (0x0a), got 0x%02X", ErrMalformed, ccByte)
	}
	count, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	args := make([]*TypeSig, count)
	for i := range args {
		if args[i], err = decodeTypeSig(c, ti, 0); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// EncodeMethodSpecSignature encodes args into a new MethodSpec instantiation
// blob.
func EncodeMethodSpecSignature(args []*TypeSig) ([]byte, error) {
	c := NewCursor(nil)
	c.WriteU8(SigGenericInst)
	if err := c.WriteCompressedUint(uint32(len(args))); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := encodeTypeSig(c, a); err != nil {
			return nil, err
		}
	}
	return c.Data, nil
}
