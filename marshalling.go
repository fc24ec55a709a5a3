// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// NativeType is the ECMA-335 II.23.2.9 native-type tag opening a marshalling
// descriptor (FieldMarshal.NativeType blob), extended with the CoreCLR/WinRT
// values up to 0x30 real corpus tools emit.
type NativeType byte

// Native-type tags, ECMA-335 II.23.2.9 plus documented CoreCLR/WinRT
// extensions through 0x30.
const (
	NativeTypeEnd              NativeType = 0x00
	NativeTypeVoid             NativeType = 0x01
	NativeTypeBoolean          NativeType = 0x02
	NativeTypeI1               NativeType = 0x03
	NativeTypeU1               NativeType = 0x04
	NativeTypeI2               NativeType = 0x05
	NativeTypeU2               NativeType = 0x06
	NativeTypeI4               NativeType = 0x07
	NativeTypeU4               NativeType = 0x08
	NativeTypeI8               NativeType = 0x09
	NativeTypeU8               NativeType = 0x0a
	NativeTypeR4               NativeType = 0x0b
	NativeTypeR8               NativeType = 0x0c
	NativeTypeSysChar          NativeType = 0x0d
	NativeTypeVariant          NativeType = 0x0e
	NativeTypeCurrency         NativeType = 0x0f
	NativeTypePtr              NativeType = 0x10
	NativeTypeDecimal          NativeType = 0x11
	NativeTypeDate             NativeType = 0x12
	NativeTypeBStr             NativeType = 0x13
	NativeTypeLPStr            NativeType = 0x14
	NativeTypeLPWStr           NativeType = 0x15
	NativeTypeLPTStr           NativeType = 0x16
	NativeTypeFixedSysString   NativeType = 0x17
	NativeTypeObjectRef        NativeType = 0x18
	NativeTypeIUnknown         NativeType = 0x19
	NativeTypeIDispatch        NativeType = 0x1a
	NativeTypeStruct           NativeType = 0x1b
	NativeTypeInterface        NativeType = 0x1c
	NativeTypeSafeArray        NativeType = 0x1d
	NativeTypeFixedArray       NativeType = 0x1e
	NativeTypeInt              NativeType = 0x1f
	NativeTypeUInt             NativeType = 0x20
	NativeTypeNestedStruct     NativeType = 0x21
	NativeTypeByValStr         NativeType = 0x22
	NativeTypeAnsiBStr         NativeType = 0x23
	NativeTypeTBStr            NativeType = 0x24
	NativeTypeVariantBool      NativeType = 0x25
	NativeTypeFunc             NativeType = 0x26
	NativeTypeASAny            NativeType = 0x28
	NativeTypeArray            NativeType = 0x2a
	NativeTypeLPStruct         NativeType = 0x2b
	NativeTypeCustomMarshaler  NativeType = 0x2c
	NativeTypeError            NativeType = 0x2d
	NativeTypeIInspectable     NativeType = 0x2e
	NativeTypeHString          NativeType = 0x2f
	NativeTypeLPUTF8Str        NativeType = 0x30
	nativeTypeMax              NativeType = 0x30
)

// MarshalDesc is the decoded form of a FieldMarshal.NativeType blob, ECMA-335
// II.23.2.9. Only the fields relevant to Tag are populated.
type MarshalDesc struct {
	Tag NativeType

	// FixedArray: element count and, optionally, element native type.
	FixedArrayCount     uint32
	FixedArrayHasType   bool
	FixedArrayElemType  NativeType

	// Array (SAFEARRAY-free "ARRAY"): element type, optional param index for
	// the element count, optional fixed element count, and a flag
	// distinguishing "no count given" from "count given as zero".
	ArrayElemType   NativeType
	ArrayHasElem    bool
	ArrayParamNum   uint32
	ArrayHasParam   bool
	ArrayElemCount  uint32
	ArrayHasCount   bool

	// SafeArray: the VARTYPE element type and, for user-defined element
	// types, the element type name.
	SafeArrayElemType     uint32
	SafeArrayHasElem      bool
	SafeArrayUserTypeName string
	SafeArrayHasUserType  bool

	// CustomMarshaler: GUID string (usually empty), unmanaged type name,
	// managed type name, and an optional cookie passed to the marshaler.
	CustomMarshalerGUID       string
	CustomMarshalerUnmanaged  string
	CustomMarshalerManaged    string
	CustomMarshalerCookie     string

	// FixedSysString / ByValStr: fixed character count.
	FixedStringLength uint32
}

// DecodeMarshalDescriptor decodes blob per ECMA-335 II.23.2.9. Per the
// resolution of the native-type-byte-range open question, any leading byte
// above nativeTypeMax (0x30) is rejected as malformed — every documented
// CoreCLR/WinRT extension already fits within that range.
func DecodeMarshalDescriptor(blob []byte) (*MarshalDesc, error) {
	c := NewCursor(blob)
	b, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	tag := NativeType(b)
	if tag > nativeTypeMax {
		return nil, fmt.Errorf("%w: native type byte 0x%02X exceeds documented range", ErrMalformed, b)
	}
	desc := &MarshalDesc{Tag: tag}

	switch tag {
	case NativeTypeFixedSysString, NativeTypeByValStr:
		if c.Pos < uint32(len(c.Data)) {
			if desc.FixedStringLength, err = c.ReadCompressedUint(); err != nil {
				return nil, err
			}
		}

	case NativeTypeFixedArray:
		if c.Pos < uint32(len(c.Data)) {
			if desc.FixedArrayCount, err = c.ReadCompressedUint(); err != nil {
				return nil, err
			}
			if c.Pos < uint32(len(c.Data)) {
				et, err := c.ReadU8()
				if err != nil {
					return nil, err
				}
				desc.FixedArrayHasType = true
				desc.FixedArrayElemType = NativeType(et)
			}
		}

	case NativeTypeArray:
		if c.Pos < uint32(len(c.Data)) {
			et, err := c.ReadU8()
			if err != nil {
				return nil, err
			}
			desc.ArrayHasElem = true
			desc.ArrayElemType = NativeType(et)
		}
		if c.Pos < uint32(len(c.Data)) {
			if desc.ArrayParamNum, err = c.ReadCompressedUint(); err != nil {
				return nil, err
			}
			desc.ArrayHasParam = true
		}
		if c.Pos < uint32(len(c.Data)) {
			if desc.ArrayElemCount, err = c.ReadCompressedUint(); err != nil {
				return nil, err
			}
			desc.ArrayHasCount = true
		}

	case NativeTypeSafeArray:
		if c.Pos < uint32(len(c.Data)) {
			if desc.SafeArrayElemType, err = c.ReadCompressedUint(); err != nil {
				return nil, err
			}
			desc.SafeArrayHasElem = true
		}
		if c.Pos < uint32(len(c.Data)) {
			name, err := c.ReadLengthPrefixedBytes()
			if err != nil {
				return nil, err
			}
			desc.SafeArrayUserTypeName = string(name)
			desc.SafeArrayHasUserType = true
		}

	case NativeTypeCustomMarshaler:
		guid, err := c.ReadLengthPrefixedBytes()
		if err != nil {
			return nil, err
		}
		desc.CustomMarshalerGUID = string(guid)
		unmanaged, err := c.ReadLengthPrefixedBytes()
		if err != nil {
			return nil, err
		}
		desc.CustomMarshalerUnmanaged = string(unmanaged)
		managed, err := c.ReadLengthPrefixedBytes()
		if err != nil {
			return nil, err
		}
		desc.CustomMarshalerManaged = string(managed)
		cookie, err := c.ReadLengthPrefixedBytes()
		if err != nil {
			return nil, err
		}
		desc.CustomMarshalerCookie = string(cookie)
	}

	return desc, nil
}

// EncodeMarshalDescriptor is the write-side counterpart of
// DecodeMarshalDescriptor.
func EncodeMarshalDescriptor(desc *MarshalDesc) ([]byte, error) {
	c := NewCursor(nil)
	c.WriteU8(byte(desc.Tag))

	switch desc.Tag {
	case NativeTypeFixedSysString, NativeTypeByValStr:
		if err := c.WriteCompressedUint(desc.FixedStringLength); err != nil {
			return nil, err
		}

	case NativeTypeFixedArray:
		if err := c.WriteCompressedUint(desc.FixedArrayCount); err != nil {
			return nil, err
		}
		if desc.FixedArrayHasType {
			c.WriteU8(byte(desc.FixedArrayElemType))
		}

	case NativeTypeArray:
		if desc.ArrayHasElem {
			c.WriteU8(byte(desc.ArrayElemType))
		}
		if desc.ArrayHasParam {
			if err := c.WriteCompressedUint(desc.ArrayParamNum); err != nil {
				return nil, err
			}
		}
		if desc.ArrayHasCount {
			if err := c.WriteCompressedUint(desc.ArrayElemCount); err != nil {
				return nil, err
			}
		}

	case NativeTypeSafeArray:
		if desc.SafeArrayHasElem {
			if err := c.WriteCompressedUint(desc.SafeArrayElemType); err != nil {
				return nil, err
			}
		}
		if desc.SafeArrayHasUserType {
			if err := c.WriteLengthPrefixedBytes([]byte(desc.SafeArrayUserTypeName)); err != nil {
				return nil, err
			}
		}

	case NativeTypeCustomMarshaler:
		if err := c.WriteLengthPrefixedBytes([]byte(desc.CustomMarshalerGUID)); err != nil {
			return nil, err
		}
		if err := c.WriteLengthPrefixedBytes([]byte(desc.CustomMarshalerUnmanaged)); err != nil {
			return nil, err
		}
		if err := c.WriteLengthPrefixedBytes([]byte(desc.CustomMarshalerManaged)); err != nil {
			return nil, err
		}
		if err := c.WriteLengthPrefixedBytes([]byte(desc.CustomMarshalerCookie)); err != nil {
			return nil, err
		}
	}

	return c.Data, nil
}
