// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"
	"math"
)

// customAttrProlog is the fixed 2-byte prolog opening every
// CustomAttribute.Value blob, ECMA-335 II.23.3.
const customAttrProlog uint16 = 0x0001

// ElemValueKind distinguishes the handful of value shapes a fixed or named
// custom-attribute argument can take, beyond the primitive element types
// already covered by ElementType.
type ElemValueKind int

const (
	ElemValueSimple ElemValueKind = iota // bool/char/integer/float value
	ElemValueString                      // SerString: length-prefixed UTF-8, 0xFF = null
	ElemValueType                        // "type" (ElementTypeTypeCustom): a serialized type name string
	ElemValueEnum                        // enum underlying value plus its type name
	ElemValueArray                       // SZARRAY of ElemValue
	ElemValueBoxed                       // boxed value: a discriminator byte then the value
)

// ElemValue is one decoded fixed or named custom-attribute argument value.
type ElemValue struct {
	Kind ElemValueKind

	// Simple: the element type tag and its raw value, widened to uint64/
	// int64/float64 by Tag.
	Tag     ElementType
	UInt    uint64
	Int     int64
	Float   float64
	Bool    bool

	// String / Type / Enum: the string payload. IsNull distinguishes the
	// 0xFF "null string" marker from an empty string.
	Str    string
	IsNull bool

	// Enum: the enum's type name (SerString) precedes its underlying value,
	// stored in UInt/Int per Tag.
	EnumTypeName string

	// Array: element values, Tag gives the element type.
	Elems []ElemValue
}

// NamedArg is one CustomAttribute named argument: FIELD (0x53) or PROPERTY
// (0x54), a type descriptor, a name, and a value.
type NamedArg struct {
	IsProperty bool
	ValueType  ElementType // the named arg's declared element type tag
	Name       string
	Value      ElemValue
}

// CustomAttributeValue is the fully decoded form of a
// CustomAttribute.Value blob, ECMA-335 II.23.3.
type CustomAttributeValue struct {
	FixedArgs []ElemValue
	NamedArgs []NamedArg
}

// DecodeCustomAttributeValue decodes blob against ctor, the constructor's
// method signature (used to learn each fixed argument's static type, since
// the blob itself carries no per-fixed-arg type tag for primitive types).
func DecodeCustomAttributeValue(blob []byte, ctor *MethodSig) (*CustomAttributeValue, error) {
	if len(blob) == 0 {
		// An attribute with a parameterless constructor and no named args
		// is legally represented by an empty blob in some producers.
		return &CustomAttributeValue{}, nil
	}
	c := NewCursor(blob)
	prolog, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	if prolog != customAttrProlog {
		return nil, fmt.Errorf("%w: custom attribute prolog 0x%04X != 0x0001", ErrMalformed, prolog)
	}

	val := &CustomAttributeValue{}
	for _, p := range ctor.Params {
		arg, err := decodeElemValueForType(c, p)
		if err != nil {
			return nil, err
		}
		val.FixedArgs = append(val.FixedArgs, arg)
	}

	numNamed, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < numNamed; i++ {
		kindByte, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		var na NamedArg
		switch kindByte {
		case 0x53:
			na.IsProperty = false
		case 0x54:
			na.IsProperty = true
		default:
			return nil, fmt.Errorf("%w: named arg kind byte 0x%02X is neither FIELD (0x53) nor PROPERTY (0x54)", ErrMalformed, kindByte)
		}
		typeTag, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		na.ValueType = ElementType(typeTag)
		name, err := decodeSerString(c)
		if err != nil {
			return nil, err
		}
		na.Name = name
		value, err := decodeElemValueForTag(c, na.ValueType)
		if err != nil {
			return nil, err
		}
		na.Value = value
		val.NamedArgs = append(val.NamedArgs, na)
	}
	return val, nil
}

// decodeElemValueForType decodes one fixed argument whose static type is t.
func decodeElemValueForType(c *Cursor, t *TypeSig) (ElemValue, error) {
	if t.Tag == ElementTypeSZArray {
		return decodeArrayElemValue(c, t.Elem.Tag)
	}
	return decodeElemValueForTag(c, t.Tag)
}

func decodeElemValueForTag(c *Cursor, tag ElementType) (ElemValue, error) {
	switch tag {
	case ElementTypeBoolean:
		v, err := c.ReadU8()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Bool: v != 0}, err
	case ElementTypeChar, ElementTypeU2:
		v, err := c.ReadU16()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, UInt: uint64(v)}, err
	case ElementTypeI1:
		v, err := c.ReadU8()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Int: int64(int8(v))}, err
	case ElementTypeU1:
		v, err := c.ReadU8()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, UInt: uint64(v)}, err
	case ElementTypeI2:
		v, err := c.ReadU16()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Int: int64(int16(v))}, err
	case ElementTypeI4:
		v, err := c.ReadU32()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Int: int64(int32(v))}, err
	case ElementTypeU4:
		v, err := c.ReadU32()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, UInt: uint64(v)}, err
	case ElementTypeI8:
		v, err := c.ReadU64()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Int: int64(v)}, err
	case ElementTypeU8:
		v, err := c.ReadU64()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, UInt: v}, err
	case ElementTypeR4:
		v, err := c.ReadU32()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Float: float64(math.Float32frombits(v))}, err
	case ElementTypeR8:
		v, err := c.ReadU64()
		return ElemValue{Kind: ElemValueSimple, Tag: tag, Float: math.Float64frombits(v)}, err
	case ElementTypeString, ElementTypeTypeCustom:
		isNull := int(c.Pos) < len(c.Data) && c.Data[c.Pos] == 0xFF
		s, err := decodeSerString(c)
		kind := ElemValueString
		if tag == ElementTypeTypeCustom {
			kind = ElemValueType
		}
		return ElemValue{Kind: kind, Tag: tag, Str: s, IsNull: isNull && err == nil}, err
	case ElementTypeEnumCustom:
		typeName, err := decodeSerString(c)
		if err != nil {
			return ElemValue{}, err
		}
		v, err := c.ReadU32()
		return ElemValue{Kind: ElemValueEnum, Tag: tag, EnumTypeName: typeName, UInt: uint64(v)}, err
	case ElementTypeSZArray:
		// A named arg declared as SZARRAY carries its element tag next.
		elemTag, err := c.ReadU8()
		if err != nil {
			return ElemValue{}, err
		}
		return decodeArrayElemValue(c, ElementType(elemTag))
	case ElementTypeBoxedObject:
		inner, err := c.ReadU8()
		if err != nil {
			return ElemValue{}, err
		}
		v, err := decodeElemValueForTag(c, ElementType(inner))
		v.Kind = ElemValueBoxed
		return v, err
	default:
		return ElemValue{}, fmt.Errorf("%w: unsupported custom attribute value element type 0x%02X", ErrMalformed, tag)
	}
}

func decodeArrayElemValue(c *Cursor, elemTag ElementType) (ElemValue, error) {
	count, err := c.ReadU32()
	if err != nil {
		return ElemValue{}, err
	}
	if count == 0xFFFFFFFF {
		return ElemValue{Kind: ElemValueArray, Tag: elemTag, IsNull: true}, nil
	}
	elems := make([]ElemValue, count)
	for i := range elems {
		elems[i], err = decodeElemValueForTag(c, elemTag)
		if err != nil {
			return ElemValue{}, err
		}
	}
	return ElemValue{Kind: ElemValueArray, Tag: elemTag, Elems: elems}, nil
}

// decodeSerString decodes ECMA-335 II.23.3's SerString: a compressed length
// followed by UTF-8 bytes, with the single reserved byte 0xFF meaning null
// (not "length 0xFF").
func decodeSerString(c *Cursor) (string, error) {
	b, err := c.ReadU8()
	if err != nil {
		return "", err
	}
	if b == 0xFF {
		return "", nil
	}
	c.Pos--
	bytes, err := c.ReadLengthPrefixedBytes()
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func encodeSerString(c *Cursor, s string, isNull bool) error {
	if isNull {
		c.WriteU8(0xFF)
		return nil
	}
	return c.WriteLengthPrefixedBytes([]byte(s))
}

// EncodeCustomAttributeValue is the write-side counterpart of
// DecodeCustomAttributeValue.
func EncodeCustomAttributeValue(val *CustomAttributeValue) ([]byte, error) {
	c := NewCursor(nil)
	c.WriteU16(customAttrProlog)
	for _, a := range val.FixedArgs {
		if err := encodeElemValue(c, a); err != nil {
			return nil, err
		}
	}
	c.WriteU16(uint16(len(val.NamedArgs)))
	for _, na := range val.NamedArgs {
		if na.IsProperty {
			c.WriteU8(0x54)
		} else {
			c.WriteU8(0x53)
		}
		c.WriteU8(byte(na.ValueType))
		if err := encodeSerString(c, na.Name, false); err != nil {
			return nil, err
		}
		if na.ValueType == ElementTypeSZArray {
			c.WriteU8(byte(na.Value.Tag))
		}
		if err := encodeElemValue(c, na.Value); err != nil {
			return nil, err
		}
	}
	return c.Data, nil
}

func encodeElemValue(c *Cursor, v ElemValue) error {
	switch v.Kind {
	case ElemValueSimple:
		switch v.Tag {
		case ElementTypeBoolean:
			if v.Bool {
				c.WriteU8(1)
			} else {
				c.WriteU8(0)
			}
		case ElementTypeChar, ElementTypeU2:
			c.WriteU16(uint16(v.UInt))
		case ElementTypeI1:
			c.WriteU8(uint8(v.Int))
		case ElementTypeU1:
			c.WriteU8(uint8(v.UInt))
		case ElementTypeI2:
			c.WriteU16(uint16(v.Int))
		case ElementTypeI4:
			c.WriteU32(uint32(v.Int))
		case ElementTypeU4:
			c.WriteU32(uint32(v.UInt))
		case ElementTypeI8:
			c.WriteU64(uint64(v.Int))
		case ElementTypeU8:
			c.WriteU64(v.UInt)
		case ElementTypeR4:
			c.WriteU32(math.Float32bits(float32(v.Float)))
		case ElementTypeR8:
			c.WriteU64(math.Float64bits(v.Float))
		default:
			return fmt.Errorf("%w: unsupported simple element type 0x%02X", ErrInvalidModification, v.Tag)
		}
		return nil
	case ElemValueString, ElemValueType:
		return encodeSerString(c, v.Str, v.IsNull)
	case ElemValueEnum:
		if err := encodeSerString(c, v.EnumTypeName, false); err != nil {
			return err
		}
		c.WriteU32(uint32(v.UInt))
		return nil
	case ElemValueArray:
		if v.IsNull {
			c.WriteU32(0xFFFFFFFF)
			return nil
		}
		c.WriteU32(uint32(len(v.Elems)))
		for _, e := range v.Elems {
			if err := encodeElemValue(c, e); err != nil {
				return err
			}
		}
		return nil
	case ElemValueBoxed:
		c.WriteU8(byte(v.Tag))
		v.Kind = ElemValueSimple
		return encodeElemValue(c, v)
	default:
		return fmt.Errorf("%w: unsupported element value kind %d", ErrInvalidModification, v.Kind)
	}
}
