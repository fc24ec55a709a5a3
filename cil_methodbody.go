// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// Method body header format flags, ECMA-335 II.25.4.
const (
	methodBodyTinyFormat uint8 = 0x2
	methodBodyFatFormat  uint8 = 0x3
	methodBodyFatFlags   uint8 = 0x3 // low 2 bits of the fat header's first word select the format
	methodBodyMoreSects  uint16 = 0x8
	methodBodyInitLocals uint16 = 0x10
	fatHeaderSizeDwords  uint8  = 3 // always 3, per ECMA-335 II.25.4.3
)

// MethodBody is the fully decoded form of a MethodDef.RVA-pointed method
// body, ECMA-335 II.25.4.
type MethodBody struct {
	Tiny             bool
	MaxStack         uint16
	LocalVarSigToken Token // 0 if the method declares no locals
	InitLocals       bool
	Code             []byte
	ExceptionClauses []ExceptionClause
}

// DecodeMethodBody decodes one method body starting at the cursor.
func DecodeMethodBody(c *Cursor) (*MethodBody, error) {
	headerByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}

	switch headerByte & 0x3 {
	case methodBodyTinyFormat:
		codeSize := uint32(headerByte >> 2)
		code, err := c.ReadBytes(codeSize)
		if err != nil {
			return nil, err
		}
		return &MethodBody{Tiny: true, MaxStack: 8, Code: code}, nil

	case methodBodyFatFormat:
		c.Pos--
		return decodeFatMethodBody(c)

	default:
		return nil, fmt.Errorf("%w: method body header byte 0x%02X selects neither tiny nor fat format", ErrMalformed, headerByte)
	}
}

func decodeFatMethodBody(c *Cursor) (*MethodBody, error) {
	flagsAndSize, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	headerSizeDwords := flagsAndSize >> 12
	flags := flagsAndSize & 0x0FFF
	if flags&0x3 != uint16(methodBodyFatFormat) {
		return nil, fmt.Errorf("%w: fat method body flags 0x%03X do not select fat format", ErrMalformed, flags)
	}
	if headerSizeDwords != uint16(fatHeaderSizeDwords) {
		return nil, fmt.Errorf("%w: fat method body header size %d dwords, expected 3", ErrMalformed, headerSizeDwords)
	}

	maxStack, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	codeSize, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	localVarToken, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	code, err := c.ReadBytes(codeSize)
	if err != nil {
		return nil, err
	}

	body := &MethodBody{
		Tiny:             false,
		MaxStack:         maxStack,
		LocalVarSigToken: Token(localVarToken),
		InitLocals:       flags&methodBodyInitLocals != 0,
		Code:             code,
	}

	if flags&methodBodyMoreSects != 0 {
		alignTo4(c)
		clauses, err := decodeExceptionSections(c)
		if err != nil {
			return nil, err
		}
		body.ExceptionClauses = clauses
	}
	return body, nil
}

// alignTo4 advances the cursor to the next 4-byte boundary, used before a
// method body's exception-handler sections (ECMA-335 II.25.4.5).
func alignTo4(c *Cursor) {
	for c.Pos%4 != 0 {
		c.Pos++
	}
}

// EncodeMethodBody re-encodes body. Per spec invariants: a tiny header is
// only used when code length <= 63, no locals, no exception handlers, and
// max-stack == 8; any violation forces the fat format regardless of the
// Tiny field the caller set.
func EncodeMethodBody(body *MethodBody) ([]byte, error) {
	canBeTiny := len(body.Code) <= 63 &&
		body.LocalVarSigToken == 0 &&
		len(body.ExceptionClauses) == 0 &&
		body.MaxStack == 8

	if canBeTiny {
		c := NewCursor(nil)
		c.WriteU8(uint8(len(body.Code))<<2 | methodBodyTinyFormat)
		c.WriteBytes(body.Code)
		return c.Data, nil
	}

	c := NewCursor(nil)
	flags := uint16(methodBodyFatFormat) | uint16(fatHeaderSizeDwords)<<12
	if body.InitLocals {
		flags |= methodBodyInitLocals
	}
	if len(body.ExceptionClauses) > 0 {
		flags |= methodBodyMoreSects
	}
	c.WriteU16(flags)
	c.WriteU16(body.MaxStack)
	c.WriteU32(uint32(len(body.Code)))
	c.WriteU32(uint32(body.LocalVarSigToken))
	c.WriteBytes(body.Code)

	if len(body.ExceptionClauses) > 0 {
		alignWrite4(c)
		if err := encodeExceptionSections(c, body.ExceptionClauses); err != nil {
			return nil, err
		}
	}
	return c.Data, nil
}

func alignWrite4(c *Cursor) {
	for len(c.Data)%4 != 0 {
		c.WriteU8(0)
	}
}
