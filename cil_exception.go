// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// ExceptionKind is a method-body exception handler's clause kind, ECMA-335
// II.25.4.6.
type ExceptionKind uint32

const (
	ExceptionTypedCatch ExceptionKind = 0x0
	ExceptionFilter     ExceptionKind = 0x1
	ExceptionFinally    ExceptionKind = 0x2
	ExceptionFault      ExceptionKind = 0x4
)

// Exception section header flags, ECMA-335 II.25.4.5.
const (
	sectEHTable uint8 = 0x1
	sectFatFmt  uint8 = 0x40
	sectMoreSects uint8 = 0x80
)

// ExceptionClause is one decoded exception handler: its kind, the try and
// handler byte regions (offset/length, absolute within the method's code),
// and either a filter offset (ExceptionFilter) or a class token
// (ExceptionTypedCatch).
type ExceptionClause struct {
	Kind         ExceptionKind
	TryOffset    uint32
	TryLength    uint32
	HandlerOffset uint32
	HandlerLength uint32
	FilterOffset uint32 // valid when Kind == ExceptionFilter
	ClassToken   Token  // valid when Kind == ExceptionTypedCatch
}

// decodeExceptionSections decodes every exception-handler data section
// following a fat method body's code (ECMA-335 II.25.4.5): a small header
// selects tiny/fat clause encoding and whether another section follows.
func decodeExceptionSections(c *Cursor) ([]ExceptionClause, error) {
	var all []ExceptionClause
	for {
		kindByte, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		if kindByte&sectEHTable == 0 {
			return nil, fmt.Errorf("%w: exception section header 0x%02X is not an EHTable section", ErrMalformed, kindByte)
		}
		isFat := kindByte&sectFatFmt != 0
		hasMore := kindByte&sectMoreSects != 0

		var clauses []ExceptionClause
		if isFat {
			clauses, err = decodeFatExceptionClauses(c, kindByte)
		} else {
			clauses, err = decodeTinyExceptionClauses(c)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, clauses...)

		if !hasMore {
			break
		}
	}
	return all, nil
}

func decodeTinyExceptionClauses(c *Cursor) ([]ExceptionClause, error) {
	// The section-size byte (dataSize) includes the 4-byte header itself,
	// so (dataSize-4)/12 is the clause count; we already consumed the kind
	// byte, so re-read the remaining 3 header bytes here.
	dataSizeByte, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if _, err := c.ReadU16(); err != nil { // 2 reserved padding bytes
		return nil, err
	}
	count := (uint32(dataSizeByte) - 4) / 12
	clauses := make([]ExceptionClause, count)
	for i := range clauses {
		flags, err := c.ReadU16()
		if err != nil {
			return nil, err
		}
		tryOff, err := c.ReadU16()
		if err != nil {
			return nil, err
		}
		tryLen, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		handlerOff, err := c.ReadU16()
		if err != nil {
			return nil, err
		}
		handlerLen, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		classOrFilter, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		clauses[i] = ExceptionClause{
			Kind: ExceptionKind(flags), TryOffset: uint32(tryOff), TryLength: uint32(tryLen),
			HandlerOffset: uint32(handlerOff), HandlerLength: uint32(handlerLen),
		}
		assignClassOrFilter(&clauses[i], classOrFilter)
	}
	return clauses, nil
}

func decodeFatExceptionClauses(c *Cursor, kindByte uint8) ([]ExceptionClause, error) {
	rest, err := c.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	dataSize := uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16
	count := (dataSize - 4) / 24
	clauses := make([]ExceptionClause, count)
	for i := range clauses {
		flags, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		tryOff, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		tryLen, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		handlerOff, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		handlerLen, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		classOrFilter, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		clauses[i] = ExceptionClause{
			Kind: ExceptionKind(flags), TryOffset: tryOff, TryLength: tryLen,
			HandlerOffset: handlerOff, HandlerLength: handlerLen,
		}
		assignClassOrFilter(&clauses[i], classOrFilter)
	}
	return clauses, nil
}

func assignClassOrFilter(cl *ExceptionClause, v uint32) {
	if cl.Kind == ExceptionFilter {
		cl.FilterOffset = v
	} else {
		cl.ClassToken = Token(v)
	}
}

// encodeExceptionSections is the write-side counterpart of
// decodeExceptionSections. It always emits a single section using the fat
// clause encoding when any clause's fields overflow the tiny encoding's
// ranges (try/handler offsets > uint16, lengths > uint8) or when the tiny
// section would not fit its 1-byte size field, and the tiny encoding
// otherwise.
func encodeExceptionSections(c *Cursor, clauses []ExceptionClause) error {
	needsFat := 4+12*len(clauses) > 0xFF
	for _, cl := range clauses {
		if cl.TryOffset > 0xFFFF || cl.TryLength > 0xFF ||
			cl.HandlerOffset > 0xFFFF || cl.HandlerLength > 0xFF {
			needsFat = true
			break
		}
	}

	if needsFat {
		dataSize := 4 + 24*uint32(len(clauses))
		c.WriteU8(sectEHTable | sectFatFmt)
		c.WriteU8(byte(dataSize))
		c.WriteU8(byte(dataSize >> 8))
		c.WriteU8(byte(dataSize >> 16))
		for _, cl := range clauses {
			c.WriteU32(uint32(cl.Kind))
			c.WriteU32(cl.TryOffset)
			c.WriteU32(cl.TryLength)
			c.WriteU32(cl.HandlerOffset)
			c.WriteU32(cl.HandlerLength)
			c.WriteU32(classOrFilterValue(cl))
		}
		return nil
	}

	dataSize := 4 + 12*uint32(len(clauses))
	c.WriteU8(sectEHTable)
	c.WriteU8(byte(dataSize))
	c.WriteU16(0)
	for _, cl := range clauses {
		c.WriteU16(uint16(cl.Kind))
		c.WriteU16(uint16(cl.TryOffset))
		c.WriteU8(uint8(cl.TryLength))
		c.WriteU16(uint16(cl.HandlerOffset))
		c.WriteU8(uint8(cl.HandlerLength))
		c.WriteU32(classOrFilterValue(cl))
	}
	return nil
}

func classOrFilterValue(cl ExceptionClause) uint32 {
	if cl.Kind == ExceptionFilter {
		return cl.FilterOffset
	}
	return uint32(cl.ClassToken)
}
