// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// Cursor is a bounds-checked read/write position inside a byte buffer, used
// by the heap and table-row codecs to walk variable-width metadata without
// each call site re-deriving offsets by hand.
type Cursor struct {
	Data []byte
	Pos  uint32
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{Data: data}
}

func (c *Cursor) need(n uint32) error {
	if uint64(c.Pos)+uint64(n) > uint64(len(c.Data)) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrOutOfBounds, n, c.Pos, len(c.Data))
	}
	return nil
}

// ReadU8 reads one little-endian byte and advances the cursor.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.Data[c.Pos]
	c.Pos++
	return v, nil
}

// ReadU16 reads a little-endian uint16 and advances the cursor.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := uint16(c.Data[c.Pos]) | uint16(c.Data[c.Pos+1])<<8
	c.Pos += 2
	return v, nil
}

// ReadU32 reads a little-endian uint32 and advances the cursor.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := uint32(c.Data[c.Pos]) | uint32(c.Data[c.Pos+1])<<8 |
		uint32(c.Data[c.Pos+2])<<16 | uint32(c.Data[c.Pos+3])<<24
	c.Pos += 4
	return v, nil
}

// ReadU64 reads a little-endian uint64 and advances the cursor.
func (c *Cursor) ReadU64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	lo := uint32(c.Data[c.Pos]) | uint32(c.Data[c.Pos+1])<<8 |
		uint32(c.Data[c.Pos+2])<<16 | uint32(c.Data[c.Pos+3])<<24
	hi := uint32(c.Data[c.Pos+4]) | uint32(c.Data[c.Pos+5])<<8 |
		uint32(c.Data[c.Pos+6])<<16 | uint32(c.Data[c.Pos+7])<<24
	c.Pos += 8
	return uint64(lo) | uint64(hi)<<32, nil
}

// ReadBytes returns a slice of n raw bytes and advances the cursor. The
// slice aliases the underlying buffer; callers that retain it across a
// mutation of Data must copy.
func (c *Cursor) ReadBytes(n uint32) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.Data[c.Pos : c.Pos+n]
	c.Pos += n
	return v, nil
}

// WriteU8 appends one byte.
func (c *Cursor) WriteU8(v uint8) {
	c.Data = append(c.Data, v)
}

// WriteU16 appends a little-endian uint16.
func (c *Cursor) WriteU16(v uint16) {
	c.Data = append(c.Data, byte(v), byte(v>>8))
}

// WriteU32 appends a little-endian uint32.
func (c *Cursor) WriteU32(v uint32) {
	c.Data = append(c.Data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteU64 appends a little-endian uint64.
func (c *Cursor) WriteU64(v uint64) {
	c.WriteU32(uint32(v))
	c.WriteU32(uint32(v >> 32))
}

// WriteBytes appends raw bytes verbatim.
func (c *Cursor) WriteBytes(b []byte) {
	c.Data = append(c.Data, b...)
}

// Compressed-unsigned-integer limits, ECMA-335 II.23.2.
const (
	// CompressedUintMax is the largest value representable by the
	// compressed-unsigned-integer encoding (29 usable bits).
	CompressedUintMax = 0x1FFFFFFF
)

// ReadCompressedUint decodes a compressed unsigned integer (1, 2, or 4
// bytes) per ECMA-335 II.23.2: the leading byte's top bits select the
// encoding width.
func (c *Cursor) ReadCompressedUint() (uint32, error) {
	b0, err := c.ReadU8()
	if err != nil {
		return 0, err
	}

	switch {
	case b0&0x80 == 0:
		// 0xxxxxxx: 1 byte, value in low 7 bits.
		return uint32(b0), nil

	case b0&0xC0 == 0x80:
		// 10xxxxxx xxxxxxxx: 2 bytes, value in low 14 bits.
		b1, err := c.ReadU8()
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil

	case b0&0xE0 == 0xC0:
		// 110xxxxx xxxxxxxx xxxxxxxx xxxxxxxx: 4 bytes, value in low 29 bits.
		rest, err := c.ReadBytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil

	default:
		return 0, fmt.Errorf("%w: invalid compressed integer prefix 0x%02X", ErrMalformed, b0)
	}
}

// CompressedUintSize returns the number of bytes WriteCompressedUint would
// emit for v, without encoding it. Needed by size-computation passes in the
// write-back (heap/table sizing must know encoded footprints up front).
func CompressedUintSize(v uint32) (uint32, error) {
	switch {
	case v <= 0x7F:
		return 1, nil
	case v <= 0x3FFF:
		return 2, nil
	case v <= CompressedUintMax:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %d exceeds compressed-uint range", ErrMalformed, v)
	}
}

// WriteCompressedUint appends v using the shortest of the three compressed
// encodings.
func (c *Cursor) WriteCompressedUint(v uint32) error {
	switch {
	case v <= 0x7F:
		c.WriteU8(uint8(v))
	case v <= 0x3FFF:
		c.WriteU8(uint8(v>>8) | 0x80)
		c.WriteU8(uint8(v))
	case v <= CompressedUintMax:
		c.WriteU8(uint8(v>>24) | 0xC0)
		c.WriteU8(uint8(v >> 16))
		c.WriteU8(uint8(v >> 8))
		c.WriteU8(uint8(v))
	default:
		return fmt.Errorf("%w: %d exceeds compressed-uint range", ErrMalformed, v)
	}
	return nil
}

// ReadCompressedInt decodes a compressed signed integer: a compressed
// unsigned integer carrying the zig-zag encoding of the signed value,
// per ECMA-335 II.23.2.
func (c *Cursor) ReadCompressedInt() (int32, error) {
	u, err := c.ReadCompressedUint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(u), nil
}

// WriteCompressedInt zig-zag encodes v as a compressed unsigned integer:
// `(v << 1) ^ (v >> 31)`, with wrap-around arithmetic, per ECMA-335 II.23.2.
func (c *Cursor) WriteCompressedInt(v int32) error {
	return c.WriteCompressedUint(zigzagEncode(v))
}

func zigzagEncode(v int32) uint32 {
	return (uint32(v) << 1) ^ uint32(v>>31)
}

func zigzagDecode(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// ReadCString reads a UTF-8 NUL-terminated string starting at the cursor
// (used by the #Strings heap, and by embedded names inside signature/custom
// attribute blobs).
func (c *Cursor) ReadCString() (string, error) {
	start := c.Pos
	for {
		if c.Pos >= uint32(len(c.Data)) {
			return "", fmt.Errorf("%w: unterminated string at offset %d", ErrOutOfBounds, start)
		}
		if c.Data[c.Pos] == 0 {
			s := string(c.Data[start:c.Pos])
			c.Pos++
			return s, nil
		}
		c.Pos++
	}
}

// ReadLengthPrefixedBytes reads a compressed-unsigned length followed by
// that many raw bytes (the #Blob heap element shape).
func (c *Cursor) ReadLengthPrefixedBytes() ([]byte, error) {
	n, err := c.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(n)
}

// WriteLengthPrefixedBytes appends a compressed-unsigned length followed by
// b verbatim.
func (c *Cursor) WriteLengthPrefixedBytes(b []byte) error {
	if err := c.WriteCompressedUint(uint32(len(b))); err != nil {
		return err
	}
	c.WriteBytes(b)
	return nil
}
