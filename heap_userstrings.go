// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// UserString is one #US heap entry: a sequence of UTF-16 code units kept
// as-is (not converted to a Go string) because the heap permits unpaired
// surrogates and arbitrary 16-bit values that a UTF-8 round trip would
// corrupt.
type UserString struct {
	Units []uint16
}

// hasNonPlainASCII reports whether any code unit falls outside the plain,
// non-control, printable ASCII range (0x20-0x7E) with a zero high byte;
// such a unit forces the #US terminal byte to 0x01.
func (u UserString) hasNonPlainASCII() bool {
	for _, unit := range u.Units {
		if unit > 0x7E || unit < 0x20 {
			return true
		}
	}
	return false
}

// UserStringsHeap is the #US heap: length-prefixed UTF-16LE payloads with a
// trailing marker byte, every appended entry taking
// compressed_len(payload_size) + payload_size bytes where
// payload_size = 2*utf16_units + 1.
type UserStringsHeap struct {
	*Heap[UserString]
}

func userStringPayloadSize(u UserString) uint32 {
	return uint32(2*len(u.Units) + 1)
}

func userStringsHeapCodec() heapCodec[UserString] {
	return heapCodec[UserString]{
		decode: func(data []byte, index uint32) (UserString, uint32, error) {
			c := &Cursor{Data: data, Pos: index}
			payload, err := c.ReadLengthPrefixedBytes()
			if err != nil {
				return UserString{}, 0, fmt.Errorf("#US heap at %d: %w", index, err)
			}
			if len(payload) == 0 {
				return UserString{}, c.Pos - index, nil
			}
			unitBytes := payload[:len(payload)-1]
			units := make([]uint16, len(unitBytes)/2)
			for i := range units {
				units[i] = uint16(unitBytes[2*i]) | uint16(unitBytes[2*i+1])<<8
			}
			return UserString{Units: units}, c.Pos - index, nil
		},
		encode: func(u UserString) []byte {
			payloadSize := userStringPayloadSize(u)
			c := &Cursor{}
			_ = c.WriteCompressedUint(payloadSize)
			for _, unit := range u.Units {
				c.WriteU16(unit)
			}
			terminal := byte(0x00)
			if u.hasNonPlainASCII() {
				terminal = 0x01
			}
			c.WriteU8(terminal)
			return c.Data
		},
		size: func(u UserString) uint32 {
			n, _ := CompressedUintSize(userStringPayloadSize(u))
			return n + userStringPayloadSize(u)
		},
		count: func(data []byte) uint32 {
			return uint32(len(data))
		},
	}
}

// NewUserStringsHeap builds a UserStringsHeap over original bytes parsed
// from the image's #US stream.
func NewUserStringsHeap(original []byte) *UserStringsHeap {
	return &UserStringsHeap{Heap: newHeap(original, uint32(len(original)), userStringsHeapCodec())}
}

// String decodes u as UTF-16LE into a Go string via DecodeUTF16String (the
// same golang.org/x/text/encoding/unicode decoder helper.go uses for
// embedded unicode strings elsewhere in the PE container), for callers that
// want a display string rather than the raw code-unit sequence.
func (u UserString) String() string {
	buf := make([]byte, 0, len(u.Units)*2+2)
	for _, unit := range u.Units {
		buf = append(buf, byte(unit), byte(unit>>8))
	}
	buf = append(buf, 0, 0)
	decoded, err := DecodeUTF16String(buf)
	if err != nil {
		return ""
	}
	return decoded
}
