// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// Token is a 32-bit metadata reference: the high byte selects a table, the
// low 24 bits are a 1-based row id inside that table. Every field that
// points at a single fixed table (as opposed to a coded index spanning
// several tables) is, once resolved, a Token.
type Token uint32

// NewToken packs a table id and a 1-based row id into a Token.
func NewToken(tableID int, rowID uint32) Token {
	return Token(uint32(tableID)<<24 | (rowID & 0x00FFFFFF))
}

// Table returns the table id this token addresses.
func (t Token) Table() int {
	return int(t >> 24)
}

// RID returns the 1-based row id this token addresses.
func (t Token) RID() uint32 {
	return uint32(t) & 0x00FFFFFF
}

// IsNull reports whether t is the null reference for its table: row id 0,
// which never collides with a valid (1-based) row.
func (t Token) IsNull() bool {
	return t.RID() == 0
}

// String renders the token as "Table[0x1]" style, matching how the
// metadata dump tooling reports cross-references.
func (t Token) String() string {
	name := MetadataTableIndexToString(t.Table())
	if name == "" {
		name = fmt.Sprintf("0x%02X", t.Table())
	}
	return fmt.Sprintf("%s[0x%X]", name, t.RID())
}
