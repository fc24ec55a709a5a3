// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"reflect"
	"testing"
)

func methodBodyWithClauses(clauses []ExceptionClause) *MethodBody {
	return &MethodBody{
		MaxStack:         2,
		Code:             []byte{0x00, 0x00, 0x00, 0x2A}, // nop*3; ret
		ExceptionClauses: clauses,
	}
}

func TestExceptionClausesTinyRoundTrip(t *testing.T) {
	clauses := []ExceptionClause{
		{
			Kind:          ExceptionTypedCatch,
			TryOffset:     0,
			TryLength:     2,
			HandlerOffset: 2,
			HandlerLength: 1,
			ClassToken:    Token(0x01000001),
		},
	}
	body := methodBodyWithClauses(clauses)

	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if !reflect.DeepEqual(decoded.ExceptionClauses, clauses) {
		t.Errorf("ExceptionClauses = %+v, want %+v", decoded.ExceptionClauses, clauses)
	}
}

func TestExceptionClausesFilterRoundTrip(t *testing.T) {
	clauses := []ExceptionClause{
		{
			Kind:          ExceptionFilter,
			TryOffset:     0,
			TryLength:     1,
			HandlerOffset: 3,
			HandlerLength: 1,
			FilterOffset:  1,
		},
	}
	body := methodBodyWithClauses(clauses)

	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if !reflect.DeepEqual(decoded.ExceptionClauses, clauses) {
		t.Errorf("ExceptionClauses = %+v, want %+v", decoded.ExceptionClauses, clauses)
	}
}

func TestExceptionClausesForcesFatWhenOffsetsOverflowTinyRange(t *testing.T) {
	clauses := []ExceptionClause{
		{
			Kind:          ExceptionTypedCatch,
			TryOffset:     0x10000, // overflows the tiny encoding's uint16 range
			TryLength:     2,
			HandlerOffset: 2,
			HandlerLength: 1,
			ClassToken:    Token(0x01000001),
		},
	}
	body := methodBodyWithClauses(clauses)

	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if !reflect.DeepEqual(decoded.ExceptionClauses, clauses) {
		t.Errorf("ExceptionClauses = %+v, want %+v", decoded.ExceptionClauses, clauses)
	}
}

func TestExceptionClausesMultipleRoundTrip(t *testing.T) {
	clauses := []ExceptionClause{
		{Kind: ExceptionTypedCatch, TryOffset: 0, TryLength: 1, HandlerOffset: 1, HandlerLength: 1, ClassToken: Token(0x01000001)},
		{Kind: ExceptionFinally, TryOffset: 0, TryLength: 2, HandlerOffset: 2, HandlerLength: 1},
	}
	body := methodBodyWithClauses(clauses)

	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if !reflect.DeepEqual(decoded.ExceptionClauses, clauses) {
		t.Errorf("ExceptionClauses = %+v, want %+v", decoded.ExceptionClauses, clauses)
	}
}
