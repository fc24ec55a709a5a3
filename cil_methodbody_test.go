// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"testing"
)

func TestMethodBodyTinyRoundTrip(t *testing.T) {
	body := &MethodBody{
		Tiny:     true,
		MaxStack: 8,
		Code:     []byte{0x02, 0x03, 0x58, 0x2A}, // ldarg.0; ldarg.1; add; ret
	}
	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	if len(encoded) != 1+len(body.Code) {
		t.Fatalf("tiny body encoded to %d bytes, want %d", len(encoded), 1+len(body.Code))
	}

	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if !decoded.Tiny || decoded.MaxStack != 8 || !bytes.Equal(decoded.Code, body.Code) {
		t.Errorf("DecodeMethodBody() = %+v, want a tiny body matching %+v", decoded, body)
	}
}

func TestMethodBodyFatRoundTrip(t *testing.T) {
	body := &MethodBody{
		MaxStack:         4,
		LocalVarSigToken: Token(0x11000001),
		InitLocals:       true,
		Code:             bytes.Repeat([]byte{0x00}, 70), // forces fat: too long for tiny
	}
	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}

	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if decoded.Tiny {
		t.Fatal("DecodeMethodBody() returned a tiny body for a 70-byte code span")
	}
	if decoded.MaxStack != 4 || decoded.LocalVarSigToken != body.LocalVarSigToken || !decoded.InitLocals {
		t.Errorf("DecodeMethodBody() = %+v, want a fat body matching %+v", decoded, body)
	}
	if !bytes.Equal(decoded.Code, body.Code) {
		t.Error("DecodeMethodBody() code did not round-trip")
	}
}

func TestMethodBodyForcesFatWhenLocalsOrExceptionsPresent(t *testing.T) {
	body := &MethodBody{
		Tiny:             true, // caller's hint is ignored when invariants require fat
		MaxStack:         8,
		LocalVarSigToken: Token(0x11000002),
		Code:             []byte{0x2A},
	}
	encoded, err := EncodeMethodBody(body)
	if err != nil {
		t.Fatalf("EncodeMethodBody() failed, reason: %v", err)
	}
	decoded, err := DecodeMethodBody(NewCursor(encoded))
	if err != nil {
		t.Fatalf("DecodeMethodBody() failed, reason: %v", err)
	}
	if decoded.Tiny {
		t.Error("EncodeMethodBody() emitted a tiny header despite a non-zero LocalVarSigToken")
	}
}

func TestMethodBodyRejectsBadHeaderByte(t *testing.T) {
	if _, err := DecodeMethodBody(NewCursor([]byte{0x01})); err == nil {
		t.Fatal("DecodeMethodBody() with an invalid header byte succeeded, want error")
	}
}
