// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"testing"
)

func TestAssemblerNoOperand(t *testing.T) {
	tests := []struct {
		in  []AsmInstruction
		out []byte
	}{
		{
			in:  []AsmInstruction{{Mnemonic: "nop"}, {Mnemonic: "ret"}},
			out: []byte{0x00, 0x2A},
		},
		{
			in:  []AsmInstruction{{Mnemonic: "ldarg.0"}, {Mnemonic: "ldarg.1"}, {Mnemonic: "add"}, {Mnemonic: "ret"}},
			out: []byte{0x02, 0x03, 0x58, 0x2A},
		},
	}
	for _, tt := range tests {
		code, _, err := NewAssembler(tt.in).Assemble()
		if err != nil {
			t.Fatalf("Assemble() failed, reason: %v", err)
		}
		if !bytes.Equal(code, tt.out) {
			t.Errorf("Assemble() = % X, want % X", code, tt.out)
		}
	}
}

func TestAssemblerShortBranch(t *testing.T) {
	instrs := []AsmInstruction{
		{Mnemonic: "br.s", Label: "target"},
		{Mnemonic: "nop"},
		{Mnemonic: "nop", LabelHere: "target"},
		{Mnemonic: "ret"},
	}
	code, labels, err := NewAssembler(instrs).Assemble()
	if err != nil {
		t.Fatalf("Assemble() failed, reason: %v", err)
	}
	want := []byte{0x2B, 0x01, 0x00, 0x00, 0x2A}
	if !bytes.Equal(code, want) {
		t.Errorf("Assemble() = % X, want % X", code, want)
	}
	if labels["target"] != 3 {
		t.Errorf("label target resolved to %d, want 3", labels["target"])
	}
}

func TestAssemblerWidensOutOfRangeShortBranch(t *testing.T) {
	instrs := []AsmInstruction{
		{Mnemonic: "br.s", Label: "target"},
	}
	for i := 0; i < 200; i++ {
		instrs = append(instrs, AsmInstruction{Mnemonic: "nop"})
	}
	instrs = append(instrs, AsmInstruction{Mnemonic: "ret", LabelHere: "target"})

	code, _, err := NewAssembler(instrs).Assemble()
	if err != nil {
		t.Fatalf("Assemble() failed, reason: %v", err)
	}
	// A displacement of 200+ no longer fits a signed byte, so br.s must
	// widen to the 5-byte br form; verify by disassembling it back.
	out, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	if out[0].Opcode.Name != "br" {
		t.Errorf("widened opcode = %q, want %q", out[0].Opcode.Name, "br")
	}
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	instrs := []AsmInstruction{
		{Mnemonic: "ldc.i4", Int: 42},
		{Mnemonic: "ldstr", Token: Token(0x70000001)},
		{Mnemonic: "call", Token: Token(0x0A000002)},
		{Mnemonic: "ret"},
	}
	code, _, err := NewAssembler(instrs).Assemble()
	if err != nil {
		t.Fatalf("Assemble() failed, reason: %v", err)
	}
	out, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	if len(out) != len(instrs) {
		t.Fatalf("Disassemble() produced %d instructions, want %d", len(out), len(instrs))
	}
	if out[0].Operand.Int != 42 {
		t.Errorf("instruction 0 operand = %d, want 42", out[0].Operand.Int)
	}
	if out[1].Operand.Token != Token(0x70000001) {
		t.Errorf("instruction 1 operand = %#X, want %#X", out[1].Operand.Token, Token(0x70000001))
	}
	if out[2].Operand.Token != Token(0x0A000002) {
		t.Errorf("instruction 2 operand = %#X, want %#X", out[2].Operand.Token, Token(0x0A000002))
	}
	if out[3].Opcode.Name != "ret" {
		t.Errorf("instruction 3 = %q, want ret", out[3].Opcode.Name)
	}
}

func TestAssemblerUndefinedLabel(t *testing.T) {
	instrs := []AsmInstruction{{Mnemonic: "br.s", Label: "nowhere"}}
	if _, _, err := NewAssembler(instrs).Assemble(); err == nil {
		t.Fatal("Assemble() with undefined label succeeded, want error")
	}
}
