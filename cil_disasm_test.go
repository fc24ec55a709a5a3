// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "testing"

func TestDisassembleSimpleSequence(t *testing.T) {
	// ldarg.0; ldarg.1; add; ret
	code := []byte{0x02, 0x03, 0x58, 0x2A}
	instrs, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	wantNames := []string{"ldarg.0", "ldarg.1", "add", "ret"}
	if len(instrs) != len(wantNames) {
		t.Fatalf("Disassemble() produced %d instructions, want %d", len(instrs), len(wantNames))
	}
	for i, want := range wantNames {
		if instrs[i].Opcode.Name != want {
			t.Errorf("instruction %d = %q, want %q", i, instrs[i].Opcode.Name, want)
		}
		if instrs[i].Offset != uint32(i) {
			t.Errorf("instruction %d offset = %d, want %d", i, instrs[i].Offset, i)
		}
	}
}

func TestDisassembleResolvesBranchTarget(t *testing.T) {
	// br.s +1 (skip the nop); nop; ret
	code := []byte{0x2B, 0x01, 0x00, 0x2A}
	instrs, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	if instrs[0].Operand.Target != 3 {
		t.Errorf("branch target = %d, want 3", instrs[0].Operand.Target)
	}
}

func TestDisassembleTwoByteOpcode(t *testing.T) {
	// 0xFE 0x01 is ceq.
	instrs, err := Disassemble([]byte{0xFE, 0x01})
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	if len(instrs) != 1 || instrs[0].Opcode.Name != "ceq" {
		t.Fatalf("Disassemble() = %+v, want a single ceq instruction", instrs)
	}
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	if _, err := Disassemble([]byte{0xFE, 0xFF}); err == nil {
		t.Fatal("Disassemble() of an undefined two-byte opcode succeeded, want error")
	}
}

func TestBuildCFGLinearAndBranching(t *testing.T) {
	// ldarg.0; brtrue.s +1 (to ret); nop; ret
	code := []byte{0x02, 0x2D, 0x01, 0x00, 0x2A}
	instrs, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble() failed, reason: %v", err)
	}
	blocks, err := BuildCFG(instrs)
	if err != nil {
		t.Fatalf("BuildCFG() failed, reason: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("BuildCFG() produced %d blocks, want 3 (entry, fallthrough nop, ret target)", len(blocks))
	}
	entry := blocks[0]
	if len(entry.Successors) != 2 {
		t.Fatalf("entry block has %d successors, want 2 (cond-branch target + fallthrough)", len(entry.Successors))
	}
}

func TestBuildCFGEmpty(t *testing.T) {
	blocks, err := BuildCFG(nil)
	if err != nil {
		t.Fatalf("BuildCFG(nil) failed, reason: %v", err)
	}
	if blocks != nil {
		t.Errorf("BuildCFG(nil) = %v, want nil", blocks)
	}
}
