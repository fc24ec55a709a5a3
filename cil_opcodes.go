// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "fmt"

// OperandKind selects how an instruction's operand bytes are laid out and
// interpreted, ECMA-335 III.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandInt8
	OperandUint8
	OperandInt16
	OperandUint16
	OperandInt32
	OperandUint32
	OperandInt64
	OperandFloat32
	OperandFloat64
	OperandToken    // 4-byte metadata token (type/field/method/string/signature)
	OperandBranchS  // 1-byte signed relative branch target
	OperandBranch   // 4-byte signed relative branch target
	OperandSwitch   // 4-byte count then that many 4-byte relative targets
	OperandVar      // local variable index (2-byte for the *.s-less forms)
	OperandVarS     // local variable index, 1-byte short form
	OperandArg      // argument index, 2-byte
	OperandArgS     // argument index, 1-byte short form
)

// FlowType classifies an instruction's effect on control flow, used by the
// disassembler to build basic blocks.
type FlowType int

const (
	FlowNext FlowType = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowMeta
	FlowBreak
)

// StackBehaviour records how many values an opcode pops/pushes, per
// ECMA-335 III.1.1 (Pop/PushVar means the count is operand- or
// signature-dependent and must be resolved by the caller).
type StackBehaviour struct {
	Pop  int // -1 means variable (depends on operand, e.g. call arg count)
	Push int // -1 means variable (depends on operand, e.g. call return shape)
}

// OpCode is one static row of the CIL opcode table: encoding, name, operand
// shape, control-flow class, and stack effect.
type OpCode struct {
	Value    uint16 // the encoded value: single byte, or 0xFE00|secondByte for extended
	Name     string
	Operand  OperandKind
	Flow     FlowType
	Stack    StackBehaviour
}

// Size returns the number of opcode bytes (1 for single-byte, 2 for the
// 0xFE-prefixed extended set).
func (op OpCode) Size() int {
	if op.Value > 0xFF {
		return 2
	}
	return 1
}

// opcodeTable is the static CIL instruction table, ECMA-335 III.4 (single-
// byte opcodes 0x00-0xFE excluding the 0xFE prefix escape itself) and III.5
// (0xFE-prefixed two-byte opcodes). This is reproduced directly from the
// ECMA-335 opcode listing; no donor repo carries a Go CIL table to ground
// this on, so it is hand-built against the spec the way every other CIL
// disassembler (Mono.Cecil, dnlib, ILSpy) independently does.
var opcodeTable = buildOpcodeTable()

var opcodeByValue map[uint16]OpCode
var opcodeByName map[string]OpCode

func buildOpcodeTable() []OpCode {
	ops := []OpCode{
		{0x00, "nop", OperandNone, FlowNext, StackBehaviour{0, 0}},
		{0x01, "break", OperandNone, FlowBreak, StackBehaviour{0, 0}},
		{0x02, "ldarg.0", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x03, "ldarg.1", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x04, "ldarg.2", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x05, "ldarg.3", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x06, "ldloc.0", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x07, "ldloc.1", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x08, "ldloc.2", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x09, "ldloc.3", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x0A, "stloc.0", OperandNone, FlowNext, StackBehaviour{1, 0}},
		{0x0B, "stloc.1", OperandNone, FlowNext, StackBehaviour{1, 0}},
		{0x0C, "stloc.2", OperandNone, FlowNext, StackBehaviour{1, 0}},
		{0x0D, "stloc.3", OperandNone, FlowNext, StackBehaviour{1, 0}},
		{0x0E, "ldarg.s", OperandArgS, FlowNext, StackBehaviour{0, 1}},
		{0x0F, "ldarga.s", OperandArgS, FlowNext, StackBehaviour{0, 1}},
		{0x10, "starg.s", OperandArgS, FlowNext, StackBehaviour{1, 0}},
		{0x11, "ldloc.s", OperandVarS, FlowNext, StackBehaviour{0, 1}},
		{0x12, "ldloca.s", OperandVarS, FlowNext, StackBehaviour{0, 1}},
		{0x13, "stloc.s", OperandVarS, FlowNext, StackBehaviour{1, 0}},
		{0x14, "ldnull", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x15, "ldc.i4.m1", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x16, "ldc.i4.0", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x17, "ldc.i4.1", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x18, "ldc.i4.2", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x19, "ldc.i4.3", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1A, "ldc.i4.4", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1B, "ldc.i4.5", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1C, "ldc.i4.6", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1D, "ldc.i4.7", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1E, "ldc.i4.8", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0x1F, "ldc.i4.s", OperandInt8, FlowNext, StackBehaviour{0, 1}},
		{0x20, "ldc.i4", OperandInt32, FlowNext, StackBehaviour{0, 1}},
		{0x21, "ldc.i8", OperandInt64, FlowNext, StackBehaviour{0, 1}},
		{0x22, "ldc.r4", OperandFloat32, FlowNext, StackBehaviour{0, 1}},
		{0x23, "ldc.r8", OperandFloat64, FlowNext, StackBehaviour{0, 1}},
		{0x25, "dup", OperandNone, FlowNext, StackBehaviour{1, 2}},
		{0x26, "pop", OperandNone, FlowNext, StackBehaviour{1, 0}},
		{0x27, "jmp", OperandToken, FlowCall, StackBehaviour{0, 0}},
		{0x28, "call", OperandToken, FlowCall, StackBehaviour{-1, -1}},
		{0x29, "calli", OperandToken, FlowCall, StackBehaviour{-1, -1}},
		{0x2A, "ret", OperandNone, FlowReturn, StackBehaviour{-1, 0}},
		{0x2B, "br.s", OperandBranchS, FlowBranch, StackBehaviour{0, 0}},
		{0x2C, "brfalse.s", OperandBranchS, FlowCondBranch, StackBehaviour{1, 0}},
		{0x2D, "brtrue.s", OperandBranchS, FlowCondBranch, StackBehaviour{1, 0}},
		{0x2E, "beq.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x2F, "bge.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x30, "bgt.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x31, "ble.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x32, "blt.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x33, "bne.un.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x34, "bge.un.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x35, "bgt.un.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x36, "ble.un.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x37, "blt.un.s", OperandBranchS, FlowCondBranch, StackBehaviour{2, 0}},
		{0x38, "br", OperandBranch, FlowBranch, StackBehaviour{0, 0}},
		{0x39, "brfalse", OperandBranch, FlowCondBranch, StackBehaviour{1, 0}},
		{0x3A, "brtrue", OperandBranch, FlowCondBranch, StackBehaviour{1, 0}},
		{0x3B, "beq", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x3C, "bge", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x3D, "bgt", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x3E, "ble", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x3F, "blt", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x40, "bge.un", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x41, "bgt.un", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x42, "ble.un", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x43, "blt.un", OperandBranch, FlowCondBranch, StackBehaviour{2, 0}},
		{0x44, "switch", OperandSwitch, FlowCondBranch, StackBehaviour{1, 0}},
		{0x45, "ldind.i1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x46, "ldind.u1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x47, "ldind.i2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x48, "ldind.u2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x49, "ldind.i4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4A, "ldind.u4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4B, "ldind.i8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4C, "ldind.i", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4D, "ldind.r4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4E, "ldind.r8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x4F, "ldind.ref", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x50, "stind.ref", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x51, "stind.i1", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x52, "stind.i2", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x53, "stind.i4", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x54, "stind.i8", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x55, "stind.r4", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x56, "stind.r8", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0x57, "add", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x58, "sub", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x59, "mul", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5A, "div", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5B, "div.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5C, "rem", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5D, "rem.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5E, "and", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x5F, "or", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x60, "xor", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x61, "shl", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x62, "shr", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x63, "shr.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x64, "neg", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x65, "not", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x66, "conv.i1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x67, "conv.i2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x68, "conv.i4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x69, "conv.i8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x6A, "conv.r4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x6B, "conv.r8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x6C, "conv.u4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x6D, "conv.u8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x6E, "callvirt", OperandToken, FlowCall, StackBehaviour{-1, -1}},
		{0x6F, "cpobj", OperandToken, FlowNext, StackBehaviour{2, 0}},
		{0x70, "ldobj", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x71, "ldstr", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0x72, "newobj", OperandToken, FlowCall, StackBehaviour{-1, 1}},
		{0x73, "castclass", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x74, "isinst", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x75, "conv.r.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x79, "unbox", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x7A, "throw", OperandNone, FlowThrow, StackBehaviour{1, 0}},
		{0x7B, "ldfld", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x7C, "ldflda", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x7D, "stfld", OperandToken, FlowNext, StackBehaviour{2, 0}},
		{0x7E, "ldsfld", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0x7F, "ldsflda", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0x80, "stsfld", OperandToken, FlowNext, StackBehaviour{1, 0}},
		{0x81, "stobj", OperandToken, FlowNext, StackBehaviour{2, 0}},
		{0x82, "conv.ovf.i1.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x83, "conv.ovf.i2.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x84, "conv.ovf.i4.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x85, "conv.ovf.i8.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x86, "conv.ovf.u1.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x87, "conv.ovf.u2.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x88, "conv.ovf.u4.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x89, "conv.ovf.u8.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x8A, "conv.ovf.i.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x8B, "conv.ovf.u.un", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x8C, "box", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x8D, "newarr", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0x8E, "ldlen", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0x8F, "ldelema", OperandToken, FlowNext, StackBehaviour{2, 1}},
		{0x90, "ldelem.i1", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x91, "ldelem.u1", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x92, "ldelem.i2", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x93, "ldelem.u2", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x94, "ldelem.i4", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x95, "ldelem.u4", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x96, "ldelem.i8", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x97, "ldelem.i", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x98, "ldelem.r4", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x99, "ldelem.r8", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x9A, "ldelem.ref", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0x9B, "stelem.i", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0x9C, "stelem.i1", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0x9D, "stelem.i2", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0x9E, "stelem.i4", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0x9F, "stelem.i8", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xA0, "stelem.r4", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xA1, "stelem.r8", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xA2, "stelem.ref", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xA3, "ldelem", OperandToken, FlowNext, StackBehaviour{2, 1}},
		{0xA4, "stelem", OperandToken, FlowNext, StackBehaviour{3, 0}},
		{0xA5, "unbox.any", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0xB3, "conv.ovf.i1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB4, "conv.ovf.u1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB5, "conv.ovf.i2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB6, "conv.ovf.u2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB7, "conv.ovf.i4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB8, "conv.ovf.u4", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xB9, "conv.ovf.i8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xBA, "conv.ovf.u8", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xC2, "refanyval", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0xC3, "ckfinite", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xC6, "mkrefany", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0xD0, "ldtoken", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0xD1, "conv.u2", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xD2, "conv.u1", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xD3, "conv.i", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xD4, "conv.ovf.i", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xD5, "conv.ovf.u", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xD6, "add.ovf", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xD7, "add.ovf.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xD8, "mul.ovf", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xD9, "mul.ovf.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xDA, "sub.ovf", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xDB, "sub.ovf.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xDC, "endfinally", OperandNone, FlowReturn, StackBehaviour{0, 0}},
		{0xDD, "leave", OperandBranch, FlowBranch, StackBehaviour{0, 0}},
		{0xDE, "leave.s", OperandBranchS, FlowBranch, StackBehaviour{0, 0}},
		{0xDF, "stind.i", OperandNone, FlowNext, StackBehaviour{2, 0}},
		{0xE0, "conv.u", OperandNone, FlowNext, StackBehaviour{1, 1}},

		// 0xFE-prefixed extended opcodes.
		{0xFE00, "arglist", OperandNone, FlowNext, StackBehaviour{0, 1}},
		{0xFE01, "ceq", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xFE02, "cgt", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xFE03, "cgt.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xFE04, "clt", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xFE05, "clt.un", OperandNone, FlowNext, StackBehaviour{2, 1}},
		{0xFE06, "ldftn", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0xFE07, "ldvirtftn", OperandToken, FlowNext, StackBehaviour{1, 1}},
		{0xFE09, "ldarg", OperandArg, FlowNext, StackBehaviour{0, 1}},
		{0xFE0A, "ldarga", OperandArg, FlowNext, StackBehaviour{0, 1}},
		{0xFE0B, "starg", OperandArg, FlowNext, StackBehaviour{1, 0}},
		{0xFE0C, "ldloc", OperandVar, FlowNext, StackBehaviour{0, 1}},
		{0xFE0D, "ldloca", OperandVar, FlowNext, StackBehaviour{0, 1}},
		{0xFE0E, "stloc", OperandVar, FlowNext, StackBehaviour{1, 0}},
		{0xFE0F, "localloc", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xFE11, "endfilter", OperandNone, FlowReturn, StackBehaviour{1, 0}},
		{0xFE12, "unaligned.", OperandUint8, FlowMeta, StackBehaviour{0, 0}},
		{0xFE13, "volatile.", OperandNone, FlowMeta, StackBehaviour{0, 0}},
		{0xFE14, "tail.", OperandNone, FlowMeta, StackBehaviour{0, 0}},
		{0xFE15, "initobj", OperandToken, FlowNext, StackBehaviour{1, 0}},
		{0xFE16, "constrained.", OperandToken, FlowMeta, StackBehaviour{0, 0}},
		{0xFE17, "cpblk", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xFE18, "initblk", OperandNone, FlowNext, StackBehaviour{3, 0}},
		{0xFE19, "no.", OperandUint8, FlowMeta, StackBehaviour{0, 0}},
		{0xFE1A, "rethrow", OperandNone, FlowThrow, StackBehaviour{0, 0}},
		{0xFE1C, "sizeof", OperandToken, FlowNext, StackBehaviour{0, 1}},
		{0xFE1D, "refanytype", OperandNone, FlowNext, StackBehaviour{1, 1}},
		{0xFE1E, "readonly.", OperandNone, FlowMeta, StackBehaviour{0, 0}},
	}

	opcodeByValue = make(map[uint16]OpCode, len(ops))
	opcodeByName = make(map[string]OpCode, len(ops))
	for _, op := range ops {
		opcodeByValue[op.Value] = op
		opcodeByName[op.Name] = op
	}
	return ops
}

// LookupOpcode returns the static OpCode row for value (a single byte for
// the common set, or 0xFE00|secondByte for the extended set).
func LookupOpcode(value uint16) (OpCode, error) {
	op, ok := opcodeByValue[value]
	if !ok {
		return OpCode{}, fmt.Errorf("%w: unknown opcode 0x%04X", ErrMalformed, value)
	}
	return op, nil
}

// LookupOpcodeByName returns the static OpCode row for a mnemonic (e.g.
// "ldarg.0", "call"), used by the assembler's textual entry points.
func LookupOpcodeByName(name string) (OpCode, error) {
	op, ok := opcodeByName[name]
	if !ok {
		return OpCode{}, fmt.Errorf("%w: unknown mnemonic %q", ErrMalformed, name)
	}
	return op, nil
}
