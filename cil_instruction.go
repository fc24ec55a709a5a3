// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// Operand is a tagged sum over every operand shape an instruction can carry.
// Only the field matching Kind is meaningful.
type Operand struct {
	Kind OperandKind

	Int      int64   // int8/int16/int32/int64 immediates, sign-extended
	Uint     uint64  // uint8/uint16/uint32 immediates, zero-extended
	Float    float64 // float32/float64 immediates
	Token    Token   // token operand
	Var      uint16  // local-variable or argument index
	Target   int32   // BranchS/Branch: absolute offset within the method body once resolved
	Label    string  // BranchS/Branch/Switch during assembly, before layout
	Switches []int32 // Switch: absolute offsets once resolved
	SwitchLabels []string // Switch: label names during assembly
}

// Instruction is one decoded or to-be-assembled CIL instruction.
type Instruction struct {
	Offset  uint32 // byte offset of this instruction within the method body's code
	Opcode  OpCode
	Operand Operand
}

// Size returns the total encoded byte length of this instruction: opcode
// bytes plus operand bytes.
func (ins Instruction) Size() int {
	return ins.Opcode.Size() + operandSize(ins.Opcode.Operand, len(ins.Operand.Switches)+len(ins.Operand.SwitchLabels))
}

func operandSize(kind OperandKind, switchCount int) int {
	switch kind {
	case OperandNone:
		return 0
	case OperandInt8, OperandUint8, OperandVarS, OperandArgS:
		return 1
	case OperandInt16, OperandUint16, OperandVar, OperandArg:
		return 2
	case OperandInt32, OperandUint32, OperandFloat32, OperandToken, OperandBranch:
		return 4
	case OperandBranchS:
		return 1
	case OperandInt64, OperandFloat64:
		return 8
	case OperandSwitch:
		return 4 + 4*switchCount
	default:
		return 0
	}
}
