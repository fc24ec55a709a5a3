// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"
	"math"
)

// AsmInstruction is one assembler-input instruction: a mnemonic plus its
// operand, with branch targets given as label names rather than resolved
// offsets (labels are resolved to displacements during layout).
type AsmInstruction struct {
	Mnemonic     string
	Int          int64
	Uint         uint64
	Float        float64
	Token        Token
	Var          uint16
	Label        string   // for branch-carrying opcodes
	SwitchLabels []string // for the switch opcode
	LabelHere    string   // non-empty: this instruction is preceded by label LabelHere
}

// Assembler assembles a sequence of AsmInstruction into a method body's raw
// CIL byte span, using the canonical "assume short, widen on overflow,
// re-layout" fixed-point loop for branch-opcode sizing (ECMA-335 III.1.7
// leaves short-vs-long branch-form selection to the assembler). Opcodes
// named with the "*.s" short form in shortToLong are candidates for
// widening to their long form when a label's resolved displacement no
// longer fits in a signed byte.
type Assembler struct {
	instrs []AsmInstruction
}

// NewAssembler returns an Assembler over instrs.
func NewAssembler(instrs []AsmInstruction) *Assembler {
	return &Assembler{instrs: append([]AsmInstruction(nil), instrs...)}
}

// shortToLong maps each short-form branch mnemonic to its long-form
// counterpart, used when widening during layout.
var shortToLong = map[string]string{
	"br.s": "br", "brfalse.s": "brfalse", "brtrue.s": "brtrue",
	"beq.s": "beq", "bge.s": "bge", "bgt.s": "bgt", "ble.s": "ble", "blt.s": "blt",
	"bne.un.s": "bne.un", "bge.un.s": "bge.un", "bgt.un.s": "bgt.un",
	"ble.un.s": "ble.un", "blt.un.s": "blt.un", "leave.s": "leave",
}

// Assemble runs the sizing/widening fixed point then emits the final byte
// span. Returns the code bytes and a map from label name to its resolved
// absolute offset within that span (useful for exception-handler regions
// expressed as labels).
func (a *Assembler) Assemble() ([]byte, map[string]uint32, error) {
	mnemonics := make([]string, len(a.instrs))
	for i, ins := range a.instrs {
		mnemonics[i] = ins.Mnemonic
	}

	for {
		offsets, labelOffsets, err := a.layout(mnemonics)
		if err != nil {
			return nil, nil, err
		}
		widened := false
		for i, ins := range a.instrs {
			if ins.Label == "" {
				continue
			}
			long, isShort := shortToLong[mnemonics[i]]
			if !isShort {
				continue
			}
			target, ok := labelOffsets[ins.Label]
			if !ok {
				return nil, nil, fmt.Errorf("%w: undefined label %q", ErrMalformed, ins.Label)
			}
			// The short form's displacement is relative to the instruction
			// *after* this one; offsets[i]+2 is that next-instruction offset
			// for the 1-byte-opcode short forms this table uses.
			disp := int64(target) - int64(offsets[i]+2)
			if disp < -128 || disp > 127 {
				mnemonics[i] = long
				widened = true
			}
		}
		if !widened {
			return a.emit(mnemonics, offsets, labelOffsets)
		}
		// loop again: widening only ever grows instruction sizes, so this
		// terminates once every label-carrying branch that needs the long
		// form has been widened.
	}
}

// layout computes each instruction's tentative byte offset given the
// current (possibly partially widened) mnemonic choices, without emitting
// bytes, plus the resolved offset of every label.
func (a *Assembler) layout(mnemonics []string) ([]uint32, map[string]uint32, error) {
	offsets := make([]uint32, len(a.instrs))
	labelOffsets := make(map[string]uint32)
	var cur uint32
	for i, ins := range a.instrs {
		if ins.LabelHere != "" {
			labelOffsets[ins.LabelHere] = cur
		}
		offsets[i] = cur
		op, err := LookupOpcodeByName(mnemonics[i])
		if err != nil {
			return nil, nil, err
		}
		size := op.Size() + operandSize(op.Operand, len(ins.SwitchLabels))
		cur += uint32(size)
	}
	return offsets, labelOffsets, nil
}

func (a *Assembler) emit(mnemonics []string, offsets []uint32, labelOffsets map[string]uint32) ([]byte, map[string]uint32, error) {
	c := NewCursor(nil)
	for i, ins := range a.instrs {
		op, err := LookupOpcodeByName(mnemonics[i])
		if err != nil {
			return nil, nil, err
		}
		if op.Value > 0xFF {
			c.WriteU8(0xFE)
			c.WriteU8(byte(op.Value))
		} else {
			c.WriteU8(byte(op.Value))
		}
		if err := emitOperand(c, op, ins, offsets[i], labelOffsets); err != nil {
			return nil, nil, fmt.Errorf("instruction %d (%s): %w", i, mnemonics[i], err)
		}
	}
	return c.Data, labelOffsets, nil
}

func emitOperand(c *Cursor, op OpCode, ins AsmInstruction, selfOffset uint32, labelOffsets map[string]uint32) error {
	switch op.Operand {
	case OperandNone:
		return nil
	case OperandInt8:
		c.WriteU8(uint8(int8(ins.Int)))
	case OperandUint8:
		c.WriteU8(uint8(ins.Uint))
	case OperandInt16:
		c.WriteU16(uint16(int16(ins.Int)))
	case OperandUint16:
		c.WriteU16(uint16(ins.Uint))
	case OperandInt32:
		c.WriteU32(uint32(int32(ins.Int)))
	case OperandUint32:
		c.WriteU32(uint32(ins.Uint))
	case OperandInt64:
		c.WriteU64(uint64(ins.Int))
	case OperandFloat32:
		c.WriteU32(math.Float32bits(float32(ins.Float)))
	case OperandFloat64:
		c.WriteU64(math.Float64bits(ins.Float))
	case OperandToken:
		c.WriteU32(uint32(ins.Token))
	case OperandVarS, OperandArgS:
		c.WriteU8(uint8(ins.Var))
	case OperandVar, OperandArg:
		c.WriteU16(ins.Var)
	case OperandBranchS:
		target, ok := labelOffsets[ins.Label]
		if !ok {
			return fmt.Errorf("%w: undefined label %q", ErrMalformed, ins.Label)
		}
		disp := int64(target) - int64(selfOffset+1+1)
		if disp < -128 || disp > 127 {
			return fmt.Errorf("%w: branch to %q does not fit in short form after layout", ErrInvalidModification, ins.Label)
		}
		c.WriteU8(uint8(int8(disp)))
	case OperandBranch:
		target, ok := labelOffsets[ins.Label]
		if !ok {
			return fmt.Errorf("%w: undefined label %q", ErrMalformed, ins.Label)
		}
		disp := int64(target) - int64(selfOffset+1+4)
		c.WriteU32(uint32(int32(disp)))
	case OperandSwitch:
		c.WriteU32(uint32(len(ins.SwitchLabels)))
		base := int64(selfOffset) + 1 + 4 + 4*int64(len(ins.SwitchLabels))
		for _, label := range ins.SwitchLabels {
			target, ok := labelOffsets[label]
			if !ok {
				return fmt.Errorf("%w: undefined label %q", ErrMalformed, label)
			}
			c.WriteU32(uint32(int32(int64(target) - base)))
		}
	default:
		return fmt.Errorf("%w: unhandled operand kind %d", ErrMalformed, op.Operand)
	}
	return nil
}
