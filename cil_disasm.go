// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"
	"math"
)

// Disassemble decodes code (a method body's raw CIL byte span) into a
// sequence of instructions, with each instruction's Offset set to its
// position relative to the start of code and branch targets resolved into
// absolute offsets within code (ECMA-335 III.1.7).
func Disassemble(code []byte) ([]Instruction, error) {
	c := NewCursor(code)
	var out []Instruction

	for c.Pos < uint32(len(code)) {
		start := c.Pos
		b0, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		var value uint16
		if b0 == 0xFE {
			b1, err := c.ReadU8()
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", start, err)
			}
			value = 0xFE00 | uint16(b1)
		} else {
			value = uint16(b0)
		}
		op, err := LookupOpcode(value)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", start, err)
		}

		ins := Instruction{Offset: start, Opcode: op}
		if err := decodeOperand(c, &ins); err != nil {
			return nil, fmt.Errorf("offset %d (%s): %w", start, op.Name, err)
		}
		out = append(out, ins)
	}
	return out, nil
}

func decodeOperand(c *Cursor, ins *Instruction) error {
	switch ins.Opcode.Operand {
	case OperandNone:
		return nil

	case OperandInt8:
		v, err := c.ReadU8()
		ins.Operand = Operand{Kind: OperandInt8, Int: int64(int8(v))}
		return err

	case OperandUint8:
		v, err := c.ReadU8()
		ins.Operand = Operand{Kind: OperandUint8, Uint: uint64(v)}
		return err

	case OperandInt16:
		v, err := c.ReadU16()
		ins.Operand = Operand{Kind: OperandInt16, Int: int64(int16(v))}
		return err

	case OperandUint16:
		v, err := c.ReadU16()
		ins.Operand = Operand{Kind: OperandUint16, Uint: uint64(v)}
		return err

	case OperandInt32:
		v, err := c.ReadU32()
		ins.Operand = Operand{Kind: OperandInt32, Int: int64(int32(v))}
		return err

	case OperandUint32:
		v, err := c.ReadU32()
		ins.Operand = Operand{Kind: OperandUint32, Uint: uint64(v)}
		return err

	case OperandInt64:
		v, err := c.ReadU64()
		ins.Operand = Operand{Kind: OperandInt64, Int: int64(v)}
		return err

	case OperandFloat32:
		v, err := c.ReadU32()
		ins.Operand = Operand{Kind: OperandFloat32, Float: float64(math.Float32frombits(v))}
		return err

	case OperandFloat64:
		v, err := c.ReadU64()
		ins.Operand = Operand{Kind: OperandFloat64, Float: math.Float64frombits(v)}
		return err

	case OperandToken:
		v, err := c.ReadU32()
		ins.Operand = Operand{Kind: OperandToken, Token: Token(v)}
		return err

	case OperandVarS, OperandArgS:
		v, err := c.ReadU8()
		ins.Operand = Operand{Kind: ins.Opcode.Operand, Var: uint16(v)}
		return err

	case OperandVar, OperandArg:
		v, err := c.ReadU16()
		ins.Operand = Operand{Kind: ins.Opcode.Operand, Var: v}
		return err

	case OperandBranchS:
		v, err := c.ReadU8()
		if err != nil {
			return err
		}
		target := int32(c.Pos) + int32(int8(v))
		ins.Operand = Operand{Kind: OperandBranchS, Target: target}
		return nil

	case OperandBranch:
		v, err := c.ReadU32()
		if err != nil {
			return err
		}
		target := int32(c.Pos) + int32(v)
		ins.Operand = Operand{Kind: OperandBranch, Target: target}
		return nil

	case OperandSwitch:
		count, err := c.ReadU32()
		if err != nil {
			return err
		}
		baseOffset := int32(c.Pos) + int32(count)*4
		targets := make([]int32, count)
		for i := range targets {
			v, err := c.ReadU32()
			if err != nil {
				return err
			}
			targets[i] = baseOffset + int32(v)
		}
		ins.Operand = Operand{Kind: OperandSwitch, Switches: targets}
		return nil

	default:
		return fmt.Errorf("%w: unhandled operand kind %d", ErrMalformed, ins.Opcode.Operand)
	}
}

// BasicBlock is a maximal straight-line run of instructions: every edge into
// it (other than fallthrough from its predecessor) targets its first
// instruction, and only its last instruction can transfer control away.
type BasicBlock struct {
	StartOffset uint32
	Instrs      []Instruction
	Successors  []uint32 // absolute offsets of successor blocks' first instruction
}

// BuildCFG partitions instrs into basic blocks and links them by branch/
// fallthrough edges. Leaders are: the first instruction, every branch
// target, and every instruction immediately following a branch/return/throw.
func BuildCFG(instrs []Instruction) ([]*BasicBlock, error) {
	if len(instrs) == 0 {
		return nil, nil
	}
	byOffset := make(map[uint32]int, len(instrs))
	for i, ins := range instrs {
		byOffset[ins.Offset] = i
	}

	leaders := map[uint32]bool{instrs[0].Offset: true}
	for i, ins := range instrs {
		switch ins.Opcode.Flow {
		case FlowBranch, FlowCondBranch:
			markBranchTargets(ins, leaders)
			if i+1 < len(instrs) {
				leaders[instrs[i+1].Offset] = true
			}
		case FlowReturn, FlowThrow:
			if i+1 < len(instrs) {
				leaders[instrs[i+1].Offset] = true
			}
		}
	}

	var blocks []*BasicBlock
	var cur *BasicBlock
	for _, ins := range instrs {
		if leaders[ins.Offset] {
			if cur != nil {
				blocks = append(blocks, cur)
			}
			cur = &BasicBlock{StartOffset: ins.Offset}
		}
		cur.Instrs = append(cur.Instrs, ins)
	}
	if cur != nil {
		blocks = append(blocks, cur)
	}

	blockStart := make(map[uint32]*BasicBlock, len(blocks))
	for _, b := range blocks {
		blockStart[b.StartOffset] = b
	}
	for i, b := range blocks {
		last := b.Instrs[len(b.Instrs)-1]
		switch last.Opcode.Flow {
		case FlowBranch:
			addSuccessors(b, last)
		case FlowCondBranch:
			addSuccessors(b, last)
			if i+1 < len(blocks) {
				b.Successors = append(b.Successors, blocks[i+1].StartOffset)
			}
		case FlowReturn, FlowThrow:
			// no fallthrough successor
		default:
			if i+1 < len(blocks) {
				b.Successors = append(b.Successors, blocks[i+1].StartOffset)
			}
		}
	}
	return blocks, nil
}

func markBranchTargets(ins Instruction, leaders map[uint32]bool) {
	switch ins.Operand.Kind {
	case OperandBranchS, OperandBranch:
		leaders[uint32(ins.Operand.Target)] = true
	case OperandSwitch:
		for _, t := range ins.Operand.Switches {
			leaders[uint32(t)] = true
		}
	}
}

func addSuccessors(b *BasicBlock, last Instruction) {
	switch last.Operand.Kind {
	case OperandBranchS, OperandBranch:
		b.Successors = append(b.Successors, uint32(last.Operand.Target))
	case OperandSwitch:
		b.Successors = append(b.Successors, toUint32Slice(last.Operand.Switches)...)
	}
}

func toUint32Slice(in []int32) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}
