// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clrmeta "github.com/clrforge/ilmeta"
)

// tableIDByName resolves a table's ECMA-335 name (as tables.go's Shape
// reports it, e.g. "TypeDef") to its id, case-insensitively.
func tableIDByName(name string) (int, bool) {
	for id := 0; id < clrmeta.TableCount; id++ {
		if strings.EqualFold(clrmeta.Shape(id).Name, name) {
			return id, true
		}
	}
	return 0, false
}

func openView(path string) (*clrmeta.View, error) {
	v, err := clrmeta.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return v, nil
}

func newTablesCmd() *cobra.Command {
	var tableName string
	cmd := &cobra.Command{
		Use:   "tables <file>",
		Short: "Dump metadata table row counts, or one table's rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openView(args[0])
			if err != nil {
				return err
			}
			if tableName == "" {
				for id := 0; id < clrmeta.TableCount; id++ {
					n := v.RowCount(id)
					if n == 0 {
						continue
					}
					fmt.Printf("%-24s %d rows\n", clrmeta.Shape(id).Name, n)
				}
				return nil
			}
			id, ok := tableIDByName(tableName)
			if !ok {
				return fmt.Errorf("unknown table %q", tableName)
			}
			shape := clrmeta.Shape(id)
			n := v.RowCount(id)
			logger.Infof("dumping table %s (%d rows)", shape.Name, n)
			for rid := uint32(1); rid <= n; rid++ {
				row, err := v.ReadTableRow(id, rid)
				if err != nil {
					return fmt.Errorf("row %d: %w", rid, err)
				}
				fields := make([]string, len(shape.Fields))
				for i, spec := range shape.Fields {
					fields[i] = fmt.Sprintf("%s=0x%X", spec.Name, row.Fields[i])
				}
				fmt.Printf("[%s:%d] %s\n", shape.Name, rid, strings.Join(fields, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", "", "dump only this table's rows (by name, e.g. TypeDef)")
	return cmd
}

func newHeapsCmd() *cobra.Command {
	var heapName string
	cmd := &cobra.Command{
		Use:   "heaps <file>",
		Short: "Dump one heap's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openView(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(heapName) {
			case "", "strings":
				entries, err := v.Strings().Iterate()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("0x%X: %q\n", e.Index, e.Value)
				}
			case "blob":
				entries, err := v.Blobs().Iterate()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("0x%X: % X\n", e.Index, e.Value)
				}
			case "us", "userstrings":
				entries, err := v.UserStrings().Iterate()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("0x%X: %d units\n", e.Index, len(e.Value.Units))
				}
			case "guid":
				entries, err := v.GUIDs().Iterate()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%d: %s\n", e.Index, e.Value.String())
				}
			default:
				return fmt.Errorf("unknown heap %q (want strings, blob, userstrings, guid)", heapName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&heapName, "heap", "strings", "heap to dump: strings, blob, userstrings, guid")
	return cmd
}

func newMethodsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods <file>",
		Short: "List MethodDef rows and their body shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openView(args[0])
			if err != nil {
				return err
			}
			n := v.RowCount(clrmeta.MethodDef)
			for rid := uint32(1); rid <= n; rid++ {
				row, err := v.ReadTableRow(clrmeta.MethodDef, rid)
				if err != nil {
					return err
				}
				nameIdx := row.Fields[clrmeta.FieldIndex(clrmeta.MethodDef, "Name")]
				name, _ := v.Strings().Get(nameIdx)
				body, err := v.MethodBody(rid)
				if err != nil {
					logger.Warnf("MethodDef %d (%s): %v", rid, name, err)
					continue
				}
				if body == nil {
					fmt.Printf("[MethodDef:%d] %s (no body)\n", rid, name)
					continue
				}
				fmt.Printf("[MethodDef:%d] %s maxstack=%d locals=%s code=%dB clauses=%d\n",
					rid, name, body.MaxStack, body.LocalVarSigToken, len(body.Code), len(body.ExceptionClauses))
			}
			return nil
		},
	}
	return cmd
}

func newDisasmCmd() *cobra.Command {
	var rid uint32
	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Disassemble one MethodDef's CIL body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openView(args[0])
			if err != nil {
				return err
			}
			if rid == 0 {
				return fmt.Errorf("--rid is required")
			}
			body, err := v.MethodBody(rid)
			if err != nil {
				return err
			}
			if body == nil {
				return fmt.Errorf("MethodDef %d has no body (abstract or extern)", rid)
			}
			instrs, err := clrmeta.Disassemble(body.Code)
			if err != nil {
				return err
			}
			for _, ins := range instrs {
				fmt.Printf("IL_%04x: %s%s\n", ins.Offset, ins.Opcode.Name, formatOperand(ins))
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&rid, "rid", 0, "MethodDef row id to disassemble")
	return cmd
}

func formatOperand(ins clrmeta.Instruction) string {
	switch ins.Opcode.Operand {
	case clrmeta.OperandNone:
		return ""
	case clrmeta.OperandToken:
		return " " + ins.Operand.Token.String()
	case clrmeta.OperandBranch, clrmeta.OperandBranchS:
		return fmt.Sprintf(" IL_%04x", ins.Operand.Target)
	case clrmeta.OperandVar, clrmeta.OperandVarS, clrmeta.OperandArg, clrmeta.OperandArgS:
		return fmt.Sprintf(" %d", ins.Operand.Var)
	case clrmeta.OperandFloat32, clrmeta.OperandFloat64:
		return fmt.Sprintf(" %g", ins.Operand.Float)
	case clrmeta.OperandSwitch:
		return fmt.Sprintf(" (%d targets)", len(ins.Operand.Switches))
	default:
		if ins.Operand.Int != 0 {
			return fmt.Sprintf(" %d", ins.Operand.Int)
		}
		return fmt.Sprintf(" %d", ins.Operand.Uint)
	}
}

func newWriteCmd() *cobra.Command {
	var profileName string
	cmd := &cobra.Command{
		Use:   "write <file> <out>",
		Short: "Validate and write an image back out unchanged (round-trip)",
		Long: "Opens file, runs the requested validation profile, and writes the " +
			"(possibly still-pending-change-free) result to out. Useful on its own " +
			"as a round-trip fidelity check, and as the save step a future editing " +
			"front end would call after queuing builder/Editable mutations.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openView(args[0])
			if err != nil {
				return err
			}
			profile, err := parseProfile(profileName)
			if err != nil {
				return err
			}
			ed := v.ToEditable()
			report, err := ed.ValidateAndApplyChanges(profile)
			if err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			for _, o := range report.Outcomes {
				if o.Success {
					logger.Debugf("%s: ok (%s)", o.Name, o.Duration)
				} else {
					logger.Errorf("%s: %v", o.Name, o.Err)
				}
			}
			if !report.Success() {
				return fmt.Errorf("validation failed: %w", report.Collapse())
			}
			if err := ed.WriteToFile(args[1]); err != nil {
				return fmt.Errorf("writing %s: %w", args[1], err)
			}
			logger.Infof("wrote %s", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&profileName, "profile", "production", "validation profile: disabled, minimal, production, comprehensive")
	return cmd
}

func parseProfile(name string) (clrmeta.ValidationProfile, error) {
	switch strings.ToLower(name) {
	case "disabled":
		return clrmeta.ProfileDisabled, nil
	case "minimal":
		return clrmeta.ProfileMinimal, nil
	case "production":
		return clrmeta.ProfileProduction, nil
	case "comprehensive":
		return clrmeta.ProfileComprehensive, nil
	default:
		return 0, fmt.Errorf("unknown validation profile %q", name)
	}
}
