// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// ValidationStage distinguishes validators that only need the as-parsed
// view plus pending changes (raw, structural checks) from validators that
// need every token dereferenced to its target object (owned, semantic
// checks).
type ValidationStage int

const (
	StageRaw ValidationStage = iota
	StageOwned
)

// ValidationProfile selects which validators should_run reports true for.
type ValidationProfile int

const (
	ProfileDisabled ValidationProfile = iota
	ProfileMinimal
	ProfileProduction
	ProfileComprehensive
)

// ValidationConfig is the toggle set a profile resolves to; individual
// flags let a caller build a custom profile by starting from one of the
// four named ones and flipping bits.
type ValidationConfig struct {
	EnableTokenValidation    bool
	EnableStructuralChecks   bool
	EnableSemanticValidation bool
	FailFast                 bool
}

// ConfigForProfile returns the toggle set a named profile resolves to.
func ConfigForProfile(p ValidationProfile) ValidationConfig {
	switch p {
	case ProfileMinimal:
		return ValidationConfig{EnableTokenValidation: true, FailFast: true}
	case ProfileProduction:
		return ValidationConfig{EnableTokenValidation: true, EnableStructuralChecks: true, FailFast: true}
	case ProfileComprehensive:
		return ValidationConfig{EnableTokenValidation: true, EnableStructuralChecks: true, EnableSemanticValidation: true}
	default:
		return ValidationConfig{}
	}
}

// ValidationOutcome is one validator's result: its name, whether it passed,
// the error if not, and how long it took.
type ValidationOutcome struct {
	Name     string
	Success  bool
	Err      error
	Duration time.Duration
}

// ValidationReport aggregates every validator's outcome plus the total
// duration spent running them.
type ValidationReport struct {
	Outcomes []ValidationOutcome
	Total    time.Duration
	FailFast bool
}

// Success reports whether every outcome in the report passed.
func (r *ValidationReport) Success() bool {
	for _, o := range r.Outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// Collapse folds the report into a single error: the first failure's error
// under fail-fast, or an aggregate listing every failure otherwise. Returns
// nil if every outcome passed.
func (r *ValidationReport) Collapse() error {
	var failures []ValidationOutcome
	for _, o := range r.Outcomes {
		if !o.Success {
			failures = append(failures, o)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	if r.FailFast {
		return fmt.Errorf("%s: %w", failures[0].Name, failures[0].Err)
	}
	err := fmt.Errorf("%w: %d validator(s) failed", ErrValidationFailed, len(failures))
	for _, f := range failures {
		err = fmt.Errorf("%w; %s: %v", err, f.Name, f.Err)
	}
	return err
}

// validator is one named, prioritized check against an editing session.
// Lower priority values run first within a stage.
type validator struct {
	name     string
	stage    ValidationStage
	priority int
	shouldRun func(ValidationConfig) bool
	validate func(*Editable) error
}

// registry is the fixed, built-in set of validators this engine ships with,
// grouped by stage and ordered by priority within each stage.
var registry = []validator{
	{name: "heap_index_bounds", stage: StageRaw, priority: 0,
		shouldRun: func(c ValidationConfig) bool { return c.EnableTokenValidation },
		validate:  validateHeapIndexBounds},
	{name: "coded_index_tag_validity", stage: StageRaw, priority: 1,
		shouldRun: func(c ValidationConfig) bool { return c.EnableTokenValidation },
		validate:  validateCodedIndexTags},
	{name: "signature_blob_shape", stage: StageRaw, priority: 2,
		shouldRun: func(c ValidationConfig) bool { return c.EnableStructuralChecks },
		validate:  validateSignatureBlobShapes},
	{name: "type_definition_structural_sanity", stage: StageOwned, priority: 0,
		shouldRun: func(c ValidationConfig) bool { return c.EnableSemanticValidation },
		validate:  validateTypeDefStructure},
	{name: "attribute_usage_compatibility", stage: StageOwned, priority: 1,
		shouldRun: func(c ValidationConfig) bool { return c.EnableSemanticValidation },
		validate:  validateAttributeUsage},
	{name: "permission_set_xml_structure", stage: StageOwned, priority: 2,
		shouldRun: func(c ValidationConfig) bool { return c.EnableSemanticValidation },
		validate:  validatePermissionSetXML},
}

// RunValidators runs every registered validator whose should_run reports
// true for profile's resolved config, stage-1 (raw) before stage-2
// (owned), ordered by priority within each stage, and aggregates the
// results into one report.
func RunValidators(e *Editable, profile ValidationProfile) *ValidationReport {
	cfg := ConfigForProfile(profile)
	report := &ValidationReport{FailFast: cfg.FailFast}

	ordered := make([]validator, len(registry))
	copy(ordered, registry)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].stage != ordered[j].stage {
			return ordered[i].stage < ordered[j].stage
		}
		return ordered[i].priority < ordered[j].priority
	})

	start := time.Now()
	for _, v := range ordered {
		if !v.shouldRun(cfg) {
			continue
		}
		vStart := time.Now()
		err := v.validate(e)
		outcome := ValidationOutcome{Name: v.name, Success: err == nil, Err: err, Duration: time.Since(vStart)}
		report.Outcomes = append(report.Outcomes, outcome)
		if err != nil && cfg.FailFast {
			break
		}
	}
	report.Total = time.Since(start)
	return report
}

// isCompilerGeneratedNamePattern matches the "<...>" mangled names the CLR
// compilers emit for closures, iterator state machines, and backing
// fields, per ECMA-335's informative note on compiler-generated names.
var isCompilerGeneratedNamePattern = regexp.MustCompile(`^<.*>`)

// IsCompilerGeneratedName reports whether name looks like a
// compiler-synthesized identifier rather than source-level one.
func IsCompilerGeneratedName(name string) bool {
	return isCompilerGeneratedNamePattern.MatchString(name)
}

// --- stage-1 (raw) validators ---

func validateHeapIndexBounds(e *Editable) error {
	for tableID, change := range e.model.Tables {
		shape := Shape(tableID)
		if len(shape.Fields) == 0 {
			continue
		}
		for _, row := range change.inserted {
			if err := validateRowHeapIndices(e, shape, row); err != nil {
				return err
			}
		}
		for _, row := range change.modified {
			if err := validateRowHeapIndices(e, shape, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRowHeapIndices(e *Editable, shape TableShape, row Row) error {
	for i, spec := range shape.Fields {
		if i >= len(row.Fields) {
			break
		}
		raw := row.Fields[i]
		switch spec.Kind {
		case FieldStringIndex:
			if _, err := e.view.Strings().Get(raw); err != nil && raw != 0 {
				return fmt.Errorf("%s.%s: %w", shape.Name, spec.Name, err)
			}
		case FieldBlobIndex:
			if _, err := e.view.Blobs().Get(raw); err != nil && raw != 0 {
				return fmt.Errorf("%s.%s: %w", shape.Name, spec.Name, err)
			}
		case FieldGUIDIndex:
			if raw != 0 {
				if _, err := e.view.GUIDs().Get(raw); err != nil {
					return fmt.Errorf("%s.%s: %w", shape.Name, spec.Name, err)
				}
			}
		}
	}
	return nil
}

func validateCodedIndexTags(e *Editable) error {
	ti := e.view.TableInfo()
	for tableID, change := range e.model.Tables {
		shape := Shape(tableID)
		if len(shape.Fields) == 0 {
			continue
		}
		check := func(row Row) error {
			for i, spec := range shape.Fields {
				if spec.Kind != FieldCodedIndex || i >= len(row.Fields) {
					continue
				}
				if _, _, err := ti.DecodeCodedIndex(row.Fields[i], spec.Family); err != nil {
					return fmt.Errorf("%s.%s: %w", shape.Name, spec.Name, err)
				}
			}
			return nil
		}
		for _, row := range change.inserted {
			if err := check(row); err != nil {
				return err
			}
		}
		for _, row := range change.modified {
			if err := check(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSignatureBlobShapes(e *Editable) error {
	sigChange, ok := e.model.Tables[StandAloneSig]
	if !ok {
		return nil
	}
	check := func(row Row) error {
		idx := FieldIndex(StandAloneSig, "Signature")
		if idx < 0 || idx >= len(row.Fields) {
			return nil
		}
		blob, err := e.view.Blobs().Get(row.Fields[idx])
		if err != nil {
			return nil // reported already by heap bounds validator
		}
		c := NewCursor(blob)
		_, err = c.ReadCompressedUint()
		if err != nil {
			return fmt.Errorf("StandAloneSig signature blob: %w", err)
		}
		return nil
	}
	for _, row := range sigChange.inserted {
		if err := check(row); err != nil {
			return err
		}
	}
	for _, row := range sigChange.modified {
		if err := check(row); err != nil {
			return err
		}
	}
	return nil
}

// --- stage-2 (owned) validators ---

func validateTypeDefStructure(e *Editable) error {
	typeDefs, ok := e.view.Table(TypeDef).([]TypeDefTableRow)
	if !ok {
		return nil
	}
	ti := e.view.TableInfo()
	for i, row := range typeDefs {
		if row.Extends == 0 {
			continue
		}
		tableID, rid, err := ti.DecodeCodedIndex(row.Extends, idxTypeDefOrRef)
		if err != nil {
			return fmt.Errorf("TypeDef[0x%X].Extends: %w", i+1, err)
		}
		if tableID == TypeDef && rid == uint32(i+1) {
			return fmt.Errorf("%w: TypeDef[0x%X] extends itself", ErrInvalidModification, i+1)
		}
	}
	return nil
}

// ctorSignature resolves the MethodSig backing a CustomAttribute's Type
// coded index, reading the Signature blob off whichever of MethodDef or
// MemberRef the index targets.
func ctorSignature(e *Editable, ti *TableInfo, tableID int, rid uint32) (*MethodSig, error) {
	var sigIdx uint32
	switch tableID {
	case MethodDef:
		rows, ok := e.view.Table(MethodDef).([]MethodDefTableRow)
		if !ok || rid == 0 || int(rid) > len(rows) {
			return nil, fmt.Errorf("%w: dangling MethodDef constructor reference", ErrInvalidModification)
		}
		sigIdx = rows[rid-1].Signature
	case MemberRef:
		rows, ok := e.view.Table(MemberRef).([]MemberRefTableRow)
		if !ok || rid == 0 || int(rid) > len(rows) {
			return nil, fmt.Errorf("%w: dangling MemberRef constructor reference", ErrInvalidModification)
		}
		sigIdx = rows[rid-1].Signature
	default:
		return nil, fmt.Errorf("%w: constructor reference is not a MethodDef or MemberRef", ErrInvalidModification)
	}
	blob, err := e.view.Blobs().Get(sigIdx)
	if err != nil {
		return nil, fmt.Errorf("constructor signature blob: %w", err)
	}
	return DecodeMethodSignature(blob, ti)
}

// validateAttributeUsage checks that every CustomAttribute's Type resolves
// to a non-null MethodDef/MemberRef constructor, and that the attribute's
// Value blob decodes against that constructor's signature with a fixed-arg
// count matching its parameter list, mirroring dotscope's owned attribute
// validator.
func validateAttributeUsage(e *Editable) error {
	attrs, ok := e.view.Table(CustomAttribute).([]CustomAttributeTableRow)
	if !ok {
		return nil
	}
	ti := e.view.TableInfo()
	for i, row := range attrs {
		if row.Type == 0 {
			return fmt.Errorf("%w: CustomAttribute[0x%X] has a null constructor reference", ErrInvalidModification, i+1)
		}
		tableID, rid, err := ti.DecodeCodedIndex(row.Type, idxCustomAttributeType)
		if err != nil {
			return fmt.Errorf("CustomAttribute[0x%X].Type: %w", i+1, err)
		}
		if tableID != MethodDef && tableID != MemberRef {
			return fmt.Errorf("%w: CustomAttribute[0x%X] constructor reference is not a MethodDef or MemberRef", ErrInvalidModification, i+1)
		}
		if rid == 0 {
			return fmt.Errorf("%w: CustomAttribute[0x%X] has a null constructor reference", ErrInvalidModification, i+1)
		}
		sig, err := ctorSignature(e, ti, tableID, rid)
		if err != nil {
			return fmt.Errorf("CustomAttribute[0x%X]: %w", i+1, err)
		}
		blob, err := e.view.Blobs().Get(row.Value)
		if err != nil {
			return fmt.Errorf("CustomAttribute[0x%X].Value: %w", i+1, err)
		}
		val, err := DecodeCustomAttributeValue(blob, sig)
		if err != nil {
			return fmt.Errorf("CustomAttribute[0x%X] value: %w", i+1, err)
		}
		if len(val.FixedArgs) != len(sig.Params) {
			return fmt.Errorf("%w: CustomAttribute[0x%X] decoded %d fixed argument(s), constructor takes %d",
				ErrInvalidModification, i+1, len(val.FixedArgs), len(sig.Params))
		}
	}
	return nil
}

// DeclSecurity Action column values, ECMA-335 II.22.11.
const (
	SecurityActionDemand            uint16 = 2
	SecurityActionAssert            uint16 = 3
	SecurityActionDeny              uint16 = 4
	SecurityActionPermitOnly        uint16 = 5
	SecurityActionLinkDemand        uint16 = 6
	SecurityActionInheritanceDemand uint16 = 7
)

// maxPermissionSetBlobSize bounds a DeclSecurity.PermissionSet blob,
// matching dotscope's owned security validator: a legitimate permission
// set, XML or binary, never approaches this size, so anything past it is
// almost certainly a malformed or adversarially inflated blob.
const maxPermissionSetBlobSize = 100_000

func validatePermissionSetXML(e *Editable) error {
	rows, ok := e.view.Table(DeclSecurity).([]DeclSecurityTableRow)
	if !ok {
		return nil
	}
	actionsByParent := make(map[uint32][]uint16, len(rows))
	for i, row := range rows {
		blob, err := e.view.Blobs().Get(row.PermissionSet)
		if err != nil || len(blob) == 0 {
			continue
		}
		if len(blob) > maxPermissionSetBlobSize {
			return fmt.Errorf("%w: DeclSecurity[0x%X] permission set blob is %d bytes, exceeding the %d-byte cap",
				ErrInvalidModification, i+1, len(blob), maxPermissionSetBlobSize)
		}
		if blob[0] == '<' {
			// XML-format permission set (legacy .NET 1.x encoding): ECMA-335
			// doesn't mandate a schema, but every well-formed instance wraps
			// its entries in a PermissionSet element.
			if !bytes.Contains(blob, []byte("PermissionSet")) {
				return fmt.Errorf("%w: DeclSecurity[0x%X] XML permission set is missing its PermissionSet element",
					ErrInvalidModification, i+1)
			}
		} else if blob[0] != '.' {
			return fmt.Errorf("%w: DeclSecurity[0x%X] permission set blob has neither the '.' binary format marker nor XML", ErrInvalidModification, i+1)
		}
		actionsByParent[row.Parent] = append(actionsByParent[row.Parent], row.Action)
	}
	for parent, actions := range actionsByParent {
		if conflict := detectSecurityActionConflict(actions); conflict != "" {
			return fmt.Errorf("%w: DeclSecurity rows for parent coded index 0x%X have conflicting actions (%s)",
				ErrInvalidModification, parent, conflict)
		}
	}
	return nil
}

// detectSecurityActionConflict flags the two incompatible Action
// combinations a single security-parent can never legitimately carry:
// Assert together with Deny (asserting away a demand while also denying
// it is incoherent), and PermitOnly together with either Assert or Deny
// (PermitOnly already restricts the grant set exclusively, so stacking
// another restrict-or-elevate action on the same parent is a conflict).
func detectSecurityActionConflict(actions []uint16) string {
	var hasAssert, hasDeny, hasPermitOnly bool
	for _, a := range actions {
		switch a {
		case SecurityActionAssert:
			hasAssert = true
		case SecurityActionDeny:
			hasDeny = true
		case SecurityActionPermitOnly:
			hasPermitOnly = true
		}
	}
	if hasAssert && hasDeny {
		return "Assert and Deny"
	}
	if hasPermitOnly && (hasAssert || hasDeny) {
		return "PermitOnly alongside Assert/Deny"
	}
	return ""
}
