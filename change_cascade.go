// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"fmt"
	"reflect"
)

// RowRef identifies one row: its table id and 1-based row id.
type RowRef struct {
	Table int
	RID   uint32
}

func (r RowRef) String() string {
	return NewToken(r.Table, r.RID).String()
}

// ChangeModel bundles the per-table change sets of one editing session.
// Heap mutations are not duplicated here: each Heap[T] (accessed through the
// borrowed View) already owns its own change-tracking, so Editable forwards
// heap adds directly to it instead of threading a parallel copy through this
// struct.
type ChangeModel struct {
	Tables map[int]*TableRowChange

	// Resources holds pending embedded ManifestResource payloads, keyed by
	// rid, that write-back must lay into the CLR header's Resources
	// directory blob and patch each row's Offset to match. Nil/empty when
	// no resource data is pending, the common case.
	Resources map[uint32]ResourceEntry
}

// decodeFieldRef extracts the RowRef (if any) a field of kind
// FieldTableIndex or FieldCodedIndex encodes, given its raw stored value
// (already widened to uint32 by fieldUint32).
func decodeFieldRef(ti *TableInfo, spec FieldSpec, raw uint32) (RowRef, bool, error) {
	switch spec.Kind {
	case FieldTableIndex:
		if raw == 0 {
			return RowRef{}, false, nil
		}
		return RowRef{Table: spec.Table, RID: raw}, true, nil
	case FieldCodedIndex:
		tableID, rid, err := ti.DecodeCodedIndex(raw, spec.Family)
		if err != nil {
			return RowRef{}, false, err
		}
		if rid == 0 {
			return RowRef{}, false, nil
		}
		return RowRef{Table: tableID, RID: rid}, true, nil
	default:
		return RowRef{}, false, nil
	}
}

// fieldUint32 reads the struct field named spec.Name off v (a typed
// Table*Row value) and widens it to uint32, regardless of whether the
// underlying Go field is uint8/uint16/uint32. Extra struct fields with no
// counterpart in the table's FieldSpec list (e.g. ConstantTableRow's padding
// byte) are simply never looked up, so they never interfere.
func fieldUint32(v reflect.Value, name string) (uint32, bool) {
	f := v.FieldByName(name)
	if !f.IsValid() {
		return 0, false
	}
	switch f.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return uint32(f.Uint()), true
	default:
		return 0, false
	}
}

// rowCountFromContent returns the number of rows in a parsed table's
// Content (a []XTableRow slice), via reflection, without needing a type
// switch over all 45 row types.
func rowCountFromContent(content interface{}) int {
	v := reflect.ValueOf(content)
	if v.Kind() != reflect.Slice {
		return 0
	}
	return v.Len()
}

// scanReferencesTo walks every originally-parsed row of every table and
// returns the RowRef of each row that references target through a
// table-index or coded-index field, per the table's TableShape.
func scanReferencesTo(pe *File, target RowRef) ([]RowRef, error) {
	var refs []RowRef
	ti := pe.tableInfo()

	for tableID, table := range pe.CLR.MetadataTables {
		shape := Shape(tableID)
		if len(shape.Fields) == 0 || table == nil || table.Content == nil {
			continue
		}
		content := reflect.ValueOf(table.Content)
		if content.Kind() != reflect.Slice {
			continue
		}
		for i := 0; i < content.Len(); i++ {
			row := content.Index(i)
			rid := uint32(i + 1)
			for _, spec := range shape.Fields {
				if spec.Kind != FieldTableIndex && spec.Kind != FieldCodedIndex {
					continue
				}
				raw, ok := fieldUint32(row, spec.Name)
				if !ok {
					continue
				}
				ref, has, err := decodeFieldRef(ti, spec, raw)
				if err != nil {
					return nil, fmt.Errorf("%s row %d field %s: %w", shape.Name, rid, spec.Name, err)
				}
				if has && ref == target {
					refs = append(refs, RowRef{Table: tableID, RID: rid})
					break
				}
			}
		}
	}
	return refs, nil
}

// ResolveRemovals drives every pending table-row removal in model to a fixed
// point, per spec.md §4.7: fail_if_referenced rejects a removal with a
// surviving reference, remove_references cascades the removal onto every
// referencing row (repeating until no new removal is produced), and
// nullify_references is left to the write-back's field rewrite pass (it
// never changes which rows exist, only field contents).
func ResolveRemovals(pe *File, model *ChangeModel) error {
	for {
		progressed := false
		for tableID, change := range model.Tables {
			for rid, strategy := range change.removed {
				target := RowRef{Table: tableID, RID: rid}
				refs, err := scanReferencesTo(pe, target)
				if err != nil {
					return err
				}
				for _, ref := range refs {
					refChange, ok := model.Tables[ref.Table]
					if !ok {
						continue
					}
					if _, alreadyRemoved := refChange.IsRemoved(ref.RID); alreadyRemoved {
						continue
					}
					switch strategy {
					case FailIfReferenced:
						return fmt.Errorf("%w: %s is still referenced by %s",
							ErrDanglingReference, target, ref)
					case RemoveReferences:
						refChange.Remove(ref.RID, RemoveReferences)
						progressed = true
					case NullifyReferences:
						// handled by the write-back field-rewrite pass, not
						// by growing the removal set.
					}
				}
			}
		}
		if !progressed {
			return nil
		}
	}
}
