// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// ClassBuilder composes a TypeDefBuilder with the PropertyMap/EventMap rows
// a type needs the moment it declares any property or event (ECMA-335
// requires exactly one PropertyMap/EventMap row per owning type, created
// lazily on first use rather than unconditionally for every type), and the
// NestedClass row a nested type needs to record its enclosing type. Field
// and method rows are still built with FieldBuilder/MethodDefBuilder
// directly against the same BuilderContext in between NewClassBuilder and
// Build, since TypeDefBuilder already pins their contiguous run at
// construction time.
type ClassBuilder struct {
	ctx  *BuilderContext
	typ  *TypeDefBuilder
	enclosing Token

	hasPropertyMap bool
	hasEventMap    bool
}

// NewClassBuilder starts a class builder, wrapping a fresh TypeDefBuilder.
func NewClassBuilder(ctx *BuilderContext) *ClassBuilder {
	return &ClassBuilder{ctx: ctx, typ: NewTypeDefBuilder(ctx)}
}

// Flags sets the TypeDef's attribute bitset.
func (b *ClassBuilder) Flags(f uint32) *ClassBuilder { b.typ.Flags(f); return b }

// Name sets the unqualified type name.
func (b *ClassBuilder) Name(name string) *ClassBuilder { b.typ.Name(name); return b }

// Namespace sets the type's namespace.
func (b *ClassBuilder) Namespace(ns string) *ClassBuilder { b.typ.Namespace(ns); return b }

// Extends sets the base type reference.
func (b *ClassBuilder) Extends(base Token) *ClassBuilder { b.typ.Extends(base); return b }

// NestedIn marks this type as nested inside enclosing, causing Build to
// also append the NestedClass row ECMA-335 II.22.32 requires.
func (b *ClassBuilder) NestedIn(enclosing Token) *ClassBuilder {
	b.enclosing = enclosing
	return b
}

// WillDeclareProperty must be called before Build, before any
// PropertyBuilder.Build call for this type, if the type declares at least
// one property: it reserves this type's PropertyMap row at the correct
// position (PropertyMap rows, like TypeDef rows, must stay in ascending
// Parent order).
func (b *ClassBuilder) WillDeclareProperty() *ClassBuilder { b.hasPropertyMap = true; return b }

// WillDeclareEvent is WillDeclareProperty's EventMap counterpart.
func (b *ClassBuilder) WillDeclareEvent() *ClassBuilder { b.hasEventMap = true; return b }

// Build appends the TypeDef row (and, if requested, its PropertyMap/
// EventMap/NestedClass rows), returning the type's token. Call this after
// every FieldBuilder/MethodDefBuilder belonging to this type has already
// been built, and before any PropertyBuilder/EventBuilder belonging to it
// (PropertyMap/EventMap must point at the property/event table's current
// append frontier, the same run-to-next-row convention TypeDef uses for
// FieldList/MethodList).
func (b *ClassBuilder) Build() (Token, error) {
	tok, err := b.typ.Build()
	if err != nil {
		return 0, err
	}
	if b.hasPropertyMap {
		propList := b.ctx.NextRID(Property)
		if _, err := b.ctx.TableRowAdd(PropertyMap, Row{Fields: []uint32{tok.RID(), propList}}); err != nil {
			return 0, err
		}
	}
	if b.hasEventMap {
		eventList := b.ctx.NextRID(Event)
		if _, err := b.ctx.TableRowAdd(EventMap, Row{Fields: []uint32{tok.RID(), eventList}}); err != nil {
			return 0, err
		}
	}
	if !b.enclosing.IsNull() {
		if _, err := b.ctx.TableRowAdd(NestedClass, Row{Fields: []uint32{tok.RID(), b.enclosing.RID()}}); err != nil {
			return 0, err
		}
	}
	return tok, nil
}
