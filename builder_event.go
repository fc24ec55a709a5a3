// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// Event attribute flags, ECMA-335 II.23.1.4.
const (
	EventAttrSpecialName   uint16 = 0x0200
	EventAttrRTSpecialName uint16 = 0x0400
)

// EventBuilder assembles one Event row plus the MethodSemantics rows
// linking it to its add/remove/fire accessors. An EventMap row owning this
// event is the caller's responsibility (ClassBuilder creates it), mirroring
// PropertyBuilder's relationship to PropertyMap.
type EventBuilder struct {
	ctx *BuilderContext

	flags     uint16
	name      string
	eventType Token // TypeDefOrRef: the delegate type
	add       Token
	remove    Token
	fire      Token
}

// NewEventBuilder starts an Event row builder.
func NewEventBuilder(ctx *BuilderContext) *EventBuilder {
	return &EventBuilder{ctx: ctx}
}

// Flags sets the event's attribute bitset.
func (b *EventBuilder) Flags(f uint16) *EventBuilder { b.flags = f; return b }

// Name sets the event's name.
func (b *EventBuilder) Name(name string) *EventBuilder { b.name = name; return b }

// Type sets the event's delegate type.
func (b *EventBuilder) Type(t Token) *EventBuilder { b.eventType = t; return b }

// Add records the MethodDef token backing this event's add_ accessor.
func (b *EventBuilder) Add(m Token) *EventBuilder { b.add = m; return b }

// Remove records the MethodDef token backing this event's remove_ accessor.
func (b *EventBuilder) Remove(m Token) *EventBuilder { b.remove = m; return b }

// Fire records the MethodDef token backing this event's raise accessor.
func (b *EventBuilder) Fire(m Token) *EventBuilder { b.fire = m; return b }

// Build appends the Event row and the MethodSemantics rows wiring its
// add/remove/fire accessors, returning the event's token.
func (b *EventBuilder) Build() (Token, error) {
	nameIdx := b.ctx.StringAdd(b.name)
	typeVal, err := b.ctx.encodeCodedToken(b.eventType, idxTypeDefOrRef)
	if err != nil {
		return 0, err
	}
	tok, err := b.ctx.TableRowAdd(Event, Row{Fields: []uint32{uint32(b.flags), nameIdx, typeVal}})
	if err != nil {
		return 0, err
	}
	assocVal, err := b.ctx.encodeCodedToken(tok, idxHasSemantics)
	if err != nil {
		return 0, err
	}
	wire := func(m Token, semantics uint16) error {
		if m.IsNull() {
			return nil
		}
		_, err := b.ctx.TableRowAdd(MethodSemantics, Row{Fields: []uint32{
			uint32(semantics), m.RID(), assocVal,
		}})
		return err
	}
	if err := wire(b.add, MethodSemanticAddOn); err != nil {
		return 0, err
	}
	if err := wire(b.remove, MethodSemanticRemoveOn); err != nil {
		return 0, err
	}
	if err := wire(b.fire, MethodSemanticFire); err != nil {
		return 0, err
	}
	return tok, nil
}
