// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "errors"

// Metadata-engine errors, grouped by the taxonomy the engine reports by:
// out-of-bounds reads, malformed encodings, unsupported inputs, recursion
// limits, invalid builder input, and aggregated validation failures. Call
// sites wrap these with fmt.Errorf("...: %w", Err...) to attach the table,
// rid, heap index, byte offset, or opcode that made the error actionable,
// the same way helper.go's ErrOutsideBoundary is used bare while
// ErrInvalidSectionFileAlignment carries detail in its own message.
var (
	// ErrOutOfBounds is returned when a cursor, heap index, or rid would
	// read or write past the end of its backing slice or table.
	ErrOutOfBounds = errors.New("clrmeta: out of bounds")

	// ErrMalformed is returned for encodings that do not follow their
	// grammar: bad compressed-integer prefixes, signature prolog/calling
	// convention mismatches, unknown stream names, duplicated streams,
	// invalid native-type tags, bad metadata root magic shape.
	ErrMalformed = errors.New("clrmeta: malformed encoding")

	// ErrNoCLRHeader is returned when a PE image has no COM_DESCRIPTOR data
	// directory entry, i.e. it is not a managed image.
	ErrNoCLRHeader = errors.New("clrmeta: no CLR header")

	// ErrBadMetadataRoot is returned when the metadata root's "BSJB"
	// signature does not match.
	ErrBadMetadataRoot = errors.New("clrmeta: bad metadata root signature")

	// ErrRecursionLimit is returned when type-signature nesting exceeds
	// signatureDepthLimit (50); marshalling descriptors do not nest.
	ErrRecursionLimit = errors.New("clrmeta: recursion limit exceeded")

	// ErrInvalidModification is returned for builder misuse: a required
	// field left unset, a 1-based rid passed as 0, a reserved sentinel
	// value used where disallowed.
	ErrInvalidModification = errors.New("clrmeta: invalid modification")

	// ErrValidationFailed is returned when one or more validators reported
	// an error; see ValidationReport for the individual outcomes.
	ErrValidationFailed = errors.New("clrmeta: validation failed")

	// ErrDanglingReference is returned by the fail_if_referenced removal
	// strategy when a surviving row still points at a removed heap entry
	// or table row.
	ErrDanglingReference = errors.New("clrmeta: dangling reference to removed entry")

	// ErrHeapShrink is returned when a heap modification's new encoding is
	// larger or smaller than the slot it is replacing; only same-size in-place
	// modifications are supported, per the heap contract in spec.md §9.
	ErrHeapShrink = errors.New("clrmeta: in-place heap modification would change encoded size")
)
