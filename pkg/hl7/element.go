// Package hl7 implements a dual element-addressing engine for HL7v2
// messages. A message is a six-level delimited text tree (message, segment,
// field, repetition, component, subcomponent) addressed by numeric
// coordinates. Two models expose the same contract: Message is a
// lazily-materialized cursor over received text, optimized for reads, and
// MessageBuilder is an eagerly-indexed tree optimized for piecewise
// construction and mutation. Both serialize back to byte-exact wire form.
package hl7

import (
	"fmt"
	"strings"
)

// headerID identifies the mandatory first segment.
const headerID = "MSH"

// Element is the capability shared by every node of both tree models.
type Element interface {
	// Value returns the node's text: leaf content, or descendants joined by
	// this node's delimiter. The HL7 explicit-null sentinel reads as "".
	Value() string
	// Exists reports whether the value is non-null. An empty-but-present
	// value exists; the "" sentinel and absent content do not.
	Exists() bool
	// Values returns one entry per addressable immediate child.
	Values() []string
	// ValueCount returns the highest child index assigned or present.
	ValueCount() int
	// Delimiter returns the separator joining this node's children, or 0 at
	// subcomponent depth and for fixed-width header fields.
	Delimiter() byte
}

// MessageReader is the read half of the coordinate addressing contract,
// satisfied by both *Message and *MessageBuilder. Coordinates are
// (segment, field, repetition, component, subcomponent); omitted trailing
// coordinates stop descent at the last addressed node.
type MessageReader interface {
	Get(coords ...int) (string, error)
	GetAll(coords ...int) ([]string, error)
	Value() string
}

// isNull reports whether a fully-resolved value is the explicit-null
// sentinel.
func isNull(v string) bool {
	return v == NullValue
}

// nullMapped translates the explicit-null sentinel to an empty string for
// value accessors. Serialization paths keep the raw text so the sentinel
// round-trips byte-exactly.
func nullMapped(v string) string {
	if isNull(v) {
		return ""
	}
	return v
}

// normalizeTerminators rewrites CRLF and bare LF segment separators to CR
// and trims trailing terminators.
func normalizeTerminators(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	return strings.TrimRight(text, "\r")
}

// validateMessageText applies the construction checks shared by Parse and
// SetMessage. Delimiter irregularities past the header never fail; only the
// three fatal conditions below do.
func validateMessageText(text string) error {
	if text == "" {
		return ErrMessageDataEmpty
	}
	if len(text) < 8 {
		return ErrMessageDataTooShort
	}
	if !strings.HasPrefix(text, headerID) {
		return ErrMessageMissingMSH
	}
	return nil
}

// checkIndex validates a child index against the depth's minimum: 0 for a
// segment's field indices (field 0 is the segment identifier), 1 everywhere
// else.
func checkIndex(index, min int) error {
	if index < min {
		return fmt.Errorf("%w: %d", ErrElementIndexOutOfRange, index)
	}
	return nil
}

// splitPieces splits raw on a single-byte delimiter. A zero delimiter means
// no further division.
func splitPieces(raw string, delim byte) []string {
	if delim == 0 {
		return []string{raw}
	}
	return strings.Split(raw, string(delim))
}
