package hl7

import (
	"fmt"
	"strings"
)

// MessageBuilder is the mutation-optimized message tree. Unlike the cursor
// tree, which derives children from source text, a builder node owns an
// indexed cache of child builders and stores values decomposed to the
// subcomponent level. Writing at any depth splits the value into children;
// reading joins children back together in ascending index order.
//
// Addressing an index reserves a handle without extending ValueCount;
// only writes extend the rendered range.
type MessageBuilder struct {
	enc   *Encoding
	segs  *childCache[*SegmentBuilder]
	count int
}

// NewMessageBuilder returns an empty builder with the default delimiter set.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		enc:  DefaultEncoding(),
		segs: newChildCache[*SegmentBuilder](),
	}
}

// NewMessageBuilderFrom returns a builder seeded from existing message text.
func NewMessageBuilderFrom(text string) (*MessageBuilder, error) {
	b := NewMessageBuilder()
	if err := b.SetMessage(text); err != nil {
		return nil, err
	}
	return b, nil
}

// Encoding returns the delimiter set shared by the whole tree.
func (b *MessageBuilder) Encoding() *Encoding { return b.enc }

func (b *MessageBuilder) childAssigned(index int) {
	if index > b.count {
		b.count = index
	}
}

func (b *MessageBuilder) segmentRaw(index int) string {
	if s, ok := b.segs.peek(index); ok {
		return s.raw()
	}
	return ""
}

// Segment returns the builder for a 1-based segment, creating it on first
// address.
func (b *MessageBuilder) Segment(index int) (*SegmentBuilder, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return b.segs.get(index, func(i int) *SegmentBuilder {
		return newSegmentBuilder(b, i)
	}), nil
}

// Segments returns the assigned segment builders in ascending index order.
func (b *MessageBuilder) Segments() []*SegmentBuilder {
	indices := b.segs.indices()
	out := make([]*SegmentBuilder, 0, len(indices))
	for _, i := range indices {
		if s, ok := b.segs.peek(i); ok && s.assigned() {
			out = append(out, s)
		}
	}
	return out
}

// SetMessage replaces the whole tree from message text. The text is
// validated first; on failure the builder keeps its prior state. On success
// the five delimiters are re-derived from the header, all cached segments
// are dropped, segment terminators are normalized to carriage returns, and
// each resulting segment is assigned 1-based.
func (b *MessageBuilder) SetMessage(text string) error {
	normalized := normalizeTerminators(text)
	if err := validateMessageText(normalized); err != nil {
		return err
	}
	*b.enc = *encodingFromHeader(normalized)
	b.segs.clear()
	b.count = 0
	for i, raw := range strings.Split(normalized, string(SegmentDelimiter)) {
		seg, err := b.Segment(i + 1)
		if err != nil {
			return err
		}
		if err := seg.SetValue(raw); err != nil {
			return err
		}
	}
	return nil
}

// SetSegment assigns the full text of one segment.
func (b *MessageBuilder) SetSegment(seg int, value string) error {
	s, err := b.Segment(seg)
	if err != nil {
		return err
	}
	return s.SetValue(value)
}

// SetSegments assigns consecutive segment values beginning at start;
// segments below start are untouched.
func (b *MessageBuilder) SetSegments(start int, values ...string) error {
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, func(i int, v string) error {
		return b.SetSegment(i, v)
	})
}

// SetField assigns the full text of one field.
func (b *MessageBuilder) SetField(seg, field int, value string) error {
	s, err := b.Segment(seg)
	if err != nil {
		return err
	}
	return s.setChild(field, value)
}

// SetFields assigns consecutive field values beginning at start; fields
// below start are untouched.
func (b *MessageBuilder) SetFields(seg, start int, values ...string) error {
	s, err := b.Segment(seg)
	if err != nil {
		return err
	}
	if err := checkIndex(start, 0); err != nil {
		return err
	}
	return assignSequence(start, values, s.setChild)
}

// SetFieldRepetition assigns the full text of one field repetition.
func (b *MessageBuilder) SetFieldRepetition(seg, field, rep int, value string) error {
	f, err := b.field(seg, field)
	if err != nil {
		return err
	}
	return f.setChild(rep, value)
}

// SetFieldRepetitions assigns consecutive repetition values beginning at
// start; repetitions below start are untouched.
func (b *MessageBuilder) SetFieldRepetitions(seg, field, start int, values ...string) error {
	f, err := b.field(seg, field)
	if err != nil {
		return err
	}
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, f.setChild)
}

// SetComponent assigns the full text of one component.
func (b *MessageBuilder) SetComponent(seg, field, rep, comp int, value string) error {
	r, err := b.repetition(seg, field, rep)
	if err != nil {
		return err
	}
	return r.setChild(comp, value)
}

// SetComponents assigns consecutive component values beginning at start;
// components below start are untouched.
func (b *MessageBuilder) SetComponents(seg, field, rep, start int, values ...string) error {
	r, err := b.repetition(seg, field, rep)
	if err != nil {
		return err
	}
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, r.setChild)
}

// SetSubcomponent assigns one subcomponent.
func (b *MessageBuilder) SetSubcomponent(seg, field, rep, comp, sub int, value string) error {
	c, err := b.component(seg, field, rep, comp)
	if err != nil {
		return err
	}
	return c.setChild(sub, value)
}

// SetSubcomponents assigns consecutive subcomponent values beginning at
// start; subcomponents below start are untouched.
func (b *MessageBuilder) SetSubcomponents(seg, field, rep, comp, start int, values ...string) error {
	c, err := b.component(seg, field, rep, comp)
	if err != nil {
		return err
	}
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, c.setChild)
}

func (b *MessageBuilder) field(seg, field int) (*FieldBuilder, error) {
	s, err := b.Segment(seg)
	if err != nil {
		return nil, err
	}
	return s.Field(field)
}

func (b *MessageBuilder) repetition(seg, field, rep int) (*RepetitionBuilder, error) {
	f, err := b.field(seg, field)
	if err != nil {
		return nil, err
	}
	return f.Repetition(rep)
}

func (b *MessageBuilder) component(seg, field, rep, comp int) (*ComponentBuilder, error) {
	r, err := b.repetition(seg, field, rep)
	if err != nil {
		return nil, err
	}
	return r.Component(comp)
}

// Value renders the wire form: segment values joined by the segment
// delimiter, ordered by index ascending regardless of assignment order.
func (b *MessageBuilder) Value() string {
	return sequence{
		get:   b.segmentRaw,
		count: func() int { return b.count },
		base:  1,
	}.Join(string(SegmentDelimiter))
}

// Exists reports whether any segment has been assigned.
func (b *MessageBuilder) Exists() bool { return b.count > 0 }

// ValueCount returns the highest assigned segment index.
func (b *MessageBuilder) ValueCount() int { return b.count }

// Values returns segment values in ascending index order.
func (b *MessageBuilder) Values() []string {
	return sequence{
		get:   b.segmentRaw,
		count: func() int { return b.count },
		base:  1,
	}.Strings()
}

// Delimiter returns the segment separator.
func (b *MessageBuilder) Delimiter() byte { return SegmentDelimiter }

// Clone reseeds a fully independent builder from the current serialized
// text; the clone shares no state with the original.
func (b *MessageBuilder) Clone() (*MessageBuilder, error) {
	return NewMessageBuilderFrom(b.Value())
}

func (b *MessageBuilder) element(coords []int) (Element, error) {
	if len(coords) == 0 {
		return b, nil
	}
	if len(coords) > 5 {
		return nil, fmt.Errorf("hl7: at most 5 coordinates, got %d", len(coords))
	}
	seg, err := b.Segment(coords[0])
	if err != nil {
		return nil, err
	}
	if len(coords) == 1 {
		return seg, nil
	}
	field, err := seg.Field(coords[1])
	if err != nil {
		return nil, err
	}
	if len(coords) == 2 {
		return field, nil
	}
	rep, err := field.Repetition(coords[2])
	if err != nil {
		return nil, err
	}
	if len(coords) == 3 {
		return rep, nil
	}
	comp, err := rep.Component(coords[3])
	if err != nil {
		return nil, err
	}
	if len(coords) == 4 {
		return comp, nil
	}
	sub, err := comp.Subcomponent(coords[4])
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns the joined value at the addressed depth; omitted trailing
// coordinates stop descent there. The explicit-null sentinel reads as "".
func (b *MessageBuilder) Get(coords ...int) (string, error) {
	el, err := b.element(coords)
	if err != nil {
		return "", err
	}
	return el.Value(), nil
}

// GetAll returns the values of the addressed node's immediate children.
func (b *MessageBuilder) GetAll(coords ...int) ([]string, error) {
	el, err := b.element(coords)
	if err != nil {
		return nil, err
	}
	return el.Values(), nil
}

// assignSequence writes consecutive values through set starting at base,
// capturing the first error.
func assignSequence(base int, values []string, set func(int, string) error) error {
	var firstErr error
	sequence{
		set: func(i int, v string) {
			if firstErr != nil {
				return
			}
			firstErr = set(i, v)
		},
		base: base,
	}.Assign(values...)
	return firstErr
}

// SegmentBuilder is a builder node at segment depth. Field 0 holds the
// segment identifier; on the header segment, field 1 is the field delimiter
// itself and field 2 the encoding-characters field.
type SegmentBuilder struct {
	msg    *MessageBuilder
	index  int
	fields *childCache[*FieldBuilder]
	count  int
}

func newSegmentBuilder(msg *MessageBuilder, index int) *SegmentBuilder {
	return &SegmentBuilder{
		msg:    msg,
		index:  index,
		fields: newChildCache[*FieldBuilder](),
	}
}

func (s *SegmentBuilder) enc() *Encoding { return s.msg.enc }

func (s *SegmentBuilder) isHeader() bool { return s.fieldRaw(0) == headerID }

func (s *SegmentBuilder) childAssigned(index int) {
	if index > s.count {
		s.count = index
	}
	s.msg.childAssigned(s.index)
}

func (s *SegmentBuilder) fieldRaw(index int) string {
	if f, ok := s.fields.peek(index); ok {
		return f.raw()
	}
	// index 0 must not consult isHeader, which reads field 0 itself
	if (index == 1 || index == 2) && s.isHeader() {
		if index == 1 {
			return string(s.enc().Field)
		}
		return s.enc().Characters()
	}
	return ""
}

func (s *SegmentBuilder) assigned() bool {
	if s.count > 0 {
		return true
	}
	f, ok := s.fields.peek(0)
	return ok && f.assigned()
}

// Name returns the segment identifier held at field 0.
func (s *SegmentBuilder) Name() string { return s.fieldRaw(0) }

// Field returns the builder for a field, creating it on first address.
// Index 0 addresses the segment identifier.
func (s *SegmentBuilder) Field(index int) (*FieldBuilder, error) {
	if err := checkIndex(index, 0); err != nil {
		return nil, err
	}
	return s.fields.get(index, func(i int) *FieldBuilder {
		return newFieldBuilder(s, i)
	}), nil
}

func (s *SegmentBuilder) setChild(index int, v string) error {
	f, err := s.Field(index)
	if err != nil {
		return err
	}
	return f.SetValue(v)
}

// SetValue replaces the whole segment from raw text: cached fields are
// dropped and the text is split and redistributed. Assigning header text to
// segment 1 re-derives the message's delimiter set first.
func (s *SegmentBuilder) SetValue(v string) error {
	if s.index == 1 && strings.HasPrefix(v, headerID) {
		*s.msg.enc = *encodingFromHeader(v)
	}
	s.fields.clear()
	s.count = 0
	pieces := splitPieces(v, s.enc().Field)
	if err := s.setChild(0, pieces[0]); err != nil {
		return err
	}
	header := pieces[0] == headerID
	for j := 1; j < len(pieces); j++ {
		index := j
		if header {
			// pieces after the identifier start at field 2; the field
			// delimiter occupies index 1 and is never a piece.
			index = j + 1
		}
		if err := s.setChild(index, pieces[j]); err != nil {
			return err
		}
	}
	return nil
}

// SetValues assigns consecutive field values beginning at start; fields
// below start are untouched. Index 0 addresses the segment identifier.
func (s *SegmentBuilder) SetValues(start int, values ...string) error {
	if err := checkIndex(start, 0); err != nil {
		return err
	}
	return assignSequence(start, values, s.setChild)
}

func (s *SegmentBuilder) raw() string {
	if !s.assigned() {
		return ""
	}
	delim := string(s.enc().Field)
	if s.isHeader() {
		parts := []string{s.fieldRaw(0)}
		if s.count == 1 {
			parts = append(parts, "")
		}
		for i := 2; i <= s.count; i++ {
			parts = append(parts, s.fieldRaw(i))
		}
		return strings.Join(parts, delim)
	}
	return sequence{
		get:   s.fieldRaw,
		count: func() int { return s.count + 1 },
		base:  0,
	}.Join(delim)
}

// Value returns the segment's rendered text; the explicit-null sentinel
// reads as "".
func (s *SegmentBuilder) Value() string { return nullMapped(s.raw()) }

// Exists reports whether the segment has been assigned and is non-null.
func (s *SegmentBuilder) Exists() bool { return s.assigned() && !isNull(s.raw()) }

// ValueCount returns the highest assigned field index.
func (s *SegmentBuilder) ValueCount() int { return s.count }

// Values returns field values from index 0 through the highest assigned
// index.
func (s *SegmentBuilder) Values() []string {
	return sequence{
		get:   s.fieldRaw,
		count: func() int { return s.count + 1 },
		base:  0,
	}.Strings()
}

// Delimiter returns the field separator.
func (s *SegmentBuilder) Delimiter() byte { return s.enc().Field }

var (
	_ Element       = (*MessageBuilder)(nil)
	_ MessageReader = (*MessageBuilder)(nil)
	_ Element       = (*SegmentBuilder)(nil)
)
