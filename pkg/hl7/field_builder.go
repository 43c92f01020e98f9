package hl7

import "fmt"

// FieldBuilder is a builder node at field depth. Its behavior depends on
// where it sits: on the header segment, index 1 is the field delimiter and
// index 2 the fixed-width encoding-characters field; both are backed by the
// tree's delimiter set rather than by child storage, and neither can be
// subdivided. The kind is looked up live so a held handle stays correct
// when the segment identifier changes.
type FieldBuilder struct {
	seg   *SegmentBuilder
	index int
	reps  *childCache[*RepetitionBuilder]
	count int
}

func newFieldBuilder(seg *SegmentBuilder, index int) *FieldBuilder {
	return &FieldBuilder{
		seg:   seg,
		index: index,
		reps:  newChildCache[*RepetitionBuilder](),
	}
}

func (f *FieldBuilder) enc() *Encoding { return f.seg.enc() }

func (f *FieldBuilder) kind() fieldKind {
	// checking the index first keeps field 0 from recursing through
	// isHeader, which reads field 0
	if f.index != 1 && f.index != 2 {
		return fieldNormal
	}
	if !f.seg.isHeader() {
		return fieldNormal
	}
	if f.index == 1 {
		return fieldDelimiter
	}
	return fieldEncoding
}

func (f *FieldBuilder) childAssigned(index int) {
	if index > f.count {
		f.count = index
	}
	f.seg.childAssigned(f.index)
}

func (f *FieldBuilder) repRaw(index int) string {
	if r, ok := f.reps.peek(index); ok {
		return r.raw()
	}
	return ""
}

func (f *FieldBuilder) assigned() bool {
	switch f.kind() {
	case fieldDelimiter, fieldEncoding:
		return true
	}
	return f.count > 0
}

func (f *FieldBuilder) raw() string {
	switch f.kind() {
	case fieldDelimiter:
		return string(f.enc().Field)
	case fieldEncoding:
		return f.enc().Characters()
	}
	return sequence{
		get:   f.repRaw,
		count: func() int { return f.count },
		base:  1,
	}.Join(string(f.enc().Repetition))
}

// Repetition returns the builder for a 1-based repetition, creating it on
// first address. The fixed header fields have no repetitions.
func (f *FieldBuilder) Repetition(index int) (*RepetitionBuilder, error) {
	if f.kind() != fieldNormal {
		return nil, ErrFixedFieldIndivisible
	}
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return f.reps.get(index, func(i int) *RepetitionBuilder {
		return newRepetitionBuilder(f, i)
	}), nil
}

func (f *FieldBuilder) setChild(index int, v string) error {
	r, err := f.Repetition(index)
	if err != nil {
		return err
	}
	return r.SetValue(v)
}

// SetValue replaces the whole field. On the header segment, index 1 takes
// a single character that becomes the field delimiter, and index 2 assigns
// the encoding characters; other fields drop their cached repetitions and
// redistribute the split text.
func (f *FieldBuilder) SetValue(v string) error {
	switch f.kind() {
	case fieldDelimiter:
		if len(v) != 1 {
			return fmt.Errorf("hl7: field delimiter must be a single character, got %q", v)
		}
		f.enc().Field = v[0]
		f.seg.childAssigned(f.index)
		return nil
	case fieldEncoding:
		f.enc().SetCharacters(v)
		f.seg.childAssigned(f.index)
		return nil
	}
	f.reps.clear()
	f.count = 0
	for i, piece := range splitPieces(v, f.enc().Repetition) {
		if err := f.setChild(i+1, piece); err != nil {
			return err
		}
	}
	return nil
}

// SetValues assigns consecutive repetition values beginning at start;
// repetitions below start are untouched.
func (f *FieldBuilder) SetValues(start int, values ...string) error {
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, f.setChild)
}

// Value returns the field's rendered text; the explicit-null sentinel
// reads as "".
func (f *FieldBuilder) Value() string { return nullMapped(f.raw()) }

// Exists reports whether the field has been assigned and is non-null.
func (f *FieldBuilder) Exists() bool { return f.assigned() && !isNull(f.raw()) }

// ValueCount returns the repetition count, or the character count for the
// encoding-characters field.
func (f *FieldBuilder) ValueCount() int {
	switch f.kind() {
	case fieldDelimiter:
		return 1
	case fieldEncoding:
		return len(f.raw())
	}
	return f.count
}

// Values returns repetition values; the encoding-characters field yields
// one single-character string per position.
func (f *FieldBuilder) Values() []string {
	switch f.kind() {
	case fieldDelimiter:
		return []string{f.Value()}
	case fieldEncoding:
		raw := f.raw()
		return sequence{
			get:   func(i int) string { return raw[i-1 : i] },
			count: func() int { return len(raw) },
			base:  1,
		}.Strings()
	}
	return sequence{
		get:   f.repRaw,
		count: func() int { return f.count },
		base:  1,
	}.Strings()
}

// Delimiter returns the repetition separator, or 0 for fixed fields.
func (f *FieldBuilder) Delimiter() byte {
	if f.kind() != fieldNormal {
		return 0
	}
	return f.enc().Repetition
}

// RepetitionBuilder is a builder node at repetition depth.
type RepetitionBuilder struct {
	field *FieldBuilder
	index int
	comps *childCache[*ComponentBuilder]
	count int
}

func newRepetitionBuilder(field *FieldBuilder, index int) *RepetitionBuilder {
	return &RepetitionBuilder{
		field: field,
		index: index,
		comps: newChildCache[*ComponentBuilder](),
	}
}

func (r *RepetitionBuilder) enc() *Encoding { return r.field.enc() }

func (r *RepetitionBuilder) childAssigned(index int) {
	if index > r.count {
		r.count = index
	}
	r.field.childAssigned(r.index)
}

func (r *RepetitionBuilder) compRaw(index int) string {
	if c, ok := r.comps.peek(index); ok {
		return c.raw()
	}
	return ""
}

func (r *RepetitionBuilder) raw() string {
	return sequence{
		get:   r.compRaw,
		count: func() int { return r.count },
		base:  1,
	}.Join(string(r.enc().Component))
}

// Component returns the builder for a 1-based component, creating it on
// first address.
func (r *RepetitionBuilder) Component(index int) (*ComponentBuilder, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return r.comps.get(index, func(i int) *ComponentBuilder {
		return newComponentBuilder(r, i)
	}), nil
}

func (r *RepetitionBuilder) setChild(index int, v string) error {
	c, err := r.Component(index)
	if err != nil {
		return err
	}
	return c.SetValue(v)
}

// SetValue replaces the whole repetition: cached components are dropped and
// the split text redistributed.
func (r *RepetitionBuilder) SetValue(v string) error {
	r.comps.clear()
	r.count = 0
	for i, piece := range splitPieces(v, r.enc().Component) {
		if err := r.setChild(i+1, piece); err != nil {
			return err
		}
	}
	return nil
}

// SetValues assigns consecutive component values beginning at start;
// components below start are untouched.
func (r *RepetitionBuilder) SetValues(start int, values ...string) error {
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, r.setChild)
}

// Value returns the repetition's rendered text; the explicit-null sentinel
// reads as "".
func (r *RepetitionBuilder) Value() string { return nullMapped(r.raw()) }

// Exists reports whether the repetition has been assigned and is non-null.
func (r *RepetitionBuilder) Exists() bool { return r.count > 0 && !isNull(r.raw()) }

// ValueCount returns the highest assigned component index.
func (r *RepetitionBuilder) ValueCount() int { return r.count }

// Values returns component values in ascending index order.
func (r *RepetitionBuilder) Values() []string {
	return sequence{
		get:   r.compRaw,
		count: func() int { return r.count },
		base:  1,
	}.Strings()
}

// Delimiter returns the component separator.
func (r *RepetitionBuilder) Delimiter() byte { return r.enc().Component }

var (
	_ Element = (*FieldBuilder)(nil)
	_ Element = (*RepetitionBuilder)(nil)
)
