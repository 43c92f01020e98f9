package hl7

import "strings"

// fieldKind distinguishes ordinary fields from the two fixed-width header
// fields, which are never subject to delimiter splitting.
type fieldKind int

const (
	fieldNormal fieldKind = iota
	fieldDelimiter
	fieldEncoding
)

// Field is a cursor element at field depth.
type Field struct {
	cursorNode
	kind     fieldKind
	reps     *childCache[*Repetition]
	split    []string
	splitGen uint64
}

func newField(src valueSource, index int, kind fieldKind) *Field {
	return &Field{
		cursorNode: cursorNode{src: src, index: index},
		kind:       kind,
		reps:       newChildCache[*Repetition](),
	}
}

func (f *Field) pieces() []string {
	if g := f.src.generation(); f.splitGen != g {
		f.split = splitPieces(f.rawValue(), f.enc().Repetition)
		f.splitGen = g
	}
	return f.split
}

func (f *Field) childValue(index int) string {
	p := f.pieces()
	if index >= 1 && index <= len(p) {
		return p[index-1]
	}
	return ""
}

func (f *Field) childCount() int { return len(f.pieces()) }

func (f *Field) setChildValue(index int, v string) error {
	p := append([]string(nil), f.pieces()...)
	for len(p) < index {
		p = append(p, "")
	}
	p[index-1] = v
	return f.setValue(strings.Join(p, string(f.enc().Repetition)))
}

func (f *Field) encoding() *Encoding { return f.enc() }
func (f *Field) generation() uint64  { return f.src.generation() }

// Repetition returns the cursor element for a 1-based repetition. The fixed
// header fields have no repetitions.
func (f *Field) Repetition(index int) (*Repetition, error) {
	if f.kind != fieldNormal {
		return nil, ErrFixedFieldIndivisible
	}
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return f.reps.get(index, func(i int) *Repetition {
		return newRepetition(f, i)
	}), nil
}

// Value returns the field's text; the explicit-null sentinel reads as "".
func (f *Field) Value() string { return nullMapped(f.rawValue()) }

// Exists reports whether the field is materialized and non-null.
func (f *Field) Exists() bool { return f.present() && !isNull(f.rawValue()) }

// ValueCount returns the repetition count, or the character count for the
// encoding-characters field.
func (f *Field) ValueCount() int {
	switch f.kind {
	case fieldDelimiter:
		return 1
	case fieldEncoding:
		return len(f.rawValue())
	}
	return f.childCount()
}

// Values returns repetition values; the encoding-characters field yields
// one single-character string per position.
func (f *Field) Values() []string {
	switch f.kind {
	case fieldDelimiter:
		return []string{f.Value()}
	case fieldEncoding:
		raw := f.rawValue()
		return sequence{
			get:   func(i int) string { return raw[i-1 : i] },
			count: func() int { return len(raw) },
			base:  1,
		}.Strings()
	}
	return sequence{get: f.childValue, count: f.childCount, base: 1}.Strings()
}

// Delimiter returns the repetition separator, or 0 for fixed fields.
func (f *Field) Delimiter() byte {
	if f.kind != fieldNormal {
		return 0
	}
	return f.enc().Repetition
}

// SetValue replaces the field's text. On the header segment, field 1
// replaces the message's field delimiter and field 2 the encoding
// characters.
func (f *Field) SetValue(v string) error { return f.setValue(v) }

// Detach clones the field onto a private text copy with a frozen encoding
// snapshot.
func (f *Field) Detach() *Field {
	d := newField(newDetachedOwner(f.rawValue(), f.enc().Clone()), 1, f.kind)
	return d
}

// Repetition is a cursor element at repetition depth.
type Repetition struct {
	cursorNode
	comps    *childCache[*Component]
	split    []string
	splitGen uint64
}

func newRepetition(src valueSource, index int) *Repetition {
	return &Repetition{
		cursorNode: cursorNode{src: src, index: index},
		comps:      newChildCache[*Component](),
	}
}

func (r *Repetition) pieces() []string {
	if g := r.src.generation(); r.splitGen != g {
		r.split = splitPieces(r.rawValue(), r.enc().Component)
		r.splitGen = g
	}
	return r.split
}

func (r *Repetition) childValue(index int) string {
	p := r.pieces()
	if index >= 1 && index <= len(p) {
		return p[index-1]
	}
	return ""
}

func (r *Repetition) childCount() int { return len(r.pieces()) }

func (r *Repetition) setChildValue(index int, v string) error {
	p := append([]string(nil), r.pieces()...)
	for len(p) < index {
		p = append(p, "")
	}
	p[index-1] = v
	return r.setValue(strings.Join(p, string(r.enc().Component)))
}

func (r *Repetition) encoding() *Encoding { return r.enc() }
func (r *Repetition) generation() uint64  { return r.src.generation() }

// Component returns the cursor element for a 1-based component.
func (r *Repetition) Component(index int) (*Component, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return r.comps.get(index, func(i int) *Component {
		return newComponent(r, i)
	}), nil
}

// Value returns the repetition's text; the explicit-null sentinel reads
// as "".
func (r *Repetition) Value() string { return nullMapped(r.rawValue()) }

// Exists reports whether the repetition is materialized and non-null.
func (r *Repetition) Exists() bool { return r.present() && !isNull(r.rawValue()) }

// ValueCount returns the component count.
func (r *Repetition) ValueCount() int { return r.childCount() }

// Values returns component values.
func (r *Repetition) Values() []string {
	return sequence{get: r.childValue, count: r.childCount, base: 1}.Strings()
}

// Delimiter returns the component separator.
func (r *Repetition) Delimiter() byte { return r.enc().Component }

// SetValue replaces the repetition's text.
func (r *Repetition) SetValue(v string) error { return r.setValue(v) }

// Detach clones the repetition onto a private text copy with a frozen
// encoding snapshot.
func (r *Repetition) Detach() *Repetition {
	return newRepetition(newDetachedOwner(r.rawValue(), r.enc().Clone()), 1)
}

var (
	_ Element     = (*Field)(nil)
	_ Element     = (*Repetition)(nil)
	_ valueSource = (*Field)(nil)
	_ valueSource = (*Repetition)(nil)
)
