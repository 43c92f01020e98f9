package hl7

import (
	"fmt"
	"strings"
)

// Segment is a cursor element at segment depth. Field index 0 addresses the
// segment identifier; on the header segment, field 1 is the field delimiter
// itself and field 2 the encoding-characters field, so content pieces are
// offset by two there.
type Segment struct {
	cursorNode
	fields   *childCache[*Field]
	split    []string
	splitGen uint64
}

func newSegment(src valueSource, index int) *Segment {
	return &Segment{
		cursorNode: cursorNode{src: src, index: index},
		fields:     newChildCache[*Field](),
	}
}

func (s *Segment) pieces() []string {
	if g := s.src.generation(); s.splitGen != g {
		s.split = splitPieces(s.rawValue(), s.enc().Field)
		s.splitGen = g
	}
	return s.split
}

// Name returns the segment identifier (field 0).
func (s *Segment) Name() string { return s.pieces()[0] }

func (s *Segment) isHeader() bool { return s.Name() == headerID }

func (s *Segment) childValue(index int) string {
	p := s.pieces()
	if s.isHeader() {
		switch {
		case index == 0:
			return p[0]
		case index == 1:
			return string(s.enc().Field)
		case index-1 < len(p):
			return p[index-1]
		}
		return ""
	}
	if index < len(p) {
		return p[index]
	}
	return ""
}

func (s *Segment) childCount() int {
	if s.isHeader() {
		return len(s.pieces())
	}
	return len(s.pieces()) - 1
}

func (s *Segment) setChildValue(index int, v string) error {
	hdr := s.isHeader()
	if hdr && index == 1 {
		if len(v) != 1 {
			return fmt.Errorf("hl7: field delimiter must be a single character, got %q", v)
		}
		return s.rewriteFieldDelimiter(v[0])
	}
	pos := index
	if hdr && index >= 2 {
		if index == 2 {
			s.enc().SetCharacters(v)
		}
		pos = index - 1
	}
	p := append([]string(nil), s.pieces()...)
	for len(p) <= pos {
		p = append(p, "")
	}
	p[pos] = v
	// A header-ness flip on the identifier changes the field index mapping,
	// so cached field handles are dropped.
	if index == 0 && (v == headerID) != hdr {
		s.fields.clear()
	}
	return s.setValue(strings.Join(p, string(s.enc().Field)))
}

func (s *Segment) rewriteFieldDelimiter(neu byte) error {
	if rw, ok := s.src.(fieldDelimiterRewriter); ok {
		return rw.rewriteFieldDelimiter(neu)
	}
	return fmt.Errorf("hl7: field delimiter cannot be rewritten for this element")
}

func (s *Segment) encoding() *Encoding { return s.enc() }
func (s *Segment) generation() uint64  { return s.src.generation() }

// Field returns the cursor element for a field index (0 addresses the
// identifier). On the header segment, fields 1 and 2 carry fixed delimiter
// semantics.
func (s *Segment) Field(index int) (*Field, error) {
	if err := checkIndex(index, 0); err != nil {
		return nil, err
	}
	return s.fields.get(index, func(i int) *Field {
		kind := fieldNormal
		if s.isHeader() {
			switch i {
			case 1:
				kind = fieldDelimiter
			case 2:
				kind = fieldEncoding
			}
		}
		return newField(s, i, kind)
	}), nil
}

// Value returns the segment's text; the explicit-null sentinel reads as "".
func (s *Segment) Value() string { return nullMapped(s.rawValue()) }

// Exists reports whether the segment is materialized and non-null.
func (s *Segment) Exists() bool { return s.present() && !isNull(s.rawValue()) }

// ValueCount returns the highest field index present.
func (s *Segment) ValueCount() int { return s.childCount() }

// Values returns field values starting at the identifier (index 0).
func (s *Segment) Values() []string {
	return sequence{
		get:   s.childValue,
		count: func() int { return s.childCount() + 1 },
		base:  0,
	}.Strings()
}

// Delimiter returns the field separator.
func (s *Segment) Delimiter() byte { return s.enc().Field }

// SetValue replaces the segment's text, regenerating ancestor text.
func (s *Segment) SetValue(v string) error { return s.setValue(v) }

// Detach clones the segment onto a private text copy with a frozen encoding
// snapshot, severing the ancestor link.
func (s *Segment) Detach() *Segment {
	return newSegment(newDetachedOwner(s.rawValue(), s.enc().Clone()), 1)
}

var (
	_ Element     = (*Segment)(nil)
	_ valueSource = (*Segment)(nil)
)
