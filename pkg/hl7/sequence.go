package hl7

import "strings"

// sequence is a projected view over an ordered range of child values. It
// reads and writes through per-index callbacks instead of materializing a
// collection, so enumeration always reflects the current tree state and a
// fresh pass re-invokes the getter.
type sequence struct {
	get   func(index int) string
	set   func(index int, value string)
	count func() int
	base  int // 1 everywhere except segment children, which start at 0
}

// Len returns the number of addressable values in the view.
func (s sequence) Len() int {
	return s.count()
}

// At returns the value at the view's i'th position (0-based within the view;
// the underlying element index is base+i).
func (s sequence) At(i int) string {
	return s.get(s.base + i)
}

// Each invokes fn for every position in order, stopping early when fn
// returns false.
func (s sequence) Each(fn func(i int, value string) bool) {
	n := s.count()
	for i := 0; i < n; i++ {
		if !fn(i, s.get(s.base+i)) {
			return
		}
	}
}

// Strings materializes the view into a slice.
func (s sequence) Strings() []string {
	n := s.count()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = s.get(s.base + i)
	}
	return out
}

// Join concatenates every position in order with sep between them.
func (s sequence) Join(sep string) string {
	var b strings.Builder
	n := s.count()
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s.get(s.base + i))
	}
	return b.String()
}

// Assign writes the supplied values to consecutive positions starting at the
// view's base, extending the addressable range as needed. Positions beyond
// the supplied values are left untouched.
func (s sequence) Assign(values ...string) {
	if s.set == nil {
		return
	}
	for i, v := range values {
		s.set(s.base+i, v)
	}
}
