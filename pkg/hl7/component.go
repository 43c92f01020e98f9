package hl7

import "strings"

// Component is a cursor element at component depth.
type Component struct {
	cursorNode
	subs     *childCache[*Subcomponent]
	split    []string
	splitGen uint64
}

func newComponent(src valueSource, index int) *Component {
	return &Component{
		cursorNode: cursorNode{src: src, index: index},
		subs:       newChildCache[*Subcomponent](),
	}
}

func (c *Component) pieces() []string {
	if g := c.src.generation(); c.splitGen != g {
		c.split = splitPieces(c.rawValue(), c.enc().Subcomponent)
		c.splitGen = g
	}
	return c.split
}

func (c *Component) childValue(index int) string {
	p := c.pieces()
	if index >= 1 && index <= len(p) {
		return p[index-1]
	}
	return ""
}

func (c *Component) childCount() int { return len(c.pieces()) }

func (c *Component) setChildValue(index int, v string) error {
	p := append([]string(nil), c.pieces()...)
	for len(p) < index {
		p = append(p, "")
	}
	p[index-1] = v
	return c.setValue(strings.Join(p, string(c.enc().Subcomponent)))
}

func (c *Component) encoding() *Encoding { return c.enc() }
func (c *Component) generation() uint64  { return c.src.generation() }

// Subcomponent returns the cursor element for a 1-based subcomponent.
func (c *Component) Subcomponent(index int) (*Subcomponent, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return c.subs.get(index, func(i int) *Subcomponent {
		return newSubcomponent(c, i)
	}), nil
}

// Value returns the component's text; the explicit-null sentinel reads
// as "".
func (c *Component) Value() string { return nullMapped(c.rawValue()) }

// Exists reports whether the component is materialized and non-null.
func (c *Component) Exists() bool { return c.present() && !isNull(c.rawValue()) }

// ValueCount returns the subcomponent count.
func (c *Component) ValueCount() int { return c.childCount() }

// Values returns subcomponent values.
func (c *Component) Values() []string {
	return sequence{get: c.childValue, count: c.childCount, base: 1}.Strings()
}

// Delimiter returns the subcomponent separator.
func (c *Component) Delimiter() byte { return c.enc().Subcomponent }

// SetValue replaces the component's text.
func (c *Component) SetValue(v string) error { return c.setValue(v) }

// Detach clones the component onto a private text copy with a frozen
// encoding snapshot.
func (c *Component) Detach() *Component {
	return newComponent(newDetachedOwner(c.rawValue(), c.enc().Clone()), 1)
}

// Subcomponent is the leaf cursor element. It has no children and no
// delimiter of its own.
type Subcomponent struct {
	cursorNode
}

func newSubcomponent(src valueSource, index int) *Subcomponent {
	return &Subcomponent{cursorNode: cursorNode{src: src, index: index}}
}

// Value returns the subcomponent's text; the explicit-null sentinel reads
// as "".
func (s *Subcomponent) Value() string { return nullMapped(s.rawValue()) }

// Exists reports whether the subcomponent is materialized and non-null.
func (s *Subcomponent) Exists() bool { return s.present() && !isNull(s.rawValue()) }

// ValueCount is always 1 for a leaf.
func (s *Subcomponent) ValueCount() int { return 1 }

// Values returns the leaf's own value as a single-element slice.
func (s *Subcomponent) Values() []string { return []string{s.Value()} }

// Delimiter returns 0; leaves do not split further.
func (s *Subcomponent) Delimiter() byte { return 0 }

// SetValue replaces the subcomponent's text.
func (s *Subcomponent) SetValue(v string) error { return s.setValue(v) }

// Detach clones the subcomponent onto a private text copy with a frozen
// encoding snapshot.
func (s *Subcomponent) Detach() *Subcomponent {
	return newSubcomponent(newDetachedOwner(s.rawValue(), s.enc().Clone()), 1)
}

var (
	_ Element     = (*Component)(nil)
	_ Element     = (*Subcomponent)(nil)
	_ valueSource = (*Component)(nil)
)
