package hl7

// ComponentBuilder is a builder node at component depth.
type ComponentBuilder struct {
	rep   *RepetitionBuilder
	index int
	subs  *childCache[*SubcomponentBuilder]
	count int
}

func newComponentBuilder(rep *RepetitionBuilder, index int) *ComponentBuilder {
	return &ComponentBuilder{
		rep:   rep,
		index: index,
		subs:  newChildCache[*SubcomponentBuilder](),
	}
}

func (c *ComponentBuilder) enc() *Encoding { return c.rep.enc() }

func (c *ComponentBuilder) childAssigned(index int) {
	if index > c.count {
		c.count = index
	}
	c.rep.childAssigned(c.index)
}

func (c *ComponentBuilder) subRaw(index int) string {
	if s, ok := c.subs.peek(index); ok {
		return s.raw()
	}
	return ""
}

func (c *ComponentBuilder) raw() string {
	return sequence{
		get:   c.subRaw,
		count: func() int { return c.count },
		base:  1,
	}.Join(string(c.enc().Subcomponent))
}

// Subcomponent returns the builder for a 1-based subcomponent, creating it
// on first address.
func (c *ComponentBuilder) Subcomponent(index int) (*SubcomponentBuilder, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return c.subs.get(index, func(i int) *SubcomponentBuilder {
		return newSubcomponentBuilder(c, i)
	}), nil
}

func (c *ComponentBuilder) setChild(index int, v string) error {
	s, err := c.Subcomponent(index)
	if err != nil {
		return err
	}
	return s.SetValue(v)
}

// SetValue replaces the whole component: cached subcomponents are dropped
// and the split text redistributed.
func (c *ComponentBuilder) SetValue(v string) error {
	c.subs.clear()
	c.count = 0
	for i, piece := range splitPieces(v, c.enc().Subcomponent) {
		if err := c.setChild(i+1, piece); err != nil {
			return err
		}
	}
	return nil
}

// SetValues assigns consecutive subcomponent values beginning at start;
// subcomponents below start are untouched.
func (c *ComponentBuilder) SetValues(start int, values ...string) error {
	if err := checkIndex(start, 1); err != nil {
		return err
	}
	return assignSequence(start, values, c.setChild)
}

// Value returns the component's rendered text; the explicit-null sentinel
// reads as "".
func (c *ComponentBuilder) Value() string { return nullMapped(c.raw()) }

// Exists reports whether the component has been assigned and is non-null.
func (c *ComponentBuilder) Exists() bool { return c.count > 0 && !isNull(c.raw()) }

// ValueCount returns the highest assigned subcomponent index.
func (c *ComponentBuilder) ValueCount() int { return c.count }

// Values returns subcomponent values in ascending index order.
func (c *ComponentBuilder) Values() []string {
	return sequence{
		get:   c.subRaw,
		count: func() int { return c.count },
		base:  1,
	}.Strings()
}

// Delimiter returns the subcomponent separator.
func (c *ComponentBuilder) Delimiter() byte { return c.enc().Subcomponent }

// SubcomponentBuilder is the leaf builder node; it stores its text directly.
type SubcomponentBuilder struct {
	comp  *ComponentBuilder
	index int
	val   string
	set   bool
}

func newSubcomponentBuilder(comp *ComponentBuilder, index int) *SubcomponentBuilder {
	return &SubcomponentBuilder{comp: comp, index: index}
}

func (s *SubcomponentBuilder) raw() string { return s.val }

// SetValue stores the leaf's text and marks the ancestor chain assigned.
func (s *SubcomponentBuilder) SetValue(v string) error {
	s.val = v
	s.set = true
	s.comp.childAssigned(s.index)
	return nil
}

// Value returns the leaf's text; the explicit-null sentinel reads as "".
func (s *SubcomponentBuilder) Value() string { return nullMapped(s.val) }

// Exists reports whether the leaf has been assigned and is non-null.
func (s *SubcomponentBuilder) Exists() bool { return s.set && !isNull(s.val) }

// ValueCount is always 1 for a leaf.
func (s *SubcomponentBuilder) ValueCount() int { return 1 }

// Values returns the leaf's own value as a single-element slice.
func (s *SubcomponentBuilder) Values() []string { return []string{s.Value()} }

// Delimiter returns 0; leaves do not split further.
func (s *SubcomponentBuilder) Delimiter() byte { return 0 }

var (
	_ Element = (*ComponentBuilder)(nil)
	_ Element = (*SubcomponentBuilder)(nil)
)
