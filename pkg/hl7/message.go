package hl7

import (
	"fmt"
	"strings"
)

// valueSource is what a cursor node reads through. The ancestor (or a
// detached owner) supplies child slices of its own current text, accepts
// write-through replacements, and stamps a generation so descendants can
// invalidate memoized values after any write in the tree.
type valueSource interface {
	childValue(index int) string
	childCount() int
	setChildValue(index int, value string) error
	encoding() *Encoding
	generation() uint64
}

// fieldDelimiterRewriter is implemented by sources that can re-derive their
// whole text under a new field delimiter (writing header field 1).
type fieldDelimiterRewriter interface {
	rewriteFieldDelimiter(neu byte) error
}

// cursorNode is the state shared by every non-root cursor element: a source,
// the element's index in it, and a generation-stamped memo of its raw slice.
type cursorNode struct {
	src    valueSource
	index  int
	val    string
	valGen uint64
}

// rawValue returns the element's current raw text, recomputing from the
// source when any write has occurred since the last read.
func (n *cursorNode) rawValue() string {
	if g := n.src.generation(); n.valGen != g {
		n.val = n.src.childValue(n.index)
		n.valGen = g
	}
	return n.val
}

// present reports whether the element's index falls inside the source's
// materialized content.
func (n *cursorNode) present() bool {
	return n.index <= n.src.childCount()
}

func (n *cursorNode) setValue(v string) error {
	return n.src.setChildValue(n.index, v)
}

func (n *cursorNode) enc() *Encoding {
	return n.src.encoding()
}

// Index returns the element's 1-based position in its parent (0 addresses a
// segment identifier).
func (n *cursorNode) Index() int {
	return n.index
}

// detachedOwner roots an element cloned out of its source tree: it owns a
// private copy of the text and a frozen Encoding snapshot.
type detachedOwner struct {
	text string
	enc  *Encoding
	gen  uint64
}

func newDetachedOwner(text string, enc *Encoding) *detachedOwner {
	return &detachedOwner{text: text, enc: enc, gen: 1}
}

func (o *detachedOwner) childValue(int) string { return o.text }
func (o *detachedOwner) childCount() int       { return 1 }
func (o *detachedOwner) encoding() *Encoding   { return o.enc }
func (o *detachedOwner) generation() uint64    { return o.gen }

func (o *detachedOwner) setChildValue(_ int, v string) error {
	o.text = v
	o.gen++
	return nil
}

func (o *detachedOwner) rewriteFieldDelimiter(neu byte) error {
	old := o.enc.Field
	if old == neu {
		return nil
	}
	o.text = strings.ReplaceAll(o.text, string(old), string(neu))
	o.enc.Field = neu
	o.gen++
	return nil
}

// Message is the cursor model's root: a read-optimized view over received
// message text. Descendant elements slice the text lazily and share it;
// writes regenerate the ancestor chain's text rather than patching bytes.
type Message struct {
	text string
	enc  *Encoding
	gen  uint64

	segs     *childCache[*Segment]
	split    []string
	splitGen uint64
}

// Parse wraps message text in a cursor tree. It fails only on the three
// construction conditions (empty text, fewer than 8 characters, missing MSH
// prefix); delimiter irregularities never fail, they read as empty or extra
// indices. CRLF and LF separators are normalized to CR.
func Parse(text string) (*Message, error) {
	norm := normalizeTerminators(text)
	if err := validateMessageText(norm); err != nil {
		return nil, err
	}
	return &Message{
		text: norm,
		enc:  encodingFromHeader(norm),
		gen:  1,
		segs: newChildCache[*Segment](),
	}, nil
}

// Encoding exposes the delimiter set in effect for the tree.
func (m *Message) Encoding() *Encoding { return m.enc }

func (m *Message) pieces() []string {
	if m.splitGen != m.gen {
		m.split = splitPieces(m.text, SegmentDelimiter)
		m.splitGen = m.gen
	}
	return m.split
}

func (m *Message) childValue(index int) string {
	p := m.pieces()
	if index >= 1 && index <= len(p) {
		return p[index-1]
	}
	return ""
}

func (m *Message) childCount() int { return len(m.pieces()) }

func (m *Message) setChildValue(index int, v string) error {
	p := append([]string(nil), m.pieces()...)
	for len(p) < index {
		p = append(p, "")
	}
	p[index-1] = v
	// Writing the header segment re-derives the delimiter set it declares.
	if index == 1 && strings.HasPrefix(v, headerID) {
		*m.enc = *encodingFromHeader(v)
	}
	m.text = strings.Join(p, string(SegmentDelimiter))
	m.gen++
	return nil
}

func (m *Message) encoding() *Encoding { return m.enc }
func (m *Message) generation() uint64  { return m.gen }

func (m *Message) rewriteFieldDelimiter(neu byte) error {
	old := m.enc.Field
	if old == neu {
		return nil
	}
	// Every occurrence of the old delimiter is a separator by definition,
	// so a straight character rewrite is the re-join.
	m.text = strings.ReplaceAll(m.text, string(old), string(neu))
	m.enc.Field = neu
	m.gen++
	return nil
}

// Segment returns the cursor element for the 1-based segment position.
// Addressing beyond current content is legal and reads as empty.
func (m *Message) Segment(index int) (*Segment, error) {
	if err := checkIndex(index, 1); err != nil {
		return nil, err
	}
	return m.segs.get(index, func(i int) *Segment {
		return newSegment(m, i)
	}), nil
}

// Segments returns a handle per materialized segment, in order.
func (m *Message) Segments() []*Segment {
	n := m.childCount()
	out := make([]*Segment, 0, n)
	for i := 1; i <= n; i++ {
		seg, _ := m.Segment(i)
		out = append(out, seg)
	}
	return out
}

// SegmentsNamed returns every segment whose identifier matches name.
func (m *Message) SegmentsNamed(name string) []*Segment {
	var out []*Segment
	for _, seg := range m.Segments() {
		if seg.Name() == name {
			out = append(out, seg)
		}
	}
	return out
}

// SegmentNamed returns the first segment whose identifier matches name.
func (m *Message) SegmentNamed(name string) (*Segment, bool) {
	for _, seg := range m.Segments() {
		if seg.Name() == name {
			return seg, true
		}
	}
	return nil, false
}

// Value returns the canonical wire form: segments joined by CR.
func (m *Message) Value() string { return m.text }

// Exists reports true; a constructed message always has content.
func (m *Message) Exists() bool { return true }

// ValueCount returns the number of segments.
func (m *Message) ValueCount() int { return m.childCount() }

// Values returns each segment's text, in order.
func (m *Message) Values() []string {
	return sequence{get: m.childValue, count: m.childCount, base: 1}.Strings()
}

// Delimiter returns the segment separator.
func (m *Message) Delimiter() byte { return SegmentDelimiter }

// SetValue replaces the whole message text, applying the same validation
// and normalization as Parse and re-deriving the delimiter set. Existing
// element handles remain attached and reflect the new content. Prior state
// is untouched on failure.
func (m *Message) SetValue(text string) error {
	norm := normalizeTerminators(text)
	if err := validateMessageText(norm); err != nil {
		return err
	}
	m.text = norm
	*m.enc = *encodingFromHeader(norm)
	m.gen++
	return nil
}

// Detach produces an independent copy of the message with a private
// encoding snapshot and no shared caches.
func (m *Message) Detach() *Message {
	return &Message{
		text: m.text,
		enc:  m.enc.Clone(),
		gen:  1,
		segs: newChildCache[*Segment](),
	}
}

// element resolves a coordinate prefix to the node it addresses.
func (m *Message) element(coords []int) (Element, error) {
	if len(coords) == 0 {
		return m, nil
	}
	if len(coords) > 5 {
		return nil, fmt.Errorf("hl7: at most 5 coordinates, got %d", len(coords))
	}
	seg, err := m.Segment(coords[0])
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
func (m *Message) Get(coords ...int) (string, error) {
	el, err := m.element(coords)
	if err != nil {
		return "", err
	}
	return el.Value(), nil
}

// GetAll returns the values of the addressed node's immediate children.
func (m *Message) GetAll(coords ...int) ([]string, error) {
	el, err := m.element(coords)
	if err != nil {
		return nil, err
	}
	return el.Values(), nil
}

var (
	_ Element       = (*Message)(nil)
	_ MessageReader = (*Message)(nil)
	_ valueSource   = (*Message)(nil)
)
