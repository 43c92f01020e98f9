package hl7

import "strings"

// Delimiter defaults per the HL7v2 standard.
const (
	DefaultFieldDelimiter        = '|'
	DefaultComponentDelimiter    = '^'
	DefaultRepetitionDelimiter   = '~'
	DefaultEscapeCharacter       = '\\'
	DefaultSubcomponentDelimiter = '&'
)

// SegmentDelimiter separates segments in wire form. CRLF and bare LF are
// normalized to it on ingestion.
const SegmentDelimiter = '\r'

// NullValue is the HL7 explicit-null sentinel: a present-but-null value,
// distinct from an empty one.
const NullValue = `""`

// Encoding holds the five delimiter characters in effect for a message tree.
// A zero byte means the delimiter is unset. The encoding-characters field of
// the header segment (MSH-2) reads and writes this configuration directly;
// every node of a tree shares its root's Encoding.
type Encoding struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultEncoding returns the standard delimiter set (| ^ ~ \ &).
func DefaultEncoding() *Encoding {
	return &Encoding{
		Field:        DefaultFieldDelimiter,
		Component:    DefaultComponentDelimiter,
		Repetition:   DefaultRepetitionDelimiter,
		Escape:       DefaultEscapeCharacter,
		Subcomponent: DefaultSubcomponentDelimiter,
	}
}

// encodingFromHeader derives a delimiter set from the header prefix of
// message text ("MSH|^~\&"): the field delimiter at offset 3, then up to
// four encoding characters ending at the next field delimiter. A header
// declaring fewer than four encoding characters leaves the rest unset;
// text too short to reach the field delimiter keeps the defaults.
func encodingFromHeader(text string) *Encoding {
	enc := DefaultEncoding()
	if len(text) <= 3 {
		return enc
	}
	enc.Field = text[3]
	chars := text[4:]
	if chars == "" {
		// the header ends at the delimiter; nothing is declared
		return enc
	}
	if i := strings.IndexByte(chars, enc.Field); i >= 0 {
		chars = chars[:i]
	}
	if len(chars) > 4 {
		chars = chars[:4]
	}
	enc.SetCharacters(chars)
	return enc
}

// Clone returns an independent copy, used to freeze a snapshot when a node
// is detached from its source tree.
func (e *Encoding) Clone() *Encoding {
	c := *e
	return &c
}

// Characters returns the encoding-characters literal (MSH-2 layout):
// component, repetition, escape, subcomponent in that order, skipping any
// delimiter that is currently unset. The default set yields "^~\&".
func (e *Encoding) Characters() string {
	var b strings.Builder
	for _, c := range []byte{e.Component, e.Repetition, e.Escape, e.Subcomponent} {
		if c != 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SetCharacters replaces the four non-field delimiters from the literal
// layout. Positions past the end of s become unset.
func (e *Encoding) SetCharacters(s string) {
	set := func(i int) byte {
		if i < len(s) {
			return s[i]
		}
		return 0
	}
	e.Component = set(0)
	e.Repetition = set(1)
	e.Escape = set(2)
	e.Subcomponent = set(3)
}

// EscapeText replaces delimiter characters in s with their HL7 escape
// sequences (\F\ field, \S\ component, \R\ repetition, \E\ escape,
// \T\ subcomponent) so the result can be embedded as leaf content.
func (e *Encoding) EscapeText(s string) string {
	if e.Escape == 0 {
		return s
	}
	esc := string(e.Escape)
	// The escape character itself must go first.
	s = strings.ReplaceAll(s, esc, esc+"E"+esc)
	for _, r := range []struct {
		delim byte
		code  string
	}{
		{e.Field, "F"},
		{e.Component, "S"},
		{e.Repetition, "R"},
		{e.Subcomponent, "T"},
	} {
		if r.delim != 0 {
			s = strings.ReplaceAll(s, string(r.delim), esc+r.code+esc)
		}
	}
	return s
}

// UnescapeText reverses EscapeText, restoring literal delimiter characters.
func (e *Encoding) UnescapeText(s string) string {
	if e.Escape == 0 {
		return s
	}
	esc := string(e.Escape)
	for _, r := range []struct {
		delim byte
		code  string
	}{
		{e.Field, "F"},
		{e.Component, "S"},
		{e.Repetition, "R"},
		{e.Subcomponent, "T"},
	} {
		if r.delim != 0 {
			s = strings.ReplaceAll(s, esc+r.code+esc, string(r.delim))
		}
	}
	return strings.ReplaceAll(s, esc+"E"+esc, esc)
}
