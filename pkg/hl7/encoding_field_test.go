package hl7

import (
	"errors"
	"testing"
)

// =========== Fixed-Width Encoding Field Tests ===========

func TestEncodingField_SelfConsistency(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seg, err := msg.Segment(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	field, err := seg.Field(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := field.SetValue("^~\\&"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if field.Value() != "^~\\&" {
		t.Errorf("expected '^~\\&' back, got %q", field.Value())
	}
	enc := msg.Encoding()
	if enc.Component != '^' || enc.Repetition != '~' || enc.Escape != '\\' || enc.Subcomponent != '&' {
		t.Errorf("expected all four delimiters set, got %+v", enc)
	}
}

func TestEncodingField_PartialWrite(t *testing.T) {
	msg, err := Parse("MSH|^~\\&|APP_A|FAC_A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	field, err := mustSegment(t, msg, 1).Field(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A two-character write sets only the first two delimiters.
	if err := field.SetValue("#@"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enc := msg.Encoding()
	if enc.Component != '#' || enc.Repetition != '@' {
		t.Errorf("expected component '#' repetition '@', got %+v", enc)
	}
	if enc.Escape != 0 || enc.Subcomponent != 0 {
		t.Errorf("expected escape and subcomponent unset, got %+v", enc)
	}
	if field.Value() != "#@" {
		t.Errorf("expected '#@' back, got %q", field.Value())
	}
	if msg.Value() != "MSH|#@|APP_A|FAC_A" {
		t.Errorf("expected rewritten header, got %q", msg.Value())
	}
}

func TestEncodingField_BuilderPartialWrite(t *testing.T) {
	b, err := NewMessageBuilderFrom("MSH|^~\\&|APP_A|FAC_A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.SetField(1, 2, "#@"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enc := b.Encoding()
	if enc.Component != '#' || enc.Repetition != '@' {
		t.Errorf("expected component '#' repetition '@', got %+v", enc)
	}
	if enc.Escape != 0 || enc.Subcomponent != 0 {
		t.Errorf("expected escape and subcomponent unset, got %+v", enc)
	}
	v, err := b.Get(1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "#@" {
		t.Errorf("expected '#@' back, got %q", v)
	}
}

func TestEncodingField_ValueCountAndValues(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	field, err := mustSegment(t, msg, 1).Field(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Each character of the encoding field enumerates as its own value.
	if field.ValueCount() != 4 {
		t.Errorf("expected ValueCount 4, got %d", field.ValueCount())
	}
	values := field.Values()
	want := []string{"^", "~", "\\", "&"}
	if len(values) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(values))
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("expected %q at position %d, got %q", want[i], i, values[i])
		}
	}
	if field.Delimiter() != 0 {
		t.Errorf("expected no delimiter, got %q", field.Delimiter())
	}
}

func TestEncodingField_Indivisible(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every depth below the encoding field fails, cursor side.
	for _, coords := range [][]int{{1, 2, 1}, {1, 2, 1, 1}, {1, 2, 1, 1, 1}} {
		if _, err := msg.Get(coords...); !errors.Is(err, ErrFixedFieldIndivisible) {
			t.Errorf("expected ErrFixedFieldIndivisible at %v, got %v", coords, err)
		}
	}
	// The field delimiter is indivisible as well.
	if _, err := msg.Get(1, 1, 1); !errors.Is(err, ErrFixedFieldIndivisible) {
		t.Errorf("expected ErrFixedFieldIndivisible for field 1, got %v", err)
	}

	// Builder side.
	b, err := NewMessageBuilderFrom(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, coords := range [][]int{{1, 2, 1}, {1, 2, 1, 1}, {1, 2, 1, 1, 1}} {
		if _, err := b.Get(coords...); !errors.Is(err, ErrFixedFieldIndivisible) {
			t.Errorf("expected ErrFixedFieldIndivisible at %v, got %v", coords, err)
		}
	}
	if err := b.SetFieldRepetition(1, 2, 1, "X"); !errors.Is(err, ErrFixedFieldIndivisible) {
		t.Errorf("expected ErrFixedFieldIndivisible on write, got %v", err)
	}
	if err := b.SetComponent(1, 1, 1, 1, "X"); !errors.Is(err, ErrFixedFieldIndivisible) {
		t.Errorf("expected ErrFixedFieldIndivisible on delimiter write, got %v", err)
	}
}

func TestFieldDelimiter_Builder(t *testing.T) {
	b, err := NewMessageBuilderFrom("MSH|^~\\&|APP_A|FAC_A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.SetField(1, 1, "#"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Encoding().Field != '#' {
		t.Errorf("expected field delimiter '#', got %q", b.Encoding().Field)
	}
	// The builder stores values decomposed, so the next render uses the new
	// delimiter throughout.
	if b.Value() != "MSH#^~\\&#APP_A#FAC_A" {
		t.Errorf("expected re-rendered header, got %q", b.Value())
	}

	if err := b.SetField(1, 1, "##"); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}

func mustSegment(t *testing.T, msg *Message, index int) *Segment {
	t.Helper()
	seg, err := msg.Segment(index)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return seg
}
