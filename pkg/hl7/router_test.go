package hl7

import (
	"context"
	"errors"
	"testing"
)

// =========== Router Tests ===========

func TestRouter_MostSpecificWins(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hit string
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, m MessageReader) error {
			hit = name
			return nil
		}
	}

	r := NewRouter()
	r.Handle("", "", record("catchall"))
	r.Handle("", "A01", record("trigger"))
	r.Handle("ADT", "", record("type"))
	r.Handle("ADT", "A01", record("exact"))

	handled, err := r.Dispatch(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatal("expected a handler to run")
	}
	if hit != "exact" {
		t.Errorf("expected exact route, got %q", hit)
	}
}

func TestRouter_FallbackTiers(t *testing.T) {
	cases := []struct {
		name    string
		routes  [][2]string
		want    string
		handled bool
	}{
		{"type beats trigger", [][2]string{{"", "A01"}, {"ADT", ""}}, "ADT|", true},
		{"trigger beats catchall", [][2]string{{"", ""}, {"", "A01"}}, "|A01", true},
		{"catchall runs last", [][2]string{{"", ""}, {"ORU", "R01"}}, "|", true},
		{"no match", [][2]string{{"ORU", "R01"}, {"ADT", "A08"}}, "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg, err := Parse(sampleADT)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var hit string
			r := NewRouter()
			for _, rt := range c.routes {
				rt := rt
				r.Handle(rt[0], rt[1], func(ctx context.Context, m MessageReader) error {
					hit = rt[0] + "|" + rt[1]
					return nil
				})
			}
			handled, err := r.Dispatch(context.Background(), msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if handled != c.handled {
				t.Fatalf("expected handled %v, got %v", c.handled, handled)
			}
			if c.handled && hit != c.want {
				t.Errorf("expected route %q, got %q", c.want, hit)
			}
		})
	}
}

func TestRouter_FirstRegisteredBreaksTies(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hit string
	r := NewRouter()
	r.Handle("ADT", "A01", func(ctx context.Context, m MessageReader) error {
		hit = "first"
		return nil
	})
	r.Handle("ADT", "A01", func(ctx context.Context, m MessageReader) error {
		hit = "second"
		return nil
	})

	if _, err := r.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit != "first" {
		t.Errorf("expected first registration to win, got %q", hit)
	}
}

func TestRouter_HandlerError(t *testing.T) {
	msg, err := Parse(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("boom")
	r := NewRouter()
	r.Handle("ADT", "", func(ctx context.Context, m MessageReader) error {
		return boom
	})

	handled, err := r.Dispatch(context.Background(), msg)
	if !handled {
		t.Fatal("expected a handler to run")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRouter_BuilderMessage(t *testing.T) {
	b, err := NewMessageBuilderFrom(sampleADT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got string
	r := NewRouter()
	r.Handle("ADT", "A01", func(ctx context.Context, m MessageReader) error {
		v, err := m.Get(1, 10)
		if err != nil {
			return err
		}
		got = v
		return nil
	})

	handled, err := r.Dispatch(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatal("expected a handler to run")
	}
	if got != "MSG00001" {
		t.Errorf("expected control id MSG00001, got %q", got)
	}
}
