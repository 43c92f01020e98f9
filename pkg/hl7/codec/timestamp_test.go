package codec

import (
	"testing"
	"time"
)

// =========== Timestamp Codec Tests ===========

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20230101000000", time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"20230314150926", time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)},
		{"202303141509", time.Date(2023, time.March, 14, 15, 9, 0, 0, time.UTC)},
		{"20230314", time.Date(2023, time.March, 14, 0, 0, 0, 0, time.UTC)},
		// Fractional seconds and zone offsets are discarded.
		{"20230314150926.1234", time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)},
		{"20230314150926-0500", time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)},
		{"  20230314  ", time.Date(2023, time.March, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseTimestamp(c.in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", c.in, err)
		}
		if !got.Equal(c.want) {
			t.Errorf("expected %v for %q, got %v", c.want, c.in, got)
		}
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "2023", "202303141", "2023031415092X"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)
	cases := []struct {
		p    TSPrecision
		want string
	}{
		{PrecisionDay, "20230314"},
		{PrecisionMinute, "202303141509"},
		{PrecisionSecond, "20230314150926"},
	}
	for _, c := range cases {
		if got := FormatTimestamp(at, c.p); got != c.want {
			t.Errorf("expected %q, got %q", c.want, got)
		}
	}
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := "20230314150926"
	parsed, err := ParseTimestamp(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := FormatTimestamp(parsed, PrecisionSecond); got != in {
		t.Errorf("expected %q back, got %q", in, got)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("20230314")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 2023 || got.Month() != time.March || got.Day() != 14 {
		t.Errorf("expected 2023-03-14, got %v", got)
	}

	// Extra precision beyond the day is ignored.
	long, err := ParseDate("20230314150926")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !long.Equal(got) {
		t.Errorf("expected day-only reading, got %v", long)
	}

	if _, err := ParseDate("2023031"); err == nil {
		t.Error("expected error for short date")
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("150926")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, m, s := got.Clock()
	if h != 15 || m != 9 || s != 26 {
		t.Errorf("expected 15:09:26, got %02d:%02d:%02d", h, m, s)
	}

	short, err := ParseTime("1509")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, m, s = short.Clock()
	if h != 15 || m != 9 || s != 0 {
		t.Errorf("expected 15:09:00, got %02d:%02d:%02d", h, m, s)
	}

	frac, err := ParseTime("150926.77")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, s = frac.Clock(); s != 26 {
		t.Errorf("expected fractional part discarded, got %v", frac)
	}

	for _, in := range []string{"", "15", "15092"} {
		if _, err := ParseTime(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
