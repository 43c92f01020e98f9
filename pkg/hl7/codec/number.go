package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Number holds an HL7 NM value, which may be integral or real.
type Number struct {
	i        int64
	f        float64
	integral bool
}

// IsInt reports whether the value parsed as a whole number.
func (n Number) IsInt() bool { return n.integral }

// Int returns the value truncated to an integer.
func (n Number) Int() int64 {
	if n.integral {
		return n.i
	}
	return int64(n.f)
}

// Float returns the value as a float64.
func (n Number) Float() float64 {
	if n.integral {
		return float64(n.i)
	}
	return n.f
}

// String renders the value in HL7 NM form, fixed notation without an
// exponent.
func (n Number) String() string {
	if n.integral {
		return strconv.FormatInt(n.i, 10)
	}
	return strconv.FormatFloat(n.f, 'f', -1, 64)
}

// ParseNumber reads an HL7 NM value, preferring an exact integer reading.
func ParseNumber(v string) (Number, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return Number{}, fmt.Errorf("codec: empty number")
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Number{i: i, integral: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Number{}, fmt.Errorf("codec: parse number %q: %w", v, err)
	}
	return Number{f: f}, nil
}

// FormatNumber renders n in HL7 NM form.
func FormatNumber(n Number) string { return n.String() }
