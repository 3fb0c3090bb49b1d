// Package fx implements the fixed-point decimal type used throughout the
// pipeline: every price, size, and volume is a signed 64-bit integer scaled
// by 10^8, so arithmetic never touches a floating point type.
package fx

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Scale is the fixed-point scale factor: one unit of Fx represents 1e-8.
const Scale = 100_000_000

// Fx is a signed fixed-point number with 8 fractional digits.
type Fx int64

// Zero is the additive identity.
const Zero Fx = 0

// Parse converts a decimal literal ("-123.456", "0.1", "", "7") into Fx.
// Fractional digits beyond 8 are truncated, not rounded. Shorter fractions
// are treated as right-padded with zeros. Empty input yields 0.
func Parse(s string) (Fx, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("fx: invalid literal")
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("fx: invalid integer part %q", intPart)
		}
	}
	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("fx: invalid fractional part %q", fracPart)
		}
	}

	if len(fracPart) > 8 {
		fracPart = fracPart[:8] // truncate, never round
	}
	for len(fracPart) < 8 {
		fracPart += "0"
	}

	whole, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fx: integer part overflow: %w", err)
	}
	frac, err := strconv.ParseUint(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fx: fractional part overflow: %w", err)
	}

	hi, lo := bits.Mul64(whole, Scale)
	if hi != 0 {
		return saturate(neg), nil
	}
	total := lo + frac
	if total < lo {
		return saturate(neg), nil
	}
	if total > 1<<63-1 {
		return saturate(neg), nil
	}

	v := Fx(total)
	if neg {
		v = -v
	}
	return v, nil
}

// MustParse is Parse but panics on error; intended for constants in tests.
func MustParse(s string) Fx {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func saturate(neg bool) Fx {
	if neg {
		return -Fx(1<<63 - 1)
	}
	return Fx(1<<63 - 1)
}

// Format renders v with the requested number of fractional digits (0..=8),
// truncating (never rounding) any extra precision.
func Format(v Fx, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 8 {
		decimals = 8
	}

	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}

	whole := u / Scale
	frac := u % Scale
	fracStr := fmt.Sprintf("%08d", frac)[:decimals]

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(strconv.FormatUint(whole, 10))
	if decimals > 0 {
		sb.WriteByte('.')
		sb.WriteString(fracStr)
	}
	return sb.String()
}

// String formats v with full 8-digit precision.
func (v Fx) String() string {
	return Format(v, 8)
}

// Mul computes a*b at Fx scale, widening to 128 bits to avoid overflow:
// price * size can exceed the 64-bit range at realistic exchange scales.
func Mul(a, b Fx) Fx {
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(int64(a)), abs64(int64(b))

	// product = hi*2^64 + lo; divide the full 128-bit product by Scale.
	hi, lo := bits.Mul64(ua, ub)
	if hi >= Scale {
		// quotient would not fit in 64 bits
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, Scale)
	if q > 1<<63-1 {
		return saturate(neg)
	}
	v := Fx(q)
	if neg {
		v = -v
	}
	return v
}

// Div computes a/b at Fx scale: (a*Scale)/b, using 128-bit intermediate
// arithmetic. Returns 0 if b is 0.
func Div(a, b Fx) Fx {
	if b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(int64(a)), abs64(int64(b))

	hi, lo := bits.Mul64(ua, Scale)
	if hi >= ub {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, ub)
	if q > 1<<63-1 {
		return saturate(neg)
	}
	v := Fx(q)
	if neg {
		v = -v
	}
	return v
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
