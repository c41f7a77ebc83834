// Package money represents monetary values as int64 minor units (cents) so
// that balance arithmetic never touches binary floating point.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Amount is a quantity of money in minor units.
type Amount int64

var (
	// ErrInvalidFormat indicates the input is not a decimal amount with at
	// most two fraction digits.
	ErrInvalidFormat = errors.New("invalid amount format")

	// ErrOutOfRange indicates the amount does not fit in an int64 of minor units.
	ErrOutOfRange = errors.New("amount out of range")
)

const maxMajor = int64(1<<63-1) / 100

// Parse converts a decimal string such as "100", "40.5" or "12.34" into minor
// units. Negative values, missing digits and more than two fraction digits are
// rejected.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidFormat
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidFormat
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 2 {
		return 0, ErrInvalidFormat
	}

	var major int64
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidFormat
		}
		if major > maxMajor {
			return 0, ErrOutOfRange
		}
		major = major*10 + int64(r-'0')
	}

	var minor int64
	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidFormat
		}
		minor = minor*10 + int64(r-'0')
	}
	// "40.5" means 50 minor units, not 5.
	if len(fracPart) == 1 {
		minor *= 10
	}

	if major > maxMajor || (major == maxMajor && minor > int64(1<<63-1)%100) {
		return 0, ErrOutOfRange
	}

	return Amount(major*100 + minor), nil
}

// String renders the amount as a canonical decimal, e.g. 6000 -> "60.00".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Number returns the amount as a json.Number so encoders emit an exact decimal
// number rather than a float.
func (a Amount) Number() json.Number {
	return json.Number(a.String())
}
