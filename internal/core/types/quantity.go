package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"stockledger/internal/core/apperror"
)

// Quantity is a whole count of stock units.
//
// JSON accepts a number or a numeric string. Fractional values are rejected
// unless the fraction is zero ("5.0" decodes to 5), since clients often send
// counts as floats.
type Quantity int64

func (q Quantity) Int64() int64 { return int64(q) }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Add returns q+o, or a validation error when the sum leaves the int64 range.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	sum := q + o
	if (o > 0 && sum < q) || (o < 0 && sum > q) {
		return 0, apperror.NewValidation("quantity out of range").
			WithDetail("value", q.String()).
			WithDetail("delta", o.String())
	}
	return sum, nil
}

func (q Quantity) String() string { return strconv.FormatInt(int64(q), 10) }

// MarshalJSON encodes Quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	parsed, err := ParseQuantity(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a whole-number quantity, tolerating a zero fraction.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("quantity %q must be a whole number", s)
	}
	if intPart == "" || intPart == "-" || intPart == "+" {
		intPart += "0"
	}

	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity: %w", err)
	}
	return Quantity(v), nil
}
