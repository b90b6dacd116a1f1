package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is an amount in minor units (1/100 of the currency unit).
type Money int64

// MaxAmount bounds every amount accepted or computed, in either sign.
const MaxAmount Money = 100_000_000_000

func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidAmount, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > float64(MaxAmount)/100 {
		return 0, fmt.Errorf("%w %q", ErrInvalidAmount, s)
	}
	return MoneyFromFloat(f), nil
}

func (m Money) InRange() bool {
	return m >= -MaxAmount && m <= MaxAmount
}

func (m Money) String() string {
	sign := ""
	u := uint64(m)
	if m < 0 {
		sign = "-"
		u = -u
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}

// Add returns m+o, or ErrInvalidAmount when the sum leaves the accepted range.
func (m Money) Add(o Money) (Money, error) {
	if !m.InRange() || !o.InRange() {
		return 0, fmt.Errorf("%w: %s + %s out of range", ErrInvalidAmount, m, o)
	}
	sum := m + o
	if !sum.InRange() {
		return 0, fmt.Errorf("%w: %s + %s out of range", ErrInvalidAmount, m, o)
	}
	return sum, nil
}

// Mul returns m*n, or ErrInvalidAmount when the product leaves the accepted range.
func (m Money) Mul(n int) (Money, error) {
	if !m.InRange() || !Money(n).InRange() {
		return 0, fmt.Errorf("%w: %s x %d out of range", ErrInvalidAmount, m, n)
	}
	p := m * Money(n)
	if n != 0 && (p/Money(n) != m || !p.InRange()) {
		return 0, fmt.Errorf("%w: %s x %d out of range", ErrInvalidAmount, m, n)
	}
	return p, nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseMoney(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	v, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
