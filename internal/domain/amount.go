package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

var decimalCtx = apd.BaseContext.WithPrecision(34)

// Amount is an immutable, currency-agnostic decimal. The zero value is 0.
type Amount struct {
	d *apd.Decimal
}

func NewAmount(coeff int64, exponent int32) Amount {
	return Amount{d: apd.New(coeff, exponent)}
}

func ParseAmount(s string) (Amount, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("invalid amount %q: not a finite number", s)
	}
	return Amount{d: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) decimal() *apd.Decimal {
	if a.d == nil {
		return apd.New(0, 0)
	}
	return a.d
}

func (a Amount) Cmp(b Amount) int {
	return a.decimal().Cmp(b.decimal())
}

func (a Amount) Sign() int {
	return a.decimal().Sign()
}

func (a Amount) IsZero() bool {
	return a.decimal().IsZero()
}

func (a Amount) MulInt(n int64) (Amount, error) {
	var r apd.Decimal
	if _, err := decimalCtx.Mul(&r, a.decimal(), apd.New(n, 0)); err != nil {
		return Amount{}, fmt.Errorf("multiply %s by %d: %w", a, n, err)
	}
	return Amount{d: &r}, nil
}

// MeanAmount returns the arithmetic mean of values, or zero for an empty slice.
func MeanAmount(values []Amount) (Amount, error) {
	if len(values) == 0 {
		return Amount{}, nil
	}

	var sum apd.Decimal
	for _, v := range values {
		if _, err := decimalCtx.Add(&sum, &sum, v.decimal()); err != nil {
			return Amount{}, fmt.Errorf("sum amounts: %w", err)
		}
	}

	var mean apd.Decimal
	if _, err := decimalCtx.Quo(&mean, &sum, apd.New(int64(len(values)), 0)); err != nil {
		return Amount{}, fmt.Errorf("average amounts: %w", err)
	}
	return Amount{d: &mean}, nil
}

// String renders the plain decimal form with trailing fractional zeros
// removed, so 100, 100.0 and 1E2 all print as "100".
func (a Amount) String() string {
	s := a.decimal().Text('f')
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}

	parsed, err := ParseAmount(string(raw))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
