// Package domain holds the types shared by every stage of the pipeline:
// decimal money, currency/asset identity, the error taxonomy, and the
// dedup ring used by the streaming import runner.
package domain

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal is an arbitrary-precision quantity. It never uses float64;
// all arithmetic goes through shopspring/decimal, which itself is
// backed by math/big.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// NewDecimalFromInt builds a Decimal from an int64, useful in tests.
func NewDecimalFromInt(v int64) Decimal {
	return Decimal{d: decimal.NewFromInt(v)}
}

// ParseDecimal parses a decimal string. It rejects NaN/Inf-shaped inputs
// and anything that isn't a plain or exponential numeric literal -
// shopspring/decimal itself rejects those, but we also reject the
// sentinel strings some providers emit literally ("NaN", "Infinity").
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if lower == "" {
		return Decimal{}, fmt.Errorf("decimal: empty value")
	}
	switch lower {
	case "nan", "+nan", "-nan", "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity":
		return Decimal{}, fmt.Errorf("decimal: non-finite value %q", s)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Decimal{}, fmt.Errorf("decimal: %w", err)
	}
	return Decimal{d: d}, nil
}

// MustDecimal parses or panics; reserved for literals in tests/constants.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decimal) Add(o Decimal) Decimal { return Decimal{d: d.d.Add(o.d)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d: d.d.Sub(o.d)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{d: d.d.Mul(o.d)} }

// Div divides with a generous fixed precision; callers that need to
// serialize the result should round for display themselves.
func (d Decimal) Div(o Decimal) Decimal { return Decimal{d: d.d.DivRound(o.d, 18)} }

func (d Decimal) Neg() Decimal { return Decimal{d: d.d.Neg()} }
func (d Decimal) Abs() Decimal { return Decimal{d: d.d.Abs()} }

func (d Decimal) Cmp(o Decimal) int       { return d.d.Cmp(o.d) }
func (d Decimal) Equal(o Decimal) bool    { return d.d.Equal(o.d) }
func (d Decimal) IsZero() bool            { return d.d.IsZero() }
func (d Decimal) IsNegative() bool        { return d.d.Sign() < 0 }
func (d Decimal) IsPositive() bool        { return d.d.Sign() > 0 }
func (d Decimal) GreaterThan(o Decimal) bool { return d.d.GreaterThan(o.d) }
func (d Decimal) LessThan(o Decimal) bool    { return d.d.LessThan(o.d) }

// String renders the canonical decimal form: no trailing zeros beyond
// significant digits, no exponent notation.
func (d Decimal) String() string {
	return d.d.String()
}

// Rat exposes the underlying value as a big.Rat for cases (e.g. variance
// tolerance checks) where exact ratio comparison matters more than
// rounding behavior.
func (d Decimal) Rat() *big.Rat {
	return d.d.Rat()
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.d.String() + `"`), nil
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so Decimal can be written directly by
// pgx as a NUMERIC column.
func (d Decimal) Value() (driver.Value, error) {
	return d.d.String(), nil
}

// Scan implements sql.Scanner for reading NUMERIC columns back out.
func (d *Decimal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Zero
		return nil
	case string:
		parsed, err := ParseDecimal(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDecimal(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case float64:
		*d = Decimal{d: decimal.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("decimal: cannot scan %T", src)
	}
}
