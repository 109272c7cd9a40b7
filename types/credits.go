// Package types provides common types used across Trueque.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Credits represents a community-credit value in whole IX units.
// All ledger arithmetic is integer-only; no floating point.
//
// Examples:
//   - Credits(200) = 200 IX
//   - Credits(-120) = a 120 IX debit
type Credits int64

// defaultCreditLimit is how far below zero a member may spend before
// the ledger refuses further debits.
const defaultCreditLimit Credits = 15000

// pesosPerCredit is the fixed community conversion rate: 1 IX = 1 ARS.
// Kept as a decimal so a future non-integer rate stays exact.
var pesosPerCredit = decimal.NewFromInt(1)

// DefaultCreditLimit returns the community-wide default negative limit
// applied to newly created members.
func DefaultCreditLimit() Credits { return defaultCreditLimit }

// IX creates a Credits value. Reads better than a bare conversion at call sites.
func IX(amount int64) Credits { return Credits(amount) }

// ToPesos converts a credit amount to Argentine pesos at the fixed rate.
func (c Credits) ToPesos() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Mul(pesosPerCredit)
}

// FromPesos converts a peso amount to whole credits at the fixed rate,
// truncating toward zero.
func FromPesos(pesos decimal.Decimal) Credits {
	return Credits(pesos.Div(pesosPerCredit).IntPart())
}

// Arithmetic operations

// Add adds two credit values.
func (c Credits) Add(other Credits) Credits { return c + other }

// Subtract subtracts another credit value.
func (c Credits) Subtract(other Credits) Credits { return c - other }

// Negate returns the negative of the credit value.
func (c Credits) Negate() Credits { return -c }

// Abs returns the absolute value.
func (c Credits) Abs() Credits {
	if c < 0 {
		return -c
	}
	return c
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (c Credits) IsZero() bool { return c == 0 }

// IsPositive returns true if the amount is greater than zero.
func (c Credits) IsPositive() bool { return c > 0 }

// IsNegative returns true if the amount is less than zero.
func (c Credits) IsNegative() bool { return c < 0 }

// Formatting methods

// String returns a human-readable string, e.g. "200 IX" or "-120 IX".
func (c Credits) String() string {
	return fmt.Sprintf("%d IX", int64(c))
}

// FormatPesos returns the peso-equivalent display string, e.g. "$200".
func (c Credits) FormatPesos() string {
	return "$" + c.ToPesos().String()
}

// MarshalJSON implements json.Marshaler.
func (c Credits) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  int64  `json:"amount"`
		Display string `json:"display"`
	}{
		Amount:  int64(c),
		Display: c.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. Accepts either the object
// form produced by MarshalJSON or a bare integer.
func (c *Credits) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Credits(n)
		return nil
	}

	var obj struct {
		Amount int64 `json:"amount"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("credits: unmarshal %s: %w", data, err)
	}

	*c = Credits(obj.Amount)
	return nil
}

// Sum calculates the sum of multiple credit values.
func Sum(values ...Credits) Credits {
	var total Credits
	for _, v := range values {
		total += v
	}
	return total
}
