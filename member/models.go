// Package member holds the community-member ledger model: balances,
// negative limits, and the affordability rules the settlement and
// matching engines share.
package member

import (
	"github.com/xraph/trueque/types"
)

// Member is a community member's ledger account. Balance may go below
// zero, but never below -Limit.
type Member struct {
	types.Entity
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Contact     string            `json:"contact,omitempty"`
	Balance     types.Credits     `json:"balance"`
	Limit       types.Credits     `json:"limit"`
	AskingPrice types.Credits     `json:"asking_price,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a member with a zero balance and the community default limit.
func New(id int64, name string) *Member {
	return &Member{
		Entity:  types.NewEntity(),
		ID:      id,
		Name:    name,
		Balance: 0,
		Limit:   types.DefaultCreditLimit(),
	}
}

// Ceiling returns the member's total spending capacity |balance| + limit.
// A member with balance -100 and limit 15000 can still spend 14900, and
// the ceiling reported on a refusal is 15100.
func (m *Member) Ceiling() types.Credits {
	return m.Balance.Abs() + m.Limit
}

// CanAfford reports whether spending price would keep the balance at or
// above -limit.
func (m *Member) CanAfford(price types.Credits) bool {
	return m.Balance-price >= -m.Limit
}

// CanApply reports whether adding delta (signed, from the member's
// perspective) keeps the balance at or above -limit. Credits always pass.
func (m *Member) CanApply(delta types.Credits) bool {
	return m.Balance+delta >= -m.Limit
}

// ApplyDelta adds delta to the balance. Callers must have validated the
// limit with CanApply inside the same unit of work.
func (m *Member) ApplyDelta(delta types.Credits) {
	m.Balance += delta
	m.Touch()
}

// Patch describes a partial member update. Nil fields are left untouched;
// each set field replaces the stored value wholesale. Balance is
// deliberately absent: balances change only through the engine's
// exchange and settlement paths.
type Patch struct {
	Name        *string
	Contact     *string
	Limit       *types.Credits
	AskingPrice *types.Credits
	Metadata    map[string]string
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Name == nil && p.Contact == nil && p.Limit == nil &&
		p.AskingPrice == nil && p.Metadata == nil
}

// Apply copies the set fields onto m and bumps its updated timestamp.
func (p Patch) Apply(m *Member) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Contact != nil {
		m.Contact = *p.Contact
	}
	if p.Limit != nil {
		m.Limit = *p.Limit
	}
	if p.AskingPrice != nil {
		m.AskingPrice = *p.AskingPrice
	}
	if p.Metadata != nil {
		m.Metadata = p.Metadata
	}
	m.Touch()
}
