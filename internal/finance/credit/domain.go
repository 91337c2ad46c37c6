// Package credit runs the credit request lifecycle: request, Master decision,
// repayment with a mirrored Master entry, and the time-driven overdue move.
package credit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// State enumerates the credit lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StatePaid     State = "paid"
	StateOverdue  State = "overdue"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StatePaid
}

var transitions = map[State][]State{
	StatePending:  {StateApproved, StateRejected},
	StateApproved: {StateOverdue, StatePaid},
	StateOverdue:  {StatePaid},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreditRequest is a short-term loan applied for by an account. InterestRate
// is fixed when the request is created.
type CreditRequest struct {
	ID              uuid.UUID           `json:"id"`
	AccountID       uuid.UUID           `json:"account_id"`
	RequestedAmount decimal.Decimal     `json:"requested_amount"`
	InterestRate    decimal.Decimal     `json:"interest_rate"`
	State           State               `json:"state"`
	ApprovedAmount  decimal.NullDecimal `json:"approved_amount"`
	TotalPaid       decimal.NullDecimal `json:"total_paid"`
	DecidedBy       *uuid.UUID          `json:"decided_by,omitempty"`
	DecidedAt       *time.Time          `json:"decided_at,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TotalDue returns approved × (1 + rate) rounded to cents.
func TotalDue(approved, rate decimal.Decimal) decimal.Decimal {
	return ledger.Round2(approved.Mul(decimal.NewFromInt(1).Add(rate)))
}

// TotalDue returns the repayment owed for an approved request.
func (c CreditRequest) TotalDue() decimal.Decimal {
	if !c.ApprovedAmount.Valid {
		return decimal.Zero
	}
	return TotalDue(c.ApprovedAmount.Decimal, c.InterestRate)
}

// transition moves c to next or returns a state conflict.
func (c *CreditRequest) transition(next State, at time.Time) error {
	if !CanTransition(c.State, next) {
		return fmt.Errorf("credit: %s → %s: %w", c.State, next, shared.ErrStateConflict)
	}
	c.State = next
	c.UpdatedAt = at
	return nil
}

// MirrorSourceKey keys the Master mirror of a repayment so it posts once.
func MirrorSourceKey(creditID uuid.UUID) string {
	return "credit:" + creditID.String()
}

// EventType names notification events.
type EventType string

const (
	EventApproved EventType = "credit.approved"
	EventRejected EventType = "credit.rejected"
	EventRepaid   EventType = "credit.repaid"
)

// Event is handed to the notification sink after a transition commits.
type Event struct {
	Type      EventType       `json:"type"`
	CreditID  uuid.UUID       `json:"credit_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	At        time.Time       `json:"at"`
}
