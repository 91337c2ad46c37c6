// Package ledger owns wallets, their balances and the append-only entries that
// mutate them, plus the Master-level entries that have no wallet.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// AccountStatus enumerates account lifecycle values.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// EntryType is the closed set of ledger entry kinds.
type EntryType string

const (
	EntryMissionPayment    EntryType = "mission_payment"
	EntryInvoicePayment    EntryType = "invoice_payment"
	EntryFinancingInflow   EntryType = "financing_inflow"
	EntryCreditRepayment   EntryType = "credit_repayment"
	EntryWithdrawal        EntryType = "withdrawal"
	EntryTransferOut       EntryType = "transfer_out"
	EntryGroupContribution EntryType = "group_contribution"
)

// Direction says whether an entry increases or decreases the balance it is booked against.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// CategoryCreditReturn tags the Master mirror of a credit repayment.
const CategoryCreditReturn = "mali_credito_retorno"

// walletDirections is the single source of truth for wallet-scoped entries.
var walletDirections = map[EntryType]Direction{
	EntryMissionPayment:    DirectionCredit,
	EntryInvoicePayment:    DirectionCredit,
	EntryFinancingInflow:   DirectionCredit,
	EntryWithdrawal:        DirectionDebit,
	EntryTransferOut:       DirectionDebit,
	EntryGroupContribution: DirectionDebit,
	EntryCreditRepayment:   DirectionDebit,
}

// masterOverrides lists types whose direction flips when seen by Master.
var masterOverrides = map[EntryType]Direction{
	EntryCreditRepayment: DirectionCredit,
}

// holderEntryTypes are the debits an account may book against its own wallet.
// Inflows and credit repayments are posted by Master or the credit engine.
var holderEntryTypes = map[EntryType]bool{
	EntryWithdrawal:        true,
	EntryTransferOut:       true,
	EntryGroupContribution: true,
}

// HolderMayPost reports whether a non-Master wallet owner may post t.
func HolderMayPost(t EntryType) bool {
	return holderEntryTypes[t]
}

// ErrUnknownEntryType is returned for types outside the closed enum.
var ErrUnknownEntryType = errors.New("ledger: unknown entry type")

// DirectionOf resolves the direction of t. master selects the Master view.
func DirectionOf(t EntryType, master bool) (Direction, error) {
	if master {
		if d, ok := masterOverrides[t]; ok {
			return d, nil
		}
	}
	d, ok := walletDirections[t]
	if !ok {
		return "", ErrUnknownEntryType
	}
	return d, nil
}

// Account is a collaborator or subscriber owning exactly one wallet.
type Account struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Role      shared.Role   `json:"role"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Wallet carries the balances of one account.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Balance is the public view of a wallet.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// Balance returns the balance view.
func (w Wallet) Balance() Balance {
	return Balance{Available: w.Available, Reserved: w.Reserved}
}

// LedgerEntry is immutable once created. A nil WalletID marks a Master entry.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	WalletID    *uuid.UUID      `json:"wallet_id"`
	Type        EntryType       `json:"type"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	SourceKey   string          `json:"source_key,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsMaster reports whether the entry is Master-level.
func (e LedgerEntry) IsMaster() bool {
	return e.WalletID == nil
}

// PostInput describes a wallet entry.
type PostInput struct {
	WalletID    uuid.UUID
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	Category    string
}

// MasterInput describes a Master-level entry. SourceKey, when set, makes the
// write idempotent: a second entry with the same key is rejected.
type MasterInput struct {
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	Category    string
	SourceKey   string
}

// DateRange filters listings; zero bounds are open. To is exclusive.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
