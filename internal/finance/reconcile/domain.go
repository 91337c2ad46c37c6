// Package reconcile builds the unified Master transaction report from Master
// ledger entries, paid invoices and paid work orders. It never writes.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
)

// SubSystem is the reporting partition of a transaction.
type SubSystem string

const (
	SubSystemGeneral  SubSystem = "general"
	SubSystemMaliMina SubSystem = "mali_mina"
)

// Source names where a transaction came from.
type Source string

const (
	SourceMaster    Source = "master"
	SourceInvoice   Source = "invoice"
	SourceWorkOrder Source = "work_order"
)

const (
	// CategoryInvoice tags transactions derived from paid invoices.
	CategoryInvoice = "factura"
	// CategoryMission tags transactions derived from paid work orders.
	CategoryMission = "missao"
)

// PaidInvoice is one invoice in the paid state.
type PaidInvoice struct {
	ID          string
	Number      string
	Total       decimal.Decimal
	PaymentDate *time.Time
	UpdatedAt   time.Time
}

// PaidWorkOrder is one work order in the paid state.
type PaidWorkOrder struct {
	ID                string
	Title             string
	CollaboratorValue decimal.Decimal
	PaymentDate       *time.Time
	UpdatedAt         time.Time
}

// Snapshot is everything a report is computed from.
type Snapshot struct {
	Master     []ledger.LedgerEntry
	Invoices   []PaidInvoice
	WorkOrders []PaidWorkOrder
}

// Transaction is one row of the unified report. It is never stored.
type Transaction struct {
	Date        time.Time        `json:"date"`
	SubSystem   SubSystem        `json:"sub_system"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Direction   ledger.Direction `json:"direction"`
	Source      Source           `json:"source"`
	SourceID    string           `json:"source_id"`
}

// Totals aggregates one partition.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// Report is the unified view.
type Report struct {
	Transactions []Transaction        `json:"transactions"`
	Partitions   map[SubSystem]Totals `json:"partitions"`
	Balance      decimal.Decimal      `json:"balance"`
}
