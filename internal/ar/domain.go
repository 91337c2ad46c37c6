// Package ar reads paid customer invoices for the unified finance report.
// Invoice CRUD lives outside this service.
package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates AR invoice statuses.
type InvoiceStatus string

const (
	StatusDraft  InvoiceStatus = "DRAFT"
	StatusPosted InvoiceStatus = "POSTED"
	StatusPaid   InvoiceStatus = "PAID"
	StatusVoid   InvoiceStatus = "VOID"
)

// Invoice is the subset of an AR invoice the report needs. PaidAt is the
// latest payment date, nil when no payment row exists.
type Invoice struct {
	ID        int64
	Number    string
	Total     decimal.Decimal
	Status    InvoiceStatus
	PaidAt    *time.Time
	UpdatedAt time.Time
}
