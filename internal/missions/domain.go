// Package missions reads paid work orders for the unified finance report.
package missions

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkOrderStatus enumerates work order statuses.
type WorkOrderStatus string

const (
	StatusOpen      WorkOrderStatus = "OPEN"
	StatusAssigned  WorkOrderStatus = "ASSIGNED"
	StatusCompleted WorkOrderStatus = "COMPLETED"
	StatusPaid      WorkOrderStatus = "PAID"
)

// WorkOrder is the subset of a work order the report needs.
type WorkOrder struct {
	ID                int64
	Title             string
	CollaboratorValue decimal.Decimal
	Status            WorkOrderStatus
	PaidAt            *time.Time
	UpdatedAt         time.Time
}
