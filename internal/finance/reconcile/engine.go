package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
)

const maliPrefix = "mali_"

// Classify assigns a category to its reporting partition. It is the only
// place the rule lives.
func Classify(category string) SubSystem {
	if strings.HasPrefix(category, maliPrefix) || category == "credito" {
		return SubSystemMaliMina
	}
	return SubSystemGeneral
}

func paidDate(payment *time.Time, updated time.Time) time.Time {
	if payment != nil && !payment.IsZero() {
		return *payment
	}
	return updated
}

// DeriveMaster maps Master ledger entries to transactions.
func DeriveMaster(entries []ledger.LedgerEntry) []Transaction {
	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		if !e.IsMaster() {
			continue
		}
		out = append(out, Transaction{
			Date:        e.CreatedAt,
			SubSystem:   Classify(e.Category),
			Category:    e.Category,
			Description: e.Description,
			Amount:      e.Amount,
			Direction:   e.Direction,
			Source:      SourceMaster,
			SourceID:    e.ID.String(),
		})
	}
	return out
}

// DeriveInvoices maps each paid invoice to one credit transaction.
func DeriveInvoices(invoices []PaidInvoice) []Transaction {
	out := make([]Transaction, 0, len(invoices))
	for _, inv := range invoices {
		label := inv.Number
		if label == "" {
			label = inv.ID
		}
		out = append(out, Transaction{
			Date:        paidDate(inv.PaymentDate, inv.UpdatedAt),
			SubSystem:   Classify(CategoryInvoice),
			Category:    CategoryInvoice,
			Description: fmt.Sprintf("invoice %s paid", label),
			Amount:      inv.Total,
			Direction:   ledger.DirectionCredit,
			Source:      SourceInvoice,
			SourceID:    inv.ID,
		})
	}
	return out
}

// DeriveWorkOrders maps each paid work order to one debit transaction.
func DeriveWorkOrders(orders []PaidWorkOrder) []Transaction {
	out := make([]Transaction, 0, len(orders))
	for _, wo := range orders {
		label := wo.Title
		if label == "" {
			label = wo.ID
		}
		out = append(out, Transaction{
			Date:        paidDate(wo.PaymentDate, wo.UpdatedAt),
			SubSystem:   Classify(CategoryMission),
			Category:    CategoryMission,
			Description: fmt.Sprintf("mission %s paid", label),
			Amount:      wo.CollaboratorValue,
			Direction:   ledger.DirectionDebit,
			Source:      SourceWorkOrder,
			SourceID:    wo.ID,
		})
	}
	return out
}

// Merge concatenates the lists and sorts newest first. Equal dates fall back
// to source and source id so the order does not depend on fetch order.
func Merge(lists ...[]Transaction) []Transaction {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]Transaction, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.SourceID < b.SourceID
	})
	return out
}

// Filter keeps transactions inside r.
func Filter(txs []Transaction, r ledger.DateRange) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if r.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out
}

// Aggregate sums income and expense per partition. Both partitions are
// always present.
func Aggregate(txs []Transaction) (map[SubSystem]Totals, decimal.Decimal) {
	parts := map[SubSystem]Totals{
		SubSystemGeneral:  {Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero},
		SubSystemMaliMina: {Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero},
	}
	for _, tx := range txs {
		t := parts[tx.SubSystem]
		switch tx.Direction {
		case ledger.DirectionCredit:
			t.Income = t.Income.Add(tx.Amount)
		case ledger.DirectionDebit:
			t.Expense = t.Expense.Add(tx.Amount)
		}
		parts[tx.SubSystem] = t
	}
	global := decimal.Zero
	for _, k := range []SubSystem{SubSystemGeneral, SubSystemMaliMina} {
		t := parts[k]
		t.Balance = t.Income.Sub(t.Expense)
		parts[k] = t
		global = global.Add(t.Balance)
	}
	return parts, global
}

// Build derives, merges, filters and aggregates a snapshot.
func Build(s Snapshot, r ledger.DateRange) Report {
	txs := Filter(Merge(
		DeriveMaster(s.Master),
		DeriveInvoices(s.Invoices),
		DeriveWorkOrders(s.WorkOrders),
	), r)
	parts, global := Aggregate(txs)
	return Report{Transactions: txs, Partitions: parts, Balance: global}
}
