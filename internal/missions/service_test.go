package missions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	orders []WorkOrder
	err    error
}

func (r memoryRepo) ListByStatus(_ context.Context, status WorkOrderStatus) ([]WorkOrder, error) {
	var out []WorkOrder
	for _, wo := range r.orders {
		if wo.Status == status {
			out = append(out, wo)
		}
	}
	return out, r.err
}

func TestPaidWorkOrdersFeed(t *testing.T) {
	updated := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	repo := memoryRepo{orders: []WorkOrder{
		{ID: 7, Title: "Install router", CollaboratorValue: decimal.NewFromInt(300), Status: StatusPaid, UpdatedAt: updated},
		{ID: 8, Title: "Site survey", CollaboratorValue: decimal.NewFromInt(120), Status: StatusCompleted, UpdatedAt: updated},
	}}
	feed, err := NewFeed(repo).PaidWorkOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, "7", feed[0].ID)
	require.True(t, feed[0].CollaboratorValue.Equal(decimal.NewFromInt(300)))
	require.Nil(t, feed[0].PaymentDate)

	_, err = NewFeed(memoryRepo{err: errors.New("db down")}).PaidWorkOrders(context.Background())
	require.Error(t, err)
}
