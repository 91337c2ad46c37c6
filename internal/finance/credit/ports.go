package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// ErrCreditNotFound indicates a missing credit request.
var ErrCreditNotFound = fmt.Errorf("credit: request %w", shared.ErrNotFound)

// ErrForbidden indicates the actor may not act on the request.
var ErrForbidden = errors.New("credit: actor not permitted")

// Repository abstracts transactional repository behaviour.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository combines the ledger queries with credit persistence so that a
// repayment commits as one unit.
type TxRepository interface {
	ledger.TxRepository

	InsertCredit(ctx context.Context, c CreditRequest) error
	GetCredit(ctx context.Context, id uuid.UUID) (CreditRequest, error)
	GetCreditForUpdate(ctx context.Context, id uuid.UUID) (CreditRequest, error)
	UpdateCredit(ctx context.Context, c CreditRequest) error
	// ListCredits returns requests newest first; uuid.Nil lists every account.
	ListCredits(ctx context.Context, accountID uuid.UUID) ([]CreditRequest, error)
	ListApprovedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListPaidWithoutMirror(ctx context.Context, limit int) ([]uuid.UUID, error)
	MirrorExists(ctx context.Context, sourceKey string) (bool, error)
}

// ApprovalPort records Master decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort records repayments.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers lifecycle events. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Observer receives outcomes for metrics.
type Observer interface {
	CreditTransition(state string)
	Rejected(op string, err error)
	IntegrityFailure(op string)
}

type nopObserver struct{}

func (nopObserver) CreditTransition(string) {}
func (nopObserver) Rejected(string, error)  {}
func (nopObserver) IntegrityFailure(string) {}
