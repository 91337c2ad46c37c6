package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/platform/db"
)

// PGRepository provides PostgreSQL backed persistence for credit requests.
type PGRepository struct {
	pool       *pgxpool.Pool
	maxRetries uint64
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, maxRetries uint64) *PGRepository {
	return &PGRepository{pool: pool, maxRetries: maxRetries}
}

// WithTx runs fn in one transaction shared with the ledger queries.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetryTx(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: ledger.NewTxRepository(tx), tx: tx})
	})
}

type txRepository struct {
	ledger.TxRepository
	tx pgx.Tx
}

const creditColumns = `id, account_id, requested_amount, interest_rate, state, approved_amount,
	total_paid, decided_by, decided_at, paid_at, created_at, updated_at`

func scanCredit(row pgx.Row) (CreditRequest, error) {
	var c CreditRequest
	err := row.Scan(&c.ID, &c.AccountID, &c.RequestedAmount, &c.InterestRate, &c.State, &c.ApprovedAmount,
		&c.TotalPaid, &c.DecidedBy, &c.DecidedAt, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditRequest{}, ErrCreditNotFound
	}
	return c, err
}

func (r *txRepository) InsertCredit(ctx context.Context, c CreditRequest) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO credit_requests (`+creditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.AccountID, c.RequestedAmount, c.InterestRate, c.State, c.ApprovedAmount,
		c.TotalPaid, c.DecidedBy, c.DecidedAt, c.PaidAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *txRepository) GetCredit(ctx context.Context, id uuid.UUID) (CreditRequest, error) {
	return scanCredit(r.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credit_requests WHERE id=$1`, id))
}

func (r *txRepository) GetCreditForUpdate(ctx context.Context, id uuid.UUID) (CreditRequest, error) {
	return scanCredit(r.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credit_requests WHERE id=$1 FOR UPDATE`, id))
}

// UpdateCredit writes the mutable columns. total_paid is only written while
// it is still NULL.
func (r *txRepository) UpdateCredit(ctx context.Context, c CreditRequest) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE credit_requests
		SET state=$2, approved_amount=$3, total_paid=COALESCE(total_paid, $4),
		    decided_by=$5, decided_at=$6, paid_at=$7, updated_at=$8
		WHERE id=$1`,
		c.ID, c.State, c.ApprovedAmount, c.TotalPaid, c.DecidedBy, c.DecidedAt, c.PaidAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditNotFound
	}
	return nil
}

func (r *txRepository) ListCredits(ctx context.Context, accountID uuid.UUID) ([]CreditRequest, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+creditColumns+` FROM credit_requests
		WHERE ($1::uuid = '00000000-0000-0000-0000-000000000000' OR account_id=$1)
		ORDER BY created_at DESC, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CreditRequest
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) ListApprovedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM credit_requests
		WHERE state='approved' AND decided_at < $1 ORDER BY decided_at`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *txRepository) ListPaidWithoutMirror(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `SELECT c.id FROM credit_requests c
		LEFT JOIN ledger_entries e ON e.source_key = 'credit:' || c.id::text
		WHERE c.state='paid' AND e.id IS NULL
		ORDER BY c.paid_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *txRepository) MirrorExists(ctx context.Context, sourceKey string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE source_key=$1)`, sourceKey).Scan(&exists)
	return exists, err
}
