package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/malimina/internal/platform/db"
)

const uniqueSourceKey = "uq_ledger_entries_source_key"

// PGRepository provides PostgreSQL backed persistence for the ledger.
type PGRepository struct {
	pool       *pgxpool.Pool
	maxRetries uint64
}

// NewRepository constructs a repository. Transactions aborted by a
// serialization failure or a stale wallet version are retried up to maxRetries.
func NewRepository(pool *pgxpool.Pool, maxRetries uint64) *PGRepository {
	return &PGRepository{pool: pool, maxRetries: maxRetries}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetryTx(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds the ledger queries to an open transaction so other
// packages can compose ledger writes with their own.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

const accountColumns = `id, name, role, status, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Name, a.Role, a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *txRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status AccountStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET status=$2, updated_at=$3 WHERE id=$1`, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const walletColumns = `id, account_id, available, reserved, version, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.AccountID, &w.Available, &w.Reserved, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	return w, err
}

func (r *txRepository) InsertWallet(ctx context.Context, w Wallet) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.AccountID, w.Available, w.Reserved, w.Version, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *txRepository) GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id=$1`, id))
}

func (r *txRepository) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetWalletByAccount(ctx context.Context, accountID uuid.UUID) (Wallet, error) {
	return scanWallet(r.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE account_id=$1`, accountID))
}

func (r *txRepository) UpdateWalletBalance(ctx context.Context, w Wallet) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE wallets
		SET available=$3, reserved=$4, version=version+1, updated_at=$5
		WHERE id=$1 AND version=$2`,
		w.ID, w.Version, w.Available, w.Reserved, w.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConcurrentUpdate
	}
	return nil
}

const entryColumns = `id, wallet_id, entry_type, direction, amount, description, category, source_key, created_at`

func (r *txRepository) InsertEntry(ctx context.Context, e LedgerEntry) error {
	var sourceKey *string
	if e.SourceKey != "" {
		sourceKey = &e.SourceKey
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WalletID, e.Type, e.Direction, e.Amount, e.Description, e.Category, sourceKey, e.CreatedAt)
	if db.IsUniqueViolation(err, uniqueSourceKey) {
		return ErrSourceConflict
	}
	return err
}

func (r *txRepository) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]LedgerEntry, int, error) {
	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE wallet_id=$1`, walletID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE wallet_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectEntries(rows)
	return entries, total, err
}

func (r *txRepository) ListMasterEntries(ctx context.Context, rng DateRange) ([]LedgerEntry, error) {
	var from, to *time.Time
	if !rng.From.IsZero() {
		from = &rng.From
	}
	if !rng.To.IsZero() {
		to = &rng.To
	}
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE wallet_id IS NULL
		  AND ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]LedgerEntry, error) {
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			sourceKey *string
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Type, &e.Direction, &e.Amount, &e.Description, &e.Category, &sourceKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		if sourceKey != nil {
			e.SourceKey = *sourceKey
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
