package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/malimina/internal/shared"
)

var (
	// ErrSourceConflict indicates an entry with the same source key exists.
	ErrSourceConflict = errors.New("ledger: source key already posted")
	// ErrInvalidState indicates the reserved balance cannot cover a release.
	ErrInvalidState = fmt.Errorf("ledger: invalid state: %w", shared.ErrStateConflict)
	// ErrWalletNotFound indicates a missing wallet.
	ErrWalletNotFound = fmt.Errorf("ledger: wallet %w", shared.ErrNotFound)
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = fmt.Errorf("ledger: account %w", shared.ErrNotFound)
)

// Repository abstracts transactional repository behaviour.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside one transaction.
// ForUpdate reads hold an exclusive row lock until the transaction ends.
type TxRepository interface {
	InsertAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (Account, error)
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status AccountStatus, at time.Time) error

	InsertWallet(ctx context.Context, wallet Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (Wallet, error)
	GetWalletForUpdate(ctx context.Context, id uuid.UUID) (Wallet, error)
	GetWalletByAccount(ctx context.Context, accountID uuid.UUID) (Wallet, error)
	// UpdateWalletBalance writes balances when the stored version equals
	// wallet.Version and increments it; otherwise db.ErrConcurrentUpdate.
	UpdateWalletBalance(ctx context.Context, wallet Wallet) error

	InsertEntry(ctx context.Context, entry LedgerEntry) error
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]LedgerEntry, int, error)
	ListMasterEntries(ctx context.Context, r DateRange) ([]LedgerEntry, error)
}
