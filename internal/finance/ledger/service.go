package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// ConfigReader exposes the current financial configuration.
type ConfigReader interface {
	Get(ctx context.Context) (finconfig.FinancialConfig, error)
}

// AuditPort records account lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives posting outcomes for metrics.
type Observer interface {
	EntryPosted(entryType string, direction string, master bool)
	Rejected(op string, err error)
}

type nopObserver struct{}

func (nopObserver) EntryPosted(string, string, bool) {}
func (nopObserver) Rejected(string, error)           {}

// Service coordinates wallet postings, reservations and account lifecycle.
type Service struct {
	repo     Repository
	config   ConfigReader
	audit    AuditPort
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, config ConfigReader, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		config:   config,
		audit:    audit,
		observer: nopObserver{},
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches a metrics observer.
func (s *Service) WithObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// RegisterAccount creates a pending account. Wallets are created on activation.
func (s *Service) RegisterAccount(ctx context.Context, name string, role shared.Role) (Account, error) {
	if name == "" {
		return Account{}, shared.Validation("account name required")
	}
	if role != shared.RoleCollaborator && role != shared.RoleSubscriber {
		return Account{}, shared.Validation("account role must be collaborator or subscriber, got %q", role)
	}
	now := s.now().UTC()
	account := Account{
		ID:        uuid.New(),
		Name:      name,
		Role:      role,
		Status:    AccountPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// GetAccount returns an account by id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

// ActivateAccount moves a pending account to active and opens its wallet.
// Subscribers must bring at least capital_min_ativacao, which is booked as a
// financing inflow.
func (s *Service) ActivateAccount(ctx context.Context, accountID uuid.UUID, initialCapital decimal.Decimal, actor shared.Actor) (Account, Wallet, error) {
	if initialCapital.IsNegative() {
		return Account{}, Wallet{}, shared.Validation("initial capital must not be negative")
	}
	if !initialCapital.IsZero() {
		if err := ValidateAmount(initialCapital); err != nil {
			return Account{}, Wallet{}, err
		}
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return Account{}, Wallet{}, fmt.Errorf("ledger: load config: %w", err)
	}

	var (
		account Account
		wallet  Wallet
	)
	now := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status != AccountPending {
			return fmt.Errorf("ledger: activate account in status %s: %w", account.Status, shared.ErrStateConflict)
		}
		if account.Role == shared.RoleSubscriber && initialCapital.LessThan(cfg.CapitalMinAtivacao) {
			return shared.Ineligible("capital_min_ativacao", "initial capital %s below %s",
				initialCapital.StringFixed(MoneyPlaces), cfg.CapitalMinAtivacao.StringFixed(MoneyPlaces))
		}
		wallet = Wallet{
			ID:        uuid.New(),
			AccountID: account.ID,
			Available: decimal.Zero,
			Reserved:  decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertWallet(ctx, wallet); err != nil {
			return err
		}
		if initialCapital.IsPositive() {
			_, wallet, err = Post(ctx, tx, PostInput{
				WalletID:    wallet.ID,
				Type:        EntryFinancingInflow,
				Amount:      initialCapital,
				Description: "initial capital",
			}, now)
			if err != nil {
				return err
			}
		}
		account.Status = AccountActive
		account.UpdatedAt = now
		return tx.UpdateAccountStatus(ctx, account.ID, AccountActive, now)
	})
	if err != nil {
		s.reject("activate_account", err)
		return Account{}, Wallet{}, err
	}
	if initialCapital.IsPositive() {
		s.observer.EntryPosted(string(EntryFinancingInflow), string(DirectionCredit), false)
	}
	s.record(ctx, actor, "account.activate", account.ID, map[string]any{
		"role":            string(account.Role),
		"initial_capital": initialCapital.StringFixed(MoneyPlaces),
	})
	return account, wallet, nil
}

// BlockAccount marks an account blocked.
func (s *Service) BlockAccount(ctx context.Context, accountID uuid.UUID, actor shared.Actor) (Account, error) {
	var account Account
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == AccountBlocked {
			return fmt.Errorf("ledger: account already blocked: %w", shared.ErrStateConflict)
		}
		account.Status = AccountBlocked
		account.UpdatedAt = now
		return tx.UpdateAccountStatus(ctx, account.ID, AccountBlocked, now)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actor, "account.block", account.ID, nil)
	return account, nil
}

// GetWallet returns a wallet by id.
func (s *Service) GetWallet(ctx context.Context, walletID uuid.UUID) (Wallet, error) {
	var wallet Wallet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wallet, err = tx.GetWallet(ctx, walletID)
		return err
	})
	return wallet, err
}

// GetWalletByAccount returns the wallet owned by accountID.
func (s *Service) GetWalletByAccount(ctx context.Context, accountID uuid.UUID) (Wallet, error) {
	var wallet Wallet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wallet, err = tx.GetWalletByAccount(ctx, accountID)
		return err
	})
	return wallet, err
}

// GetBalance returns the available and reserved balance of a wallet.
func (s *Service) GetBalance(ctx context.Context, walletID uuid.UUID) (Balance, error) {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return Balance{}, err
	}
	return wallet.Balance(), nil
}

// PostEntry appends a wallet entry and applies it to the balance atomically.
// Non-Master actors may only debit their own wallet with holder entry types.
func (s *Service) PostEntry(ctx context.Context, in PostInput, actor shared.Actor) (LedgerEntry, error) {
	if err := authorizePost(in.Type, actor); err != nil {
		s.reject("post_entry", err)
		return LedgerEntry{}, err
	}
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if !actor.IsMaster() {
			wallet, err := tx.GetWallet(ctx, in.WalletID)
			if err != nil {
				return err
			}
			if wallet.AccountID != actor.ID {
				return fmt.Errorf("ledger: wallet %s belongs to another account: %w", wallet.ID, shared.ErrForbidden)
			}
		}
		var err error
		entry, _, err = Post(ctx, tx, in, s.now().UTC())
		return err
	})
	if err != nil {
		s.reject("post_entry", err)
		return LedgerEntry{}, err
	}
	s.observer.EntryPosted(string(entry.Type), string(entry.Direction), false)
	return entry, nil
}

// ReserveFunds earmarks part of the available balance.
func (s *Service) ReserveFunds(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Balance, error) {
	var wallet Wallet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wallet, err = Reserve(ctx, tx, walletID, amount, s.now().UTC())
		return err
	})
	if err != nil {
		s.reject("reserve_funds", err)
		return Balance{}, err
	}
	return wallet.Balance(), nil
}

// ReleaseFunds returns reserved funds to the available balance.
func (s *Service) ReleaseFunds(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Balance, error) {
	var wallet Wallet
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wallet, err = Release(ctx, tx, walletID, amount, s.now().UTC())
		return err
	})
	if err != nil {
		s.reject("release_funds", err)
		return Balance{}, err
	}
	return wallet.Balance(), nil
}

// ListEntries pages through a wallet's entries, newest first.
func (s *Service) ListEntries(ctx context.Context, walletID uuid.UUID, page shared.Pagination) ([]LedgerEntry, shared.Pagination, error) {
	var entries []LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetWallet(ctx, walletID); err != nil {
			return err
		}
		var (
			total int
			err   error
		)
		entries, total, err = tx.ListEntries(ctx, walletID, page.PerPage, page.Offset())
		page = shared.NewPagination(page.Page, page.PerPage, total)
		return err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, page, nil
}

// PostMasterEntry appends a Master-level entry.
func (s *Service) PostMasterEntry(ctx context.Context, in MasterInput, actor shared.Actor) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = PostMaster(ctx, tx, in, s.now().UTC())
		return err
	})
	if err != nil {
		s.reject("post_master_entry", err)
		return LedgerEntry{}, err
	}
	s.observer.EntryPosted(string(entry.Type), string(entry.Direction), true)
	s.record(ctx, actor, "master_entry.post", entry.ID, map[string]any{
		"type":     string(entry.Type),
		"amount":   entry.Amount.StringFixed(MoneyPlaces),
		"category": entry.Category,
	})
	return entry, nil
}

// ListMasterEntries returns Master-level entries in r, oldest first.
func (s *Service) ListMasterEntries(ctx context.Context, r DateRange) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListMasterEntries(ctx, r)
		return err
	})
	return entries, err
}

func (s *Service) reject(op string, err error) {
	switch {
	case errors.Is(err, shared.ErrInsufficientFunds),
		errors.Is(err, shared.ErrIneligible),
		errors.Is(err, shared.ErrStateConflict),
		errors.Is(err, shared.ErrValidation):
		s.observer.Rejected(op, err)
	default:
		s.logger.Error("ledger operation failed", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "ledger",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func authorizePost(t EntryType, actor shared.Actor) error {
	if actor.IsMaster() {
		return nil
	}
	if _, err := DirectionOf(t, false); err != nil {
		return nil
	}
	if !HolderMayPost(t) {
		return fmt.Errorf("ledger: %s entries require master: %w", t, shared.ErrForbidden)
	}
	return nil
}
