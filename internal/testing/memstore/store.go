// Package memstore is an in-memory implementation of the ledger and credit
// repositories for tests. Transactions are serialised by one mutex and
// rolled back by restoring a snapshot when fn fails.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/malimina/internal/finance/credit"
	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/platform/db"
)

var errWalletExists = errors.New("memstore: account already has a wallet")

type state struct {
	accounts map[uuid.UUID]ledger.Account
	wallets  map[uuid.UUID]ledger.Wallet
	entries  []ledger.LedgerEntry
	credits  map[uuid.UUID]credit.CreditRequest
}

func (s state) clone() state {
	out := state{
		accounts: make(map[uuid.UUID]ledger.Account, len(s.accounts)),
		wallets:  make(map[uuid.UUID]ledger.Wallet, len(s.wallets)),
		entries:  append([]ledger.LedgerEntry(nil), s.entries...),
		credits:  make(map[uuid.UUID]credit.CreditRequest, len(s.credits)),
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.credits {
		out.credits[k] = v
	}
	return out
}

// Store holds all records.
type Store struct {
	mu    sync.Mutex
	state state

	// EntryFault, when set, is consulted before every entry insert.
	EntryFault func(ledger.LedgerEntry) error
}

// New returns an empty store.
func New() *Store {
	return &Store{state: state{
		accounts: map[uuid.UUID]ledger.Account{},
		wallets:  map[uuid.UUID]ledger.Wallet{},
		credits:  map[uuid.UUID]credit.CreditRequest{},
	}}
}

// WithTx satisfies credit.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, credit.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(ctx, &tx{store: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Ledger exposes the store as a ledger.Repository.
func (s *Store) Ledger() ledger.Repository {
	return ledgerRepo{store: s}
}

type ledgerRepo struct {
	store *Store
}

func (r ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx credit.TxRepository) error {
		return fn(ctx, tx)
	})
}

// Seed stores account and wallet as given.
func (s *Store) Seed(account ledger.Account, wallet ledger.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[account.ID] = account
	s.state.wallets[wallet.ID] = wallet
}

// Entries returns a copy of every stored entry.
func (s *Store) Entries() []ledger.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.LedgerEntry(nil), s.state.entries...)
}

// Wallet returns the stored wallet.
func (s *Store) Wallet(id uuid.UUID) (ledger.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.state.wallets[id]
	return w, ok
}

// Credit returns the stored credit request.
func (s *Store) Credit(id uuid.UUID) (credit.CreditRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.credits[id]
	return c, ok
}

type tx struct {
	store *Store
}

func (t *tx) st() *state { return &t.store.state }

func (t *tx) InsertAccount(_ context.Context, a ledger.Account) error {
	t.st().accounts[a.ID] = a
	return nil
}

func (t *tx) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	a, ok := t.st().accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (t *tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *tx) UpdateAccountStatus(_ context.Context, id uuid.UUID, status ledger.AccountStatus, at time.Time) error {
	a, ok := t.st().accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	t.st().accounts[id] = a
	return nil
}

func (t *tx) InsertWallet(_ context.Context, w ledger.Wallet) error {
	for _, existing := range t.st().wallets {
		if existing.AccountID == w.AccountID {
			return errWalletExists
		}
	}
	t.st().wallets[w.ID] = w
	return nil
}

func (t *tx) GetWallet(_ context.Context, id uuid.UUID) (ledger.Wallet, error) {
	w, ok := t.st().wallets[id]
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, nil
}

func (t *tx) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (ledger.Wallet, error) {
	return t.GetWallet(ctx, id)
}

func (t *tx) GetWalletByAccount(_ context.Context, accountID uuid.UUID) (ledger.Wallet, error) {
	for _, w := range t.st().wallets {
		if w.AccountID == accountID {
			return w, nil
		}
	}
	return ledger.Wallet{}, ledger.ErrWalletNotFound
}

func (t *tx) UpdateWalletBalance(_ context.Context, w ledger.Wallet) error {
	stored, ok := t.st().wallets[w.ID]
	if !ok || stored.Version != w.Version {
		return db.ErrConcurrentUpdate
	}
	w.Version++
	t.st().wallets[w.ID] = w
	return nil
}

func (t *tx) InsertEntry(_ context.Context, e ledger.LedgerEntry) error {
	if t.store.EntryFault != nil {
		if err := t.store.EntryFault(e); err != nil {
			return err
		}
	}
	if e.SourceKey != "" {
		for _, existing := range t.st().entries {
			if existing.SourceKey == e.SourceKey {
				return ledger.ErrSourceConflict
			}
		}
	}
	t.st().entries = append(t.st().entries, e)
	return nil
}

func (t *tx) ListEntries(_ context.Context, walletID uuid.UUID, limit, offset int) ([]ledger.LedgerEntry, int, error) {
	var matched []ledger.LedgerEntry
	for i := len(t.st().entries) - 1; i >= 0; i-- {
		e := t.st().entries[i]
		if e.WalletID != nil && *e.WalletID == walletID {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (t *tx) ListMasterEntries(_ context.Context, r ledger.DateRange) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range t.st().entries {
		if e.IsMaster() && r.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) InsertCredit(_ context.Context, c credit.CreditRequest) error {
	t.st().credits[c.ID] = c
	return nil
}

func (t *tx) GetCredit(_ context.Context, id uuid.UUID) (credit.CreditRequest, error) {
	c, ok := t.st().credits[id]
	if !ok {
		return credit.CreditRequest{}, credit.ErrCreditNotFound
	}
	return c, nil
}

func (t *tx) GetCreditForUpdate(ctx context.Context, id uuid.UUID) (credit.CreditRequest, error) {
	return t.GetCredit(ctx, id)
}

func (t *tx) UpdateCredit(_ context.Context, c credit.CreditRequest) error {
	stored, ok := t.st().credits[c.ID]
	if !ok {
		return credit.ErrCreditNotFound
	}
	if stored.TotalPaid.Valid {
		c.TotalPaid = stored.TotalPaid
	}
	t.st().credits[c.ID] = c
	return nil
}

func (t *tx) ListCredits(_ context.Context, accountID uuid.UUID) ([]credit.CreditRequest, error) {
	var out []credit.CreditRequest
	for _, c := range t.st().credits {
		if accountID == uuid.Nil || c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) ListApprovedBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, c := range t.st().credits {
		if c.State == credit.StateApproved && c.DecidedAt != nil && c.DecidedAt.Before(cutoff) {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (t *tx) ListPaidWithoutMirror(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, c := range t.st().credits {
		if c.State != credit.StatePaid {
			continue
		}
		exists, _ := t.MirrorExists(ctx, credit.MirrorSourceKey(c.ID))
		if !exists {
			out = append(out, c.ID)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *tx) MirrorExists(_ context.Context, sourceKey string) (bool, error) {
	for _, e := range t.st().entries {
		if e.SourceKey == sourceKey {
			return true, nil
		}
	}
	return false, nil
}

// ForceCredit stores c as is; tests use it to stage legacy rows.
func (s *Store) ForceCredit(c credit.CreditRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.credits[c.ID] = c
}
