package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// Post books a wallet entry inside tx. The wallet row stays locked until the
// surrounding transaction ends, so the sufficiency check and the mutation are
// one critical section.
func Post(ctx context.Context, tx TxRepository, in PostInput, now time.Time) (LedgerEntry, Wallet, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return LedgerEntry{}, Wallet{}, err
	}
	dir, err := DirectionOf(in.Type, false)
	if err != nil {
		return LedgerEntry{}, Wallet{}, shared.Validation("unknown entry type %q", in.Type)
	}
	wallet, err := tx.GetWalletForUpdate(ctx, in.WalletID)
	if err != nil {
		return LedgerEntry{}, Wallet{}, err
	}
	switch dir {
	case DirectionDebit:
		if wallet.Available.LessThan(in.Amount) {
			return LedgerEntry{}, Wallet{}, fmt.Errorf("ledger: wallet %s available %s < %s: %w",
				wallet.ID, wallet.Available.StringFixed(MoneyPlaces), in.Amount.StringFixed(MoneyPlaces), shared.ErrInsufficientFunds)
		}
		wallet.Available = wallet.Available.Sub(in.Amount)
	case DirectionCredit:
		wallet.Available = wallet.Available.Add(in.Amount)
	}
	wallet.UpdatedAt = now
	if err := tx.UpdateWalletBalance(ctx, wallet); err != nil {
		return LedgerEntry{}, Wallet{}, err
	}
	wallet.Version++

	category := in.Category
	if category == "" {
		category = string(in.Type)
	}
	walletID := wallet.ID
	entry := LedgerEntry{
		ID:          uuid.New(),
		WalletID:    &walletID,
		Type:        in.Type,
		Direction:   dir,
		Amount:      in.Amount,
		Description: in.Description,
		Category:    category,
		CreatedAt:   now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return LedgerEntry{}, Wallet{}, err
	}
	return entry, wallet, nil
}

// PostMaster appends a Master-level entry inside tx.
func PostMaster(ctx context.Context, tx TxRepository, in MasterInput, now time.Time) (LedgerEntry, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return LedgerEntry{}, err
	}
	if in.Category == "" {
		return LedgerEntry{}, shared.Validation("master entry category required")
	}
	dir, err := DirectionOf(in.Type, true)
	if err != nil {
		return LedgerEntry{}, shared.Validation("unknown entry type %q", in.Type)
	}
	entry := LedgerEntry{
		ID:          uuid.New(),
		Type:        in.Type,
		Direction:   dir,
		Amount:      in.Amount,
		Description: in.Description,
		Category:    in.Category,
		SourceKey:   in.SourceKey,
		CreatedAt:   now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// Reserve moves amount from available to reserved.
func Reserve(ctx context.Context, tx TxRepository, walletID uuid.UUID, amount decimal.Decimal, now time.Time) (Wallet, error) {
	if err := ValidateAmount(amount); err != nil {
		return Wallet{}, err
	}
	wallet, err := tx.GetWalletForUpdate(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	if wallet.Available.LessThan(amount) {
		return Wallet{}, fmt.Errorf("ledger: reserve %s on wallet %s: %w", amount.StringFixed(MoneyPlaces), wallet.ID, shared.ErrInsufficientFunds)
	}
	wallet.Available = wallet.Available.Sub(amount)
	wallet.Reserved = wallet.Reserved.Add(amount)
	return saveBalance(ctx, tx, wallet, now)
}

// Release moves amount from reserved back to available.
func Release(ctx context.Context, tx TxRepository, walletID uuid.UUID, amount decimal.Decimal, now time.Time) (Wallet, error) {
	if err := ValidateAmount(amount); err != nil {
		return Wallet{}, err
	}
	wallet, err := tx.GetWalletForUpdate(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	if wallet.Reserved.LessThan(amount) {
		return Wallet{}, fmt.Errorf("release %s with %s reserved: %w", amount.StringFixed(MoneyPlaces), wallet.Reserved.StringFixed(MoneyPlaces), ErrInvalidState)
	}
	wallet.Reserved = wallet.Reserved.Sub(amount)
	wallet.Available = wallet.Available.Add(amount)
	return saveBalance(ctx, tx, wallet, now)
}

func saveBalance(ctx context.Context, tx TxRepository, wallet Wallet, now time.Time) (Wallet, error) {
	wallet.UpdatedAt = now
	if err := tx.UpdateWalletBalance(ctx, wallet); err != nil {
		return Wallet{}, err
	}
	wallet.Version++
	return wallet, nil
}
