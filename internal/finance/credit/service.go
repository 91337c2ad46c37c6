package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/shared"
)

const approvalModule = "credit"

// Service coordinates the credit lifecycle.
type Service struct {
	repo      Repository
	config    ledger.ConfigReader
	approvals ApprovalPort
	audit     AuditPort
	notifier  Notifier
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the credit service. approvals, audit and notifier may be nil.
func NewService(repo Repository, config ledger.ConfigReader, approvals ApprovalPort, audit AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		config:    config,
		approvals: approvals,
		audit:     audit,
		notifier:  notifier,
		observer:  nopObserver{},
		logger:    logger,
		now:       time.Now,
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

// RequestCredit creates a pending request for accountID after checking the
// role's limits. The current interest rate is snapshotted on the request.
func (s *Service) RequestCredit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (CreditRequest, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return CreditRequest{}, err
	}
	if !actor.IsMaster() && actor.ID != accountID {
		return CreditRequest{}, fmt.Errorf("%w: request for another account: %w", ErrForbidden, shared.ErrForbidden)
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return CreditRequest{}, fmt.Errorf("credit: load config: %w", err)
	}
	now := s.now().UTC()
	req := CreditRequest{
		ID:              uuid.New(),
		AccountID:       accountID,
		RequestedAmount: amount,
		State:           StatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status != ledger.AccountActive {
			return shared.Ineligible("account_status", "account is %s", account.Status)
		}
		wallet, err := tx.GetWalletByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		limits, ok := cfg.Limits(account.Role, wallet.Available)
		if !ok {
			return shared.Ineligible("role", "role %s cannot request credit", account.Role)
		}
		if err := checkLimits(limits, amount, wallet.Available); err != nil {
			return err
		}
		req.InterestRate = limits.InterestRate
		return tx.InsertCredit(ctx, req)
	})
	if err != nil {
		s.reject("request_credit", err)
		return CreditRequest{}, err
	}
	s.observer.CreditTransition(string(StatePending))
	s.recordApproval(ctx, req.ID, actor, shared.ApprovalSubmit, "requested "+amount.StringFixed(ledger.MoneyPlaces))
	return req, nil
}

func checkLimits(limits finconfig.RoleLimits, amount, available decimal.Decimal) error {
	if amount.GreaterThan(limits.MaxCredit) {
		return shared.Ineligible("max_credit", "amount %s exceeds %s",
			amount.StringFixed(ledger.MoneyPlaces), limits.MaxCredit.StringFixed(ledger.MoneyPlaces))
	}
	if available.LessThan(limits.MinBalance) {
		return shared.Ineligible("min_balance", "available %s below %s",
			available.StringFixed(ledger.MoneyPlaces), limits.MinBalance.StringFixed(ledger.MoneyPlaces))
	}
	return nil
}

// ApproveCredit approves a pending request. Master only. The rate snapshotted
// at request time is kept.
func (s *Service) ApproveCredit(ctx context.Context, id uuid.UUID, approvedAmount decimal.Decimal, actor shared.Actor) (CreditRequest, error) {
	if !actor.IsMaster() {
		return CreditRequest{}, fmt.Errorf("%w: approve requires master: %w", ErrForbidden, shared.ErrForbidden)
	}
	if err := ledger.ValidateAmount(approvedAmount); err != nil {
		return CreditRequest{}, err
	}
	req, err := s.decide(ctx, id, StateApproved, actor, func(c *CreditRequest) {
		c.ApprovedAmount = decimal.NewNullDecimal(approvedAmount)
	})
	if err != nil {
		s.reject("approve_credit", err)
		return CreditRequest{}, err
	}
	s.recordApproval(ctx, req.ID, actor, shared.ApprovalApprove, "approved "+approvedAmount.StringFixed(ledger.MoneyPlaces))
	s.notify(ctx, EventApproved, req, approvedAmount)
	return req, nil
}

// RejectCredit rejects a pending request. Master only.
func (s *Service) RejectCredit(ctx context.Context, id uuid.UUID, note string, actor shared.Actor) (CreditRequest, error) {
	if !actor.IsMaster() {
		return CreditRequest{}, fmt.Errorf("%w: reject requires master: %w", ErrForbidden, shared.ErrForbidden)
	}
	req, err := s.decide(ctx, id, StateRejected, actor, nil)
	if err != nil {
		s.reject("reject_credit", err)
		return CreditRequest{}, err
	}
	s.recordApproval(ctx, req.ID, actor, shared.ApprovalReject, note)
	s.notify(ctx, EventRejected, req, req.RequestedAmount)
	return req, nil
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, next State, actor shared.Actor, apply func(*CreditRequest)) (CreditRequest, error) {
	var req CreditRequest
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetCreditForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := req.transition(next, now); err != nil {
			return err
		}
		decidedBy := actor.ID
		req.DecidedBy = &decidedBy
		req.DecidedAt = &now
		if apply != nil {
			apply(&req)
		}
		return tx.UpdateCredit(ctx, req)
	})
	if err != nil {
		return CreditRequest{}, err
	}
	s.observer.CreditTransition(string(next))
	return req, nil
}

// RepayCredit debits the total due from the debtor wallet, marks the request
// paid and posts the Master mirror entry in one transaction. Nothing is
// written unless all three succeed.
func (s *Service) RepayCredit(ctx context.Context, id uuid.UUID, actor shared.Actor) (CreditRequest, error) {
	var req CreditRequest
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetCreditForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsMaster() && actor.ID != req.AccountID {
			return fmt.Errorf("%w: repay another account's credit: %w", ErrForbidden, shared.ErrForbidden)
		}
		if req.State != StateApproved && req.State != StateOverdue {
			return fmt.Errorf("credit: repay in state %s: %w", req.State, shared.ErrStateConflict)
		}
		due := req.TotalDue()
		wallet, err := tx.GetWalletByAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if _, _, err := ledger.Post(ctx, tx, ledger.PostInput{
			WalletID:    wallet.ID,
			Type:        ledger.EntryCreditRepayment,
			Amount:      due,
			Description: fmt.Sprintf("credit %s repayment", req.ID),
		}, now); err != nil {
			return err
		}
		if err := req.transition(StatePaid, now); err != nil {
			return err
		}
		req.TotalPaid = decimal.NewNullDecimal(due)
		req.PaidAt = &now
		if err := tx.UpdateCredit(ctx, req); err != nil {
			return err
		}
		if _, err := ledger.PostMaster(ctx, tx, mirrorInput(req), now); err != nil {
			return fmt.Errorf("credit: mirror repayment %s: %w: %w", req.ID, shared.ErrIntegrity, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrIntegrity) {
			s.observer.IntegrityFailure("repay_credit")
		}
		s.reject("repay_credit", err)
		return CreditRequest{}, err
	}
	s.observer.CreditTransition(string(StatePaid))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "credit.repay",
			Entity:   "credit_request",
			EntityID: req.ID.String(),
			Meta: map[string]any{
				"account_id": req.AccountID.String(),
				"total_paid": req.TotalPaid.Decimal.StringFixed(ledger.MoneyPlaces),
			},
			At: now,
		})
	}
	s.notify(ctx, EventRepaid, req, req.TotalPaid.Decimal)
	return req, nil
}

func mirrorInput(req CreditRequest) ledger.MasterInput {
	return ledger.MasterInput{
		Type:        ledger.EntryCreditRepayment,
		Amount:      req.TotalPaid.Decimal,
		Description: fmt.Sprintf("credit %s repaid", req.ID),
		Category:    ledger.CategoryCreditReturn,
		SourceKey:   MirrorSourceKey(req.ID),
	}
}

// EnsureMirror posts the Master mirror of a paid credit when it is missing.
// It reports whether an entry was written; repeated calls are no-ops.
func (s *Service) EnsureMirror(ctx context.Context, id uuid.UUID) (bool, error) {
	var posted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetCreditForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.State != StatePaid || !req.TotalPaid.Valid {
			return fmt.Errorf("credit: mirror for %s credit: %w", req.State, shared.ErrStateConflict)
		}
		exists, err := tx.MirrorExists(ctx, MirrorSourceKey(req.ID))
		if err != nil || exists {
			return err
		}
		if _, err := ledger.PostMaster(ctx, tx, mirrorInput(req), s.now().UTC()); err != nil {
			if errors.Is(err, ledger.ErrSourceConflict) {
				return nil
			}
			return err
		}
		posted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if posted {
		s.logger.Warn("credit mirror repaired", slog.String("credit_id", id.String()))
	}
	return posted, nil
}

// ListMissingMirrors returns paid credits without a Master mirror entry.
func (s *Service) ListMissingMirrors(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.ListPaidWithoutMirror(ctx, limit)
		return err
	})
	return ids, err
}

// MarkOverdue moves approved requests decided more than after ago to overdue
// and returns how many moved.
func (s *Service) MarkOverdue(ctx context.Context, after time.Duration) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-after)
	var ids []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.ListApprovedBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, id := range ids {
		var changed bool
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			req, err := tx.GetCreditForUpdate(ctx, id)
			if err != nil {
				return err
			}
			changed = req.State == StateApproved
			if !changed {
				return nil
			}
			if err := req.transition(StateOverdue, now); err != nil {
				return err
			}
			return tx.UpdateCredit(ctx, req)
		})
		if err != nil {
			return moved, fmt.Errorf("credit: mark %s overdue: %w", id, err)
		}
		if changed {
			moved++
			s.observer.CreditTransition(string(StateOverdue))
		}
	}
	return moved, nil
}

// GetCredit returns a request. Non-Master actors only see their own.
func (s *Service) GetCredit(ctx context.Context, id uuid.UUID, actor shared.Actor) (CreditRequest, error) {
	var req CreditRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetCredit(ctx, id)
		return err
	})
	if err != nil {
		return CreditRequest{}, err
	}
	if !actor.IsMaster() && actor.ID != req.AccountID {
		return CreditRequest{}, ErrCreditNotFound
	}
	return req, nil
}

// ListCredits lists requests for accountID. Master may pass uuid.Nil for all.
func (s *Service) ListCredits(ctx context.Context, accountID uuid.UUID, actor shared.Actor) ([]CreditRequest, error) {
	if !actor.IsMaster() {
		accountID = actor.ID
	}
	var reqs []CreditRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reqs, err = tx.ListCredits(ctx, accountID)
		return err
	})
	return reqs, err
}

// History returns the approval trail of a request.
func (s *Service) History(ctx context.Context, id uuid.UUID, actor shared.Actor) ([]shared.ApprovalLog, error) {
	if _, err := s.GetCredit(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, approvalModule, id)
}

func (s *Service) recordApproval(ctx context.Context, id uuid.UUID, actor shared.Actor, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   id,
		ActorID: actor.ID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("record credit approval", slog.String("credit_id", id.String()), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, typ EventType, req CreditRequest, amount decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	event := Event{Type: typ, CreditID: req.ID, AccountID: req.AccountID, Amount: amount, At: s.now().UTC()}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Error("enqueue credit notification", slog.String("event", string(typ)), slog.Any("error", err))
	}
}

func (s *Service) reject(op string, err error) {
	switch {
	case errors.Is(err, shared.ErrInsufficientFunds),
		errors.Is(err, shared.ErrIneligible),
		errors.Is(err, shared.ErrStateConflict),
		errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrForbidden):
		s.observer.Rejected(op, err)
	default:
		s.logger.Error("credit operation failed", slog.String("op", op), slog.Any("error", err))
	}
}
