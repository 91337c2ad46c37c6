package credit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/finance/credit"
	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/shared"
	"github.com/odyssey-erp/malimina/internal/testing/memstore"
)

var (
	t0     = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	master = shared.Actor{ID: uuid.New(), Role: shared.RoleMaster}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []credit.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e credit.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

type memoryApprovals struct {
	logs []shared.ApprovalLog
}

func (m *memoryApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type fixture struct {
	store     *memstore.Store
	config    *memstore.Config
	service   *credit.Service
	notifier  *recordingNotifier
	approvals *memoryApprovals
	account   ledger.Account
	wallet    ledger.Wallet
	owner     shared.Actor
	clock     time.Time
}

func newFixture(t *testing.T, role shared.Role, status ledger.AccountStatus, available string) *fixture {
	t.Helper()
	f := &fixture{
		store:     memstore.New(),
		config:    &memstore.Config{Cfg: finconfig.DefaultConfig()},
		notifier:  &recordingNotifier{},
		approvals: &memoryApprovals{},
		clock:     t0,
	}
	f.account = ledger.Account{ID: uuid.New(), Name: "Dina", Role: role, Status: status, CreatedAt: t0}
	f.wallet = ledger.Wallet{ID: uuid.New(), AccountID: f.account.ID, Available: dec(available), Reserved: decimal.Zero}
	f.owner = shared.Actor{ID: f.account.ID, Role: role}
	f.store.Seed(f.account, f.wallet)
	f.service = credit.NewService(f.store, f.config, f.approvals, nil, f.notifier, nil)
	f.service.WithNow(func() time.Time { return f.clock })
	return f
}

func (f *fixture) approved(t *testing.T, amount string) credit.CreditRequest {
	t.Helper()
	ctx := context.Background()
	req, err := f.service.RequestCredit(ctx, f.account.ID, dec(amount), f.owner)
	require.NoError(t, err)
	req, err = f.service.ApproveCredit(ctx, req.ID, dec(amount), master)
	require.NoError(t, err)
	return req
}

func (f *fixture) available(t *testing.T) decimal.Decimal {
	t.Helper()
	w, ok := f.store.Wallet(f.wallet.ID)
	require.True(t, ok)
	return w.Available
}

func TestRequestCreditSnapshotsRate(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	ctx := context.Background()

	req, err := f.service.RequestCredit(ctx, f.account.ID, dec("2000"), f.owner)
	require.NoError(t, err)
	require.Equal(t, credit.StatePending, req.State)
	require.True(t, req.InterestRate.Equal(dec("0.10")))

	f.config.Cfg.JurosCreditoColab = dec("0.30")
	approved, err := f.service.ApproveCredit(ctx, req.ID, dec("2000"), master)
	require.NoError(t, err)
	require.Equal(t, credit.StateApproved, approved.State)
	require.True(t, approved.InterestRate.Equal(dec("0.10")))
	require.Equal(t, "2200.00", approved.TotalDue().StringFixed(2))
	require.Equal(t, master.ID, *approved.DecidedBy)

	history, err := f.service.History(ctx, req.ID, f.owner)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, shared.ApprovalSubmit, history[0].Action)
	require.Equal(t, shared.ApprovalApprove, history[1].Action)
}

func TestRequestCreditEligibility(t *testing.T) {
	cases := []struct {
		name      string
		role      shared.Role
		status    ledger.AccountStatus
		available string
		amount    string
		rule      string
	}{
		{"blocked", shared.RoleCollaborator, ledger.AccountBlocked, "1500", "100", "account_status"},
		{"over max", shared.RoleCollaborator, ledger.AccountActive, "1500", "5000.01", "max_credit"},
		{"under min balance", shared.RoleCollaborator, ledger.AccountActive, "999.99", "100", "min_balance"},
		{"subscriber over reserve share", shared.RoleSubscriber, ledger.AccountActive, "1000", "500.01", "max_credit"},
		{"subscriber under capital", shared.RoleSubscriber, ledger.AccountActive, "499.99", "100", "min_balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.role, tc.status, tc.available)
			_, err := f.service.RequestCredit(context.Background(), f.account.ID, dec(tc.amount), f.owner)
			var inel *shared.IneligibleError
			require.ErrorAs(t, err, &inel)
			require.Equal(t, tc.rule, inel.Rule)
			require.ErrorIs(t, err, shared.ErrIneligible)
		})
	}
}

func TestSubscriberWithinReserveShare(t *testing.T) {
	f := newFixture(t, shared.RoleSubscriber, ledger.AccountActive, "1000")
	req, err := f.service.RequestCredit(context.Background(), f.account.ID, dec("500"), f.owner)
	require.NoError(t, err)
	require.True(t, req.InterestRate.Equal(dec("0.15")))
}

func TestRequestCreditForOtherAccountForbidden(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	other := shared.Actor{ID: uuid.New(), Role: shared.RoleCollaborator}
	_, err := f.service.RequestCredit(context.Background(), f.account.ID, dec("100"), other)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDecisionsRequirePendingAndMaster(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	ctx := context.Background()
	req, err := f.service.RequestCredit(ctx, f.account.ID, dec("100"), f.owner)
	require.NoError(t, err)

	_, err = f.service.ApproveCredit(ctx, req.ID, dec("100"), f.owner)
	require.ErrorIs(t, err, shared.ErrForbidden)

	rejected, err := f.service.RejectCredit(ctx, req.ID, "no history", master)
	require.NoError(t, err)
	require.Equal(t, credit.StateRejected, rejected.State)

	_, err = f.service.ApproveCredit(ctx, req.ID, dec("100"), master)
	require.ErrorIs(t, err, shared.ErrStateConflict)
	_, err = f.service.RejectCredit(ctx, req.ID, "", master)
	require.ErrorIs(t, err, shared.ErrStateConflict)
	_, err = f.service.RepayCredit(ctx, req.ID, f.owner)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = f.service.ApproveCredit(ctx, uuid.New(), dec("100"), master)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRepayInsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "2000")
	req := f.approved(t, "2000")

	_, err := f.service.RepayCredit(context.Background(), req.ID, f.owner)
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)

	stored, ok := f.store.Credit(req.ID)
	require.True(t, ok)
	require.Equal(t, credit.StateApproved, stored.State)
	require.False(t, stored.TotalPaid.Valid)
	require.Empty(t, f.store.Entries())
	require.True(t, f.available(t).Equal(dec("2000")))
}

func TestRepayDebitsWalletAndMirrors(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "3000")
	req := f.approved(t, "2000")

	paid, err := f.service.RepayCredit(context.Background(), req.ID, f.owner)
	require.NoError(t, err)
	require.Equal(t, credit.StatePaid, paid.State)
	require.Equal(t, "2200.00", paid.TotalPaid.Decimal.StringFixed(2))
	require.True(t, f.available(t).Equal(dec("800")))

	var walletEntries, masterEntries []ledger.LedgerEntry
	for _, e := range f.store.Entries() {
		if e.IsMaster() {
			masterEntries = append(masterEntries, e)
		} else {
			walletEntries = append(walletEntries, e)
		}
	}
	require.Len(t, walletEntries, 1)
	require.Equal(t, ledger.EntryCreditRepayment, walletEntries[0].Type)
	require.Equal(t, ledger.DirectionDebit, walletEntries[0].Direction)

	require.Len(t, masterEntries, 1)
	mirror := masterEntries[0]
	require.Equal(t, ledger.CategoryCreditReturn, mirror.Category)
	require.Equal(t, ledger.DirectionCredit, mirror.Direction)
	require.Equal(t, "2200.00", mirror.Amount.StringFixed(2))
	require.Equal(t, credit.MirrorSourceKey(req.ID), mirror.SourceKey)
	require.Contains(t, mirror.Description, req.ID.String())

	_, err = f.service.RepayCredit(context.Background(), req.ID, f.owner)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	types := make([]credit.EventType, 0, len(f.notifier.events))
	for _, e := range f.notifier.events {
		types = append(types, e.Type)
	}
	require.Equal(t, []credit.EventType{credit.EventApproved, credit.EventRepaid}, types)
}

func TestConcurrentRepaymentsShareOneFundsCheck(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	first := f.approved(t, "1000")
	second := f.approved(t, "1000")

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.service.RepayCredit(context.Background(), id, f.owner)
		}(i, id)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	}
	require.Equal(t, 1, succeeded)
	require.True(t, f.available(t).Equal(dec("400")), "available %s", f.available(t))

	var paid int
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		stored, ok := f.store.Credit(id)
		require.True(t, ok)
		if stored.State == credit.StatePaid {
			paid++
		} else {
			require.Equal(t, credit.StateApproved, stored.State)
		}
	}
	require.Equal(t, 1, paid)
	require.Len(t, f.store.Entries(), 2)
}

func TestRepayMirrorFailureRollsBack(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "3000")
	req := f.approved(t, "2000")
	f.store.EntryFault = func(e ledger.LedgerEntry) error {
		if e.IsMaster() {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := f.service.RepayCredit(context.Background(), req.ID, f.owner)
	require.ErrorIs(t, err, shared.ErrIntegrity)

	stored, _ := f.store.Credit(req.ID)
	require.Equal(t, credit.StateApproved, stored.State)
	require.False(t, stored.TotalPaid.Valid)
	require.Empty(t, f.store.Entries())
	require.True(t, f.available(t).Equal(dec("3000")))
}

func TestNotifierFailureDoesNotFailApproval(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	f.notifier.err = errors.New("queue down")
	req := f.approved(t, "100")
	require.Equal(t, credit.StateApproved, req.State)
}

func TestTotalPaidMatchesRoundingRule(t *testing.T) {
	cases := []struct {
		approved, rate, want string
	}{
		{"2000", "0.10", "2200.00"},
		{"333.33", "0.15", "383.33"},
		{"0.05", "0.10", "0.06"},
		{"1234.57", "0.125", "1388.89"},
	}
	for _, tc := range cases {
		f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "5000")
		f.config.Cfg.JurosCreditoColab = dec(tc.rate)
		req := f.approved(t, tc.approved)
		paid, err := f.service.RepayCredit(context.Background(), req.ID, f.owner)
		require.NoError(t, err)
		require.Equal(t, tc.want, paid.TotalPaid.Decimal.StringFixed(2), "%s at %s", tc.approved, tc.rate)
		require.True(t, paid.TotalPaid.Decimal.Equal(credit.TotalDue(paid.ApprovedAmount.Decimal, paid.InterestRate)))
	}
}

func TestMarkOverdueThenRepay(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "3000")
	req := f.approved(t, "1000")
	ctx := context.Background()

	f.clock = t0.Add(29 * 24 * time.Hour)
	moved, err := f.service.MarkOverdue(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, moved)

	f.clock = t0.Add(31 * 24 * time.Hour)
	moved, err = f.service.MarkOverdue(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, moved)
	stored, _ := f.store.Credit(req.ID)
	require.Equal(t, credit.StateOverdue, stored.State)

	paid, err := f.service.RepayCredit(ctx, req.ID, master)
	require.NoError(t, err)
	require.Equal(t, credit.StatePaid, paid.State)
	require.True(t, f.available(t).Equal(dec("1900")))
}

func TestEnsureMirrorIsIdempotent(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "0")
	ctx := context.Background()
	paidAt := t0
	legacy := credit.CreditRequest{
		ID:              uuid.New(),
		AccountID:       f.account.ID,
		RequestedAmount: dec("500"),
		InterestRate:    dec("0.10"),
		State:           credit.StatePaid,
		ApprovedAmount:  decimal.NewNullDecimal(dec("500")),
		TotalPaid:       decimal.NewNullDecimal(dec("550")),
		PaidAt:          &paidAt,
		CreatedAt:       t0,
	}
	f.store.ForceCredit(legacy)

	missing, err := f.service.ListMissingMirrors(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{legacy.ID}, missing)

	posted, err := f.service.EnsureMirror(ctx, legacy.ID)
	require.NoError(t, err)
	require.True(t, posted)
	posted, err = f.service.EnsureMirror(ctx, legacy.ID)
	require.NoError(t, err)
	require.False(t, posted)

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "550.00", entries[0].Amount.StringFixed(2))

	missing, err = f.service.ListMissingMirrors(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestEnsureMirrorRejectsUnpaid(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	req := f.approved(t, "100")
	_, err := f.service.EnsureMirror(context.Background(), req.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCreditVisibility(t *testing.T) {
	f := newFixture(t, shared.RoleCollaborator, ledger.AccountActive, "1500")
	ctx := context.Background()
	req := f.approved(t, "100")

	stranger := shared.Actor{ID: uuid.New(), Role: shared.RoleCollaborator}
	_, err := f.service.GetCredit(ctx, req.ID, stranger)
	require.ErrorIs(t, err, shared.ErrNotFound)

	got, err := f.service.GetCredit(ctx, req.ID, f.owner)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)

	mine, err := f.service.ListCredits(ctx, uuid.Nil, f.owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	theirs, err := f.service.ListCredits(ctx, uuid.Nil, stranger)
	require.NoError(t, err)
	require.Empty(t, theirs)
	all, err := f.service.ListCredits(ctx, uuid.Nil, master)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
