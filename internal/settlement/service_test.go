package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/windward-ops/windward/internal/audit"
	"github.com/windward-ops/windward/internal/invoicing"
	"github.com/windward-ops/windward/internal/masterdata"
	_ "github.com/windward-ops/windward/internal/testing/guard"
)

type memoryRepo struct {
	periods map[int64]*SettlementPeriod
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: make(map[int64]*SettlementPeriod)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetPeriod(_ context.Context, tenantID, periodID int64) (SettlementPeriod, error) {
	p, ok := r.periods[periodID]
	if !ok || p.TenantID != tenantID {
		return SettlementPeriod{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (r *memoryRepo) ListPeriods(_ context.Context, tenantID, parkID int64, year int) ([]SettlementPeriod, error) {
	var out []SettlementPeriod
	for _, p := range r.periods {
		if p.TenantID == tenantID && p.ParkID == parkID && (year == 0 || p.Year == year) {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

// stubTx stands in for the pgx transaction the real repository hands to
// collaborating repositories.
type stubTx struct {
	pgx.Tx
}

var memoryTxHandle = &stubTx{}

func (t *memoryTx) Tx() pgx.Tx {
	return memoryTxHandle
}

func (t *memoryTx) GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error) {
	return t.repo.GetPeriod(ctx, tenantID, periodID)
}

func (t *memoryTx) FindByNaturalKey(_ context.Context, in CreatePeriodInput) (SettlementPeriod, error) {
	for _, p := range t.repo.periods {
		if p.TenantID == in.TenantID && p.ParkID == in.ParkID && p.Year == in.Year &&
			p.Type == in.Type && intPtrEqual(p.Month, in.Month) {
			return *p, nil
		}
	}
	return SettlementPeriod{}, ErrPeriodNotFound
}

func (t *memoryTx) Insert(_ context.Context, in CreatePeriodInput) (SettlementPeriod, error) {
	t.repo.nextID++
	p := SettlementPeriod{
		ID:              t.repo.nextID,
		TenantID:        in.TenantID,
		ParkID:          in.ParkID,
		Year:            in.Year,
		Month:           in.Month,
		Type:            in.Type,
		AdvanceInterval: in.AdvanceInterval,
		Status:          StatusOpen,
		Notes:           in.Notes,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	t.repo.periods[p.ID] = &p
	return p, nil
}

func (t *memoryTx) Delete(_ context.Context, tenantID, periodID int64) error {
	p, ok := t.repo.periods[periodID]
	if !ok || p.TenantID != tenantID {
		return ErrPeriodNotFound
	}
	delete(t.repo.periods, periodID)
	return nil
}

func (t *memoryTx) UpdateTotals(_ context.Context, periodID int64, totalRevenue, totalMinimumRent, totalActualRent decimal.Decimal, status PeriodStatus) error {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return ErrPeriodNotFound
	}
	p.TotalRevenue = &totalRevenue
	p.TotalMinimumRent = &totalMinimumRent
	p.TotalActualRent = &totalActualRent
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, periodID int64, status PeriodStatus) error {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeMasterData struct {
	snapshot masterdata.ParkSnapshot
	err      error
}

func (f *fakeMasterData) Snapshot(context.Context, int64, int64) (masterdata.ParkSnapshot, error) {
	if f.err != nil {
		return masterdata.ParkSnapshot{}, f.err
	}
	return f.snapshot, nil
}

type fakeInvoices struct {
	batches []invoicing.CreditNoteBatch
	txs     []pgx.Tx
	nextID  int64
}

func (f *fakeInvoices) CreateCreditNotes(_ context.Context, tx pgx.Tx, batch invoicing.CreditNoteBatch) ([]invoicing.InvoiceSummary, error) {
	if len(batch.Lines) == 0 {
		return nil, invoicing.ErrEmptyBatch
	}
	f.txs = append(f.txs, tx)
	f.batches = append(f.batches, batch)
	var out []invoicing.InvoiceSummary
	for i := range batch.Lines {
		line := batch.Lines[i]
		if !line.Amount.IsPositive() {
			continue
		}
		f.nextID++
		leaseID := line.LeaseID
		out = append(out, invoicing.InvoiceSummary{
			ID:          f.nextID,
			Number:      fmt.Sprintf("GS-%d-%06d", batch.Year, f.nextID),
			Type:        invoicing.TypeCreditNote,
			Status:      batch.InitialStatus,
			LeaseID:     &leaseID,
			GrossAmount: line.Amount,
		})
	}
	return out, nil
}

type fakeLedger struct {
	paid     map[int64]decimal.Decimal
	byPeriod map[int64][]invoicing.Invoice
}

func (f *fakeLedger) SumAdvanceGrossByLease(context.Context, int64, int64, int) (map[int64]decimal.Decimal, error) {
	if f.paid == nil {
		return map[int64]decimal.Decimal{}, nil
	}
	return f.paid, nil
}

func (f *fakeLedger) ListByPeriod(_ context.Context, tenantID, periodID int64) ([]invoicing.Invoice, error) {
	var out []invoicing.Invoice
	for _, inv := range f.byPeriod[periodID] {
		if inv.TenantID == tenantID {
			out = append(out, inv)
		}
	}
	return out, nil
}

type fakeAllocator struct {
	requests  []AllocationRequest
	summaries []invoicing.InvoiceSummary
	err       error
}

func (f *fakeAllocator) Allocate(_ context.Context, req AllocationRequest) ([]invoicing.InvoiceSummary, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Record(_ context.Context, event audit.Event) {
	f.events = append(f.events, event)
}

type serviceFixture struct {
	service   *Service
	repo      *memoryRepo
	invoices  *fakeInvoices
	ledger    *fakeLedger
	allocator *fakeAllocator
	audit     *fakeAudit
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	snapshot := twoTurbineSnapshot()
	f := &serviceFixture{
		repo:      newMemoryRepo(),
		invoices:  &fakeInvoices{},
		ledger:    &fakeLedger{},
		allocator: &fakeAllocator{},
		audit:     &fakeAudit{},
	}
	f.service = NewService(ServiceConfig{
		Repository: f.repo,
		MasterData: &fakeMasterData{snapshot: snapshot},
		Invoices:   f.invoices,
		Ledger:     f.ledger,
		Allocator:  f.allocator,
		Audit:      f.audit,
		Logger:     slog.Default(),
	})
	return f
}

func advanceInput() CreatePeriodInput {
	return CreatePeriodInput{
		TenantID:        1,
		ParkID:          1,
		Year:            2025,
		Month:           intPtr(4),
		Type:            PeriodAdvance,
		AdvanceInterval: IntervalQuarterly,
		CreatedBy:       7,
	}
}

func finalInput() CreatePeriodInput {
	return CreatePeriodInput{TenantID: 1, ParkID: 1, Year: 2025, Type: PeriodFinal, CreatedBy: 7}
}

func TestCreatePeriodReusesOpenPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	require.Equal(t, StatusOpen, first.Status)

	second, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.audit.events, 1, "reuse must not emit a second created event")
}

func TestCreatePeriodReplacesCancelledPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	f.repo.periods[first.ID].Status = StatusCancelled

	second, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, StatusOpen, second.Status)
	_, err = f.service.GetPeriod(ctx, 1, first.ID)
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestCreatePeriodConflictNamesBlockingStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	f.repo.periods[first.ID].Status = StatusClosed

	_, err = f.service.CreatePeriod(ctx, advanceInput())
	var existsErr *PeriodExistsError
	require.ErrorAs(t, err, &existsErr)
	require.Equal(t, StatusClosed, existsErr.Status)
	require.Equal(t, first.ID, existsErr.PeriodID)
}

func TestCreatePeriodValidatesIntervalMonthCombination(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	in := advanceInput()
	in.Month = nil
	_, err := f.service.CreatePeriod(ctx, in)
	require.Error(t, err, "quarterly advance requires a month")

	in = finalInput()
	in.AdvanceInterval = IntervalYearly
	_, err = f.service.CreatePeriod(ctx, in)
	require.Error(t, err, "final period must not carry an interval")
}

func TestCalculatePeriodPersistsTotalsAndAdvancesStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)

	updated, calc, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, updated.Status)
	require.NotNil(t, updated.TotalMinimumRent)
	require.True(t, updated.TotalMinimumRent.Equal(dec("30000")))
	require.True(t, updated.TotalActualRent.Equal(dec("7500")))
	require.NotNil(t, calc.Advance)
}

func TestCalculatePeriodIsRepeatable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)

	first, _, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	require.NoError(t, err)
	second, _, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, second.Status)
	require.True(t, first.TotalActualRent.Equal(*second.TotalActualRent))
}

func TestCalculatePeriodPreviewDoesNotPersist(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)

	save := false
	_, calc, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{SaveResult: &save})
	require.NoError(t, err)
	require.NotNil(t, calc.Advance)

	stored, err := f.service.GetPeriod(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, stored.Status)
	require.Nil(t, stored.TotalMinimumRent)
}

func TestCalculateFinalRequiresRevenue(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, finalInput())
	require.NoError(t, err)

	_, _, err = f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	require.ErrorIs(t, err, ErrRevenueRequired)

	revenue := dec("300000")
	updated, _, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{TotalRevenue: &revenue})
	require.NoError(t, err)
	// Paid advances 0: actual rent = paid + final payment = 33000.
	require.True(t, updated.TotalActualRent.Equal(dec("33000")))
}

func TestCalculateFinalReconcilesPaidAdvances(t *testing.T) {
	f := newServiceFixture(t)
	f.ledger.paid = map[int64]decimal.Decimal{21: dec("15000")}
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, finalInput())
	require.NoError(t, err)

	revenue := dec("300000")
	updated, calc, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{TotalRevenue: &revenue})
	require.NoError(t, err)
	require.True(t, calc.Final.Totals.FinalPayment.Equal(dec("18000")))
	require.True(t, updated.TotalActualRent.Equal(dec("33000")), "actual rent %s", updated.TotalActualRent)
}

func TestCalculatePeriodRejectsReviewedPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	f.repo.periods[period.ID].Status = StatusPendingReview

	_, _, err = f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StatusPendingReview, stateErr.Current)
}

func TestCalculatePeriodScopedByTenant(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)

	_, _, err = f.service.CalculatePeriod(ctx, 2, period.ID, CalculateInput{})
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func preparedAdvance(t *testing.T, f *serviceFixture) SettlementPeriod {
	t.Helper()
	ctx := context.Background()
	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	updated, _, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{})
	require.NoError(t, err)
	return updated
}

func preparedFinal(t *testing.T, f *serviceFixture) SettlementPeriod {
	t.Helper()
	ctx := context.Background()
	period, err := f.service.CreatePeriod(ctx, finalInput())
	require.NoError(t, err)
	revenue := dec("300000")
	updated, _, err := f.service.CalculatePeriod(ctx, 1, period.ID, CalculateInput{TotalRevenue: &revenue})
	require.NoError(t, err)
	return updated
}

func TestGenerateAdvanceInvoices(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)

	result, err := f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	require.True(t, result.Invoices[0].GrossAmount.Equal(dec("7500")))
	require.Empty(t, result.AllocationError)

	stored, err := f.service.GetPeriod(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)

	require.Len(t, f.invoices.batches, 1)
	require.Equal(t, "Vorschuss Q2 2025", f.invoices.batches[0].PeriodLabel)
}

func TestGenerateAdvanceInvoicesRequiresCalculation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	period, err := f.service.CreatePeriod(ctx, advanceInput())
	require.NoError(t, err)
	f.repo.periods[period.ID].Status = StatusInProgress

	_, err = f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.ErrorIs(t, err, ErrNotCalculated)
}

func TestGenerateAdvanceInvoicesRejectsFinalPeriod(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedFinal(t, f)
	f.repo.periods[period.ID].Status = StatusInProgress

	_, err := f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.ErrorIs(t, err, ErrNotAdvancePeriod)
}

func TestGenerateAdvanceInvoicesRequiresInProgress(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)
	f.repo.periods[period.ID].Status = StatusOpen

	_, err := f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, []PeriodStatus{StatusInProgress}, stateErr.Required)
}

func TestGenerateSettlementInvoices(t *testing.T) {
	f := newServiceFixture(t)
	f.ledger.paid = map[int64]decimal.Decimal{21: dec("15000")}
	ctx := context.Background()
	period := preparedFinal(t, f)

	result, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusSent, 7)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	require.True(t, result.Invoices[0].GrossAmount.Equal(dec("18000")))

	stored, err := f.service.GetPeriod(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)
}

func TestGenerateSettlementInvoicesAcceptsPendingReview(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedFinal(t, f)

	_, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)

	// Regeneration from PENDING_REVIEW replaces the previous run.
	result, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
}

func TestGenerateSettlementInvoicesFullyCoveredByAdvances(t *testing.T) {
	f := newServiceFixture(t)
	f.ledger.paid = map[int64]decimal.Decimal{21: dec("50000")}
	ctx := context.Background()
	period := preparedFinal(t, f)

	result, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusSent, 7)
	require.NoError(t, err)
	require.Empty(t, result.Invoices, "overpaid lessors receive no credit note")

	stored, err := f.service.GetPeriod(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)

	approved, err := f.service.ApprovePeriod(ctx, 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestGenerateRunsOnPeriodTransaction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)

	_, err := f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)
	require.Len(t, f.invoices.txs, 1)
	require.Same(t, memoryTxHandle, f.invoices.txs[0],
		"credit notes must commit with the period status change")
}

func TestListInvoicesReturnsPeriodInvoices(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)

	leaseID := int64(21)
	f.ledger.byPeriod = map[int64][]invoicing.Invoice{
		period.ID: {{
			ID:                 1,
			TenantID:           1,
			Number:             "GS-2025-000001",
			Type:               invoicing.TypeCreditNote,
			Status:             invoicing.StatusSent,
			SettlementPeriodID: period.ID,
			LeaseID:            &leaseID,
			GrossAmount:        dec("7500"),
		}},
	}

	invoices, err := f.service.ListInvoices(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, "GS-2025-000001", invoices[0].Number)

	_, err = f.service.ListInvoices(ctx, 2, period.ID)
	require.ErrorIs(t, err, ErrPeriodNotFound, "foreign tenants must not see the period's invoices")
}

func TestGenerateTriggersAllocation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedFinal(t, f)

	fundID := int64(31)
	f.allocator.summaries = []invoicing.InvoiceSummary{{
		ID:             100,
		Type:           invoicing.TypeAllocation,
		OperatorFundID: &fundID,
		GrossAmount:    dec("19800"),
	}}

	result, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)
	require.Len(t, result.AllocationInvoices, 1)
	require.Empty(t, result.AllocationError)

	require.Len(t, f.allocator.requests, 1)
	req := f.allocator.requests[0]
	require.Equal(t, "Nutzungsentgelt 2025", req.PeriodLabel)
	require.True(t, req.TotalCost.Equal(dec("33000")), "total cost %s", req.TotalCost)
}

func TestAllocationFailureDoesNotFailGeneration(t *testing.T) {
	f := newServiceFixture(t)
	f.allocator.err = errors.New("funds unavailable")
	ctx := context.Background()
	period := preparedFinal(t, f)

	result, err := f.service.GenerateSettlementInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	require.Empty(t, result.AllocationInvoices)
	require.Equal(t, "funds unavailable", result.AllocationError)

	stored, err := f.service.GetPeriod(ctx, 1, period.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)

	_, err := f.service.ApprovePeriod(ctx, 1, period.ID, 7)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr, "approve requires PENDING_REVIEW")

	_, err = f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)

	approved, err := f.service.ApprovePeriod(ctx, 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	closed, err := f.service.ClosePeriod(ctx, 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = f.service.CancelPeriod(ctx, 1, period.ID, 7)
	require.ErrorAs(t, err, &stateErr, "closed periods cannot be cancelled")
}

func TestCancelFromAnyNonTerminalStatus(t *testing.T) {
	for _, status := range []PeriodStatus{StatusOpen, StatusInProgress, StatusPendingReview, StatusApproved} {
		f := newServiceFixture(t)
		ctx := context.Background()
		period, err := f.service.CreatePeriod(ctx, advanceInput())
		require.NoError(t, err)
		f.repo.periods[period.ID].Status = status

		cancelled, err := f.service.CancelPeriod(ctx, 1, period.ID, 7)
		require.NoError(t, err, "cancel from %s", status)
		require.Equal(t, StatusCancelled, cancelled.Status)
	}
}

func TestAuditEventsEmittedForLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	period := preparedAdvance(t, f)

	_, err := f.service.GenerateAdvanceInvoices(ctx, 1, period.ID, invoicing.StatusDraft, 7)
	require.NoError(t, err)

	actions := make([]string, 0, len(f.audit.events))
	for _, e := range f.audit.events {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, "settlement.period.created")
	require.Contains(t, actions, "settlement.period.calculated")
	require.Contains(t, actions, "settlement.invoices.advance_generated")
}
