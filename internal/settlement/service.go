package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/windward-ops/windward/internal/audit"
	"github.com/windward-ops/windward/internal/invoicing"
	"github.com/windward-ops/windward/internal/masterdata"
)

// MasterDataPort supplies the park snapshot used by every calculation.
type MasterDataPort interface {
	Snapshot(ctx context.Context, tenantID, parkID int64) (masterdata.ParkSnapshot, error)
}

// InvoiceGeneratorPort creates lessor credit notes. The tx carries the
// settlement transaction so the notes commit with the period-state change.
type InvoiceGeneratorPort interface {
	CreateCreditNotes(ctx context.Context, tx pgx.Tx, batch invoicing.CreditNoteBatch) ([]invoicing.InvoiceSummary, error)
}

// InvoiceLedgerPort reads back persisted invoices: accepted advances for
// reconciliation and the full set belonging to one period.
type InvoiceLedgerPort interface {
	SumAdvanceGrossByLease(ctx context.Context, tenantID, parkID int64, year int) (map[int64]decimal.Decimal, error)
	ListByPeriod(ctx context.Context, tenantID, periodID int64) ([]invoicing.Invoice, error)
}

// AllocationRequest asks the cost-allocation engine to distribute a
// settlement's total cost across operator funds.
type AllocationRequest struct {
	TenantID      int64
	Park          masterdata.Park
	Period        SettlementPeriod
	PeriodLabel   string
	TotalCost     decimal.Decimal
	InitialStatus invoicing.InvoiceStatus
}

// AllocationPort triggers the cost-allocation pass. Implementations are
// invoked best-effort: any error is logged and converted into an empty
// allocation-invoice list, never propagated to the caller.
type AllocationPort interface {
	Allocate(ctx context.Context, req AllocationRequest) ([]invoicing.InvoiceSummary, error)
}

// AuditPort enqueues audit events fire-and-forget.
type AuditPort interface {
	Record(ctx context.Context, event audit.Event)
}

// Service orchestrates the settlement period lifecycle.
type Service struct {
	repo       RepositoryPort
	masterdata MasterDataPort
	calculator *Calculator
	invoices   InvoiceGeneratorPort
	ledger     InvoiceLedgerPort
	allocator  AllocationPort
	audit      AuditPort
	logger     *slog.Logger
}

// ServiceConfig collects the service dependencies. Allocator and Audit are
// optional.
type ServiceConfig struct {
	Repository RepositoryPort
	MasterData MasterDataPort
	Calculator *Calculator
	Invoices   InvoiceGeneratorPort
	Ledger     InvoiceLedgerPort
	Allocator  AllocationPort
	Audit      AuditPort
	Logger     *slog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) *Service {
	calculator := cfg.Calculator
	if calculator == nil {
		calculator = NewCalculator(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       cfg.Repository,
		masterdata: cfg.MasterData,
		calculator: calculator,
		invoices:   cfg.Invoices,
		ledger:     cfg.Ledger,
		allocator:  cfg.Allocator,
		audit:      cfg.Audit,
		logger:     logger,
	}
}

// CreatePeriod creates a settlement period, or reuses or replaces an existing
// one for the same natural key. Re-running create is the normal way to
// re-enter an in-flight period.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput) (SettlementPeriod, error) {
	if err := in.Validate(); err != nil {
		return SettlementPeriod{}, err
	}
	// Park ownership gate; also warms the snapshot cache for the calculation.
	if _, err := s.masterdata.Snapshot(ctx, in.TenantID, in.ParkID); err != nil {
		return SettlementPeriod{}, err
	}

	var (
		period SettlementPeriod
		reused bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByNaturalKey(ctx, in)
		switch {
		case err == nil:
			switch existing.Status {
			case StatusOpen, StatusInProgress:
				period = existing
				reused = true
				return nil
			case StatusCancelled:
				// The stale record gives way to a fresh one; delete and
				// insert run in the same transaction so the natural key
				// never has zero rows for a concurrent creator.
				if err := tx.Delete(ctx, in.TenantID, existing.ID); err != nil {
					return err
				}
				period, err = tx.Insert(ctx, in)
				return err
			default:
				return &PeriodExistsError{PeriodID: existing.ID, Status: existing.Status}
			}
		case errors.Is(err, ErrPeriodNotFound):
			period, err = tx.Insert(ctx, in)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return SettlementPeriod{}, err
	}
	if !reused {
		s.recordAudit(ctx, in.TenantID, in.CreatedBy, "settlement.period.created", period.ID, map[string]any{
			"park_id": period.ParkID,
			"year":    period.Year,
			"type":    string(period.Type),
		})
	}
	return period, nil
}

// CalculateInput carries the optional calculation parameters.
type CalculateInput struct {
	// TotalRevenue overrides the revenue persisted on the period.
	TotalRevenue *decimal.Decimal
	// SaveResult persists the aggregates and advances OPEN to IN_PROGRESS.
	// Defaults to true; false previews without any write.
	SaveResult *bool
	ActorID    int64
}

// CalculatePeriod runs the calculator for a period. The calculation is a pure
// function of current inputs and is safe to call repeatedly.
func (s *Service) CalculatePeriod(ctx context.Context, tenantID, periodID int64, in CalculateInput) (SettlementPeriod, Calculation, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return SettlementPeriod{}, Calculation{}, err
	}
	if !period.Status.Recalculable() {
		return SettlementPeriod{}, Calculation{}, &StateError{
			Current:  period.Status,
			Required: []PeriodStatus{StatusOpen, StatusInProgress},
		}
	}

	calc, totals, revenue, _, err := s.runCalculation(ctx, period, in.TotalRevenue)
	if err != nil {
		return SettlementPeriod{}, Calculation{}, err
	}

	save := in.SaveResult == nil || *in.SaveResult
	if !save {
		return period, calc, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if !locked.Status.Recalculable() {
			return &StateError{Current: locked.Status, Required: []PeriodStatus{StatusOpen, StatusInProgress}}
		}
		status := locked.Status
		if status == StatusOpen {
			status = StatusInProgress
		}
		actualRent := totals.FinalPayment
		if period.Type == PeriodFinal {
			actualRent = totals.PaidAdvances.Add(totals.FinalPayment)
		}
		return tx.UpdateTotals(ctx, periodID, revenue, totals.MinimumRent, actualRent, status)
	})
	if err != nil {
		return SettlementPeriod{}, Calculation{}, err
	}

	period, err = s.repo.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return SettlementPeriod{}, Calculation{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "settlement.period.calculated", periodID, map[string]any{
		"lease_count":   totals.LeaseCount,
		"final_payment": totals.FinalPayment.String(),
	})
	return period, calc, nil
}

// runCalculation assembles inputs and executes the calculator.
func (s *Service) runCalculation(ctx context.Context, period SettlementPeriod, revenueOverride *decimal.Decimal) (Calculation, Totals, decimal.Decimal, masterdata.ParkSnapshot, error) {
	snapshot, err := s.masterdata.Snapshot(ctx, period.TenantID, period.ParkID)
	if err != nil {
		return Calculation{}, Totals{}, decimal.Decimal{}, masterdata.ParkSnapshot{}, err
	}

	revenue := decimal.Zero
	if revenueOverride != nil {
		revenue = *revenueOverride
	} else if period.TotalRevenue != nil {
		revenue = *period.TotalRevenue
	}
	var paidAdvances map[int64]decimal.Decimal
	if period.Type == PeriodFinal {
		if revenue.IsZero() {
			return Calculation{}, Totals{}, decimal.Decimal{}, masterdata.ParkSnapshot{}, ErrRevenueRequired
		}
		paidAdvances, err = s.ledger.SumAdvanceGrossByLease(ctx, period.TenantID, period.ParkID, period.Year)
		if err != nil {
			return Calculation{}, Totals{}, decimal.Decimal{}, masterdata.ParkSnapshot{}, err
		}
	}

	calc, err := s.calculator.Calculate(CalculationInput{
		Period:       period,
		Snapshot:     snapshot,
		TotalRevenue: revenue,
		PaidAdvances: paidAdvances,
	})
	if err != nil {
		return Calculation{}, Totals{}, decimal.Decimal{}, masterdata.ParkSnapshot{}, err
	}
	return calc, calc.Totals(), revenue, snapshot, nil
}

// Totals returns the totals of whichever result variant is set.
func (c Calculation) Totals() Totals {
	switch {
	case c.Advance != nil:
		return c.Advance.Totals
	case c.Final != nil:
		return c.Final.Totals
	default:
		return Totals{}
	}
}

// GenerateResult carries the primary invoice outcome plus the best-effort
// allocation outcome. AllocationError is set instead of failing the request
// when the cost-allocation pass breaks.
type GenerateResult struct {
	Invoices           []invoicing.InvoiceSummary `json:"invoices"`
	AllocationInvoices []invoicing.InvoiceSummary `json:"allocationInvoices"`
	AllocationError    string                     `json:"allocationError,omitempty"`
}

// GenerateAdvanceInvoices creates one credit note per lease with a nonzero
// advance amount and moves the period to PENDING_REVIEW.
func (s *Service) GenerateAdvanceInvoices(ctx context.Context, tenantID, periodID int64, initialStatus invoicing.InvoiceStatus, actorID int64) (GenerateResult, error) {
	var (
		period   SettlementPeriod
		snapshot masterdata.ParkSnapshot
		result   GenerateResult
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Type != PeriodAdvance {
			return fmt.Errorf("%w: period %d", ErrNotAdvancePeriod, periodID)
		}
		if period.Status != StatusInProgress {
			return &StateError{Current: period.Status, Required: []PeriodStatus{StatusInProgress}}
		}
		if !period.Calculated() {
			return ErrNotCalculated
		}

		snapshot, err = s.masterdata.Snapshot(ctx, tenantID, period.ParkID)
		if err != nil {
			return err
		}
		calc, err := s.calculator.Calculate(CalculationInput{Period: period, Snapshot: snapshot})
		if err != nil {
			return err
		}

		label := PeriodLabel(period)
		lines := make([]invoicing.CreditNoteSpec, 0, len(calc.Advance.Lines))
		for _, line := range calc.Advance.Lines {
			lines = append(lines, invoicing.CreditNoteSpec{
				LeaseID:    line.LeaseID,
				LessorName: line.LessorName,
				Amount:     line.Amount,
			})
		}
		result.Invoices, err = s.invoices.CreateCreditNotes(ctx, tx.Tx(), invoicing.CreditNoteBatch{
			TenantID:           tenantID,
			SettlementPeriodID: periodID,
			Year:               period.Year,
			PeriodLabel:        label,
			InitialStatus:      initialStatus,
			Lines:              lines,
		})
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, periodID, StatusPendingReview)
	})
	if err != nil {
		return GenerateResult{}, err
	}

	result.AllocationInvoices, result.AllocationError = s.triggerAllocation(ctx, period, snapshot.Park, initialStatus, result.Invoices)
	s.recordAudit(ctx, tenantID, actorID, "settlement.invoices.advance_generated", periodID, map[string]any{
		"invoices": len(result.Invoices),
	})
	return result, nil
}

// GenerateSettlementInvoices creates the year-end credit notes and triggers
// the best-effort cost-allocation pass. Accepts a period that already went
// through advance generation, for parks that only ever run advances and then
// settle.
func (s *Service) GenerateSettlementInvoices(ctx context.Context, tenantID, periodID int64, initialStatus invoicing.InvoiceStatus, actorID int64) (GenerateResult, error) {
	var (
		period   SettlementPeriod
		snapshot masterdata.ParkSnapshot
		result   GenerateResult
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Type != PeriodFinal {
			return fmt.Errorf("%w: period %d", ErrNotFinalPeriod, periodID)
		}
		if period.Status != StatusInProgress && period.Status != StatusPendingReview {
			return &StateError{
				Current:  period.Status,
				Required: []PeriodStatus{StatusInProgress, StatusPendingReview},
			}
		}
		if !period.Calculated() {
			return ErrNotCalculated
		}

		var calc Calculation
		calc, _, _, snapshot, err = s.runCalculation(ctx, period, nil)
		if err != nil {
			return err
		}

		label := PeriodLabel(period)
		lines := make([]invoicing.CreditNoteSpec, 0, len(calc.Final.Lines))
		for _, line := range calc.Final.Lines {
			lines = append(lines, invoicing.CreditNoteSpec{
				LeaseID:    line.LeaseID,
				LessorName: line.LessorName,
				Amount:     line.FinalPayment,
			})
		}
		result.Invoices, err = s.invoices.CreateCreditNotes(ctx, tx.Tx(), invoicing.CreditNoteBatch{
			TenantID:           tenantID,
			SettlementPeriodID: periodID,
			Year:               period.Year,
			PeriodLabel:        label,
			InitialStatus:      initialStatus,
			Lines:              lines,
		})
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, periodID, StatusPendingReview)
	})
	if err != nil {
		return GenerateResult{}, err
	}

	result.AllocationInvoices, result.AllocationError = s.triggerAllocation(ctx, period, snapshot.Park, initialStatus, result.Invoices)
	s.recordAudit(ctx, tenantID, actorID, "settlement.invoices.settlement_generated", periodID, map[string]any{
		"invoices": len(result.Invoices),
	})
	return result, nil
}

// triggerAllocation runs the cost-allocation pass after invoice generation.
// Deliberately outside the generation transaction: a failed allocation leaves
// valid lessor credit notes and no operator allocation, which is an accepted,
// logged, recoverable partial state.
func (s *Service) triggerAllocation(
	ctx context.Context,
	period SettlementPeriod,
	park masterdata.Park,
	initialStatus invoicing.InvoiceStatus,
	created []invoicing.InvoiceSummary,
) ([]invoicing.InvoiceSummary, string) {
	if s.allocator == nil || len(created) == 0 {
		return []invoicing.InvoiceSummary{}, ""
	}
	totalCost := decimal.Zero
	for _, inv := range created {
		totalCost = totalCost.Add(inv.GrossAmount)
	}
	summaries, err := s.allocator.Allocate(ctx, AllocationRequest{
		TenantID:      period.TenantID,
		Park:          park,
		Period:        period,
		PeriodLabel:   PeriodLabel(period),
		TotalCost:     totalCost,
		InitialStatus: initialStatus,
	})
	if err != nil {
		s.logger.Warn("cost allocation failed",
			slog.Int64("period_id", period.ID),
			slog.Int64("park_id", park.ID),
			slog.Any("error", err))
		return []invoicing.InvoiceSummary{}, err.Error()
	}
	if summaries == nil {
		summaries = []invoicing.InvoiceSummary{}
	}
	return summaries, ""
}

// ApprovePeriod moves a reviewed period to APPROVED.
func (s *Service) ApprovePeriod(ctx context.Context, tenantID, periodID, actorID int64) (SettlementPeriod, error) {
	return s.transition(ctx, tenantID, periodID, actorID, StatusApproved, "settlement.period.approved", []PeriodStatus{StatusPendingReview})
}

// ClosePeriod locks an approved period.
func (s *Service) ClosePeriod(ctx context.Context, tenantID, periodID, actorID int64) (SettlementPeriod, error) {
	return s.transition(ctx, tenantID, periodID, actorID, StatusClosed, "settlement.period.closed", []PeriodStatus{StatusApproved})
}

// CancelPeriod cancels any non-terminal period.
func (s *Service) CancelPeriod(ctx context.Context, tenantID, periodID, actorID int64) (SettlementPeriod, error) {
	return s.transition(ctx, tenantID, periodID, actorID, StatusCancelled, "settlement.period.cancelled",
		[]PeriodStatus{StatusOpen, StatusInProgress, StatusPendingReview, StatusApproved})
}

func (s *Service) transition(ctx context.Context, tenantID, periodID, actorID int64, target PeriodStatus, action string, allowed []PeriodStatus) (SettlementPeriod, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		permitted := false
		for _, status := range allowed {
			if period.Status == status {
				permitted = true
				break
			}
		}
		if !permitted {
			return &StateError{Current: period.Status, Required: allowed}
		}
		return tx.UpdateStatus(ctx, periodID, target)
	})
	if err != nil {
		return SettlementPeriod{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, action, periodID, nil)
	return s.repo.GetPeriod(ctx, tenantID, periodID)
}

// GetPeriod loads one period scoped to the tenant.
func (s *Service) GetPeriod(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error) {
	return s.repo.GetPeriod(ctx, tenantID, periodID)
}

// ListPeriods returns a park's periods, optionally filtered by year.
func (s *Service) ListPeriods(ctx context.Context, tenantID, parkID int64, year int) ([]SettlementPeriod, error) {
	return s.repo.ListPeriods(ctx, tenantID, parkID, year)
}

// ListInvoices returns every invoice generated for one period, credit notes
// and allocation invoices alike.
func (s *Service) ListInvoices(ctx context.Context, tenantID, periodID int64) ([]invoicing.Invoice, error) {
	if _, err := s.repo.GetPeriod(ctx, tenantID, periodID); err != nil {
		return nil, err
	}
	return s.ledger.ListByPeriod(ctx, tenantID, periodID)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "settlement_period",
		EntityID: strconv.FormatInt(periodID, 10),
		Meta:     meta,
	})
}
