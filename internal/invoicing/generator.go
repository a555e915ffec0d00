package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RepositoryPort defines the persistence methods the generator needs.
// WithTx rebinds the port to a caller-owned transaction so a batch commits
// atomically with the caller's other writes.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error)
	NextInvoiceNumber(ctx context.Context, tenantID int64, year int) (string, error)
	WithTx(tx pgx.Tx) RepositoryPort
}

// Generator converts settlement calculation lines into persisted invoices.
type Generator struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewGenerator builds a Generator instance.
func NewGenerator(repo RepositoryPort) *Generator {
	return &Generator{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

var german = message.NewPrinter(language.German)

// CreateCreditNotes creates one credit note per payable lease line inside tx.
// Lines with a non-positive amount are skipped; an overpaid lessor receives no
// credit document from this pass. A batch whose lines are all skipped succeeds
// with zero invoices, the advances already cover every lessor in full.
func (g *Generator) CreateCreditNotes(ctx context.Context, tx pgx.Tx, batch CreditNoteBatch) ([]InvoiceSummary, error) {
	status, err := resolveInitialStatus(batch.InitialStatus)
	if err != nil {
		return nil, err
	}
	if len(batch.Lines) == 0 {
		return nil, ErrEmptyBatch
	}
	payable := make([]CreditNoteSpec, 0, len(batch.Lines))
	for _, line := range batch.Lines {
		if line.Amount.IsPositive() {
			payable = append(payable, line)
		}
	}
	if len(payable) == 0 {
		return nil, nil
	}

	repo := g.repo
	if tx != nil {
		repo = g.repo.WithTx(tx)
	}
	issuedAt := g.now()
	summaries := make([]InvoiceSummary, 0, len(payable))
	for _, line := range payable {
		number, err := repo.NextInvoiceNumber(ctx, batch.TenantID, batch.Year)
		if err != nil {
			return nil, err
		}
		leaseID := line.LeaseID
		inv, err := repo.CreateInvoice(ctx, CreateInvoiceInput{
			TenantID:           batch.TenantID,
			Number:             number,
			Type:               TypeCreditNote,
			Status:             status,
			SettlementPeriodID: batch.SettlementPeriodID,
			LeaseID:            &leaseID,
			Description: german.Sprintf("Gutschrift %s, %s: %.2f EUR",
				batch.PeriodLabel, line.LessorName, line.Amount.InexactFloat64()),
			NetAmount:   line.Amount,
			VATAmount:   decimal.Zero,
			GrossAmount: line.Amount,
			IssuedAt:    issuedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("invoicing: credit note for lease %d: %w", line.LeaseID, err)
		}
		summaries = append(summaries, summarize(inv))
	}
	return summaries, nil
}

// CreateAllocationInvoices creates the taxable/exempt invoice pair per
// operator fund. A network company passes costs through with mixed VAT
// treatment depending on the underlying cost composition.
func (g *Generator) CreateAllocationInvoices(ctx context.Context, batch AllocationBatch) ([]InvoiceSummary, error) {
	status, err := resolveInitialStatus(batch.InitialStatus)
	if err != nil {
		return nil, err
	}
	if len(batch.Lines) == 0 {
		return nil, ErrEmptyBatch
	}

	issuedAt := g.now()
	var summaries []InvoiceSummary
	for _, line := range batch.Lines {
		if line.TaxableNet.IsPositive() {
			vat := line.TaxableNet.Mul(VATRate).Round(2)
			inv, err := g.createAllocation(ctx, batch, line, status, issuedAt,
				german.Sprintf("Kostenumlage %s, %s (steuerpflichtig)", batch.PeriodLabel, line.FundName),
				line.TaxableNet, vat)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summarize(inv))
		}
		if line.ExemptNet.IsPositive() {
			inv, err := g.createAllocation(ctx, batch, line, status, issuedAt,
				german.Sprintf("Kostenumlage %s, %s (steuerfrei)", batch.PeriodLabel, line.FundName),
				line.ExemptNet, decimal.Zero)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summarize(inv))
		}
	}
	if len(summaries) == 0 {
		return nil, ErrEmptyBatch
	}
	return summaries, nil
}

func (g *Generator) createAllocation(
	ctx context.Context,
	batch AllocationBatch,
	line AllocationSpec,
	status InvoiceStatus,
	issuedAt time.Time,
	description string,
	net, vat decimal.Decimal,
) (Invoice, error) {
	number, err := g.repo.NextInvoiceNumber(ctx, batch.TenantID, batch.Year)
	if err != nil {
		return Invoice{}, err
	}
	fundID := line.OperatorFundID
	inv, err := g.repo.CreateInvoice(ctx, CreateInvoiceInput{
		TenantID:           batch.TenantID,
		Number:             number,
		Type:               TypeAllocation,
		Status:             status,
		SettlementPeriodID: batch.SettlementPeriodID,
		OperatorFundID:     &fundID,
		Description:        description,
		NetAmount:          net,
		VATAmount:          vat,
		GrossAmount:        net.Add(vat),
		IssuedAt:           issuedAt,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: allocation invoice for fund %d: %w", line.OperatorFundID, err)
	}
	return inv, nil
}

func resolveInitialStatus(status InvoiceStatus) (InvoiceStatus, error) {
	switch status {
	case "":
		return StatusDraft, nil
	case StatusDraft, StatusSent:
		return status, nil
	default:
		return "", ErrInvalidInitialStatus
	}
}

func summarize(inv Invoice) InvoiceSummary {
	return InvoiceSummary{
		ID:             inv.ID,
		Number:         inv.Number,
		Type:           inv.Type,
		Status:         inv.Status,
		LeaseID:        inv.LeaseID,
		OperatorFundID: inv.OperatorFundID,
		GrossAmount:    inv.GrossAmount.Round(2),
	}
}
