package invoicing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryInvoiceRepo struct {
	invoices []Invoice
	nextID   int64
	nextSeq  int64
	boundTx  pgx.Tx
}

func (r *memoryInvoiceRepo) WithTx(tx pgx.Tx) RepositoryPort {
	r.boundTx = tx
	return r
}

func (r *memoryInvoiceRepo) CreateInvoice(_ context.Context, input CreateInvoiceInput) (Invoice, error) {
	r.nextID++
	inv := Invoice{
		ID:                 r.nextID,
		TenantID:           input.TenantID,
		Number:             input.Number,
		Type:               input.Type,
		Status:             input.Status,
		SettlementPeriodID: input.SettlementPeriodID,
		LeaseID:            input.LeaseID,
		OperatorFundID:     input.OperatorFundID,
		Description:        input.Description,
		NetAmount:          input.NetAmount,
		VATAmount:          input.VATAmount,
		GrossAmount:        input.GrossAmount,
		IssuedAt:           input.IssuedAt,
	}
	r.invoices = append(r.invoices, inv)
	return inv, nil
}

func (r *memoryInvoiceRepo) NextInvoiceNumber(_ context.Context, _ int64, year int) (string, error) {
	r.nextSeq++
	return fmt.Sprintf("GS-%d-%06d", year, r.nextSeq), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixedClock() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func TestCreateCreditNotes(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)
	gen.WithNow(fixedClock)

	summaries, err := gen.CreateCreditNotes(context.Background(), nil, CreditNoteBatch{
		TenantID:           1,
		SettlementPeriodID: 42,
		Year:               2025,
		PeriodLabel:        "Vorschuss Q2 2025",
		Lines: []CreditNoteSpec{
			{LeaseID: 21, LessorName: "Landwirtschaft Petersen GbR", Amount: dec("7500")},
			{LeaseID: 22, LessorName: "Gemeinde Tellingstedt", Amount: dec("3000")},
		},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "GS-2025-000001", summaries[0].Number)
	require.Equal(t, StatusDraft, summaries[0].Status)
	require.Equal(t, TypeCreditNote, summaries[0].Type)
	require.True(t, summaries[0].GrossAmount.Equal(dec("7500")))

	inv := repo.invoices[0]
	require.True(t, inv.VATAmount.IsZero(), "credit notes carry no VAT")
	require.True(t, inv.NetAmount.Equal(inv.GrossAmount))
	require.Equal(t, fixedClock(), inv.IssuedAt)
	require.Equal(t, "Gutschrift Vorschuss Q2 2025, Landwirtschaft Petersen GbR: 7.500,00 EUR", inv.Description)
}

func TestCreateCreditNotesSkipsNonPositiveAmounts(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)

	summaries, err := gen.CreateCreditNotes(context.Background(), nil, CreditNoteBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025, PeriodLabel: "Nutzungsentgelt 2025",
		Lines: []CreditNoteSpec{
			{LeaseID: 21, LessorName: "A", Amount: dec("100")},
			{LeaseID: 22, LessorName: "B", Amount: dec("-500")},
			{LeaseID: 23, LessorName: "C", Amount: decimal.Zero},
		},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, int64(21), *summaries[0].LeaseID)
}

func TestCreateCreditNotesEmptyBatch(t *testing.T) {
	gen := NewGenerator(&memoryInvoiceRepo{})

	_, err := gen.CreateCreditNotes(context.Background(), nil, CreditNoteBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025,
	})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestCreateCreditNotesAllCoveredByAdvances(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)

	summaries, err := gen.CreateCreditNotes(context.Background(), nil, CreditNoteBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025,
		Lines: []CreditNoteSpec{
			{LeaseID: 21, LessorName: "A", Amount: dec("-500")},
			{LeaseID: 22, LessorName: "B", Amount: decimal.Zero},
		},
	})
	require.NoError(t, err)
	require.Empty(t, summaries)
	require.Empty(t, repo.invoices)
}

type recordingTx struct {
	pgx.Tx
}

func TestCreateCreditNotesBindsTransaction(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)
	tx := &recordingTx{}

	_, err := gen.CreateCreditNotes(context.Background(), tx, CreditNoteBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025,
		Lines: []CreditNoteSpec{{LeaseID: 21, LessorName: "A", Amount: dec("100")}},
	})
	require.NoError(t, err)
	require.Same(t, tx, repo.boundTx, "invoice writes must run on the caller transaction")
}

func TestCreateCreditNotesRejectsPaidInitialStatus(t *testing.T) {
	gen := NewGenerator(&memoryInvoiceRepo{})

	_, err := gen.CreateCreditNotes(context.Background(), nil, CreditNoteBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025, InitialStatus: StatusPaid,
		Lines: []CreditNoteSpec{{LeaseID: 21, LessorName: "A", Amount: dec("100")}},
	})
	require.ErrorIs(t, err, ErrInvalidInitialStatus)
}

func TestCreateAllocationInvoicesSplitsVAT(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)
	gen.WithNow(fixedClock)

	summaries, err := gen.CreateAllocationInvoices(context.Background(), AllocationBatch{
		TenantID:           1,
		SettlementPeriodID: 42,
		Year:               2025,
		PeriodLabel:        "Nutzungsentgelt 2025",
		InitialStatus:      StatusSent,
		Lines: []AllocationSpec{{
			OperatorFundID: 31,
			FundName:       "Buergerfonds Dithmarschen I",
			TaxableNet:     dec("6000"),
			ExemptNet:      dec("4000"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	taxable := repo.invoices[0]
	require.True(t, taxable.NetAmount.Equal(dec("6000")))
	require.True(t, taxable.VATAmount.Equal(dec("1140")), "vat %s", taxable.VATAmount)
	require.True(t, taxable.GrossAmount.Equal(dec("7140")))
	require.Equal(t, StatusSent, taxable.Status)
	require.Contains(t, taxable.Description, "(steuerpflichtig)")

	exempt := repo.invoices[1]
	require.True(t, exempt.VATAmount.IsZero())
	require.True(t, exempt.GrossAmount.Equal(dec("4000")))
	require.Contains(t, exempt.Description, "(steuerfrei)")
}

func TestCreateAllocationInvoicesSkipsZeroPortions(t *testing.T) {
	repo := &memoryInvoiceRepo{}
	gen := NewGenerator(repo)

	summaries, err := gen.CreateAllocationInvoices(context.Background(), AllocationBatch{
		TenantID: 1, SettlementPeriodID: 42, Year: 2025, PeriodLabel: "Vorschuss 2025",
		Lines: []AllocationSpec{{
			OperatorFundID: 31,
			FundName:       "Buergerfonds Dithmarschen I",
			TaxableNet:     decimal.Zero,
			ExemptNet:      dec("4000"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Len(t, repo.invoices, 1)
	require.Contains(t, repo.invoices[0].Description, "(steuerfrei)")
}
