package invoicing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType enumerates the invoice documents written by the settlement core.
type InvoiceType string

const (
	// TypeCreditNote credits a lease payment to a lessor.
	TypeCreditNote InvoiceType = "CREDIT_NOTE"
	// TypeAllocation passes network-company costs through to an operator fund.
	TypeAllocation InvoiceType = "ALLOCATION"
)

// InvoiceStatus enumerates invoice lifecycle statuses. Once created, invoices
// are owned by the general invoicing subsystem; the settlement core only
// creates them and reads their status back for reconciliation.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSent      InvoiceStatus = "SENT"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// VATRate is the German standard VAT rate applied to taxable allocation lines.
var VATRate = decimal.NewFromFloat(0.19)

// Invoice model.
type Invoice struct {
	ID                 int64
	TenantID           int64
	Number             string
	Type               InvoiceType
	Status             InvoiceStatus
	SettlementPeriodID int64
	LeaseID            *int64
	OperatorFundID     *int64
	Description        string
	NetAmount          decimal.Decimal
	VATAmount          decimal.Decimal
	GrossAmount        decimal.Decimal
	IssuedAt           time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InvoiceSummary is the caller-facing view of a created invoice.
type InvoiceSummary struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Type           InvoiceType     `json:"type"`
	Status         InvoiceStatus   `json:"status"`
	LeaseID        *int64          `json:"leaseId,omitempty"`
	OperatorFundID *int64          `json:"operatorFundId,omitempty"`
	GrossAmount    decimal.Decimal `json:"grossAmount"`
}

// CreditNoteSpec is one lessor credit note to create.
type CreditNoteSpec struct {
	LeaseID    int64
	LessorName string
	Amount     decimal.Decimal
}

// CreditNoteBatch creates one credit note per lease for a settlement period.
type CreditNoteBatch struct {
	TenantID           int64
	SettlementPeriodID int64
	Year               int
	PeriodLabel        string
	InitialStatus      InvoiceStatus
	Lines              []CreditNoteSpec
}

// AllocationSpec is the cost share of one operator fund, already split into
// its taxable and tax-exempt net portions.
type AllocationSpec struct {
	OperatorFundID int64
	FundName       string
	TaxableNet     decimal.Decimal
	ExemptNet      decimal.Decimal
}

// AllocationBatch creates the allocation invoice pair per operator fund.
type AllocationBatch struct {
	TenantID           int64
	SettlementPeriodID int64
	Year               int
	PeriodLabel        string
	InitialStatus      InvoiceStatus
	Lines              []AllocationSpec
}

// CreateInvoiceInput for persisting a new invoice.
type CreateInvoiceInput struct {
	TenantID           int64
	Number             string
	Type               InvoiceType
	Status             InvoiceStatus
	SettlementPeriodID int64
	LeaseID            *int64
	OperatorFundID     *int64
	Description        string
	NetAmount          decimal.Decimal
	VATAmount          decimal.Decimal
	GrossAmount        decimal.Decimal
	IssuedAt           time.Time
}

// ErrInvalidInitialStatus indicates a caller-selected status outside DRAFT/SENT.
var ErrInvalidInitialStatus = errors.New("invoicing: initial status must be DRAFT or SENT")

// ErrEmptyBatch indicates a generation request without any payable line.
var ErrEmptyBatch = errors.New("invoicing: batch contains no payable lines")
