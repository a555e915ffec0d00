package settlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/windward-ops/windward/internal/invoicing"
	"github.com/windward-ops/windward/internal/masterdata"
	"github.com/windward-ops/windward/internal/platform/httpx"
	"github.com/windward-ops/windward/internal/tenant"
)

// Handler wires the settlement HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers settlement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/parks/{parkID}/periods", func(r chi.Router) {
		r.Post("/", h.createPeriod)
		r.Get("/", h.listPeriods)
	})
	r.Route("/periods/{id}", func(r chi.Router) {
		r.Get("/", h.getPeriod)
		r.Get("/invoices", h.listInvoices)
		r.Post("/calculate", h.calculatePeriod)
		r.Post("/invoices/advance", h.generateAdvanceInvoices)
		r.Post("/invoices/settlement", h.generateSettlementInvoices)
		r.Post("/approve", h.approvePeriod)
		r.Post("/close", h.closePeriod)
		r.Post("/cancel", h.cancelPeriod)
	})
}

type createPeriodRequest struct {
	Year            int    `json:"year" validate:"required,min=2000,max=2100"`
	Month           *int   `json:"month" validate:"omitempty,min=1,max=12"`
	Type            string `json:"type" validate:"required,oneof=ADVANCE FINAL"`
	AdvanceInterval string `json:"advanceInterval" validate:"omitempty,oneof=YEARLY QUARTERLY MONTHLY"`
	Notes           string `json:"notes" validate:"max=2000"`
	CreatedBy       int64  `json:"createdBy"`
}

type calculateRequest struct {
	TotalRevenue *decimal.Decimal `json:"totalRevenue"`
	SaveResult   *bool            `json:"saveResult"`
	ActorID      int64            `json:"actorId"`
}

type generateRequest struct {
	InitialStatus string `json:"initialStatus" validate:"omitempty,oneof=DRAFT SENT"`
	ActorID       int64  `json:"actorId"`
}

type transitionRequest struct {
	ActorID int64 `json:"actorId"`
}

type periodResponse struct {
	ID                       int64   `json:"id"`
	ParkID                   int64   `json:"parkId"`
	Year                     int     `json:"year"`
	Month                    *int    `json:"month,omitempty"`
	Type                     string  `json:"type"`
	AdvanceInterval          string  `json:"advanceInterval,omitempty"`
	Status                   string  `json:"status"`
	TotalRevenue             *string `json:"totalRevenue,omitempty"`
	TotalMinimumRent         *string `json:"totalMinimumRent,omitempty"`
	TotalActualRent          *string `json:"totalActualRent,omitempty"`
	LinkedEnergySettlementID *int64  `json:"linkedEnergySettlementId,omitempty"`
	Notes                    string  `json:"notes,omitempty"`
	CreatedAt                string  `json:"createdAt"`
	UpdatedAt                string  `json:"updatedAt"`
}

type calculateResponse struct {
	Period      periodResponse `json:"period"`
	Calculation Calculation    `json:"calculation"`
}

type invoiceResponse struct {
	ID             int64  `json:"id"`
	Number         string `json:"number"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	LeaseID        *int64 `json:"leaseId,omitempty"`
	OperatorFundID *int64 `json:"operatorFundId,omitempty"`
	Description    string `json:"description"`
	NetAmount      string `json:"netAmount"`
	VATAmount      string `json:"vatAmount"`
	GrossAmount    string `json:"grossAmount"`
	IssuedAt       string `json:"issuedAt"`
}

func toInvoiceResponse(inv invoicing.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:             inv.ID,
		Number:         inv.Number,
		Type:           string(inv.Type),
		Status:         string(inv.Status),
		LeaseID:        inv.LeaseID,
		OperatorFundID: inv.OperatorFundID,
		Description:    inv.Description,
		NetAmount:      inv.NetAmount.StringFixed(2),
		VATAmount:      inv.VATAmount.StringFixed(2),
		GrossAmount:    inv.GrossAmount.StringFixed(2),
		IssuedAt:       inv.IssuedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toPeriodResponse(p SettlementPeriod) periodResponse {
	formatDec := func(d *decimal.Decimal) *string {
		if d == nil {
			return nil
		}
		s := d.StringFixed(2)
		return &s
	}
	return periodResponse{
		ID:                       p.ID,
		ParkID:                   p.ParkID,
		Year:                     p.Year,
		Month:                    p.Month,
		Type:                     string(p.Type),
		AdvanceInterval:          string(p.AdvanceInterval),
		Status:                   string(p.Status),
		TotalRevenue:             formatDec(p.TotalRevenue),
		TotalMinimumRent:         formatDec(p.TotalMinimumRent),
		TotalActualRent:          formatDec(p.TotalActualRent),
		LinkedEnergySettlementID: p.LinkedEnergySettlementID,
		Notes:                    p.Notes,
		CreatedAt:                p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:                p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant")
		return
	}
	parkID, err := strconv.ParseInt(chi.URLParam(r, "parkID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Park ID", "park id must be numeric")
		return
	}

	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	period, err := h.service.CreatePeriod(r.Context(), CreatePeriodInput{
		TenantID:        t.ID,
		ParkID:          parkID,
		Year:            req.Year,
		Month:           req.Month,
		Type:            PeriodType(req.Type),
		AdvanceInterval: AdvanceInterval(req.AdvanceInterval),
		Notes:           req.Notes,
		CreatedBy:       req.CreatedBy,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant")
		return
	}
	parkID, err := strconv.ParseInt(chi.URLParam(r, "parkID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Park ID", "park id must be numeric")
		return
	}
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Year", "year must be numeric")
			return
		}
	}

	periods, err := h.service.ListPeriods(r.Context(), t.ID, parkID, year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	t, periodID, ok := h.periodScope(w, r)
	if !ok {
		return
	}
	period, err := h.service.GetPeriod(r.Context(), t.ID, periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	t, periodID, ok := h.periodScope(w, r)
	if !ok {
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), t.ID, periodID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) calculatePeriod(w http.ResponseWriter, r *http.Request) {
	t, periodID, ok := h.periodScope(w, r)
	if !ok {
		return
	}
	var req calculateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}

	period, calc, err := h.service.CalculatePeriod(r.Context(), t.ID, periodID, CalculateInput{
		TotalRevenue: req.TotalRevenue,
		SaveResult:   req.SaveResult,
		ActorID:      req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calculateResponse{
		Period:      toPeriodResponse(period),
		Calculation: calc,
	})
}

func (h *Handler) generateAdvanceInvoices(w http.ResponseWriter, r *http.Request) {
	h.generateInvoices(w, r, h.service.GenerateAdvanceInvoices)
}

func (h *Handler) generateSettlementInvoices(w http.ResponseWriter, r *http.Request) {
	h.generateInvoices(w, r, h.service.GenerateSettlementInvoices)
}

func (h *Handler) generateInvoices(
	w http.ResponseWriter,
	r *http.Request,
	generate func(ctx context.Context, tenantID, periodID int64, initialStatus invoicing.InvoiceStatus, actorID int64) (GenerateResult, error),
) {
	t, periodID, ok := h.periodScope(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := generate(r.Context(), t.ID, periodID, invoicing.InvoiceStatus(req.InitialStatus), req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) approvePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApprovePeriod)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ClosePeriod)
}

func (h *Handler) cancelPeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelPeriod)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, tenantID, periodID, actorID int64) (SettlementPeriod, error),
) {
	t, periodID, ok := h.periodScope(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "malformed JSON body")
			return
		}
	}
	period, err := apply(r.Context(), t.ID, periodID, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

// periodScope resolves the tenant and the {id} path parameter.
func (h *Handler) periodScope(w http.ResponseWriter, r *http.Request) (tenant.Tenant, int64, bool) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant")
		return tenant.Tenant{}, 0, false
	}
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period ID", "period id must be numeric")
		return tenant.Tenant{}, 0, false
	}
	return t, periodID, true
}

// respondError maps domain errors to problem responses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var existsErr *PeriodExistsError
	var stateErr *StateError

	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, masterdata.ErrParkNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &existsErr):
		httpx.Problem(w, http.StatusConflict, "Period Exists", existsErr.Error())
	case errors.As(err, &stateErr):
		httpx.Problem(w, http.StatusConflict, "Invalid State", stateErr.Error())
	case errors.Is(err, ErrNotCalculated):
		httpx.Problem(w, http.StatusConflict, "Not Calculated", err.Error())
	case errors.Is(err, ErrRevenueRequired),
		errors.Is(err, ErrNotAdvancePeriod),
		errors.Is(err, ErrNotFinalPeriod),
		errors.Is(err, invoicing.ErrInvalidInitialStatus),
		errors.Is(err, invoicing.ErrEmptyBatch):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("settlement request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
