package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/processor"
	"invoice_integrity/internal/repository"
	"invoice_integrity/pkg/crypto"
	"invoice_integrity/pkg/metrics"
	"invoice_integrity/pkg/validator"
)

const (
	SubmitterHeader = "X-Submitter-Id"
	SignatureHeader = "X-Signature"

	maxBodyBytes     = 1 << 20
	defaultPageLimit = 50
)

type APIHandler struct {
	processor      *processor.InvoiceProcessor
	validator      *validator.InvoiceValidator
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration
}

// NewAPIHandler builds the HTTP adapter. With a non-nil signer every
// submission must carry a valid X-Signature; a nil signer disables the check.
func NewAPIHandler(
	processor *processor.InvoiceProcessor,
	metrics *metrics.MetricsCollector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		processor:      processor,
		validator:      validator.NewInvoiceValidator(),
		metrics:        metrics,
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

func (h *APIHandler) WithRequestTimeout(timeout time.Duration) *APIHandler {
	if timeout > 0 {
		h.requestTimeout = timeout
	}
	return h
}

type LineItemRequest struct {
	Description string            `json:"description"`
	Quantity    domain.Amount     `json:"quantity"`
	UnitPrice   domain.Amount     `json:"unit_price"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type CreateInvoiceRequest struct {
	ClientName    string              `json:"client_name"`
	ClientEmail   openapi_types.Email `json:"client_email"`
	InvoiceNumber string              `json:"invoice_number"`
	Items         []LineItemRequest   `json:"items"`
	Total         domain.Amount       `json:"total"`
	DueDate       openapi_types.Date  `json:"due_date"`
}

type InvoiceResponse struct {
	Invoice *domain.Invoice     `json:"invoice"`
	Fraud   domain.FraudVerdict `json:"fraud"`
	// NotarizationError is set when the invoice was stored without a receipt.
	NotarizationError string `json:"notarization_error,omitempty"`
}

type InvoiceDetailResponse struct {
	Invoice *domain.Invoice      `json:"invoice"`
	Alerts  []*domain.FraudAlert `json:"alerts"`
}

type InvoiceListResponse struct {
	Invoices []*domain.Invoice `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	submitterID := r.Header.Get(SubmitterHeader)
	if err := h.validator.ValidateSubmitter(submitterID); err != nil {
		h.sendError(w, "Submitter identity is required", http.StatusUnauthorized, "MISSING_SUBMITTER")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if h.signer != nil {
		signature := r.Header.Get(SignatureHeader)
		if signature == "" {
			h.sendError(w, "Signature is required", http.StatusUnauthorized, "MISSING_SIGNATURE")
			return
		}
		if valid, err := h.signer.VerifySubmission(submitterID, body, signature); !valid || err != nil {
			h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	var req CreateInvoiceRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		h.sendErrorDetails(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	invoice := req.toInvoice(submitterID)
	if err := h.validator.ValidateInvoice(invoice); err != nil {
		h.sendErrorDetails(w, "Invoice validation failed", http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := h.processor.SubmitInvoice(ctx, invoice)
	h.metrics.RecordSubmission(time.Since(startTime), err == nil)

	if err != nil {
		h.logger.ErrorContext(ctx, "Invoice submission failed",
			slog.String("error", err.Error()),
			slog.String("invoice_id", invoice.ID),
			slog.String("submitter_id", submitterID))

		if processor.IsFraudStatusUnknown(err) {
			h.sendError(w, "Fraud status could not be determined", http.StatusServiceUnavailable, "FRAUD_STATUS_UNKNOWN")
			return
		}
		h.sendError(w, "Invoice submission failed", http.StatusInternalServerError, "PROCESSING_ERROR")
		return
	}

	response := InvoiceResponse{
		Invoice: result.Invoice,
		Fraud:   result.Verdict,
	}
	if result.NotarizationErr != nil {
		response.NotarizationError = result.NotarizationErr.Error()
	}

	h.sendJSON(w, response, http.StatusCreated)
	h.logger.InfoContext(ctx, "Invoice accepted",
		slog.String("invoice_id", invoice.ID),
		slog.String("status", string(invoice.Status)),
		slog.String("severity", string(result.Verdict.Severity)))
}

func (h *APIHandler) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	invoice, alerts, err := h.processor.GetInvoice(ctx, invoiceID)
	if err != nil {
		h.sendLookupError(w, err, "Invoice not found")
		return
	}
	if alerts == nil {
		alerts = []*domain.FraudAlert{}
	}

	h.sendJSON(w, InvoiceDetailResponse{Invoice: invoice, Alerts: alerts}, http.StatusOK)
}

func (h *APIHandler) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	submitterID := r.Header.Get(SubmitterHeader)
	if err := h.validator.ValidateSubmitter(submitterID); err != nil {
		h.sendError(w, "Submitter identity is required", http.StatusUnauthorized, "MISSING_SUBMITTER")
		return
	}

	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		h.sendError(w, "limit must be a positive integer", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.sendError(w, "offset must be a non-negative integer", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	invoices, err := h.processor.ListInvoices(ctx, submitterID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list invoices", slog.String("error", err.Error()))
		h.sendError(w, "Failed to list invoices", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, InvoiceListResponse{Invoices: invoices, Limit: limit, Offset: offset}, http.StatusOK)
}

func (h *APIHandler) VerifyInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.processor.VerifyInvoice(ctx, invoiceID)
	if err != nil {
		h.sendLookupError(w, err, "Invoice not found")
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) ResolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := h.processor.ResolveAlert(ctx, alertID); err != nil {
		h.sendLookupError(w, err, "Alert not found")
		return
	}

	h.sendJSON(w, map[string]string{"id": alertID, "status": "resolved"}, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (req CreateInvoiceRequest) toInvoice(submitterID string) *domain.Invoice {
	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Attributes:  item.Attributes,
		})
	}

	return domain.NewInvoice(submitterID).
		WithClient(req.ClientName, string(req.ClientEmail)).
		WithItems(req.InvoiceNumber, items, req.Total).
		WithDueDate(req.DueDate.Time)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *APIHandler) sendLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		h.sendError(w, notFound, http.StatusNotFound, "NOT_FOUND")
		return
	}
	h.logger.Error("Lookup failed", slog.String("error", err.Error()))
	h.sendError(w, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.sendErrorDetails(w, message, statusCode, code, "")
}

func (h *APIHandler) sendErrorDetails(w http.ResponseWriter, message string, statusCode int, code, details string) {
	errorResponse := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.HealthCheckHandler)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoices", h.CreateInvoiceHandler)
		r.Get("/invoices", h.ListInvoicesHandler)
		r.Get("/invoices/{id}", h.GetInvoiceHandler)
		r.Get("/invoices/{id}/verify", h.VerifyInvoiceHandler)
		r.Post("/alerts/{id}/resolve", h.ResolveAlertHandler)
	})
}

// NewRouter wires the handler behind the standard chi middleware stack.
func NewRouter(h *APIHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h.RegisterRoutes(r)
	return r
}
