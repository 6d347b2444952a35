package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"fraud_detector/internal/detector"
	"fraud_detector/internal/domain"
	"fraud_detector/internal/ingest"
	"fraud_detector/internal/repository"
	"fraud_detector/internal/service"
	"fraud_detector/pkg/crypto"
	"fraud_detector/pkg/metrics"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type APIHandler struct {
	screener       *detector.Screener
	refRepo        repository.ReferenceRepository
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	alerts         *service.AlertService
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	screener *detector.Screener,
	refRepo repository.ReferenceRepository,
	metrics *metrics.MetricsCollector,
	signer *crypto.Signer,
	alerts *service.AlertService,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		screener:       screener,
		refRepo:        refRepo,
		metrics:        metrics,
		signer:         signer,
		alerts:         alerts,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type MerchantRequest struct {
	MerchantName string `json:"merchant_name"`
}

type MerchantResponse struct {
	MerchantName string `json:"merchant_name"`
	Message      string `json:"message"`
}

type CreditLimitRequest struct {
	UserID      string          `json:"user_id"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

type CreditLimitResponse struct {
	UserID      string          `json:"user_id"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Message     string          `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// DetectHandler screens one uploaded CSV batch. The batch arrives either as
// a multipart form with a "file" field or as the raw request body; the
// optional X-Batch-Signature header is checked against the raw payload
// before any parsing happens.
func (h *APIHandler) DetectHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	payload, err := readBatchPayload(r)
	if err != nil {
		h.sendError(w, "Unable to read batch payload", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if h.signer.Enabled() {
		signature := r.Header.Get("X-Batch-Signature")
		if valid, err := h.signer.VerifyBatch(payload, signature); !valid || err != nil {
			h.sendError(w, "Invalid batch signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	report, err := h.screener.ScreenBatch(ctx, bytes.NewReader(payload))
	if err != nil {
		h.metrics.RecordBatchRejected()
		h.handleScreeningError(w, err)
		return
	}

	h.metrics.RecordBatch(report.ScreeningDur, report.BatchSize, len(report.Flagged), len(report.RowErrors))
	for rule, hits := range ruleHitCounts(report) {
		h.metrics.RecordRuleHits(rule, hits)
	}

	if h.alerts != nil {
		if err := h.alerts.NotifyReport(ctx, report); err != nil {
			h.logger.Error("Failed to queue fraud alerts",
				slog.String("error", err.Error()))
		}
	}

	h.sendJSON(w, report, http.StatusOK)
	h.logger.Info("Batch screened",
		slog.Int("batch_size", report.BatchSize),
		slog.Int("flagged", len(report.Flagged)),
		slog.Int("row_errors", len(report.RowErrors)),
		slog.Duration("duration", report.ScreeningDur))
}

func (h *APIHandler) AddFraudMerchantHandler(w http.ResponseWriter, r *http.Request) {
	h.handleMerchantUpdate(w, r, h.refRepo.AddFraudMerchant, "added to fraud list")
}

func (h *APIHandler) RemoveFraudMerchantHandler(w http.ResponseWriter, r *http.Request) {
	h.handleMerchantUpdate(w, r, h.refRepo.RemoveFraudMerchant, "removed from fraud list")
}

func (h *APIHandler) AddWhitelistMerchantHandler(w http.ResponseWriter, r *http.Request) {
	h.handleMerchantUpdate(w, r, h.refRepo.AddWhitelistMerchant, "added to whitelist")
}

func (h *APIHandler) RemoveWhitelistMerchantHandler(w http.ResponseWriter, r *http.Request) {
	h.handleMerchantUpdate(w, r, h.refRepo.RemoveWhitelistMerchant, "removed from whitelist")
}

func (h *APIHandler) handleMerchantUpdate(
	w http.ResponseWriter,
	r *http.Request,
	update func(ctx context.Context, name string) error,
	message string,
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req MerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := update(ctx, req.MerchantName); err != nil {
		h.handleRepositoryError(w, err)
		return
	}

	h.sendJSON(w, MerchantResponse{
		MerchantName: req.MerchantName,
		Message:      fmt.Sprintf("%s %s", req.MerchantName, message),
	}, http.StatusOK)
	h.logger.Info("Reference data updated",
		slog.String("merchant_name", req.MerchantName),
		slog.String("change", message))
}

func (h *APIHandler) UpdateCreditLimitHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreditLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.refRepo.SetCreditLimit(ctx, req.UserID, req.CreditLimit); err != nil {
		h.handleRepositoryError(w, err)
		return
	}

	h.sendJSON(w, CreditLimitResponse{
		UserID:      req.UserID,
		CreditLimit: req.CreditLimit,
		Message:     "credit limit updated",
	}, http.StatusOK)
	h.logger.Info("Credit limit updated",
		slog.String("user_id", req.UserID),
		slog.String("credit_limit", req.CreditLimit.String()))
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) handleScreeningError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidInput):
		h.sendErrorDetails(w, "Invalid batch", http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, ingest.ErrMalformedRow):
		h.sendErrorDetails(w, "Malformed transaction in batch", http.StatusBadRequest, "MALFORMED_TRANSACTION", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.sendError(w, "Screening timed out", http.StatusGatewayTimeout, "TIMEOUT")
	default:
		h.logger.Error("Batch screening failed", slog.String("error", err.Error()))
		h.sendError(w, "Screening failed", http.StatusInternalServerError, "SCREENING_ERROR")
	}
}

func (h *APIHandler) handleRepositoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.sendErrorDetails(w, "Not found", http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, repository.ErrInvalidArgument):
		h.sendErrorDetails(w, "Invalid argument", http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	default:
		h.logger.Error("Reference data update failed", slog.String("error", err.Error()))
		h.sendError(w, "Reference data update failed", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func readBatchPayload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func ruleHitCounts(report *domain.ScreeningReport) map[string]int {
	hits := make(map[string]int)
	for _, ft := range report.Flagged {
		for _, reason := range ft.Reasons {
			hits[reason]++
		}
	}
	return hits
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

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/detect", h.DetectHandler)
	mux.HandleFunc("POST /api/v1/fraud-merchants/add", h.AddFraudMerchantHandler)
	mux.HandleFunc("POST /api/v1/fraud-merchants/remove", h.RemoveFraudMerchantHandler)
	mux.HandleFunc("POST /api/v1/whitelist-merchants/add", h.AddWhitelistMerchantHandler)
	mux.HandleFunc("POST /api/v1/whitelist-merchants/remove", h.RemoveWhitelistMerchantHandler)
	mux.HandleFunc("POST /api/v1/credit-limits/update", h.UpdateCreditLimitHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
