package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable"`
	Action    string `json:"action,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var transition *domain.ErrInvalidTransition
	var catalog *domain.ErrCatalogUnavailable
	var denied *domain.ErrAccessDenied
	var payment *domain.ErrPaymentRequestFailed
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
	case errors.As(err, &transition):
		logger.Debug("invalid transition", zap.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "invalid_transition"})
	case errors.Is(err, domain.ErrSubmissionInFlight):
		logger.Debug("submission in flight")
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "submission_in_flight", Retryable: true})
	case errors.As(err, &denied):
		logger.Warn("access denied", zap.String("reason", string(denied.Reason)))
		status := http.StatusForbidden
		if denied.Reason == domain.DenialUnauthenticated {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: "access_denied:" + string(denied.Reason), Action: "sign_in"})
	case errors.As(err, &payment):
		logger.Warn("payment request failed", zap.String("cause", string(payment.Cause)), zap.Error(err))
		status := http.StatusBadGateway
		switch payment.Cause {
		case domain.CauseDuplicatePurchase:
			status = http.StatusConflict
		case domain.CauseUnavailable:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorResponse{
			Error:     err.Error(),
			Kind:      "payment_request_failed:" + string(payment.Cause),
			Retryable: true,
			Action:    "retry",
		})
	case errors.As(err, &catalog):
		logger.Error("catalog unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Kind: "catalog_unavailable", Retryable: true, Action: "retry"})
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Kind: "unavailable", Retryable: true, Action: "retry"})
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "external_service", Retryable: true, Action: "retry"})
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
