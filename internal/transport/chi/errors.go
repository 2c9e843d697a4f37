package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	logpkg "github.com/kailas-cloud/aiorch/internal/logger"
)

// ErrorCode is the machine-readable error code of an API error response.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeNoModelConfig    ErrorCode = "no_model_config"
	CodeChainExhausted   ErrorCode = "chain_exhausted"
	CodeBudgetExceeded   ErrorCode = "budget_exceeded"
	CodeProviderError    ErrorCode = "provider_error"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Order matters: a chain exhausted by budget rejections still reports chain_exhausted.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrEmptyScope, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrEmptyFilter, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrNoModelConfig, http.StatusNotFound, CodeNoModelConfig),
	sentinelHandler(domain.ErrChainExhausted, http.StatusServiceUnavailable, CodeChainExhausted),
	sentinelHandler(domain.ErrBudgetExceeded, http.StatusTooManyRequests, CodeBudgetExceeded),
	sentinelHandler(domain.ErrPermanentProvider, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrTransientProvider, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrSimilarityUnavailable, http.StatusServiceUnavailable, CodeInternalError),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrEmptyScope,
		domain.ErrEmptyFilter,
		domain.ErrNoModelConfig,
		domain.ErrChainExhausted,
		domain.ErrBudgetExceeded,
		domain.ErrPermanentProvider,
		domain.ErrTransientProvider,
		domain.ErrSimilarityUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			// Validation errors carry the offending field, which is safe to echo.
			if s == domain.ErrInvalidRequest {
				return err.Error()
			}
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.From(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
