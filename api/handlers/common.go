// Package handlers implements the C12 public request surface's HTTP
// handlers: the query endpoints, health checks, and the response-writing
// conventions shared across them.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/types"
)

// WriteJSON marshals data as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with a 200 status.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// mapErrorCodeToHTTPStatus maps a types.ErrorCode to its HTTP status,
// mirroring the original service's REST layer so clients see a stable
// status/code pairing regardless of which internal collaborator raised it.
func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrToolValidation:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden, types.ErrGuardrailsViolated:
		return http.StatusForbidden
	case types.ErrModelNotFound:
		return http.StatusNotFound
	case types.ErrRateLimit, types.ErrRateLimited, types.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case types.ErrContextTooLong:
		return http.StatusRequestEntityTooLarge
	case types.ErrContentFiltered:
		return http.StatusUnprocessableEntity
	case types.ErrTimeout, types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrModelOverloaded, types.ErrServiceUnavailable, types.ErrProviderUnavailable, types.ErrRoutingUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a types.Error as a JSON error envelope, logging it at a
// level matched to severity (client errors at Warn, everything else Error).
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		fields := []zap.Field{zap.String("code", string(err.Code)), zap.Int("status", status)}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= 500 {
			logger.Error(err.Message, fields...)
		} else {
			logger.Warn(err.Message, fields...)
		}
	}

	WriteJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":      err.Code,
			"message":   err.Message,
			"retryable": err.Retryable,
		},
	})
}

// WriteErrorMessage is a convenience wrapper for call sites that don't
// already hold a *types.Error.
func WriteErrorMessage(w http.ResponseWriter, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message), logger)
}

// httpStatusForClassified maps a classified workflow error to an HTTP
// status for the non-streaming envelope.
func httpStatusForClassified(ce *types.ClassifiedError) int {
	switch ce.Category {
	case types.CategoryPermission:
		return http.StatusForbidden
	case types.CategoryTimeout:
		return http.StatusGatewayTimeout
	case types.CategoryConnection:
		return http.StatusBadGateway
	case types.CategorySQLGeneration, types.CategorySQLValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes r.Body into dst, rejecting unknown fields and
// bodies over 1MB so a malformed or oversized request fails fast with a
// clear error instead of partially populating dst.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// ResponseWriter wraps http.ResponseWriter to capture the status code
// written, for use by logging/metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	Status int
}

// NewResponseWriter wraps w, defaulting Status to 200 until WriteHeader is
// called explicitly.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(status int) {
	rw.Status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer's http.Flusher when present, so
// wrapping a ResponseWriter never breaks SSE streaming.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
