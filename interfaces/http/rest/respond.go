package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	pkgerrors "dclass/pkg/errors"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError maps an AppError onto an HTTP status. Internal causes are
// logged and replaced by a generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := "internal error"
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) && appErr.Type != pkgerrors.ErrorTypeInternal {
		msg = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	} else {
		logger.Debug("Request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	respondJSON(w, logger, status, errorResponse{Error: msg, Code: string(pkgerrors.TypeOf(err))})
}

func statusFor(err error) int {
	switch pkgerrors.TypeOf(err) {
	case pkgerrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case pkgerrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case pkgerrors.ErrorTypeConflict:
		return http.StatusConflict
	case pkgerrors.ErrorTypeRemote, pkgerrors.ErrorTypeGeneration, pkgerrors.ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return pkgerrors.NewValidationCause("invalid request body", err)
	}
	return nil
}
