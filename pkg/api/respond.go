package api

import (
	"encoding/json"
	stdliberrors "errors"
	"io"
	"net/http"
	"time"

	apperrors "github.com/docfold/memoria/pkg/errors"
)

const maxBodyBytes int64 = 8 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the structured error envelope at the given status.
func respondError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var appErr *apperrors.Error
	if stdliberrors.As(err, &appErr) {
		resp.Code = string(appErr.Code)
		resp.Error = appErr.Message
		resp.Retryable = appErr.Retryable
	} else if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, status, resp)
}

// respondAppError derives the HTTP status from the error code.
func respondAppError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err)
}

func statusForError(err error) int {
	var appErr *apperrors.Error
	if !stdliberrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeConfigParse, apperrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.ErrCodeEntryNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeProviderRateLimit:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst, enforcing a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if stdliberrors.Is(err, io.EOF) {
			return apperrors.New(apperrors.ErrCodeInvalidInput, "request body required")
		}
		var maxErr *http.MaxBytesError
		if stdliberrors.As(err, &maxErr) {
			return apperrors.New(apperrors.ErrCodeInvalidInput, "request body too large")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body")
	}
	return nil
}
