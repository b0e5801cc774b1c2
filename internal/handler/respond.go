package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"deliverycart/internal/checkout"
	"deliverycart/internal/logging"
	"deliverycart/internal/model"
	"deliverycart/internal/retry"
	"deliverycart/internal/service"
	"deliverycart/internal/validation"
)

const maxBody = 64 << 10

type errorResponse struct {
	Code     string                  `json:"code"`
	Message  string                  `json:"message"`
	Fields   []validation.FieldError `json:"fields,omitempty"`
	Checkout *checkout.View          `json:"checkout,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encode response")
	}
}

var errEmptyBody = errors.New("empty body")

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBody))
	if err != nil {
		return &validation.Error{Fields: []validation.FieldError{{Field: "body", Tag: "max", Message: "request body too large"}}}
	}
	if len(body) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &validation.Error{Fields: []validation.FieldError{{Field: "body", Tag: "json", Message: "invalid json"}}}
	}
	return validation.Struct(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *checkout.ValidationError
		ferr *validation.Error
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: verr.Code, Message: verr.Message})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: ferr.Error(), Fields: ferr.Fields})
	case errors.Is(err, errEmptyBody):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "request body is required"})
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: "not found"})
	case errors.Is(err, service.ErrLoginTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "login_taken", Message: "login already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "invalid_credentials", Message: "invalid login or password"})
	case errors.Is(err, service.ErrFinalStatus):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "final_status", Message: err.Error()})
	case errors.Is(err, service.ErrUnknownSetting):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "unknown_setting", Message: err.Error()})
	case errors.Is(err, retry.ErrExhausted):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("upstream unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code:    "temporarily_unavailable",
			Message: "We could not reach the server. Please try again.",
		})
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal error"})
	}
}
