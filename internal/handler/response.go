// Package handler is the HTTP layer: it parses requests, calls
// services and translates domain errors into status codes. No business
// rules live here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
)

// ErrorResponse is the generic error shape for non-validation failures:
// a machine-readable type plus a human-readable message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError translates a domain error into the wire format:
//
//	validation → 422 {"errors": {"field": ["message"]}}
//	conflict   → 409 {"error", "message"} plus "duplicates" when known
//	not found  → 404, bad request → 400, unauthorized → 401,
//	forbidden  → 403, anything else → 500 with a generic message.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unexpected error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an unexpected error occurred",
		})
		return
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		field := appErr.Field
		if field == "" {
			field = "_"
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string][]string{field: {appErr.Message}},
		})

	case errors.Is(err, apperror.ErrConflict):
		body := map[string]any{
			"error":   "conflict",
			"message": appErr.Message,
		}
		if dups, ok := appErr.Data.([]model.DuplicateMovie); ok {
			body["duplicates"] = dups
		}
		writeJSON(w, http.StatusConflict, body)

	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: appErr.Message})

	case errors.Is(err, apperror.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: appErr.Message})

	case errors.Is(err, apperror.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: appErr.Message})

	case errors.Is(err, apperror.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: appErr.Message})

	default:
		slog.Error("unmapped application error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an unexpected error occurred",
		})
	}
}
