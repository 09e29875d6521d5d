// Package respond writes JSON bodies and maps service errors onto status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/gateway"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Status returns the HTTP status for a service error.
func Status(err error) int {
	var (
		ve  *apperr.ValidationError
		gwe *gateway.Error
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrExpired):
		return http.StatusGone
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrUnauthenticatedWebhook):
		return http.StatusUnauthorized
	case errors.As(err, &gwe):
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

// Error writes err with its mapped status. Internal errors are logged and never echoed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)

	body := errorBody{Error: err.Error()}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body = errorBody{Error: ve.Reason, Field: ve.Field}
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)

		body = errorBody{Error: "internal error"}
	}

	JSON(w, status, body)
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("body", err.Error())
	}

	return nil
}

// ID parses the {id} URL parameter.
func ID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("id", "not a valid id")
	}

	return id, nil
}
