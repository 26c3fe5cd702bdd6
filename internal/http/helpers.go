package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// UserHeader carries the authenticated user id set by the fronting proxy.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// badRequestError marks malformed input: unreadable JSON or query values.
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

var validationErrors = []error{
	core.ErrInvalidTitle,
	core.ErrInvalidAmount,
	core.ErrInvalidCurrency,
	core.ErrInvalidStatus,
	core.ErrInvalidType,
	core.ErrInvalidDate,
	core.ErrEmptyCategory,
	core.ErrEmptyCreditor,
	core.ErrEmptyUnit,
	core.ErrNoteRequired,
	core.ErrPaymentTooLarge,
	core.ErrInvalidSelection,
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs server faults and writes the error body. Internal error
// details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed",
			err, log.ComponentHTTP, operationFor(r.Method),
			log.NewFields().WithUser(r.Header.Get(UserHeader)))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func operationFor(method string) string {
	switch method {
	case http.MethodPost:
		return log.OpCreate
	case http.MethodPut:
		return log.OpUpdate
	case http.MethodDelete:
		return log.OpDelete
	default:
		return log.OpRead
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// userID returns the caller's id or ErrMissingUser.
func userID(r *http.Request) (string, error) {
	id := sanitizeInput(r.Header.Get(UserHeader))
	if id == "" {
		return "", core.ErrMissingUser
	}
	return id, nil
}

// preferences resolves the month and currency query parameters against the
// user's stored settings.
func (s *Server) preferences(r *http.Request, user string) (services.Preferences, error) {
	q := r.URL.Query()
	prefs, err := s.finance.ResolvePreferences(r.Context(), user, q.Get("month"), q.Get("currency"))
	if errors.Is(err, core.ErrInvalidSelection) || errors.Is(err, core.ErrInvalidCurrency) {
		return prefs, badRequest(err)
	}
	return prefs, err
}

func queryLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, badRequest(fmt.Errorf("limit must be between 1 and %d", maxLimit))
	}
	return n, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
