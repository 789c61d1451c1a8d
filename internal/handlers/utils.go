package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shelfmark/apiserver/internal/services"
	"github.com/shelfmark/apiserver/internal/store"
	"github.com/sirupsen/logrus"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// Identity is the authenticated principal resolved from a bearer token.
type Identity struct {
	ID       int64
	Username string
}

// ErrorResponse is the error payload. Fields carries per-field validation
// messages when present.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// MessageResponse is a plain confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func identityFromContext(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(contextIdentityKey).(Identity)
	if !ok || identity.ID < 1 {
		return Identity{}, errors.New("missing identity")
	}
	return identity, nil
}

func parseBookID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "bookID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError logs the error with request context and maps it to the
// HTTP taxonomy. Unrecognized errors become a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	logRequestError(log, r, err)

	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: validationErr.Fields,
		})
	case errors.Is(err, services.ErrDuplicateUsername):
		writeError(w, http.StatusBadRequest, "username already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrCoverStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, "cover storage is not available")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// logRequestError records the failure with method, path, and the acting user
// when known. Logging must never prevent the response from being written.
func logRequestError(log *logrus.Logger, r *http.Request, err error) {
	if log == nil {
		return
	}
	entry := log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	if identity, idErr := identityFromContext(r.Context()); idErr == nil {
		entry = entry.WithField("actor_id", identity.ID)
	}
	entry.Warn("request failed")
}

func expandOwnerRequested(r *http.Request) bool {
	for _, value := range strings.Split(r.URL.Query().Get("expand"), ",") {
		if strings.TrimSpace(value) == "added_by" {
			return true
		}
	}
	return false
}
