package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/ratelimit"
	"tangled.org/creel.social/creel/internal/realtime"
	"tangled.org/creel.social/creel/internal/trust"
)

// NotificationStore is the slice of the notification layer the API needs.
type NotificationStore interface {
	List(ctx context.Context, userID string, limit int, cursor string) ([]trust.Notification, string, error)
	UnreadCount(ctx context.Context, userID string) int
	MarkRead(ctx context.Context, userID string) error
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	access   *trust.Access
	executor *trust.Executor
	takedown *trust.Takedown
	audit    *trust.Audit
	triage   *trust.Triage
	status   *trust.StatusService
	limiter  *ratelimit.Limiter

	// Optional dependencies
	notifications NotificationStore
	hub           *realtime.Hub
}

// NewHandler creates a new Handler with all required dependencies.
// This constructor pattern ensures the Handler is always fully initialized.
func NewHandler(
	access *trust.Access,
	executor *trust.Executor,
	takedown *trust.Takedown,
	audit *trust.Audit,
	triage *trust.Triage,
	status *trust.StatusService,
	limiter *ratelimit.Limiter,
) *Handler {
	return &Handler{
		access:   access,
		executor: executor,
		takedown: takedown,
		audit:    audit,
		triage:   triage,
		status:   status,
		limiter:  limiter,
	}
}

// SetNotifications configures the handler with the notification store.
func (h *Handler) SetNotifications(store NotificationStore) {
	h.notifications = store
}

// SetHub configures the handler with the realtime hub for event streaming.
func (h *Handler) SetHub(hub *realtime.Hub) {
	h.hub = hub
}

// errorResponse is the JSON error body for all endpoints.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps a service error to an HTTP status and writes a JSON error
// body. Internal errors are logged here and never leaked to the client.
func writeError(w http.ResponseWriter, err error) {
	var validation *trust.ValidationError
	var rateLimited *trust.RateLimitError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: validation.Message,
			Field:   validation.Field,
		})
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(rateLimited.ResetAt).Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Status:  "error",
			Message: "Rate limit exceeded. Please try again later.",
		})
	case errors.Is(err, trust.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{Status: "error", Message: "Permission denied"})
	case errors.Is(err, trust.ErrTargetNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "Target not found"})
	case errors.Is(err, trust.ErrReportNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "Report not found"})
	case errors.Is(err, trust.ErrDuplicateReport):
		writeJSON(w, http.StatusConflict, errorResponse{Status: "error", Message: "You have already reported this content"})
	case errors.Is(err, trust.ErrNothingToRestore):
		writeJSON(w, http.StatusConflict, errorResponse{Status: "error", Message: "Content is not deleted"})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "Internal server error"})
	}
}

// writeBadRequest writes a 400 with the given message.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: message})
}

// decodeJSON decodes a JSON request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryPage parses the page query parameter, defaulting to 0.
func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

// querySort parses the sort query parameter, defaulting to newest first.
func querySort(r *http.Request) trust.SortDirection {
	if strings.EqualFold(r.URL.Query().Get("sort"), "asc") {
		return trust.SortAsc
	}
	return trust.SortDesc
}

// queryTime parses an RFC 3339 time query parameter, zero when absent.
func queryTime(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
