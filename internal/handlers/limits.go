package handlers

import (
	"net/http"
	"time"

	"tangled.org/creel.social/creel/internal/identity"
)

// LimitResponse is the JSON body for a consumed rate-limit attempt.
type LimitResponse struct {
	Action    string `json:"action"`
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

// HandleConsumeLimit handles POST /api/limits/{action}/consume.
// Sibling Creel services call this before accepting a throttled write
// (comment, catch, rating, reaction, follow); the consume here is the
// authoritative decision, clients only render the countdown from reset_at.
func (h *Handler) HandleConsumeLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := identity.Actor(ctx)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Message: "Authentication required"})
		return
	}

	action := r.PathValue("action")
	if _, ok := h.limiter.Rule(action); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Status:  "error",
			Message: "Unknown rate-limited action",
			Field:   "action",
		})
		return
	}

	result, err := h.limiter.CheckAndConsume(ctx, userID, action)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LimitResponse{
		Action:    action,
		Allowed:   result.Allowed,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt.Format(time.RFC3339),
	})
}
