package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/trust"
)

// moderateRequest is the request body for a warn/suspend/ban action.
type moderateRequest struct {
	UserID        string `json:"user_id,omitempty"` // path value wins when present
	Severity      string `json:"severity"`
	DurationHours int    `json:"duration_hours,omitempty"`
	Reason        string `json:"reason"`
}

// HandleModerationAction handles POST /mod/users/{id}/action.
func (h *Handler) HandleModerationAction(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	userID := r.PathValue("id")
	if userID == "" {
		writeBadRequest(w, "User ID is required")
		return
	}

	var req moderateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	result, err := h.executor.Apply(r.Context(), trust.ApplyInput{
		AdminID:       adminID,
		UserID:        userID,
		Severity:      trust.Severity(req.Severity),
		DurationHours: req.DurationHours,
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("admin_id", adminID).
		Str("severity", req.Severity).
		Bool("deduplicated", result.Deduplicated).
		Msg("moderation: action applied")

	writeJSON(w, http.StatusOK, result)
}

// liftRequest is the request body for lifting restrictions.
type liftRequest struct {
	Reason string `json:"reason"`
}

// HandleLiftRestrictions handles POST /mod/users/{id}/lift.
func (h *Handler) HandleLiftRestrictions(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	userID := r.PathValue("id")
	if userID == "" {
		writeBadRequest(w, "User ID is required")
		return
	}

	var req liftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	result, err := h.executor.Lift(r.Context(), trust.LiftInput{
		AdminID: adminID,
		UserID:  userID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("admin_id", adminID).
		Msg("moderation: restrictions lifted")

	writeJSON(w, http.StatusOK, result)
}

// userRecordResponse bundles a user's moderation record with their warning
// history for the moderator user view.
type userRecordResponse struct {
	Record   *trust.UserModerationRecord `json:"record"`
	Warnings []trust.Warning             `json:"warnings"`
}

// HandleUserRecord handles GET /mod/users/{id}.
func (h *Handler) HandleUserRecord(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())
	if err := h.access.Require(adminID, trust.PermissionViewReports); err != nil {
		writeError(w, err)
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		writeBadRequest(w, "User ID is required")
		return
	}

	record, err := h.status.Record(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	warnings, err := h.status.Warnings(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userRecordResponse{Record: record, Warnings: warnings})
}

// HandleUserStatus handles GET /api/users/{id}/status.
// Other Creel services call this before accepting a write from the user.
func (h *Handler) HandleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeBadRequest(w, "User ID is required")
		return
	}

	blocked, err := h.status.IsBlocked(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"blocked": blocked,
	})
}
