package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/trust"
)

// takedownRequest is the request body for content takedown and restore.
type takedownRequest struct {
	Reason string `json:"reason"`
}

// HandleDeleteContent handles POST /mod/content/{type}/{id}/delete.
func (h *Handler) HandleDeleteContent(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	targetType, targetID, ok := contentTarget(w, r)
	if !ok {
		return
	}

	var req takedownRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	entry, err := h.takedown.Delete(r.Context(), adminID, targetType, targetID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("target_type", string(targetType)).
		Str("target_id", targetID).
		Str("admin_id", adminID).
		Msg("moderation: content removed")

	writeJSON(w, http.StatusOK, entry)
}

// HandleRestoreContent handles POST /mod/content/{type}/{id}/restore.
func (h *Handler) HandleRestoreContent(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	targetType, targetID, ok := contentTarget(w, r)
	if !ok {
		return
	}

	var req takedownRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	entry, err := h.takedown.Restore(r.Context(), adminID, targetType, targetID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("target_type", string(targetType)).
		Str("target_id", targetID).
		Str("admin_id", adminID).
		Msg("moderation: content restored")

	writeJSON(w, http.StatusOK, entry)
}

// contentTarget extracts and validates the {type} and {id} path values.
func contentTarget(w http.ResponseWriter, r *http.Request) (trust.TargetType, string, bool) {
	targetType := trust.TargetType(r.PathValue("type"))
	if targetType != trust.TargetCatch && targetType != trust.TargetComment {
		writeBadRequest(w, "Content type must be catch or comment")
		return "", "", false
	}
	targetID := r.PathValue("id")
	if targetID == "" {
		writeBadRequest(w, "Content ID is required")
		return "", "", false
	}
	return targetType, targetID, true
}
