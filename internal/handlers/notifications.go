package handlers

import (
	"net/http"
	"strconv"

	"tangled.org/creel.social/creel/internal/identity"
)

// HandleListNotifications handles GET /api/notifications.
// Query parameters: limit (default 20), cursor.
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := identity.Actor(r.Context())

	if h.notifications == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Message: "Notifications are not enabled"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cursor := r.URL.Query().Get("cursor")

	notifications, nextCursor, err := h.notifications.List(r.Context(), userID, limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"cursor":        nextCursor,
	})
}

// HandleUnreadCount handles GET /api/notifications/unread.
func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := identity.Actor(r.Context())

	if h.notifications == nil {
		writeJSON(w, http.StatusOK, map[string]int{"unread": 0})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"unread": h.notifications.UnreadCount(r.Context(), userID),
	})
}

// HandleMarkNotificationsRead handles POST /api/notifications/read.
func (h *Handler) HandleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := identity.Actor(r.Context())

	if h.notifications == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Message: "Notifications are not enabled"})
		return
	}

	if err := h.notifications.MarkRead(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
