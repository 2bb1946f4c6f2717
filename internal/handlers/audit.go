package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/trust"
)

// auditFilter parses the shared audit log query parameters.
func auditFilter(r *http.Request) trust.LogFilter {
	return trust.LogFilter{
		AdminID: r.URL.Query().Get("admin"),
		Action:  trust.Action(r.URL.Query().Get("action")),
		Search:  r.URL.Query().Get("q"),
		From:    queryTime(r, "from"),
		To:      queryTime(r, "to"),
	}
}

// HandleAuditLog handles GET /mod/audit.
// Query parameters: admin, action, q, from, to, sort, page.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	page, err := h.audit.List(r.Context(), adminID, auditFilter(r), querySort(r), queryPage(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleAuditForTarget handles GET /mod/audit/{type}/{id}.
func (h *Handler) HandleAuditForTarget(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	targetType := trust.TargetType(r.PathValue("type"))
	targetID := r.PathValue("id")
	if targetID == "" {
		writeBadRequest(w, "Target ID is required")
		return
	}

	entries, err := h.audit.ForTarget(r.Context(), adminID, targetType, targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleAuditExport handles GET /mod/audit/export.
// Streams the filtered audit log as tab-separated values, gzip-compressed
// when the client accepts it.
func (h *Handler) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	// Check permission up front so we fail before writing any body bytes.
	if err := h.access.Require(adminID, trust.PermissionExportAuditLog); err != nil {
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("audit-export-%s.tsv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	var dst io.Writer = w
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		dst = gz
	}

	if err := h.audit.Export(r.Context(), adminID, auditFilter(r), querySort(r), dst); err != nil {
		// Headers are already out; all we can do is log and cut the stream.
		log.Error().Err(err).Msg("moderation: audit export failed")
	}
}

// HandleStream handles GET /mod/stream.
// Upgrades to a WebSocket carrying live audit, report, and moderation events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())
	if err := h.access.Require(adminID, trust.PermissionViewAuditLog); err != nil {
		writeError(w, err)
		return
	}
	if h.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Message: "Streaming is not enabled"})
		return
	}
	h.hub.ServeWS(w, r)
}
