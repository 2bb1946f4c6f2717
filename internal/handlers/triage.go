package handlers

import (
	"net/http"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/trust"
)

// HandleListReports handles GET /mod/reports.
// Query parameters: status, target_type, user, from, to, sort, page.
func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	filter := trust.ReportFilter{
		Status:         trust.ReportStatus(r.URL.Query().Get("status")),
		TargetType:     trust.TargetType(r.URL.Query().Get("target_type")),
		ReportedUserID: r.URL.Query().Get("user"),
		From:           queryTime(r, "from"),
		To:             queryTime(r, "to"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeBadRequest(w, "Invalid status filter")
		return
	}

	page, err := h.triage.List(r.Context(), adminID, filter, querySort(r), queryPage(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleReportContext handles GET /mod/reports/{id}.
// Returns the report together with the target's state, the subject user's
// moderation record and warnings, and the related audit entries.
func (h *Handler) HandleReportContext(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	reportID := r.PathValue("id")
	if reportID == "" {
		writeBadRequest(w, "Report ID is required")
		return
	}

	rctx, err := h.triage.Context(r.Context(), adminID, reportID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rctx)
}

// statusRequest is the request body for a report status change.
type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// HandleUpdateReportStatus handles POST /mod/reports/{id}/status.
func (h *Handler) HandleUpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	reportID := r.PathValue("id")
	if reportID == "" {
		writeBadRequest(w, "Report ID is required")
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	status := trust.ReportStatus(req.Status)
	if !status.Valid() {
		writeBadRequest(w, "Status must be open, resolved, or dismissed")
		return
	}

	report, err := h.triage.UpdateStatus(r.Context(), adminID, reportID, status, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// resolveRequest is the request body for a composed report resolution.
type resolveRequest struct {
	Moderate *moderateRequest `json:"moderate,omitempty"`
	Takedown *takedownPart    `json:"takedown,omitempty"`
	Notes    string           `json:"notes,omitempty"`
}

type takedownPart struct {
	Restore bool   `json:"restore,omitempty"`
	Reason  string `json:"reason"`
}

// HandleResolveReport handles POST /mod/reports/{id}/resolve.
// Applies the requested takedown and/or moderation action, then marks the
// report resolved.
func (h *Handler) HandleResolveReport(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())

	reportID := r.PathValue("id")
	if reportID == "" {
		writeBadRequest(w, "Report ID is required")
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}
	if req.Moderate == nil && req.Takedown == nil {
		writeBadRequest(w, "At least one of moderate or takedown is required")
		return
	}

	resolve := trust.ResolveRequest{Notes: req.Notes}
	if req.Moderate != nil {
		resolve.Moderate = &trust.ApplyInput{
			AdminID:       adminID,
			UserID:        req.Moderate.UserID,
			Severity:      trust.Severity(req.Moderate.Severity),
			DurationHours: req.Moderate.DurationHours,
			Reason:        req.Moderate.Reason,
		}
	}
	if req.Takedown != nil {
		resolve.Takedown = &trust.TakedownRequest{
			Restore: req.Takedown.Restore,
			Reason:  req.Takedown.Reason,
		}
	}

	report, err := h.triage.Resolve(r.Context(), adminID, reportID, resolve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
