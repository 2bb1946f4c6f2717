package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/ratelimit"
	"tangled.org/creel.social/creel/internal/trust"
)

// ReportRequest represents the JSON request for submitting a report
type ReportRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason"`
}

// ReportResponse represents the JSON response from report submission
type ReportResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleSubmitReport handles POST /api/report.
// Requires authentication, passes the rate-limit gate, then files the report.
func (h *Handler) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reporterID := identity.Actor(ctx)
	if reporterID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Message: "Authentication required"})
		return
	}

	var req ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid JSON")
		return
	}

	// The limiter is the authoritative gate; consume before any other work.
	result, err := h.limiter.CheckAndConsume(ctx, reporterID, ratelimit.ActionReport)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.Allowed {
		writeError(w, &trust.RateLimitError{Action: ratelimit.ActionReport, ResetAt: result.ResetAt})
		return
	}

	report, err := h.triage.Submit(ctx, trust.SubmitInput{
		ReporterID: reporterID,
		TargetType: trust.TargetType(req.TargetType),
		TargetID:   req.TargetID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("report_id", report.ID).
		Str("reporter_id", report.ReporterID).
		Str("target_type", string(report.TargetType)).
		Str("target_id", report.TargetID).
		Msg("moderation: report created")

	writeJSON(w, http.StatusOK, ReportResponse{
		ID:      report.ID,
		Status:  "received",
		Message: "Thank you for your report. It will be reviewed by a moderator.",
	})
}
