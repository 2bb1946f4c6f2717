package trust

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tangled.org/creel.social/creel/internal/metrics"
)

// MaxReportReasonLength is the maximum length of a report reason.
const MaxReportReasonLength = 500

// ReportPage is one page of the triage queue.
type ReportPage struct {
	Reports []Report `json:"reports"`
	Page    int      `json:"page"`
	HasMore bool     `json:"has_more"`
}

// ReportContext is everything an admin needs before acting on a report:
// the target's current state, the subject user's moderation history, and the
// audit entries scoped to this target and user.
type ReportContext struct {
	Report        Report                `json:"report"`
	Target        *TargetRecord         `json:"target,omitempty"`
	TargetMissing bool                  `json:"target_missing"`
	SubjectUserID string                `json:"subject_user_id,omitempty"`
	Record        *UserModerationRecord `json:"moderation_record"`
	Warnings      []Warning             `json:"warnings"`
	LogEntries    []LogEntry            `json:"log_entries"`
}

// ResolveRequest composes the moderation services to settle a report. At
// least one of Moderate or Takedown must be set; the report is forced to
// resolved once the composed actions succeed.
type ResolveRequest struct {
	Moderate *ApplyInput      `json:"moderate,omitempty"`
	Takedown *TakedownRequest `json:"takedown,omitempty"`
	Notes    string           `json:"notes,omitempty"`
}

// TakedownRequest is the takedown half of a resolution.
type TakedownRequest struct {
	Restore bool   `json:"restore,omitempty"`
	Reason  string `json:"reason"`
}

// Triage is the report queue: submission, filtering, context assembly, and
// resolution.
type Triage struct {
	store     Store
	access    *Access
	status    StatusChecker
	executor  *Executor
	takedown  *Takedown
	publisher Publisher

	now func() time.Time
}

// NewTriage creates the triage service. publisher may be nil.
func NewTriage(store Store, access *Access, status StatusChecker, executor *Executor, takedown *Takedown, publisher Publisher) *Triage {
	return &Triage{
		store:     store,
		access:    access,
		status:    status,
		executor:  executor,
		takedown:  takedown,
		publisher: publisher,
		now:       time.Now,
	}
}

// SubmitInput is an end-user report submission.
type SubmitInput struct {
	ReporterID string
	TargetType TargetType
	TargetID   string
	Reason     string
}

// Submit files a report. The caller is expected to have passed the rate-limit
// gate already; Submit enforces the remaining rules: blocked users cannot
// report, self-reports are rejected, and a reporter may flag a given target
// only once.
func (t *Triage) Submit(ctx context.Context, in SubmitInput) (*Report, error) {
	if in.TargetType != TargetCatch && in.TargetType != TargetComment && in.TargetType != TargetProfile {
		return nil, &ValidationError{Field: "target_type", Message: "must be catch, comment, or profile"}
	}
	if in.TargetID == "" {
		return nil, &ValidationError{Field: "target_id", Message: "must not be empty"}
	}

	if t.status != nil {
		blocked, err := t.status.IsBlocked(ctx, in.ReporterID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, ErrUnauthorized
		}
	}

	subjectUserID, err := t.resolveSubject(ctx, in.TargetType, in.TargetID)
	if err != nil {
		return nil, err
	}
	if subjectUserID == in.ReporterID {
		return nil, &ValidationError{Field: "target_id", Message: "you cannot report your own content"}
	}

	reported, err := t.store.HasReported(ctx, in.ReporterID, in.TargetType, in.TargetID)
	if err != nil {
		return nil, storageErr("check duplicate report", err)
	}
	if reported {
		return nil, ErrDuplicateReport
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "No reason provided"
	}
	if r := []rune(reason); len(r) > MaxReportReasonLength {
		// Truncate on a rune boundary so a multi-byte reason stays valid UTF-8.
		reason = string(r[:MaxReportReasonLength])
	}

	report := Report{
		ID:            uuid.NewString(),
		TargetType:    in.TargetType,
		TargetID:      in.TargetID,
		SubjectUserID: subjectUserID,
		ReporterID:    in.ReporterID,
		Reason:        reason,
		Status:        ReportOpen,
		CreatedAt:     t.now(),
	}

	if err := t.store.CreateReport(ctx, report); err != nil {
		return nil, storageErr("create report", err)
	}

	log.Info().
		Str("report_id", report.ID).
		Str("target_type", string(in.TargetType)).
		Str("target_id", in.TargetID).
		Msg("trust: report submitted")
	metrics.ReportsSubmittedTotal.Inc()
	t.publish(report)

	return &report, nil
}

// List returns one page of the triage queue under the given filter.
func (t *Triage) List(ctx context.Context, adminID string, filter ReportFilter, dir SortDirection, page int) (*ReportPage, error) {
	if err := t.access.Require(adminID, PermissionViewReports); err != nil {
		return nil, err
	}
	if dir != SortAsc {
		dir = SortDesc
	}
	if page < 0 {
		page = 0
	}

	reports, err := t.store.ListReports(ctx, filter, dir, page)
	if err != nil {
		return nil, storageErr("list reports", err)
	}

	return &ReportPage{
		Reports: reports,
		Page:    page,
		HasMore: len(reports) == PageSize,
	}, nil
}

// Get returns one report.
func (t *Triage) Get(ctx context.Context, adminID, reportID string) (*Report, error) {
	if err := t.access.Require(adminID, PermissionViewReports); err != nil {
		return nil, err
	}
	report, err := t.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, storageErr("get report", err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// UpdateStatus moves a report between open, resolved, and dismissed. Any
// status is reachable from any other; reopening a settled report is a normal
// operation.
func (t *Triage) UpdateStatus(ctx context.Context, adminID, reportID string, status ReportStatus, notes string) (*Report, error) {
	if err := t.access.Require(adminID, PermissionResolveReport); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown status: " + string(status)}
	}

	now := t.now()
	err := t.store.WithTx(ctx, func(tx Tx) error {
		return tx.SetReportStatus(reportID, status, adminID, notes, now)
	})
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, storageErr("update report status", err)
	}

	report, err := t.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, storageErr("get report", err)
	}

	log.Info().
		Str("report_id", reportID).
		Str("status", string(status)).
		Str("admin_id", adminID).
		Msg("trust: report status updated")
	t.publish(*report)

	return report, nil
}

// Context assembles the full moderation picture for a report. The independent
// lookups run concurrently.
func (t *Triage) Context(ctx context.Context, adminID, reportID string) (*ReportContext, error) {
	if err := t.access.Require(adminID, PermissionViewReports); err != nil {
		return nil, err
	}

	report, err := t.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, storageErr("get report", err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}

	rc := &ReportContext{Report: *report, SubjectUserID: report.SubjectUserID}

	// Re-resolve the target: its owner and soft-delete state may have moved
	// since the report was filed, or the record may be gone entirely. A
	// missing target still allows warning the user recorded at submit time.
	if report.TargetType == TargetCatch || report.TargetType == TargetComment {
		target, err := t.store.GetTarget(ctx, report.TargetType, report.TargetID)
		if err != nil {
			return nil, storageErr("get target", err)
		}
		rc.Target = target
		rc.TargetMissing = target == nil
		if target != nil {
			rc.SubjectUserID = target.OwnerID
		}
	} else {
		rc.SubjectUserID = report.TargetID
	}

	g, gctx := errgroup.WithContext(ctx)

	if rc.SubjectUserID != "" {
		subject := rc.SubjectUserID
		g.Go(func() error {
			record, err := t.store.GetRecord(gctx, subject)
			if err != nil {
				return storageErr("get record", err)
			}
			if record == nil {
				record = &UserModerationRecord{UserID: subject, Status: StatusActive}
			}
			rc.Record = record
			return nil
		})
		g.Go(func() error {
			warnings, err := t.store.ListWarnings(gctx, subject)
			if err != nil {
				return storageErr("list warnings", err)
			}
			rc.Warnings = warnings
			return nil
		})
	}

	g.Go(func() error {
		entries, err := t.store.ListLogForTarget(gctx, report.TargetType, report.TargetID)
		if err != nil {
			return storageErr("list log for target", err)
		}
		if rc.SubjectUserID != "" && rc.SubjectUserID != report.TargetID {
			userEntries, err := t.store.ListLogForUser(gctx, rc.SubjectUserID)
			if err != nil {
				return storageErr("list log for user", err)
			}
			entries = mergeEntries(entries, userEntries)
		}
		rc.LogEntries = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rc, nil
}

// Resolve composes moderation and takedown actions for a report, then forces
// its status to resolved.
func (t *Triage) Resolve(ctx context.Context, adminID, reportID string, req ResolveRequest) (*Report, error) {
	if err := t.access.Require(adminID, PermissionResolveReport); err != nil {
		return nil, err
	}
	if req.Moderate == nil && req.Takedown == nil {
		return nil, &ValidationError{Field: "action", Message: "resolution requires a moderation or takedown action"}
	}

	rc, err := t.Context(ctx, adminID, reportID)
	if err != nil {
		return nil, err
	}

	if req.Takedown != nil {
		if rc.Report.TargetType == TargetProfile {
			return nil, &ValidationError{Field: "takedown", Message: "profiles cannot be taken down"}
		}
		td := *req.Takedown
		if td.Restore {
			if _, err := t.takedown.Restore(ctx, adminID, rc.Report.TargetType, rc.Report.TargetID, td.Reason); err != nil {
				return nil, err
			}
		} else {
			if _, err := t.takedown.Delete(ctx, adminID, rc.Report.TargetType, rc.Report.TargetID, td.Reason); err != nil {
				return nil, err
			}
		}
	}

	if req.Moderate != nil {
		in := *req.Moderate
		in.AdminID = adminID
		if in.UserID == "" {
			in.UserID = rc.SubjectUserID
		}
		if in.UserID == "" {
			return nil, &ValidationError{Field: "user_id", Message: "no resolvable user for this report"}
		}
		if _, err := t.executor.Apply(ctx, in); err != nil {
			return nil, err
		}
	}

	return t.UpdateStatus(ctx, adminID, reportID, ReportResolved, req.Notes)
}

func (t *Triage) resolveSubject(ctx context.Context, targetType TargetType, targetID string) (string, error) {
	if targetType == TargetProfile {
		return targetID, nil
	}
	target, err := t.store.GetTarget(ctx, targetType, targetID)
	if err != nil {
		return "", storageErr("get target", err)
	}
	if target == nil {
		return "", ErrTargetNotFound
	}
	return target.OwnerID, nil
}

func (t *Triage) publish(report Report) {
	if t.publisher != nil {
		t.publisher.Publish(TopicReports, report)
	}
}

// mergeEntries combines two entry lists, dropping duplicates and keeping
// newest-first order.
func mergeEntries(a, b []LogEntry) []LogEntry {
	seen := make(map[string]bool, len(a))
	merged := make([]LogEntry, 0, len(a)+len(b))
	for _, e := range a {
		seen[e.ID] = true
		merged = append(merged, e)
	}
	for _, e := range b {
		if !seen[e.ID] {
			merged = append(merged, e)
		}
	}
	// Insertion order within each source is newest first; a simple merge by
	// CreatedAt keeps the combined list that way.
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].CreatedAt.After(merged[j-1].CreatedAt); j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	return merged
}
