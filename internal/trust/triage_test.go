package trust

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/creel.social/creel/internal/notify"
)

func newTestTriage(t *testing.T, store *fakeStore) (*Triage, *capturePublisher) {
	t.Helper()
	access := testAccess(t)
	sink := &recordSink{}
	dispatcher := notify.NewDispatcher(sink)
	pub := &capturePublisher{}

	executor := NewExecutor(store, access, newFakeDedupe(), dispatcher, nil)
	takedown := NewTakedown(store, access, dispatcher, nil)
	status := NewStatusService(store)
	return NewTriage(store, access, status, executor, takedown, pub), pub
}

func TestTriageSubmit(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	triage, pub := newTestTriage(t, store)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{
		ReporterID: testUserID,
		TargetType: TargetCatch,
		TargetID:   "catch-1",
		Reason:     "that is a stock photo",
	})
	require.NoError(t, err)

	assert.Equal(t, ReportOpen, report.Status)
	assert.Equal(t, "angler-2", report.SubjectUserID)
	assert.Equal(t, testUserID, report.ReporterID)
	assert.Equal(t, []string{TopicReports}, pub.topics())
}

func TestTriageSubmitProfileReport(t *testing.T) {
	store := newFakeStore()
	triage, _ := newTestTriage(t, store)

	// Profile reports resolve the subject from the target id itself, no
	// target record needed.
	report, err := triage.Submit(context.Background(), SubmitInput{
		ReporterID: testUserID,
		TargetType: TargetProfile,
		TargetID:   "angler-2",
		Reason:     "impersonation",
	})
	require.NoError(t, err)
	assert.Equal(t, "angler-2", report.SubjectUserID)
}

func TestTriageSubmitReasonNormalization(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	store.seedTarget(TargetCatch, "catch-2", "angler-2")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	t.Run("blank reason gets a default", func(t *testing.T) {
		report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "   "})
		require.NoError(t, err)
		assert.Equal(t, "No reason provided", report.Reason)
	})

	t.Run("long reason is truncated", func(t *testing.T) {
		report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-2", Reason: strings.Repeat("a", 2*MaxReportReasonLength)})
		require.NoError(t, err)
		assert.Len(t, report.Reason, MaxReportReasonLength)
	})

	t.Run("truncation keeps multi-byte reasons valid", func(t *testing.T) {
		store.seedTarget(TargetCatch, "catch-3", "angler-2")
		report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-3", Reason: strings.Repeat("å", MaxReportReasonLength+7)})
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(report.Reason))
		assert.Equal(t, MaxReportReasonLength, utf8.RuneCountInString(report.Reason))
	})
}

func TestTriageSubmitRejections(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	store.seedTarget(TargetCatch, "catch-mine", testUserID)
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	t.Run("unknown target type", func(t *testing.T) {
		_, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetUser, TargetID: "x"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "target_type", verr.Field)
	})

	t.Run("empty target id", func(t *testing.T) {
		_, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "target_id", verr.Field)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-404"})
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})

	t.Run("self report", func(t *testing.T) {
		_, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-mine"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("duplicate report", func(t *testing.T) {
		_, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam"})
		require.NoError(t, err)
		_, err = triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam again"})
		assert.ErrorIs(t, err, ErrDuplicateReport)
	})

	t.Run("blocked reporter", func(t *testing.T) {
		store.mu.Lock()
		store.records["banned-1"] = &UserModerationRecord{UserID: "banned-1", Status: StatusBanned}
		store.mu.Unlock()

		_, err := triage.Submit(ctx, SubmitInput{ReporterID: "banned-1", TargetType: TargetCatch, TargetID: "catch-1"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestTriageListAndGet(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	store.seedTarget(TargetComment, "comment-1", "angler-3")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	first, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam"})
	require.NoError(t, err)
	_, err = triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetComment, TargetID: "comment-1", Reason: "abuse"})
	require.NoError(t, err)

	t.Run("filter by target type", func(t *testing.T) {
		page, err := triage.List(ctx, testModeratorID, ReportFilter{TargetType: TargetCatch}, SortDesc, 0)
		require.NoError(t, err)
		require.Len(t, page.Reports, 1)
		assert.Equal(t, first.ID, page.Reports[0].ID)
		assert.False(t, page.HasMore)
	})

	t.Run("filter by subject user", func(t *testing.T) {
		page, err := triage.List(ctx, testModeratorID, ReportFilter{ReportedUserID: "angler-3"}, SortDesc, 0)
		require.NoError(t, err)
		require.Len(t, page.Reports, 1)
		assert.Equal(t, "comment-1", page.Reports[0].TargetID)
	})

	t.Run("get", func(t *testing.T) {
		got, err := triage.Get(ctx, testModeratorID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("get unknown report", func(t *testing.T) {
		_, err := triage.Get(ctx, testModeratorID, "no-such-report")
		assert.ErrorIs(t, err, ErrReportNotFound)
	})

	t.Run("listing requires view permission", func(t *testing.T) {
		_, err := triage.List(ctx, testUserID, ReportFilter{}, SortDesc, 0)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestTriageUpdateStatus(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam"})
	require.NoError(t, err)

	updated, err := triage.UpdateStatus(ctx, testModeratorID, report.ID, ReportDismissed, "not actionable")
	require.NoError(t, err)
	assert.Equal(t, ReportDismissed, updated.Status)
	assert.Equal(t, testModeratorID, updated.ReviewedBy)
	assert.Equal(t, "not actionable", updated.ResolutionNotes)
	require.NotNil(t, updated.ReviewedAt)

	t.Run("reopening is allowed", func(t *testing.T) {
		reopened, err := triage.UpdateStatus(ctx, testModeratorID, report.ID, ReportOpen, "second look")
		require.NoError(t, err)
		assert.Equal(t, ReportOpen, reopened.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := triage.UpdateStatus(ctx, testModeratorID, report.ID, "escalated", "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("unknown report", func(t *testing.T) {
		_, err := triage.UpdateStatus(ctx, testModeratorID, "no-such-report", ReportResolved, "")
		assert.ErrorIs(t, err, ErrReportNotFound)
	})
}

func TestTriageContext(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	triage, _ := newTestTriage(t, store)
	access := testAccess(t)
	sink := &recordSink{}
	executor := NewExecutor(store, access, newFakeDedupe(), notify.NewDispatcher(sink), nil)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam"})
	require.NoError(t, err)

	// Give the subject a prior warning so the context has history to show.
	_, err = executor.Apply(ctx, ApplyInput{AdminID: testAdminID, UserID: "angler-2", Severity: SeverityWarning, Reason: "earlier spam"})
	require.NoError(t, err)

	rc, err := triage.Context(ctx, testModeratorID, report.ID)
	require.NoError(t, err)

	assert.Equal(t, report.ID, rc.Report.ID)
	require.NotNil(t, rc.Target)
	assert.False(t, rc.TargetMissing)
	assert.Equal(t, "angler-2", rc.SubjectUserID)
	require.NotNil(t, rc.Record)
	assert.Equal(t, StatusWarned, rc.Record.Status)
	assert.Len(t, rc.Warnings, 1)
	// The warn action is scoped to the user, not the catch, and still shows.
	require.Len(t, rc.LogEntries, 1)
	assert.Equal(t, ActionWarnUser, rc.LogEntries[0].Action)
}

func TestTriageContextNeverModeratedSubject(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetComment, "comment-1", "angler-5")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetComment, TargetID: "comment-1", Reason: "abuse"})
	require.NoError(t, err)

	rc, err := triage.Context(ctx, testModeratorID, report.ID)
	require.NoError(t, err)

	// A clean subject still gets a synthetic active record.
	require.NotNil(t, rc.Record)
	assert.Equal(t, StatusActive, rc.Record.Status)
	assert.Zero(t, rc.Record.WarnCount)
	assert.Empty(t, rc.Warnings)
}

func TestTriageResolve(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "stolen photo"})
	require.NoError(t, err)

	resolved, err := triage.Resolve(ctx, testAdminID, report.ID, ResolveRequest{
		Moderate: &ApplyInput{Severity: SeverityWarning, Reason: "posting stolen photos"},
		Takedown: &TakedownRequest{Reason: "stolen photo"},
		Notes:    "confirmed against the original",
	})
	require.NoError(t, err)

	assert.Equal(t, ReportResolved, resolved.Status)
	assert.Equal(t, "confirmed against the original", resolved.ResolutionNotes)

	// Both composed actions landed: the catch is gone and the owner warned.
	target, err := store.GetTarget(ctx, TargetCatch, "catch-1")
	require.NoError(t, err)
	assert.True(t, target.Deleted())
	record, err := store.GetRecord(ctx, "angler-2")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusWarned, record.Status)
}

func TestTriageResolveRejections(t *testing.T) {
	store := newFakeStore()
	store.seedTarget(TargetCatch, "catch-1", "angler-2")
	triage, _ := newTestTriage(t, store)
	ctx := context.Background()

	report, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetCatch, TargetID: "catch-1", Reason: "spam"})
	require.NoError(t, err)
	profileReport, err := triage.Submit(ctx, SubmitInput{ReporterID: testUserID, TargetType: TargetProfile, TargetID: "angler-2", Reason: "impersonation"})
	require.NoError(t, err)

	t.Run("no action", func(t *testing.T) {
		_, err := triage.Resolve(ctx, testAdminID, report.ID, ResolveRequest{Notes: "looks fine"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "action", verr.Field)
	})

	t.Run("takedown against a profile report", func(t *testing.T) {
		_, err := triage.Resolve(ctx, testAdminID, profileReport.ID, ResolveRequest{Takedown: &TakedownRequest{Reason: "x"}})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "takedown", verr.Field)
	})

	t.Run("moderator cannot apply the moderation half", func(t *testing.T) {
		_, err := triage.Resolve(ctx, testModeratorID, report.ID, ResolveRequest{
			Moderate: &ApplyInput{Severity: SeverityWarning, Reason: "spam"},
		})
		assert.ErrorIs(t, err, ErrUnauthorized)

		// The report stays open when a composed action is refused.
		got, err := triage.Get(ctx, testModeratorID, report.ID)
		require.NoError(t, err)
		assert.Equal(t, ReportOpen, got.Status)
	})
}

func TestMergeEntries(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mk := func(id string, offset time.Duration) LogEntry {
		return LogEntry{ID: id, CreatedAt: base.Add(offset)}
	}

	a := []LogEntry{mk("c", 3 * time.Minute), mk("a", time.Minute)}
	b := []LogEntry{mk("d", 4 * time.Minute), mk("c", 3 * time.Minute), mk("b", 2 * time.Minute)}

	merged := mergeEntries(a, b)
	require.Len(t, merged, 4)
	for i, want := range []string{"d", "c", "b", "a"} {
		assert.Equal(t, want, merged[i].ID)
	}
}
