package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/notify"
	"tangled.org/creel.social/creel/internal/ratelimit"
	"tangled.org/creel.social/creel/internal/realtime"
	"tangled.org/creel.social/creel/internal/trust"
)

// Test fixture user IDs. TestAdminID has the admin role (all permissions),
// TestModeratorID the moderator role.
const (
	TestAdminID     = "admin-1"
	TestModeratorID = "mod-1"
	TestUserID      = "angler-1"
)

// TestContext bundles a Handler wired against in-memory stores.
type TestContext struct {
	Handler *Handler
	Store   *memStore
	Hub     *realtime.Hub
	Sink    *memSink
}

// NewTestContext builds a fully wired handler over in-memory storage with a
// staff config containing one admin and one moderator.
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	access := newTestAccess(t)
	store := newMemStore()
	hub := realtime.NewHub()
	sink := &memSink{}
	dispatcher := notify.NewDispatcher(sink)

	executor := trust.NewExecutor(store, access, newMemDedupe(), dispatcher, hub)
	takedown := trust.NewTakedown(store, access, dispatcher, hub)
	audit := trust.NewAudit(store, access)
	status := trust.NewStatusService(store)
	triage := trust.NewTriage(store, access, status, executor, takedown, hub)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultRules())

	h := NewHandler(access, executor, takedown, audit, triage, status, limiter)
	h.SetHub(hub)

	return &TestContext{Handler: h, Store: store, Hub: hub, Sink: sink}
}

// newTestAccess writes a staff config to a temp dir and loads it.
func newTestAccess(t *testing.T) *trust.Access {
	t.Helper()

	config := trust.AccessConfig{
		Roles: map[trust.RoleName]*trust.Role{
			trust.RoleAdmin: {Permissions: trust.AllPermissions()},
			trust.RoleModerator: {Permissions: []trust.Permission{
				trust.PermissionViewReports,
				trust.PermissionResolveReport,
				trust.PermissionViewAuditLog,
			}},
		},
		Users: []trust.StaffUser{
			{UserID: TestAdminID, Role: trust.RoleAdmin},
			{UserID: TestModeratorID, Role: trust.RoleModerator},
		},
	}

	data, err := json.Marshal(config)
	if err != nil {
		t.Fatalf("marshal staff config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "staff.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write staff config: %v", err)
	}

	access, err := trust.NewAccess(path)
	if err != nil {
		t.Fatalf("load staff config: %v", err)
	}
	return access
}

// NewAuthenticatedRequest builds a request carrying the given actor identity.
func NewAuthenticatedRequest(method, target, actorID string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(identity.WithActor(req.Context(), actorID))
}

// memSink records dispatched notifications for assertions.
type memSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *memSink) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// WaitFor polls until at least n messages arrived or the deadline passes.
// Dispatch is asynchronous, so assertions need a small grace period.
func (s *memSink) WaitFor(n int, timeout time.Duration) []notify.Message {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if len(s.messages) >= n || time.Now().After(deadline) {
			out := append([]notify.Message(nil), s.messages...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
}

// memDedupe is an in-memory trust.DedupeStore.
type memDedupe struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemDedupe() *memDedupe {
	return &memDedupe{seen: make(map[string]time.Time)}
}

func (d *memDedupe) FirstSeen(key string, ttl time.Duration, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if expiry, ok := d.seen[key]; ok && expiry.After(now) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

// memStore is an in-memory trust.Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	records  map[string]*trust.UserModerationRecord
	warnings map[string][]trust.Warning
	log      []trust.LogEntry
	reports  map[string]*trust.Report
	targets  map[string]*trust.TargetRecord
}

var _ trust.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		records:  make(map[string]*trust.UserModerationRecord),
		warnings: make(map[string][]trust.Warning),
		reports:  make(map[string]*trust.Report),
		targets:  make(map[string]*trust.TargetRecord),
	}
}

func targetKey(targetType trust.TargetType, targetID string) string {
	return string(targetType) + "|" + targetID
}

// SeedTarget registers a catch or comment for takedown and report tests.
func (s *memStore) SeedTarget(target trust.TargetRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := target
	s.targets[targetKey(target.Type, target.ID)] = &copied
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx trust.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

func (s *memStore) GetRecord(ctx context.Context, userID string) (*trust.UserModerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *memStore) ListWarnings(ctx context.Context, userID string) ([]trust.Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	warnings := append([]trust.Warning(nil), s.warnings[userID]...)
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].CreatedAt.After(warnings[j].CreatedAt) })
	return warnings, nil
}

func (s *memStore) ListLog(ctx context.Context, filter trust.LogFilter, dir trust.SortDirection, page int) ([]trust.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []trust.LogEntry
	for _, e := range s.log {
		if filter.AdminID != "" && e.AdminID != filter.AdminID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		if filter.Search != "" && !logEntryMatches(e, filter.Search) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		if dir == trust.SortAsc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := page * trust.PageSize
	if start >= len(matched) {
		return nil, nil
	}
	end := start + trust.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func logEntryMatches(e trust.LogEntry, search string) bool {
	search = strings.ToLower(search)
	reason := ""
	if e.Detail != nil {
		reason = e.Detail.Reason()
	}
	for _, field := range []string{e.AdminID, reason, e.TargetID} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (s *memStore) ListLogForTarget(ctx context.Context, targetType trust.TargetType, targetID string) ([]trust.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []trust.LogEntry
	for _, e := range s.log {
		if e.TargetType == targetType && e.TargetID == targetID {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched, nil
}

func (s *memStore) ListLogForUser(ctx context.Context, userID string) ([]trust.LogEntry, error) {
	return s.ListLogForTarget(ctx, trust.TargetUser, userID)
}

func (s *memStore) CreateReport(ctx context.Context, report trust.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := report
	s.reports[report.ID] = &copied
	return nil
}

func (s *memStore) GetReport(ctx context.Context, id string) (*trust.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	copied := *report
	return &copied, nil
}

func (s *memStore) ListReports(ctx context.Context, filter trust.ReportFilter, dir trust.SortDirection, page int) ([]trust.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []trust.Report
	for _, r := range s.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.TargetType != "" && r.TargetType != filter.TargetType {
			continue
		}
		if filter.ReportedUserID != "" && r.SubjectUserID != filter.ReportedUserID {
			continue
		}
		if !filter.From.IsZero() && r.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && r.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, *r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if dir == trust.SortAsc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := page * trust.PageSize
	if start >= len(matched) {
		return nil, nil
	}
	end := start + trust.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *memStore) HasReported(ctx context.Context, reporterID string, targetType trust.TargetType, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ReporterID == reporterID && r.TargetType == targetType && r.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetTarget(ctx context.Context, targetType trust.TargetType, targetID string) (*trust.TargetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[targetKey(targetType, targetID)]
	if !ok {
		return nil, nil
	}
	copied := *target
	return &copied, nil
}

func (s *memStore) CountOpenReports(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.reports {
		if r.Status == trust.ReportOpen {
			count++
		}
	}
	return count, nil
}

func (s *memStore) CountByStatus(ctx context.Context) (map[trust.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[trust.Status]int)
	for _, r := range s.records {
		counts[r.Status]++
	}
	return counts, nil
}

// memTx mutates the store directly; the enclosing WithTx holds the lock.
type memTx struct {
	s   *memStore
	seq int
}

var _ trust.Tx = (*memTx)(nil)

func (tx *memTx) ApplyModeration(userID string, status trust.Status, suspensionUntil *time.Time, now time.Time) (*trust.UserModerationRecord, error) {
	record, ok := tx.s.records[userID]
	if !ok {
		record = &trust.UserModerationRecord{UserID: userID}
		tx.s.records[userID] = record
	}
	record.Status = status
	record.SuspensionUntil = suspensionUntil
	record.WarnCount++
	record.UpdatedAt = now
	copied := *record
	return &copied, nil
}

func (tx *memTx) ClearModeration(userID string, now time.Time) (*trust.UserModerationRecord, error) {
	record, ok := tx.s.records[userID]
	if !ok {
		return nil, nil
	}
	prior := *record
	record.Status = trust.StatusActive
	record.SuspensionUntil = nil
	record.UpdatedAt = now
	return &prior, nil
}

func (tx *memTx) InsertWarning(w trust.Warning) error {
	tx.s.warnings[w.UserID] = append(tx.s.warnings[w.UserID], w)
	return nil
}

func (tx *memTx) InsertLogEntry(e trust.LogEntry) error {
	// Spread identical timestamps so ordering in tests is deterministic.
	tx.seq++
	e.CreatedAt = e.CreatedAt.Add(time.Duration(tx.seq) * time.Microsecond)
	tx.s.log = append(tx.s.log, e)
	return nil
}

func (tx *memTx) SetTargetDeleted(targetType trust.TargetType, targetID string, deletedAt *time.Time) error {
	target, ok := tx.s.targets[targetKey(targetType, targetID)]
	if !ok {
		return fmt.Errorf("set target deleted: %w", trust.ErrTargetNotFound)
	}
	target.DeletedAt = deletedAt
	return nil
}

func (tx *memTx) SetReportStatus(reportID string, status trust.ReportStatus, reviewedBy, notes string, now time.Time) error {
	report, ok := tx.s.reports[reportID]
	if !ok {
		return fmt.Errorf("set report status: %w", trust.ErrReportNotFound)
	}
	report.Status = status
	report.ReviewedBy = reviewedBy
	report.ResolutionNotes = notes
	report.ReviewedAt = &now
	return nil
}
