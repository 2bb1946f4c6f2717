package trust

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tangled.org/creel.social/creel/internal/notify"
)

// Fixture staff IDs used across the service tests.
const (
	testAdminID     = "admin-1"
	testModeratorID = "mod-1"
	testUserID      = "angler-1"
)

// testAccess loads a staff config with one admin (all permissions) and one
// moderator (view and resolve only) from a temp file.
func testAccess(t *testing.T) *Access {
	t.Helper()

	config := AccessConfig{
		Roles: map[RoleName]*Role{
			RoleAdmin: {Permissions: AllPermissions()},
			RoleModerator: {Permissions: []Permission{
				PermissionViewReports,
				PermissionResolveReport,
				PermissionViewAuditLog,
			}},
		},
		Users: []StaffUser{
			{UserID: testAdminID, Role: RoleAdmin},
			{UserID: testModeratorID, Role: RoleModerator},
		},
	}
	return accessFromConfig(t, config)
}

func accessFromConfig(t *testing.T, config AccessConfig) *Access {
	t.Helper()

	data, err := json.Marshal(config)
	if err != nil {
		t.Fatalf("marshal staff config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "staff.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write staff config: %v", err)
	}
	access, err := NewAccess(path)
	if err != nil {
		t.Fatalf("load staff config: %v", err)
	}
	return access
}

// fakeStore is an in-memory Store for service tests. WithTx serializes
// writers under the store mutex, matching the single-writer behavior of the
// SQLite store.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*UserModerationRecord
	warnings map[string][]Warning
	log      []LogEntry
	reports  map[string]*Report
	targets  map[string]*TargetRecord

	seq int // tiebreaker for entries created in the same instant

	// failOnLogInsert makes InsertLogEntry fail inside a transaction, for
	// rollback tests.
	failOnLogInsert error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string]*UserModerationRecord),
		warnings: make(map[string][]Warning),
		reports:  make(map[string]*Report),
		targets:  make(map[string]*TargetRecord),
	}
}

var _ Store = (*fakeStore)(nil)

func targetKey(targetType TargetType, id string) string {
	return string(targetType) + "/" + id
}

// seedTarget registers reportable content.
func (s *fakeStore) seedTarget(targetType TargetType, id, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetKey(targetType, id)] = &TargetRecord{Type: targetType, ID: id, OwnerID: ownerID}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&fakeTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	records  map[string]*UserModerationRecord
	warnings map[string][]Warning
	log      []LogEntry
	reports  map[string]*Report
	targets  map[string]*TargetRecord
}

// snapshot and restore give WithTx rollback-on-error, matching the
// transactional stores. Caller holds the lock.
func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		records:  make(map[string]*UserModerationRecord, len(s.records)),
		warnings: make(map[string][]Warning, len(s.warnings)),
		log:      append([]LogEntry(nil), s.log...),
		reports:  make(map[string]*Report, len(s.reports)),
		targets:  make(map[string]*TargetRecord, len(s.targets)),
	}
	for k, v := range s.records {
		r := *v
		snap.records[k] = &r
	}
	for k, v := range s.warnings {
		snap.warnings[k] = append([]Warning(nil), v...)
	}
	for k, v := range s.reports {
		r := *v
		snap.reports[k] = &r
	}
	for k, v := range s.targets {
		r := *v
		snap.targets[k] = &r
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.records = snap.records
	s.warnings = snap.warnings
	s.log = snap.log
	s.reports = snap.reports
	s.targets = snap.targets
}

func (s *fakeStore) GetRecord(ctx context.Context, userID string) (*UserModerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

func (s *fakeStore) ListWarnings(ctx context.Context, userID string) ([]Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := append([]Warning(nil), s.warnings[userID]...)
	sort.Slice(ws, func(i, j int) bool { return ws[i].CreatedAt.After(ws[j].CreatedAt) })
	return ws, nil
}

func (s *fakeStore) ListLog(ctx context.Context, filter LogFilter, dir SortDirection, page int) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []LogEntry
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
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if dir == SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	start := page * PageSize
	if start >= len(out) {
		return nil, nil
	}
	end := min(start+PageSize, len(out))
	return out[start:end], nil
}

func logEntryMatches(e LogEntry, search string) bool {
	q := strings.ToLower(search)
	if strings.Contains(strings.ToLower(e.AdminID), q) {
		return true
	}
	if strings.Contains(strings.ToLower(e.TargetID), q) {
		return true
	}
	if e.Detail != nil && strings.Contains(strings.ToLower(e.Detail.Reason()), q) {
		return true
	}
	return false
}

func (s *fakeStore) ListLogForTarget(ctx context.Context, targetType TargetType, targetID string) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []LogEntry
	for _, e := range s.log {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ListLogForUser(ctx context.Context, userID string) ([]LogEntry, error) {
	return s.ListLogForTarget(ctx, TargetUser, userID)
}

func (s *fakeStore) CreateReport(ctx context.Context, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := report
	s.reports[report.ID] = &r
	return nil
}

func (s *fakeStore) GetReport(ctx context.Context, id string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

func (s *fakeStore) ListReports(ctx context.Context, filter ReportFilter, dir SortDirection, page int) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Report
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
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if dir == SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	start := page * PageSize
	if start >= len(out) {
		return nil, nil
	}
	end := min(start+PageSize, len(out))
	return out[start:end], nil
}

func (s *fakeStore) HasReported(ctx context.Context, reporterID string, targetType TargetType, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ReporterID == reporterID && r.TargetType == targetType && r.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetTarget(ctx context.Context, targetType TargetType, targetID string) (*TargetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.targets[targetKey(targetType, targetID)]
	if !ok {
		return nil, nil
	}
	out := *tr
	return &out, nil
}

func (s *fakeStore) CountOpenReports(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reports {
		if r.Status == ReportOpen {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Status]int)
	for _, r := range s.records {
		out[r.Status]++
	}
	return out, nil
}

// fakeTx mutates the store directly; the caller already holds the store lock.
type fakeTx struct {
	store *fakeStore
}

var _ Tx = (*fakeTx)(nil)

func (tx *fakeTx) ApplyModeration(userID string, status Status, suspensionUntil *time.Time, now time.Time) (*UserModerationRecord, error) {
	r, ok := tx.store.records[userID]
	if !ok {
		r = &UserModerationRecord{UserID: userID}
		tx.store.records[userID] = r
	}
	r.Status = status
	r.WarnCount++
	r.SuspensionUntil = suspensionUntil
	r.UpdatedAt = now
	out := *r
	return &out, nil
}

func (tx *fakeTx) ClearModeration(userID string, now time.Time) (*UserModerationRecord, error) {
	r, ok := tx.store.records[userID]
	if !ok {
		return nil, nil
	}
	prior := *r
	r.Status = StatusActive
	r.SuspensionUntil = nil
	r.UpdatedAt = now
	return &prior, nil
}

func (tx *fakeTx) InsertWarning(w Warning) error {
	tx.store.warnings[w.UserID] = append(tx.store.warnings[w.UserID], w)
	return nil
}

func (tx *fakeTx) InsertLogEntry(e LogEntry) error {
	if tx.store.failOnLogInsert != nil {
		return tx.store.failOnLogInsert
	}
	// Entries written in the same instant keep insertion order.
	tx.store.seq++
	e.CreatedAt = e.CreatedAt.Add(time.Duration(tx.store.seq) * time.Microsecond)
	tx.store.log = append(tx.store.log, e)
	return nil
}

func (tx *fakeTx) SetTargetDeleted(targetType TargetType, targetID string, deletedAt *time.Time) error {
	tr, ok := tx.store.targets[targetKey(targetType, targetID)]
	if !ok {
		return ErrTargetNotFound
	}
	tr.DeletedAt = deletedAt
	return nil
}

func (tx *fakeTx) SetReportStatus(reportID string, status ReportStatus, reviewedBy, notes string, now time.Time) error {
	r, ok := tx.store.reports[reportID]
	if !ok {
		return ErrReportNotFound
	}
	r.Status = status
	r.ReviewedBy = reviewedBy
	r.ResolutionNotes = notes
	r.ReviewedAt = &now
	return nil
}

// fakeDedupe is an in-memory DedupeStore.
type fakeDedupe struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{seen: make(map[string]time.Time)}
}

func (d *fakeDedupe) FirstSeen(key string, ttl time.Duration, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

// recordSink records dispatched notifications. Dispatch runs in a goroutine,
// so assertions go through waitFor.
type recordSink struct {
	mu       sync.Mutex
	messages []notifyMessage
}

type notifyMessage = notify.Message

func (s *recordSink) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordSink) waitFor(t *testing.T, n int) []notifyMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.messages) >= n {
			out := append([]notifyMessage(nil), s.messages...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notifications", n)
	return nil
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic string
	event any
}

func (p *capturePublisher) Publish(topic string, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
}

func (p *capturePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}
