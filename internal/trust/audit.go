package trust

import (
	"context"
	"fmt"
	"io"
	"time"
)

// LogPage is one page of audit log entries. HasMore is inferred from whether
// a full page came back, so last-page detection is approximate while inserts
// are happening concurrently.
type LogPage struct {
	Entries []LogEntry `json:"entries"`
	Page    int        `json:"page"`
	HasMore bool       `json:"has_more"`
}

// Audit serves the audit viewer: filtered listings, live updates via the
// realtime hub, and delimited exports of the filtered view.
type Audit struct {
	store  Store
	access *Access
}

// NewAudit creates the audit query service.
func NewAudit(store Store, access *Access) *Audit {
	return &Audit{store: store, access: access}
}

// List returns one page of the audit log under the given filter.
func (a *Audit) List(ctx context.Context, adminID string, filter LogFilter, dir SortDirection, page int) (*LogPage, error) {
	if err := a.access.Require(adminID, PermissionViewAuditLog); err != nil {
		return nil, err
	}
	if dir != SortAsc {
		dir = SortDesc
	}
	if page < 0 {
		page = 0
	}

	entries, err := a.store.ListLog(ctx, filter, dir, page)
	if err != nil {
		return nil, storageErr("list audit log", err)
	}

	return &LogPage{
		Entries: entries,
		Page:    page,
		HasMore: len(entries) == PageSize,
	}, nil
}

// ForTarget returns every audit entry scoped to one target, newest first.
func (a *Audit) ForTarget(ctx context.Context, adminID string, targetType TargetType, targetID string) ([]LogEntry, error) {
	if err := a.access.Require(adminID, PermissionViewAuditLog); err != nil {
		return nil, err
	}
	entries, err := a.store.ListLogForTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, storageErr("list audit log for target", err)
	}
	return entries, nil
}

// Export writes a tab-delimited snapshot of the currently filtered view to w.
// It walks every page of the filter, not just the first, but never the
// unfiltered full table unless the filter is empty.
func (a *Audit) Export(ctx context.Context, adminID string, filter LogFilter, dir SortDirection, w io.Writer) error {
	if err := a.access.Require(adminID, PermissionExportAuditLog); err != nil {
		return err
	}
	if dir != SortAsc {
		dir = SortDesc
	}

	if _, err := io.WriteString(w, "timestamp\tadmin\taction\ttarget_type\ttarget_id\treason\tdetail\n"); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for page := 0; ; page++ {
		entries, err := a.store.ListLog(ctx, filter, dir, page)
		if err != nil {
			return storageErr("export audit log", err)
		}
		for _, e := range entries {
			if err := writeExportRow(w, e); err != nil {
				return err
			}
		}
		if len(entries) < PageSize {
			return nil
		}
	}
}

func writeExportRow(w io.Writer, e LogEntry) error {
	detail, err := EncodeDetail(e.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	_, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		e.CreatedAt.Format(time.RFC3339),
		e.AdminID,
		e.Action,
		e.TargetType,
		e.TargetID,
		sanitizeField(e.Detail.Reason()),
		sanitizeField(string(detail)),
	)
	if err != nil {
		return fmt.Errorf("write export row: %w", err)
	}
	return nil
}

// sanitizeField keeps tabs and newlines inside a value from breaking the
// delimited format.
func sanitizeField(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\t', '\n', '\r':
			out = append(out, ' ')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
