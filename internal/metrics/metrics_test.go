package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Exact routes (no normalization needed)
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/api/report", "/api/report"},
		{"/api/notifications", "/api/notifications"},
		{"/mod/reports", "/mod/reports"},
		{"/mod/audit", "/mod/audit"},
		{"/mod/audit/export", "/mod/audit/export"},

		// Triage queue with IDs
		{"/mod/reports/3f8e2c1a-77aa-4e5d-9b1f-0a2b3c4d5e6f", "/mod/reports/:id"},
		{"/mod/reports/3f8e2c1a-77aa-4e5d-9b1f-0a2b3c4d5e6f/status", "/mod/reports/:id/status"},
		{"/mod/reports/3f8e2c1a-77aa-4e5d-9b1f-0a2b3c4d5e6f/context", "/mod/reports/:id/context"},
		{"/mod/reports/3f8e2c1a-77aa-4e5d-9b1f-0a2b3c4d5e6f/resolve", "/mod/reports/:id/resolve"},

		// User moderation routes
		{"/mod/users/user-123", "/mod/users/:id"},
		{"/mod/users/user-123/action", "/mod/users/:id/action"},
		{"/mod/users/user-123/lift", "/mod/users/:id/lift"},
		{"/mod/users/user-123/context", "/mod/users/:id/context"},

		// Notifications
		{"/api/notifications/abc123", "/api/notifications/:id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}
