package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessPermissions(t *testing.T) {
	access := testAccess(t)

	assert.True(t, access.IsEnabled())
	assert.True(t, access.IsAdmin(testAdminID))
	assert.False(t, access.IsAdmin(testModeratorID))
	assert.True(t, access.IsStaff(testModeratorID))
	assert.False(t, access.IsStaff(testUserID))

	t.Run("admin holds everything", func(t *testing.T) {
		for _, perm := range AllPermissions() {
			assert.True(t, access.HasPermission(testAdminID, perm), string(perm))
		}
	})

	t.Run("moderator holds a subset", func(t *testing.T) {
		assert.True(t, access.HasPermission(testModeratorID, PermissionViewReports))
		assert.True(t, access.HasPermission(testModeratorID, PermissionResolveReport))
		assert.False(t, access.HasPermission(testModeratorID, PermissionWarnUser))
		assert.False(t, access.HasPermission(testModeratorID, PermissionExportAuditLog))
	})

	t.Run("require", func(t *testing.T) {
		assert.NoError(t, access.Require(testAdminID, PermissionWarnUser))
		assert.ErrorIs(t, access.Require(testUserID, PermissionViewReports), ErrUnauthorized)
	})

	t.Run("permissions for", func(t *testing.T) {
		assert.Len(t, access.PermissionsFor(testAdminID), len(AllPermissions()))
		assert.Len(t, access.PermissionsFor(testModeratorID), 3)
		assert.Nil(t, access.PermissionsFor(testUserID))
	})
}

func TestAccessDisabledWithoutConfig(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		access, err := NewAccess("")
		require.NoError(t, err)
		assert.False(t, access.IsEnabled())
		assert.ErrorIs(t, access.Require(testAdminID, PermissionWarnUser), ErrUnauthorized)
	})

	t.Run("missing file", func(t *testing.T) {
		access, err := NewAccess(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		assert.False(t, access.IsEnabled())
	})
}

func TestAccessRejectsInvalidConfig(t *testing.T) {
	t.Run("unknown role reference", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "staff.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"roles":{},"users":[{"user_id":"u1","role":"overlord"}]}`), 0o600))

		_, err := NewAccess(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "staff.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"roles":`), 0o600))

		_, err := NewAccess(path)
		require.Error(t, err)
	})
}

func TestAccessReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.json")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}

	write(`{"roles":{"admin":{"permissions":["warn_user"]}},"users":[{"user_id":"admin-1","role":"admin"}]}`)
	access, err := NewAccess(path)
	require.NoError(t, err)
	require.True(t, access.HasPermission("admin-1", PermissionWarnUser))

	// A staff change on disk takes effect on reload without a restart.
	write(`{"roles":{"admin":{"permissions":["warn_user"]}},"users":[{"user_id":"admin-2","role":"admin"}]}`)
	require.NoError(t, access.Reload())

	assert.False(t, access.HasPermission("admin-1", PermissionWarnUser))
	assert.True(t, access.HasPermission("admin-2", PermissionWarnUser))
}
