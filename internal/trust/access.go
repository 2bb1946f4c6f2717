package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// Permission represents a moderation capability that can be granted to a role.
type Permission string

const (
	PermissionWarnUser         Permission = "warn_user"
	PermissionLiftRestrictions Permission = "lift_restrictions"
	PermissionDeleteContent    Permission = "delete_content"
	PermissionRestoreContent   Permission = "restore_content"
	PermissionViewReports      Permission = "view_reports"
	PermissionResolveReport    Permission = "resolve_report"
	PermissionViewAuditLog     Permission = "view_audit_log"
	PermissionExportAuditLog   Permission = "export_audit_log"
)

// AllPermissions returns every defined permission.
func AllPermissions() []Permission {
	return []Permission{
		PermissionWarnUser,
		PermissionLiftRestrictions,
		PermissionDeleteContent,
		PermissionRestoreContent,
		PermissionViewReports,
		PermissionResolveReport,
		PermissionViewAuditLog,
		PermissionExportAuditLog,
	}
}

// RoleName names a moderation role.
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
)

// Role defines a set of permissions.
type Role struct {
	Name        RoleName     `json:"-"` // set from the map key during loading
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// HasPermission checks if this role grants the given permission.
func (r *Role) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// StaffUser is a user with moderation privileges.
type StaffUser struct {
	UserID string   `json:"user_id"`
	Role   RoleName `json:"role"`
	Note   string   `json:"note,omitempty"`
}

// AccessConfig is the moderation staff configuration loaded from JSON.
type AccessConfig struct {
	Roles map[RoleName]*Role `json:"roles"`
	Users []StaffUser        `json:"users"`
}

// Validate checks that the config is internally consistent.
func (c *AccessConfig) Validate() error {
	if c.Roles == nil {
		c.Roles = make(map[RoleName]*Role)
	}
	for _, user := range c.Users {
		if _, ok := c.Roles[user.Role]; !ok {
			return &ConfigError{
				Field:   "users",
				Message: "user " + user.UserID + " references unknown role: " + string(user.Role),
			}
		}
	}
	for name, role := range c.Roles {
		role.Name = name
	}
	return nil
}

// ConfigError represents a staff configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "access config error in " + e.Field + ": " + e.Message
}

// Access answers "may this caller perform this moderation operation".
// Checked before any read of sensitive moderation context, not just writes.
type Access struct {
	mu         sync.RWMutex
	config     *AccessConfig
	configPath string

	userRoles map[string]*Role // user id -> role
}

// NewAccess creates the access service. If configPath is empty the service is
// in "disabled" mode where every permission check returns false.
func NewAccess(configPath string) (*Access, error) {
	a := &Access{
		configPath: configPath,
		userRoles:  make(map[string]*Role),
	}

	if configPath == "" {
		log.Info().Msg("trust: no staff config path provided, moderation access disabled")
		return a, nil
	}

	if err := a.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load staff config: %w", err)
	}

	return a, nil
}

func (a *Access) loadConfig() error {
	data, err := os.ReadFile(a.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", a.configPath).Msg("trust: staff config not found, moderation access disabled")
			return nil
		}
		return fmt.Errorf("failed to read staff config: %w", err)
	}

	var config AccessConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse staff config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid staff config: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.config = &config
	a.rebuildLookup()

	log.Info().
		Int("roles", len(config.Roles)).
		Int("users", len(config.Users)).
		Str("path", a.configPath).
		Msg("trust: staff config loaded")

	return nil
}

// rebuildLookup rebuilds the quick lookup map from config.
// Caller must hold the write lock.
func (a *Access) rebuildLookup() {
	a.userRoles = make(map[string]*Role)
	if a.config == nil {
		return
	}
	for i := range a.config.Users {
		user := &a.config.Users[i]
		if role, ok := a.config.Roles[user.Role]; ok {
			a.userRoles[user.UserID] = role
		}
	}
}

// Reload re-reads the configuration from disk.
func (a *Access) Reload() error {
	if a.configPath == "" {
		return nil
	}
	return a.loadConfig()
}

// IsEnabled returns true if at least one staff user is configured.
func (a *Access) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config != nil && len(a.config.Users) > 0
}

// IsAdmin returns true if the user holds the admin role.
func (a *Access) IsAdmin(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	role, ok := a.userRoles[userID]
	return ok && role.Name == RoleAdmin
}

// IsStaff returns true if the user holds any moderation role.
func (a *Access) IsStaff(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.userRoles[userID]
	return ok
}

// HasPermission returns true if the user's role grants the permission.
func (a *Access) HasPermission(userID string, permission Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	role, ok := a.userRoles[userID]
	if !ok {
		return false
	}
	return role.HasPermission(permission)
}

// Require returns ErrUnauthorized unless the user holds the permission.
func (a *Access) Require(userID string, permission Permission) error {
	if !a.HasPermission(userID, permission) {
		return ErrUnauthorized
	}
	return nil
}

// PermissionsFor returns all permissions granted to the user.
func (a *Access) PermissionsFor(userID string) []Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()

	role, ok := a.userRoles[userID]
	if !ok {
		return nil
	}
	result := make([]Permission, len(role.Permissions))
	copy(result, role.Permissions)
	return result
}
