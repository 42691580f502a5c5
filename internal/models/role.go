package models

import "sync"

// RoleName identifies a capability role. The set is closed: comparisons happen
// against the typed constants below, never against ad-hoc strings.
type RoleName string

const (
	RoleGuest   RoleName = "guest"
	RoleStudent RoleName = "student"
	RoleTeacher RoleName = "teacher"
	RoleAdmin   RoleName = "admin"
)

var (
	roleMu    sync.RWMutex
	roleNames = map[RoleName]struct{}{
		RoleGuest:   {},
		RoleStudent: {},
		RoleTeacher: {},
		RoleAdmin:   {},
	}
)

// RegisterRole adds a role name to the known set. Intended for deployments
// that extend the built-in enumeration at start-up.
func RegisterRole(name RoleName) {
	if name == "" {
		return
	}
	roleMu.Lock()
	defer roleMu.Unlock()
	roleNames[name] = struct{}{}
}

// KnownRole reports whether the name belongs to the registered enumeration.
func KnownRole(name RoleName) bool {
	roleMu.RLock()
	defer roleMu.RUnlock()
	_, ok := roleNames[name]
	return ok
}

// KnownRoles returns the registered role names.
func KnownRoles() []RoleName {
	roleMu.RLock()
	defer roleMu.RUnlock()
	names := make([]RoleName, 0, len(roleNames))
	for name := range roleNames {
		names = append(names, name)
	}
	return names
}

// Role is the seeded lookup row behind a RoleName. Rows are rarely created and
// exist so role assignments keep their relational approval-audit fields.
type Role struct {
	BaseModel

	Name        RoleName `gorm:"uniqueIndex;not null;type:varchar(32)" json:"name"`
	Description string   `json:"description"`
	IsSystem    bool     `gorm:"default:false" json:"is_system"`
}
