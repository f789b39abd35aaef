package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleSupport    Role = "SUPPORT"
	RoleUser       Role = "USER"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleSupport:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := roleRank[r]
	return r, ok
}

// AtLeast reports whether r is as privileged as min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

type User struct {
	ID        string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Actor is the authenticated caller as supplied by the auth boundary.
type Actor struct {
	ID   string
	Role Role
}

// AuditEntry is one administrative action, shipped fire-and-forget.
type AuditEntry struct {
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
