// Package actor describes who performs an operation, as forwarded by the
// authentication gateway.
package actor

import "fmt"

// Role is the kind of account behind a request.
type Role string

const (
	RoleCandidate  Role = "candidate"
	RoleEnterprise Role = "enterprise"
	RoleAdmin      Role = "admin"
	// RoleSystem is used for transitions triggered by the service itself.
	RoleSystem Role = "system"
)

// ParseRole converts a raw header value to a Role. RoleSystem cannot be
// claimed from the outside.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleCandidate, RoleEnterprise, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown actor role %q", s)
}

// Actor identifies the caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the actor recorded for service-initiated changes.
var System = Actor{ID: "system", Role: RoleSystem}

// UserModel returns the account collection name used for notification
// addressing (Candidat, Enterprise, Admin).
func (a Actor) UserModel() string {
	switch a.Role {
	case RoleCandidate:
		return "Candidat"
	case RoleEnterprise:
		return "Enterprise"
	default:
		return "Admin"
	}
}

// CanManage reports whether the actor may act for the enterprise that owns a
// job. Admins manage every enterprise.
func (a Actor) CanManage(enterpriseID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleEnterprise:
		return a.ID != "" && a.ID == enterpriseID
	}
	return false
}
