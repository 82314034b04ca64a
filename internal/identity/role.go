// Package identity resolves who the authenticated user is.
//
// The backend's sign-in response is not a reliable source of truth: the role
// field may be missing, spelled with a ROLE_ prefix, buried in the JWT, or
// simply wrong. Resolution therefore runs an ordered chain of strategies and
// always produces a usable UserRecord, defaulting to STUDENT when every
// strategy is inconclusive.
package identity

import "strings"

// Role is the canonical user role. Exactly four values exist.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleParent   Role = "PARENT"
	RoleDriver   Role = "DRIVER"
	RoleOperator Role = "OPERATOR"
)

// UserRecord is the canonical identity handed to the rest of the client.
type UserRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NormalizeRole maps a raw backend role value onto the four-value enum.
// A leading ROLE_ prefix (Spring Security convention) is stripped and the
// result uppercased; anything empty or unrecognized becomes STUDENT.
func NormalizeRole(raw string) Role {
	r := strings.ToUpper(strings.TrimSpace(raw))
	r = strings.TrimPrefix(r, "ROLE_")
	switch Role(r) {
	case RoleStudent, RoleParent, RoleDriver, RoleOperator:
		return Role(r)
	}
	return RoleStudent
}
