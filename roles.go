package auth

import "strings"

// Well known role names. Roles are free form, these are the ones the
// CLI and the client management endpoints refer to.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// ContainsRole reports whether roles holds role, ignoring case.
func ContainsRole(roles []string, role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// FirstRole returns the first role in enumeration order.
func FirstRole(roles []string) (string, bool) {
	if len(roles) == 0 {
		return "", false
	}
	return roles[0], true
}
