package shared

import "strings"

// Role is the coarse permission level of a staff account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

// legacyCashier is how older installs stored cashier accounts.
const legacyCashier = "kasir"

// ParseRole validates a role name. The legacy value kasir reads as cashier.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleCashier:
		return r, true
	case legacyCashier:
		return RoleCashier, true
	}
	return "", false
}

// RoleFromDB maps a stored role to its canonical form. Unknown values are
// kept as-is so role gates reject them.
func RoleFromDB(raw string) Role {
	if r, ok := ParseRole(raw); ok {
		return r
	}
	return Role(raw)
}
