package session

import "net/http"

// Roles in ascending rank order. Rank comparisons gate every API surface:
// a required role admits that role and anything above it.
const (
	RoleMember         = "member"
	RoleLocalPresident = "local_president"
	RoleNationalOffice = "national_officer"
	RoleAdministrator  = "administrator"
)

var roleRank = map[string]int{
	RoleMember:         0,
	RoleLocalPresident: 1,
	RoleNationalOffice: 2,
	RoleAdministrator:  3,
}

// AtLeast reports whether role ranks at or above required. Unknown roles
// rank below every known role.
func AtLeast(role, required string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	req, ok := roleRank[required]
	if !ok {
		return false
	}
	return r >= req
}

// User is the resolved session identity handed to controllers. AccessToken
// is the credential threaded through to directory execution.
type User struct {
	Email       string
	Role        string
	DisplayName string
	AccessToken string
}

// Resolver turns an incoming request into a session user, or nil when the
// request carries no valid session. OAuth token exchange and role lookup
// live behind this seam and are not part of this module.
type Resolver interface {
	Resolve(r *http.Request) (*User, error)
}
