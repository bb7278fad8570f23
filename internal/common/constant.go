package common

// Scope names carried in token claims. The names are part of the issued
// token format and must stay stable across releases.
const (
	ScopeMember  = "ROLE_MEMBER"
	ScopeAdmin   = "ROLE_ADMIN"
	ScopeRefresh = "ROLE_REFRESH_TOKEN"
)

// UserTypeAdmin marks administrator accounts in the user directory.
const UserTypeAdmin = 10
