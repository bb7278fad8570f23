package auth

// Audit event codes written to the authorizations log. Single digits are
// successful lifecycle transitions; 1xxx codes are rejected attempts. The
// numbering is part of the operational contract with log consumers.
const (
	AuditLogin          = 1
	AuditRefresh        = 2
	AuditRevoke         = 3
	AuditPasswordChange = 5

	AuditLoginBadPassword  = 1001
	AuditLoginUserDisabled = 1002
	AuditLoginUnknownUser  = 1003
	AuditLoginUserDeleted  = 1004

	AuditRefreshNoScope         = 1053
	AuditRefreshNoAuthorization = 1058
	AuditRefreshSessionMismatch = 1059
	AuditRefreshDisabled        = 1060
	AuditRefreshUserDisabled    = 1061
	AuditRefreshUserDeleted     = 1062
	AuditRefreshStaleToken      = 1063

	AuditRevokeUnknownSession = 1101
	AuditRevokeAlreadyRevoked = 1102
)
