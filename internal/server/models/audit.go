package models

import "time"

// ClientInfo is the per-request client metadata recorded with every audit
// entry. It is opaque to the lifecycle engine.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// AuditLogEntry is an immutable lifecycle event, append-only. The server
// never reads these back; they exist for security forensics.
type AuditLogEntry struct {
	Code       int
	Message    string
	UserID     int64
	AuthID     int64
	ClientType int16
	Client     ClientInfo
	LoggedAt   time.Time
}
