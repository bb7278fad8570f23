// Package models contains the persisted row types of the server. Rows are
// only constructed fully populated; a required column scanning as NULL is a
// data-integrity problem the repositories report as a storage failure.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Authorization is one logical session. The numeric ID is internal and
// assigned by the store; UUID is the external-facing session handle, mapped
// 1:1 and never reused.
type Authorization struct {
	ID              int64
	UserID          int64
	UUID            uuid.UUID
	ClientType      int16
	RefreshTokenJTI uuid.UUID
	AccessTokenJTI  uuid.UUID
	AccessTokenExp  time.Time
	AccessTokenIat  time.Time
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time // zero until the first update
	LastRefreshAt   time.Time // zero until the first refresh
}

// Rotation carries the fields replaced atomically on a successful refresh.
type Rotation struct {
	AccessTokenJTI  uuid.UUID
	AccessTokenExp  time.Time
	AccessTokenIat  time.Time
	RefreshTokenJTI uuid.UUID
	At              time.Time
}

// AuthBlacklist is the durable record written alongside the denial-cache
// entry when an access token is retired before its natural expiry.
type AuthBlacklist struct {
	AccessTokenJTI uuid.UUID
	AccessTokenExp time.Time
	UserID         int64
}
