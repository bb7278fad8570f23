package models

import (
	"time"

	"github.com/authgate/authgate/internal/common"
)

// User is a row of the user directory. Password is the argon2id hash of the
// password under Salt; the plaintext never reaches the server's storage.
type User struct {
	ID          int64
	Username    string
	Password    []byte
	Salt        []byte
	UserType    int16
	Enabled     bool
	Deleted     bool
	LastLoginAt time.Time
	CreatedAt   time.Time
}

// IsAdmin reports whether the account carries the administrator role.
func (u *User) IsAdmin() bool {
	return u.UserType == common.UserTypeAdmin
}
