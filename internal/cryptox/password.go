package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters, fixed for all stored hashes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashPassword derives an argon2id hash of password under the per-user salt.
func HashPassword(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// CheckPassword reports whether candidate hashes to the stored value.
// The comparison is constant-time.
func CheckPassword(stored []byte, candidate []byte, salt []byte) bool {
	hash := HashPassword(candidate, salt)
	return subtle.ConstantTimeCompare(stored, hash) == 1
}
