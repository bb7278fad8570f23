// Package cryptox holds the cryptographic helpers used by the token codec
// and the user directory: AES-GCM sealing for token subjects and argon2id
// password hashing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"

	"github.com/authgate/authgate/internal/common"
)

var ErrUnsealFailed = errors.New("unseal failed")

// SealString encrypts plaintext with AES-GCM under key and returns
// base64(nonce || ciphertext). A fresh random nonce is generated per call;
// the key must be 16, 24, or 32 bytes.
func SealString(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	sealed := aesgcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// UnsealString reverses SealString. Any decode or authentication failure
// yields ErrUnsealFailed; the caller must not learn which step failed.
func UnsealString(sealed string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrUnsealFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < aesgcm.NonceSize() {
		return "", ErrUnsealFailed
	}

	plaintext, err := aesgcm.Open(nil, raw[:aesgcm.NonceSize()], raw[aesgcm.NonceSize():], nil)
	if err != nil {
		return "", ErrUnsealFailed
	}

	return string(plaintext), nil
}
