// Package token implements the bearer-token codec: signed JWTs (HS256)
// whose subject claim is sealed with AES-GCM before embedding, so decoded
// claims do not casually reveal who the token belongs to.
package token

import (
	"errors"
	"slices"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the private claim layout of AuthGate tokens. After
// VerifyAndDecode the Subject field holds the unsealed plaintext subject.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the claim set carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// JTI returns the token id claim as a UUID.
func (c *Claims) JTI() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// Token is the ephemeral result of Issue. It is never persisted; the
// durable anchor is the Authorization row.
type Token struct {
	Value     string
	JTI       uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	TTL       time.Duration
}

// Codec issues and validates tokens. Keys are injected at construction so
// environments and tests can rotate them freely.
type Codec struct {
	signingKey []byte
	sealKey    []byte
}

func NewCodec(signingKey, sealKey []byte) *Codec {
	return &Codec{signingKey: signingKey, sealKey: sealKey}
}

// Issue mints a signed token for subject with the given scopes and lifetime.
// The jti and the seal nonce are fresh per call.
func (c *Codec) Issue(subject string, scopes []string, ttl time.Duration) (*Token, error) {
	return c.IssueWithID(subject, scopes, ttl, uuid.New())
}

// IssueWithID mints a token with a caller-chosen jti. The lifecycle engine
// uses this for refresh tokens, whose jti is recorded on the Authorization
// row before the token itself is built.
func (c *Codec) IssueWithID(subject string, scopes []string, ttl time.Duration, jti uuid.UUID) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	sealed, err := cryptox.SealString(subject, c.sealKey)
	if err != nil {
		return nil, err
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sealed,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti.String(),
		},
		Scopes: scopes,
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return nil, err
	}

	return &Token{
		Value:     value,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		TTL:       ttl,
	}, nil
}

// VerifyAndDecode validates the signature and expiry of a bearer string and
// unseals the subject. Errors are distinguished for the audit trail:
// common.ErrTokenExpired on lapsed expiry, common.ErrTokenMalformed when the
// subject does not unseal, common.ErrInvalidToken for everything else.
func (c *Codec) VerifyAndDecode(bearer string) (*Claims, error) {
	claims := &Claims{}

	tok, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (any, error) {
		return c.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !tok.Valid {
		return nil, common.ErrInvalidToken
	}

	subject, err := cryptox.UnsealString(claims.Subject, c.sealKey)
	if err != nil {
		return nil, common.ErrTokenMalformed
	}
	claims.Subject = subject

	return claims, nil
}
