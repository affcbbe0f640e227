// Package session issues and verifies server-signed credentials that bind a
// caller to a fingerprint.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sitekeep/internal/models"
)

const issuer = "sitekeep"

// Issuer signs HS256 session tokens whose subject is the fingerprint.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// claims are the registered claims plus the admin grant.
type claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"adm,omitempty"`
}

// Issue returns a signed token for fingerprint and its expiry. admin marks
// the session as carrying an operator-verified admin grant; callers must
// only set it after checking the operator credential.
func (i *Issuer) Issue(fingerprint string, admin bool) (string, time.Time, error) {
	if !models.ValidFingerprint(fingerprint) {
		return "", time.Time{}, fmt.Errorf("issue session: invalid fingerprint: %w", models.ErrValidation)
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   fingerprint,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Admin: admin,
	}

	// Sign the token with the session secret
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Parse validates token and returns the caller it was issued for.
// Every failure wraps models.ErrUnauthenticated.
func (i *Issuer) Parse(token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, fmt.Errorf("parse session: empty token: %w", models.ErrUnauthenticated)
	}

	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Principal{}, fmt.Errorf("parse session: expired: %w", models.ErrUnauthenticated)
		}
		return models.Principal{}, fmt.Errorf("parse session: %w: %v", models.ErrUnauthenticated, err)
	}
	if !parsed.Valid || !models.ValidFingerprint(c.Subject) {
		return models.Principal{}, fmt.Errorf("parse session: invalid claims: %w", models.ErrUnauthenticated)
	}
	return models.Principal{Fingerprint: c.Subject, AdminGrant: c.Admin}, nil
}
