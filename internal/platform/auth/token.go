package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KindSession    = "session"
	KindRememberMe = "remember-me"

	tokenIssuer = "patients"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of both cookie tokens. Roles is only set on session
// tokens and Fingerprint only on remember-me tokens.
type Claims struct {
	jwt.RegisteredClaims
	Kind        string   `json:"kind"`
	Roles       []string `json:"roles,omitempty"`
	Fingerprint string   `json:"fp,omitempty"`
}

// TokenIssuer signs and verifies the HS256 tokens stored in the session and
// remember-me cookies.
type TokenIssuer struct {
	key         []byte
	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

func NewTokenIssuer(key []byte, sessionTTL, rememberTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:         key,
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

func (t *TokenIssuer) SessionTTL() time.Duration    { return t.sessionTTL }
func (t *TokenIssuer) RememberMeTTL() time.Duration { return t.rememberTTL }

// IssueSession returns a session token for p and its expiry.
func (t *TokenIssuer) IssueSession(p *Principal) (string, time.Time, error) {
	return t.sign(Claims{
		RegisteredClaims: t.registered(p.Username, t.sessionTTL),
		Kind:             KindSession,
		Roles:            p.Roles,
	})
}

// IssueRememberMe returns a long-lived token bound to the user's current
// password digest.
func (t *TokenIssuer) IssueRememberMe(username, digest string) (string, time.Time, error) {
	return t.sign(Claims{
		RegisteredClaims: t.registered(username, t.rememberTTL),
		Kind:             KindRememberMe,
		Fingerprint:      Fingerprint(digest),
	})
}

// Parse verifies raw and checks that it is a token of the given kind.
func (t *TokenIssuer) Parse(raw, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrInvalidToken, claims.Kind, kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (t *TokenIssuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := t.now()
	return jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (t *TokenIssuer) sign(claims Claims) (string, time.Time, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}
