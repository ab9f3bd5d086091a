package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const subjectKey ctxKey = 1

// scopeAdmin marks tokens minted for the moderation API
const scopeAdmin = "admin"

// WithSubject records the authenticated moderator on the context
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// Subject extracts the moderator from the context, defaults to "anon"
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	if v == "" {
		return "anon"
	}
	return v
}

// JWT wraps a signing secret for issuing/verifying admin tokens
type JWT struct{ secret []byte }

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks an admin token and returns its sub claim
func (j *JWT) Verify(tok string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if scope, _ := claims["scope"].(string); scope != scopeAdmin {
		return "", errors.New("not an admin token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("no sub")
	}
	return sub, nil
}

// Sign creates an admin token for sub with the given TTL
func (j *JWT) Sign(sub string, ttl time.Duration) (string, error) {
	if sub == "" {
		return "", errors.New("empty sub")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   sub,
		"scope": scopeAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}

// Authorizer accepts either the shared admin key or an admin JWT signed with it
type Authorizer struct {
	key []byte
	jwt *JWT
}

// NewAuthorizer builds an Authorizer around the shared key
func NewAuthorizer(key string) *Authorizer {
	return &Authorizer{key: []byte(key), jwt: New(key)}
}

// JWT returns the signer used for admin tokens
func (a *Authorizer) JWT() *JWT { return a.jwt }

// CheckKey compares credential to the shared key in constant time
func (a *Authorizer) CheckKey(credential string) bool {
	if len(a.key) == 0 || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), a.key) == 1
}

// Authorize resolves a key or bearer token to a subject
func (a *Authorizer) Authorize(key, bearer string) (string, bool) {
	if a.CheckKey(key) {
		return "key", true
	}
	if bearer == "" || len(a.key) == 0 {
		return "", false
	}
	sub, err := a.jwt.Verify(bearer)
	if err != nil {
		return "", false
	}
	return sub, true
}
