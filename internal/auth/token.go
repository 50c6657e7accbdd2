// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration.
const (
	// MinSigningSecretLen is the shortest accepted HMAC secret.
	MinSigningSecretLen = 32

	// DefaultMaxTTL bounds the lifetime of any issued token.
	DefaultMaxTTL = 24 * time.Hour

	// MaxTimestamp is the ceiling for token timestamps (9999-12-31T23:59:59Z).
	// Expiry computation saturates here instead of wrapping.
	MaxTimestamp int64 = 253402300799
)

// Token is an issued access token. Timestamps are integer seconds since the
// Unix epoch. Raw is the signed compact serialization handed to the client.
type Token struct {
	ID           string
	Subject      string
	IssuedAt     int64
	ExpiresAt    int64
	Capabilities []string
	Raw          string
}

// IssuedAtTime returns IssuedAt as a time.Time.
func (t *Token) IssuedAtTime() time.Time {
	return time.Unix(t.IssuedAt, 0).UTC()
}

// ExpiresAtTime returns ExpiresAt as a time.Time.
func (t *Token) ExpiresAtTime() time.Time {
	return time.Unix(t.ExpiresAt, 0).UTC()
}

// TTL returns the lifetime the token was issued with.
func (t *Token) TTL() time.Duration {
	return time.Duration(t.ExpiresAt-t.IssuedAt) * time.Second
}

// tokenClaims is the signed payload. The signature covers the JSON encoding
// of this struct, whose field order is fixed.
type tokenClaims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"caps"`
}

// TokenOption configures a TokenIssuer or TokenVerifier.
type TokenOption func(*tokenOptions)

type tokenOptions struct {
	now         func() time.Time
	newID       func() string
	revocations RevocationChecker
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRevocations makes a TokenVerifier reject revoked token IDs.
func WithRevocations(r RevocationChecker) TokenOption {
	return func(o *tokenOptions) {
		o.revocations = r
	}
}

func buildTokenOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{
		now:   time.Now,
		newID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkSecret(secret []byte) ([]byte, error) {
	if len(secret) < MinSigningSecretLen {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("min", MinSigningSecretLen).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretLen)
	}
	return slices.Clone(secret), nil
}

// TokenIssuer mints HS256-signed tokens. The secret is copied at
// construction and never mutated; TokenIssuer is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	maxTTL time.Duration
	opts   tokenOptions
}

// NewTokenIssuer creates a TokenIssuer. A non-positive maxTTL means DefaultMaxTTL.
func NewTokenIssuer(secret []byte, maxTTL time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	key, err := checkSecret(secret)
	if err != nil {
		return nil, err
	}
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	return &TokenIssuer{secret: key, maxTTL: maxTTL, opts: buildTokenOptions(opts)}, nil
}

// MaxTTL returns the longest lifetime Issue accepts.
func (i *TokenIssuer) MaxTTL() time.Duration {
	return i.maxTTL
}

// Issue mints a token for identity carrying capabilities, valid for ttl.
// ttl must be at least one second and at most MaxTTL.
func (i *TokenIssuer) Issue(identity *UserIdentity, capabilities []string, ttl time.Duration) (*Token, error) {
	if identity == nil || identity.Identifier == "" {
		return nil, invalidInput("token subject cannot be empty")
	}
	if ttl < time.Second || ttl > i.maxTTL {
		return nil, oops.Code(CodeInvalidTTL).
			With("ttl", ttl.String()).
			With("max_ttl", i.maxTTL.String()).
			Wrap(ErrInvalidTTL)
	}
	caps, err := NormalizeCapabilities(capabilities)
	if err != nil {
		return nil, err
	}

	issuedAt := i.opts.now().Unix()
	expiresAt := saturatingAdd(issuedAt, int64(ttl/time.Second))
	if expiresAt <= issuedAt {
		return nil, oops.Code(CodeInvalidTTL).
			With("issued_at", issuedAt).
			Wrap(ErrInvalidTTL)
	}

	id := i.opts.newID()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Identifier,
			ExpiresAt: jwt.NewNumericDate(time.Unix(expiresAt, 0)),
			IssuedAt:  jwt.NewNumericDate(time.Unix(issuedAt, 0)),
			ID:        id,
		},
		Capabilities: caps,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, oops.Code(CodeTokenSignFailed).
			With("subject", identity.Identifier).
			Wrap(err)
	}

	return &Token{
		ID:           id,
		Subject:      identity.Identifier,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
		Capabilities: caps,
		Raw:          raw,
	}, nil
}

// saturatingAdd returns a+b clamped to [.., MaxTimestamp].
func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > MaxTimestamp-b {
		return MaxTimestamp
	}
	return a + b
}
