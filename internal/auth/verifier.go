// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"encoding/base64"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates tokens minted by a TokenIssuer sharing the same
// secret. Apart from the optional revocation lookup it is a pure function of
// the token string, the secret and the clock.
type TokenVerifier struct {
	secret []byte
	opts   tokenOptions
	parser *jwt.Parser
}

// NewTokenVerifier creates a TokenVerifier.
func NewTokenVerifier(secret []byte, opts ...TokenOption) (*TokenVerifier, error) {
	key, err := checkSecret(secret)
	if err != nil {
		return nil, err
	}
	v := &TokenVerifier{secret: key, opts: buildTokenOptions(opts)}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return v.opts.now() }),
	)
	return v, nil
}

// Verify checks tokenString and returns the authenticated identity it carries.
//
// The HMAC signature is checked before any claim is trusted; a token whose
// signature does not match is reported as BadSignature regardless of its
// timestamps. The token is valid for issued-at <= now < expiry.
func (v *TokenVerifier) Verify(tokenString string) (*AuthenticatedContext, error) {
	if tokenString == "" {
		return nil, verificationFailed(MalformedToken, nil)
	}

	claims := &tokenClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		kind := classifyJWTError(err)
		if kind == MalformedToken && onlySignatureUndecodable(tokenString) {
			kind = BadSignature
		}
		return nil, verificationFailed(kind, err)
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, verificationFailed(MalformedToken, errors.New("missing required claim"))
	}
	issuedAt, expiresAt := claims.IssuedAt.Unix(), claims.ExpiresAt.Unix()
	if expiresAt <= issuedAt {
		return nil, verificationFailed(MalformedToken, errors.New("expiry not after issued-at"))
	}

	if r := v.opts.revocations; r != nil && r.IsRevoked(claims.ID) {
		return nil, verificationFailed(Revoked, nil)
	}

	caps := claims.Capabilities
	if caps == nil {
		caps = []string{}
	}

	return &AuthenticatedContext{
		Subject:      claims.Subject,
		Capabilities: slices.Clone(caps),
		TokenID:      claims.ID,
		IssuedAt:     time.Unix(issuedAt, 0).UTC(),
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// classifyJWTError maps jwt/v5 parse and validation errors onto kinds.
// Signature problems are checked first; jwt/v5 only validates claims after
// the signature has verified.
func classifyJWTError(err error) VerificationKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return MalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return BadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return Expired
	case errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return NotYetValid
	default:
		return MalformedToken
	}
}

// onlySignatureUndecodable reports whether the header and payload segments of
// tokenString decode under strict base64url but the signature does not. Such
// a signature has been altered and cannot match.
func onlySignatureUndecodable(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding.Strict()
	for _, seg := range parts[:2] {
		if _, err := enc.DecodeString(seg); err != nil {
			return false
		}
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}
