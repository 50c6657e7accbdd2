// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Every error returned by this package wraps one of these
// (or a *VerificationError) so callers can branch with errors.Is/errors.As
// while oops codes carry the operational detail for logs.
var (
	// ErrInvalidInput is returned for malformed identifiers, passwords or salts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateIdentity is returned when registering an identifier that exists.
	ErrDuplicateIdentity = errors.New("identity already exists")

	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid identifier or password")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by repositories when Put hits an existing identifier.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTTL is returned when a token lifetime is non-positive or above the maximum.
	ErrInvalidTTL = errors.New("invalid token ttl")

	// ErrUnavailable is returned when the credential repository cannot be reached.
	// Callers may retry.
	ErrUnavailable = errors.New("credential store unavailable")

	// ErrRateLimited is returned when an identifier has exhausted its login attempts.
	ErrRateLimited = errors.New("too many login attempts")
)

// Error codes attached with oops.Code.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeDuplicateIdentity  = "AUTH_DUPLICATE_IDENTITY"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeInvalidTTL         = "AUTH_INVALID_TTL"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"
	CodeRateLimited        = "AUTH_RATE_LIMITED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeTokenSignFailed    = "AUTH_TOKEN_SIGN_FAILED"
)

// VerificationKind classifies why a token was rejected.
type VerificationKind string

// Verification failure kinds.
const (
	MalformedToken VerificationKind = "malformed_token"
	BadSignature   VerificationKind = "bad_signature"
	Expired        VerificationKind = "expired"
	NotYetValid    VerificationKind = "not_yet_valid"
	Revoked        VerificationKind = "revoked"
)

// VerificationError is returned by TokenVerifier.Verify.
type VerificationError struct {
	Kind VerificationKind
}

func (e *VerificationError) Error() string {
	return "token verification failed: " + string(e.Kind)
}

// VerificationKindOf returns the kind of a verification failure, or "" if err
// is not one.
func VerificationKindOf(err error) VerificationKind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

func invalidInput(format string, args ...any) error {
	return oops.Code(CodeInvalidInput).Wrapf(ErrInvalidInput, format, args...)
}

func verificationFailed(kind VerificationKind, cause error) error {
	b := oops.Code(CodeTokenInvalid).With("kind", string(kind))
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(&VerificationError{Kind: kind})
}
