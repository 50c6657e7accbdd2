// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"
)

// Service defaults.
const (
	DefaultTokenTTL = time.Hour
)

// DefaultCapabilities are granted to self-registered users.
var DefaultCapabilities = []string{"read"}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// DefaultCapabilities are granted at registration. Nil means
	// DefaultCapabilities; an empty slice grants nothing.
	DefaultCapabilities []string

	// DefaultTTL is the lifetime of tokens issued by Login.
	DefaultTTL time.Duration
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithLoginLimiter throttles Login per identifier.
func WithLoginLimiter(l *LoginLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithRevocation enables Logout: tokens are checked with verifier and their
// IDs added to list.
func WithRevocation(verifier Verifier, list RevocationList) ServiceOption {
	return func(s *Service) {
		s.verifier = verifier
		s.revocations = list
	}
}

// WithServiceLogger sets the logger. The default is slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service implements registration, login and logout.
type Service struct {
	credentials *CredentialStore
	issuer      *TokenIssuer
	limiter     *LoginLimiter
	verifier    Verifier
	revocations RevocationList
	logger      *slog.Logger

	defaultCaps []string
	defaultTTL  time.Duration
}

// NewAuthService creates a Service.
func NewAuthService(credentials *CredentialStore, issuer *TokenIssuer, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if credentials == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("credential store is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token issuer is required")
	}

	caps := cfg.DefaultCapabilities
	if caps == nil {
		caps = DefaultCapabilities
	}
	caps, err := NormalizeCapabilities(caps)
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("field", "default_capabilities").Wrap(err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl > issuer.MaxTTL() {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("default_ttl", ttl.String()).
			With("max_ttl", issuer.MaxTTL().String()).
			Errorf("default token ttl exceeds maximum")
	}

	s := &Service{
		credentials: credentials,
		issuer:      issuer,
		logger:      slog.Default(),
		defaultCaps: caps,
		defaultTTL:  ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth_service")
	return s, nil
}

// Register creates a user granted the default capabilities.
func (s *Service) Register(ctx context.Context, identifier, plaintext string) (*UserIdentity, error) {
	identity, err := s.credentials.CreateUser(ctx, identifier, plaintext, slices.Clone(s.defaultCaps))
	if err != nil {
		Registrations.WithLabelValues(registrationOutcome(err)).Inc()
		return nil, err
	}
	Registrations.WithLabelValues(OutcomeSuccess).Inc()
	return identity, nil
}

// Login verifies credentials and issues a token carrying the user's stored
// capabilities. An unknown identifier and a wrong password produce the same
// error.
func (s *Service) Login(ctx context.Context, identifier, plaintext string) (*Token, error) {
	if s.limiter != nil {
		if ok, wait := s.limiter.Allow(identifier); !ok {
			Logins.WithLabelValues(OutcomeRateLimited).Inc()
			s.logger.WarnContext(ctx, "login rate limited", "identifier", identifier, "retry_after", wait)
			return nil, oops.Code(CodeRateLimited).
				With("retry_after", wait.String()).
				Wrap(&RateLimitedError{RetryAfter: wait})
		}
	}

	identity, ok, err := s.credentials.VerifyCredential(ctx, identifier, plaintext)
	if err != nil {
		Logins.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}
	if !ok {
		Logins.WithLabelValues(OutcomeInvalidCredentials).Inc()
		s.logger.InfoContext(ctx, "login failed", "identifier", identifier)
		return nil, invalidCredentials()
	}

	token, err := s.issuer.Issue(identity, identity.Capabilities, s.defaultTTL)
	if err != nil {
		Logins.WithLabelValues(OutcomeError).Inc()
		return nil, err
	}

	if err := s.credentials.RecordAuthentication(ctx, identity.Identifier, token.IssuedAtTime()); err != nil {
		s.logger.WarnContext(ctx, "failed to record authentication time", "identifier", identity.Identifier, "error", err)
	}

	Logins.WithLabelValues(OutcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "login succeeded", "identifier", identity.Identifier, "token_id", token.ID)
	return token, nil
}

// Logout revokes tokenString until its expiry.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	if s.verifier == nil || s.revocations == nil {
		return oops.Code("AUTH_REVOCATION_DISABLED").Errorf("token revocation is not configured")
	}
	ac, err := s.verifier.Verify(tokenString)
	if err != nil {
		return err
	}
	s.revocations.Revoke(ac.TokenID, ac.ExpiresAt)
	s.logger.InfoContext(ctx, "token revoked", "subject", ac.Subject, "token_id", ac.TokenID)
	return nil
}

// Identity returns the stored identity for identifier.
func (s *Service) Identity(ctx context.Context, identifier string) (*UserIdentity, error) {
	return s.credentials.FindByIdentifier(ctx, identifier)
}

// Ping reports whether the credential store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.credentials.Ping(ctx)
}

// RateLimitedError is returned by Login when the identifier is throttled.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return ErrRateLimited.Error()
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateIdentity):
		return OutcomeDuplicate
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}
