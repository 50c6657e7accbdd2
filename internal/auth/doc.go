// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package auth provides user identity, credential storage and token-based
// access control.
//
// # Credentials
//
// CredentialStore is the only component that sees password hashes and
// salts. It validates input, hashes with a PasswordHasher (argon2id by
// default) and persists records through a CredentialRepository:
//   - memory.CredentialRepository - process-local, for tests and dev
//   - postgres.CredentialRepository - pgx pool against the users table
//   - sqlite.CredentialRepository - single-file embedded database
//
// VerifyCredential performs one hash computation whether or not the
// identifier exists.
//
// # Tokens
//
// TokenIssuer signs HS256 tokens carrying subject, token ID, issue and
// expiry times and the granted capabilities. TokenVerifier checks the
// signature before any claim, then the [iat, exp) window, then revocation.
// Failures carry a VerificationKind.
//
// # Access control
//
// Middleware (HTTP) and UnaryServerInterceptor (gRPC) attach an
// AuthenticatedContext to the request context. Capabilities are glob
// patterns with '.' as the segment separator.
//
// # Services
//
// Service coordinates registration, login and logout. It is created with
// NewAuthService, which validates its dependencies.
package auth
