// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"context"
	"time"
)

// AuthenticatedContext is the request-scoped identity extracted from a
// verified token. It is never persisted.
type AuthenticatedContext struct {
	Subject      string
	Capabilities []string
	TokenID      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// HasAll returns true if the granted capabilities cover every required one.
func (a *AuthenticatedContext) HasAll(required ...string) bool {
	if a == nil {
		return len(required) == 0
	}
	return NewCapabilitySet(a.Capabilities).AllowsAll(required)
}

type authContextKey struct{}

// WithAuth returns a copy of ctx carrying auth.
func WithAuth(ctx context.Context, auth *AuthenticatedContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext returns the AuthenticatedContext attached to ctx, or nil.
func FromContext(ctx context.Context) *AuthenticatedContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthenticatedContext)
	return auth
}
