// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Rejection messages. They are deliberately coarse: the verification kind is
// logged but never sent to the client.
const (
	msgAuthRequired       = "authentication required"
	msgInvalidToken       = "invalid or expired token"
	msgInsufficientAccess = "insufficient capabilities"
)

// Verifier verifies a raw token. *TokenVerifier implements it.
type Verifier interface {
	Verify(tokenString string) (*AuthenticatedContext, error)
}

// TokenExtractor pulls raw token material from a request.
type TokenExtractor interface {
	Extract(r *http.Request) (string, bool)
}

// TokenExtractorFunc adapts a function to TokenExtractor.
type TokenExtractorFunc func(r *http.Request) (string, bool)

// Extract calls f(r).
func (f TokenExtractorFunc) Extract(r *http.Request) (string, bool) {
	return f(r)
}

// BearerExtractor reads "Authorization: Bearer <token>". The scheme is
// matched case-insensitively.
func BearerExtractor() TokenExtractor {
	return TokenExtractorFunc(func(r *http.Request) (string, bool) {
		return parseBearer(r.Header.Get("Authorization"))
	})
}

// CookieExtractor reads the token from the named cookie.
func CookieExtractor(name string) TokenExtractor {
	return TokenExtractorFunc(func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	})
}

// ChainExtractor returns the first token found by extractors, in order.
func ChainExtractor(extractors ...TokenExtractor) TokenExtractor {
	return TokenExtractorFunc(func(r *http.Request) (string, bool) {
		for _, e := range extractors {
			if tok, ok := e.Extract(r); ok {
				return tok, true
			}
		}
		return "", false
	})
}

func parseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Middleware is the access-control layer for HTTP handlers.
//
// Per request: Unauthenticated -> Authenticated (context attached, next
// invoked) or Rejected (401/403 written, next not invoked).
type Middleware struct {
	verifier  Verifier
	extractor TokenExtractor
	logger    *slog.Logger
}

// NewMiddleware creates a Middleware. A nil extractor means BearerExtractor
// and a nil logger means slog.Default().
func NewMiddleware(verifier Verifier, extractor TokenExtractor, logger *slog.Logger) *Middleware {
	if extractor == nil {
		extractor = BearerExtractor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{verifier: verifier, extractor: extractor, logger: logger}
}

// Authenticate verifies the request token and attaches the
// AuthenticatedContext before calling next.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), ac)))
	})
}

// Require rejects requests whose capabilities do not cover required. It
// authenticates the request itself when no AuthenticatedContext is attached
// yet.
func (m *Middleware) Require(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := FromContext(r.Context())
			if ac == nil {
				var ok bool
				if ac, ok = m.authenticate(w, r); !ok {
					return
				}
				r = r.WithContext(WithAuth(r.Context(), ac))
			}

			if missing := NewCapabilitySet(ac.Capabilities).Missing(required); len(missing) > 0 {
				m.logger.WarnContext(r.Context(), "access denied",
					"subject", ac.Subject,
					"path", r.URL.Path,
					"missing", missing)
				writeJSONError(w, http.StatusForbidden, msgInsufficientAccess)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*AuthenticatedContext, bool) {
	raw, found := m.extractor.Extract(r)
	if !found {
		recordVerification("missing")
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSONError(w, http.StatusUnauthorized, msgAuthRequired)
		return nil, false
	}

	ac, err := m.verifier.Verify(raw)
	if err != nil {
		kind := VerificationKindOf(err)
		if kind == "" {
			kind = MalformedToken
		}
		recordVerification(string(kind))
		m.logger.InfoContext(r.Context(), "token rejected", "kind", string(kind), "path", r.URL.Path)
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSONError(w, http.StatusUnauthorized, msgInvalidToken)
		return nil, false
	}

	recordVerification("valid")
	return ac, true
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
