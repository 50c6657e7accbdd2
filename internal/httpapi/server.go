// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

// Package httpapi exposes registration, login, logout and identity lookup
// over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/observability"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// ReadCapability is required to read one's own identity.
const ReadCapability = "read"

// AuthService is the subset of *auth.Service used by the API.
type AuthService interface {
	Register(ctx context.Context, identifier, plaintext string) (*auth.UserIdentity, error)
	Login(ctx context.Context, identifier, plaintext string) (*auth.Token, error)
	Logout(ctx context.Context, tokenString string) error
	Identity(ctx context.Context, identifier string) (*auth.UserIdentity, error)
}

// Options configures NewHandler.
type Options struct {
	Service  AuthService
	Verifier auth.Verifier

	// CookieName, if set, makes login also set the token as an HttpOnly
	// cookie and lets authenticated routes read it.
	CookieName string

	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

type api struct {
	svc        AuthService
	extractor  auth.TokenExtractor
	cookieName string
	logger     *slog.Logger
}

// NewHandler builds the API handler with request IDs and access logging.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	extractor := auth.BearerExtractor()
	if opts.CookieName != "" {
		extractor = auth.ChainExtractor(extractor, auth.CookieExtractor(opts.CookieName))
	}

	a := &api{
		svc:        opts.Service,
		extractor:  extractor,
		cookieName: opts.CookieName,
		logger:     logger,
	}
	mw := auth.NewMiddleware(opts.Verifier, extractor, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users", a.handleRegister)
	mux.HandleFunc("POST /api/v1/sessions", a.handleLogin)
	mux.Handle("DELETE /api/v1/sessions", mw.Authenticate(http.HandlerFunc(a.handleLogout)))
	mux.Handle("GET /api/v1/users/me", mw.Require(ReadCapability)(http.HandlerFunc(a.handleMe)))

	return RequestID(AccessLog(logger, opts.Metrics)(mux))
}

type credentialsRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type identityResponse struct {
	Identifier          string     `json:"identifier"`
	Capabilities        []string   `json:"capabilities"`
	CreatedAt           time.Time  `json:"created_at"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

func newIdentityResponse(u *auth.UserIdentity) identityResponse {
	caps := u.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return identityResponse{
		Identifier:          u.Identifier,
		Capabilities:        caps,
		CreatedAt:           u.CreatedAt,
		LastAuthenticatedAt: u.LastAuthenticatedAt,
	}
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := a.svc.Register(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIdentityResponse(identity))
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := a.svc.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	if a.cookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName,
			Value:    token.Raw,
			Path:     "/",
			Expires:  token.ExpiresAtTime(),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token.Raw,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAtTime(),
		ExpiresIn: token.ExpiresAt - token.IssuedAt,
	})
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, _ := a.extractor.Extract(r)
	if err := a.svc.Logout(r.Context(), raw); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	if a.cookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	identity, err := a.svc.Identity(r.Context(), ac.Subject)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newIdentityResponse(identity))
}

// decodeJSON reads exactly one JSON object with no unknown fields. On
// failure it writes a 400 (413 for oversize bodies) and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
		}
		return false
	}
	if dec.More() {
		writeJSONError(w, http.StatusBadRequest, "request body must contain a single JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
