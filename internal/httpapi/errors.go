// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/pkg/errutil"
)

// Client-facing messages for mapped errors.
const (
	msgDuplicate          = "identifier already registered"
	msgInvalidCredentials = "invalid identifier or password"
	msgInvalidToken       = "invalid or expired token"
	msgRateLimited        = "too many login attempts"
	msgUnavailable        = "service temporarily unavailable"
	msgNotFound           = "not found"
	msgInternal           = "internal server error"
)

// writeError maps err to a status and a client-safe message. Only
// ErrInvalidInput messages are passed through; they describe the request,
// not stored state.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var rateLimited *auth.RateLimitedError

	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateIdentity):
		writeJSONError(w, http.StatusConflict, msgDuplicate)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, msgInvalidCredentials)
	case auth.VerificationKindOf(err) != "":
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSONError(w, http.StatusUnauthorized, msgInvalidToken)
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", retryAfterSeconds(rateLimited))
		writeJSONError(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, auth.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, auth.ErrUnavailable):
		errutil.LogErrorContext(r.Context(), logger, "credential store unavailable", err)
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, msgUnavailable)
	default:
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
		writeJSONError(w, http.StatusInternalServerError, msgInternal)
	}
}

func retryAfterSeconds(e *auth.RateLimitedError) string {
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
