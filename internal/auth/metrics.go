// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for auth metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeDuplicate          = "duplicate"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeRateLimited        = "rate_limited"
	OutcomeError              = "error"
)

// Registrations counts Register calls by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backend_auth_registrations_total",
		Help: "Total number of user registrations",
	},
	[]string{"outcome"},
)

// Logins counts Login calls by outcome.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backend_auth_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"outcome"},
)

// TokenVerifications counts middleware token checks. The result label is
// "valid", "missing" or a VerificationKind.
var TokenVerifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backend_auth_token_verifications_total",
		Help: "Total number of access token verifications",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Registrations)
	reg.MustRegister(Logins)
	reg.MustRegister(TokenVerifications)
}

func recordVerification(result string) {
	TokenVerifications.WithLabelValues(result).Inc()
}
