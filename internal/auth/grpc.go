// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCPolicy configures UnaryServerInterceptor.
type GRPCPolicy struct {
	// Public lists full method names that skip authentication.
	Public []string

	// Required maps full method names to the capabilities they need.
	Required map[string][]string
}

// UnaryServerInterceptor authenticates unary calls from the "authorization"
// metadata key, which carries "Bearer <token>". Failures map to
// codes.Unauthenticated, unmet capabilities to codes.PermissionDenied.
func UnaryServerInterceptor(verifier Verifier, policy GRPCPolicy, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	public := make(map[string]struct{}, len(policy.Public))
	for _, m := range policy.Public {
		public[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		raw, found := tokenFromMetadata(ctx)
		if !found {
			recordVerification("missing")
			return nil, status.Error(codes.Unauthenticated, msgAuthRequired)
		}

		ac, err := verifier.Verify(raw)
		if err != nil {
			kind := VerificationKindOf(err)
			if kind == "" {
				kind = MalformedToken
			}
			recordVerification(string(kind))
			logger.InfoContext(ctx, "token rejected", "kind", string(kind), "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, msgInvalidToken)
		}
		recordVerification("valid")

		if missing := NewCapabilitySet(ac.Capabilities).Missing(policy.Required[info.FullMethod]); len(missing) > 0 {
			logger.WarnContext(ctx, "access denied", "subject", ac.Subject, "method", info.FullMethod, "missing", missing)
			return nil, status.Error(codes.PermissionDenied, msgInsufficientAccess)
		}

		return handler(WithAuth(ctx, ac), req)
	}
}

func tokenFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		if tok, ok := parseBearer(v); ok {
			return tok, true
		}
	}
	return "", false
}
