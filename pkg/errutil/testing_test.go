// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_INVALID_TTL").Errorf("ttl out of range")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_TTL")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("identifier", "alice").Errorf("not found")
	errutil.AssertErrorContext(t, err, "identifier", "alice")
}
