// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

//go:build tools

// Package main pins tool and test dependencies to go.mod.
package main

import (
	// Integration suite runner
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/onsi/gomega"

	// Unit test helpers
	_ "github.com/stretchr/testify/mock"
)
