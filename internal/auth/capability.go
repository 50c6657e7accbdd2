// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// MaxCapabilities bounds the capability set carried in a single token.
const MaxCapabilities = 64

// NormalizeCapabilities validates labels and returns them sorted and
// de-duplicated. An empty or nil input yields an empty, non-nil slice.
func NormalizeCapabilities(capabilities []string) ([]string, error) {
	out := make([]string, 0, len(capabilities))
	for i, c := range capabilities {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, oops.Code(CodeInvalidInput).
				With("index", i).
				Wrapf(ErrInvalidInput, "capability %d is empty", i)
		}
		if strings.ContainsAny(c, " \t\r\n,") {
			return nil, oops.Code(CodeInvalidInput).
				With("capability", c).
				Wrapf(ErrInvalidInput, "capability %q contains whitespace or a comma", c)
		}
		out = append(out, c)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) > MaxCapabilities {
		return nil, oops.Code(CodeInvalidInput).
			With("max", MaxCapabilities).
			Wrapf(ErrInvalidInput, "at most %d capabilities allowed", MaxCapabilities)
	}
	return out, nil
}

// CapabilitySet answers whether a set of granted capabilities covers a
// requirement.
//
// Grants are matched with gobwas/glob using '.' as the segment separator:
//   - "users.read" - exact match only
//   - "users.*" - matches direct children: "users.read", "users.write"
//   - "users.**" - matches all descendants: "users.profile.read"
//   - "**" - matches any capability
//
// A grant that does not compile as a glob only matches itself literally.
type CapabilitySet struct {
	grants []compiledGrant
}

type compiledGrant struct {
	pattern string
	glob    glob.Glob // nil when pattern is literal-only
}

// NewCapabilitySet compiles grants.
func NewCapabilitySet(grants []string) CapabilitySet {
	compiled := make([]compiledGrant, 0, len(grants))
	for _, p := range grants {
		if p == "" {
			continue
		}
		g := compiledGrant{pattern: p}
		if strings.ContainsAny(p, "*?[{") {
			if gl, err := glob.Compile(p, '.'); err == nil {
				g.glob = gl
			}
		}
		compiled = append(compiled, g)
	}
	return CapabilitySet{grants: compiled}
}

// Allows returns true if capability is granted.
func (s CapabilitySet) Allows(capability string) bool {
	if capability == "" {
		return false
	}
	for _, g := range s.grants {
		if g.pattern == capability {
			return true
		}
		if g.glob != nil && g.glob.Match(capability) {
			return true
		}
	}
	return false
}

// AllowsAll returns true if every required capability is granted, i.e. the
// granted set is a superset of required. An empty requirement is always met.
func (s CapabilitySet) AllowsAll(required []string) bool {
	for _, r := range required {
		if !s.Allows(r) {
			return false
		}
	}
	return true
}

// Missing returns the required capabilities that are not granted.
func (s CapabilitySet) Missing(required []string) []string {
	var missing []string
	for _, r := range required {
		if !s.Allows(r) {
			missing = append(missing, r)
		}
	}
	return missing
}
