// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	DefaultArgon2Time      = 1         // iterations
	DefaultArgon2MemoryKiB = 64 * 1024 // 64 MB
	DefaultArgon2Threads   = 4         // parallelism
	DefaultMaxPasswordLen  = 256       // bytes

	// MinSaltLen is the shortest salt Hash and Verify accept.
	MinSaltLen = 16

	argon2KeyLen = 32
)

// PasswordHasher hashes and verifies passwords against a per-user salt.
type PasswordHasher interface {
	// NewSalt returns a fresh cryptographically random salt.
	NewSalt() ([]byte, error)

	// ValidatePassword rejects plaintext that Hash would refuse.
	ValidatePassword(plaintext string) error

	// Hash derives a digest of plaintext under salt.
	Hash(plaintext string, salt []byte) (string, error)

	// Verify checks plaintext against digest under salt.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on
	// invalid input or an unparseable digest.
	Verify(plaintext string, salt []byte, digest string) (bool, error)

	// NeedsUpgrade returns true if digest was produced with parameters other
	// than the hasher's current work factor.
	NeedsUpgrade(digest string) bool
}

// Argon2Params is the argon2id work factor.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	// MaxPasswordLen bounds plaintext length in bytes.
	MaxPasswordLen int
}

// DefaultArgon2Params returns the OWASP baseline.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:           DefaultArgon2Time,
		MemoryKiB:      DefaultArgon2MemoryKiB,
		Threads:        DefaultArgon2Threads,
		MaxPasswordLen: DefaultMaxPasswordLen,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It holds no mutable state and is safe for concurrent use.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher. Zero fields in params fall
// back to the defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.MaxPasswordLen <= 0 {
		params.MaxPasswordLen = def.MaxPasswordLen
	}
	return &Argon2idHasher{params: params}
}

// Params returns the hasher's work factor.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// NewSalt returns MinSaltLen random bytes.
func (h *Argon2idHasher) NewSalt() ([]byte, error) {
	salt := make([]byte, MinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").
			With("requested_bytes", MinSaltLen).
			Wrap(err)
	}
	return salt, nil
}

// ValidatePassword checks plaintext is non-empty and within MaxPasswordLen.
func (h *Argon2idHasher) ValidatePassword(plaintext string) error {
	if plaintext == "" {
		return invalidInput("password cannot be empty")
	}
	if len(plaintext) > h.params.MaxPasswordLen {
		return oops.Code(CodeInvalidInput).
			With("max", h.params.MaxPasswordLen).
			Wrapf(ErrInvalidInput, "password must be at most %d bytes", h.params.MaxPasswordLen)
	}
	return nil
}

func (h *Argon2idHasher) checkInput(plaintext string, salt []byte) error {
	if err := h.ValidatePassword(plaintext); err != nil {
		return err
	}
	if len(salt) < MinSaltLen {
		return oops.Code(CodeInvalidInput).
			With("min", MinSaltLen).
			Wrapf(ErrInvalidInput, "salt must be at least %d bytes", MinSaltLen)
	}
	return nil
}

// Hash produces an argon2id digest of plaintext under salt.
// The digest records the parameters but not the salt:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<key>
func (h *Argon2idHasher) Hash(plaintext string, salt []byte) (string, error) {
	if err := h.checkInput(plaintext, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if plaintext matches digest under salt.
func (h *Argon2idHasher) Verify(plaintext string, salt []byte, digest string) (bool, error) {
	if err := h.checkInput(plaintext, salt); err != nil {
		return false, err
	}

	d, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plaintext), salt, d.time, d.memory, d.threads, uint32(len(d.key)))

	// Constant-time comparison
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether digest is not argon2id or was hashed with
// different parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	d, err := parseDigest(digest)
	if err != nil {
		return true
	}
	return d.time != h.params.Time || d.memory != h.params.MemoryKiB || d.threads != h.params.Threads
}

type argon2Digest struct {
	memory  uint32
	time    uint32
	threads uint8
	key     []byte
}

func parseDigest(digest string) (*argon2Digest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 5 {
		return nil, oops.Code(CodeInvalidHash).Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code(CodeInvalidHash).Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code(CodeInvalidHash).Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code(CodeInvalidHash).Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code(CodeInvalidHash).Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return nil, oops.Code(CodeInvalidHash).Errorf("threads value %d out of range", threads)
	}
	if time == 0 || memory == 0 {
		return nil, oops.Code(CodeInvalidHash).Errorf("time and memory must be positive")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code(CodeInvalidHash).Wrap(err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return nil, oops.Code(CodeInvalidHash).Errorf("invalid hash key length: %d", len(key))
	}

	return &argon2Digest{memory: memory, time: time, threads: uint8(threads), key: key}, nil
}

var _ PasswordHasher = (*Argon2idHasher)(nil)
