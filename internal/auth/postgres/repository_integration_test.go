// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth/postgres"
)

var _ = Describe("CredentialRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.CredentialRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewCredentialRepository(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE users`)
		Expect(err).NotTo(HaveOccurred())
	})

	record := func(id string) *auth.CredentialRecord {
		return &auth.CredentialRecord{
			Identifier:   id,
			Hash:         "$argon2id$v=19$m=64,t=1,p=1$a2V5",
			Salt:         []byte("0123456789abcdef"),
			Capabilities: []string{"read", "users.write"},
			CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	It("round-trips a record", func() {
		rec := record("alice")
		Expect(repo.Put(ctx, rec)).To(Succeed())

		got, err := repo.Get(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Identifier).To(Equal("alice"))
		Expect(got.Hash).To(Equal(rec.Hash))
		Expect(got.Salt).To(Equal(rec.Salt))
		Expect(got.Capabilities).To(Equal(rec.Capabilities))
		Expect(got.CreatedAt).To(BeTemporally("==", rec.CreatedAt))
		Expect(got.LastAuthenticatedAt).To(BeNil())
	})

	It("reports missing identifiers as not found", func() {
		_, err := repo.Get(ctx, "nobody")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("allows exactly one of many concurrent inserts", func() {
		var wg sync.WaitGroup
		var ok, conflict atomic.Int32
		for range 50 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				err := repo.Put(ctx, record("racer"))
				if err == nil {
					ok.Add(1)
					return
				}
				Expect(err).To(MatchError(auth.ErrConflict))
				conflict.Add(1)
			}()
		}
		wg.Wait()
		Expect(ok.Load()).To(Equal(int32(1)))
		Expect(conflict.Load()).To(Equal(int32(49)))
	})

	It("updates authentication time and credentials", func() {
		Expect(repo.Put(ctx, record("bob"))).To(Succeed())

		at := time.Now().UTC().Truncate(time.Microsecond)
		Expect(repo.UpdateLastAuthenticated(ctx, "bob", at)).To(Succeed())
		Expect(repo.UpdateCredential(ctx, "bob", "digest2", []byte("fedcba9876543210"))).To(Succeed())

		got, err := repo.Get(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LastAuthenticatedAt).NotTo(BeNil())
		Expect(*got.LastAuthenticatedAt).To(BeTemporally("==", at))
		Expect(got.Hash).To(Equal("digest2"))

		Expect(repo.UpdateCredential(ctx, "nobody", "x", []byte("fedcba9876543210"))).To(MatchError(auth.ErrNotFound))
	})

	It("answers ping", func() {
		Expect(repo.Ping(ctx)).To(Succeed())
	})
})
