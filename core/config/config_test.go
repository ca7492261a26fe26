package config_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/core/config"
)

var _ = Describe("Load", func() {
	BeforeEach(func() {
		// production skips .env files so the test only sees what it sets
		GinkgoT().Setenv("QUESTIONS_ENV", "production")
		GinkgoT().Setenv("DATABASE_URL", "postgres://localhost/questions")
	})

	It("applies defaults for the worker", func() {
		GinkgoT().Setenv("TYPESENSE_API_KEY", "xyz")

		cfg, err := config.Load(config.ServiceTypeWorker)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.IsProduction()).To(BeTrue())
		Expect(cfg.Stream.Stream).To(Equal("questions_events"))
		Expect(cfg.Stream.DLQStream).To(Equal("questions_events_dlq"))
		Expect(cfg.Search.Collection).To(Equal("questions"))
		Expect(cfg.Reconcile.Interval).To(Equal(5 * time.Minute))
		Expect(cfg.Worker.Parallelism).To(Equal(8))
		Expect(cfg.DB.MaxConns).To(BeEquivalentTo(10))
	})

	It("requires a Typesense key for the worker", func() {
		_, err := config.Load(config.ServiceTypeWorker)
		Expect(err).To(MatchError(ContainSubstring("TYPESENSE_API_KEY")))
	})

	It("requires a token verification key for the server", func() {
		_, err := config.Load(config.ServiceTypeServer)
		Expect(err).To(MatchError(ContainSubstring("JWT_PUBLIC_KEY")))
	})

	It("accepts HS256 with a shared secret", func() {
		GinkgoT().Setenv("JWT_SIGNING_METHOD", "HS256")
		GinkgoT().Setenv("JWT_SECRET", "s3cret")
		GinkgoT().Setenv("JWT_AUDIENCE", "questions,overflow")

		cfg, err := config.Load(config.ServiceTypeServer)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Auth.Audience).To(Equal([]string{"questions", "overflow"}))
	})

	It("rejects malformed durations", func() {
		GinkgoT().Setenv("TYPESENSE_API_KEY", "xyz")
		GinkgoT().Setenv("RECONCILE_INTERVAL", "soon")

		_, err := config.Load(config.ServiceTypeWorker)
		Expect(err).To(MatchError(ContainSubstring("parse env")))
	})
})
