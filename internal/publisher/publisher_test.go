package publisher_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/publisher"
)

var errBroker = errors.New("connection refused")

var _ = Describe("Publisher", func() {
	var (
		ctx      context.Context
		producer *mockEnqueuer
		env      domain.Envelope
		cfg      publisher.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		producer = &mockEnqueuer{}
		cfg = publisher.Config{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		}

		var err error
		env, err = domain.NewEnvelope("1", 1, domain.QuestionDeleted{QuestionID: "1"}, "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("publishes on the first attempt", func() {
		p := publisher.New(producer, cfg, metrics.NewCollector("test"))
		Expect(p.Publish(ctx, env)).To(Succeed())
		Expect(producer.Calls()).To(Equal(1))
	})

	It("retries transient failures", func() {
		failures := 2
		producer.enqueueFn = func(context.Context, domain.Envelope) error {
			if failures > 0 {
				failures--
				return errBroker
			}
			return nil
		}

		p := publisher.New(producer, cfg, nil)
		Expect(p.Publish(ctx, env)).To(Succeed())
		Expect(producer.Calls()).To(Equal(3))
	})

	It("gives up after the last attempt", func() {
		producer.enqueueFn = func(context.Context, domain.Envelope) error { return errBroker }

		p := publisher.New(producer, cfg, nil)
		err := p.Publish(ctx, env)
		Expect(err).To(MatchError(publisher.ErrChannelUnavailable))
		Expect(err).To(MatchError(errBroker))
		Expect(producer.Calls()).To(Equal(3))
	})

	It("stops calling a broker once the breaker opens", func() {
		producer.enqueueFn = func(context.Context, domain.Envelope) error { return errBroker }
		cfg.MaxAttempts = 6
		cfg.BreakerFailures = 2

		p := publisher.New(producer, cfg, nil)
		Expect(p.Publish(ctx, env)).To(MatchError(publisher.ErrChannelUnavailable))
		Expect(producer.Calls()).To(Equal(2))
	})

	It("stops retrying when the context ends", func() {
		producer.enqueueFn = func(context.Context, domain.Envelope) error { return errBroker }
		cfg.MaxAttempts = 10
		cfg.BaseBackoff = time.Hour

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)

		p := publisher.New(producer, cfg, nil)
		err := p.Publish(cctx, env)
		Expect(err).To(MatchError(publisher.ErrChannelUnavailable))
		Expect(err).To(MatchError(context.Canceled))
		Expect(producer.Calls()).To(Equal(1))
	})
})
