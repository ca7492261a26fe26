package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"overflow.app/questions/internal/scheduler"
)

var _ = Describe("Scheduler", func() {
	It("rejects jobs without an interval", func() {
		_, err := scheduler.New(context.Background(), scheduler.Job{
			Name: "drain",
			Run:  func(context.Context) error { return nil },
		})
		Expect(err).To(MatchError(ContainSubstring("interval must be positive")))
	})

	It("rejects jobs without a run func", func() {
		_, err := scheduler.New(context.Background(), scheduler.Job{Name: "drain", Every: time.Second})
		Expect(err).To(MatchError(ContainSubstring("missing run func")))
	})

	It("runs jobs periodically and keeps running after failures", func() {
		var runs atomic.Int32
		s, err := scheduler.New(context.Background(), scheduler.Job{
			Name:  "reconcile",
			Every: time.Second,
			Run: func(context.Context) error {
				runs.Add(1)
				return errors.New("index down")
			},
		})
		Expect(err).NotTo(HaveOccurred())

		s.Start()
		DeferCleanup(func() {
			Expect(s.Stop(context.Background())).To(Succeed())
		})

		Eventually(runs.Load, 5*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 2))
	})

	It("hands each run a context bounded by the job timeout", func() {
		deadlines := make(chan bool, 1)
		s, err := scheduler.New(context.Background(), scheduler.Job{
			Name:    "drain",
			Every:   time.Second,
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				_, ok := ctx.Deadline()
				select {
				case deadlines <- ok:
				default:
				}
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())

		s.Start()
		DeferCleanup(func() {
			Expect(s.Stop(context.Background())).To(Succeed())
		})

		Eventually(deadlines, 3*time.Second).Should(Receive(BeTrue()))
	})
})
