package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"overflow.app/questions/common/logger"
	"overflow.app/questions/common/metrics"
	"overflow.app/questions/internal/projector"
	"overflow.app/questions/internal/queue"
)

type Config struct {
	MaxAttempts  int           // Deliveries before a message goes to the DLQ
	Parallelism  int           // Questions processed concurrently within one batch
	ApplyRetries int           // In-place retries when the projection is unavailable
	ApplyBackoff time.Duration // Base delay between in-place retries, doubled each time
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.ApplyRetries < 0 {
		c.ApplyRetries = 0
	}
	return c
}

type Worker struct {
	consumer  Consumer
	processor EventProcessor
	cfg       Config
	metrics   *metrics.Collector

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor EventProcessor, cfg Config, m *metrics.Collector) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "questions.worker",
	})
	slog.InfoContext(ctx, "worker started",
		"parallelism", w.cfg.Parallelism,
		"max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}
	w.HandleBatch(ctx, messages)
	return nil
}

// HandleBatch processes messages grouped by question. Groups run concurrently;
// messages of one group run in delivery order so a question never races itself.
func (w *Worker) HandleBatch(ctx context.Context, messages []queue.Message) {
	if len(messages) == 0 {
		return
	}

	groups := groupByKey(messages)

	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Parallelism)
	for _, group := range groups {
		g.Go(func() error {
			for _, msg := range group {
				w.handle(ctx, msg)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// groupByKey splits messages by ordering key, keeping first-seen key order
// and delivery order within each key.
func groupByKey(messages []queue.Message) [][]queue.Message {
	index := make(map[string]int)
	var groups [][]queue.Message
	for _, msg := range messages {
		i, ok := index[msg.Key()]
		if !ok {
			i = len(groups)
			index[msg.Key()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], msg)
	}
	return groups
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	env := msg.Envelope
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID:  logger.Ptr(msg.ID),
		QuestionID: logger.Ptr(env.AggregateID),
		EventID:    logger.Ptr(env.ID),
		EventType:  logger.Ptr(string(env.Type)),
		Sequence:   logger.Ptr(env.Sequence),
	})

	sc := logger.StartSpanFromTraceID(ctx, env.TraceID, "worker.project_event",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	sc.SetEvent(string(env.Type), env.AggregateID, env.Sequence)
	ctx = sc.Context()

	err := w.ProcessMessage(ctx, msg)
	if err == nil {
		return
	}

	sc.RecordError(err)
	slog.ErrorContext(ctx, "message processing failed",
		"error", err,
		"attempt", msg.Attempt)
	w.handleFailedMessage(ctx, msg, err)
}

// ProcessMessage applies msg and acks it on success.
// ErrProjectionUnavailable is retried in place before giving up on this delivery.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	var err error
	for try := 0; try <= w.cfg.ApplyRetries; try++ {
		if try > 0 {
			delay := w.cfg.ApplyBackoff << (try - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var outcome projector.Outcome
		outcome, err = w.applySafe(ctx, msg)
		if err == nil {
			slog.DebugContext(ctx, "event applied", "outcome", outcome)
			break
		}
		if !errors.Is(err, projector.ErrProjectionUnavailable) {
			return err
		}
		slog.WarnContext(ctx, "projection unavailable, retrying",
			"error", err,
			"try", try+1)
	}
	if err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail - message will be reclaimed and reapplied, which is a no-op
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
	return nil
}

func (w *Worker) applySafe(ctx context.Context, msg queue.Message) (outcome projector.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.OnEvent(ctx, msg.Envelope)
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if errors.Is(err, projector.ErrMalformedEvent) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "sending message to DLQ",
			"attempts", msg.Attempt,
			"malformed", errors.Is(err, projector.ErrMalformedEvent))
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
			return
		}
		w.metrics.DeadLettered()
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
