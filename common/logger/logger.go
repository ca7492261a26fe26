package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"overflow.app/questions/core/config"
)

// Setup installs the process-wide slog handler. Production logs go to the OTel
// log pipeline when an exporter is configured and to JSON on stdout otherwise.
func Setup(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: level(cfg)}

	var handler slog.Handler
	switch {
	case cfg.IsProduction() && cfg.OTel.Enabled():
		handler = otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	case cfg.IsProduction():
		handler = NewTraceHandler(slog.NewJSONHandler(os.Stdout, opts))
	default:
		handler = NewTraceHandler(slog.NewTextHandler(os.Stdout, opts))
	}

	slog.SetDefault(slog.New(handler))
}

func level(cfg config.Config) slog.Level {
	var lvl slog.Level
	if cfg.LogLevel != "" && lvl.UnmarshalText([]byte(cfg.LogLevel)) == nil {
		return lvl
	}
	if cfg.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TraceHandler stamps every record with the active trace ids and the context LogFields.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.QuestionID != nil {
		r.AddAttrs(slog.String("question_id", *fields.QuestionID))
	}
	if fields.AnswerID != nil {
		r.AddAttrs(slog.String("answer_id", *fields.AnswerID))
	}
	if fields.MessageID != nil {
		r.AddAttrs(slog.String("message_id", *fields.MessageID))
	}
	if fields.EventID != nil {
		r.AddAttrs(slog.String("event_id", *fields.EventID))
	}
	if fields.EventType != nil {
		r.AddAttrs(slog.String("event_type", *fields.EventType))
	}
	if fields.Sequence != nil {
		r.AddAttrs(slog.Int64("sequence", *fields.Sequence))
	}
	if fields.CallerID != nil {
		r.AddAttrs(slog.String("caller_id", *fields.CallerID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
