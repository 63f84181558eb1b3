// Package otelmeter records every streaming call as an OpenTelemetry span.
// The span starts when the request is sent and ends when the stream
// finishes, fails or is closed by the caller.
package otelmeter

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ineyio/chatstream"
)

const instrumentationName = "github.com/ineyio/chatstream"

// Meter is a chatstream.Meter backed by a tracer.
type Meter struct {
	tracer trace.Tracer
	spans  sync.Map // request id -> trace.Span
}

var _ chatstream.Meter = (*Meter)(nil)

// New creates a Meter. A nil provider uses the global tracer provider.
func New(tp trace.TracerProvider) *Meter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Meter{tracer: tp.Tracer(instrumentationName)}
}

func (m *Meter) OnRequest(e chatstream.RequestEvent) {
	_, span := m.tracer.Start(context.Background(), spanName(e.Provider),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("chatstream.request_id", e.RequestID),
			attribute.String("gen_ai.system", e.Provider),
			attribute.String("gen_ai.request.model", e.Model),
			attribute.Int("chatstream.messages", e.Messages),
			attribute.Int64("chatstream.estimated_input_tokens", e.EstimatedIn),
		),
	)
	m.spans.Store(e.RequestID, span)
}

func (m *Meter) OnResult(e chatstream.ResultEvent) {
	var span trace.Span
	if v, ok := m.spans.LoadAndDelete(e.RequestID); ok {
		span = v.(trace.Span)
	} else {
		// No matching request: backdate a span covering the call.
		_, span = m.tracer.Start(context.Background(), spanName(e.Provider),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithTimestamp(time.Now().Add(-e.Duration)),
			trace.WithAttributes(
				attribute.String("chatstream.request_id", e.RequestID),
				attribute.String("gen_ai.system", e.Provider),
				attribute.String("gen_ai.request.model", e.Model),
			),
		)
	}

	span.SetAttributes(
		attribute.Bool("chatstream.completed", e.Completed),
		attribute.Int64("gen_ai.usage.input_tokens", int64(e.Usage.InputTokens)),
		attribute.Int64("gen_ai.usage.output_tokens", int64(e.Usage.OutputTokens)),
		attribute.Float64("chatstream.cost_usd", e.Cost),
		attribute.Int("chatstream.skipped_lines", e.SkippedLines),
	)
	if e.Error != nil {
		span.RecordError(e.Error)
		span.SetStatus(codes.Error, e.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Pending returns the number of spans still waiting for a result.
func (m *Meter) Pending() int {
	n := 0
	m.spans.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func spanName(provider string) string { return "chatstream " + provider }
