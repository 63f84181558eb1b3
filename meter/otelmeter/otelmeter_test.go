package otelmeter

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/ineyio/chatstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(t *testing.T) (*Meter, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(tp), rec
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestMeter_SpanPerCall(t *testing.T) {
	m, rec := newRecorder(t)

	m.OnRequest(chatstream.RequestEvent{RequestID: "r1", Provider: "mistral", Model: "mistral-small", Messages: 3, EstimatedIn: 42})
	assert.Equal(t, 1, m.Pending())
	assert.Empty(t, rec.Ended())

	m.OnResult(chatstream.ResultEvent{
		RequestID: "r1", Provider: "mistral", Model: "mistral-small",
		Success: true, Completed: true,
		Usage: chatstream.Usage{InputTokens: 40, OutputTokens: 7}, Cost: 0.01,
	})
	assert.Zero(t, m.Pending())

	ended := rec.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "chatstream mistral", span.Name())
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	a := attrs(span)
	assert.Equal(t, "r1", a["chatstream.request_id"].AsString())
	assert.Equal(t, "mistral", a["gen_ai.system"].AsString())
	assert.Equal(t, "mistral-small", a["gen_ai.request.model"].AsString())
	assert.Equal(t, int64(42), a["chatstream.estimated_input_tokens"].AsInt64())
	assert.Equal(t, int64(40), a["gen_ai.usage.input_tokens"].AsInt64())
	assert.Equal(t, int64(7), a["gen_ai.usage.output_tokens"].AsInt64())
	assert.True(t, a["chatstream.completed"].AsBool())
}

func TestMeter_ErrorStatus(t *testing.T) {
	m, rec := newRecorder(t)

	m.OnRequest(chatstream.RequestEvent{RequestID: "r1", Provider: "gemini"})
	m.OnResult(chatstream.ResultEvent{RequestID: "r1", Provider: "gemini", Error: errors.New("stream broke")})

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "stream broke", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestMeter_ResultWithoutRequest(t *testing.T) {
	m, rec := newRecorder(t)

	m.OnResult(chatstream.ResultEvent{RequestID: "orphan", Provider: "ollama", Success: true, Duration: time.Second})

	ended := rec.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "orphan", attrs(span)["chatstream.request_id"].AsString())
	assert.GreaterOrEqual(t, span.EndTime().Sub(span.StartTime()), time.Second)
}

func TestMeter_ConcurrentCallsKeepSeparateSpans(t *testing.T) {
	m, rec := newRecorder(t)

	m.OnRequest(chatstream.RequestEvent{RequestID: "a", Provider: "p"})
	m.OnRequest(chatstream.RequestEvent{RequestID: "b", Provider: "p"})
	assert.Equal(t, 2, m.Pending())

	m.OnResult(chatstream.ResultEvent{RequestID: "b", Provider: "p", Success: true})
	m.OnResult(chatstream.ResultEvent{RequestID: "a", Provider: "p", Success: true})

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "b", attrs(ended[0])["chatstream.request_id"].AsString())
	assert.Equal(t, "a", attrs(ended[1])["chatstream.request_id"].AsString())
}

func TestNew_NilProviderUsesGlobal(t *testing.T) {
	m := New(nil)
	m.OnRequest(chatstream.RequestEvent{RequestID: "x"})
	m.OnResult(chatstream.ResultEvent{RequestID: "x", Success: true})
	assert.Zero(t, m.Pending())
}
