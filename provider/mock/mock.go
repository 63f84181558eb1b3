package mock

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/chatstream"
	"github.com/ineyio/chatstream/provider/openaicompat"
)

// Models is the mock model table.
var Models = chatstream.ModelTable{
	Default: "mock-model",
	Models: map[string]chatstream.ModelInfo{
		"mock-model": {MaxTokens: 1024, ContextWindow: 8192, InputPrice: 1, OutputPrice: 2},
	},
}

// Provider is a scripted provider for testing callers. Its replies go through
// the real stream decoder and mapper, so they behave like a vendor stream.
type Provider struct {
	name        string
	models      chatstream.ModelTable
	modelID     string
	deltas      []string
	usage       *chatstream.Usage
	rawBody     string
	latency     time.Duration
	failAfter   int
	staticErr   error
	emptySystem chatstream.EmptySystemPrompt
	decoderOpts []chatstream.DecoderOption
	meter       chatstream.Meter

	callCount  atomic.Int64
	lastResult atomic.Pointer[chatstream.CommandResult]

	mu   sync.Mutex
	last chatstream.Translation
}

var (
	_ chatstream.Provider             = (*Provider)(nil)
	_ chatstream.CommandResultUpdater = (*Provider)(nil)
)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options. By default it replies
// "Hello from mock provider" in two deltas and reports 10 input and 20
// output tokens.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:        "mock",
		models:      Models,
		deltas:      []string{"Hello from ", "mock provider"},
		usage:       &chatstream.Usage{InputTokens: 10, OutputTokens: 20},
		emptySystem: chatstream.EmptySystemPromptSend,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithModel sets the requested model id.
func WithModel(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithDeltas sets the text deltas of the reply.
func WithDeltas(deltas ...string) Option {
	return func(p *Provider) { p.deltas = deltas }
}

// WithUsage sets the usage reported at the end of the reply. Nil reports
// none, so the stream synthesizes zero usage.
func WithUsage(u *chatstream.Usage) Option {
	return func(p *Provider) { p.usage = u }
}

// WithRawBody replies with body verbatim as an SSE stream, ignoring deltas
// and usage.
func WithRawBody(body string) Option {
	return func(p *Provider) { p.rawBody = body }
}

// WithLatency adds simulated latency before each reply.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithEmptySystemPrompt sets the empty system prompt policy (default send).
func WithEmptySystemPrompt(policy chatstream.EmptySystemPrompt) Option {
	return func(p *Provider) { p.emptySystem = policy }
}

// WithDecoderOptions appends stream decoder options.
func WithDecoderOptions(opts ...chatstream.DecoderOption) Option {
	return func(p *Provider) { p.decoderOpts = append(p.decoderOpts, opts...) }
}

// WithMeter sets the meter notified about every call.
func WithMeter(m chatstream.Meter) Option {
	return func(p *Provider) { p.meter = m }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Model() chatstream.Model { return p.models.Resolve(p.modelID) }

// UpdateLastCommandResult stores the result injected into later tool result
// messages.
func (p *Provider) UpdateLastCommandResult(success bool, output string) {
	p.lastResult.Store(&chatstream.CommandResult{Success: success, Output: output})
}

// LastTranslation returns the vendor messages of the most recent call.
func (p *Provider) LastTranslation() chatstream.Translation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []chatstream.Message) (*chatstream.Stream, error) {
	if err := chatstream.ValidateMessages(messages); err != nil {
		return nil, err
	}
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return nil, p.staticErr
	}
	if p.failAfter > 0 && int(count) > p.failAfter {
		return nil, chatstream.ErrProviderUnavailable
	}

	opts := chatstream.TranslateOptions{
		EmptySystemPrompt: p.emptySystem,
		CommandResult:     p.lastResult.Load(),
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	t := chatstream.Translate(systemPrompt, messages, opts)
	p.mu.Lock()
	p.last = t
	p.mu.Unlock()

	model := p.Model()
	info := chatstream.StreamInfo{
		ID:       uuid.NewString(),
		Provider: p.name,
		Model:    model,
		Start:    time.Now(),
	}
	if p.meter != nil {
		p.meter.OnRequest(chatstream.RequestEvent{
			RequestID:   info.ID,
			Provider:    p.name,
			Model:       model.ID,
			Messages:    len(messages),
			EstimatedIn: chatstream.EstimateTokens(systemPrompt, messages),
		})
	}

	dec := chatstream.NewDecoder(io.NopCloser(strings.NewReader(p.script())), chatstream.FramingSSE, p.decoderOpts...)
	return chatstream.NewStream(dec, openaicompat.ChatCompletionsMapper, info, p.meter), nil
}

// script renders the reply as a chat completions SSE stream.
func (p *Provider) script() string {
	if p.rawBody != "" {
		return p.rawBody
	}

	var sb strings.Builder
	for _, d := range p.deltas {
		writeEvent(&sb, map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": d}}},
		})
	}
	if p.usage != nil {
		writeEvent(&sb, map[string]any{
			"choices": []any{},
			"usage": map[string]any{
				"prompt_tokens":     p.usage.InputTokens,
				"completion_tokens": p.usage.OutputTokens,
			},
		})
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func writeEvent(sb *strings.Builder, v any) {
	data, _ := json.Marshal(v)
	sb.WriteString("data: ")
	sb.Write(data)
	sb.WriteString("\n\n")
}
