// Package ollama streams chat replies from a local Ollama server through its
// native /api/chat endpoint, which frames the stream as one JSON object per
// line.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ineyio/chatstream"
)

const defaultBaseURL = "http://localhost:11434"

// ChatMapper reads the /api/chat stream schema. Counts arrive on the final
// line, flagged by "done": true.
var ChatMapper = chatstream.Mapper{
	TextPath:          chatstream.ParsePath("message.content"),
	UsageWhen:         chatstream.ParsePath("done"),
	InputTokensField:  "prompt_eval_count",
	OutputTokensField: "eval_count",
}

// Models lists a few common local models. Any other id can be added with
// WithModelInfo.
var Models = chatstream.ModelTable{
	Default: "llama3.2",
	Models: map[string]chatstream.ModelInfo{
		"llama3.2":    {ContextWindow: 131072},
		"qwen2.5":     {ContextWindow: 32768},
		"mistral":     {ContextWindow: 32768},
		"deepseek-r1": {ContextWindow: 131072},
	},
}

// Provider is the Ollama adapter.
type Provider struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	models      chatstream.ModelTable
	modelID     string
	temperature float64
	numPredict  int
	emptySystem chatstream.EmptySystemPrompt
	decoderOpts []chatstream.DecoderOption
	meter       chatstream.Meter
	logger      *slog.Logger
}

var _ chatstream.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets the server URL (default http://localhost:11434).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets a bearer token for servers behind an authenticating proxy.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModel sets the requested model id.
func WithModel(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithModelInfo registers one extra model in the table.
func WithModelInfo(id string, info chatstream.ModelInfo) Option {
	return func(p *Provider) { p.models = p.models.With(id, info) }
}

// WithTemperature sets the sampling temperature (default 0).
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithNumPredict caps the number of generated tokens. Zero leaves the
// server default.
func WithNumPredict(n int) Option {
	return func(p *Provider) { p.numPredict = n }
}

// WithEmptySystemPrompt sets the empty system prompt policy (default omit).
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

// WithLogger sets the logger for decode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates an Ollama provider. No credential is required.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		baseURL:     defaultBaseURL,
		httpClient:  http.DefaultClient,
		models:      Models,
		emptySystem: chatstream.EmptySystemPromptOmit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.translateOptions().Validate(); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return p, nil
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Model() chatstream.Model { return p.models.Resolve(p.modelID) }

type chatRequest struct {
	Model    string                     `json:"model"`
	Messages []chatstream.VendorMessage `json:"messages"`
	Stream   bool                       `json:"stream"`
	Options  chatOptions                `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []chatstream.Message) (*chatstream.Stream, error) {
	if err := chatstream.ValidateMessages(messages); err != nil {
		return nil, err
	}
	model := p.Model()
	t := chatstream.Translate(systemPrompt, messages, p.translateOptions())

	header := make(http.Header)
	header.Set("Accept", "application/x-ndjson")
	if p.apiKey != "" {
		header.Set("Authorization", "Bearer "+p.apiKey)
	}

	decoderOpts := append([]chatstream.DecoderOption{chatstream.WithLogger(p.logger)}, p.decoderOpts...)

	return chatstream.OpenStream(ctx, p.httpClient, chatstream.StreamRequest{
		Provider: p.Name(),
		Model:    model,
		URL:      p.baseURL + "/api/chat",
		Header:   header,
		Body: chatRequest{
			Model:    model.ID,
			Messages: t.Messages,
			Stream:   true,
			Options:  chatOptions{Temperature: p.temperature, NumPredict: p.numPredict},
		},
		Framing:        chatstream.FramingJSONLines,
		Mapper:         ChatMapper,
		DecoderOptions: decoderOpts,
		Messages:       len(messages),
		EstimatedIn:    chatstream.EstimateTokens(systemPrompt, messages),
	}, p.meter)
}

func (p *Provider) translateOptions() chatstream.TranslateOptions {
	return chatstream.TranslateOptions{
		EmptySystemPrompt: p.emptySystem,
		SystemPlacement:   chatstream.SystemInline,
	}
}
