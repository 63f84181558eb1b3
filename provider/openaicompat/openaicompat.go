package openaicompat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ineyio/chatstream"
)

const defaultMaxTokens = 4096

// ChatCompletionsMapper reads the OpenAI chat completions stream schema:
// text from choices[0].delta.content, usage from the usage object.
var ChatCompletionsMapper = chatstream.Mapper{
	TextPath:          chatstream.ParsePath("choices.0.delta.content"),
	UsagePath:         chatstream.ParsePath("usage"),
	InputTokensField:  "prompt_tokens",
	OutputTokensField: "completion_tokens",
}

// Provider is a universal OpenAI-compatible streaming adapter.
// Works with Mistral, OpenAI, OpenRouter, LM Studio, and others that serve
// POST {base}/chat/completions with SSE streaming.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client

	models      chatstream.ModelTable
	modelID     string
	temperature float64

	maxTokens           int
	defaultMaxTokens    int
	maxCompletionTokens bool
	streamUsage         bool
	keyOptional         bool

	emptySystem chatstream.EmptySystemPrompt
	decoderOpts []chatstream.DecoderOption
	meter       chatstream.Meter
	logger      *slog.Logger

	lastResult atomic.Pointer[chatstream.CommandResult]
}

var (
	_ chatstream.Provider             = (*Provider)(nil)
	_ chatstream.CommandResultUpdater = (*Provider)(nil)
)

// Option configures the provider.
type Option func(*Provider)

// WithName overrides the provider name reported in errors and meter events.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithBaseURL overrides the vendor endpoint. Empty keeps the default.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModel sets the requested model id. Ids missing from the model table
// resolve to the table default.
func WithModel(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithModels replaces the model table.
func WithModels(t chatstream.ModelTable) Option {
	return func(p *Provider) { p.models = t }
}

// WithModelInfo registers one extra model in the table.
func WithModelInfo(id string, info chatstream.ModelInfo) Option {
	return func(p *Provider) { p.models = p.models.With(id, info) }
}

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the reply length for every model, overriding the
// model info. Zero or negative keeps the model info value.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithDefaultMaxTokens sets max_tokens for models whose info has none.
// Zero or negative omits the field for such models.
func WithDefaultMaxTokens(n int) Option {
	return func(p *Provider) { p.defaultMaxTokens = n }
}

// WithMaxCompletionTokens sends max_completion_tokens instead of max_tokens.
func WithMaxCompletionTokens() Option {
	return func(p *Provider) { p.maxCompletionTokens = true }
}

// WithStreamUsage asks the vendor to append a usage chunk to the stream.
func WithStreamUsage() Option {
	return func(p *Provider) { p.streamUsage = true }
}

// WithEmptySystemPrompt sets the empty system prompt policy.
func WithEmptySystemPrompt(policy chatstream.EmptySystemPrompt) Option {
	return func(p *Provider) { p.emptySystem = policy }
}

// WithAPIKeyOptional allows construction without a key, for local servers.
func WithAPIKeyOptional() Option {
	return func(p *Provider) { p.keyOptional = true }
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

// New creates an OpenAI-compatible provider. It fails before any network
// activity when apiKey is empty, unless WithAPIKeyOptional is given.
func New(name, baseURL, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		name:             name,
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		httpClient:       http.DefaultClient,
		models:           OpenAIModels,
		defaultMaxTokens: defaultMaxTokens,
		emptySystem:      chatstream.EmptySystemPromptSend,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.apiKey == "" && !p.keyOptional {
		return nil, fmt.Errorf("%w for %s", chatstream.ErrMissingAPIKey, name)
	}
	if p.baseURL == "" {
		return nil, fmt.Errorf("%w: %s: base URL is required", chatstream.ErrConfiguration, name)
	}
	if len(p.models.Models) == 0 || !p.models.Has(p.models.Default) {
		return nil, fmt.Errorf("%w: %s: model table has no default entry", chatstream.ErrConfiguration, name)
	}
	if err := p.translateOptions().Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// NewMistral creates a provider for the Mistral API. Temperature is 0 and an
// empty system prompt is still sent.
func NewMistral(apiKey string, opts ...Option) (*Provider, error) {
	base := []Option{
		WithModels(MistralModels),
		WithTemperature(0),
		WithEmptySystemPrompt(chatstream.EmptySystemPromptSend),
	}
	return New("mistral", "https://api.mistral.ai/v1", apiKey, append(base, opts...)...)
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(apiKey string, opts ...Option) (*Provider, error) {
	base := []Option{
		WithModels(OpenAIModels),
		WithStreamUsage(),
		WithEmptySystemPrompt(chatstream.EmptySystemPromptOmit),
	}
	return New("openai", "https://api.openai.com/v1", apiKey, append(base, opts...)...)
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(apiKey string, opts ...Option) (*Provider, error) {
	base := []Option{
		WithModels(OpenRouterModels),
		WithStreamUsage(),
		WithEmptySystemPrompt(chatstream.EmptySystemPromptOmit),
	}
	return New("openrouter", "https://openrouter.ai/api/v1", apiKey, append(base, opts...)...)
}

// NewLMStudio creates a provider for a local LM Studio server. No API key is
// needed.
func NewLMStudio(opts ...Option) (*Provider, error) {
	base := []Option{
		WithModels(LocalModels),
		WithAPIKeyOptional(),
		WithDefaultMaxTokens(0),
		WithEmptySystemPrompt(chatstream.EmptySystemPromptOmit),
	}
	return New("lmstudio", "http://localhost:1234/v1", "", append(base, opts...)...)
}

func (p *Provider) Name() string { return p.name }

// Model returns the configured model when the table knows it, otherwise
// the table default.
func (p *Provider) Model() chatstream.Model { return p.models.Resolve(p.modelID) }

// UpdateLastCommandResult stores the result injected into later tool result
// messages. The value is kept until overwritten.
func (p *Provider) UpdateLastCommandResult(success bool, output string) {
	p.lastResult.Store(&chatstream.CommandResult{Success: success, Output: output})
}

// apiRequest is the chat completions request format.
type apiRequest struct {
	Model               string                     `json:"model"`
	Messages            []chatstream.VendorMessage `json:"messages"`
	Temperature         float64                    `json:"temperature"`
	Stream              bool                       `json:"stream"`
	MaxTokens           int                        `json:"max_tokens,omitempty"`
	MaxCompletionTokens int                        `json:"max_completion_tokens,omitempty"`
	StreamOptions       *streamOptions             `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// CreateMessage streams a chat completion.
func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []chatstream.Message) (*chatstream.Stream, error) {
	if err := chatstream.ValidateMessages(messages); err != nil {
		return nil, err
	}
	model := p.Model()
	body := p.buildRequest(model, systemPrompt, messages)

	decoderOpts := append([]chatstream.DecoderOption{chatstream.WithLogger(p.logger)}, p.decoderOpts...)

	return chatstream.OpenStream(ctx, p.httpClient, chatstream.StreamRequest{
		Provider:       p.name,
		Model:          model,
		URL:            p.baseURL + "/chat/completions",
		Header:         p.header(),
		Body:           body,
		Framing:        chatstream.FramingSSE,
		Mapper:         ChatCompletionsMapper,
		DecoderOptions: decoderOpts,
		Messages:       len(messages),
		EstimatedIn:    chatstream.EstimateTokens(systemPrompt, messages),
	}, p.meter)
}

func (p *Provider) buildRequest(model chatstream.Model, systemPrompt string, messages []chatstream.Message) apiRequest {
	t := chatstream.Translate(systemPrompt, messages, p.translateOptions())

	req := apiRequest{
		Model:       model.ID,
		Messages:    t.Messages,
		Temperature: p.temperature,
		Stream:      true,
	}

	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = model.Info.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = p.defaultMaxTokens
	}
	if maxTokens > 0 {
		if p.maxCompletionTokens {
			req.MaxCompletionTokens = maxTokens
		} else {
			req.MaxTokens = maxTokens
		}
	}

	if p.streamUsage {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

func (p *Provider) translateOptions() chatstream.TranslateOptions {
	return chatstream.TranslateOptions{
		EmptySystemPrompt: p.emptySystem,
		SystemPlacement:   chatstream.SystemInline,
		CommandResult:     p.lastResult.Load(),
	}
}

func (p *Provider) header() http.Header {
	if p.apiKey == "" {
		return nil
	}
	return chatstream.BearerHeader(p.apiKey)
}
