package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ineyio/chatstream"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// StreamMapper reads the streamGenerateContent schema.
var StreamMapper = chatstream.Mapper{
	TextPath:          chatstream.ParsePath("candidates.0.content.parts.0.text"),
	UsagePath:         chatstream.ParsePath("usageMetadata"),
	InputTokensField:  "promptTokenCount",
	OutputTokensField: "candidatesTokenCount",
}

// Models is the Gemini model table.
var Models = chatstream.ModelTable{
	Default: "gemini-2.0-flash-exp",
	Models: map[string]chatstream.ModelInfo{
		"gemini-2.0-flash-exp": {
			MaxTokens:      8192,
			ContextWindow:  1048576,
			SupportsVision: true,
		},
		"gemini-1.5-flash-002": {
			MaxTokens:      8192,
			ContextWindow:  1048576,
			SupportsVision: true,
		},
		"gemini-1.5-pro-002": {
			MaxTokens:      8192,
			ContextWindow:  2097152,
			SupportsVision: true,
		},
	},
}

// Provider is the Gemini API adapter.
type Provider struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	models      chatstream.ModelTable
	modelID     string
	temperature float64
	maxTokens   int
	emptySystem chatstream.EmptySystemPrompt
	decoderOpts []chatstream.DecoderOption
	meter       chatstream.Meter
	logger      *slog.Logger
}

var _ chatstream.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
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

// WithMaxTokens sets maxOutputTokens, overriding the model info. Zero keeps
// the model info value.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
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

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		httpClient:  http.DefaultClient,
		models:      Models,
		emptySystem: chatstream.EmptySystemPromptOmit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.apiKey == "" {
		return nil, fmt.Errorf("%w for gemini", chatstream.ErrMissingAPIKey)
	}
	if err := p.translateOptions().Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return p, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Model() chatstream.Model { return p.models.Resolve(p.modelID) }

// Gemini API types.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

func (p *Provider) CreateMessage(ctx context.Context, systemPrompt string, messages []chatstream.Message) (*chatstream.Stream, error) {
	if err := chatstream.ValidateMessages(messages); err != nil {
		return nil, err
	}
	model := p.Model()
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, url.PathEscape(model.ID))

	header := make(http.Header)
	header.Set("x-goog-api-key", p.apiKey)

	decoderOpts := append([]chatstream.DecoderOption{chatstream.WithLogger(p.logger)}, p.decoderOpts...)

	return chatstream.OpenStream(ctx, p.httpClient, chatstream.StreamRequest{
		Provider:       p.Name(),
		Model:          model,
		URL:            endpoint,
		Header:         header,
		Body:           p.buildRequest(model, systemPrompt, messages),
		Framing:        chatstream.FramingSSE,
		Mapper:         StreamMapper,
		DecoderOptions: decoderOpts,
		Messages:       len(messages),
		EstimatedIn:    chatstream.EstimateTokens(systemPrompt, messages),
	}, p.meter)
}

func (p *Provider) buildRequest(model chatstream.Model, systemPrompt string, messages []chatstream.Message) geminiRequest {
	t := chatstream.Translate(systemPrompt, messages, p.translateOptions())

	contents := make([]geminiContent, 0, len(t.Messages))
	for _, m := range t.Messages {
		contents = append(contents, geminiContent{
			Role:  m.Role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = model.Info.MaxTokens
	}

	gr := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     p.temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if t.SendSystem {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: t.System}}}
	}
	return gr
}

func (p *Provider) translateOptions() chatstream.TranslateOptions {
	return chatstream.TranslateOptions{
		EmptySystemPrompt: p.emptySystem,
		SystemPlacement:   chatstream.SystemField,
		AssistantRole:     "model",
	}
}
