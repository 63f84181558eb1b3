package gonka

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ineyio/chatstream"
	"github.com/ineyio/chatstream/provider/openaicompat"
)

// Models is the Gonka model table.
var Models = chatstream.ModelTable{
	Default: "Qwen/Qwen3-235B-A22B-Instruct-2507-FP8",
	Models: map[string]chatstream.ModelInfo{
		"Qwen/Qwen3-235B-A22B-Instruct-2507-FP8": {
			MaxTokens:     4096,
			ContextWindow: 262144,
			InputPrice:    0.0015,
			OutputPrice:   0.0015,
		},
		"Qwen/QwQ-32B": {
			MaxTokens:     4096,
			ContextWindow: 131072,
			InputPrice:    0.0015,
			OutputPrice:   0.0015,
		},
	},
}

// Provider is the Gonka decentralized AI compute network adapter.
// It composes openaicompat.Provider with ECDSA request signing: the
// hex-encoded secp256k1 private key never leaves the process, every request
// carries a signature over its body instead.
type Provider struct {
	*openaicompat.Provider
	signer *signer
}

var (
	_ chatstream.Provider             = (*Provider)(nil)
	_ chatstream.CommandResultUpdater = (*Provider)(nil)
)

// Option configures the Gonka provider.
type Option func(*config)

type config struct {
	name      string
	endpoint  Endpoint
	timeout   time.Duration
	transport http.RoundTripper
	now       func() time.Time
	inner     []openaicompat.Option
}

// WithName sets the provider name (default: "gonka").
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithEndpoint sets the Gonka node endpoint.
func WithEndpoint(e Endpoint) Option {
	return func(c *config) { c.endpoint = e }
}

// WithTimeout sets the HTTP client timeout.
// Default is 120s, generous for Gonka's P2P network.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithBaseTransport sets the underlying HTTP transport (before signing).
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithOptions passes options to the underlying OpenAI-compatible adapter.
// WithHTTPClient and WithBaseURL are overridden by the endpoint settings.
func WithOptions(opts ...openaicompat.Option) Option {
	return func(c *config) { c.inner = append(c.inner, opts...) }
}

// withNow is used in tests for deterministic timestamps.
func withNow(fn func() time.Time) Option {
	return func(c *config) { c.now = fn }
}

// New creates a Gonka provider signing with privateKeyHex. The key and the
// endpoint are validated before any network activity.
func New(privateKeyHex string, opts ...Option) (*Provider, error) {
	cfg := &config{
		name:    "gonka",
		timeout: 120 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if privateKeyHex == "" {
		return nil, fmt.Errorf("%w for %s", chatstream.ErrMissingAPIKey, cfg.name)
	}
	s, err := newSigner(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", chatstream.ErrConfiguration, cfg.name, err)
	}
	if cfg.endpoint.URL == "" || cfg.endpoint.Address == "" {
		return nil, fmt.Errorf("%w: %s: endpoint URL and address are required", chatstream.ErrConfiguration, cfg.name)
	}

	base := cfg.transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: &signingTransport{base: base, signer: s, endpoint: cfg.endpoint, now: cfg.now},
		Timeout:   cfg.timeout,
	}

	innerOpts := append([]openaicompat.Option{
		openaicompat.WithModels(Models),
		openaicompat.WithEmptySystemPrompt(chatstream.EmptySystemPromptOmit),
		openaicompat.WithStreamUsage(),
		// The signature replaces the bearer token.
		openaicompat.WithAPIKeyOptional(),
	}, cfg.inner...)
	innerOpts = append(innerOpts,
		openaicompat.WithHTTPClient(httpClient),
		openaicompat.WithBaseURL(cfg.endpoint.URL),
	)

	inner, err := openaicompat.New(cfg.name, cfg.endpoint.URL, "", innerOpts...)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: inner, signer: s}, nil
}

// Address returns the requester address derived from the private key.
func (p *Provider) Address() string { return p.signer.address }
