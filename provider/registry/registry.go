// Package registry builds provider adapters from configuration.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/ineyio/chatstream"
	"github.com/ineyio/chatstream/provider/gemini"
	"github.com/ineyio/chatstream/provider/gonka"
	"github.com/ineyio/chatstream/provider/mock"
	"github.com/ineyio/chatstream/provider/ollama"
	"github.com/ineyio/chatstream/provider/openaicompat"
)

// Deps are the runtime collaborators shared by every adapter.
type Deps struct {
	Meter  chatstream.Meter
	Logger *slog.Logger
}

// Providers lists the provider kinds New accepts.
var Providers = []string{
	"mistral", "openai", "openrouter", "lmstudio", "openai-compatible",
	"gemini", "ollama", "gonka", "mock",
}

// New builds the adapter described by cfg.
func New(cfg chatstream.Config, deps Deps) (chatstream.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var emptySystem chatstream.EmptySystemPrompt
	if cfg.EmptySystemPrompt != "" {
		emptySystem, _ = chatstream.ParseEmptySystemPrompt(cfg.EmptySystemPrompt)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	decoderOpts := cfg.DecoderOptions()

	switch cfg.Provider {
	case "mistral", "openai", "openrouter", "lmstudio", "openai-compatible":
		return newOpenAICompat(cfg, deps, logger, emptySystem, decoderOpts)

	case "gemini":
		opts := []gemini.Option{
			gemini.WithBaseURL(cfg.BaseURL),
			gemini.WithModel(cfg.Model),
			gemini.WithMaxTokens(cfg.MaxTokens),
			gemini.WithDecoderOptions(decoderOpts...),
			gemini.WithMeter(deps.Meter),
			gemini.WithLogger(logger),
		}
		if cfg.Temperature != nil {
			opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
		}
		if emptySystem != 0 {
			opts = append(opts, gemini.WithEmptySystemPrompt(emptySystem))
		}
		return wrap(gemini.New(cfg.APIKey, opts...))

	case "ollama":
		opts := []ollama.Option{
			ollama.WithBaseURL(cfg.BaseURL),
			ollama.WithAPIKey(cfg.APIKey),
			ollama.WithModel(cfg.Model),
			ollama.WithNumPredict(cfg.MaxTokens),
			ollama.WithDecoderOptions(decoderOpts...),
			ollama.WithMeter(deps.Meter),
			ollama.WithLogger(logger),
		}
		if cfg.Model != "" && !ollama.Models.Has(cfg.Model) {
			opts = append(opts, ollama.WithModelInfo(cfg.Model, chatstream.ModelInfo{MaxTokens: cfg.MaxTokens}))
		}
		if cfg.Temperature != nil {
			opts = append(opts, ollama.WithTemperature(*cfg.Temperature))
		}
		if emptySystem != 0 {
			opts = append(opts, ollama.WithEmptySystemPrompt(emptySystem))
		}
		return wrap(ollama.New(opts...))

	case "gonka":
		inner := []openaicompat.Option{
			openaicompat.WithModel(cfg.Model),
			openaicompat.WithMaxTokens(cfg.MaxTokens),
			openaicompat.WithDecoderOptions(decoderOpts...),
			openaicompat.WithMeter(deps.Meter),
			openaicompat.WithLogger(logger),
		}
		if cfg.Temperature != nil {
			inner = append(inner, openaicompat.WithTemperature(*cfg.Temperature))
		}
		if emptySystem != 0 {
			inner = append(inner, openaicompat.WithEmptySystemPrompt(emptySystem))
		}
		opts := []gonka.Option{
			gonka.WithEndpoint(gonka.Endpoint{URL: cfg.BaseURL, Address: cfg.Gonka.Address}),
			gonka.WithOptions(inner...),
		}
		if cfg.Name != "" {
			opts = append(opts, gonka.WithName(cfg.Name))
		}
		return wrap(gonka.New(cfg.APIKey, opts...))

	case "mock":
		opts := []mock.Option{
			mock.WithModel(cfg.Model),
			mock.WithDecoderOptions(decoderOpts...),
			mock.WithMeter(deps.Meter),
		}
		if cfg.Name != "" {
			opts = append(opts, mock.WithName(cfg.Name))
		}
		if emptySystem != 0 {
			opts = append(opts, mock.WithEmptySystemPrompt(emptySystem))
		}
		return mock.New(opts...), nil

	default:
		return nil, fmt.Errorf("%w: %q", chatstream.ErrUnknownProvider, cfg.Provider)
	}
}

func newOpenAICompat(cfg chatstream.Config, deps Deps, logger *slog.Logger, emptySystem chatstream.EmptySystemPrompt, decoderOpts []chatstream.DecoderOption) (chatstream.Provider, error) {
	opts := []openaicompat.Option{
		openaicompat.WithBaseURL(cfg.BaseURL),
		openaicompat.WithModel(cfg.Model),
		openaicompat.WithDecoderOptions(decoderOpts...),
		openaicompat.WithMeter(deps.Meter),
		openaicompat.WithLogger(logger),
	}
	if cfg.Temperature != nil {
		opts = append(opts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, openaicompat.WithMaxTokens(cfg.MaxTokens))
	}
	if emptySystem != 0 {
		opts = append(opts, openaicompat.WithEmptySystemPrompt(emptySystem))
	}

	name := cfg.DisplayName()
	if cfg.Name != "" {
		opts = append(opts, openaicompat.WithName(cfg.Name))
	}

	switch cfg.Provider {
	case "mistral":
		return wrap(openaicompat.NewMistral(cfg.APIKey, opts...))
	case "openai":
		return wrap(openaicompat.NewOpenAI(cfg.APIKey, opts...))
	case "openrouter":
		return wrap(openaicompat.NewOpenRouter(cfg.APIKey, opts...))
	case "lmstudio":
		if cfg.Model != "" {
			opts = append(opts, openaicompat.WithModelInfo(cfg.Model, openaicompat.LocalModels.Resolve("").Info))
		}
		return wrap(openaicompat.NewLMStudio(opts...))
	default:
		if cfg.Model != "" {
			opts = append(opts, openaicompat.WithModelInfo(cfg.Model, openaicompat.LocalModels.Resolve("").Info))
		}
		if cfg.APIKey == "" {
			opts = append(opts, openaicompat.WithAPIKeyOptional())
		}
		opts = append([]openaicompat.Option{openaicompat.WithModels(openaicompat.LocalModels)}, opts...)
		return wrap(openaicompat.New(name, cfg.BaseURL, cfg.APIKey, opts...))
	}
}

// wrap converts a typed constructor result so a nil adapter never becomes a
// non-nil interface.
func wrap[P chatstream.Provider](p P, err error) (chatstream.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
