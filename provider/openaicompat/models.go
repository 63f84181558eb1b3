package openaicompat

import "github.com/ineyio/chatstream"

// MistralModels is the Mistral model table. Default is mistral-small.
var MistralModels = chatstream.ModelTable{
	Default: "mistral-small",
	Models: map[string]chatstream.ModelInfo{
		"mistral-tiny": {
			MaxTokens:     4096,
			ContextWindow: 32768,
			InputPrice:    0.14,
			OutputPrice:   0.42,
			Description:   "Mistral Tiny",
		},
		"mistral-small": {
			MaxTokens:     4096,
			ContextWindow: 32768,
			InputPrice:    0.2,
			OutputPrice:   0.6,
			Description:   "Mistral Small",
		},
		"mistral-medium": {
			MaxTokens:     4096,
			ContextWindow: 32768,
			InputPrice:    0.6,
			OutputPrice:   1.8,
			Description:   "Mistral Medium",
		},
		"mistral-large-latest": {
			MaxTokens:     4096,
			ContextWindow: 32768,
			InputPrice:    2.0,
			OutputPrice:   6.0,
			Description:   "Mistral Large",
		},
	},
}

// OpenAIModels is the OpenAI model table. Default is gpt-4o.
var OpenAIModels = chatstream.ModelTable{
	Default: "gpt-4o",
	Models: map[string]chatstream.ModelInfo{
		"o1-preview": {
			MaxTokens:     32768,
			ContextWindow: 128000,
			InputPrice:    15,
			OutputPrice:   60,
		},
		"o1-mini": {
			MaxTokens:     65536,
			ContextWindow: 128000,
			InputPrice:    3,
			OutputPrice:   12,
		},
		"gpt-4o": {
			MaxTokens:      4096,
			ContextWindow:  128000,
			InputPrice:     5,
			OutputPrice:    15,
			SupportsVision: true,
			SupportsTools:  true,
			SupportsJSON:   true,
		},
		"gpt-4o-mini": {
			MaxTokens:      16384,
			ContextWindow:  128000,
			InputPrice:     0.15,
			OutputPrice:    0.6,
			SupportsVision: true,
			SupportsTools:  true,
			SupportsJSON:   true,
		},
	},
}

// OpenRouterModels is the OpenRouter model table.
var OpenRouterModels = chatstream.ModelTable{
	Default: "anthropic/claude-3.5-sonnet:beta",
	Models: map[string]chatstream.ModelInfo{
		"anthropic/claude-3.5-sonnet:beta": {
			MaxTokens:      8192,
			ContextWindow:  200000,
			InputPrice:     3,
			OutputPrice:    15,
			SupportsVision: true,
			SupportsTools:  true,
		},
	},
}

// LocalModels is a permissive table for local servers that serve whatever
// model is loaded. Unknown ids fall back to "local-model".
var LocalModels = chatstream.ModelTable{
	Default: "local-model",
	Models: map[string]chatstream.ModelInfo{
		"local-model": {ContextWindow: 128000},
	},
}
