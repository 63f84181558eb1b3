package chatstream

import "context"

// Provider is the interface that vendor adapters implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "mistral", "gemini").
	Name() string

	// Model returns the model the adapter will request, resolved against its
	// model table. The info is never empty.
	Model() Model

	// CreateMessage sends the conversation and returns the reply as a stream.
	// Configuration and transport errors are returned before any event.
	CreateMessage(ctx context.Context, systemPrompt string, messages []Message) (*Stream, error)
}

// CommandResultUpdater is implemented by adapters that inject the last
// external command result into tool result messages.
type CommandResultUpdater interface {
	UpdateLastCommandResult(success bool, output string)
}
