package chatstream

import "fmt"

// EmptySystemPrompt decides what happens to an empty system prompt.
// The zero value is deliberately invalid: every adapter states its policy.
type EmptySystemPrompt int

const (
	// EmptySystemPromptOmit sends no system entry when the prompt is empty.
	EmptySystemPromptOmit EmptySystemPrompt = iota + 1
	// EmptySystemPromptSend sends an empty-string system entry.
	EmptySystemPromptSend
)

func (p EmptySystemPrompt) String() string {
	switch p {
	case EmptySystemPromptOmit:
		return "omit"
	case EmptySystemPromptSend:
		return "send"
	default:
		return "unset"
	}
}

// ParseEmptySystemPrompt parses "omit" or "send".
func ParseEmptySystemPrompt(s string) (EmptySystemPrompt, error) {
	switch s {
	case "omit":
		return EmptySystemPromptOmit, nil
	case "send":
		return EmptySystemPromptSend, nil
	default:
		return 0, fmt.Errorf("%w: empty_system_prompt must be \"omit\" or \"send\", got %q", ErrConfiguration, s)
	}
}

// SystemPlacement selects where the system prompt goes in a vendor request.
type SystemPlacement int

const (
	// SystemInline puts the system prompt first in the message array.
	SystemInline SystemPlacement = iota
	// SystemField returns the system prompt separately, for vendors that take
	// it as a top-level request field.
	SystemField
)

// CommandResult is the outcome of the last external command, injected into
// messages that carry tool results.
type CommandResult struct {
	Success bool
	Output  string
}

// Prefix returns the text block placed before the message content.
func (c CommandResult) Prefix() string {
	status := "FAILED"
	if c.Success {
		status = "SUCCESS"
	}
	return "Command result: " + status + "\nOutput: " + c.Output + "\n\n"
}

// TranslateOptions carries the per-vendor translation policy.
type TranslateOptions struct {
	EmptySystemPrompt EmptySystemPrompt
	SystemPlacement   SystemPlacement

	// AssistantRole is the vendor's name for the assistant role.
	// Defaults to "assistant".
	AssistantRole string

	// CommandResult, when set, prefixes every message that carries a tool
	// result block.
	CommandResult *CommandResult
}

// Validate rejects options without an explicit empty system prompt policy.
func (o TranslateOptions) Validate() error {
	switch o.EmptySystemPrompt {
	case EmptySystemPromptOmit, EmptySystemPromptSend:
		return nil
	default:
		return fmt.Errorf("%w: empty system prompt policy is not set", ErrConfiguration)
	}
}

// VendorMessage is one entry of a vendor message array.
type VendorMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Translation is a conversation in vendor shape. Exactly one representation
// of the system prompt is present: either the first message, or System with
// SendSystem set.
type Translation struct {
	System     string
	SendSystem bool
	Messages   []VendorMessage
}

// Translate converts the shared conversation into vendor messages.
func Translate(systemPrompt string, messages []Message, opts TranslateOptions) Translation {
	assistant := opts.AssistantRole
	if assistant == "" {
		assistant = string(RoleAssistant)
	}

	var t Translation
	sendSystem := systemPrompt != "" || opts.EmptySystemPrompt == EmptySystemPromptSend

	t.Messages = make([]VendorMessage, 0, len(messages)+1)
	if sendSystem {
		switch opts.SystemPlacement {
		case SystemField:
			t.System = systemPrompt
			t.SendSystem = true
		default:
			t.Messages = append(t.Messages, VendorMessage{Role: string(RoleSystem), Content: systemPrompt})
		}
	}

	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = assistant
		}

		content := m.Flatten()
		if opts.CommandResult != nil && m.HasToolResult() {
			content = opts.CommandResult.Prefix() + content
		}

		t.Messages = append(t.Messages, VendorMessage{Role: role, Content: content})
	}

	return t
}
