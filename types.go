package chatstream

import (
	"fmt"
	"strings"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ValidateMessages rejects messages whose role is not one of the known roles.
func ValidateMessages(messages []Message) error {
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: messages[%d]: unknown role %q", ErrConfiguration, i, m.Role)
		}
	}
	return nil
}

// BlockKind tags a ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a structured message body.
type ContentBlock struct {
	Kind BlockKind `json:"type" yaml:"type"`
	Text string    `json:"text,omitempty" yaml:"text,omitempty"`

	// Tool result fields (Kind == BlockToolResult).
	ToolUseID string `json:"tool_use_id,omitempty" yaml:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolResultBlock returns a tool result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is a single turn in the shared conversation format.
// When Blocks is nil the message content is Text.
type Message struct {
	Role   Role           `json:"role" yaml:"role"`
	Text   string         `json:"text,omitempty" yaml:"text,omitempty"`
	Blocks []ContentBlock `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// TextMessage returns a plain text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// BlockMessage returns a message with structured content.
func BlockMessage(role Role, blocks ...ContentBlock) Message {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Message{Role: role, Blocks: blocks}
}

// Flatten returns the message content as a single string. Text blocks are
// joined with newlines; every other block kind contributes an empty segment.
func (m Message) Flatten() string {
	if m.Blocks == nil {
		return m.Text
	}
	parts := make([]string, len(m.Blocks))
	for i, b := range m.Blocks {
		if b.Kind == BlockText {
			parts[i] = b.Text
		}
	}
	return strings.Join(parts, "\n")
}

// HasToolResult reports whether the message carries a tool result block.
func (m Message) HasToolResult() bool {
	for _, b := range m.Blocks {
		if b.Kind == BlockToolResult {
			return true
		}
	}
	return false
}

// EventKind tags a canonical output Event.
type EventKind string

const (
	EventText  EventKind = "text"
	EventUsage EventKind = "usage"
)

// Event is a vendor-independent streaming output event.
type Event struct {
	Kind  EventKind
	Text  string // Kind == EventText
	Usage Usage  // Kind == EventUsage
}

// TextEvent returns a text delta event.
func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }

// UsageEvent returns a token usage event.
func UsageEvent(in, out uint64) Event {
	return Event{Kind: EventUsage, Usage: Usage{InputTokens: in, OutputTokens: out}}
}

// Usage represents token usage information.
type Usage struct {
	InputTokens  uint64 `json:"input_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() uint64 { return u.InputTokens + u.OutputTokens }

// merge overwrites fields with the non-zero fields of next. Vendors either
// repeat cumulative counts or report input and output in separate events,
// and both collapse correctly this way.
func (u Usage) merge(next Usage) Usage {
	if next.InputTokens != 0 {
		u.InputTokens = next.InputTokens
	}
	if next.OutputTokens != 0 {
		u.OutputTokens = next.OutputTokens
	}
	return u
}
