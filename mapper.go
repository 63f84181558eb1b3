package chatstream

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Path addresses a field inside a decoded event. Numeric segments index
// into arrays.
type Path []string

// ParsePath splits a dotted path such as "choices.0.delta.content".
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

func (p Path) String() string { return strings.Join(p, ".") }

// Lookup walks v along the path. Returns false when any segment is missing
// or has the wrong shape.
func (p Path) Lookup(v any) (any, bool) {
	cur := v
	for _, seg := range p {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Mapper converts decoded vendor events into canonical events using field
// paths. One Mapper value describes one vendor's stream schema.
type Mapper struct {
	// TextPath locates the incremental text of an event.
	TextPath Path

	// UsagePath locates the object holding token counts. An empty path means
	// the event itself.
	UsagePath Path

	// UsageWhen, when set, must resolve to a truthy value for usage to be
	// read. Used by vendors that put counts on the root of the final event.
	UsageWhen Path

	InputTokensField  string
	OutputTokensField string
}

// Map returns the canonical events carried by one decoded event: a text
// event, a usage event, both, or neither.
func (m Mapper) Map(event map[string]any) []Event {
	var events []Event

	if len(m.TextPath) > 0 {
		if v, ok := m.TextPath.Lookup(event); ok {
			if text, ok := v.(string); ok && text != "" {
				events = append(events, TextEvent(text))
			}
		}
	}

	if usage, ok := m.usage(event); ok {
		events = append(events, Event{Kind: EventUsage, Usage: usage})
	}

	return events
}

func (m Mapper) usage(event map[string]any) (Usage, bool) {
	if len(m.UsagePath) == 0 && len(m.UsageWhen) == 0 {
		return Usage{}, false
	}

	if len(m.UsageWhen) > 0 {
		v, ok := m.UsageWhen.Lookup(event)
		if !ok || !truthy(v) {
			return Usage{}, false
		}
	}

	var obj map[string]any = event
	if len(m.UsagePath) > 0 {
		v, ok := m.UsagePath.Lookup(event)
		if !ok {
			return Usage{}, false
		}
		if obj, ok = v.(map[string]any); !ok {
			return Usage{}, false
		}
	}

	return Usage{
		InputTokens:  toUint(obj[m.InputTokensField]),
		OutputTokens: toUint(obj[m.OutputTokensField]),
	}, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		return x.String() != "0"
	default:
		return v != nil
	}
}

// toUint converts a decoded number to a token count. Anything missing,
// negative or non-numeric counts as zero.
func toUint(v any) uint64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return n
		}
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		return x
	default:
		return 0
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint64(f)
}
