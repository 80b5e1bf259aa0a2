package providers

import "lumen-hq/relay/pkg/oai"

// NormalizeMessages returns a cleaned copy of the conversation: messages
// with no usable content are dropped, and consecutive plain-text messages
// from the same role are merged into one. Tool-call messages and tool
// results are never merged; their identity carries protocol state.
//
// The operation is idempotent: normalizing an already-normalized
// conversation returns it unchanged.
func NormalizeMessages(messages []oai.Message) []oai.Message {
	out := make([]oai.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ContentEmpty() && msg.ToolCallID == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		if last := len(out) - 1; last >= 0 && mergeable(out[last], msg) {
			merged := out[last]
			merged.Content = merged.ContentText() + "\n\n" + msg.ContentText()
			out[last] = merged
			continue
		}
		out = append(out, msg)
	}
	return out
}

// mergeable reports whether b can be folded into a: same role, both plain
// text, and neither carries tool-call state.
func mergeable(a, b oai.Message) bool {
	if a.Role != b.Role {
		return false
	}
	if len(a.ToolCalls) > 0 || len(b.ToolCalls) > 0 {
		return false
	}
	if a.ToolCallID != "" || b.ToolCallID != "" {
		return false
	}
	_, aText := a.Content.(string)
	_, bText := b.Content.(string)
	return aText && bText
}
