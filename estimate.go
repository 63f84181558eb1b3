package chatstream

// EstimateTokens provides a rough token count estimate for a request.
// Uses the approximation: ~4 chars per token + overhead per message.
func EstimateTokens(systemPrompt string, messages []Message) int64 {
	total := int64(len(systemPrompt)) / 4
	for _, m := range messages {
		// ~4 chars per token
		total += int64(len(m.Flatten())) / 4
		// overhead per message (role, formatting)
		total += 4
	}
	// base overhead for the request
	total += 3
	return total
}
