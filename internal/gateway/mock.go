package gateway

import "context"

// Mock is a deterministic stand-in for the hosted model: it echoes the
// last user message back with a fixed prefix. It backs MOCK_LLM=true
// operation and every pipeline test.
type Mock struct{}

const (
	mockPrefix    = "[MOCK] "
	mockEchoLimit = 60
)

func (Mock) Generate(_ context.Context, messages []Message) (string, error) {
	return mockPrefix + truncateRunes(LastUserContent(messages), mockEchoLimit), nil
}

func truncateRunes(input string, max int) string {
	runes := []rune(input)
	if len(runes) <= max {
		return input
	}
	return string(runes[:max])
}
