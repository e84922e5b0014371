// Package gateway wraps the hosted language-model API behind a small
// text-generation interface so pipeline stages never touch HTTP directly.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Message mirrors OpenAI-style chat message payloads.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is the capability pipeline stages depend on: an ordered prompt
// in, generated text out.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Error describes a failed language-model call. Callers match it with
// errors.As to distinguish gateway failures from local ones.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	// Transport failures carry no HTTP status; skip the status segment.
	if e.StatusCode == 0 {
		if e.Message != "" {
			return "gateway error: " + e.Message
		}
		return "gateway error"
	}
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("gateway error (%d, %s): %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("gateway error (%d): %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("gateway error (%d, %s)", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("gateway error (%d)", e.StatusCode)
	}
}

type apiErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiErrorPayload `json:"error,omitempty"`
}

func buildAPIError(statusCode int, body []byte) error {
	if len(body) > 0 {
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			return &Error{
				StatusCode: statusCode,
				Code:       envelope.Error.Code,
				Message:    strings.TrimSpace(envelope.Error.Message),
			}
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return &Error{StatusCode: statusCode, Message: snippet}
}

// LastUserContent returns the content of the final user-role message, or
// the final message of any role when no user turn exists.
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}
