package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/castmind/castmind/config"
)

const defaultHTTPTimeout = 30 * time.Second

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      httpDoer
	logger      *zap.SugaredLogger
}

// NewOpenAIClient constructs a client from the gateway section of the
// configuration.
func NewOpenAIClient(cfg config.GatewayConfig, logger *zap.SugaredLogger) *OpenAIClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	return &OpenAIClient{
		baseURL:     base,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		logger:      logger,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type completionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Choices []completionChoice `json:"choices"`
	Error   *apiErrorPayload   `json:"error,omitempty"`
}

// Generate performs one chat-completion round trip and returns the text
// of the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("gateway: prompt is empty")
	}

	payload := completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("call completion api: %v", err)}
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", &Error{StatusCode: response.StatusCode, Message: fmt.Sprintf("read completion response: %v", err)}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", buildAPIError(response.StatusCode, respBody)
	}

	var apiResp completionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &Error{StatusCode: response.StatusCode, Message: fmt.Sprintf("decode completion response: %v", err)}
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", &Error{StatusCode: response.StatusCode, Code: apiResp.Error.Code, Message: apiResp.Error.Message}
	}

	if len(apiResp.Choices) == 0 {
		return "", &Error{StatusCode: response.StatusCode, Message: "completion response contained no choices"}
	}

	text := apiResp.Choices[0].Message.Content
	if c.logger != nil {
		c.logger.Debugw("completion finished", "model", c.model, "prompt_messages", len(messages), "reply_len", len(text))
	}

	return text, nil
}
