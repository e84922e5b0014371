package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/castmind/castmind/config"
	"github.com/castmind/castmind/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *gateway.OpenAIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return gateway.NewOpenAIClient(config.GatewayConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, nil)
}

func TestGenerateReturnsFirstChoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var payload struct {
			Model    string            `json:"model"`
			Messages []gateway.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Model != "test-model" || len(payload.Messages) != 2 {
			t.Errorf("unexpected payload: %+v", payload)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "generated text"}},
			},
		})
	})

	text, err := client.Generate(context.Background(), []gateway.Message{
		{Role: gateway.RoleSystem, Content: "voice"},
		{Role: gateway.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if text != "generated text" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limit","message":"slow down"}}`))
	})

	_, err := client.Generate(context.Background(), []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}

	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("error %v is not a gateway error", err)
	}
	if gatewayErr.StatusCode != http.StatusTooManyRequests || gatewayErr.Code != "rate_limit" {
		t.Fatalf("unexpected gateway error: %+v", gatewayErr)
	}
}

func TestGenerateRejectsEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Generate(context.Background(), []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}})

	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !strings.Contains(gatewayErr.Message, "no choices") {
		t.Fatalf("unexpected message %q", gatewayErr.Message)
	}
}

func TestGenerateTransportFailureOmitsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := gateway.NewOpenAIClient(config.GatewayConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, nil)

	_, err := client.Generate(context.Background(), []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error against closed server")
	}

	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gatewayErr.StatusCode != 0 {
		t.Fatalf("transport failure should carry no status, got %d", gatewayErr.StatusCode)
	}
	if strings.Contains(err.Error(), "(0)") {
		t.Fatalf("error text should omit the zero status: %q", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "gateway error: ") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestErrorTextByStatus(t *testing.T) {
	cases := []struct {
		err  gateway.Error
		want string
	}{
		{gateway.Error{Message: "connection refused"}, "gateway error: connection refused"},
		{gateway.Error{}, "gateway error"},
		{gateway.Error{StatusCode: 429, Code: "rate_limit", Message: "slow down"}, "gateway error (429, rate_limit): slow down"},
		{gateway.Error{StatusCode: 502, Message: "bad gateway"}, "gateway error (502): bad gateway"},
		{gateway.Error{StatusCode: 500}, "gateway error (500)"},
	}

	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	})

	if _, err := client.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestMockEchoesLastUserMessage(t *testing.T) {
	text, err := gateway.Mock{}.Generate(context.Background(), []gateway.Message{
		{Role: gateway.RoleSystem, Content: "ignored"},
		{Role: gateway.RoleUser, Content: "What makes a good movie dialogue?"},
	})
	if err != nil {
		t.Fatalf("mock returned error: %v", err)
	}
	if text != "[MOCK] What makes a good movie dialogue?" {
		t.Fatalf("unexpected echo %q", text)
	}
}

func TestMockTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 100)
	text, err := gateway.Mock{}.Generate(context.Background(), []gateway.Message{
		{Role: gateway.RoleUser, Content: long},
	})
	if err != nil {
		t.Fatalf("mock returned error: %v", err)
	}
	if text != "[MOCK] "+strings.Repeat("x", 60) {
		t.Fatalf("expected echo truncated to 60 runes, got %q", text)
	}
}

func TestLastUserContentFallsBackToFinalMessage(t *testing.T) {
	messages := []gateway.Message{
		{Role: gateway.RoleSystem, Content: "first"},
		{Role: gateway.RoleSystem, Content: "second"},
	}
	if got := gateway.LastUserContent(messages); got != "second" {
		t.Fatalf("expected fallback to final message, got %q", got)
	}

	if got := gateway.LastUserContent(nil); got != "" {
		t.Fatalf("expected empty content for empty prompt, got %q", got)
	}
}
