package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func openAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		resp := openai.ChatCompletionResponse{
			ID:      "chatcmpl-123",
			Object:  "chat.completion",
			Created: 1677652288,
			Model:   "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Index: 0,
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: content,
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestOpenAI(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func TestOpenAIProvider_Match_Success(t *testing.T) {
	server := openAIServer(t, "doc-2")
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	req := MatchRequest{
		ClaimText: "Drug X reduced mortality",
		Candidates: []CandidateRef{
			{ID: "doc-1", Name: "Unrelated review"},
			{ID: "doc-2", Name: "Drug X outcomes trial"},
		},
	}

	resp, err := provider.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if resp.DocumentID != "doc-2" {
		t.Errorf("Expected doc-2, got %q", resp.DocumentID)
	}
	if id, ok := ValidateMatch(resp, req.Candidates); !ok || id != "doc-2" {
		t.Errorf("Expected doc-2 to validate, got %q %v", id, ok)
	}
}

func TestOpenAIProvider_Match_None(t *testing.T) {
	server := openAIServer(t, "NONE")
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	_, err := provider.Match(context.Background(), MatchRequest{
		ClaimText:  "Drug X reduced mortality",
		Candidates: []CandidateRef{{ID: "doc-1", Name: "Unrelated review"}},
	})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Expected ErrNoMatch, got %v", err)
	}
}

func TestOpenAIProvider_Match_NoCandidates(t *testing.T) {
	provider := newTestOpenAI(t, "http://127.0.0.1:1")

	_, err := provider.Match(context.Background(), MatchRequest{ClaimText: "anything"})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Expected ErrNoMatch without calling the API, got %v", err)
	}
}

func TestOpenAIProvider_Rate_Success(t *testing.T) {
	server := openAIServer(t, "RATING: 8\nREASONING: Large randomized trial directly addresses the endpoint.")
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	resp, err := provider.Rate(context.Background(), RateRequest{
		ClaimText:     "Drug X reduced mortality",
		DocumentNames: []string{"Drug X outcomes trial"},
	})
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if resp.Rating != 8 {
		t.Errorf("Expected rating 8, got %d", resp.Rating)
	}
	if !strings.HasPrefix(resp.Reasoning, "Large randomized trial") {
		t.Errorf("Unexpected reasoning: %q", resp.Reasoning)
	}
}

func TestOpenAIProvider_Rate_OutOfRange(t *testing.T) {
	server := openAIServer(t, "RATING: 42")
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	_, err := provider.Rate(context.Background(), RateRequest{ClaimText: "x"})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	_, err := provider.Rate(context.Background(), RateRequest{ClaimText: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOpenAIProvider_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"invalid": json`))
	}))
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	_, err := provider.Match(context.Background(), MatchRequest{
		ClaimText:  "x",
		Candidates: []CandidateRef{{ID: "doc-1", Name: "A"}},
	})
	if err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestOpenAIProvider_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := provider.Rate(ctx, RateRequest{ClaimText: "x"})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider := newTestOpenAI(t, server.URL)

	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}
