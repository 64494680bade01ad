package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/botdesk/internal/config"
	"github.com/comigor/botdesk/internal/prompt"
)

type mockLLM struct {
	resp openai.ChatCompletionResponse
	err  error
	seen []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.seen = append(m.seen, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return m.resp, nil
}

func (m *mockLLM) CreateChatCompletionStream(ctx context.Context, r openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("mockLLM: streaming not configured")
}

var testPrompt = []prompt.Message{
	{Role: prompt.RoleSystem, Content: "You are helpful."},
	{Role: prompt.RoleUser, Content: "hi"},
	{Role: prompt.RoleAssistant, Content: "hello"},
	{Role: prompt.RoleUser, Content: "again"},
}

func TestRelayComplete(t *testing.T) {
	m := &mockLLM{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "full answer"}}},
	}}
	r := NewRelay(m, "gpt")

	out, err := r.Complete(context.Background(), testPrompt)
	require.NoError(t, err)
	require.Equal(t, "full answer", out)

	require.Len(t, m.seen, 1)
	req := m.seen[0]
	require.Equal(t, "gpt", req.Model)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You are helpful."},
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
		{Role: openai.ChatMessageRoleAssistant, Content: "hello"},
		{Role: openai.ChatMessageRoleUser, Content: "again"},
	}, req.Messages)
}

func TestRelayComplete_Errors(t *testing.T) {
	r := NewRelay(&mockLLM{err: errors.New("quota exceeded")}, "gpt")
	_, err := r.Complete(context.Background(), testPrompt)
	require.ErrorContains(t, err, "quota exceeded")

	r = NewRelay(&mockLLM{}, "gpt")
	_, err = r.Complete(context.Background(), testPrompt)
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func chunkLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "m",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

// finishLine is the closing chunk: empty delta plus a finish reason.
func finishLine(reason string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "m",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{}, "finish_reason": reason}},
	})
	return "data: " + string(b) + "\n\n"
}

// sseProvider serves an OpenAI-style event stream made of the given lines.
func sseProvider(t *testing.T, lines ...string) (*httptest.Server, chan openai.ChatCompletionRequest) {
	t.Helper()
	seen := make(chan openai.ChatCompletionRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen <- req

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		f := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprint(w, l)
			f.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestRelayStream(t *testing.T) {
	srv, seen := sseProvider(t,
		chunkLine(""), // role-only delta, skipped
		chunkLine("Hel"),
		chunkLine("lo"),
		finishLine("stop"),
		"data: [DONE]\n\n",
	)
	r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

	var chunks []string
	err := r.Stream(context.Background(), testPrompt, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, chunks)

	require.Len(t, seen, 1)
	req := <-seen
	require.True(t, req.Stream)
	require.Equal(t, "m", req.Model)
	require.Len(t, req.Messages, len(testPrompt))
}

func TestRelayStream_MidStreamError(t *testing.T) {
	srv, _ := sseProvider(t,
		chunkLine("Hel"),
		chunkLine("lo"),
		`data: {"error":{"message":"quota exceeded","type":"rate_limit_error"}}`+"\n\n",
	)
	r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

	var chunks []string
	err := r.Stream(context.Background(), testPrompt, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.ErrorContains(t, err, "quota exceeded")
	require.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestRelayStream_EndsWithoutFinishReason(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"connection closed", []string{chunkLine("Hel")}},
		{"done without finish reason", []string{chunkLine("Hel"), "data: [DONE]\n\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := sseProvider(t, tt.lines...)
			r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

			var chunks []string
			err := r.Stream(context.Background(), testPrompt, func(c string) error {
				chunks = append(chunks, c)
				return nil
			})
			require.ErrorIs(t, err, ErrIncompleteStream)
			require.Equal(t, []string{"Hel"}, chunks)
		})
	}
}

func TestRelayStream_FinishReasonOnContentChunk(t *testing.T) {
	b, _ := json.Marshal(map[string]any{
		"id": "chatcmpl-1", "object": "chat.completion.chunk", "created": 1, "model": "m",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "Hi"}, "finish_reason": "stop"}},
	})
	srv, _ := sseProvider(t, "data: "+string(b)+"\n\n", "data: [DONE]\n\n")
	r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

	var chunks []string
	err := r.Stream(context.Background(), testPrompt, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hi"}, chunks)
}

func TestRelayStream_CallbackErrorStops(t *testing.T) {
	srv, _ := sseProvider(t, chunkLine("a"), chunkLine("b"), "data: [DONE]\n\n")
	r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

	gone := errors.New("client gone")
	calls := 0
	err := r.Stream(context.Background(), testPrompt, func(string) error {
		calls++
		return gone
	})
	require.ErrorIs(t, err, gone)
	require.Equal(t, 1, calls)
}

func TestRelayStream_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}))
	t.Cleanup(srv.Close)
	r := NewRelay(NewClient(config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}), "m")

	err := r.Stream(context.Background(), testPrompt, func(string) error { return nil })
	require.ErrorContains(t, err, "slow down")
}
