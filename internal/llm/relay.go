package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/prompt"
)

var (
	ErrEmptyCompletion = errors.New("model returned no choices")
	// ErrIncompleteStream means the stream ended before any chunk carried a finish reason.
	ErrIncompleteStream = errors.New("completion stream ended without a finish reason")
)

// Relay forwards an assembled prompt to the model provider. It makes exactly
// one provider call per invocation and never retries.
type Relay struct {
	client Client
	model  string
}

func NewRelay(client Client, model string) *Relay {
	return &Relay{client: client, model: model}
}

// Complete sends the prompt and blocks until the full answer is available.
func (r *Relay) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, r.request(messages))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends the prompt and hands every non-empty fragment to onChunk, in
// emission order, before the next fragment is requested. It returns nil only
// when the provider signalled the natural end of the stream with a finish
// reason; a stream that is cut off returns ErrIncompleteStream.
func (r *Relay) Stream(ctx context.Context, messages []prompt.Message, onChunk func(string) error) error {
	stream, err := r.client.CreateChatCompletionStream(ctx, r.request(messages))
	if err != nil {
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	log := logger.FromContext(ctx)
	var finish openai.FinishReason
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if finish == "" {
				return ErrIncompleteStream
			}
			log.Debug("stream finished", "finish_reason", finish)
			return nil
		}
		if err != nil {
			return fmt.Errorf("completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if fr := resp.Choices[0].FinishReason; fr != "" {
			finish = fr
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		log.Debug("stream chunk", "bytes", len(chunk))
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
}

func (r *Relay) request(messages []prompt.Message) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: providerRole(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{Model: r.model, Messages: out}
}

func providerRole(r prompt.Role) string {
	switch r {
	case prompt.RoleSystem:
		return openai.ChatMessageRoleSystem
	case prompt.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
