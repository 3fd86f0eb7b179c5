package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/omnidesk/conversation-engine/internal/llm"
	"github.com/omnidesk/conversation-engine/internal/model"
)

const responderSystemPrompt = "You are a customer support assistant. Reply to the customer's last message briefly and helpfully, in the customer's language. If the request needs a human, say a teammate will follow up."

// LLMResponder generates auto-responses with an LLM completion client. It
// is used when a channel has AI hand-off enabled.
type LLMResponder struct {
	client llm.Client
	model  string
}

// NewLLMResponder creates a responder over the given client.
func NewLLMResponder(client llm.Client, model string) *LLMResponder {
	return &LLMResponder{client: client, model: model}
}

// Reply implements Responder.
func (r *LLMResponder) Reply(ctx context.Context, conv *model.Conversation, history []*model.Message) (string, error) {
	// Most recent context only; channels cap reply latency hard.
	start := 0
	if len(history) > 10 {
		start = len(history) - 10
	}
	var transcript strings.Builder
	for _, m := range history[start:] {
		text := m.Text()
		if text == "" {
			continue
		}
		speaker := "Customer"
		if m.Sender.Kind != model.SenderCustomer {
			speaker = "Support"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", speaker, text)
	}

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: responderSystemPrompt + "\n\nTranscript:\n" + transcript.String()},
		},
		MaxTokens:   512,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("auto-response completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
