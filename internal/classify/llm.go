package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/omnidesk/conversation-engine/internal/llm"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

const classifyPrompt = `Classify the customer message below. Respond with JSON only, no prose:
{"sentiment":{"polarity":"positive|neutral|negative","intensity":0.0,"urgency":0.0},"intent":{"category":"complaint|purchase|support|question|cancellation|info","confidence":0.0}}

Message:
%s`

// LLMClassifier is a model-backed Classifier. It satisfies the same contract
// as the lexical baseline, so the two are interchangeable.
type LLMClassifier struct {
	client llm.Client
	model  string
}

// NewLLM creates a classifier backed by an LLM completion client.
func NewLLM(client llm.Client, model string) *LLMClassifier {
	return &LLMClassifier{client: client, model: model}
}

// Classify asks the model for a structured classification.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	start := time.Now()
	defer func() {
		metrics.ClassifierDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	}()

	resp, err := c.client.Complete(ctx, &llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: fmt.Sprintf(classifyPrompt, text)},
		},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return Neutral(), fmt.Errorf("llm classify: %w", err)
	}

	var cls Classification
	raw := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return Neutral(), fmt.Errorf("llm classify: parse response: %w", err)
	}
	if !validClassification(cls) {
		return Neutral(), fmt.Errorf("llm classify: out-of-contract response")
	}
	return cls, nil
}

// extractJSON strips any wrapping the model added around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func validClassification(cls Classification) bool {
	switch cls.Sentiment.Polarity {
	case PolarityPositive, PolarityNeutral, PolarityNegative:
	default:
		return false
	}
	switch cls.Intent.Category {
	case IntentComplaint, IntentPurchase, IntentSupport, IntentQuestion, IntentCancellation, IntentInfo:
	default:
		return false
	}
	return cls.Sentiment.Intensity >= 0 && cls.Sentiment.Intensity <= 1 &&
		cls.Sentiment.Urgency >= 0 && cls.Sentiment.Urgency <= 1 &&
		cls.Intent.Confidence >= 0 && cls.Intent.Confidence <= 1
}
