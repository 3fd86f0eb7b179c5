// Package classify produces sentiment and intent signals from message text.
package classify

import (
	"context"
)

// Polarity is the direction of sentiment.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNeutral  Polarity = "neutral"
	PolarityNegative Polarity = "negative"
)

// IntentCategory buckets what the customer wants.
type IntentCategory string

const (
	IntentComplaint    IntentCategory = "complaint"
	IntentPurchase     IntentCategory = "purchase"
	IntentSupport      IntentCategory = "support"
	IntentQuestion     IntentCategory = "question"
	IntentCancellation IntentCategory = "cancellation"
	IntentInfo         IntentCategory = "info"
)

// Sentiment is the emotional reading of a text.
type Sentiment struct {
	Polarity  Polarity `json:"polarity"`
	Intensity float64  `json:"intensity"`
	Urgency   float64  `json:"urgency"`
}

// Intent is the detected purpose of a text.
type Intent struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"`
}

// Classification is the combined output of a classifier.
type Classification struct {
	Sentiment Sentiment `json:"sentiment"`
	Intent    Intent    `json:"intent"`
}

// Neutral is the fallback classification used when classification fails or
// times out. It never triggers escalation.
func Neutral() Classification {
	return Classification{
		Sentiment: Sentiment{Polarity: PolarityNeutral, Intensity: 0, Urgency: 0},
		Intent:    Intent{Category: IntentQuestion, Confidence: 0.5},
	}
}

// Classifier turns message text into sentiment and intent signals.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}
