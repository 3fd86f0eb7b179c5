package classify

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// IntentBucket is one ordered keyword bucket for intent detection.
type IntentBucket struct {
	Category IntentCategory
	Keywords []string
}

// Lexicon holds the keyword lists and scoring parameters for the lexical
// classifier. Lists are deployment data, not business policy; replace them
// per locale.
type Lexicon struct {
	Positive []string
	Negative []string
	Urgent   []string
	Intents  []IntentBucket

	// intensity = min(Cap, Base + matches*Step)
	Base float64
	Step float64
	Cap  float64
}

// DefaultLexicon mixes Portuguese and English keywords; the platform's
// sample traffic is Brazilian.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Positive: []string{
			"obrigado", "obrigada", "ótimo", "otimo", "excelente", "perfeito",
			"maravilhoso", "adorei", "bom",
			"thanks", "thank you", "great", "excellent", "perfect", "awesome", "love",
		},
		Negative: []string{
			"problema", "péssimo", "pessimo", "ruim", "horrível", "horrivel",
			"terrível", "terrivel", "absurdo", "raiva", "reclamação", "reclamacao",
			"problem", "issue", "terrible", "awful", "horrible", "angry",
			"frustrated", "worst", "bad", "broken",
		},
		Urgent: []string{
			"urgente", "agora", "imediatamente", "já",
			"urgent", "immediately", "asap", "right now", "emergency",
		},
		Intents: []IntentBucket{
			{Category: IntentComplaint, Keywords: []string{
				"problema", "péssimo", "pessimo", "reclamação", "reclamacao",
				"absurdo", "complaint", "problem", "issue", "broken", "not working",
			}},
			{Category: IntentPurchase, Keywords: []string{
				"comprar", "preço", "preco", "plano", "contratar",
				"buy", "price", "purchase", "plan", "upgrade",
			}},
			{Category: IntentSupport, Keywords: []string{
				"ajuda", "suporte", "erro", "não consigo", "nao consigo",
				"help", "support", "error", "can't", "cannot",
			}},
			{Category: IntentQuestion, Keywords: []string{
				"como", "quando", "onde", "qual",
				"how", "when", "where", "which", "what", "?",
			}},
			{Category: IntentCancellation, Keywords: []string{
				"cancelar", "cancelamento", "reembolso", "devolução", "devolucao",
				"cancel", "refund", "unsubscribe",
			}},
			{Category: IntentInfo, Keywords: []string{
				"informação", "informacao", "detalhes", "horário", "horario",
				"info", "information", "details", "hours",
			}},
		},
		Base: 0.5,
		Step: 0.15,
		Cap:  1.0,
	}
}

// LexicalClassifier is the deterministic keyword-scoring baseline. It is an
// algorithmic placeholder behind the Classifier contract; a model-backed
// implementation can replace it without changing callers.
type LexicalClassifier struct {
	lexicon Lexicon
}

// NewLexical creates a lexical classifier over the given lexicon.
func NewLexical(lexicon Lexicon) *LexicalClassifier {
	if lexicon.Cap == 0 {
		lexicon.Cap = 1.0
	}
	return &LexicalClassifier{lexicon: lexicon}
}

// Classify scores the text against the keyword lists.
func (c *LexicalClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	start := time.Now()
	defer func() {
		metrics.ClassifierDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
	}()

	lower := strings.ToLower(text)

	positive := countMatches(lower, c.lexicon.Positive)
	negative := countMatches(lower, c.lexicon.Negative)
	urgent := countMatches(lower, c.lexicon.Urgent)

	sentiment := Sentiment{Polarity: PolarityNeutral}
	switch {
	case negative > positive:
		sentiment.Polarity = PolarityNegative
		sentiment.Intensity = c.intensity(negative)
	case positive > negative:
		sentiment.Polarity = PolarityPositive
		sentiment.Intensity = c.intensity(positive)
	}
	if urgent > 0 {
		sentiment.Urgency = c.intensity(urgent)
	}

	intent := Intent{Category: IntentQuestion, Confidence: 0.5}
	for _, bucket := range c.lexicon.Intents {
		if matches := countMatches(lower, bucket.Keywords); matches > 0 {
			intent = Intent{
				Category:   bucket.Category,
				Confidence: c.intensity(matches),
			}
			break
		}
	}

	return Classification{Sentiment: sentiment, Intent: intent}, nil
}

func (c *LexicalClassifier) intensity(matches int) float64 {
	return math.Min(c.lexicon.Cap, c.lexicon.Base+float64(matches)*c.lexicon.Step)
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
