package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalNegativeComplaint(t *testing.T) {
	c := NewLexical(DefaultLexicon())

	cls, err := c.Classify(context.Background(), "Isso é um problema, péssimo atendimento")
	require.NoError(t, err)

	assert.Equal(t, PolarityNegative, cls.Sentiment.Polarity)
	assert.Greater(t, cls.Sentiment.Intensity, 0.7)
	assert.Equal(t, IntentComplaint, cls.Intent.Category)
}

func TestLexicalPositive(t *testing.T) {
	c := NewLexical(DefaultLexicon())

	cls, err := c.Classify(context.Background(), "Obrigado, atendimento excelente!")
	require.NoError(t, err)

	assert.Equal(t, PolarityPositive, cls.Sentiment.Polarity)
	assert.Greater(t, cls.Sentiment.Intensity, 0.5)
}

func TestLexicalNeutralDefaultsToQuestion(t *testing.T) {
	c := NewLexical(DefaultLexicon())

	cls, err := c.Classify(context.Background(), "segue em anexo o documento solicitado")
	require.NoError(t, err)

	assert.Equal(t, PolarityNeutral, cls.Sentiment.Polarity)
	assert.Zero(t, cls.Sentiment.Intensity)
	assert.Equal(t, IntentQuestion, cls.Intent.Category)
	assert.Equal(t, 0.5, cls.Intent.Confidence)
}

func TestLexicalUrgency(t *testing.T) {
	c := NewLexical(DefaultLexicon())

	cls, err := c.Classify(context.Background(), "preciso de ajuda urgente agora")
	require.NoError(t, err)

	assert.Greater(t, cls.Sentiment.Urgency, 0.7)
	assert.Equal(t, IntentSupport, cls.Intent.Category)
}

func TestLexicalIntensityCapped(t *testing.T) {
	c := NewLexical(Lexicon{
		Negative: []string{"a", "b", "c", "d", "e", "f"},
		Base:     0.5,
		Step:     0.15,
		Cap:      1.0,
	})

	cls, err := c.Classify(context.Background(), "a b c d e f")
	require.NoError(t, err)

	assert.Equal(t, 1.0, cls.Sentiment.Intensity)
}

func TestLexicalIntentBucketOrder(t *testing.T) {
	c := NewLexical(DefaultLexicon())

	// Matches both complaint and cancellation keywords; the first bucket
	// wins.
	cls, err := c.Classify(context.Background(), "problema com a cobrança, quero cancelar")
	require.NoError(t, err)

	assert.Equal(t, IntentComplaint, cls.Intent.Category)
}
