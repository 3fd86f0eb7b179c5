package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowClassifier struct {
	delay time.Duration
	cls   Classification
	err   error
}

func (s *slowClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	select {
	case <-time.After(s.delay):
		return s.cls, s.err
	case <-ctx.Done():
		return Classification{}, ctx.Err()
	}
}

func TestTimeoutFallsBackToNeutral(t *testing.T) {
	inner := &slowClassifier{
		delay: 200 * time.Millisecond,
		cls: Classification{
			Sentiment: Sentiment{Polarity: PolarityNegative, Intensity: 0.9},
		},
	}
	c := WithTimeout(inner, 20*time.Millisecond)

	cls, err := c.Classify(context.Background(), "péssimo")
	require.NoError(t, err)
	assert.Equal(t, Neutral(), cls)
}

func TestTimeoutPassesThroughFastResult(t *testing.T) {
	want := Classification{
		Sentiment: Sentiment{Polarity: PolarityPositive, Intensity: 0.8},
		Intent:    Intent{Category: IntentPurchase, Confidence: 0.65},
	}
	c := WithTimeout(&slowClassifier{delay: time.Millisecond, cls: want}, time.Second)

	cls, err := c.Classify(context.Background(), "quero comprar")
	require.NoError(t, err)
	assert.Equal(t, want, cls)
}

func TestTimeoutAbsorbsInnerError(t *testing.T) {
	c := WithTimeout(&slowClassifier{err: errors.New("model unavailable")}, time.Second)

	cls, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Neutral(), cls)
}
