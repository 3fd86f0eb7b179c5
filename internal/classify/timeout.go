package classify

import (
	"context"
	"time"

	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// timeoutClassifier bounds the latency of an inner classifier. On timeout it
// yields the neutral classification so message processing is never delayed
// by a slow classifier.
type timeoutClassifier struct {
	inner   Classifier
	timeout time.Duration
}

// WithTimeout wraps a classifier with a latency bound and a neutral
// fallback.
func WithTimeout(inner Classifier, timeout time.Duration) Classifier {
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &timeoutClassifier{inner: inner, timeout: timeout}
}

type result struct {
	cls Classification
	err error
}

func (c *timeoutClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		cls, err := c.inner.Classify(ctx, text)
		done <- result{cls: cls, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Neutral(), nil
		}
		return r.cls, nil
	case <-ctx.Done():
		metrics.ClassifierTimeoutsTotal.Inc()
		return Neutral(), nil
	}
}
