package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/conversation-engine/internal/model"
)

// WebhookAdapter delivers messages by POSTing them to the provider's
// webhook URL. It covers every channel whose provider accepts an HTTP
// callback, which is all of them in practice.
type WebhookAdapter struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookAdapter creates an adapter for one channel.
func NewWebhookAdapter(url, token string) *WebhookAdapter {
	return &WebhookAdapter{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookAck struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Send implements Adapter.
func (a *WebhookAdapter) Send(ctx context.Context, msg *model.Message) (Ack, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Ack{}, Permanent(fmt.Errorf("marshal message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Network trouble and timeouts are worth retrying.
		return Ack{}, Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		ack := Ack{Timestamp: time.Now()}
		var wa webhookAck
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&wa); err == nil && wa.MessageID != "" {
			ack.ProviderMessageID = wa.MessageID
			if !wa.Timestamp.IsZero() {
				ack.Timestamp = wa.Timestamp
			}
		}
		if ack.ProviderMessageID == "" {
			ack.ProviderMessageID = uuid.NewString()
		}
		return ack, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Ack{}, Transient(fmt.Errorf("provider returned %d", resp.StatusCode))
	default:
		return Ack{}, Permanent(fmt.Errorf("provider returned %d", resp.StatusCode))
	}
}
