package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

func timeAt(hour int) time.Time {
	return time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
}

type nopAdapter struct{}

func (nopAdapter) Send(ctx context.Context, msg *model.Message) (Ack, error) {
	return Ack{ProviderMessageID: "x"}, nil
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry(nil, logger.NewNop())

	cases := []struct {
		name string
		ch   model.Channel
	}{
		{"missing id", model.Channel{Kind: model.ChannelChat}},
		{"unknown kind", model.Channel{ID: "c1", Kind: "telegraph"}},
		{"whatsapp without token", model.Channel{ID: "c1", Kind: model.ChannelWhatsApp, WebhookURL: "https://x"}},
		{"whatsapp without webhook", model.Channel{ID: "c1", Kind: model.ChannelWhatsApp, Token: "t"}},
		{"sms without token", model.Channel{ID: "c1", Kind: model.ChannelSMS, WebhookURL: "https://x"}},
		{"social without token", model.Channel{ID: "c1", Kind: model.ChannelSocial}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.ch, nopAdapter{})
			var invalid *InvalidChannelConfigError
			assert.ErrorAs(t, err, &invalid)
		})
	}

	assert.Error(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelChat}, nil))
	assert.NoError(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelChat, Enabled: true}, nopAdapter{}))
}

func TestRegisterDefaultsIntegrationStatus(t *testing.T) {
	r := NewRegistry(nil, logger.NewNop())
	require.NoError(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelEmail, Enabled: true}, nopAdapter{}))

	ch, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationConnected, ch.IntegrationStatus)
}

func TestAdapterForDisabledChannel(t *testing.T) {
	r := NewRegistry(nil, logger.NewNop())
	require.NoError(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelChat}, nopAdapter{}))

	_, err := r.AdapterFor("c1")
	assert.ErrorIs(t, err, ErrChannelDisabled)

	_, err = r.AdapterFor("missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestRecordSendTracksIntegrationHealth(t *testing.T) {
	r := NewRegistry(nil, logger.NewNop())
	require.NoError(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelChat, Enabled: true}, nopAdapter{}))

	r.RecordSend("c1", false)
	ch, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationError, ch.IntegrationStatus)

	r.RecordSend("c1", true)
	ch, err = r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationConnected, ch.IntegrationStatus)
	assert.Equal(t, 1, ch.Metrics.Sent)
}

func TestReconnect(t *testing.T) {
	r := NewRegistry(nil, logger.NewNop())
	require.NoError(t, r.Register(model.Channel{ID: "c1", Kind: model.ChannelChat, Enabled: true}, nopAdapter{}))
	r.RecordSend("c1", false)

	require.NoError(t, r.Reconnect(context.Background(), "c1"))
	ch, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationConnected, ch.IntegrationStatus)

	assert.ErrorIs(t, r.Reconnect(context.Background(), "missing"), ErrChannelNotFound)
}

func TestBusinessHours(t *testing.T) {
	always := model.BusinessHours{}
	assert.True(t, always.Contains(timeAt(3)))

	day := model.BusinessHours{StartHour: 9, EndHour: 18}
	assert.True(t, day.Contains(timeAt(9)))
	assert.True(t, day.Contains(timeAt(17)))
	assert.False(t, day.Contains(timeAt(18)))
	assert.False(t, day.Contains(timeAt(3)))

	night := model.BusinessHours{StartHour: 22, EndHour: 6}
	assert.True(t, night.Contains(timeAt(23)))
	assert.True(t, night.Contains(timeAt(2)))
	assert.False(t, night.Contains(timeAt(12)))
}
