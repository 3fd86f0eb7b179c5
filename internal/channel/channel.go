// Package channel holds channel configuration and the adapter boundary. A
// ChannelAdapter is the only component allowed to perform outbound network
// I/O for a channel.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omnidesk/conversation-engine/internal/model"
)

var (
	// ErrChannelNotFound is returned when the channel id is unknown.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrChannelDisabled is returned when sending on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")
)

// InvalidChannelConfigError reports a channel registration that fails
// validation.
type InvalidChannelConfigError struct {
	ChannelID string
	Reason    string
}

func (e *InvalidChannelConfigError) Error() string {
	return fmt.Sprintf("invalid channel config for %q: %s", e.ChannelID, e.Reason)
}

// Ack is the acknowledgment a channel returns for a dispatched message.
type Ack struct {
	ProviderMessageID string
	Timestamp         time.Time
}

// SendError is the failure of an adapter dispatch. Transient errors are
// retried with backoff; permanent ones are surfaced immediately.
type SendError struct {
	Transient bool
	Err       error
}

func (e *SendError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s send error: %v", kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable send error.
func Transient(err error) *SendError { return &SendError{Transient: true, Err: err} }

// Permanent wraps err as a non-retryable send error.
func Permanent(err error) *SendError { return &SendError{Transient: false, Err: err} }

// IsTransient reports whether err is a retryable send error.
func IsTransient(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Transient
}

// Adapter performs outbound delivery for one channel. Implementations wrap
// the channel's wire protocol; the engine never sees wire formats.
type Adapter interface {
	Send(ctx context.Context, msg *model.Message) (Ack, error)
}
