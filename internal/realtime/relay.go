// Package realtime pushes engine events to a downstream websocket endpoint,
// typically the dashboard gateway. The relay owns the outbound connection
// lifecycle and reconnects with jittered backoff.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// State is the relay connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "disconnected"
	}
}

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Relay maintains a websocket connection to the given URL and forwards
// engine events over it as JSON. Events arriving while disconnected are
// dropped; the subscriber buffer absorbs short reconnect windows.
type Relay struct {
	url    string
	logger *logger.Logger
	dialer *websocket.Dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
}

// New creates a relay targeting url.
func New(url string, log *logger.Logger) *Relay {
	return &Relay{
		url:    url,
		logger: log,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if s == StateConnected {
		metrics.RelayConnected.Set(1)
	} else {
		metrics.RelayConnected.Set(0)
	}
}

// Run consumes events until the channel closes or ctx is canceled. It
// reconnects forever; permanent failure is not a relay concept.
func (r *Relay) Run(ctx context.Context, events <-chan model.Event) {
	defer r.close()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ping()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !r.ensureConnected(ctx, bo) {
				return
			}
			if err := r.write(ev); err != nil {
				r.logger.Warn("relay write failed", zap.Error(err))
				r.close()
			}
		}
	}
}

// ensureConnected dials until connected or ctx ends. Returns false only on
// context cancellation.
func (r *Relay) ensureConnected(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	r.mu.Lock()
	connected := r.conn != nil
	r.mu.Unlock()
	if connected {
		return true
	}

	for {
		r.setState(StateConnecting)
		conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.mu.Unlock()
			r.setState(StateConnected)
			bo.Reset()
			r.logger.Info("relay connected", zap.String("url", r.url))
			go r.readLoop(conn)
			return true
		}

		r.setState(StateBackoff)
		wait := bo.NextBackOff()
		r.logger.Warn("relay dial failed",
			zap.String("url", r.url),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// readLoop drains the connection so control frames are processed; inbound
// payloads are ignored.
func (r *Relay) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512 * 1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.closeIfCurrent(conn)
			return
		}
	}
}

func (r *Relay) write(ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return websocket.ErrCloseSent
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(ev)
}

func (r *Relay) ping() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	if err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		r.conn.Close()
		r.conn = nil
		r.state = StateDisconnected
		metrics.RelayConnected.Set(0)
	}
}

func (r *Relay) close() {
	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.state = StateDisconnected
	r.mu.Unlock()
	metrics.RelayConnected.Set(0)
}

func (r *Relay) closeIfCurrent(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		conn.Close()
		r.conn = nil
		r.state = StateDisconnected
		metrics.RelayConnected.Set(0)
	}
}
