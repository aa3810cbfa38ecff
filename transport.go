package telearm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// WebSocketTransport is a thin dashboard adapter over a persistent
// websocket. It implements Transport with at-most-once semantics: once
// the connection drops, every send is silently discarded until a new
// transport is dialed. Reconnection is the owner's concern.
type WebSocketTransport struct {
	conn      *websocket.Conn
	logger    logging.Logger
	writeMu   sync.Mutex
	connected atomic.Bool
}

// DialDashboard connects to the dashboard websocket endpoint.
func DialDashboard(addr string, logger logging.Logger) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial dashboard at %s", addr)
	}
	t := &WebSocketTransport{conn: conn, logger: logger}
	t.connected.Store(true)
	logger.Infof("connected to dashboard at %s", addr)
	return t, nil
}

// Connected reports whether the link is still usable.
func (t *WebSocketTransport) Connected() bool {
	return t.connected.Load()
}

// Send writes one envelope. A write failure marks the transport
// disconnected; the envelope is lost, as are all subsequent ones.
func (t *WebSocketTransport) Send(env Envelope) error {
	if !t.connected.Load() {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(env); err != nil {
		t.connected.Store(false)
		t.logger.Warnf("dashboard write failed, dropping sends from now on: %v", err)
	}
	return nil
}

// ReadLoop delivers inbound envelopes to handle until the connection or
// context ends. Frames that do not parse as envelopes are skipped.
func (t *WebSocketTransport) ReadLoop(ctx context.Context, handle func(Envelope)) {
	for {
		if ctx.Err() != nil {
			return
		}
		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				t.logger.Warnf("dashboard read failed, closing inbound stream: %v", err)
			}
			t.connected.Store(false)
			return
		}
		handle(env)
	}
}

// Close tears down the websocket.
func (t *WebSocketTransport) Close() error {
	t.connected.Store(false)
	return t.conn.Close()
}

// disconnectedTransport is the permanent drop-all-sends degradation
// used when no dashboard is configured or the dial failed.
type disconnectedTransport struct{}

func (disconnectedTransport) Send(Envelope) error { return nil }

func (disconnectedTransport) Connected() bool { return false }
