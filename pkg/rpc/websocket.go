package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrTransportClosed = errors.New("websocket transport closed")

const notificationBuffer = 256

// WSTransport speaks JSON-RPC 2.0 over a WebSocket. Responses are matched to
// requests by id; messages without an id are pushed as notifications. The
// reader never waits for notification consumers, so a consumer may issue
// requests of its own while handling one.
type WSTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	requestID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan response
	err     error

	queueMu sync.Mutex
	queue   []Notification
	queued  chan struct{}

	notifications chan Notification
	closeOnce     sync.Once
	done          chan struct{}
}

// DialWebSocket connects to endpoint and starts the read loop.
func DialWebSocket(ctx context.Context, endpoint string, logger *slog.Logger) (*WSTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return NewWSTransport(conn, logger), nil
}

// NewWSTransport wraps an established connection.
func NewWSTransport(conn *websocket.Conn, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &WSTransport{
		conn:          conn,
		logger:        logger.With("component", "rpc_ws"),
		pending:       make(map[int64]chan response),
		queued:        make(chan struct{}, 1),
		notifications: make(chan Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
	go t.readLoop()
	go t.pump()
	return t
}

func (t *WSTransport) Notifications() <-chan Notification {
	return t.notifications
}

func (t *WSTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.requestID.Add(1)
	ch := make(chan response, 1)

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return nil, err
	}
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	t.writeMu.Lock()
	err := t.conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, t.closeErr()
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *WSTransport) readLoop() {
	defer t.shutdown(ErrTransportClosed)

	for {
		var msg response
		if err := t.conn.ReadJSON(&msg); err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Warn("websocket read failed", "error", err)
			}
			t.shutdown(fmt.Errorf("websocket read: %w", err))
			return
		}

		if msg.ID == nil {
			if msg.Method == "" {
				continue
			}
			t.enqueue(Notification{Method: msg.Method, Params: msg.Params})
			continue
		}

		t.mu.Lock()
		if ch, ok := t.pending[*msg.ID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		t.mu.Unlock()
	}
}

func (t *WSTransport) enqueue(n Notification) {
	t.queueMu.Lock()
	t.queue = append(t.queue, n)
	t.queueMu.Unlock()
	select {
	case t.queued <- struct{}{}:
	default:
	}
}

func (t *WSTransport) dequeue() (Notification, bool) {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	if len(t.queue) == 0 {
		return Notification{}, false
	}
	n := t.queue[0]
	t.queue[0] = Notification{}
	t.queue = t.queue[1:]
	return n, true
}

// pump moves queued notifications to the consumer channel in arrival order.
// After shutdown whatever still fits in the channel is flushed before it is
// closed.
func (t *WSTransport) pump() {
	defer close(t.notifications)
	for {
		select {
		case <-t.queued:
		case <-t.done:
			t.flush()
			return
		}
		for {
			n, ok := t.dequeue()
			if !ok {
				break
			}
			select {
			case t.notifications <- n:
			case <-t.done:
				select {
				case t.notifications <- n:
				default:
				}
				t.flush()
				return
			}
		}
	}
}

func (t *WSTransport) flush() {
	for {
		n, ok := t.dequeue()
		if !ok {
			return
		}
		select {
		case t.notifications <- n:
		default:
			return
		}
	}
}

func (t *WSTransport) closeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return ErrTransportClosed
	}
	return t.err
}

func (t *WSTransport) shutdown(reason error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.err = reason
		for id, ch := range t.pending {
			close(ch)
			delete(t.pending, id)
		}
		t.mu.Unlock()
		close(t.done)
	})
}

// Close terminates the connection. Pending requests fail and the
// notification channel is closed.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	t.shutdown(ErrTransportClosed)
	return t.conn.Close()
}
