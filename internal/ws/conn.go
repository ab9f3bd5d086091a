package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/0xh7/lua-chess-server/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 20 * time.Second
	maxMessageSize = 4096
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("send queue full")
)

// Conn adapts a websocket to relay.Peer. Sends are queued and written by
// WriteLoop, which is also the only goroutine that closes the socket.
type Conn struct {
	ws  *websocket.Conn
	out chan []byte

	closing chan struct{}
	once    sync.Once
	code    websocket.StatusCode
	reason  string
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a WS connection with an outbound queue of size queue
func NewConn(ws *websocket.Conn, queue int) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{
		ws:      ws,
		out:     make(chan []byte, queue),
		closing: make(chan struct{}),
	}
}

// Read blocks until it receives a text/binary message
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// Send queues a frame without blocking
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close asks WriteLoop to flush and close with code; later calls are no-ops
func (c *Conn) Close(code relay.CloseCode, reason string) error {
	c.once.Do(func() {
		c.code = websocket.StatusCode(code)
		c.reason = reason
		close(c.closing)
	})
	return nil
}

// WriteLoop sends outbound messages + periodic pings until Close
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			if err := c.write(ctx, b); err != nil {
				_ = c.Close(relay.CloseGoingAway, "write failed")
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			_ = c.ws.Ping(pctx)
			cancel()
		case <-c.closing:
			c.flush(ctx)
			_ = c.ws.Close(c.code, c.reason)
			return
		case <-ctx.Done():
			_ = c.ws.Close(websocket.StatusGoingAway, "shutdown")
			return
		}
	}
}

// flush writes whatever is still queued, e.g. a rejection before the close frame
func (c *Conn) flush(ctx context.Context) {
	for {
		select {
		case b := <-c.out:
			if c.write(ctx, b) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, b []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, b)
}
