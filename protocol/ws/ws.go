// Package ws runs agents over a WebSocket. Unlike SSE the connection is
// bidirectional, so interrupt responses are sent back to the backend.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// Client message types.
const (
	MessageRun               = "RUN"
	MessageInterruptResponse = "INTERRUPT_RESPONSE"
)

// runMessage starts a run on a fresh connection.
type runMessage struct {
	Type  string            `json:"type"`
	Input protocol.RunInput `json:"input"`
}

// interruptMessage answers a blocking custom event.
type interruptMessage struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Options configures a Client.
type Options struct {
	Dialer *websocket.Dialer
	Header http.Header
	Logger logging.Logger
}

// Client is a protocol.Agent speaking WebSocket.
type Client struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger logging.Logger
}

var _ protocol.Agent = (*Client)(nil)

// New creates a Client dialing url (ws:// or wss://).
func New(url string, optFns ...func(o *Options)) *Client {
	opts := Options{Dialer: websocket.DefaultDialer, Header: http.Header{}, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{url: url, dialer: opts.Dialer, header: opts.Header, logger: logging.OrNoOp(opts.Logger)}
}

// Run implements protocol.Agent.
func (c *Client) Run(ctx context.Context, in protocol.RunInput, h protocol.Handler) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return &protocol.HTTPStatusError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("dial agent: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(runMessage{Type: MessageRun, Input: in}); err != nil {
		return c.wrap(ctx, fmt.Errorf("send run: %w", err))
	}

	dec := protocol.NewDecoder(h, func(o *protocol.DecoderOptions) { o.Logger = c.logger })
	for !dec.Done() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return c.wrap(ctx, fmt.Errorf("read event: %w", err))
		}
		reply, err := dec.Handle(ctx, data)
		if err != nil {
			var runErr *protocol.RunFailedError
			if errors.As(err, &runErr) {
				return err
			}
			return c.wrap(ctx, err)
		}
		if reply != nil {
			msg := interruptMessage{Type: MessageInterruptResponse, Name: reply.Name, Value: reply.Value}
			if err := conn.WriteJSON(msg); err != nil {
				return c.wrap(ctx, fmt.Errorf("send interrupt response: %w", err))
			}
			c.logger.Debug("Interrupt response sent", "name", reply.Name)
		}
	}
	if dec.Done() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	return dec.Finish()
}

// wrap prefers the context error so cancellation is never mistaken for a
// transport failure.
func (c *Client) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
