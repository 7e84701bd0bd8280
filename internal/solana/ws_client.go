package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket connection behavior.
type WSConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for subscription confirmations.
	SubscribeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSDialer implements LogsDialer using gorilla/websocket.
type WSDialer struct {
	endpoint string
	config   WSConfig
}

// NewWSDialer creates a dialer for the given WebSocket endpoint.
func NewWSDialer(endpoint string, config *WSConfig) *WSDialer {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSDialer{endpoint: endpoint, config: cfg}
}

// Compile-time interface check.
var _ LogsDialer = (*WSDialer)(nil)

// DialAndSubscribe opens a connection and issues one logsSubscribe per
// program in the filter. It returns only after every subscription is
// confirmed, so a returned conn is known-streaming.
func (d *WSDialer) DialAndSubscribe(ctx context.Context, filter LogsFilter) (LogsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.config.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &wsLogsConn{
		conn:   conn,
		config: d.config,
		subIDs: make(map[int64]bool),
		done:   make(chan struct{}),
	}

	if err := c.subscribe(ctx, filter); err != nil {
		conn.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// wsLogsConn is one live connection with confirmed subscriptions.
type wsLogsConn struct {
	conn   *websocket.Conn
	config WSConfig

	writeMu   sync.Mutex
	requestID atomic.Uint64
	closed    atomic.Bool

	subIDs map[int64]bool

	done chan struct{}
	wg   sync.WaitGroup
}

// subscribe sends one logsSubscribe per program and waits for all confirmations.
func (c *wsLogsConn) subscribe(ctx context.Context, filter LogsFilter) error {
	pending := make(map[uint64]bool)

	for _, program := range filter.Mentions {
		reqID := c.requestID.Add(1)
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{program}},
				map[string]string{"commitment": "confirmed"},
			},
		}
		if err := c.writeJSON(req); err != nil {
			return fmt.Errorf("write subscribe: %w", err)
		}
		pending[reqID] = true
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for len(pending) > 0 {
		c.conn.SetReadDeadline(deadline)
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read subscribe confirmation: %w", err)
		}

		var resp wsSubscribeResponse
		if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 && pending[resp.ID] {
			delete(pending, resp.ID)
			c.subIDs[resp.Result] = true
			continue
		}

		var errResp wsErrorResponse
		if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("subscribe rejected: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		}
		// Anything else (early notification) is dropped during setup.
	}

	return nil
}

// Read blocks until the next notification, a transport error, or ctx is done.
// Cancellation mid-read expires the read deadline immediately, so a stop
// never waits out a quiet stream's full read timeout.
func (c *wsLogsConn) Read(ctx context.Context) (LogNotification, error) {
	for {
		if c.closed.Load() {
			return LogNotification{}, fmt.Errorf("connection closed")
		}
		if err := ctx.Err(); err != nil {
			return LogNotification{}, err
		}

		deadline := time.Now().Add(c.config.ReadTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetReadDeadline(deadline)

		readDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				c.conn.SetReadDeadline(time.Now())
			case <-c.done:
			case <-readDone:
			}
		}()

		_, message, err := c.conn.ReadMessage()
		close(readDone)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return LogNotification{}, ctxErr
			}
			return LogNotification{}, fmt.Errorf("websocket read: %w", err)
		}

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" {
			continue
		}
		if notif.Params == nil || !c.subIDs[notif.Params.Subscription] {
			continue
		}

		value := notif.Params.Result.Value
		out := LogNotification{
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
		}
		if notif.Params.Result.Context != nil {
			out.Slot = notif.Params.Result.Context.Slot
		}
		return out, nil
	}
}

// Close closes the underlying connection.
func (c *wsLogsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *wsLogsConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *wsLogsConn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			// Errors surface on the next Read; the monitor reconnects.
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsErrorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
