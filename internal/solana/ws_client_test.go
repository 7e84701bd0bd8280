package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// confirmSubscribe answers one logsSubscribe request with subscription ID 1.
func confirmSubscribe(t *testing.T, c *websocket.Conn) bool {
	_, msg, err := c.ReadMessage()
	if err != nil {
		return false
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return false
	}
	if req.Method != "logsSubscribe" {
		t.Errorf("expected logsSubscribe, got %s", req.Method)
		return false
	}
	resp := wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 1}
	if err := c.WriteJSON(resp); err != nil {
		t.Errorf("write confirmation: %v", err)
		return false
	}
	return true
}

func testWSConfig() *WSConfig {
	return &WSConfig{
		HandshakeTimeout: 2 * time.Second,
		SubscribeTimeout: 2 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      3 * time.Second,
		WriteTimeout:     time.Second,
	}
}

func TestLogsConnReadDeliversNotification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if !confirmSubscribe(t, c) {
			return
		}

		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "logsNotification",
			Params: &wsNotificationParams{
				Subscription: 1,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 42},
					Value: wsLogsValue{
						Signature: "sig1",
						Logs:      []string{"Program log: hello"},
					},
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}

		// Keep connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := NewWSDialer(wsURL, testWSConfig())

	ctx := context.Background()
	conn, err := dialer.DialAndSubscribe(ctx, LogsFilter{Mentions: []string{"prog"}})
	if err != nil {
		t.Fatalf("DialAndSubscribe: %v", err)
	}
	defer conn.Close()

	got, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Signature != "sig1" {
		t.Errorf("expected sig1, got %s", got.Signature)
	}
	if got.Slot != 42 {
		t.Errorf("expected slot 42, got %d", got.Slot)
	}
	if len(got.Logs) != 1 {
		t.Errorf("expected 1 log, got %d", len(got.Logs))
	}
}

func TestLogsConnReadReturnsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if !confirmSubscribe(t, c) {
			return
		}

		// Go silent: no notifications until the client disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := NewWSDialer(wsURL, testWSConfig())

	conn, err := dialer.DialAndSubscribe(context.Background(), LogsFilter{Mentions: []string{"prog"}})
	if err != nil {
		t.Fatalf("DialAndSubscribe: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = conn.Read(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Must return promptly on cancel, not wait out the 3s read timeout.
	if elapsed > time.Second {
		t.Errorf("Read took %v after cancel, expected prompt return", elapsed)
	}
}

func TestLogsConnCloseUnblocksRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if !confirmSubscribe(t, c) {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := NewWSDialer(wsURL, testWSConfig())

	conn, err := dialer.DialAndSubscribe(context.Background(), LogsFilter{Mentions: []string{"prog"}})
	if err != nil {
		t.Fatalf("DialAndSubscribe: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		_, err := conn.Read(context.Background())
		readErr <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	select {
	case err := <-readErr:
		if err == nil {
			t.Error("expected an error from Read after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}
