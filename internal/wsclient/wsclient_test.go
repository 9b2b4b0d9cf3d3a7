package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoServer(t *testing.T) (*httptest.Server, func() int) {
	t.Helper()
	var mu sync.Mutex
	connects := 0
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connects++
		mu.Unlock()
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))

	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return connects
	}
}

func TestClientConnectAndSend(t *testing.T) {
	t.Parallel()

	srv, _ := newEchoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	connected := make(chan struct{}, 1)
	received := make(chan any, 1)

	c := New(Config{
		URL:       wsURL,
		Connected: func() { connected <- struct{}{} },
		Process:   func(v any) { received <- v },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	if c.State() != Open {
		t.Errorf("State() = %v, want Open", c.State())
	}

	if err := c.Send(map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case v := <-received:
		m, ok := v.(map[string]any)
		if !ok || m["hello"] != "world" {
			t.Errorf("received = %v, want echo of sent value", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestSendFailsWhenNotOpen(t *testing.T) {
	t.Parallel()

	c := New(Config{URL: "ws://example.invalid"})
	if err := c.Send(map[string]string{"a": "b"}); err == nil {
		t.Fatal("expected error sending on unopened client")
	}
}
