/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("Expected HandshakeTimeout 10s, got %v", cfg.HandshakeTimeout)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("Expected PingInterval 30s, got %v", cfg.PingInterval)
	}
	if cfg.PongTimeout != 10*time.Second {
		t.Errorf("Expected PongTimeout 10s, got %v", cfg.PongTimeout)
	}
	if cfg.BackoffTimeMax != 32*time.Second {
		t.Errorf("Expected BackoffTimeMax 32s, got %v", cfg.BackoffTimeMax)
	}
	if cfg.BackoffTimeReset != 1*time.Second {
		t.Errorf("Expected BackoffTimeReset 1s, got %v", cfg.BackoffTimeReset)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialConnectionMaxRetries != 5 {
		t.Errorf("Expected InitialConnectionMaxRetries 5, got %d", cfg.InitialConnectionMaxRetries)
	}
}

func TestNew(t *testing.T) {
	t.Run("with default config", func(t *testing.T) {
		client := New("wss://relay.example/ws", staticTokens("tok"), nil)
		if client == nil {
			t.Fatal("Expected non-nil client")
		}
		if client.config.PingInterval != 30*time.Second {
			t.Errorf("Expected PingInterval 30s, got %v", client.config.PingInterval)
		}
	})

	t.Run("with custom config", func(t *testing.T) {
		cfg := &Config{PingInterval: 15 * time.Second, MaxRetries: 10}
		client := New("wss://relay.example/ws", staticTokens("tok"), cfg)
		if client.config.MaxRetries != 10 {
			t.Errorf("Expected MaxRetries 10, got %d", client.config.MaxRetries)
		}
	})
}

func TestIsConnected(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	if client.IsConnected() {
		t.Error("Expected IsConnected to be false initially")
	}

	client.mu.Lock()
	client.connected = true
	client.mu.Unlock()

	if !client.IsConnected() {
		t.Error("Expected IsConnected to be true after setting connected flag")
	}
}

func TestConnectAlreadyConnecting(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	client.mu.Lock()
	client.connecting = true
	client.mu.Unlock()

	if err := client.Connect(); err == nil {
		t.Error("Expected error when connection attempt already in progress")
	}
}

func TestSendNotConnected(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	err := client.Send(&Event{Type: EventCallUpdate, CallID: "c1"})
	if err == nil {
		t.Error("Expected error sending on a disconnected channel")
	}
}

func TestDispatch(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	var got []string
	client.On(EventCallUpdate, func(ev *Event) {
		got = append(got, "update:"+ev.CallID)
	})
	client.On(EventCallSDP, func(ev *Event) {
		got = append(got, "sdp:"+ev.CallID)
	})
	client.On("*", func(ev *Event) {
		got = append(got, "wildcard:"+string(ev.Type))
	})

	client.dispatch(&Event{Type: EventCallUpdate, CallID: "c1"})
	client.dispatch(&Event{Type: EventCallICE, CallID: "c1"})

	want := []string{"update:c1", "wildcard:call:update", "wildcard:call:ice"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d handler calls, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Handler call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRoomBookkeeping(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	// Joining while disconnected records the room even though the send
	// fails; the membership is replayed on the next successful dial.
	if err := client.JoinCall("c1"); err == nil {
		t.Error("Expected send error while disconnected")
	}

	client.mu.Lock()
	_, tracked := client.rooms["c1"]
	client.mu.Unlock()
	if !tracked {
		t.Error("Expected room c1 to be recorded")
	}

	client.ForgetCall("c1")
	client.mu.Lock()
	_, tracked = client.rooms["c1"]
	client.mu.Unlock()
	if tracked {
		t.Error("Expected room c1 to be forgotten")
	}
}

// wsServer upgrades test connections and records what the client sends.
func wsServer(t *testing.T, onConnect func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		onConnect(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectAndReceive(t *testing.T) {
	received := make(chan *Event, 1)
	authHeader := make(chan string, 1)

	server := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		payload, _ := json.Marshal(&Event{
			Type:   EventCallUpdate,
			CallID: "c1",
			State:  "accepted",
		})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Errorf("Server write failed: %v", err)
		}
	})

	client := New(wsURL(server), staticTokens("tok"), nil)
	client.On(EventCallUpdate, func(ev *Event) {
		received <- ev
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("Expected IsConnected after Connect")
	}

	select {
	case header := <-authHeader:
		if header != "Bearer tok" {
			t.Errorf("Expected bearer token on dial, got %q", header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for dial")
	}

	select {
	case ev := <-received:
		if ev.CallID != "c1" || ev.State != "accepted" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for dispatched event")
	}
}

func TestConnectReplaysRooms(t *testing.T) {
	joins := make(chan *Event, 2)

	server := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(message, &ev); err != nil {
				continue
			}
			if ev.Type == EventJoinCall {
				joins <- &ev
			}
		}
	})

	client := New(wsURL(server), staticTokens("tok"), nil)

	// Recorded before the connection exists; replayed on dial.
	_ = client.JoinCall("c1")

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	select {
	case ev := <-joins:
		if ev.CallID != "c1" {
			t.Errorf("Expected re-join for c1, got %q", ev.CallID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for room replay")
	}

	// A join while connected goes straight out.
	if err := client.JoinCall("c2"); err != nil {
		t.Fatalf("JoinCall failed: %v", err)
	}
	select {
	case ev := <-joins:
		if ev.CallID != "c2" {
			t.Errorf("Expected join for c2, got %q", ev.CallID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for join event")
	}
}

func TestDisconnectTwice(t *testing.T) {
	client := New("wss://relay.example/ws", staticTokens("tok"), nil)

	if err := client.Disconnect(); err != nil {
		t.Errorf("Expected nil disconnecting an idle client, got %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Errorf("Expected Disconnect to be idempotent, got %v", err)
	}
}

func TestReconnectSurvivesRepeatedLosses(t *testing.T) {
	dials := make(chan struct{}, 8)

	// The server drops every connection as soon as it is established, so the
	// client goes through repeated loss-and-redial cycles.
	server := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		select {
		case dials <- struct{}{}:
		default:
		}
		conn.Close()
	})

	client := New(wsURL(server), staticTokens("tok"), &Config{
		HandshakeTimeout:            2 * time.Second,
		PingInterval:                50 * time.Millisecond,
		PongTimeout:                 50 * time.Millisecond,
		BackoffTimeMax:              10 * time.Millisecond,
		BackoffTimeReset:            1 * time.Millisecond,
		MaxRetries:                  10,
		InitialConnectionMaxRetries: 10,
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	// The first dial plus two redials means the client lived through two
	// connection losses without crashing.
	for i := 0; i < 3; i++ {
		select {
		case <-dials:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for dial %d", i+1)
		}
	}
}

func TestDisconnectDuringBackoff(t *testing.T) {
	// No server listening; every attempt fails and the client sits in the
	// backoff wait, where Disconnect must be able to interrupt it.
	client := New("ws://127.0.0.1:1/ws", staticTokens("tok"), &Config{
		HandshakeTimeout:            100 * time.Millisecond,
		PingInterval:                time.Second,
		PongTimeout:                 time.Second,
		BackoffTimeMax:              5 * time.Second,
		BackoffTimeReset:            5 * time.Second,
		MaxRetries:                  5,
		InitialConnectionMaxRetries: 5,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	// Let the first attempt fail and the backoff wait begin.
	time.Sleep(200 * time.Millisecond)
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected Connect to stop cleanly on Disconnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
}
