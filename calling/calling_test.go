/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vidalink/vidalink-go-sdk/credentials"
	"github.com/vidalink/vidalink-go-sdk/media"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// testToken builds a JWT-shaped bearer token with the given expiry. The
// signature is junk; only the envelope and exp claim matter to the
// credential manager.
func testToken(t *testing.T, exp time.Time) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]int64{"exp": exp.Unix()})
	if err != nil {
		t.Fatalf("Failed to marshal claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claims)
	sig := base64.RawURLEncoding.EncodeToString([]byte("test-signature"))
	return header + "." + payload + "." + sig
}

// relayServer fakes the relay HTTP API, counting requests per endpoint.
type relayServer struct {
	mu               sync.Mutex
	logins           int
	initiates        int
	ices             int
	sdpKinds         []string
	initiateStatuses []int // consumed in order; empty means always 200
	callID           string
}

func (s *relayServer) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.logins++
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": testToken(t, time.Now().Add(1*time.Hour))})
	})
	mux.HandleFunc("/api/calls/initiate", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.initiates++
		status := http.StatusOK
		if len(s.initiateStatuses) > 0 {
			status = s.initiateStatuses[0]
			s.initiateStatuses = s.initiateStatuses[1:]
		}
		callID := s.callID
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"callId": callID})
	})
	mux.HandleFunc("/api/calls/sdp", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Kind string `json:"kind"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.sdpKinds = append(s.sdpKinds, body.Kind)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/calls/ice", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.ices++
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *relayServer) counts() (logins, initiates int, sdpKinds []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins, s.initiates, append([]string(nil), s.sdpKinds...)
}

// fakeChannel records signaling traffic without a live websocket.
type fakeChannel struct {
	mu          sync.Mutex
	joined      []string
	forgotten   []string
	sent        []*signaling.Event
	handlers    map[signaling.EventType][]signaling.Handler
	disconnects int
	sendErr     error
	joinErr     error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[signaling.EventType][]signaling.Handler)}
}

func (f *fakeChannel) JoinCall(callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, callID)
	return f.joinErr
}

func (f *fakeChannel) ForgetCall(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, callID)
}

func (f *fakeChannel) Send(event *signaling.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeChannel) On(eventType signaling.EventType, handler signaling.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = append(f.handlers[eventType], handler)
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeChannel) sentOf(eventType signaling.EventType) []*signaling.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*signaling.Event
	for _, ev := range f.sent {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeChannel) joinedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joined...)
}

// fakeSource hands out static sample tracks and counts acquisitions and
// releases.
type fakeSource struct {
	mu       sync.Mutex
	acquires int
	stops    int
	err      error
}

func (s *fakeSource) Acquire() (*media.LocalStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.acquires++

	static, err := media.NewStaticSource().Acquire()
	if err != nil {
		return nil, err
	}
	return media.NewLocalStream(static.Tracks(), []func() error{func() error {
		s.mu.Lock()
		s.stops++
		s.mu.Unlock()
		return nil
	}}), nil
}

func (s *fakeSource) counts() (acquires, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.stops
}

// newTestClient wires a calling client against a fake relay and channel.
func newTestClient(t *testing.T, srv *relayServer, enabled bool) (*Client, *fakeChannel, *fakeSource) {
	t.Helper()

	if srv.callID == "" {
		srv.callID = "c1"
	}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	core, err := vidalinksdk.NewClient("", &vidalinksdk.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create core client: %v", err)
	}

	creds := credentials.New(core, &credentials.Config{
		Identity: "client-1",
		Role:     "client",
		Token:    testToken(t, time.Now().Add(1*time.Hour)),
	})

	channel := newFakeChannel()
	source := &fakeSource{}
	client := New(core, creds, channel, &Config{
		Enabled:      enabled,
		LocalPartyID: "client-1",
		Department:   "support",
		Media:        &media.Config{},
		Source:       source,
	})

	return client, channel, source
}

func TestNewDefaults(t *testing.T) {
	srv := &relayServer{}
	client, _, _ := newTestClient(t, srv, true)

	if client.Registry() == nil {
		t.Fatal("Expected non-nil registry")
	}

	// Both roles share the one registry.
	init := client.Initiator()
	resp := client.Responder()
	if init.registry != resp.registry {
		t.Error("Expected initiator and responder to share the registry")
	}
	if client.Initiator() != init {
		t.Error("Expected Initiator accessor to cache its instance")
	}
}

func TestShutdown(t *testing.T) {
	srv := &relayServer{}
	client, channel, _ := newTestClient(t, srv, true)

	if err := client.Registry().Put("c1", &Resources{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	client.Shutdown()

	if client.Registry().Len() != 0 {
		t.Error("Expected registry drained after shutdown")
	}
	channel.mu.Lock()
	defer channel.mu.Unlock()
	if channel.disconnects != 1 {
		t.Errorf("Expected one channel disconnect, got %d", channel.disconnects)
	}
}
