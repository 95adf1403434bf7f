/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media wraps local capture and the per-call Pion peer connection.
// One Engine exists per call; the calling package's registry is its owner
// and is responsible for closing it on every termination path.
package media

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Config holds configuration for per-call media engines.
type Config struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use
	ICEServers []webrtc.ICEServer
}

// DefaultConfig returns a MediaConfig with a public STUN server. A srflx
// candidate is required for relay-assisted negotiation to succeed when both
// parties sit behind NAT.
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Engine manages the WebRTC peer connection and media tracks for one call.
type Engine struct {
	mu             sync.Mutex
	peerConnection *webrtc.PeerConnection
	onRemoteTrack  func(track *webrtc.TrackRemote)
	onICECandidate func(candidate *webrtc.ICECandidate)
	api            *webrtc.API
}

// NewEngine creates a new WebRTC media engine for a call.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	// Generous ICE timeouts so a brief relay/NAT hiccup does not immediately
	// terminate the call. The default disconnectedTimeout of 5s is too short
	// for relay paths that can have short outages during failover.
	settings := webrtc.SettingEngine{}
	settings.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	engine := &Engine{
		peerConnection: pc,
		api:            api,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		engine.mu.Lock()
		handler := engine.onICECandidate
		engine.mu.Unlock()
		if handler != nil {
			handler(c)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("media: connection state → %s", s.String())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		engine.mu.Lock()
		handler := engine.onRemoteTrack
		engine.mu.Unlock()
		if handler != nil {
			handler(track)
		}
	})

	return engine, nil
}

// OnRemoteTrack sets the callback for newly arriving remote tracks. Tracks
// may arrive incrementally; the callback fires once per track.
func (e *Engine) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRemoteTrack = handler
}

// OnICECandidate sets the callback for locally gathered ICE candidates.
func (e *Engine) OnICECandidate(handler func(candidate *webrtc.ICECandidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICECandidate = handler
}

// AttachStream adds every track of the local stream to the peer connection
// and drains RTCP from each sender to keep the connection alive.
func (e *Engine) AttachStream(stream *LocalStream) error {
	for _, track := range stream.Tracks() {
		sender, err := e.peerConnection.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add local track: %w", err)
		}

		go func(sender *webrtc.RTPSender) {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
					return
				}
			}
		}(sender)
	}
	return nil
}

// CreateOffer creates an SDP offer and sets it as the local description.
// Candidates are trickled via OnICECandidate rather than waiting for
// gathering to complete, matching the relay's per-candidate forwarding.
func (e *Engine) CreateOffer() (string, error) {
	offer, err := e.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := e.peerConnection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer creates an SDP answer and sets it as the local description.
// The remote offer must have been set first.
func (e *Engine) CreateAnswer() (string, error) {
	answer, err := e.peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := e.peerConnection.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

// SetRemoteOffer sets the remote SDP offer on the peer connection.
func (e *Engine) SetRemoteOffer(sdp string) error {
	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

// SetRemoteAnswer sets the remote SDP answer on the peer connection. A
// duplicate answer (the relay may re-deliver after a reconnect) is a
// logged no-op: the signaling state is already stable.
func (e *Engine) SetRemoteAnswer(sdp string) error {
	if e.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		log.Printf("media: ignoring duplicate SDP answer (signaling state already stable)")
		return nil
	}

	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// AddICECandidate feeds a remote candidate, in its wire JSON form, to the
// peer connection.
func (e *Engine) AddICECandidate(raw json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}
	return e.peerConnection.AddICECandidate(candidate)
}

// MarshalCandidate encodes a locally gathered candidate into its wire form.
func MarshalCandidate(c *webrtc.ICECandidate) (json.RawMessage, error) {
	return json.Marshal(c.ToJSON())
}

// RemoteDescription reports whether a remote description has been applied.
func (e *Engine) RemoteDescription() *webrtc.SessionDescription {
	return e.peerConnection.RemoteDescription()
}

// PeerConnection returns the underlying Pion PeerConnection for rendering
// and advanced use. Callers borrow it; the registry owns it.
func (e *Engine) PeerConnection() *webrtc.PeerConnection {
	return e.peerConnection
}

// Close closes the peer connection and releases its resources.
func (e *Engine) Close() error {
	if e.peerConnection == nil {
		return nil
	}
	if err := e.peerConnection.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
