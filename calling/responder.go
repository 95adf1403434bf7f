/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/vidalink/vidalink-go-sdk/credentials"
	"github.com/vidalink/vidalink-go-sdk/media"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// Responder is the coordinator used by the receiving party. It surfaces
// inbound ring notifications to the owning application and, on acceptance,
// drives the answer side of the offer/answer exchange.
type Responder struct {
	mu sync.Mutex

	core     *vidalinksdk.Client
	creds    *credentials.Manager
	channel  Channel
	registry *Registry
	config   *Config

	calls    map[string]*Call
	incoming func(call *IncomingCall)
}

// IncomingCall is a ringing inbound call awaiting an Accept or Decline
// decision. Nothing is auto-accepted and no local resources are held yet.
type IncomingCall struct {
	CallID string
	Caller *signaling.CallerInfo
}

// AcceptedCall is the result of a successful Accept. Remote tracks arrive
// asynchronously and possibly more than once on the Remote channel.
type AcceptedCall struct {
	CallID         string
	Call           *Call
	PeerConnection *webrtc.PeerConnection
	Stream         *media.LocalStream

	remote chan *webrtc.TrackRemote
}

// Remote returns the channel on which newly available remote tracks are
// delivered.
func (a *AcceptedCall) Remote() <-chan *webrtc.TrackRemote {
	return a.remote
}

func newResponder(core *vidalinksdk.Client, creds *credentials.Manager, channel Channel, registry *Registry, config *Config) *Responder {
	r := &Responder{
		core:     core,
		creds:    creds,
		channel:  channel,
		registry: registry,
		config:   config,
		calls:    make(map[string]*Call),
	}

	channel.On(signaling.EventCallIncoming, r.handleIncoming)
	channel.On(signaling.EventCallUpdate, r.handleUpdate)
	channel.On(signaling.EventCallSDP, r.handleSDP)
	channel.On(signaling.EventCallICE, r.handleICE)

	return r
}

// OnIncoming registers the persistent listener for inbound-call
// notifications. The handler fires once per ringing call.
func (r *Responder) OnIncoming(handler func(call *IncomingCall)) {
	r.mu.Lock()
	r.incoming = handler
	r.mu.Unlock()
}

func (r *Responder) handleIncoming(ev *signaling.Event) {
	if ev.CallID == "" {
		return
	}

	r.mu.Lock()
	if _, exists := r.calls[ev.CallID]; exists {
		r.mu.Unlock()
		return // re-delivered notification for a call already surfaced
	}
	var callerID string
	if ev.CallerInfo != nil {
		callerID = ev.CallerInfo.ID
	}
	r.calls[ev.CallID] = newCall(ev.CallID, r.config.LocalPartyID, callerID, CallStateRinging)
	handler := r.incoming
	r.mu.Unlock()

	if handler != nil {
		handler(&IncomingCall{CallID: ev.CallID, Caller: ev.CallerInfo})
	}
}

// Accept answers a ringing call: joins its room, acquires local media,
// creates the peer connection, registers the resources, and signals
// accepted over the transport, which triggers the caller to send its offer.
func (r *Responder) Accept(ctx context.Context, callID string) (*AcceptedCall, error) {
	call := r.lookup(callID)
	if call == nil {
		return nil, fmt.Errorf("no ringing call with ID %q", callID)
	}

	if err := r.creds.EnsureValid(ctx); err != nil {
		return nil, err
	}

	if err := r.channel.JoinCall(callID); err != nil {
		r.channel.ForgetCall(callID)
		return nil, fmt.Errorf("failed to join call room: %w", err)
	}

	stream, err := r.config.Source.Acquire()
	if err != nil {
		r.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	engine, err := media.NewEngine(r.config.Media)
	if err != nil {
		stream.Stop()
		r.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	if err := engine.AttachStream(stream); err != nil {
		stream.Stop()
		_ = engine.Close()
		r.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	remote := make(chan *webrtc.TrackRemote, 8)
	engine.OnICECandidate(func(c *webrtc.ICECandidate) {
		forwardCandidate(r.core, r.config.LocalPartyID, callID, c)
	})
	engine.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		select {
		case remote <- track:
		default:
			r.core.GetLogger().Printf("calling: dropping remote track notification for call %s (subscriber not draining)", callID)
		}
	})

	res := &Resources{Engine: engine, Stream: stream}
	if err := r.registry.Put(callID, res); err != nil {
		res.release()
		r.channel.ForgetCall(callID)
		return nil, err
	}

	call.transition(CallStateAccepted)

	if err := r.channel.Send(&signaling.Event{
		Type:    signaling.EventCallUpdate,
		CallID:  callID,
		State:   string(CallStateAccepted),
		StaffID: r.config.LocalPartyID,
	}); err != nil {
		r.teardown(callID)
		return nil, fmt.Errorf("failed to signal acceptance: %w", err)
	}

	return &AcceptedCall{
		CallID:         callID,
		Call:           call,
		PeerConnection: engine.PeerConnection(),
		Stream:         stream,
		remote:         remote,
	}, nil
}

// Decline rejects a ringing call with a reason. No local resources were
// acquired for an undeclined inbound call, so there is nothing to release.
// It never fails; a delivery fault is logged.
func (r *Responder) Decline(callID, reason string) {
	call := r.lookup(callID)
	if call == nil {
		return
	}

	call.setReason(reason)
	call.transition(CallStateDeclined)

	if err := r.channel.Send(&signaling.Event{
		Type:    signaling.EventCallUpdate,
		CallID:  callID,
		State:   string(CallStateDeclined),
		StaffID: r.config.LocalPartyID,
		Reason:  reason,
	}); err != nil {
		r.core.GetLogger().Printf("calling: failed to signal decline for call %s: %v", callID, err)
	}

	r.mu.Lock()
	delete(r.calls, callID)
	r.mu.Unlock()
	r.channel.ForgetCall(callID)
}

func (r *Responder) lookup(callID string) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[callID]
}

func (r *Responder) handleUpdate(ev *signaling.Event) {
	call := r.lookup(ev.CallID)
	if call == nil {
		return
	}

	switch CallState(ev.State) {
	case CallStateEnded:
		call.transition(CallStateEnded)
		r.teardown(ev.CallID)
		call.Emitter.Emit(CallEventEnded, ev.CallID)

	case CallStateDeclined:
		// The caller withdrew before we answered.
		call.setReason(ev.Reason)
		call.transition(CallStateDeclined)
		r.teardown(ev.CallID)
		call.Emitter.Emit(CallEventDeclined, &DeclineInfo{CallID: ev.CallID, Reason: ev.Reason})
	}
}

// handleSDP answers an inbound offer: the remote description is applied
// first, then exactly one answer is created and sent back.
func (r *Responder) handleSDP(ev *signaling.Event) {
	if ev.Kind != signaling.SDPKindOffer {
		return
	}
	if r.lookup(ev.CallID) == nil {
		return
	}
	res, ok := r.registry.Get(ev.CallID)
	if !ok {
		return
	}

	if err := res.Engine.SetRemoteOffer(ev.Payload); err != nil {
		r.core.GetLogger().Printf("calling: failed to apply offer for call %s: %v", ev.CallID, err)
		return
	}

	answer, err := res.Engine.CreateAnswer()
	if err != nil {
		r.core.GetLogger().Printf("calling: failed to create answer for call %s: %v", ev.CallID, err)
		return
	}

	if err := postSDP(r.core, r.config.LocalPartyID, ev.CallID, signaling.SDPKindAnswer, answer); err != nil {
		r.core.GetLogger().Printf("calling: failed to send answer for call %s: %v", ev.CallID, err)
	}
}

func (r *Responder) handleICE(ev *signaling.Event) {
	if r.lookup(ev.CallID) == nil {
		return
	}
	res, ok := r.registry.Get(ev.CallID)
	if !ok {
		return
	}
	if err := res.Engine.AddICECandidate(ev.Candidate); err != nil {
		r.core.GetLogger().Printf("calling: failed to add ICE candidate for call %s: %v", ev.CallID, err)
	}
}

func (r *Responder) teardown(callID string) {
	if res, ok := r.registry.Remove(callID); ok {
		res.release()
	}
	r.mu.Lock()
	delete(r.calls, callID)
	r.mu.Unlock()
	r.channel.ForgetCall(callID)
}

// EndCall hangs up a call: stream stopped, peer connection closed, registry
// entry removed. An absent call ID is a silent no-op.
func (r *Responder) EndCall(callID string) {
	if call := r.lookup(callID); call != nil {
		call.transition(CallStateEnded)
	}
	r.teardown(callID)
}

// Disconnect tears down every tracked call and closes the signaling
// connection. It never fails.
func (r *Responder) Disconnect() {
	for callID, res := range r.registry.DrainAll() {
		res.release()
		r.channel.ForgetCall(callID)
	}
	r.mu.Lock()
	for id, call := range r.calls {
		call.transition(CallStateEnded)
		delete(r.calls, id)
	}
	r.mu.Unlock()

	if err := r.channel.Disconnect(); err != nil {
		r.core.GetLogger().Printf("calling: error closing signaling connection: %v", err)
	}
}
