/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/vidalink/vidalink-go-sdk/credentials"
	"github.com/vidalink/vidalink-go-sdk/media"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// Initiator is the coordinator used by the calling party. It initiates a
// call via HTTP, joins the call's signaling room, drives the offer side of
// the exchange, and surfaces accept/decline/error notifications through the
// call's emitter.
type Initiator struct {
	mu sync.Mutex

	core     *vidalinksdk.Client
	creds    *credentials.Manager
	channel  Channel
	registry *Registry
	config   *Config

	calls map[string]*Call
}

// StartRequest describes an outbound call.
type StartRequest struct {
	// StaffID optionally targets a specific staff member. Empty means the
	// relay picks any available member of the department.
	StaffID string

	// Purpose is free-form text shown to the staff party when ringing.
	Purpose string
}

// StartedCall is the result of a successful StartCall. The peer connection
// and stream are borrowed references for rendering; the registry remains
// their owner.
type StartedCall struct {
	CallID         string
	Call           *Call
	PeerConnection *webrtc.PeerConnection
	Stream         *media.LocalStream
}

func newInitiator(core *vidalinksdk.Client, creds *credentials.Manager, channel Channel, registry *Registry, config *Config) *Initiator {
	i := &Initiator{
		core:     core,
		creds:    creds,
		channel:  channel,
		registry: registry,
		config:   config,
		calls:    make(map[string]*Call),
	}

	channel.On(signaling.EventCallUpdate, i.handleUpdate)
	channel.On(signaling.EventCallSDP, i.handleSDP)
	channel.On(signaling.EventCallICE, i.handleICE)

	return i
}

type initiateRequest struct {
	CallerID   string `json:"callerId"`
	TargetID   string `json:"targetId,omitempty"`
	Department string `json:"department,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
}

type initiateResponse struct {
	CallID string `json:"callId"`
	State  string `json:"state,omitempty"`
}

// StartCall places a call through the relay. When calling is disabled by
// configuration it returns ErrCallingDisabled without any network activity.
// An HTTP 401 from the initiation request triggers exactly one credential
// refresh and one retry; a second failure is terminal. On success the call
// is ringing, its resources are registered, and the returned emitter fires
// CallEventAccepted when remote media arrives.
func (i *Initiator) StartCall(ctx context.Context, req *StartRequest) (*StartedCall, error) {
	if !i.config.Enabled {
		return nil, ErrCallingDisabled
	}
	if req == nil {
		req = &StartRequest{}
	}

	if err := i.creds.EnsureValid(ctx); err != nil {
		return nil, err
	}

	callID, err := i.initiate(ctx, req)
	if err != nil {
		return nil, err
	}

	call := newCall(callID, i.config.LocalPartyID, req.StaffID, CallStateRinging)

	if err := i.channel.JoinCall(callID); err != nil {
		i.channel.ForgetCall(callID)
		return nil, fmt.Errorf("failed to join call room: %w", err)
	}

	stream, err := i.config.Source.Acquire()
	if err != nil {
		i.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	engine, err := media.NewEngine(i.config.Media)
	if err != nil {
		stream.Stop()
		i.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	if err := engine.AttachStream(stream); err != nil {
		stream.Stop()
		_ = engine.Close()
		i.channel.ForgetCall(callID)
		return nil, &MediaError{Err: err}
	}

	engine.OnICECandidate(func(c *webrtc.ICECandidate) {
		forwardCandidate(i.core, i.config.LocalPartyID, callID, c)
	})
	engine.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		call.Emitter.Emit(CallEventAccepted, &RemoteMedia{
			CallID:         callID,
			PeerConnection: engine.PeerConnection(),
			Track:          track,
		})
	})

	res := &Resources{Engine: engine, Stream: stream}
	if err := i.registry.Put(callID, res); err != nil {
		res.release()
		i.channel.ForgetCall(callID)
		return nil, err
	}

	i.mu.Lock()
	i.calls[callID] = call
	i.mu.Unlock()

	return &StartedCall{
		CallID:         callID,
		Call:           call,
		PeerConnection: engine.PeerConnection(),
		Stream:         stream,
	}, nil
}

// initiate issues the HTTP initiation request with the one-refresh-one-retry
// rule for authorization failures.
func (i *Initiator) initiate(ctx context.Context, req *StartRequest) (string, error) {
	body := &initiateRequest{
		CallerID:   i.config.LocalPartyID,
		TargetID:   req.StaffID,
		Department: i.config.Department,
		Purpose:    req.Purpose,
	}

	callID, err := i.postInitiate(ctx, body)
	if err == nil {
		return callID, nil
	}
	if !vidalinksdk.IsAuthError(err) {
		return "", asInitiationError(err)
	}

	// Token rejected. One refresh, one retry, never more.
	if refreshErr := i.creds.Refresh(ctx); refreshErr != nil {
		return "", refreshErr
	}
	callID, err = i.postInitiate(ctx, body)
	if err != nil {
		return "", asInitiationError(err)
	}
	return callID, nil
}

func (i *Initiator) postInitiate(ctx context.Context, body *initiateRequest) (string, error) {
	resp, err := i.core.RequestWithContext(ctx, http.MethodPost, initiatePath, nil, body)
	if err != nil {
		return "", err
	}

	var result initiateResponse
	if err := vidalinksdk.ParseResponse(resp, &result); err != nil {
		return "", err
	}
	if result.CallID == "" {
		return "", errors.New("relay returned no call ID")
	}
	return result.CallID, nil
}

// asInitiationError wraps a non-auth initiation failure with its HTTP
// status detail when one is available.
func asInitiationError(err error) error {
	var apiErr *vidalinksdk.APIError
	if errors.As(err, &apiErr) {
		return &InitiationError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &InitiationError{Err: err}
}

// sendOffer creates the local offer and posts it to the relay. Called once
// the responder's accepted update arrives; never before.
func (i *Initiator) sendOffer(call *Call) {
	res, ok := i.registry.Get(call.CallID())
	if !ok {
		return
	}

	offer, err := res.Engine.CreateOffer()
	if err != nil {
		i.core.GetLogger().Printf("calling: failed to create offer for call %s: %v", call.CallID(), err)
		call.Emitter.Emit(CallEventError, err)
		return
	}

	if err := postSDP(i.core, i.config.LocalPartyID, call.CallID(), signaling.SDPKindOffer, offer); err != nil {
		i.core.GetLogger().Printf("calling: failed to send offer for call %s: %v", call.CallID(), err)
		call.Emitter.Emit(CallEventError, err)
	}
}

// lookup returns the tracked call for an event, or nil when the event is
// stale. Events for calls no longer tracked are ignored silently: the call
// has already been torn down locally.
func (i *Initiator) lookup(callID string) *Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[callID]
}

func (i *Initiator) handleUpdate(ev *signaling.Event) {
	call := i.lookup(ev.CallID)
	if call == nil {
		return
	}

	switch CallState(ev.State) {
	case CallStateAccepted:
		if !call.transition(CallStateAccepted) {
			return
		}
		if ev.StaffID != "" {
			call.mu.Lock()
			call.remotePartyID = ev.StaffID
			call.mu.Unlock()
		}
		i.sendOffer(call)

	case CallStateDeclined:
		call.setReason(ev.Reason)
		call.transition(CallStateDeclined)
		i.teardown(ev.CallID)
		call.Emitter.Emit(CallEventDeclined, &DeclineInfo{CallID: ev.CallID, Reason: ev.Reason})

	case CallStateEnded:
		call.transition(CallStateEnded)
		i.teardown(ev.CallID)
		call.Emitter.Emit(CallEventEnded, ev.CallID)
	}
}

func (i *Initiator) handleSDP(ev *signaling.Event) {
	if ev.Kind != signaling.SDPKindAnswer {
		return
	}
	if i.lookup(ev.CallID) == nil {
		return
	}
	res, ok := i.registry.Get(ev.CallID)
	if !ok {
		return
	}
	if err := res.Engine.SetRemoteAnswer(ev.Payload); err != nil {
		i.core.GetLogger().Printf("calling: failed to apply answer for call %s: %v", ev.CallID, err)
	}
}

func (i *Initiator) handleICE(ev *signaling.Event) {
	if i.lookup(ev.CallID) == nil {
		return
	}
	res, ok := i.registry.Get(ev.CallID)
	if !ok {
		return
	}
	if err := res.Engine.AddICECandidate(ev.Candidate); err != nil {
		i.core.GetLogger().Printf("calling: failed to add ICE candidate for call %s: %v", ev.CallID, err)
	}
}

// teardown removes the registry entry and releases its resources. It never
// fails and is idempotent.
func (i *Initiator) teardown(callID string) {
	if res, ok := i.registry.Remove(callID); ok {
		res.release()
	}
	i.mu.Lock()
	delete(i.calls, callID)
	i.mu.Unlock()
	i.channel.ForgetCall(callID)
}

// EndCall hangs up a call: stream stopped, peer connection closed, registry
// entry removed. An absent call ID is a silent no-op.
func (i *Initiator) EndCall(callID string) {
	if call := i.lookup(callID); call != nil {
		call.transition(CallStateEnded)
	}
	i.teardown(callID)
}

// Disconnect tears down every tracked call and closes the signaling
// connection. Used for full coordinator shutdown; it never fails.
func (i *Initiator) Disconnect() {
	for callID, res := range i.registry.DrainAll() {
		res.release()
		i.channel.ForgetCall(callID)
	}
	i.mu.Lock()
	for id, call := range i.calls {
		call.transition(CallStateEnded)
		delete(i.calls, id)
	}
	i.mu.Unlock()

	if err := i.channel.Disconnect(); err != nil {
		i.core.GetLogger().Printf("calling: error closing signaling connection: %v", err)
	}
}
