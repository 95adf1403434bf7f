/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"

	"github.com/vidalink/vidalink-go-sdk/media"
)

// CallState represents the state of a call in the lifecycle state machine.
type CallState string

const (
	CallStateCreated  CallState = "created"
	CallStateRinging  CallState = "ringing"
	CallStateAccepted CallState = "accepted"
	CallStateDeclined CallState = "declined"
	CallStateEnded    CallState = "ended"
)

// terminal reports whether no further transitions are valid from s.
func (s CallState) terminal() bool {
	return s == CallStateDeclined || s == CallStateEnded
}

// Call represents one signaling session between an initiator and responder.
// The callID is server-assigned and stable for the call's lifetime; state is
// mutated only by signaling events and local hangup.
type Call struct {
	mu sync.RWMutex

	callID        string
	state         CallState
	localPartyID  string
	remotePartyID string
	reason        string

	// Emitter fires the accepted/declined/error call events.
	Emitter *EventEmitter
}

func newCall(callID, localPartyID, remotePartyID string, state CallState) *Call {
	return &Call{
		callID:        callID,
		state:         state,
		localPartyID:  localPartyID,
		remotePartyID: remotePartyID,
		Emitter:       NewEventEmitter(),
	}
}

// CallID returns the server-assigned call identifier.
func (c *Call) CallID() string {
	return c.callID
}

// State returns the current lifecycle state.
func (c *Call) State() CallState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RemotePartyID returns the identity of the other endpoint, if known.
func (c *Call) RemotePartyID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remotePartyID
}

// Reason returns the decline/termination reason, if any.
func (c *Call) Reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// transition moves the call to a new state. It returns false, leaving the
// call untouched, when the current state is terminal: declined and ended
// admit no further transitions.
func (c *Call) transition(to CallState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.terminal() {
		return false
	}
	c.state = to
	return true
}

// setReason records the decline/termination reason.
func (c *Call) setReason(reason string) {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
}

// Resources are the session resources owned by a registry entry: one peer
// connection (inside the engine) and one local stream. The registry tracks
// ownership only; the coordinator performing removal releases both.
type Resources struct {
	Engine *media.Engine
	Stream *media.LocalStream
}

// release stops the stream and closes the peer connection. It never fails:
// faults in the underlying stop/close are swallowed so resource release is
// never blocked by a faulty dependency.
func (r *Resources) release() {
	if r == nil {
		return
	}
	if r.Stream != nil {
		r.Stream.Stop()
	}
	if r.Engine != nil {
		_ = r.Engine.Close()
	}
}
