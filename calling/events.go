/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// CallEventKey identifies the type of call event delivered via the emitter.
type CallEventKey string

const (
	// CallEventAccepted fires on the initiator side when remote media
	// arrives. This is the only path by which the caller learns the call
	// is media-flowing; data is *RemoteMedia.
	CallEventAccepted CallEventKey = "accepted"

	// CallEventDeclined fires when the other party declines; data is
	// *DeclineInfo.
	CallEventDeclined CallEventKey = "declined"

	// CallEventEnded fires when the call is torn down locally or by the
	// other party; data is the call ID string.
	CallEventEnded CallEventKey = "ended"

	// CallEventError fires on terminal signaling faults; data is an error.
	CallEventError CallEventKey = "call_error"
)

// RemoteMedia carries a newly available remote track. It may fire more than
// once per call: tracks arrive incrementally.
type RemoteMedia struct {
	CallID         string
	PeerConnection *webrtc.PeerConnection
	Track          *webrtc.TrackRemote
}

// DeclineInfo carries the decline reason reported by the other party.
type DeclineInfo struct {
	CallID string
	Reason string
}

// EventHandler is a callback function for call events.
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system.
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[CallEventKey][]EventHandler
}

// NewEventEmitter creates a new EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[CallEventKey][]EventHandler),
	}
}

// On registers an event handler for a specific event key.
func (e *EventEmitter) On(event CallEventKey, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event key.
func (e *EventEmitter) Off(event CallEventKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers.
func (e *EventEmitter) Emit(event CallEventKey, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
