/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import "encoding/json"

// EventType identifies the type of a signaling event.
type EventType string

const (
	// EventJoinCall is sent by a coordinator to enter a call's room.
	EventJoinCall EventType = "join:call"

	// EventCallUpdate carries a call state transition (ringing, accepted,
	// declined, ended) from either party.
	EventCallUpdate EventType = "call:update"

	// EventCallSDP carries a session description (offer or answer).
	EventCallSDP EventType = "call:sdp"

	// EventCallICE carries a single ICE candidate.
	EventCallICE EventType = "call:ice"

	// EventCallIncoming notifies a staff party of an inbound call.
	EventCallIncoming EventType = "call:incoming"
)

// SDPKind discriminates session-description events.
type SDPKind string

const (
	SDPKindOffer  SDPKind = "offer"
	SDPKindAnswer SDPKind = "answer"
)

// CallerInfo describes the calling party on an inbound-call notification.
type CallerInfo struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Department  string `json:"department,omitempty"`
}

// Event is a single signaling message exchanged with the relay. Events are
// transient: their only durable effect is mutating a call's state or feeding
// a peer connection.
type Event struct {
	Type   EventType `json:"type"`
	CallID string    `json:"callId,omitempty"`

	// call:update fields
	State   string `json:"state,omitempty"`
	StaffID string `json:"staffId,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// call:sdp fields
	Kind    SDPKind `json:"kind,omitempty"`
	Payload string  `json:"payload,omitempty"`

	// call:ice field, kept raw so the media layer decides the candidate shape
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// call:incoming field
	CallerInfo *CallerInfo `json:"callerInfo,omitempty"`
}

// Handler is a function that handles a signaling event.
type Handler func(event *Event)
