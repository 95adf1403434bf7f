/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"encoding/json"
	"net/http"

	"github.com/pion/webrtc/v4"
	"github.com/vidalink/vidalink-go-sdk/media"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

const (
	initiatePath = "api/calls/initiate"
	icePath      = "api/calls/ice"
	sdpPath      = "api/calls/sdp"
)

type iceForward struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type sdpForward struct {
	CallID  string            `json:"callId"`
	From    string            `json:"from"`
	Kind    signaling.SDPKind `json:"kind"`
	Payload string            `json:"payload"`
}

// forwardCandidate posts one locally gathered candidate to the relay.
// Fire-and-forget: a failure is logged and never retried, since a single
// lost candidate must not abort the call.
func forwardCandidate(core *vidalinksdk.Client, from, callID string, c *webrtc.ICECandidate) {
	raw, err := media.MarshalCandidate(c)
	if err != nil {
		core.GetLogger().Printf("calling: failed to encode ICE candidate for call %s: %v", callID, err)
		return
	}

	go func() {
		resp, err := core.Request(http.MethodPost, icePath, nil, &iceForward{
			CallID:    callID,
			From:      from,
			Candidate: raw,
		})
		if err == nil {
			err = vidalinksdk.ParseResponse(resp, nil)
		}
		if err != nil {
			core.GetLogger().Printf("calling: ICE forward failed for call %s: %v", callID, err)
		}
	}()
}

// postSDP sends a session description to the relay, which forwards it into
// the call's room as a call:sdp event for the other party.
func postSDP(core *vidalinksdk.Client, from, callID string, kind signaling.SDPKind, payload string) error {
	resp, err := core.Request(http.MethodPost, sdpPath, nil, &sdpForward{
		CallID:  callID,
		From:    from,
		Kind:    kind,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return vidalinksdk.ParseResponse(resp, nil)
}
