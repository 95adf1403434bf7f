/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling implements the call lifecycle state machine and the two
// signaling coordinator roles. The Initiator places calls through the relay
// HTTP API and drives the offer side of the exchange; the Responder listens
// for inbound ring notifications and drives the answer side. Both share one
// Active Call Registry that owns the per-call media resources.
package calling

import (
	"github.com/vidalink/vidalink-go-sdk/credentials"
	"github.com/vidalink/vidalink-go-sdk/media"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// Channel is the slice of the signaling transport the coordinators use.
// *signaling.Client satisfies it; tests substitute a fake.
type Channel interface {
	JoinCall(callID string) error
	ForgetCall(callID string)
	Send(event *signaling.Event) error
	On(eventType signaling.EventType, handler signaling.Handler)
	Disconnect() error
}

// Config holds configuration shared by both coordinator roles.
type Config struct {
	// Enabled gates the entire call subsystem. When false, StartCall
	// returns ErrCallingDisabled without any network activity.
	Enabled bool

	// LocalPartyID is the stable identity used in initiation and ICE/SDP
	// forwarding.
	LocalPartyID string

	// DisplayName is the human-readable name sent with inbound-call
	// notifications to the other party.
	DisplayName string

	// Department tags outbound calls for relay-side routing.
	Department string

	// Media is the per-call WebRTC configuration (ICE servers and so on).
	Media *media.Config

	// Source acquires the local capture stream for each call. If nil,
	// local capture hardware is used.
	Source media.Source
}

// DefaultConfig returns a Config with calling enabled and hardware capture.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Media:   media.DefaultConfig(),
		Source:  media.NewDeviceSource(),
	}
}

// Client is the top-level Calling client aggregating both coordinator roles.
type Client struct {
	core     *vidalinksdk.Client
	creds    *credentials.Manager
	channel  Channel
	config   *Config
	registry *Registry

	initiator *Initiator
	responder *Responder
}

// New creates a new Calling client. The coordinator roles are created
// lazily and share a single registry.
func New(core *vidalinksdk.Client, creds *credentials.Manager, channel Channel, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Source == nil {
		config.Source = media.NewDeviceSource()
	}

	return &Client{
		core:     core,
		creds:    creds,
		channel:  channel,
		config:   config,
		registry: NewRegistry(),
	}
}

// Registry returns the shared Active Call Registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Initiator returns the coordinator used by the calling party.
func (c *Client) Initiator() *Initiator {
	if c.initiator == nil {
		c.initiator = newInitiator(c.core, c.creds, c.channel, c.registry, c.config)
	}
	return c.initiator
}

// Responder returns the coordinator used by the receiving party.
func (c *Client) Responder() *Responder {
	if c.responder == nil {
		c.responder = newResponder(c.core, c.creds, c.channel, c.registry, c.config)
	}
	return c.responder
}

// Shutdown tears down every tracked call, releases its resources, and
// closes the signaling connection. It never fails.
func (c *Client) Shutdown() {
	for callID, res := range c.registry.DrainAll() {
		res.release()
		c.channel.ForgetCall(callID)
	}
	if err := c.channel.Disconnect(); err != nil {
		c.core.GetLogger().Printf("calling: error closing signaling connection: %v", err)
	}
}
