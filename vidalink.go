/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package vidalink is the top-level client for the VidaLink relay: service
// video calls between clients and staff, signaled over a websocket channel
// and negotiated peer-to-peer with WebRTC.
package vidalink

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/vidalink/vidalink-go-sdk/calling"
	"github.com/vidalink/vidalink-go-sdk/credentials"
	"github.com/vidalink/vidalink-go-sdk/signaling"
	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// Config bundles the per-plugin configurations. Any nil field falls back to
// that plugin's defaults.
type Config struct {
	// Core configures the HTTP client (base URL, timeout, headers).
	Core *vidalinksdk.Config

	// Credentials configures login identity and role.
	Credentials *credentials.Config

	// Calling configures the call coordinators.
	Calling *calling.Config

	// Signaling configures the websocket channel (keepalive, backoff).
	Signaling *signaling.Config

	// SignalingURL overrides the websocket endpoint. When empty it is
	// derived from the core base URL (https → wss, path /ws).
	SignalingURL string
}

// VidaLinkClient is the top-level client. It owns the core HTTP client, the
// credential manager, and the signaling channel; the calling plugin is
// initialized lazily.
type VidaLinkClient struct {
	core        *vidalinksdk.Client
	credentials *credentials.Manager
	signaling   *signaling.Client

	mu            sync.Mutex
	callingClient *calling.Client
}

// NewClient creates a new VidaLink client. The access token may be empty;
// the credential manager logs in on first use. Replacing the credential
// closes the live signaling connection so the next use re-authenticates
// with the new value.
func NewClient(accessToken string, config *Config) (*VidaLinkClient, error) {
	if config == nil {
		config = &Config{}
	}

	core, err := vidalinksdk.NewClient(accessToken, config.Core)
	if err != nil {
		return nil, err
	}

	creds := credentials.New(core, config.Credentials)

	wsURL := config.SignalingURL
	if wsURL == "" {
		wsURL = deriveSignalingURL(core.BaseURL)
	}

	sig := signaling.New(wsURL, creds, config.Signaling)
	creds.AddInvalidator(sig)

	client := &VidaLinkClient{
		core:        core,
		credentials: creds,
		signaling:   sig,
	}
	client.callingClient = calling.New(core, creds, sig, config.Calling)

	return client, nil
}

// deriveSignalingURL maps the relay HTTP base URL onto its websocket
// endpoint.
func deriveSignalingURL(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

// Core returns the core HTTP client.
func (c *VidaLinkClient) Core() *vidalinksdk.Client {
	return c.core
}

// Credentials returns the credential manager.
func (c *VidaLinkClient) Credentials() *credentials.Manager {
	return c.credentials
}

// Signaling returns the websocket signaling channel.
func (c *VidaLinkClient) Signaling() *signaling.Client {
	return c.signaling
}

// Calling returns the Calling plugin.
func (c *VidaLinkClient) Calling() *calling.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callingClient
}

// Connect ensures a fresh credential and opens the signaling channel.
func (c *VidaLinkClient) Connect(ctx context.Context) error {
	if err := c.credentials.EnsureValid(ctx); err != nil {
		return err
	}
	return c.signaling.Connect()
}

// Shutdown tears down every active call and closes the signaling channel.
// It never fails.
func (c *VidaLinkClient) Shutdown() {
	c.Calling().Shutdown()
}
