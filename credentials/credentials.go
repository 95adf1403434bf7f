/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package credentials manages the bearer token used by every other plugin.
// A process holds exactly one live credential; replacing it (on refresh)
// invalidates any transport connection that was authenticated with the old
// value, forcing reconnection with the new one.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

// RefreshMargin is the safety margin before expiry at which EnsureValid
// stops trusting the current token and refreshes it.
const RefreshMargin = 5 * time.Minute

// loginPath is the relay endpoint that issues tokens.
const loginPath = "api/auth/login"

// Invalidator is a connection that must be closed when the credential it
// was authenticated with is replaced. *signaling.Client satisfies this.
type Invalidator interface {
	Disconnect() error
}

// Config holds the configuration for the credentials Manager.
type Config struct {
	// Identity is the local party's stable identity sent to the login endpoint.
	Identity string

	// Role is the party role, "client" or "staff".
	Role string

	// Metadata holds extra fields included in the login request body.
	Metadata map[string]string

	// Token optionally seeds the manager with an existing credential.
	// Its expiry is decoded from the token itself.
	Token string
}

// Manager holds the process-wide credential: a bearer token plus its decoded
// expiry. Refresh is the single writer; Token may be read concurrently.
type Manager struct {
	core   *vidalinksdk.Client
	config *Config

	mu           sync.RWMutex
	token        string
	expiry       time.Time
	invalidators []Invalidator
}

// New creates a credentials Manager bound to the given core client. If the
// config carries a seed token, it is pushed into the core client immediately.
func New(core *vidalinksdk.Client, config *Config) *Manager {
	if config == nil {
		config = &Config{}
	}

	m := &Manager{
		core:   core,
		config: config,
	}

	if config.Token != "" {
		m.store(config.Token)
	}

	return m
}

// Token returns the current bearer token, or "" if none has been issued yet.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Expiry returns the decoded expiry of the current token. The zero time
// means "unknown or malformed", which EnsureValid treats as already stale.
func (m *Manager) Expiry() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiry
}

// AddInvalidator registers a connection to be closed whenever the credential
// is replaced.
func (m *Manager) AddInvalidator(inv Invalidator) {
	if inv == nil {
		return
	}
	m.mu.Lock()
	m.invalidators = append(m.invalidators, inv)
	m.mu.Unlock()
}

// EnsureValid returns immediately if the current credential's expiry is more
// than RefreshMargin in the future. Otherwise it performs exactly one
// Refresh. An error means "cannot proceed with this operation"; callers
// surface it rather than retrying in a loop.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.RLock()
	expiry := m.expiry
	m.mu.RUnlock()

	if time.Until(expiry) > RefreshMargin {
		return nil
	}
	return m.Refresh(ctx)
}

// Refresh calls the login endpoint with the local party's identity, replaces
// the stored credential on success, and disconnects every registered
// Invalidator so the next use re-authenticates with the new token.
func (m *Manager) Refresh(ctx context.Context) error {
	body := map[string]string{
		"identity": m.config.Identity,
		"role":     m.config.Role,
	}
	for k, v := range m.config.Metadata {
		body[k] = v
	}

	resp, err := m.core.RequestWithContext(ctx, http.MethodPost, loginPath, nil, body)
	if err != nil {
		return fmt.Errorf("credential refresh failed: %w", err)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := vidalinksdk.ParseResponse(resp, &result); err != nil {
		return fmt.Errorf("credential refresh failed: %w", err)
	}
	if result.Token == "" {
		return fmt.Errorf("credential refresh failed: login response carried no token")
	}

	invalidators := m.store(result.Token)

	// Connections authenticated with the old token are now invalid. Closing
	// them here is what guarantees reconnection picks up the new value;
	// close errors never block the replacement.
	for _, inv := range invalidators {
		if err := inv.Disconnect(); err != nil {
			m.core.GetLogger().Printf("credentials: error closing stale connection: %v", err)
		}
	}

	return nil
}

// store replaces the credential and pushes it into the core client.
// It returns the invalidator list snapshot to close outside the lock.
func (m *Manager) store(token string) []Invalidator {
	expiry := decodeExpiry(token)

	m.mu.Lock()
	m.token = token
	m.expiry = expiry
	invalidators := make([]Invalidator, len(m.invalidators))
	copy(invalidators, m.invalidators)
	m.mu.Unlock()

	m.core.SetAccessToken(token)
	return invalidators
}

// signatureAlgorithms lists the algorithms the relay is known to sign with.
// The list is only used to parse the token envelope; the signature itself is
// never verified here. The relay is the verifier, this client only needs
// the exp claim to schedule refreshes.
var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.RS256, jose.ES256, jose.EdDSA,
}

// decodeExpiry extracts the exp claim from a bearer token. A malformed or
// unparseable token yields the zero time, which makes it immediately stale
// and triggers a refresh instead of propagating a parse error.
func decodeExpiry(token string) time.Time {
	parsed, err := jwt.ParseSigned(token, signatureAlgorithms)
	if err != nil {
		return time.Time{}
	}

	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}
	}
	if claims.Expiry == nil {
		return time.Time{}
	}
	return claims.Expiry.Time()
}
