/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package vidalink

import (
	"net/url"
	"testing"

	"github.com/vidalink/vidalink-go-sdk/vidalinksdk"
)

func TestNewClient(t *testing.T) {
	t.Run("with default config", func(t *testing.T) {
		client, err := NewClient("", nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.Core() == nil {
			t.Error("Expected non-nil core client")
		}
		if client.Credentials() == nil {
			t.Error("Expected non-nil credential manager")
		}
		if client.Signaling() == nil {
			t.Error("Expected non-nil signaling client")
		}
		if client.Calling() == nil {
			t.Error("Expected non-nil calling client")
		}
	})

	t.Run("with seed token", func(t *testing.T) {
		client, err := NewClient("seed-token", nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.Core().GetAccessToken() != "seed-token" {
			t.Error("Expected seed token on core client")
		}
	})

	t.Run("with invalid base URL", func(t *testing.T) {
		_, err := NewClient("", &Config{
			Core: &vidalinksdk.Config{BaseURL: "://not-a-url"},
		})
		if err == nil {
			t.Error("Expected error for invalid base URL")
		}
	})
}

func TestDeriveSignalingURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"https to wss", "https://relay.vidalink.io", "wss://relay.vidalink.io/ws"},
		{"http to ws", "http://localhost:8080", "ws://localhost:8080/ws"},
		{"trailing slash collapsed", "https://relay.vidalink.io/", "wss://relay.vidalink.io/ws"},
		{"path preserved", "https://relay.vidalink.io/v1", "wss://relay.vidalink.io/v1/ws"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, err := url.Parse(tc.base)
			if err != nil {
				t.Fatalf("Failed to parse base URL: %v", err)
			}
			if got := deriveSignalingURL(base); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}
