/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "sync"

// Registry is the Active Call Registry: the single owner of every live
// call's session resources. At most one entry exists per call ID. The
// registry tracks ownership only; it never releases resources itself. The
// coordinator that removes an entry stops the stream and closes the peer
// connection in the same operation, on every termination path.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Resources
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Resources),
	}
}

// Put registers resources under a call ID. If an entry already exists the
// original is left unchanged and a *DuplicateCallError is returned.
func (r *Registry) Put(callID string, res *Resources) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[callID]; exists {
		return &DuplicateCallError{CallID: callID}
	}
	r.entries[callID] = res
	return nil
}

// Get returns the resources for a call ID, if tracked.
func (r *Registry) Get(callID string) (*Resources, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.entries[callID]
	return res, ok
}

// Remove deletes and returns the entry for a call ID. Removing an absent
// entry is a no-op, never an error.
func (r *Registry) Remove(callID string) (*Resources, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.entries[callID]
	if ok {
		delete(r.entries, callID)
	}
	return res, ok
}

// DrainAll removes and returns every entry. Used for full shutdown.
func (r *Registry) DrainAll() map[string]*Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.entries
	r.entries = make(map[string]*Resources)
	return drained
}

// Len returns the number of tracked calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
