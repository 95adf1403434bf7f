/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"errors"
	"fmt"
)

// ErrCallingDisabled is returned by StartCall when the call subsystem is
// disabled by configuration. It is a documented no-op, not an alarm: the
// caller should treat it as "feature off", not as a fault.
var ErrCallingDisabled = errors.New("calling is disabled by configuration")

// DuplicateCallError reports a second registry entry for a call ID that is
// already tracked. This indicates a logic error upstream; in correct
// operation it never occurs.
type DuplicateCallError struct {
	CallID string
}

func (e *DuplicateCallError) Error() string {
	return fmt.Sprintf("call %q is already registered", e.CallID)
}

// InitiationError reports a terminal non-auth failure of the HTTP
// initiation request, carrying the status detail when one is available.
type InitiationError struct {
	StatusCode int
	Err        error
}

func (e *InitiationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("call initiation failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("call initiation failed: %v", e.Err)
}

func (e *InitiationError) Unwrap() error { return e.Err }

// MediaError reports a terminal failure to acquire or wire local media.
// No partial call state is left registered when it is returned.
type MediaError struct {
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("local media setup failed: %v", e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }
