/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

//go:build !linux || !cgo

package media

import "errors"

// DeviceSource captures local camera and microphone. Only Linux capture
// drivers are wired at the moment; other platforms get an explicit error
// so callers can fall back to a StaticSource.
type DeviceSource struct {
	VideoBitRate int
}

// NewDeviceSource returns a Source backed by local capture hardware.
func NewDeviceSource() *DeviceSource {
	return &DeviceSource{}
}

// Acquire always fails on this platform.
func (d *DeviceSource) Acquire() (*LocalStream, error) {
	return nil, errors.New("local media capture is not supported on this platform")
}
