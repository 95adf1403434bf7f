/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

//go:build linux && cgo

package media

import (
	"errors"
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceSource captures local camera and microphone via pion/mediadevices
// (V4L2 + malgo on Linux).
type DeviceSource struct {
	// VideoBitRate is the target VP8 bitrate in bits per second.
	// Zero means 1.5 Mbps.
	VideoBitRate int
}

// NewDeviceSource returns a Source backed by local capture hardware.
func NewDeviceSource() *DeviceSource {
	return &DeviceSource{}
}

// Acquire opens the camera and microphone. GetUserMedia fails as a unit if
// either track cannot be opened, so it tries video+audio first, then
// video-only, then audio-only: a missing or busy microphone should not
// prevent the camera from working and vice versa. When every attempt fails
// an error is returned and no devices are held.
func (d *DeviceSource) Acquire() (*LocalStream, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = d.VideoBitRate
	if vpxParams.BitRate == 0 {
		vpxParams.BitRate = 1_500_000
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		log.Printf("media: no capture devices found by pion/mediadevices")
	}
	for _, dev := range devices {
		log.Printf("media: capture device kind=%v label=%q", dev.Kind, dev.Label)
	}

	type attempt struct {
		video bool
		audio bool
		label string
	}
	var lastErr error
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Exclude MJPEG. Some cameras expose an MJPEG V4L2 node that
				// produces malformed JPEG frames, which poisons the VP8
				// encoder and breaks SDP negotiation. Raw formats only.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				// Cap at 640x480 to keep VP8 encoding latency down.
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Printf("media: GetUserMedia (%s) failed: %v", a.label, err)
			lastErr = err
			continue
		}

		mdTracks := stream.GetTracks()
		tracks := make([]webrtc.TrackLocal, 0, len(mdTracks))
		stops := make([]func() error, 0, len(mdTracks))
		for _, track := range mdTracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Printf("media: local track ended: %v", err)
				}
			})
			tracks = append(tracks, track)
			stops = append(stops, track.Close)
		}

		log.Printf("media: local media captured (%s), %d tracks", a.label, len(tracks))
		return NewLocalStream(tracks, stops), nil
	}

	if lastErr == nil {
		lastErr = errors.New("no capture constraints could be satisfied")
	}
	return nil, lastErr
}
