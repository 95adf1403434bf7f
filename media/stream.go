/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalStream is a set of local media tracks plus the cleanup needed to
// release the devices behind them. Stop is idempotent and never fails;
// release errors are logged and swallowed because a call that is ending
// cannot do anything useful with them.
type LocalStream struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	stops   []func() error
	stopped bool
}

// NewLocalStream builds a stream from tracks and their release functions.
func NewLocalStream(tracks []webrtc.TrackLocal, stops []func() error) *LocalStream {
	return &LocalStream{tracks: tracks, stops: stops}
}

// Tracks returns the local tracks of the stream.
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// LiveTracks returns the number of tracks still held. Zero after Stop.
func (s *LocalStream) LiveTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	return len(s.tracks)
}

// Stop releases every device behind the stream. Safe to call more than
// once; only the first call does work.
func (s *LocalStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, stop := range s.stops {
		if err := stop(); err != nil {
			log.Printf("media: error releasing capture device: %v", err)
		}
	}
}

// Source acquires local media for a call. Implementations decide where the
// media comes from: capture hardware, a file, or synthetic tracks.
type Source interface {
	Acquire() (*LocalStream, error)
}

// StaticSource provides synthetic VP8 and Opus sample tracks with no
// device access. Samples must be written by the application; useful for
// headless senders and in tests.
type StaticSource struct{}

// NewStaticSource returns a Source backed by static sample tracks.
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// Acquire creates one VP8 video track and one Opus audio track.
func (s *StaticSource) Acquire() (*LocalStream, error) {
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, "video", "vidalink")
	if err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", "vidalink")
	if err != nil {
		return nil, err
	}

	return NewLocalStream([]webrtc.TrackLocal{video, audio}, nil), nil
}
