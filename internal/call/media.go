package call

import (
	"context"
)

// MediaTrack is one local capture track (mic or camera).
type MediaTrack interface {
	Kind() string // "audio" | "video"
	Stop()
}

// MediaStream bundles the local tracks acquired for a call.
type MediaStream interface {
	Tracks() []MediaTrack
}

// MediaDevices acquires local capture hardware. Acquisition is
// asynchronous and can fail (permission denied, device busy); on error
// any partially-acquired stream is still returned so the caller can
// release it.
type MediaDevices interface {
	Acquire(ctx context.Context, video bool) (MediaStream, error)
}

// stopTracks releases every track of a stream. Nil-safe.
func stopTracks(stream MediaStream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}
