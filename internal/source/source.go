// Package source defines the contract between a transport that delivers
// timestamped NAL units and the capturer that consumes them, along with the
// session options every transport understands.
package source

import (
	"context"
	"time"
)

// Handler receives session negotiation and media data from a transport.
// A transport calls it from a single goroutine.
type Handler interface {
	// OnNewSession offers a negotiated media subsession. sdp holds the
	// subsession's SDP lines when the transport has them. Returning false
	// declines the subsession.
	OnNewSession(sessionID, mediaKind, codecName, sdp string) bool

	// OnData delivers one buffer: for H.264 a start code followed by a
	// single NAL unit, for JPEG a complete picture. Returning false means
	// the buffer was dropped.
	OnData(sessionID string, buf []byte, pts time.Duration) bool
}

// Source drives a Handler until ctx is cancelled or the session ends.
// Run returns nil when it stopped because of ctx.
type Source interface {
	Run(ctx context.Context, h Handler) error
}
