package srt

import (
	"context"
	"errors"
	"fmt"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/rtspcap/internal/source"
)

// runListener accepts publishers one at a time and feeds each to h until
// ctx is cancelled. While a publisher is active, new ones are rejected at
// handshake.
func (s *Source) runListener(ctx context.Context, h source.Handler) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs

	l, err := srtgo.Listen(s.cfg.Addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.cfg.Addr, err)
	}
	s.log.Info("listening", "addr", s.cfg.Addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		return s.admit(req.StreamID)
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key := extractStreamKey(conn.StreamID())
		s.log.Info("publish", "stream_key", key, "remote", conn.RemoteAddr())

		if err := s.serve(ctx, conn, key, conn.RemoteAddr().String(), h); err != nil {
			if errors.Is(err, errDeclined) {
				s.log.Warn("session declined", "stream_key", key)
				continue
			}
			s.log.Warn("publisher failed", "stream_key", key, "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// admit decides a publisher's handshake: a StreamID is required and only
// one publisher may be active.
func (s *Source) admit(streamID string) srtgo.RejectReason {
	if streamID == "" {
		return srtgo.RejPeer
	}
	if s.reg.Len() > 0 {
		s.log.Warn("rejecting publisher, session busy", "stream_id", streamID)
		return srtgo.RejPeer
	}
	return 0
}
