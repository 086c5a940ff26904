package srt

import (
	"context"
	"fmt"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/rtspcap/internal/source"
)

// runCaller dials the remote listener and feeds its stream to h. The dial
// is bounded by the timeout option.
func (s *Source) runCaller(ctx context.Context, h source.Handler) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	key, streamID := callerStreamID(s.cfg.StreamID)
	cfg.StreamID = streamID
	s.log.Info("dialing", "address", s.cfg.Addr, "stream_key", key)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(s.cfg.Addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timeout := s.cfg.Options.Timeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	drain := func() {
		// Close any connection the dial produces after we gave up on it.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	var conn *srtgo.Conn
	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial failed: %w", res.err)
		}
		conn = res.conn
	case <-timer.C:
		drain()
		return fmt.Errorf("SRT dial timed out after %s", timeout)
	case <-ctx.Done():
		drain()
		return nil
	}

	s.log.Info("connected", "address", s.cfg.Addr, "stream_key", key)
	if err := s.serve(ctx, conn, key, s.cfg.Addr, h); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
