package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/rtspcap/internal/h264"
	"github.com/zsiec/rtspcap/internal/mpegts"
	"github.com/zsiec/rtspcap/internal/source"
)

var errDeclined = errors.New("srt: session declined by handler")

// serve registers conn under key, copies its bytes into the registry pipe
// and feeds the demuxed video to h until the connection ends or ctx is
// cancelled.
func (s *Source) serve(ctx context.Context, conn *srtgo.Conn, key, remote string, h source.Handler) error {
	stream, w, err := s.reg.Register(key)
	if err != nil {
		conn.Close()
		return err
	}
	stream.SetRemoteAddr(remote)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		defer s.reg.Unregister(key)

		buf := make([]byte, readBufferSize)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					s.log.Debug("read error", "stream_key", key, "error", err)
				}
				return
			}
			stream.RecordRead(n)
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stream.Done():
		}
	}()

	err = feed(key, stream.Reader(), h)

	stats := stream.Stats()
	s.reg.Unregister(key)
	conn.Close()
	<-pumpDone

	s.log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.Uptime.Milliseconds())
	return err
}

// feed demuxes the transport stream on r and hands each H.264 NAL unit to
// h with a start code. The session is announced on the first video PES.
// Access unit delimiters and filler data are not forwarded.
func feed(key string, r io.Reader, h source.Handler) error {
	ts := mpegts.NewReader(r)
	announced := false
	var pts time.Duration

	for {
		pes, err := ts.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("demux %s: %w", key, err)
		}

		if !announced {
			if !h.OnNewSession(key, "video", "H264", "") {
				return errDeclined
			}
			announced = true
		}

		if pes.HasPTS {
			pts = ptsToDuration(pes.PTS)
		}
		for _, nalu := range h264.SplitAnnexB(pes.Data) {
			typ, _ := h264.TypeOf(nalu)
			if typ == h264.NALTypeAUD || typ == h264.NALTypeFiller {
				continue
			}
			h.OnData(key, h264.WithStartCode(nalu), pts)
		}
	}
}

// ptsToDuration converts a 90 kHz timestamp. 33 bits of PTS fit in a
// Duration without overflow.
func ptsToDuration(pts int64) time.Duration {
	return time.Duration(pts) * time.Second / 90000
}
