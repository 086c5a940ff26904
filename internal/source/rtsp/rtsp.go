// Package rtsp implements an RTSP source. It negotiates the first video
// subsession the handler accepts, depacketizes its RTP stream and hands the
// handler one H.264 NAL unit or one JPEG picture per call.
package rtsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph264"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpmjpeg"
	"github.com/pion/rtp"

	"github.com/zsiec/rtspcap/internal/h264"
	"github.com/zsiec/rtspcap/internal/source"
)

// ErrNoMedia is returned when the server offers no video subsession the
// handler accepts.
var ErrNoMedia = errors.New("rtsp: no acceptable video media")

// Source is a source.Source backed by an RTSP client session.
type Source struct {
	log  *slog.Logger
	url  *base.URL
	opts source.Options
}

var _ source.Source = (*Source)(nil)

// New parses rawURL and returns a Source. If log is nil, slog.Default() is
// used.
func New(rawURL string, opts source.Options, log *slog.Logger) (*Source, error) {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rtsp: parse url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = source.DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		log:  log.With("component", "rtsp", "url", rawURL),
		url:  u,
		opts: opts,
	}, nil
}

// Run implements source.Source.
func (s *Source) Run(ctx context.Context, h source.Handler) error {
	transport := s.transport()
	c := gortsplib.Client{
		Transport:    &transport,
		ReadTimeout:  s.opts.Timeout,
		WriteTimeout: s.opts.Timeout,
	}

	if err := c.Start(s.url.Scheme, s.url.Host); err != nil {
		return fmt.Errorf("rtsp: connect: %w", err)
	}
	defer c.Close()

	desc, _, err := c.Describe(s.url)
	if err != nil {
		return fmt.Errorf("rtsp: describe: %w", err)
	}

	medi, forma, sessionID, err := s.negotiate(desc, h)
	if err != nil {
		return err
	}

	if _, err := c.Setup(desc.BaseURL, medi, 0, 0); err != nil {
		return fmt.Errorf("rtsp: setup: %w", err)
	}

	deliver, err := s.depacketizer(forma, sessionID, h)
	if err != nil {
		return err
	}
	c.OnPacketRTP(medi, forma, func(pkt *rtp.Packet) {
		pts, ok := c.PacketPTS(medi, pkt)
		if !ok {
			return
		}
		deliver(pkt, pts)
	})

	if _, err := c.Play(nil); err != nil {
		return fmt.Errorf("rtsp: play: %w", err)
	}
	s.log.Info("playing", "session", sessionID, "codec", forma.Codec(), "transport", s.opts.Transport)

	waitErr := make(chan error, 1)
	go func() { waitErr <- c.Wait() }()

	select {
	case <-ctx.Done():
		c.Close()
		<-waitErr
		return nil
	case err := <-waitErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rtsp: session ended: %w", err)
	}
}

func (s *Source) transport() gortsplib.Transport {
	switch s.opts.Transport {
	case source.TransportTCP:
		return gortsplib.TransportTCP
	case source.TransportHTTP:
		s.log.Warn("HTTP tunneling is not supported, using TCP")
		return gortsplib.TransportTCP
	case source.TransportUDPMulticast:
		return gortsplib.TransportUDPMulticast
	}
	return gortsplib.TransportUDP
}

// negotiate offers each video media with a supported format to h and
// returns the first one accepted.
func (s *Source) negotiate(desc *description.Session, h source.Handler) (*description.Media, format.Format, string, error) {
	for i, medi := range desc.Medias {
		if medi.Type != description.MediaTypeVideo {
			continue
		}
		forma, codec := supportedFormat(medi)
		if forma == nil {
			continue
		}
		sessionID := s.url.String() + "#" + strconv.Itoa(i)
		if h.OnNewSession(sessionID, "video", codec, sdpFragment(forma)) {
			return medi, forma, sessionID, nil
		}
		s.log.Debug("media declined", "session", sessionID, "codec", codec)
	}
	return nil, nil, "", ErrNoMedia
}

func supportedFormat(medi *description.Media) (format.Format, string) {
	for _, f := range medi.Formats {
		switch f.(type) {
		case *format.H264:
			return f, "H264"
		case *format.MJPEG:
			return f, "JPEG"
		}
	}
	return nil, ""
}

// sdpFragment renders the media-level SDP lines of forma.
func sdpFragment(forma format.Format) string {
	pt := strconv.Itoa(int(forma.PayloadType()))

	var b strings.Builder
	b.WriteString("m=video 0 RTP/AVP " + pt + "\r\n")
	if rtpmap := forma.RTPMap(); rtpmap != "" {
		b.WriteString("a=rtpmap:" + pt + " " + rtpmap + "\r\n")
	}
	if fmtp := forma.FMTP(); len(fmtp) > 0 {
		keys := make([]string, 0, len(fmtp))
		for k := range fmtp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := make([]string, len(keys))
		for i, k := range keys {
			params[i] = k + "=" + fmtp[k]
		}
		b.WriteString("a=fmtp:" + pt + " " + strings.Join(params, "; ") + "\r\n")
	}
	return b.String()
}

// depacketizer returns the RTP callback for forma. It runs on the client's
// reader goroutine, one packet at a time.
func (s *Source) depacketizer(forma format.Format, sessionID string, h source.Handler) (func(*rtp.Packet, time.Duration), error) {
	switch f := forma.(type) {
	case *format.H264:
		dec, err := f.CreateDecoder()
		if err != nil {
			return nil, fmt.Errorf("rtsp: h264 depacketizer: %w", err)
		}
		return func(pkt *rtp.Packet, pts time.Duration) {
			nalus, err := dec.Decode(pkt)
			if err != nil {
				if !errors.Is(err, rtph264.ErrMorePacketsNeeded) && !errors.Is(err, rtph264.ErrNonStartingPacketAndNoPrevious) {
					s.log.Debug("h264 depacketize", "error", err)
				}
				return
			}
			for _, nalu := range nalus {
				if len(nalu) == 0 {
					continue
				}
				h.OnData(sessionID, h264.WithStartCode(nalu), pts)
			}
		}, nil

	case *format.MJPEG:
		dec, err := f.CreateDecoder()
		if err != nil {
			return nil, fmt.Errorf("rtsp: mjpeg depacketizer: %w", err)
		}
		return func(pkt *rtp.Packet, pts time.Duration) {
			img, err := dec.Decode(pkt)
			if err != nil {
				if !errors.Is(err, rtpmjpeg.ErrMorePacketsNeeded) && !errors.Is(err, rtpmjpeg.ErrNonStartingPacketAndNoPrevious) {
					s.log.Debug("mjpeg depacketize", "error", err)
				}
				return
			}
			h.OnData(sessionID, img, pts)
		}, nil
	}
	return nil, fmt.Errorf("rtsp: unsupported format %s", forma.Codec())
}
