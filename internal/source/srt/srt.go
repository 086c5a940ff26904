package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zsiec/rtspcap/internal/ingest"
	"github.com/zsiec/rtspcap/internal/source"
)

// readBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const readBufferSize = 1316 * 10

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// Mode selects which side of the SRT handshake the source plays.
type Mode int

// Connection modes.
const (
	ModeListener Mode = iota
	ModeCaller
)

func (m Mode) String() string {
	if m == ModeCaller {
		return "caller"
	}
	return "listener"
}

// ParseMode maps "listener" or "caller" to a Mode. Empty means listener.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "listener":
		return ModeListener, nil
	case "caller":
		return ModeCaller, nil
	}
	return 0, fmt.Errorf("srt: unknown mode %q", s)
}

// Config describes an SRT source.
type Config struct {
	// Addr is the host:port to listen on or dial.
	Addr string
	Mode Mode

	// StreamID is sent when dialing. Listeners read it from the publisher.
	StreamID string

	Options  source.Options
	Registry *ingest.Registry
	Logger   *slog.Logger
}

// Source is a source.Source fed by SRT.
type Source struct {
	log *slog.Logger
	cfg Config
	reg *ingest.Registry
}

var _ source.Source = (*Source)(nil)

// New validates cfg and returns a Source. A nil Registry gets a private one.
func New(cfg Config) (*Source, error) {
	if cfg.Addr == "" {
		return nil, errors.New("srt: address is required")
	}
	if cfg.Options.Timeout <= 0 {
		cfg.Options.Timeout = source.DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = ingest.NewRegistry()
	}
	return &Source{
		log: log.With("component", "srt-"+cfg.Mode.String()),
		cfg: cfg,
		reg: reg,
	}, nil
}

// Run implements source.Source.
func (s *Source) Run(ctx context.Context, h source.Handler) error {
	if s.cfg.Mode == ModeCaller {
		return s.runCaller(ctx, h)
	}
	return s.runListener(ctx, h)
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}

// callerStreamID returns the registry key and the SRT stream ID a caller
// announces. Without a configured ID the caller asks for live/default.
func callerStreamID(configured string) (key, streamID string) {
	key = extractStreamKey(configured)
	if configured == "" {
		return key, "live/" + key
	}
	return key, configured
}
