// Package capture turns a live H.264 or JPEG session into a stream of paced
// 4:2:0 pictures. The transport calls OnNewSession and OnData on its ingest
// goroutine; parameter sets are tracked there, access units are queued to a
// dedicated decode worker, and decoded pictures are released to the
// Consumer at the cadence of their source timestamps.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zsiec/ccx"

	"github.com/zsiec/rtspcap/internal/decoder"
	"github.com/zsiec/rtspcap/internal/framequeue"
	"github.com/zsiec/rtspcap/internal/h264"
	"github.com/zsiec/rtspcap/internal/pacing"
	"github.com/zsiec/rtspcap/internal/source"
	"github.com/zsiec/rtspcap/media"
)

// NominalFPS is reported in the capture format; the stream itself is not
// probed for a frame rate.
const NominalFPS = 25

// State is the lifecycle state of a Capturer.
type State int32

// Lifecycle states.
const (
	StateIdle State = iota
	StateNegotiating
	StateDecoding
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateDecoding:
		return "decoding"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Consumer receives every picture the capturer produces.
type Consumer interface {
	OnFrame(img *image.YCbCr, height, width int)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(img *image.YCbCr, height, width int)

// OnFrame calls f.
func (f ConsumerFunc) OnFrame(img *image.YCbCr, height, width int) { f(img, height, width) }

// Format describes the pictures currently being produced.
type Format struct {
	Width  int
	Height int
	FPS    int
}

// Session is the media subsession accepted by OnNewSession.
type Session struct {
	ID    string
	Codec media.Codec

	// ParamSets is the latest SPS followed by the PPS units seen since,
	// each with its start code. It is prepended to every IDR frame.
	ParamSets []byte
}

// Config wires a Capturer to its collaborators.
type Config struct {
	// Consumer receives decoded pictures. Required.
	Consumer Consumer

	// Decoders builds H.264 decoders. Required for H.264 sessions.
	Decoders decoder.Factory

	// Source, when set, is run on the ingest goroutine by Start.
	Source source.Source

	// Clock drives pacing. Nil uses the real clock.
	Clock clockwork.Clock

	// Registerer receives the capture metrics. Nil registers them with a
	// private registry.
	Registerer prometheus.Registerer

	// Captions, when set, receives CEA-608/708 caption updates carried in
	// SEI units.
	Captions func(*ccx.CaptionFrame)

	Logger *slog.Logger
}

// workItem is a frame for the decoder or an ownership change of the
// decoder itself.
type workItem struct {
	frame   media.Frame
	install decoder.Decoder
	retire  bool
}

// Capturer implements source.Handler.
type Capturer struct {
	log      *slog.Logger
	cfg      Config
	state    atomic.Int32
	queue    *framequeue.Queue[workItem]
	pacer    *pacing.Pacer
	metrics  *metrics
	inputs   decoder.InputPool
	captions *captionTap

	// Ingest-side state. Never held across a decode or a pacing sleep.
	mu      sync.Mutex
	session *Session
	active  *h264.SPS
	format  Format

	runMu      sync.Mutex
	started    bool
	cancel     context.CancelFunc
	ingestDone chan struct{}
	ingestErr  error
	workerDone chan struct{}
}

var _ source.Handler = (*Capturer)(nil)

// New validates cfg and returns a Capturer in the negotiating state.
func New(cfg Config) (*Capturer, error) {
	if cfg.Consumer == nil {
		return nil, errors.New("capture: consumer is required")
	}
	if cfg.Decoders == nil {
		return nil, errors.New("capture: decoder factory is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Capturer{
		log:   log.With("component", "capture"),
		cfg:   cfg,
		queue: framequeue.New[workItem](),
	}
	c.metrics = newMetrics(reg, func() float64 { return float64(c.queue.Len()) })
	c.pacer = pacing.New(cfg.Clock, c.forward)
	if cfg.Captions != nil {
		c.captions = newCaptionTap(cfg.Captions, c.metrics.captions)
	}
	c.state.Store(int32(StateNegotiating))
	return c, nil
}

// State returns the current lifecycle state.
func (c *Capturer) State() State {
	return State(c.state.Load())
}

// Format returns the format of the pictures being produced. ok is false
// until the first SPS or JPEG picture establishes one.
func (c *Capturer) Format() (Format, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format, c.format.Width > 0
}

// Session returns a copy of the negotiated session, if any.
func (c *Capturer) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	s := *c.session
	s.ParamSets = append([]byte(nil), s.ParamSets...)
	return s, true
}

// setState moves to s unless the capturer has stopped.
func (c *Capturer) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateStopped || State(cur) == s {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			c.log.Debug("state change", "from", State(cur), "to", s)
			return
		}
	}
}

// Start launches the decode worker and, when a Source is configured, the
// ingest goroutine.
func (c *Capturer) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.State() == StateStopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)

	c.workerDone = make(chan struct{})
	go c.runWorker()

	if c.cfg.Source != nil {
		c.ingestDone = make(chan struct{})
		go func() {
			defer close(c.ingestDone)
			if err := c.cfg.Source.Run(ctx, c); err != nil {
				c.log.Error("source stopped", "error", err)
				c.ingestErr = err
			}
		}()
	}
	c.log.Info("started", "state", c.State())
	return nil
}

// Done is closed when the ingest goroutine exits. It is nil before Start
// and when no Source is configured.
func (c *Capturer) Done() <-chan struct{} {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.ingestDone
}

// Stop halts ingestion, then lets the worker finish the frames queued so
// far and exit. Frames offered after Stop begins are not decoded. Stop
// returns the error the source ended with, if any, and is idempotent.
func (c *Capturer) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.State() == StateStopped {
		return c.ingestErr
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.ingestDone != nil {
		<-c.ingestDone
	}

	c.mu.Lock()
	c.session = nil
	c.active = nil
	c.format = Format{}
	c.mu.Unlock()
	c.state.Store(int32(StateStopped))

	c.queue.Close()
	if c.workerDone != nil {
		<-c.workerDone
	} else {
		c.drainUnstarted()
	}
	c.pacer.Reset()

	c.log.Info("stopped")
	return c.ingestErr
}

// Run starts the capturer and stops it when ctx is cancelled or the source
// ends, whichever comes first.
func (c *Capturer) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.Done():
	}
	return c.Stop()
}

// OnNewSession accepts video subsessions carrying H.264 or JPEG. For H.264
// the SDP's sprop-parameter-sets, when present, are fed through OnData so a
// decoder can be built before the first in-band SPS.
func (c *Capturer) OnNewSession(sessionID, mediaKind, codecName, sdp string) bool {
	if c.State() == StateStopped {
		return false
	}
	log := c.log.With("session", sessionID, "media", mediaKind, "codec", codecName)
	if mediaKind != "video" {
		log.Debug("declining non-video subsession")
		return false
	}
	codec := media.ParseCodec(codecName)
	if codec == media.CodecNone {
		log.Info("declining unsupported codec")
		return false
	}

	c.mu.Lock()
	c.session = &Session{ID: sessionID, Codec: codec}
	c.mu.Unlock()
	c.setState(StateNegotiating)
	log.Info("session accepted")

	if codec == media.CodecH264 {
		ps, err := h264.ParseSprop(sdp)
		switch {
		case errors.Is(err, h264.ErrNoSprop):
		case err != nil:
			log.Warn("cannot decode sprop-parameter-sets", "error", err)
		default:
			c.OnData(sessionID, h264.WithStartCode(ps.SPS), 0)
			c.OnData(sessionID, h264.WithStartCode(ps.PPS), 0)
		}
	}
	return true
}

// OnData ingests one buffer. It returns false when the buffer was dropped;
// the reason is logged and counted.
func (c *Capturer) OnData(sessionID string, buf []byte, pts time.Duration) bool {
	if err := c.ingest(sessionID, buf, pts.Milliseconds()); err != nil {
		c.metrics.buffersDropped.WithLabelValues(dropReason(err)).Inc()
		if errors.Is(err, ErrStopped) {
			c.log.Debug("dropping buffer after stop", "session", sessionID)
		} else {
			c.log.Error("dropping buffer", "session", sessionID, "size", len(buf), "error", err)
		}
		return false
	}
	return true
}

func (c *Capturer) ingest(sessionID string, buf []byte, tsMs int64) error {
	if c.State() == StateStopped {
		return ErrStopped
	}

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if s.ID != sessionID {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownSession, sessionID)
	}
	if s.Codec == media.CodecJPEG {
		c.mu.Unlock()
		return c.handleJPEG(buf, tsMs)
	}
	err := c.handleH264(s, buf, tsMs)
	c.mu.Unlock()
	return err
}

// forward hands a due picture to the consumer.
func (c *Capturer) forward(pic media.Picture) {
	c.cfg.Consumer.OnFrame(pic.Image, pic.Height(), pic.Width())
	c.metrics.picturesForwarded.Inc()
}

// deliver paces pic and records the applied delay.
func (c *Capturer) deliver(pic media.Picture) {
	delay := c.pacer.Deliver(pic)
	c.metrics.pacingDelay.Observe(delay.Seconds())
}
