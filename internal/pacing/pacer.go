// Package pacing releases decoded pictures to the consumer at the cadence
// implied by their source timestamps.
package pacing

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zsiec/rtspcap/media"
)

// MaxDelay bounds the sleep applied before a picture. Gaps of this size or
// more are treated as discontinuities and forwarded without waiting.
const MaxDelay = time.Second

// Sink receives pictures once they are due.
type Sink func(media.Picture)

// Pacer holds per-session pacing state. Deliver may be called from several
// goroutines; calls are serialized, including the sleep, so pictures leave
// in the order they were delivered.
type Pacer struct {
	mu    sync.Mutex
	clock clockwork.Clock
	next  Sink

	started    bool
	prevSource int64
	prevWall   time.Time
}

// New returns a Pacer forwarding to next. A nil clock uses the real clock.
func New(clock clockwork.Clock, next Sink) *Pacer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pacer{clock: clock, next: next}
}

// Deliver waits until pic is due and forwards it. The first picture after
// construction or Reset is forwarded immediately. Deliver returns the delay
// it slept.
func (p *Pacer) Deliver(pic media.Picture) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var delay time.Duration
	if p.started {
		sourceGap := time.Duration(pic.TimestampMs-p.prevSource) * time.Millisecond
		wallGap := p.clock.Since(p.prevWall)
		delay = sourceGap - wallGap
		if delay > 0 && delay < MaxDelay {
			p.clock.Sleep(delay)
		} else {
			delay = 0
		}
	}

	p.next(pic)

	p.started = true
	p.prevSource = pic.TimestampMs
	p.prevWall = p.clock.Now()
	return delay
}

// Reset forgets the previous picture so the next one is forwarded
// immediately.
func (p *Pacer) Reset() {
	p.mu.Lock()
	p.started = false
	p.prevSource = 0
	p.prevWall = time.Time{}
	p.mu.Unlock()
}
