package pacing

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zsiec/rtspcap/media"
)

type recorder struct {
	mu  sync.Mutex
	got []int64
}

func (r *recorder) sink(p media.Picture) {
	r.mu.Lock()
	r.got = append(r.got, p.TimestampMs)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestDeliverFirstPictureImmediate(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var rec recorder
	p := New(clock, rec.sink)

	if d := p.Deliver(media.Picture{TimestampMs: 1000}); d != 0 {
		t.Errorf("first delay: got %v, want 0", d)
	}
	if rec.count() != 1 {
		t.Fatalf("forwarded: got %d, want 1", rec.count())
	}
}

func TestDeliverSleepsForRemainingGap(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var rec recorder
	p := New(clock, rec.sink)

	p.Deliver(media.Picture{TimestampMs: 0})
	clock.Advance(5 * time.Millisecond)

	done := make(chan time.Duration, 1)
	go func() {
		done <- p.Deliver(media.Picture{TimestampMs: 40})
	}()

	clock.BlockUntil(1)
	if rec.count() != 1 {
		t.Fatalf("second picture forwarded before its delay elapsed")
	}
	clock.Advance(35 * time.Millisecond)

	select {
	case d := <-done:
		if d != 35*time.Millisecond {
			t.Errorf("delay: got %v, want 35ms", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not return after the clock advanced")
	}
	if rec.count() != 2 {
		t.Errorf("forwarded: got %d, want 2", rec.count())
	}
}

func TestDeliverNoSleep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		nextTS  int64
		wallGap time.Duration
	}{
		{name: "wall gap exceeds source gap", nextTS: 40, wallGap: 2000 * time.Millisecond},
		{name: "equal gaps", nextTS: 40, wallGap: 40 * time.Millisecond},
		{name: "discontinuity at one second", nextTS: 1000, wallGap: 0},
		{name: "large forward jump", nextTS: 5000, wallGap: 0},
		{name: "timestamp went backwards", nextTS: -40, wallGap: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := clockwork.NewFakeClock()
			var rec recorder
			p := New(clock, rec.sink)

			p.Deliver(media.Picture{TimestampMs: 0})
			clock.Advance(tt.wallGap)
			if d := p.Deliver(media.Picture{TimestampMs: tt.nextTS}); d != 0 {
				t.Errorf("delay: got %v, want 0", d)
			}
			if rec.count() != 2 {
				t.Errorf("forwarded: got %d, want 2", rec.count())
			}
		})
	}
}

func TestDeliverJustUnderLimitSleeps(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var rec recorder
	p := New(clock, rec.sink)

	p.Deliver(media.Picture{TimestampMs: 0})
	done := make(chan time.Duration, 1)
	go func() {
		done <- p.Deliver(media.Picture{TimestampMs: 999})
	}()

	clock.BlockUntil(1)
	clock.Advance(999 * time.Millisecond)
	if d := <-done; d != 999*time.Millisecond {
		t.Errorf("delay: got %v, want 999ms", d)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var rec recorder
	p := New(clock, rec.sink)

	p.Deliver(media.Picture{TimestampMs: 0})
	p.Reset()
	if d := p.Deliver(media.Picture{TimestampMs: 500}); d != 0 {
		t.Errorf("delay after reset: got %v, want 0", d)
	}
	if rec.count() != 2 {
		t.Errorf("forwarded: got %d, want 2", rec.count())
	}
}

func TestNewDefaultsToRealClock(t *testing.T) {
	t.Parallel()

	var rec recorder
	p := New(nil, rec.sink)
	p.Deliver(media.Picture{TimestampMs: 0})
	if rec.count() != 1 {
		t.Errorf("forwarded: got %d, want 1", rec.count())
	}
}
