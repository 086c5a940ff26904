package mpegts

import (
	"bytes"
	"testing"
)

func TestAccumulatorPUSIFlush(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	if got := acc.add(packet{pid: testVideoPID, pusi: true, cc: 0, payload: []byte{0x01}}); got != nil {
		t.Errorf("first packet flushed %x", got)
	}
	if got := acc.add(packet{pid: testVideoPID, cc: 1, payload: []byte{0x02}}); got != nil {
		t.Errorf("continuation flushed %x", got)
	}
	got := acc.add(packet{pid: testVideoPID, pusi: true, cc: 2, payload: []byte{0x03}})
	if !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("PUSI flush: got %x, want 0102", got)
	}
	if got := acc.flush(); !bytes.Equal(got, []byte{0x03}) {
		t.Errorf("final flush: got %x, want 03", got)
	}
}

func TestAccumulatorCCDiscontinuity(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	acc.add(packet{pid: testVideoPID, pusi: true, cc: 0, payload: []byte{0x01}})
	acc.add(packet{pid: testVideoPID, cc: 1, payload: []byte{0x02}})
	// CC jumps from 1 to 5.
	acc.add(packet{pid: testVideoPID, cc: 5, payload: []byte{0x03}})

	if got := acc.add(packet{pid: testVideoPID, pusi: true, cc: 6, payload: []byte{0x04}}); got != nil {
		t.Errorf("broken unit flushed %x", got)
	}
	if acc.discontinuities != 1 {
		t.Errorf("discontinuities: got %d, want 1", acc.discontinuities)
	}
	if got := acc.flush(); !bytes.Equal(got, []byte{0x04}) {
		t.Errorf("unit after gap: got %x, want 04", got)
	}
}

func TestAccumulatorSignaledDiscontinuity(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	acc.add(packet{pid: testVideoPID, pusi: true, cc: 3, payload: []byte{0x01}})
	acc.add(packet{pid: testVideoPID, cc: 9, discontinuity: true, payload: []byte{0x02}})
	if acc.discontinuities != 0 {
		t.Errorf("discontinuities: got %d, want 0", acc.discontinuities)
	}
	if got := acc.flush(); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("flush: got %x, want 0102", got)
	}
}

func TestAccumulatorDuplicateFilter(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	acc.add(packet{pid: testVideoPID, pusi: true, cc: 3, payload: []byte{0x01}})
	if got := acc.add(packet{pid: testVideoPID, cc: 3, payload: []byte{0x01}}); got != nil {
		t.Errorf("duplicate flushed %x", got)
	}
	got := acc.add(packet{pid: testVideoPID, pusi: true, cc: 4, payload: []byte{0x02}})
	if !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("flush: got %x, want 01", got)
	}
}

func TestAccumulatorTransportError(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	acc.add(packet{pid: testVideoPID, pusi: true, cc: 0, payload: []byte{0x01}})
	acc.add(packet{pid: testVideoPID, tei: true, cc: 1, payload: []byte{0x02}})
	if got := acc.flush(); got != nil {
		t.Errorf("unit with transport error flushed %x", got)
	}
}

func TestAccumulatorSkipsAdaptationOnly(t *testing.T) {
	t.Parallel()

	acc := newAccumulator(testVideoPID, false)
	acc.add(packet{pid: testVideoPID, pusi: true, cc: 0, payload: []byte{0x01}})
	// No payload: the continuity counter does not advance.
	acc.add(packet{pid: testVideoPID, cc: 0})
	acc.add(packet{pid: testVideoPID, cc: 1, payload: []byte{0x02}})
	if acc.discontinuities != 0 {
		t.Errorf("discontinuities: got %d, want 0", acc.discontinuities)
	}
	if got := acc.flush(); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("flush: got %x, want 0102", got)
	}
}

func TestAccumulatorPSISection(t *testing.T) {
	t.Parallel()

	// A PAT split over two packets completes on the second.
	payload := append([]byte{0x00}, buildPAT(testPMTPID)...)
	acc := newAccumulator(pidPAT, true)
	if got := acc.add(packet{pid: pidPAT, pusi: true, cc: 0, payload: payload[:5]}); got != nil {
		t.Fatalf("partial section flushed %x", got)
	}
	got := acc.add(packet{pid: pidPAT, cc: 1, payload: payload[5:]})
	if !bytes.Equal(got, payload) {
		t.Fatalf("section: got %x, want %x", got, payload)
	}

	// A single-packet section completes immediately.
	if got := acc.add(packet{pid: pidPAT, pusi: true, cc: 2, payload: payload}); !bytes.Equal(got, payload) {
		t.Errorf("repeat section: got %x, want %x", got, payload)
	}
	// Trailing packets without a start are ignored.
	if got := acc.add(packet{pid: pidPAT, cc: 3, payload: []byte{0xFF, 0xFF}}); got != nil {
		t.Errorf("stuffing flushed %x", got)
	}
}

func TestProgramMap(t *testing.T) {
	t.Parallel()

	pm := newProgramMap()
	if pm.isPMTPID(testPMTPID) {
		t.Fatal("empty map reports a PMT PID")
	}
	pm.addPMTPID(testPMTPID)
	if !pm.isPMTPID(testPMTPID) || pm.isPMTPID(testVideoPID) {
		t.Error("isPMTPID does not match the added PID")
	}
}
