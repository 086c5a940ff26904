package mpegts

// programMap tracks which PIDs carry PMT sections.
type programMap struct {
	m map[uint16]bool
}

func newProgramMap() *programMap {
	return &programMap{m: make(map[uint16]bool)}
}

func (pm *programMap) addPMTPID(pid uint16) {
	pm.m[pid] = true
}

func (pm *programMap) isPMTPID(pid uint16) bool {
	return pm.m[pid]
}

// accumulator gathers the payloads of one PID into complete units: PSI
// sections behind their pointer field, or whole PES packets.
type accumulator struct {
	pid uint16
	psi bool

	buf    []byte
	lastCC int // -1 until the first payload packet
	broken bool

	discontinuities int
}

func newAccumulator(pid uint16, psi bool) *accumulator {
	return &accumulator{pid: pid, psi: psi, lastCC: -1}
}

// add feeds one packet of the PID and returns a unit it completed, if any.
// The caller owns the returned slice. A continuity gap or transport error
// drops the unit being assembled up to the next payload unit start.
func (a *accumulator) add(p packet) []byte {
	if p.tei {
		a.broken = true
		return nil
	}
	if p.payload == nil {
		return nil
	}

	if a.lastCC >= 0 && !p.discontinuity {
		switch want := (a.lastCC + 1) & 0x0F; {
		case int(p.cc) == a.lastCC:
			return nil // duplicate
		case int(p.cc) != want:
			a.discontinuities++
			a.broken = true
		}
	}
	a.lastCC = int(p.cc)

	if p.pusi {
		var done []byte
		if !a.psi {
			done = a.flush()
		}
		a.broken = false
		a.buf = append([]byte(nil), p.payload...)
		if a.psi {
			return a.completeSection()
		}
		return done
	}
	if a.broken || len(a.buf) == 0 {
		return nil
	}
	if len(a.buf)+len(p.payload) > maxPES {
		a.buf, a.broken = nil, true
		return nil
	}
	a.buf = append(a.buf, p.payload...)
	if a.psi {
		return a.completeSection()
	}
	return nil
}

func (a *accumulator) completeSection() []byte {
	if !sectionComplete(a.buf) {
		return nil
	}
	done := a.buf
	a.buf = nil
	return done
}

// flush returns the unit being assembled unless it is broken.
func (a *accumulator) flush() []byte {
	done := a.buf
	a.buf = nil
	if a.broken || len(done) == 0 {
		return nil
	}
	return done
}
