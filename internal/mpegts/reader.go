package mpegts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrNoVideo is returned when the stream ends before any H.264 program
// stream was announced in a PMT.
var ErrNoVideo = errors.New("mpegts: no H.264 stream in program map")

// maxPES bounds a single PES accumulation. Larger packets are dropped.
const maxPES = 8 << 20

// Reader demultiplexes the first H.264 elementary stream found in a
// transport stream. It is not safe for concurrent use.
type Reader struct {
	r   *bufio.Reader
	buf [packetSize]byte

	programs *programMap
	psi      map[uint16]*accumulator

	videoPID   uint16
	streamType uint8
	video      *accumulator

	// discontinuities seen on video PIDs the program has moved away from
	lostDiscontinuities int
}

// NewReader returns a Reader that consumes r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:        bufio.NewReaderSize(r, packetSize*64),
		programs: newProgramMap(),
		psi:      make(map[uint16]*accumulator),
	}
}

// VideoPID returns the PID of the selected video stream once a PMT has
// been seen.
func (r *Reader) VideoPID() (uint16, bool) { return r.videoPID, r.video != nil }

// Discontinuities reports how many continuity counter gaps were seen on the
// video PID. Each one drops the PES that was being assembled.
func (r *Reader) Discontinuities() int {
	n := r.lostDiscontinuities
	if r.video != nil {
		n += r.video.discontinuities
	}
	return n
}

// Next returns the next complete PES packet of the video stream. At the
// end of input it flushes the last packet and then returns io.EOF.
func (r *Reader) Next() (*PES, error) {
	for {
		if err := r.readPacket(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if r.video == nil {
					return nil, ErrNoVideo
				}
				if pes := r.parse(r.video.flush()); pes != nil {
					return pes, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		pkt, err := parsePacket(r.buf[:])
		if err != nil {
			continue
		}

		switch {
		case pkt.pid == pidPAT || r.programs.isPMTPID(pkt.pid):
			acc, ok := r.psi[pkt.pid]
			if !ok {
				acc = newAccumulator(pkt.pid, true)
				r.psi[pkt.pid] = acc
			}
			if section := acc.add(pkt); section != nil {
				r.handleSection(pkt.pid, section)
			}
		case r.video != nil && pkt.pid == r.videoPID:
			if pes := r.parse(r.video.add(pkt)); pes != nil {
				return pes, nil
			}
		}
	}
}

// readPacket fills r.buf with the next packet, skipping bytes until a sync
// byte when the stream is misaligned.
func (r *Reader) readPacket() error {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		if b == syncByte {
			break
		}
	}
	r.buf[0] = syncByte
	_, err := io.ReadFull(r.r, r.buf[1:])
	return err
}

func (r *Reader) handleSection(pid uint16, payload []byte) {
	if pid == pidPAT {
		section, err := firstSection(payload, tableIDPAT)
		if err != nil {
			return
		}
		for _, pmt := range parsePAT(section) {
			r.programs.addPMTPID(pmt)
		}
		return
	}

	section, err := firstSection(payload, tableIDPMT)
	if err != nil {
		return
	}
	streams, err := parsePMT(section)
	if err != nil {
		return
	}
	for _, es := range streams {
		if es.streamType != StreamTypeH264 {
			continue
		}
		if r.video != nil {
			if r.videoPID == es.pid {
				return
			}
			// The program moved its video to a new PID.
			r.lostDiscontinuities += r.video.discontinuities
		}
		r.videoPID, r.streamType = es.pid, es.streamType
		r.video = newAccumulator(es.pid, false)
		return
	}
}

// parse decodes a completed video PES. A nil or malformed unit yields nil.
func (r *Reader) parse(unit []byte) *PES {
	if unit == nil {
		return nil
	}
	pes := &PES{PID: r.videoPID, StreamType: r.streamType}
	if err := parsePES(unit, pes); err != nil {
		return nil
	}
	return pes
}

// String implements fmt.Stringer for debug logging.
func (p *PES) String() string {
	return fmt.Sprintf("PES{pid=%d pts=%d/%t len=%d}", p.PID, p.PTS, p.HasPTS, len(p.Data))
}
