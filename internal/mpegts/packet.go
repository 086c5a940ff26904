// Package mpegts reads H.264 elementary streams out of an MPEG transport
// stream. It follows PAT and PMT to the first H.264 program stream and
// yields its PES packets with their presentation timestamps.
package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47

	pidPAT = 0x0000
)

// StreamTypeH264 is the PMT stream_type for ITU-T H.264 video.
const StreamTypeH264 = 0x1B

type packet struct {
	pid           uint16
	pusi          bool
	tei           bool
	hasPayload    bool
	discontinuity bool
	cc            uint8
	payload       []byte // aliases the read buffer
}

func parsePacket(buf []byte) (packet, error) {
	if len(buf) != packetSize {
		return packet{}, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return packet{}, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := packet{
		tei:        buf[1]&0x80 != 0,
		pusi:       buf[1]&0x40 != 0,
		pid:        uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		hasPayload: buf[3]&0x10 != 0,
		cc:         buf[3] & 0x0F,
	}

	offset := 4
	if buf[3]&0x20 != 0 {
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < packetSize {
			p.discontinuity = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
	}
	if p.hasPayload && offset < packetSize {
		p.payload = buf[offset:]
	}
	return p, nil
}
