package mpegts

import "fmt"

// PES is one reassembled video PES packet.
type PES struct {
	PID        uint16
	StreamType uint8

	// PTS is the 33-bit presentation timestamp on the 90 kHz clock. It is
	// only meaningful when HasPTS is set.
	PTS    int64
	HasPTS bool

	// Data is the elementary stream payload, Annex B for H.264.
	Data []byte
}

func parsePES(payload []byte, pes *PES) error {
	if len(payload) < 9 {
		return fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if payload[0] != 0x00 || payload[1] != 0x00 || payload[2] != 0x01 {
		return fmt.Errorf("mpegts: invalid PES start code")
	}
	// Video stream ids 0xE0-0xEF always carry the optional header.
	if sid := payload[3]; sid&0xF0 != 0xE0 {
		return fmt.Errorf("mpegts: stream id 0x%02X is not video", sid)
	}

	packetLength := int(payload[4])<<8 | int(payload[5])
	flags := payload[7] >> 6
	dataStart := 9 + int(payload[8])
	if dataStart > len(payload) {
		return fmt.Errorf("mpegts: PES header length %d exceeds payload", payload[8])
	}

	if flags&0x2 != 0 && len(payload) >= 14 {
		pes.PTS = parseTimestamp(payload[9:14])
		pes.HasPTS = true
	}

	end := len(payload)
	// A zero length is legal for video and means "until the next PES".
	if packetLength > 0 && 6+packetLength < end {
		end = 6 + packetLength
	}
	if dataStart > end {
		dataStart = end
	}
	pes.Data = payload[dataStart:end]
	return nil
}

// parseTimestamp decodes a 33-bit PTS or DTS from its 5-byte encoding.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
