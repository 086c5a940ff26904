package mpegts

import (
	"errors"
	"fmt"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

var errCRC = errors.New("mpegts: CRC32 mismatch")

type elementaryStream struct {
	pid        uint16
	streamType uint8
}

// sectionComplete reports whether payload, which starts with a pointer
// field, holds at least one full section.
func sectionComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset+3 > len(payload) {
		return false
	}
	sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
	return offset+3+sectionLength <= len(payload)
}

// firstSection returns the section that payload's pointer field points to,
// after checking its CRC.
func firstSection(payload []byte, tableID byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: empty PSI payload")
	}
	offset := 1 + int(payload[0])
	if offset+3 > len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}
	if payload[offset] != tableID {
		return nil, fmt.Errorf("mpegts: table id 0x%02X, want 0x%02X", payload[offset], tableID)
	}
	sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
	end := offset + 3 + sectionLength
	if end > len(payload) || sectionLength < 9 {
		return nil, fmt.Errorf("mpegts: truncated section")
	}
	section := payload[offset:end]
	if crc32MPEG(section) != 0 {
		return nil, errCRC
	}
	return section, nil
}

// parsePAT returns the PMT PIDs listed in a PAT section.
func parsePAT(section []byte) []uint16 {
	var pids []uint16
	for i := 8; i+4 <= len(section)-4; i += 4 {
		program := uint16(section[i])<<8 | uint16(section[i+1])
		if program == 0 {
			continue // network PID
		}
		pids = append(pids, uint16(section[i+2]&0x1F)<<8|uint16(section[i+3]))
	}
	return pids
}

// parsePMT returns the elementary streams listed in a PMT section.
func parsePMT(section []byte) ([]elementaryStream, error) {
	if len(section) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	infoLen := int(section[10]&0x0F)<<8 | int(section[11])
	offset := 12 + infoLen
	end := len(section) - 4

	var streams []elementaryStream
	for offset+5 <= end {
		esInfoLen := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])
		streams = append(streams, elementaryStream{
			streamType: section[offset],
			pid:        uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2]),
		})
		offset += 5 + esInfoLen
	}
	return streams, nil
}

// MPEG-2 CRC32: polynomial 0x04C11DB7, not reflected, which hash/crc32
// does not offer.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// crc32MPEG returns zero for a section whose trailing CRC is correct.
func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
