// Package h264 provides the H.264 helpers used by the capture path: NAL
// unit classification on start-code prefixed buffers, SPS parsing, and
// decoding of the sprop-parameter-sets SDP attribute.
package h264

import (
	"bytes"
	"errors"

	"github.com/Eyevinn/mp4ff/avc"
)

// StartCode is the four byte Annex B marker that prefixes every NAL unit
// delivered to the capturer.
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// NAL unit types the capture path distinguishes.
const (
	NALTypeSlice  = avc.NALU_NON_IDR
	NALTypeIDR    = avc.NALU_IDR
	NALTypeSEI    = avc.NALU_SEI
	NALTypeSPS    = avc.NALU_SPS
	NALTypePPS    = avc.NALU_PPS
	NALTypeAUD    = avc.NALU_AUD
	NALTypeFiller = avc.NALU_FILL
)

var (
	errUnitTooShort = errors.New("h264: unit shorter than start code and header")
	errNoStartCode  = errors.New("h264: unit does not begin with a start code")
	errEmptyNALUnit = errors.New("h264: empty NAL unit")
)

// Classify returns the NAL unit type of a start-code prefixed buffer.
func Classify(buf []byte) (avc.NaluType, error) {
	if len(buf) <= len(StartCode) {
		return 0, errUnitTooShort
	}
	if !bytes.HasPrefix(buf, StartCode) {
		return 0, errNoStartCode
	}
	return avc.GetNaluType(buf[len(StartCode)]), nil
}

// Payload strips the start code from a buffer accepted by Classify.
func Payload(buf []byte) []byte {
	return buf[len(StartCode):]
}

// WithStartCode returns a new buffer holding the start code followed by nalu.
func WithStartCode(nalu []byte) []byte {
	out := make([]byte, 0, len(StartCode)+len(nalu))
	out = append(out, StartCode...)
	return append(out, nalu...)
}

// SplitAnnexB splits an Annex B byte stream into NAL units without start
// codes. Empty units are dropped.
func SplitAnnexB(data []byte) [][]byte {
	nalus := avc.ExtractNalusFromByteStream(data)
	out := nalus[:0]
	for _, n := range nalus {
		if len(n) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// TypeOf returns the type of a NAL unit without start code.
func TypeOf(nalu []byte) (avc.NaluType, error) {
	if len(nalu) == 0 {
		return 0, errEmptyNALUnit
	}
	return avc.GetNaluType(nalu[0]), nil
}
