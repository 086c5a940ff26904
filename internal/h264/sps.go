package h264

import (
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
)

var errSPSTooShort = errors.New("h264: SPS data too short")

// SPS holds the sequence parameter set fields the capturer acts on.
type SPS struct {
	Profile      int
	Level        int
	Width        int
	Height       int
	ChromaFormat int
	BitDepthLuma int
}

// ParseSPS parses an SPS NAL unit. nalu starts at the NAL header byte, with
// no start code. Width and height have frame cropping applied.
func ParseSPS(nalu []byte) (SPS, error) {
	if len(nalu) < 4 {
		return SPS{}, errSPSTooShort
	}
	if t := avc.GetNaluType(nalu[0]); t != avc.NALU_SPS {
		return SPS{}, fmt.Errorf("h264: NAL type %d is not an SPS", t)
	}
	parsed, err := avc.ParseSPSNALUnit(nalu, false)
	if err != nil {
		return SPS{}, fmt.Errorf("h264: parse SPS: %w", err)
	}
	if parsed.Width == 0 || parsed.Height == 0 {
		return SPS{}, fmt.Errorf("h264: SPS has zero dimension %dx%d", parsed.Width, parsed.Height)
	}
	return SPS{
		Profile:      int(parsed.Profile),
		Level:        int(parsed.Level),
		Width:        int(parsed.Width),
		Height:       int(parsed.Height),
		ChromaFormat: int(parsed.ChromaFormatIDC),
		BitDepthLuma: int(parsed.BitDepthLumaMinus8) + 8,
	}, nil
}

// SameResolution reports whether two parameter sets describe the same
// picture size.
func (s SPS) SameResolution(o SPS) bool {
	return s.Width == o.Width && s.Height == o.Height
}
