package h264

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Eyevinn/mp4ff/avc"
)

const spropAttr = "sprop-parameter-sets="

// ErrNoSprop is returned when an SDP carries no sprop-parameter-sets
// attribute.
var ErrNoSprop = errors.New("h264: no sprop-parameter-sets in SDP")

// ParameterSets holds out-of-band SPS and PPS NAL units, without start
// codes.
type ParameterSets struct {
	SPS []byte
	PPS []byte
}

// ParseSprop extracts and decodes the sprop-parameter-sets value from an
// SDP fragment. The value runs up to the first space, semicolon, CR or LF.
// Each comma separated entry is base64; the last SPS and last PPS found are
// returned.
func ParseSprop(sdp string) (ParameterSets, error) {
	i := strings.Index(sdp, spropAttr)
	if i < 0 {
		return ParameterSets{}, ErrNoSprop
	}
	value := sdp[i+len(spropAttr):]
	if end := strings.IndexAny(value, " ;\r\n"); end >= 0 {
		value = value[:end]
	}
	if value == "" {
		return ParameterSets{}, fmt.Errorf("h264: empty sprop-parameter-sets")
	}

	var ps ParameterSets
	for _, entry := range strings.Split(value, ",") {
		if entry == "" {
			continue
		}
		nalu, err := decodeBase64(entry)
		if err != nil {
			return ParameterSets{}, fmt.Errorf("h264: sprop entry %q: %w", entry, err)
		}
		if len(nalu) == 0 {
			continue
		}
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_SPS:
			ps.SPS = nalu
		case avc.NALU_PPS:
			ps.PPS = nalu
		}
	}
	if ps.SPS == nil || ps.PPS == nil {
		return ParameterSets{}, fmt.Errorf("h264: sprop-parameter-sets lacks SPS or PPS")
	}
	return ps, nil
}

// decodeBase64 accepts both padded and unpadded input.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
