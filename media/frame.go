// Package media defines the frame types that flow through the capture
// pipeline, from the transport ingest path through decoding to the consumer.
package media

import "image"

// Codec identifies the video codec negotiated for a session.
type Codec int

// Codecs accepted by the capturer.
const (
	CodecNone Codec = iota
	CodecH264
	CodecJPEG
)

// ParseCodec maps a transport codec name to a Codec. Unknown names map to
// CodecNone.
func ParseCodec(name string) Codec {
	switch name {
	case "H264":
		return CodecH264
	case "JPEG":
		return CodecJPEG
	}
	return CodecNone
}

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecJPEG:
		return "JPEG"
	}
	return "none"
}

// Frame is one compressed unit queued for decoding. Keyframes carry the
// current parameter sets ahead of the IDR slice so the decoder can start
// from them.
type Frame struct {
	Data        []byte
	TimestampMs int64
	Keyframe    bool
}

// Picture is a decoded 4:2:0 image together with the source timestamp of
// the frame it was decoded from.
type Picture struct {
	Image       *image.YCbCr
	TimestampMs int64
}

// Width returns the picture width in pixels.
func (p Picture) Width() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Rect.Dx()
}

// Height returns the picture height in pixels.
func (p Picture) Height() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Rect.Dy()
}
