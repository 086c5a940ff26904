package capture

import "errors"

// Per-buffer errors. Each one is logged and counted, the offending buffer is
// dropped, and the session carries on.
var (
	// ErrMalformedSPS means an SPS could not be parsed. The active decoder,
	// if any, is left in place.
	ErrMalformedSPS = errors.New("capture: malformed SPS")

	// ErrNoDecoder means media arrived before any decoder existed.
	ErrNoDecoder = errors.New("capture: no decoder")

	// ErrUnknownDimensions means a JPEG header did not yield a picture size.
	ErrUnknownDimensions = errors.New("capture: cannot determine picture dimensions")

	// ErrConversion means a JPEG picture could not be converted to 4:2:0.
	ErrConversion = errors.New("capture: picture conversion failed")

	// ErrDecoderInit means a decoder could not be constructed for a new
	// resolution. No decoder is active until the next SPS.
	ErrDecoderInit = errors.New("capture: decoder initialization failed")

	// ErrInvalidUnit means an H.264 buffer lacked a start code or header.
	ErrInvalidUnit = errors.New("capture: invalid NAL unit buffer")

	// ErrNoSession means data arrived before any session was negotiated.
	ErrNoSession = errors.New("capture: no negotiated session")

	// ErrUnknownSession means data arrived for a session other than the
	// one negotiated last.
	ErrUnknownSession = errors.New("capture: unknown session")
)

// Lifecycle errors.
var (
	ErrStopped        = errors.New("capture: stopped")
	ErrAlreadyStarted = errors.New("capture: already started")
)

// dropReason maps a per-buffer error to its metric label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedSPS):
		return "malformed_sps"
	case errors.Is(err, ErrNoDecoder):
		return "no_decoder"
	case errors.Is(err, ErrUnknownDimensions):
		return "unknown_dimensions"
	case errors.Is(err, ErrConversion):
		return "conversion"
	case errors.Is(err, ErrDecoderInit):
		return "decoder_init"
	case errors.Is(err, ErrInvalidUnit):
		return "invalid_unit"
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrUnknownSession):
		return "no_session"
	case errors.Is(err, ErrStopped):
		return "stopped"
	}
	return "other"
}
