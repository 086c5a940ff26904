package capture

import (
	"fmt"

	"github.com/zsiec/rtspcap/internal/decoder"
	"github.com/zsiec/rtspcap/internal/h264"
)

// trackSPS decides whether the decoder must be replaced for a new SPS. It is
// the only place decoders are created or retired; the worker learns about
// either through the queue, in order with the frames. c.mu is held.
func (c *Capturer) trackSPS(nalu []byte) error {
	sps, err := h264.ParseSPS(nalu)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSPS, err)
	}

	if c.active != nil {
		if c.active.SameResolution(sps) {
			if c.active.ChromaFormat != sps.ChromaFormat || c.active.BitDepthLuma != sps.BitDepthLuma {
				c.log.Warn("SPS changed sample format without a size change, keeping decoder",
					"chroma_format", sps.ChromaFormat, "bit_depth", sps.BitDepthLuma)
			}
			return nil
		}
		c.log.Info("resolution changed, replacing decoder",
			"from", fmt.Sprintf("%dx%d", c.active.Width, c.active.Height),
			"to", fmt.Sprintf("%dx%d", sps.Width, sps.Height))
		c.active = nil
		if err := c.enqueue(workItem{retire: true}); err != nil {
			return err
		}
		c.metrics.decoderRecreations.Inc()
	}

	dec, err := c.cfg.Decoders(decoder.Config{Width: sps.Width, Height: sps.Height}, c.deliver)
	if err != nil {
		return fmt.Errorf("%w: %dx%d: %v", ErrDecoderInit, sps.Width, sps.Height, err)
	}
	if err := c.enqueue(workItem{install: dec}); err != nil {
		dec.Close()
		return err
	}

	c.active = &sps
	c.format = Format{Width: sps.Width, Height: sps.Height, FPS: NominalFPS}
	c.setState(StateDecoding)
	c.log.Info("decoder created", "width", sps.Width, "height", sps.Height,
		"profile", sps.Profile, "level", sps.Level)
	return nil
}
