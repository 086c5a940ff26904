package capture

import (
	"fmt"

	"github.com/zsiec/rtspcap/internal/mjpeg"
	"github.com/zsiec/rtspcap/media"
)

// handleJPEG converts a complete JPEG picture and delivers it on the calling
// goroutine, bypassing the queue and decoder.
func (c *Capturer) handleJPEG(buf []byte, tsMs int64) error {
	w, h, err := mjpeg.Probe(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownDimensions, err)
	}
	img, err := mjpeg.ToI420(buf)
	if err != nil {
		return fmt.Errorf("%w: %dx%d: %v", ErrConversion, w, h, err)
	}

	c.mu.Lock()
	if c.format.Width != w || c.format.Height != h {
		c.log.Info("picture size", "width", w, "height", h)
	}
	c.format = Format{Width: w, Height: h, FPS: NominalFPS}
	c.mu.Unlock()
	c.setState(StateDecoding)

	c.deliver(media.Picture{Image: img, TimestampMs: tsMs})
	return nil
}
