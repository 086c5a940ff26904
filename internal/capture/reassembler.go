package capture

import (
	"fmt"

	"github.com/zsiec/rtspcap/internal/h264"
	"github.com/zsiec/rtspcap/media"
)

// handleH264 classifies one start-code prefixed NAL unit. Parameter sets
// update the session; everything else becomes a queued frame, with IDR
// slices carrying the current parameter sets in front. c.mu is held.
func (c *Capturer) handleH264(s *Session, buf []byte, tsMs int64) error {
	typ, err := h264.Classify(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}

	switch typ {
	case h264.NALTypeSPS:
		s.ParamSets = append(s.ParamSets[:0:0], buf...)
		return c.trackSPS(h264.Payload(buf))
	case h264.NALTypePPS:
		s.ParamSets = append(s.ParamSets, buf...)
		return nil
	}

	if c.active == nil {
		return ErrNoDecoder
	}

	var frame media.Frame
	frame.TimestampMs = tsMs
	if typ == h264.NALTypeIDR {
		frame.Keyframe = true
		frame.Data = make([]byte, 0, len(s.ParamSets)+len(buf))
		frame.Data = append(frame.Data, s.ParamSets...)
		frame.Data = append(frame.Data, buf...)
	} else {
		frame.Data = append([]byte(nil), buf...)
	}
	if err := c.enqueue(workItem{frame: frame}); err != nil {
		return err
	}
	c.metrics.framesQueued.Inc()

	if typ == h264.NALTypeSEI && c.captions != nil {
		c.captions.process(h264.Payload(buf), tsMs)
	}
	return nil
}

func (c *Capturer) enqueue(item workItem) error {
	if !c.queue.Push(item) {
		return ErrStopped
	}
	return nil
}
