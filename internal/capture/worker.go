package capture

import (
	"github.com/zsiec/rtspcap/internal/decoder"
	"github.com/zsiec/rtspcap/media"
)

// runWorker owns the decoder for the lifetime of the capturer. It exits once
// the queue is closed and drained.
func (c *Capturer) runWorker() {
	defer close(c.workerDone)

	var dec decoder.Decoder
	defer func() {
		c.closeDecoder(dec)
	}()

	for {
		item, ok := c.queue.Pop()
		if !ok {
			return
		}
		switch {
		case item.retire:
			c.closeDecoder(dec)
			dec = nil
		case item.install != nil:
			c.closeDecoder(dec)
			dec = item.install
		default:
			c.decode(dec, item.frame)
		}
	}
}

func (c *Capturer) decode(dec decoder.Decoder, f media.Frame) {
	if dec == nil {
		c.metrics.buffersDropped.WithLabelValues(dropReason(ErrNoDecoder)).Inc()
		c.log.Error("dropping frame", "timestamp_ms", f.TimestampMs, "error", ErrNoDecoder)
		return
	}

	buf := c.inputs.Get(len(f.Data))
	copy(buf, f.Data)
	err := dec.Decode(buf, f.TimestampMs)
	c.inputs.Put(buf)
	if err != nil {
		c.metrics.decodeErrors.Inc()
		c.log.Warn("decode failed", "timestamp_ms", f.TimestampMs, "size", len(f.Data),
			"keyframe", f.Keyframe, "error", err)
	}
}

func (c *Capturer) closeDecoder(dec decoder.Decoder) {
	if dec == nil {
		return
	}
	if err := dec.Close(); err != nil {
		c.log.Warn("closing decoder", "error", err)
	}
}

// drainUnstarted releases decoders queued for a worker that never ran.
func (c *Capturer) drainUnstarted() {
	for {
		item, ok := c.queue.Pop()
		if !ok {
			return
		}
		if item.install != nil {
			c.closeDecoder(item.install)
		}
	}
}
