// Package decoder defines the contract between the decode worker and an
// H.264 decoder implementation, and provides an implementation backed by an
// external ffmpeg process.
package decoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zsiec/rtspcap/media"
)

var (
	// ErrClosed is returned by Decode after Close.
	ErrClosed = errors.New("decoder: closed")

	// ErrFFmpegNotFound is returned when no ffmpeg binary can be located.
	ErrFFmpegNotFound = errors.New("decoder: ffmpeg not found in PATH")

	// ErrInvalidConfig is returned for non-positive dimensions.
	ErrInvalidConfig = errors.New("decoder: invalid configuration")
)

// InputPadding is the number of zero bytes the worker guarantees past the
// end of every Decode input, within the slice capacity.
const InputPadding = 64

// Config fixes the picture geometry a decoder instance is bound to.
type Config struct {
	Width  int
	Height int
}

// Validate reports whether the configuration describes a usable picture.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	return nil
}

// Callback receives each decoded picture. It may be called from a goroutine
// owned by the decoder.
type Callback func(media.Picture)

// Decoder consumes one access unit per Decode call. Implementations must not
// retain data after Decode returns.
type Decoder interface {
	Decode(data []byte, timestampMs int64) error
	Close() error
}

// Factory constructs a decoder bound to cfg that reports pictures to cb.
type Factory func(cfg Config, cb Callback) (Decoder, error)

// InputPool recycles padded decode input buffers.
type InputPool struct {
	pool sync.Pool
}

// Get returns a buffer of length n whose capacity holds n+InputPadding bytes
// and whose padding is zeroed.
func (p *InputPool) Get(n int) []byte {
	need := n + InputPadding
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= need {
		buf := (*v)[:need]
		clear(buf[n:])
		return buf[:n]
	}
	return make([]byte, n, need)
}

// Put returns a buffer obtained from Get.
func (p *InputPool) Put(buf []byte) {
	buf = buf[:0]
	p.pool.Put(&buf)
}
