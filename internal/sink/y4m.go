// Package sink holds downstream picture consumers.
package sink

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
)

// Y4M writes pictures as a YUV4MPEG2 stream. The first picture fixes the
// stream geometry; later pictures of another size or chroma layout are
// skipped. It is safe for concurrent use.
type Y4M struct {
	log *slog.Logger
	fps int

	mu      sync.Mutex
	w       *bufio.Writer
	c       io.Closer
	width   int
	height  int
	frames  int64
	skipped int64
	err     error
}

// NewY4M returns a Y4M writing to w at the given nominal frame rate. If w
// is an io.Closer, Close closes it.
func NewY4M(w io.Writer, fps int, log *slog.Logger) *Y4M {
	if log == nil {
		log = slog.Default()
	}
	if fps <= 0 {
		fps = 25
	}
	s := &Y4M{
		log: log.With("component", "y4m"),
		fps: fps,
		w:   bufio.NewWriterSize(w, 1<<20),
	}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// OnFrame writes one picture.
func (s *Y4M) OnFrame(img *image.YCbCr, height, width int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	if img == nil || img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		s.skip("not 4:2:0", width, height)
		return
	}
	if s.width == 0 {
		if _, err := fmt.Fprintf(s.w, "YUV4MPEG2 W%d H%d F%d:1 Ip A1:1 C420jpeg\n", width, height, s.fps); err != nil {
			s.fail(err)
			return
		}
		s.width, s.height = width, height
	}
	if width != s.width || height != s.height {
		s.skip("size changed", width, height)
		return
	}

	if _, err := io.WriteString(s.w, "FRAME\n"); err != nil {
		s.fail(err)
		return
	}
	cw, ch := (width+1)/2, (height+1)/2
	if err := writePlane(s.w, img.Y, img.YStride, width, height); err != nil {
		s.fail(err)
		return
	}
	if err := writePlane(s.w, img.Cb, img.CStride, cw, ch); err != nil {
		s.fail(err)
		return
	}
	if err := writePlane(s.w, img.Cr, img.CStride, cw, ch); err != nil {
		s.fail(err)
		return
	}
	if err := s.w.Flush(); err != nil {
		s.fail(err)
		return
	}
	s.frames++
}

func writePlane(w io.Writer, plane []byte, stride, width, height int) error {
	for y := 0; y < height; y++ {
		if _, err := w.Write(plane[y*stride : y*stride+width]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Y4M) skip(reason string, width, height int) {
	s.skipped++
	s.log.Warn("skipping picture", "reason", reason, "width", width, "height", height,
		"stream_width", s.width, "stream_height", s.height)
}

func (s *Y4M) fail(err error) {
	s.err = err
	s.log.Error("write failed, dropping further pictures", "error", err)
}

// Frames returns how many pictures were written and skipped.
func (s *Y4M) Frames() (written, skipped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.skipped
}

// Err returns the first write error.
func (s *Y4M) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes and closes the underlying writer if it is closable.
func (s *Y4M) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
