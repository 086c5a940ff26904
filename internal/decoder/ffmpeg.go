package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/zsiec/rtspcap/internal/h264"
	"github.com/zsiec/rtspcap/media"
)

// maxPendingTimestamps bounds the timestamps waiting for an output picture.
// ffmpeg may drop undecodable input, so the earliest entries are discarded
// first.
const maxPendingTimestamps = 256

const closeTimeout = 5 * time.Second

var commonFFmpegPaths = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/snap/bin/ffmpeg",
}

// FindFFmpeg locates an ffmpeg binary. A non-empty custom path must exist;
// otherwise PATH and a few common install locations are searched.
func FindFFmpeg(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err != nil {
			return "", fmt.Errorf("%w: custom path %s: %v", ErrFFmpegNotFound, custom, err)
		}
		return custom, nil
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}
	for _, p := range commonFFmpegPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrFFmpegNotFound
}

// NewFFmpegFactory returns a Factory that starts one ffmpeg process per
// decoder instance.
func NewFFmpegFactory(ffmpegPath string, log *slog.Logger) Factory {
	return func(cfg Config, cb Callback) (Decoder, error) {
		return NewFFmpeg(ffmpegPath, cfg, cb, log)
	}
}

// FFmpeg decodes an Annex B byte stream by piping it through an ffmpeg
// process that emits raw yuv420p pictures of the configured size.
type FFmpeg struct {
	log *slog.Logger
	cfg Config
	cb  Callback

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	pending []pendingPicture
	seenIDR bool
	period  int
	lastIn  int64
	hasIn   bool
	lastOut int64

	closeOnce sync.Once
	closeErr  error
}

// NewFFmpeg starts an ffmpeg process bound to cfg.
func NewFFmpeg(ffmpegPath string, cfg Config, cb Callback, log *slog.Logger) (*FFmpeg, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, fmt.Errorf("decoder: nil callback")
	}
	if log == nil {
		log = slog.Default()
	}
	path, err := FindFFmpeg(ffmpegPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path,
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "h264",
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder: stdout pipe: %w", err)
	}
	d := &FFmpeg{
		log:    log.With("component", "ffmpeg-decoder", "width", cfg.Width, "height", cfg.Height),
		cfg:    cfg,
		cb:     cb,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}
	cmd.Stderr = &stderrLogger{log: d.log}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("decoder: start ffmpeg: %w", err)
	}
	d.log.Debug("ffmpeg started", "pid", cmd.Process.Pid)

	go d.readLoop()
	return d, nil
}

// Decode writes one access unit to ffmpeg. Units that carry a slice queue
// their timestamp for the picture ffmpeg will emit for them; consecutive
// units sharing a timestamp produce a single entry. Slices ahead of the
// first IDR are not queued since ffmpeg drops them.
func (d *FFmpeg) Decode(data []byte, timestampMs int64) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	idr, slice := sliceTypes(data)
	if idr {
		d.seenIDR = true
		d.period++
	}
	if (idr || slice && d.seenIDR) && (!d.hasIn || timestampMs != d.lastIn) {
		d.pending = append(d.pending, pendingPicture{period: d.period, timestampMs: timestampMs})
		if len(d.pending) > maxPendingTimestamps {
			d.pending = d.pending[len(d.pending)-maxPendingTimestamps:]
		}
		d.lastIn = timestampMs
		d.hasIn = true
	}
	d.mu.Unlock()

	if _, err := d.stdin.Write(data); err != nil {
		return fmt.Errorf("decoder: write to ffmpeg: %w", err)
	}
	return nil
}

// Close stops the ffmpeg process after it has flushed the pictures for the
// input already written.
func (d *FFmpeg) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.stdin.Close()
		select {
		case <-d.done:
		case <-time.After(closeTimeout):
			d.log.Warn("ffmpeg did not exit, killing")
			d.cmd.Process.Kill()
			<-d.done
		}
		if err := d.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				d.closeErr = fmt.Errorf("decoder: wait for ffmpeg: %w", err)
			}
		}
		d.log.Debug("ffmpeg stopped")
	})
	return d.closeErr
}

func (d *FFmpeg) readLoop() {
	defer close(d.done)

	w, h := d.cfg.Width, d.cfg.Height
	for {
		img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
		if err := readPlanes(d.stdout, img); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.log.Debug("read error", "error", err)
			}
			// Unblock ffmpeg if it is still writing.
			io.Copy(io.Discard, d.stdout)
			return
		}
		d.cb(media.Picture{Image: img, TimestampMs: d.nextTimestamp()})
	}
}

// pendingPicture is a timestamp waiting for its decoded picture. period
// counts the IDR units written so far.
type pendingPicture struct {
	period      int
	timestampMs int64
}

// before reports whether p is displayed ahead of o. An IDR flushes every
// earlier picture, and within one IDR period pictures leave in ascending
// timestamp order whatever order they were decoded in.
func (p pendingPicture) before(o pendingPicture) bool {
	if p.period != o.period {
		return p.period < o.period
	}
	return p.timestampMs < o.timestampMs
}

// nextTimestamp labels the picture ffmpeg just emitted. Without a pending
// entry the previous label is repeated.
func (d *FFmpeg) nextTimestamp() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return d.lastOut
	}
	next := 0
	for i := 1; i < len(d.pending); i++ {
		if d.pending[i].before(d.pending[next]) {
			next = i
		}
	}
	d.lastOut = d.pending[next].timestampMs
	d.pending = slices.Delete(d.pending, next, next+1)
	return d.lastOut
}

// sliceTypes reports whether data holds an IDR slice or a non-IDR slice.
func sliceTypes(data []byte) (idr, slice bool) {
	for _, nalu := range h264.SplitAnnexB(data) {
		typ, err := h264.TypeOf(nalu)
		if err != nil {
			continue
		}
		switch typ {
		case h264.NALTypeIDR:
			idr = true
		case h264.NALTypeSlice:
			slice = true
		}
	}
	return idr, slice
}

// readPlanes fills the Y, Cb and Cr planes of img from packed yuv420p.
// image.NewYCbCr allocates planes with the same layout ffmpeg writes.
func readPlanes(r io.Reader, img *image.YCbCr) error {
	for _, plane := range [][]byte{img.Y, img.Cb, img.Cr} {
		if _, err := io.ReadFull(r, plane); err != nil {
			return err
		}
	}
	return nil
}

type stderrLogger struct {
	log *slog.Logger
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) > 0 {
			l.log.Debug("ffmpeg", "line", string(line))
		}
	}
	return len(p), nil
}
