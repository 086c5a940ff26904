package decoder

import (
	"errors"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/rtspcap/media"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Width: 640, Height: 480}, false},
		{"zero width", Config{Width: 0, Height: 480}, true},
		{"negative height", Config{Width: 640, Height: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestInputPoolPadding(t *testing.T) {
	t.Parallel()

	var p InputPool
	buf := p.Get(100)
	if len(buf) != 100 {
		t.Fatalf("len: got %d, want 100", len(buf))
	}
	if cap(buf) < 100+InputPadding {
		t.Fatalf("cap: got %d, want at least %d", cap(buf), 100+InputPadding)
	}

	// Dirty the whole capacity, return it, and check a smaller request
	// comes back with zeroed padding.
	full := buf[:cap(buf)]
	for i := range full {
		full[i] = 0xff
	}
	p.Put(buf)

	buf = p.Get(10)
	pad := buf[len(buf) : len(buf)+InputPadding]
	for i, b := range pad {
		if b != 0 {
			t.Fatalf("padding byte %d: got %#x, want 0", i, b)
		}
	}
}

func TestFindFFmpegCustomPathMissing(t *testing.T) {
	t.Parallel()

	_, err := FindFFmpeg("/nonexistent/ffmpeg")
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Fatalf("got %v, want ErrFFmpegNotFound", err)
	}
}

func TestNewFFmpegRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewFFmpeg("", Config{}, func(media.Picture) {}, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

// encodeTestStream produces a short Annex B stream with ffmpeg, skipping
// the test when ffmpeg or an H.264 encoder is unavailable.
func encodeTestStream(t *testing.T, path string, frames int) []byte {
	t.Helper()
	out, err := exec.Command(path,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25",
		"-frames:v", strconv.Itoa(frames),
		"-c:v", "libx264", "-bf", "0",
		"-f", "h264", "pipe:1",
	).Output()
	if err != nil || len(out) == 0 {
		t.Skipf("cannot encode test stream: %v", err)
	}
	return out
}

func TestFFmpegDecode(t *testing.T) {
	t.Parallel()

	path, err := FindFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	stream := encodeTestStream(t, path, 3)

	var mu sync.Mutex
	var pics []media.Picture
	dec, err := NewFFmpeg(path, Config{Width: 64, Height: 48}, func(p media.Picture) {
		mu.Lock()
		pics = append(pics, p)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := dec.Decode(stream, 40); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- dec.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("close did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pics) != 3 {
		t.Fatalf("pictures: got %d, want 3", len(pics))
	}
	for i, p := range pics {
		if p.Width() != 64 || p.Height() != 48 {
			t.Errorf("picture %d: got %dx%d, want 64x48", i, p.Width(), p.Height())
		}
		if p.TimestampMs != 40 {
			t.Errorf("picture %d: timestamp got %d, want 40", i, p.TimestampMs)
		}
	}

	if err := dec.Decode(stream, 80); !errors.Is(err, ErrClosed) {
		t.Errorf("decode after close: got %v, want ErrClosed", err)
	}
}

type discardCloser struct{ io.Writer }

func (discardCloser) Close() error { return nil }

// unit builds an access unit from NAL headers, each followed by a little
// slice data.
func unit(headers ...byte) []byte {
	var out []byte
	for _, h := range headers {
		out = append(out, 0x00, 0x00, 0x00, 0x01, h, 0x88, 0x84, 0x21)
	}
	return out
}

func TestFFmpegPictureTimestamps(t *testing.T) {
	t.Parallel()

	var (
		idr   = unit(0x67, 0x68, 0x65)
		slice = unit(0x41)
		sei   = unit(0x06)
	)
	type input struct {
		data []byte
		ts   int64
	}
	tests := []struct {
		name   string
		inputs []input
		want   []int64
	}{
		{
			name:   "decode order",
			inputs: []input{{idr, 0}, {slice, 40}, {slice, 80}},
			want:   []int64{0, 40, 80},
		},
		{
			name:   "slices before first IDR",
			inputs: []input{{slice, 0}, {slice, 40}, {idr, 80}, {slice, 120}},
			want:   []int64{80, 120},
		},
		{
			name:   "B-frames",
			inputs: []input{{idr, 0}, {slice, 120}, {slice, 40}, {slice, 80}},
			want:   []int64{0, 40, 80, 120},
		},
		{
			name:   "non-VCL units",
			inputs: []input{{idr, 0}, {sei, 20}, {slice, 40}},
			want:   []int64{0, 40},
		},
		{
			name:   "shared timestamp",
			inputs: []input{{idr, 0}, {slice, 40}, {slice, 40}, {slice, 80}},
			want:   []int64{0, 40, 80},
		},
		{
			name:   "timestamp reset at IDR",
			inputs: []input{{idr, 1000}, {slice, 1040}, {idr, 10}, {slice, 50}},
			want:   []int64{1000, 1040, 10, 50},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &FFmpeg{stdin: discardCloser{io.Discard}}
			for _, in := range tt.inputs {
				if err := d.Decode(in.data, in.ts); err != nil {
					t.Fatalf("Decode(ts=%d): %v", in.ts, err)
				}
			}
			for i, want := range tt.want {
				if got := d.nextTimestamp(); got != want {
					t.Errorf("picture %d: got ts %d, want %d", i, got, want)
				}
			}
			if len(d.pending) != 0 {
				t.Errorf("pending: got %d entries left, want 0", len(d.pending))
			}
		})
	}
}

func TestFFmpegTimestampWithoutPending(t *testing.T) {
	t.Parallel()

	d := &FFmpeg{stdin: discardCloser{io.Discard}}
	if err := d.Decode(unit(0x65), 40); err != nil {
		t.Fatal(err)
	}
	// A second picture for the same input keeps the last label.
	for i := 0; i < 2; i++ {
		if got := d.nextTimestamp(); got != 40 {
			t.Errorf("picture %d: got ts %d, want 40", i, got)
		}
	}
}
