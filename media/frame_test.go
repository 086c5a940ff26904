package media

import (
	"image"
	"testing"
)

func TestParseCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Codec
	}{
		{"H264", CodecH264},
		{"JPEG", CodecJPEG},
		{"h264", CodecNone},
		{"H265", CodecNone},
		{"", CodecNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseCodec(tt.name); got != tt.want {
				t.Errorf("ParseCodec(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestPictureDimensions(t *testing.T) {
	t.Parallel()

	p := Picture{Image: image.NewYCbCr(image.Rect(0, 0, 64, 48), image.YCbCrSubsampleRatio420)}
	if p.Width() != 64 {
		t.Errorf("width: got %d, want 64", p.Width())
	}
	if p.Height() != 48 {
		t.Errorf("height: got %d, want 48", p.Height())
	}

	var empty Picture
	if empty.Width() != 0 || empty.Height() != 0 {
		t.Errorf("empty picture: got %dx%d, want 0x0", empty.Width(), empty.Height())
	}
}
