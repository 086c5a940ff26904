package mjpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestProbe(t *testing.T) {
	t.Parallel()

	buf := encodeJPEG(t, solidRGBA(80, 60, color.RGBA{200, 40, 40, 255}))
	w, h, err := Probe(buf)
	if err != nil {
		t.Fatal(err)
	}
	if w != 80 || h != 60 {
		t.Errorf("got %dx%d, want 80x60", w, h)
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"not a jpeg", []byte("definitely not a jpeg")},
		{"truncated SOI", []byte{0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := Probe(tt.buf); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestToI420Color(t *testing.T) {
	t.Parallel()

	buf := encodeJPEG(t, solidRGBA(33, 17, color.RGBA{10, 200, 30, 255}))
	img, err := ToI420(buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		t.Errorf("ratio: got %v, want 4:2:0", img.SubsampleRatio)
	}
	if img.Rect.Dx() != 33 || img.Rect.Dy() != 17 {
		t.Errorf("size: got %dx%d, want 33x17", img.Rect.Dx(), img.Rect.Dy())
	}
}

func TestToI420Gray(t *testing.T) {
	t.Parallel()

	src := image.NewGray(image.Rect(0, 0, 16, 8))
	for i := range src.Pix {
		src.Pix[i] = 77
	}
	img, err := ToI420(encodeJPEG(t, src))
	if err != nil {
		t.Fatal(err)
	}
	if img.Rect.Dx() != 16 || img.Rect.Dy() != 8 {
		t.Fatalf("size: got %dx%d, want 16x8", img.Rect.Dx(), img.Rect.Dy())
	}
	for i, v := range img.Cb {
		if v != 128 {
			t.Fatalf("Cb[%d]: got %d, want 128", i, v)
		}
	}
	if y := img.Y[img.YOffset(4, 4)]; y < 70 || y > 84 {
		t.Errorf("luma: got %d, want about 77", y)
	}
}

func TestToI420Truncated(t *testing.T) {
	t.Parallel()

	buf := encodeJPEG(t, solidRGBA(32, 32, color.RGBA{1, 2, 3, 255}))
	if _, err := ToI420(buf[:len(buf)/3]); err == nil {
		t.Fatal("expected error for truncated scan data")
	}
}

func TestResampleYCbCr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ratio image.YCbCrSubsampleRatio
	}{
		{"444", image.YCbCrSubsampleRatio444},
		{"422", image.YCbCrSubsampleRatio422},
		{"440", image.YCbCrSubsampleRatio440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := image.NewYCbCr(image.Rect(0, 0, 20, 10), tt.ratio)
			fill(src.Y, 50)
			fill(src.Cb, 90)
			fill(src.Cr, 160)

			dst := resampleYCbCr(src)
			if dst.SubsampleRatio != image.YCbCrSubsampleRatio420 {
				t.Fatalf("ratio: got %v", dst.SubsampleRatio)
			}
			if len(dst.Cb) != 10*5 {
				t.Fatalf("Cb plane: got %d bytes, want 50", len(dst.Cb))
			}
			for i := range dst.Cb {
				if dst.Cb[i] != 90 || dst.Cr[i] != 160 {
					t.Fatalf("chroma %d: got (%d,%d), want (90,160)", i, dst.Cb[i], dst.Cr[i])
				}
			}
			for i, v := range dst.Y {
				if v != 50 {
					t.Fatalf("Y[%d]: got %d, want 50", i, v)
				}
			}
		})
	}
}

func TestChromaSize(t *testing.T) {
	t.Parallel()

	w, h := chromaSize(image.YCbCrSubsampleRatio420, 33, 17)
	if w != 17 || h != 9 {
		t.Errorf("420: got %dx%d, want 17x9", w, h)
	}
	w, h = chromaSize(image.YCbCrSubsampleRatio444, 33, 17)
	if w != 33 || h != 17 {
		t.Errorf("444: got %dx%d, want 33x17", w, h)
	}
}
