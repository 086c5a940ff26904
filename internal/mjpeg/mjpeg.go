// Package mjpeg converts self-contained JPEG pictures into 4:2:0 planar
// images for the alternate-codec capture path.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

var errEmptyImage = errors.New("mjpeg: image has no pixels")

// Probe returns the picture dimensions from the JPEG header without
// decoding the scan data.
func Probe(buf []byte) (width, height int, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return 0, 0, fmt.Errorf("mjpeg: read header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errEmptyImage
	}
	return cfg.Width, cfg.Height, nil
}

// ToI420 decodes buf and returns it as a 4:2:0 image anchored at the origin.
func ToI420(buf []byte) (*image.YCbCr, error) {
	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("mjpeg: decode: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, errEmptyImage
	}

	switch m := img.(type) {
	case *image.YCbCr:
		if m.SubsampleRatio == image.YCbCrSubsampleRatio420 && m.Rect.Min == (image.Point{}) {
			return m, nil
		}
		return resampleYCbCr(m), nil
	case *image.Gray:
		return fromGray(m), nil
	default:
		return fromAny(img), nil
	}
}

// resampleYCbCr copies luma and rescales both chroma planes to 4:2:0.
func resampleYCbCr(src *image.YCbCr) *image.YCbCr {
	b := src.Rect
	dst := image.NewYCbCr(image.Rect(0, 0, b.Dx(), b.Dy()), image.YCbCrSubsampleRatio420)

	for y := 0; y < b.Dy(); y++ {
		si := src.YOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Y[y*dst.YStride:y*dst.YStride+b.Dx()], src.Y[si:si+b.Dx()])
	}

	cw, ch := chromaSize(src.SubsampleRatio, b.Dx(), b.Dy())
	dcw, dch := chromaSize(image.YCbCrSubsampleRatio420, b.Dx(), b.Dy())
	co := src.COffset(b.Min.X, b.Min.Y)
	for _, planes := range [][2][]byte{{src.Cb, dst.Cb}, {src.Cr, dst.Cr}} {
		in := &image.Gray{Pix: planes[0][co:], Stride: src.CStride, Rect: image.Rect(0, 0, cw, ch)}
		out := &image.Gray{Pix: planes[1], Stride: dst.CStride, Rect: image.Rect(0, 0, dcw, dch)}
		draw.ApproxBiLinear.Scale(out, out.Rect, in, in.Rect, draw.Src, nil)
	}
	return dst
}

func fromGray(src *image.Gray) *image.YCbCr {
	b := src.Rect
	dst := image.NewYCbCr(image.Rect(0, 0, b.Dx(), b.Dy()), image.YCbCrSubsampleRatio420)
	for y := 0; y < b.Dy(); y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Y[y*dst.YStride:y*dst.YStride+b.Dx()], src.Pix[si:si+b.Dx()])
	}
	fill(dst.Cb, 128)
	fill(dst.Cr, 128)
	return dst
}

// fromAny handles the remaining decoder outputs (CMYK). Chroma takes the
// top-left sample of each 2x2 block.
func fromAny(src image.Image) *image.YCbCr {
	b := src.Bounds()
	dst := image.NewYCbCr(image.Rect(0, 0, b.Dx(), b.Dy()), image.YCbCrSubsampleRatio420)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.YCbCrModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
			dst.Y[dst.YOffset(x, y)] = c.Y
			if x%2 == 0 && y%2 == 0 {
				ci := dst.COffset(x, y)
				dst.Cb[ci] = c.Cb
				dst.Cr[ci] = c.Cr
			}
		}
	}
	return dst
}

func chromaSize(r image.YCbCrSubsampleRatio, w, h int) (int, int) {
	switch r {
	case image.YCbCrSubsampleRatio422:
		return (w + 1) / 2, h
	case image.YCbCrSubsampleRatio420:
		return (w + 1) / 2, (h + 1) / 2
	case image.YCbCrSubsampleRatio440:
		return w, (h + 1) / 2
	case image.YCbCrSubsampleRatio411:
		return (w + 3) / 4, h
	case image.YCbCrSubsampleRatio410:
		return (w + 3) / 4, (h + 1) / 2
	}
	return w, h
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
