package main

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// decodeImage decodes JPEG, PNG, GIF, BMP or TIFF challenge bytes.
func decodeImage(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// cropGlyphs keeps the left width pixels, where the arithmetic glyphs are
// drawn. The rest of the challenge is decorative noise.
func cropGlyphs(img image.Image, width int) (*image.NRGBA, error) {
	b := img.Bounds()
	cropped := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y))
	if cropped.Bounds().Empty() {
		return nil, fmt.Errorf("crop %dpx of %v leaves nothing", width, b.Size())
	}
	return cropped, nil
}

// intensity converts to a single channel.
func intensity(img image.Image) *image.Gray {
	g := imaging.Grayscale(img)
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// adaptiveThresholdInv binarizes src against the mean of each pixel's
// block x block neighbourhood minus bias. Pixels brighter than that local
// threshold become 0 and the rest 255, so dark strokes come out white.
// The window is clipped at the image edges.
func adaptiveThresholdInv(src *image.Gray, block, bias int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// integral[(y+1)*(w+1)+(x+1)] is the sum of src over [0,x]x[0,y].
	stride := w + 1
	integral := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(src.Pix[y*src.Stride+x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			n := int64((y1 - y0) * (x1 - x0))
			threshold := sum/n - int64(bias)
			if int64(src.Pix[y*src.Stride+x]) > threshold {
				out.Pix[y*out.Stride+x] = 0
			} else {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// binarize runs crop, intensity, inverted adaptive threshold and the
// final inversion, returning dark glyphs on a white background.
func binarize(img image.Image, cfg CaptchaConfig) (*image.NRGBA, *image.NRGBA, error) {
	cropped, err := cropGlyphs(img, cfg.CropWidth)
	if err != nil {
		return nil, nil, err
	}
	inverted := adaptiveThresholdInv(intensity(cropped), cfg.BlockSize, cfg.Bias)
	return cropped, imaging.Invert(inverted), nil
}
