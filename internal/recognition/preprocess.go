package recognition

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// DefaultCanonicalSize is the edge length of every canonical face.
	DefaultCanonicalSize = 200
	// DefaultGain and DefaultBias are the linear contrast stretch applied after smoothing.
	DefaultGain = 1.2
	DefaultBias = 10.0
)

// CanonicalFace is a preprocessed face sample. Only a Preprocessor creates
// non-empty values, so every face that reaches training or matching went
// through the same normalization.
type CanonicalFace struct {
	img *image.Gray
}

// Image returns the underlying pixels. Callers must not modify them.
func (f *CanonicalFace) Image() *image.Gray {
	if f == nil {
		return nil
	}
	return f.img
}

// Empty reports whether the face has no pixels.
func (f *CanonicalFace) Empty() bool {
	return f == nil || f.img == nil || f.img.Rect.Empty()
}

// Size returns width and height.
func (f *CanonicalFace) Size() (int, int) {
	if f.Empty() {
		return 0, 0
	}
	return f.img.Rect.Dx(), f.img.Rect.Dy()
}

// Preprocessor turns arbitrary grayscale crops into canonical faces:
// histogram equalization, 3x3 Gaussian smoothing, linear contrast stretch and
// a resample to Size x Size, in that order.
type Preprocessor struct {
	Size int
	Gain float64
	Bias float64
}

// NewPreprocessor returns a Preprocessor with the default contrast stretch.
func NewPreprocessor(size int) Preprocessor {
	if size <= 0 {
		size = DefaultCanonicalSize
	}
	return Preprocessor{Size: size, Gain: DefaultGain, Bias: DefaultBias}
}

// Canonicalize normalizes crop. A crop with zero area is wrapped unchanged and
// yields an Empty face.
func (p Preprocessor) Canonicalize(crop *image.Gray) *CanonicalFace {
	if crop == nil || crop.Rect.Empty() {
		return &CanonicalFace{img: crop}
	}

	w, h := crop.Rect.Dx(), crop.Rect.Dy()
	pix := plane(crop)

	equalize(pix)
	pix = gaussian3(pix, w, h)
	stretch(pix, p.Gain, p.Bias)

	src := &image.Gray{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}
	if w == p.Size && h == p.Size {
		return &CanonicalFace{img: src}
	}

	dst := image.NewGray(image.Rect(0, 0, p.Size, p.Size))
	draw.BiLinear.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return &CanonicalFace{img: dst}
}

// plane copies the crop into a tightly packed buffer.
func plane(img *image.Gray) []uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[y*w:(y+1)*w], img.Pix[off:off+w])
	}
	return out
}

// equalize maps intensities through the normalized cumulative histogram,
// starting at the first occupied bin. A single-valued image keeps its value.
func equalize(pix []uint8) {
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}

	i := 0
	for hist[i] == 0 {
		i++
	}
	total := len(pix)
	if hist[i] == total {
		return
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[i])
	sum := 0
	for i++; i < 256; i++ {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	for k, v := range pix {
		pix[k] = lut[v]
	}
}

var gaussKernel = [3]float64{0.25, 0.5, 0.25}

// gaussian3 applies a separable 3x3 Gaussian with reflect-101 borders.
func gaussian3(pix []uint8, w, h int) []uint8 {
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			tmp[y*w+x] = gaussKernel[0]*float64(row[reflect101(x-1, w)]) +
				gaussKernel[1]*float64(row[x]) +
				gaussKernel[2]*float64(row[reflect101(x+1, w)])
		}
	}

	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		up, down := reflect101(y-1, h)*w, reflect101(y+1, h)*w
		for x := 0; x < w; x++ {
			v := gaussKernel[0]*tmp[up+x] + gaussKernel[1]*tmp[y*w+x] + gaussKernel[2]*tmp[down+x]
			out[y*w+x] = saturate(v)
		}
	}
	return out
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	switch {
	case i < 0:
		return -i
	case i >= n:
		return 2*n - i - 2
	}
	return i
}

func stretch(pix []uint8, gain, bias float64) {
	var lut [256]uint8
	for v := range lut {
		lut[v] = saturate(math.Abs(gain*float64(v) + bias))
	}
	for k, v := range pix {
		pix[k] = lut[v]
	}
}

func saturate(v float64) uint8 {
	r := math.RoundToEven(v)
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	}
	return uint8(r)
}
