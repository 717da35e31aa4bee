package recognition

import (
	"fmt"
	"math"
	"time"
)

// Comparer scores two canonical faces on the 0..100 similarity scale.
// Comparing a face with itself yields the strategy's maximum.
type Comparer interface {
	Name() string
	Compare(a, b *CanonicalFace) (float64, error)
}

const (
	ComparerLBPH      = "lbph"
	ComparerHistogram = "histogram"
)

// NewComparer returns the named strategy.
func NewComparer(name string, p Params) (Comparer, error) {
	switch name {
	case "", ComparerLBPH:
		return LBPHComparer{Params: p}, nil
	case ComparerHistogram:
		return HistogramComparer{}, nil
	}
	return nil, fmt.Errorf("unknown comparer %q", name)
}

// LBPHComparer builds a throwaway model holding the reference face and
// measures the probe against it, so pairwise scores share the Predict scale.
type LBPHComparer struct {
	Params Params
}

func (LBPHComparer) Name() string { return ComparerLBPH }

// Compare returns Similarity of the chi-square distance between a and b.
func (c LBPHComparer) Compare(a, b *CanonicalFace) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	w, h := b.Size()
	if !c.Params.fits(w, h) {
		return 0, fmt.Errorf("%w: face %dx%d too small for grid", ErrInvalidInput, w, h)
	}

	ref := newModel(c.Params, w, h, []Sample{{Label: 1, Features: extractFeatures(b.img, c.Params)}}, nil, time.Time{}, "")
	pred, err := ref.Predict(a)
	if err != nil {
		return 0, err
	}
	return pred.Similarity, nil
}

// HistogramComparer correlates 256-bin intensity histograms and maps the
// Pearson coefficient r to max(0, r) * 100.
type HistogramComparer struct{}

func (HistogramComparer) Name() string { return ComparerHistogram }

func (HistogramComparer) Compare(a, b *CanonicalFace) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	r := correlation(intensityHistogram(a), intensityHistogram(b))
	return math.Max(0, r) * 100, nil
}

func checkPair(a, b *CanonicalFace) error {
	if a.Empty() || b.Empty() {
		return fmt.Errorf("%w: empty face", ErrInvalidInput)
	}
	aw, ah := a.Size()
	bw, bh := b.Size()
	if aw != bw || ah != bh {
		return fmt.Errorf("%w: faces differ in size (%dx%d vs %dx%d)", ErrInvalidInput, aw, ah, bw, bh)
	}
	return nil
}

func intensityHistogram(f *CanonicalFace) []float64 {
	hist := make([]float64, 256)
	img := f.img
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		off := img.PixOffset(img.Rect.Min.X, y)
		for _, v := range img.Pix[off : off+img.Rect.Dx()] {
			hist[v]++
		}
	}
	n := float64(img.Rect.Dx() * img.Rect.Dy())
	for i := range hist {
		hist[i] /= n
	}
	return hist
}

func correlation(a, b []float64) float64 {
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(len(a))
	meanB /= float64(len(b))

	var num, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		varA += da * da
		varB += db * db
	}
	den := math.Sqrt(varA * varB)
	if den == 0 {
		// Flat normalized histograms are identical.
		if varA == 0 && varB == 0 {
			return 1
		}
		return 0
	}
	return num / den
}
