package recognition

import (
	"fmt"
	"image"
	"math"
)

// Params describes the local binary pattern feature layout.
type Params struct {
	Radius    int `json:"radius"`
	Neighbors int `json:"neighbors"`
	GridX     int `json:"grid_x"`
	GridY     int `json:"grid_y"`
}

// DefaultParams returns radius 1, 8 neighbours on a 7x7 grid.
func DefaultParams() Params {
	return Params{Radius: 1, Neighbors: 8, GridX: 7, GridY: 7}
}

// Validate rejects layouts that cannot produce a feature vector.
func (p Params) Validate() error {
	switch {
	case p.Radius < 1:
		return fmt.Errorf("%w: radius must be >= 1, got %d", ErrInvalidInput, p.Radius)
	case p.Neighbors < 1 || p.Neighbors > 16:
		return fmt.Errorf("%w: neighbors must be within [1, 16], got %d", ErrInvalidInput, p.Neighbors)
	case p.GridX < 1 || p.GridY < 1:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalidInput, p.GridX, p.GridY)
	}
	return nil
}

func (p Params) bins() int { return 1 << p.Neighbors }

// FeatureLen is the length of one sample's feature vector.
func (p Params) FeatureLen() int { return p.GridX * p.GridY * p.bins() }

// fits reports whether a w x h face leaves at least one pixel per grid cell.
func (p Params) fits(w, h int) bool {
	return w-2*p.Radius >= p.GridX && h-2*p.Radius >= p.GridY
}

const lbpEpsilon = 1.1920929e-07 // float32 machine epsilon

// lbpCodes computes circular LBP codes with bilinear neighbour sampling.
// The result is (w-2r) x (h-2r), row major.
func lbpCodes(img *image.Gray, p Params) ([]uint16, int, int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	r := p.Radius
	ow, oh := w-2*r, h-2*r
	codes := make([]uint16, ow*oh)

	at := func(x, y int) float64 {
		return float64(img.Pix[img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)])
	}

	for n := 0; n < p.Neighbors; n++ {
		angle := 2.0 * math.Pi * float64(n) / float64(p.Neighbors)
		x := float64(r) * math.Cos(angle)
		y := -float64(r) * math.Sin(angle)

		fx, fy := int(math.Floor(x)), int(math.Floor(y))
		cx, cy := int(math.Ceil(x)), int(math.Ceil(y))
		tx, ty := x-float64(fx), y-float64(fy)

		w1 := (1 - tx) * (1 - ty)
		w2 := tx * (1 - ty)
		w3 := (1 - tx) * ty
		w4 := tx * ty
		bit := uint16(1) << n

		for i := r; i < h-r; i++ {
			for j := r; j < w-r; j++ {
				t := w1*at(j+fx, i+fy) + w2*at(j+cx, i+fy) + w3*at(j+fx, i+cy) + w4*at(j+cx, i+cy)
				c := at(j, i)
				if t > c || math.Abs(t-c) < lbpEpsilon {
					codes[(i-r)*ow+(j-r)] |= bit
				}
			}
		}
	}
	return codes, ow, oh
}

// extractFeatures builds the concatenated per-cell LBP histograms. Each cell
// histogram sums to 1. Pixels beyond the last whole cell are ignored.
func extractFeatures(img *image.Gray, p Params) []float32 {
	codes, ow, oh := lbpCodes(img, p)
	bins := p.bins()
	cw, ch := ow/p.GridX, oh/p.GridY
	norm := 1.0 / float32(cw*ch)

	features := make([]float32, p.FeatureLen())
	for gy := 0; gy < p.GridY; gy++ {
		for gx := 0; gx < p.GridX; gx++ {
			hist := features[(gy*p.GridX+gx)*bins : (gy*p.GridX+gx+1)*bins]
			for y := gy * ch; y < (gy+1)*ch; y++ {
				row := codes[y*ow : (y+1)*ow]
				for x := gx * cw; x < (gx+1)*cw; x++ {
					hist[row[x]] += norm
				}
			}
		}
	}
	return features
}

// chiSquare is the symmetric chi-square distance sum 2(a-b)^2/(a+b).
func chiSquare(a, b []float32) float64 {
	var d float64
	for i := range a {
		s := float64(a[i]) + float64(b[i])
		if s <= lbpEpsilon {
			continue
		}
		diff := float64(a[i]) - float64(b[i])
		d += 2 * diff * diff / s
	}
	return d
}
