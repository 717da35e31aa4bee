package recognition

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"facegate/internal/imaging"
)

const faceSize = 200

// lcg is a tiny deterministic noise source so fixtures are stable across runs.
type lcg uint32

func (r *lcg) next() uint32 {
	*r = (*r*1103515245 + 12345) & 0x7fffffff
	return uint32(*r)
}

// stripeFace renders period-8 sinusoidal stripes. kind selects the direction:
// 'h' horizontal bands, 'v' vertical bands, 'd' diagonal bands.
func stripeFace(kind byte, phase int, offset float64, seed uint32, amp int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, faceSize, faceSize))
	rnd := lcg(seed)
	for y := 0; y < faceSize; y++ {
		for x := 0; x < faceSize; x++ {
			var t int
			switch kind {
			case 'h':
				t = y
			case 'v':
				t = x
			default:
				t = x + y
			}
			noise := 0
			if amp > 0 {
				noise = int((rnd.next()>>16)%uint32(2*amp+1)) - amp
			} else {
				rnd.next()
			}
			v := 128 + 60*math.Sin(2*math.Pi*float64(t+phase)/8) + offset + float64(noise)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, math.Floor(v+0.5))))
		}
	}
	return img
}

// blobFace is a smooth radial gradient, closer to real face shading.
func blobFace(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := math.Hypot(float64(x-w/2), float64(y-h/2))
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, 200-r)))
		}
	}
	return img
}

var sampleOffsets = [5]float64{0, -10, 5, 12, -6}

// enrollmentCrops returns five noisy crops for label 1 (horizontal) and
// label 2 (vertical).
func enrollmentCrops() map[int][]*image.Gray {
	crops := make(map[int][]*image.Gray)
	for label, kind := range map[int]byte{1: 'h', 2: 'v'} {
		for k := 0; k < 5; k++ {
			crops[label] = append(crops[label], stripeFace(kind, k, sampleOffsets[k], uint32(label*100+k), 12))
		}
	}
	return crops
}

func enrollmentRecords(pre Preprocessor) []EnrollmentRecord {
	var records []EnrollmentRecord
	for label := 1; label <= 2; label++ {
		rec := EnrollmentRecord{Label: label}
		for _, c := range enrollmentCrops()[label] {
			rec.Faces = append(rec.Faces, pre.Canonicalize(c))
		}
		records = append(records, rec)
	}
	return records
}

func enrollmentPhotos(t *testing.T) []EnrolledPhoto {
	t.Helper()
	var photos []EnrolledPhoto
	for label := 1; label <= 2; label++ {
		for _, c := range enrollmentCrops()[label] {
			data, err := imaging.EncodePNG(c)
			if err != nil {
				t.Fatal(err)
			}
			photos = append(photos, EnrolledPhoto{Label: label, Data: data})
		}
	}
	return photos
}

var testNames = map[int]string{1: "Ada Lovelace", 2: "Alan Turing"}

func heldOutLabel1() *image.Gray { return stripeFace('h', 6, 7, 999, 12) }
func unenrolledFace() *image.Gray { return stripeFace('d', 0, 0, 997, 12) }

// memoryLog records attempts in memory.
type memoryLog struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (l *memoryLog) AppendAttempt(_ context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.attempts = append(l.attempts, a)
	return nil
}

func (l *memoryLog) all() []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Attempt(nil), l.attempts...)
}

// memorySource is an in-memory EnrollmentSource.
type memorySource struct {
	photos []EnrolledPhoto
	names  map[int]string
	err    error
}

func (s memorySource) EnrollmentPhotos(context.Context) ([]EnrolledPhoto, error) {
	return s.photos, s.err
}

func (s memorySource) EnrollmentNames(context.Context) (map[int]string, error) {
	return s.names, s.err
}

var errStoreDown = errors.New("store down")

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	return NewEngine(opts)
}

func trainedEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := newTestEngine(t, opts)
	if _, err := e.Train(context.Background(), enrollmentRecords(e.pre), testNames, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return e
}

func meanAbsDiff(a, b *image.Gray) float64 {
	var sum float64
	for i := range a.Pix {
		sum += math.Abs(float64(a.Pix[i]) - float64(b.Pix[i]))
	}
	return sum / float64(len(a.Pix))
}
