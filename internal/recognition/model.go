package recognition

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// Sample is one enrolled face reduced to its feature vector.
type Sample struct {
	Label    int
	Features []float32
}

// Prediction is the nearest stored sample for a probe.
type Prediction struct {
	Label       int     `json:"label"`
	Distance    float64 `json:"distance"`
	Similarity  float64 `json:"similarity"`
	DisplayName string  `json:"display_name"`
}

// Similarity converts a chi-square distance into the 0..100 scale used for
// every decision. It is clamped at zero and reaches 100 only at distance 0.
func Similarity(distance float64) float64 {
	return math.Max(0, 100-distance)
}

// Model is an immutable trained appearance model. A nil *Model is the
// untrained state; every method is safe on nil.
type Model struct {
	params    Params
	width     int
	height    int
	samples   []Sample
	labels    []int
	names     map[int]string
	trainedAt time.Time
	runID     string
}

func newModel(p Params, width, height int, samples []Sample, names map[int]string, trainedAt time.Time, runID string) *Model {
	labels := make([]int, 0)
	seen := make(map[int]bool)
	for _, s := range samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			labels = append(labels, s.Label)
		}
	}
	slices.Sort(labels)

	own := make(map[int]string, len(labels))
	for _, l := range labels {
		if n, ok := names[l]; ok {
			own[l] = n
		}
	}

	return &Model{
		params:    p,
		width:     width,
		height:    height,
		samples:   samples,
		labels:    labels,
		names:     own,
		trainedAt: trainedAt,
		runID:     runID,
	}
}

// Trained reports whether m holds a representation.
func (m *Model) Trained() bool { return m != nil && len(m.samples) > 0 }

// Params returns the feature layout the model was built with.
func (m *Model) Params() Params {
	if m == nil {
		return Params{}
	}
	return m.params
}

// FaceSize returns the canonical dimensions the model expects.
func (m *Model) FaceSize() (int, int) {
	if m == nil {
		return 0, 0
	}
	return m.width, m.height
}

// Labels returns the sorted set of known labels.
func (m *Model) Labels() []int {
	if m == nil {
		return nil
	}
	return slices.Clone(m.labels)
}

// Names returns a copy of the label to display name map.
func (m *Model) Names() map[int]string {
	if m == nil {
		return nil
	}
	return maps.Clone(m.names)
}

// DisplayName returns the name for label, or "" when unknown.
func (m *Model) DisplayName(label int) string {
	if m == nil {
		return ""
	}
	return m.names[label]
}

// SampleCount returns the number of stored feature vectors.
func (m *Model) SampleCount() int {
	if m == nil {
		return 0
	}
	return len(m.samples)
}

// TrainedAt returns the time the model was built.
func (m *Model) TrainedAt() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.trainedAt
}

// RunID identifies the training run that produced the model.
func (m *Model) RunID() string {
	if m == nil {
		return ""
	}
	return m.runID
}

// Predict returns the label of the nearest stored sample across all labels.
func (m *Model) Predict(face *CanonicalFace) (Prediction, error) {
	if !m.Trained() {
		return Prediction{}, ErrNotTrained
	}
	if face.Empty() {
		return Prediction{}, fmt.Errorf("%w: empty face", ErrInvalidInput)
	}
	if w, h := face.Size(); w != m.width || h != m.height {
		return Prediction{}, fmt.Errorf("%w: face is %dx%d, model expects %dx%d", ErrInvalidInput, w, h, m.width, m.height)
	}

	probe := extractFeatures(face.img, m.params)
	label, dist := m.nearest(probe)
	return Prediction{
		Label:       label,
		Distance:    dist,
		Similarity:  Similarity(dist),
		DisplayName: m.names[label],
	}, nil
}

func (m *Model) nearest(probe []float32) (int, float64) {
	best, bestDist := -1, math.MaxFloat64
	for _, s := range m.samples {
		if d := chiSquare(s.Features, probe); d < bestDist {
			best, bestDist = s.Label, d
		}
	}
	return best, bestDist
}
