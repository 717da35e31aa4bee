package recognition

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"facegate/internal/imaging"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EnrollmentRecord groups the canonical faces of one person.
type EnrollmentRecord struct {
	Label int
	Faces []*CanonicalFace
}

// EnrolledPhoto is one stored photo of a person, still encoded.
type EnrolledPhoto struct {
	Label int
	Data  []byte
}

// Stage names a coarse training milestone.
type Stage string

const (
	StagePreparing Stage = "preparing"
	StageTraining  Stage = "training"
	StageDone      Stage = "done"
)

// Progress is an advisory training milestone.
type Progress struct {
	RunID   string `json:"run_id"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

// ProgressFunc receives training milestones. It must return quickly.
type ProgressFunc func(Progress)

// TrainStats summarizes a training run.
type TrainStats struct {
	RunID    string        `json:"run_id"`
	Labels   int           `json:"labels"`
	Samples  int           `json:"samples"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Trainer builds models. Feature extraction fans out over Workers goroutines.
type Trainer struct {
	Params       Params
	Preprocessor Preprocessor
	Workers      int
	Clock        func() time.Time
}

type prepJob struct {
	label int
	face  func() (*CanonicalFace, error)
}

// Train builds a model from already canonical faces.
func (t Trainer) Train(ctx context.Context, records []EnrollmentRecord, names map[int]string, progress ProgressFunc) (*Model, TrainStats, error) {
	var jobs []prepJob
	for _, rec := range records {
		for _, f := range rec.Faces {
			jobs = append(jobs, prepJob{label: rec.Label, face: func() (*CanonicalFace, error) { return f, nil }})
		}
	}
	return t.build(ctx, jobs, names, progress)
}

// TrainPhotos decodes and canonicalizes encoded photos, then builds a model.
// Photos that fail to decode are skipped and counted.
func (t Trainer) TrainPhotos(ctx context.Context, photos []EnrolledPhoto, names map[int]string, progress ProgressFunc) (*Model, TrainStats, error) {
	jobs := make([]prepJob, 0, len(photos))
	for _, ph := range photos {
		jobs = append(jobs, prepJob{label: ph.Label, face: func() (*CanonicalFace, error) {
			gray, err := imaging.DecodeGray(ph.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return t.Preprocessor.Canonicalize(gray), nil
		}})
	}
	return t.build(ctx, jobs, names, progress)
}

func (t Trainer) build(ctx context.Context, jobs []prepJob, names map[int]string, progress ProgressFunc) (*Model, TrainStats, error) {
	start := time.Now()
	stats := TrainStats{RunID: uuid.NewString()}
	if err := t.Params.Validate(); err != nil {
		return nil, stats, err
	}

	rep := newReporter(stats.RunID, len(jobs), progress)
	rep.emit(StagePreparing, 0)

	samples := make([]*Sample, len(jobs))
	sizes := make([]image.Point, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers())
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer rep.advance()

			if job.label <= 0 {
				log.WithField("label", job.label).Debug("Skipping sample with non-positive label")
				return nil
			}
			face, err := job.face()
			if err == nil && face.Empty() {
				err = fmt.Errorf("%w: empty face", ErrInvalidInput)
			}
			if err == nil {
				if w, h := face.Size(); !t.Params.fits(w, h) {
					err = fmt.Errorf("%w: face %dx%d too small for grid", ErrInvalidInput, w, h)
				}
			}
			if err != nil {
				log.WithError(err).WithField("label", job.label).Warn("Skipping enrollment sample")
				return nil
			}

			w, h := face.Size()
			sizes[i] = image.Pt(w, h)
			samples[i] = &Sample{Label: job.label, Features: extractFeatures(face.img, t.Params)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	rep.emit(StageTraining, 75)

	// All samples of one model must share the dimensions of the first valid one.
	var (
		kept []Sample
		size image.Point
	)
	for i, s := range samples {
		if s == nil {
			stats.Skipped++
			continue
		}
		if len(kept) == 0 {
			size = sizes[i]
		} else if sizes[i] != size {
			log.WithFields(log.Fields{"label": s.Label, "size": sizes[i], "expected": size}).
				Warn("Skipping enrollment sample with mismatched dimensions")
			stats.Skipped++
			continue
		}
		kept = append(kept, *s)
	}

	if len(kept) == 0 {
		return nil, stats, fmt.Errorf("%w: %d of %d samples unusable", ErrNoTrainableData, stats.Skipped, len(jobs))
	}

	model := newModel(t.Params, size.X, size.Y, kept, names, t.now(), stats.RunID)
	stats.Labels = len(model.labels)
	stats.Samples = len(kept)
	stats.Duration = time.Since(start)

	rep.emit(StageDone, 100)
	return model, stats, nil
}

func (t Trainer) workers() int {
	if t.Workers > 0 {
		return t.Workers
	}
	return max(2, runtime.NumCPU()*3/4)
}

func (t Trainer) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now()
}

// reporter serializes progress calls from the preparation workers and only
// emits when the integer percentage changes.
type reporter struct {
	mu    sync.Mutex
	runID string
	total int
	done  int
	last  int
	sink  ProgressFunc
}

func newReporter(runID string, total int, sink ProgressFunc) *reporter {
	return &reporter{runID: runID, total: total, last: -1, sink: sink}
}

func (r *reporter) advance() {
	if r.sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	pct := 50 * r.done / max(1, r.total)
	if pct != r.last {
		r.last = pct
		r.sink(Progress{RunID: r.runID, Stage: StagePreparing, Percent: pct, Done: r.done, Total: r.total})
	}
}

func (r *reporter) emit(stage Stage, pct int) {
	if r.sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if stage == StagePreparing && pct == r.last {
		return
	}
	r.last = pct
	r.sink(Progress{RunID: r.runID, Stage: stage, Percent: pct, Done: r.done, Total: r.total})
}
