package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EnrollmentSource supplies the full enrollment snapshot for a training run.
type EnrollmentSource interface {
	EnrollmentPhotos(ctx context.Context) ([]EnrolledPhoto, error)
	EnrollmentNames(ctx context.Context) (map[int]string, error)
}

// Options configures an Engine. Zero values other than Threshold fall back
// to defaults.
type Options struct {
	Preprocessor Preprocessor
	Params       Params
	Threshold    float64
	Comparer     Comparer
	Workers      int
	Store        ModelStore
	Log          AttemptLog
	Clock        func() time.Time
}

// Status describes the live model.
type Status struct {
	Trained     bool      `json:"trained"`
	LabelCount  int       `json:"label_count"`
	SampleCount int       `json:"sample_count"`
	TrainedAt   time.Time `json:"trained_at,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
}

// TrainReport is returned by a successful training run.
type TrainReport struct {
	TrainStats
	Saved bool `json:"saved"`
}

// Engine owns the single live model. Readers take the read lock only to grab
// the current *Model; models are immutable, so a swap is atomic for them.
type Engine struct {
	pre      Preprocessor
	trainer  Trainer
	comparer Comparer
	policy   Policy
	store    ModelStore
	audit    AttemptLog
	now      func() time.Time

	mu    sync.RWMutex
	model *Model

	// trainMu serializes training runs so installs and saves happen in order.
	trainMu sync.Mutex
}

// NewEngine returns an untrained engine.
func NewEngine(opts Options) *Engine {
	if opts.Preprocessor.Size <= 0 {
		opts.Preprocessor = NewPreprocessor(DefaultCanonicalSize)
	}
	if opts.Params == (Params{}) {
		opts.Params = DefaultParams()
	}
	if opts.Comparer == nil {
		opts.Comparer = LBPHComparer{Params: opts.Params}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Engine{
		pre: opts.Preprocessor,
		trainer: Trainer{
			Params:       opts.Params,
			Preprocessor: opts.Preprocessor,
			Workers:      opts.Workers,
			Clock:        opts.Clock,
		},
		comparer: opts.Comparer,
		policy:   Policy{Threshold: opts.Threshold},
		store:    opts.Store,
		audit:    opts.Log,
		now:      opts.Clock,
	}
}

// Canonicalize runs the preprocessing pipeline.
func (e *Engine) Canonicalize(crop *image.Gray) *CanonicalFace {
	return e.pre.Canonicalize(crop)
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 { return e.policy.Threshold }

// ComparerName returns the pairwise strategy in use.
func (e *Engine) ComparerName() string { return e.comparer.Name() }

// Model returns the live model, nil when untrained.
func (e *Engine) Model() *Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *Engine) install(m *Model) {
	e.mu.Lock()
	e.model = m
	e.mu.Unlock()
}

// Status reports the live model state.
func (e *Engine) Status() Status {
	m := e.Model()
	return Status{
		Trained:     m.Trained(),
		LabelCount:  len(m.Labels()),
		SampleCount: m.SampleCount(),
		TrainedAt:   m.TrainedAt(),
		RunID:       m.RunID(),
	}
}

// Train builds a model from canonical faces, installs it and saves it.
// On failure the live model is untouched. A save failure is returned wrapped
// in ErrIO together with a report; the new model stays installed.
func (e *Engine) Train(ctx context.Context, records []EnrollmentRecord, names map[int]string, progress ProgressFunc) (*TrainReport, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	m, stats, err := e.trainer.Train(ctx, records, names, progress)
	if err != nil {
		return nil, err
	}
	return e.commit(m, stats)
}

// TrainPhotos is Train for encoded photos.
func (e *Engine) TrainPhotos(ctx context.Context, photos []EnrolledPhoto, names map[int]string, progress ProgressFunc) (*TrainReport, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	m, stats, err := e.trainer.TrainPhotos(ctx, photos, names, progress)
	if err != nil {
		return nil, err
	}
	return e.commit(m, stats)
}

// Retrain rebuilds the model from the current enrollment snapshot.
func (e *Engine) Retrain(ctx context.Context, src EnrollmentSource, progress ProgressFunc) (*TrainReport, error) {
	photos, err := src.EnrollmentPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enrollment photos: %w", err)
	}
	names, err := src.EnrollmentNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enrollment names: %w", err)
	}
	log.WithFields(log.Fields{"photos": len(photos), "people": len(names)}).Info("Retraining model")
	return e.TrainPhotos(ctx, photos, names, progress)
}

func (e *Engine) commit(m *Model, stats TrainStats) (*TrainReport, error) {
	e.install(m)
	report := &TrainReport{TrainStats: stats}

	fields := log.Fields{
		"run_id":   stats.RunID,
		"labels":   stats.Labels,
		"samples":  stats.Samples,
		"skipped":  stats.Skipped,
		"duration": stats.Duration,
	}
	if e.store == nil {
		log.WithFields(fields).Info("Model trained (no artifact store configured)")
		return report, nil
	}
	if err := e.store.Save(m); err != nil {
		log.WithFields(fields).WithError(err).Error("Model trained but saving failed")
		return report, fmt.Errorf("save model: %w", err)
	}
	report.Saved = true
	log.WithFields(fields).Info("Model trained and saved")
	return report, nil
}

// Save persists the live model.
func (e *Engine) Save() error {
	if e.store == nil {
		return fmt.Errorf("%w: no artifact store configured", ErrIO)
	}
	m := e.Model()
	if !m.Trained() {
		return ErrNotTrained
	}
	return e.store.Save(m)
}

// Load reads the artifact and installs it. A missing or unusable artifact
// leaves the engine untrained; a storage failure leaves the live model as it
// was.
func (e *Engine) Load() error {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	if e.store == nil {
		e.install(nil)
		return ErrArtifactNotFound
	}
	m, err := e.store.Load()
	if err == nil {
		if w, h := m.FaceSize(); w != e.pre.Size || h != e.pre.Size {
			err = fmt.Errorf("%w: artifact faces are %dx%d, preprocessor produces %dx%d", ErrCorruptArtifact, w, h, e.pre.Size, e.pre.Size)
		}
	}
	switch {
	case err == nil:
		e.install(m)
		return nil
	case errors.Is(err, ErrArtifactNotFound), errors.Is(err, ErrCorruptArtifact):
		e.install(nil)
	}
	return err
}

// Initialize loads the persisted model and falls back to training from src
// when nothing usable is stored. An empty enrollment set leaves the engine
// untrained without error.
func (e *Engine) Initialize(ctx context.Context, src EnrollmentSource) error {
	err := e.Load()
	switch {
	case err == nil:
		st := e.Status()
		log.WithFields(log.Fields{"labels": st.LabelCount, "samples": st.SampleCount}).Info("Model loaded from artifact")
		return nil
	case errors.Is(err, ErrArtifactNotFound):
		log.Info("No model artifact found, training from enrollment store")
	case errors.Is(err, ErrCorruptArtifact):
		log.WithError(err).Warn("Model artifact unusable, retraining from enrollment store")
	default:
		return fmt.Errorf("load model: %w", err)
	}

	if src == nil {
		return nil
	}
	_, err = e.Retrain(ctx, src, nil)
	if errors.Is(err, ErrNoTrainableData) {
		log.Info("Enrollment store has no usable photos, engine stays untrained")
		return nil
	}
	return err
}

// Predict matches a canonical face against the live model.
func (e *Engine) Predict(face *CanonicalFace) (Prediction, error) {
	return e.Model().Predict(face)
}

// ComparePair canonicalizes two crops and scores them with the configured
// strategy. It does not touch the live model.
func (e *Engine) ComparePair(a, b *image.Gray) (float64, error) {
	return e.CompareCanonical(e.pre.Canonicalize(a), e.pre.Canonicalize(b))
}

// CompareCanonical scores two canonical faces.
func (e *Engine) CompareCanonical(a, b *CanonicalFace) (float64, error) {
	return e.comparer.Compare(a, b)
}

// Recognize canonicalizes crop, predicts, applies the threshold and appends
// the attempt to the audit log. An empty crop returns ErrNoFace and logs
// nothing. Prediction failures degrade to a rejected attempt; audit failures
// are logged and otherwise ignored.
func (e *Engine) Recognize(ctx context.Context, crop *image.Gray) (*Recognition, error) {
	if crop == nil || crop.Rect.Empty() {
		return nil, ErrNoFace
	}

	face := e.pre.Canonicalize(crop)
	attempt := Attempt{Timestamp: e.now(), Outcome: OutcomeRejected}
	res := &Recognition{}

	pred, err := e.Predict(face)
	switch {
	case err == nil:
		res.Candidate = &pred
		attempt.Similarity = pred.Similarity
		attempt.Distance = pred.Distance
		attempt.Outcome = e.policy.Decide(pred.Similarity, pred.Label)
		if attempt.Outcome == OutcomeAccepted {
			attempt.Label = pred.Label
		}
	case errors.Is(err, ErrNotTrained):
		log.Debug("Recognition without a trained model, rejecting")
	default:
		log.WithError(err).Warn("Prediction failed, treating face as unrecognized")
	}

	res.Attempt = attempt
	res.Band = BandFor(attempt.Similarity)

	if e.audit != nil {
		if err := e.audit.AppendAttempt(ctx, attempt); err != nil {
			log.WithError(err).Warn("Failed to record recognition attempt")
		}
	}

	log.WithFields(log.Fields{
		"outcome":    attempt.Outcome,
		"label":      attempt.Label,
		"similarity": fmt.Sprintf("%.2f", attempt.Similarity),
	}).Debug("Recognition attempt")
	return res, nil
}
