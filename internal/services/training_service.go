package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"facegate/internal/recognition"

	log "github.com/sirupsen/logrus"
)

// Retrainer ist der Teil der Engine, den der Trainingsdienst benötigt
type Retrainer interface {
	Retrain(ctx context.Context, src recognition.EnrollmentSource, progress recognition.ProgressFunc) (*recognition.TrainReport, error)
}

// TrainingOutcome beschreibt den letzten Trainingslauf
type TrainingOutcome struct {
	Reason     string                   `json:"reason"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Report     *recognition.TrainReport `json:"report,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// TrainingService führt Neutrainings aus. Hintergrundanforderungen werden
// zusammengefasst: während ein Lauf aktiv ist, folgt höchstens ein weiterer.
type TrainingService struct {
	engine   Retrainer
	source   recognition.EnrollmentSource
	progress recognition.ProgressFunc
	ctx      context.Context

	mu      sync.Mutex
	running bool
	pending string
	last    *TrainingOutcome
	wg      sync.WaitGroup
}

// NewTrainingService erstellt den Dienst. ctx begrenzt Hintergrundläufe.
func NewTrainingService(ctx context.Context, engine Retrainer, source recognition.EnrollmentSource, progress recognition.ProgressFunc) *TrainingService {
	return &TrainingService{
		engine:   engine,
		source:   source,
		progress: progress,
		ctx:      ctx,
	}
}

// RunNow trainiert synchron
func (s *TrainingService) RunNow(ctx context.Context, reason string) (*recognition.TrainReport, error) {
	return s.run(ctx, reason)
}

func (s *TrainingService) run(ctx context.Context, reason string) (*recognition.TrainReport, error) {
	outcome := &TrainingOutcome{Reason: reason, StartedAt: time.Now()}
	log.WithField("reason", reason).Info("Starting model training")

	report, err := s.engine.Retrain(ctx, s.source, s.progress)
	outcome.FinishedAt = time.Now()
	outcome.Report = report
	switch {
	case err == nil:
	case errors.Is(err, recognition.ErrNoTrainableData):
		outcome.Error = err.Error()
		log.WithField("reason", reason).Info("No usable enrollment photos, model unchanged")
	default:
		outcome.Error = err.Error()
		log.WithField("reason", reason).WithError(err).Error("Model training failed")
	}

	s.mu.Lock()
	s.last = outcome
	s.mu.Unlock()
	return report, err
}

// Trigger fordert ein Neutraining im Hintergrund an
func (s *TrainingService) Trigger(reason string) {
	s.mu.Lock()
	if s.running {
		s.pending = reason
		s.mu.Unlock()
		log.WithField("reason", reason).Debug("Training already running, queued follow-up run")
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if s.ctx.Err() != nil {
				s.mu.Lock()
				s.running = false
				s.pending = ""
				s.mu.Unlock()
				return
			}
			_, _ = s.run(s.ctx, reason)

			s.mu.Lock()
			if s.pending == "" {
				s.running = false
				s.mu.Unlock()
				return
			}
			reason = s.pending
			s.pending = ""
			s.mu.Unlock()
		}
	}()
}

// Running meldet, ob gerade ein Hintergrundlauf aktiv ist
func (s *TrainingService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last liefert den letzten abgeschlossenen Lauf, nil wenn es keinen gab
func (s *TrainingService) Last() *TrainingOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// Wait blockiert, bis alle Hintergrundläufe beendet sind
func (s *TrainingService) Wait() {
	s.wg.Wait()
}
