package recognition

import (
	"context"
	"errors"
	"time"
)

// DefaultThreshold is the minimum similarity for an accepted identification.
const DefaultThreshold = 50.0

// Outcome of a recognition attempt.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Band is a coarse confidence class for display.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor classifies a similarity: >= 80 high, >= 60 medium, else low.
func BandFor(similarity float64) Band {
	switch {
	case similarity >= 80:
		return BandHigh
	case similarity >= 60:
		return BandMedium
	}
	return BandLow
}

// Policy turns a similarity into an outcome.
type Policy struct {
	Threshold float64
}

// Decide accepts iff a label is present and similarity >= Threshold.
func (p Policy) Decide(similarity float64, label int) Outcome {
	if label > 0 && similarity >= p.Threshold {
		return OutcomeAccepted
	}
	return OutcomeRejected
}

// Attempt is one audit entry. Label is 0 when no identity is claimed.
type Attempt struct {
	Timestamp  time.Time `json:"timestamp"`
	Label      int       `json:"label,omitempty"`
	Similarity float64   `json:"similarity"`
	Outcome    Outcome   `json:"outcome"`
	Distance   float64   `json:"distance"`
}

// Accepted is shorthand for Outcome == OutcomeAccepted.
func (a Attempt) Accepted() bool { return a.Outcome == OutcomeAccepted }

// AttemptLog receives every attempt. Implementations may fail; the engine
// only logs those failures.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, a Attempt) error
}

// AttemptLogs fans an attempt out to several logs.
type AttemptLogs []AttemptLog

func (l AttemptLogs) AppendAttempt(ctx context.Context, a Attempt) error {
	var errs []error
	for _, sink := range l {
		if sink == nil {
			continue
		}
		if err := sink.AppendAttempt(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recognition is the result of one recognize call. Candidate is the nearest
// match even when rejected, and nil when no model was live.
type Recognition struct {
	Attempt   Attempt     `json:"attempt"`
	Candidate *Prediction `json:"candidate,omitempty"`
	Band      Band        `json:"band"`
}
