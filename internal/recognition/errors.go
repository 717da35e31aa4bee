package recognition

import "errors"

var (
	// ErrInvalidInput marks an empty, undecodable or mis-sized face sample.
	ErrInvalidInput = errors.New("invalid face input")

	// ErrNoFace is returned when a recognition call has no usable crop.
	ErrNoFace = errors.New("no face in input")

	// ErrNoTrainableData is returned when a training run ends up with zero valid samples.
	ErrNoTrainableData = errors.New("no trainable data")

	// ErrNotTrained is returned by operations that need a live model.
	ErrNotTrained = errors.New("model not trained")

	// ErrArtifactNotFound means nothing has been persisted yet.
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrCorruptArtifact means an artifact exists but cannot be used.
	ErrCorruptArtifact = errors.New("model artifact corrupt")

	// ErrIO wraps failures of the underlying artifact storage.
	ErrIO = errors.New("model storage i/o failure")
)
