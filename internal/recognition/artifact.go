package recognition

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"
)

const artifactVersion = 1

// ModelStore persists models.
type ModelStore interface {
	Save(m *Model) error
	Load() (*Model, error)
}

// FileStore keeps a model as two files: the gob encoded representation at
// Path and a JSON metadata sidecar at Path+".meta". Each file is replaced
// atomically.
type FileStore struct {
	path string
}

// NewFileStore returns a store rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the representation file path.
func (s *FileStore) Path() string { return s.path }

// MetaPath returns the metadata sidecar path.
func (s *FileStore) MetaPath() string { return s.path + ".meta" }

type artifactMeta struct {
	Version    int            `json:"version"`
	Trained    bool           `json:"trained"`
	RunID      string         `json:"run_id"`
	Labels     []int          `json:"labels"`
	LabelNames map[int]string `json:"label_names"`
	Samples    int            `json:"samples"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Params     Params         `json:"params"`
	TrainedAt  time.Time      `json:"trained_at"`
	Checksum   string         `json:"checksum"`
}

type representation struct {
	Params  Params
	Width   int
	Height  int
	Samples []Sample
}

// Save writes the representation first and the metadata second, so a torn
// write is detected on load by the checksum.
func (s *FileStore) Save(m *Model) error {
	if !m.Trained() {
		return ErrNotTrained
	}

	var buf bytes.Buffer
	rep := representation{Params: m.params, Width: m.width, Height: m.height, Samples: m.samples}
	if err := gob.NewEncoder(&buf).Encode(&rep); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())

	meta := artifactMeta{
		Version:    artifactVersion,
		Trained:    true,
		RunID:      m.runID,
		Labels:     m.Labels(),
		LabelNames: m.Names(),
		Samples:    len(m.samples),
		Width:      m.width,
		Height:     m.height,
		Params:     m.params,
		TrainedAt:  m.trainedAt,
		Checksum:   hex.EncodeToString(sum[:]),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model metadata: %w", err)
	}

	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, s.path, err)
	}
	if err := renameio.WriteFile(s.MetaPath(), metaData, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, s.MetaPath(), err)
	}

	log.WithFields(log.Fields{
		"path":    s.path,
		"labels":  len(meta.Labels),
		"samples": meta.Samples,
		"bytes":   buf.Len(),
	}).Info("Model artifact saved")
	return nil
}

// Load reads and validates both units. A missing representation is
// ErrArtifactNotFound; anything present but unusable is ErrCorruptArtifact.
func (s *FileStore) Load() (*Model, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.path, err)
	}

	metaData, err := os.ReadFile(s.MetaPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: metadata %s missing", ErrCorruptArtifact, s.MetaPath())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.MetaPath(), err)
	}

	var meta artifactMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrCorruptArtifact, err)
	}
	switch {
	case meta.Version != artifactVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptArtifact, meta.Version)
	case !meta.Trained:
		return nil, fmt.Errorf("%w: metadata marks model as untrained", ErrCorruptArtifact)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != meta.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptArtifact)
	}

	var rep representation
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", ErrCorruptArtifact, err)
	}
	if err := rep.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if len(rep.Samples) == 0 || len(rep.Samples) != meta.Samples {
		return nil, fmt.Errorf("%w: %d samples, metadata says %d", ErrCorruptArtifact, len(rep.Samples), meta.Samples)
	}
	if !rep.Params.fits(rep.Width, rep.Height) {
		return nil, fmt.Errorf("%w: face size %dx%d does not fit grid", ErrCorruptArtifact, rep.Width, rep.Height)
	}
	for i, smp := range rep.Samples {
		if len(smp.Features) != rep.Params.FeatureLen() {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", ErrCorruptArtifact, i, len(smp.Features), rep.Params.FeatureLen())
		}
	}

	m := newModel(rep.Params, rep.Width, rep.Height, rep.Samples, meta.LabelNames, meta.TrainedAt, meta.RunID)
	if !slices.Equal(m.labels, meta.Labels) {
		return nil, fmt.Errorf("%w: label set disagrees with metadata", ErrCorruptArtifact)
	}

	log.WithFields(log.Fields{
		"path":    s.path,
		"labels":  len(m.labels),
		"samples": len(m.samples),
	}).Info("Model artifact loaded")
	return m, nil
}
