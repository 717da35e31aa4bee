package recognition

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestArtifactRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	trained := trainedEngine(t, Options{Store: store})

	probe := trained.Canonicalize(heldOutLabel1())
	want, err := trained.Predict(probe)
	if err != nil {
		t.Fatal(err)
	}

	loaded := newTestEngine(t, Options{Store: store})
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := loaded.Predict(loaded.Canonicalize(heldOutLabel1()))
	if err != nil {
		t.Fatalf("Predict() after load error = %v", err)
	}

	if got.Label != want.Label || got.DisplayName != want.DisplayName {
		t.Errorf("loaded prediction = %+v, want %+v", got, want)
	}
	if math.Abs(got.Similarity-want.Similarity) > 1e-6 {
		t.Errorf("similarity after load = %v, want %v", got.Similarity, want.Similarity)
	}

	st := loaded.Status()
	if !st.Trained || st.LabelCount != 2 || st.SampleCount != 10 {
		t.Errorf("Status() after load = %+v", st)
	}
	if st.RunID != trained.Status().RunID {
		t.Errorf("run id after load = %q, want %q", st.RunID, trained.Status().RunID)
	}
}

func TestArtifactMetadataContents(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	trainedEngine(t, Options{Store: store})

	data, err := os.ReadFile(store.MetaPath())
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var meta artifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if !meta.Trained || meta.Version != artifactVersion {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Labels) != 2 || meta.LabelNames[1] != "Ada Lovelace" || meta.LabelNames[2] != "Alan Turing" {
		t.Errorf("labels = %v names = %v", meta.Labels, meta.LabelNames)
	}
	if meta.Width != faceSize || meta.Height != faceSize || meta.Samples != 10 {
		t.Errorf("geometry = %dx%d samples = %d", meta.Width, meta.Height, meta.Samples)
	}
}

func TestArtifactLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, s *FileStore)
		want    error
	}{
		{
			name:    "nothing saved",
			corrupt: func(t *testing.T, s *FileStore) { removeAll(t, s.Path(), s.MetaPath()) },
			want:    ErrArtifactNotFound,
		},
		{
			name:    "metadata missing",
			corrupt: func(t *testing.T, s *FileStore) { removeAll(t, s.MetaPath()) },
			want:    ErrCorruptArtifact,
		},
		{
			name:    "metadata unparseable",
			corrupt: func(t *testing.T, s *FileStore) { writeFile(t, s.MetaPath(), []byte("{not json")) },
			want:    ErrCorruptArtifact,
		},
		{
			name:    "representation truncated",
			corrupt: func(t *testing.T, s *FileStore) { writeFile(t, s.Path(), []byte("gob?")) },
			want:    ErrCorruptArtifact,
		},
		{
			name: "metadata marks untrained",
			corrupt: func(t *testing.T, s *FileStore) {
				editMeta(t, s, func(m *artifactMeta) { m.Trained = false })
			},
			want: ErrCorruptArtifact,
		},
		{
			name: "label set disagrees",
			corrupt: func(t *testing.T, s *FileStore) {
				editMeta(t, s, func(m *artifactMeta) { m.Labels = []int{1, 2, 3} })
			},
			want: ErrCorruptArtifact,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
			trainedEngine(t, Options{Store: store})
			tt.corrupt(t, store)

			e := newTestEngine(t, Options{Store: store})
			err := e.Load()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() error = %v, want %v", err, tt.want)
			}
			if e.Status().Trained {
				t.Error("failed load installed a model")
			}
		})
	}
}

func TestArtifactLoadFailureResetsModel(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	e := trainedEngine(t, Options{Store: store})

	removeAll(t, store.MetaPath())
	if err := e.Load(); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("Load() error = %v, want ErrCorruptArtifact", err)
	}
	if e.Status().Trained {
		t.Fatal("corrupt artifact left the previous model live")
	}

	e = trainedEngine(t, Options{Store: store})
	removeAll(t, store.Path())
	if err := e.Load(); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Load() error = %v, want ErrArtifactNotFound", err)
	}
	if e.Status().Trained {
		t.Fatal("missing artifact left the previous model live")
	}
}

func TestArtifactLoadIOErrorKeepsLiveModel(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	e := trainedEngine(t, Options{Store: store})
	before := e.Model()

	// the representation path becomes unreadable as a file
	removeAll(t, store.Path())
	if err := os.Mkdir(store.Path(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := e.Load(); !errors.Is(err, ErrIO) {
		t.Fatalf("Load() error = %v, want ErrIO", err)
	}
	if e.Model() != before {
		t.Fatal("storage failure replaced the live model")
	}
}

func TestArtifactIncompatibleFaceSize(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	trainedEngine(t, Options{Store: store})

	e := newTestEngine(t, Options{Store: store, Preprocessor: NewPreprocessor(100)})
	if err := e.Load(); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("Load() with different canonical size error = %v, want ErrCorruptArtifact", err)
	}
}

func TestArtifactIOErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, []byte("x"))

	// the parent of the artifact path is a regular file
	store := NewFileStore(filepath.Join(blocker, "model.gob"))
	e := newTestEngine(t, Options{Store: store})
	report, err := e.Train(t.Context(), enrollmentRecords(e.pre), testNames, nil)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("Train() with unwritable store error = %v, want ErrIO", err)
	}
	if report == nil || report.Saved {
		t.Errorf("report = %+v, want unsaved report", report)
	}
	if !e.Status().Trained {
		t.Error("model should stay installed when only saving failed")
	}

	// a directory where the representation file should be
	if _, err := NewFileStore(dir).Load(); !errors.Is(err, ErrIO) {
		t.Errorf("Load() of a directory error = %v, want ErrIO", err)
	}
}

func TestSaveRequiresTrainedModel(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	if err := store.Save(nil); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Save(nil) error = %v, want ErrNotTrained", err)
	}
	e := newTestEngine(t, Options{Store: store})
	if err := e.Save(); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Engine.Save() untrained error = %v, want ErrNotTrained", err)
	}
}

func TestSaveOverwritesPreviousArtifact(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.gob"))
	e := trainedEngine(t, Options{Store: store})

	only1 := enrollmentRecords(e.pre)[:1]
	if _, err := e.Train(t.Context(), only1, testNames, nil); err != nil {
		t.Fatal(err)
	}

	loaded := newTestEngine(t, Options{Store: store})
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if got := loaded.Model().Labels(); len(got) != 1 || got[0] != 1 {
		t.Errorf("labels after overwrite = %v, want [1]", got)
	}
}

func removeAll(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.Fatal(err)
		}
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func editMeta(t *testing.T, s *FileStore, edit func(*artifactMeta)) {
	t.Helper()
	data, err := os.ReadFile(s.MetaPath())
	if err != nil {
		t.Fatal(err)
	}
	var meta artifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	edit(&meta)
	out, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, s.MetaPath(), out)
}
