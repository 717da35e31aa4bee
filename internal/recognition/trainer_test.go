package recognition

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
)

func TestTrainEmptyEnrollment(t *testing.T) {
	e := newTestEngine(t, Options{})

	_, err := e.Train(context.Background(), nil, nil, nil)
	if !errors.Is(err, ErrNoTrainableData) {
		t.Fatalf("Train(empty) error = %v, want ErrNoTrainableData", err)
	}

	face := e.Canonicalize(heldOutLabel1())
	if _, err := e.Predict(face); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("Predict() after failed training error = %v, want ErrNotTrained", err)
	}
	if st := e.Status(); st.Trained || st.LabelCount != 0 {
		t.Errorf("Status() = %+v, want untrained", st)
	}
}

func TestTrainFailureKeepsPreviousModel(t *testing.T) {
	e := trainedEngine(t, Options{})
	before := e.Model()

	bad := []EnrollmentRecord{{Label: 1, Faces: []*CanonicalFace{e.Canonicalize(nil)}}}
	if _, err := e.Train(context.Background(), bad, nil, nil); !errors.Is(err, ErrNoTrainableData) {
		t.Fatalf("Train(bad) error = %v, want ErrNoTrainableData", err)
	}
	if e.Model() != before {
		t.Fatal("failed training replaced the live model")
	}
}

func TestTrainSkipsInvalidSamples(t *testing.T) {
	e := newTestEngine(t, Options{})
	pre := e.pre

	records := []EnrollmentRecord{
		{Label: 1, Faces: []*CanonicalFace{
			pre.Canonicalize(heldOutLabel1()),
			pre.Canonicalize(nil),
			pre.Canonicalize(image.NewGray(image.Rect(0, 0, 0, 10))),
		}},
		{Label: 0, Faces: []*CanonicalFace{pre.Canonicalize(unenrolledFace())}},
		{Label: 2, Faces: []*CanonicalFace{NewPreprocessor(120).Canonicalize(unenrolledFace())}},
	}

	report, err := e.Train(context.Background(), records, testNames, nil)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if report.Samples != 1 || report.Skipped != 4 || report.Labels != 1 {
		t.Errorf("report = %+v, want 1 sample, 4 skipped, 1 label", report.TrainStats)
	}
	if got := e.Model().Labels(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Labels() = %v, want [1]", got)
	}
}

func TestTrainPhotosSkipsUndecodable(t *testing.T) {
	e := newTestEngine(t, Options{})
	photos := append(enrollmentPhotos(t),
		EnrolledPhoto{Label: 1, Data: []byte("not an image")},
		EnrolledPhoto{Label: 2, Data: nil},
	)

	report, err := e.TrainPhotos(context.Background(), photos, testNames, nil)
	if err != nil {
		t.Fatalf("TrainPhotos() error = %v", err)
	}
	if report.Samples != 10 || report.Skipped != 2 || report.Labels != 2 {
		t.Errorf("report = %+v, want 10 samples, 2 skipped, 2 labels", report.TrainStats)
	}

	_, err = e.TrainPhotos(context.Background(), []EnrolledPhoto{{Label: 1, Data: []byte{1, 2, 3}}}, nil, nil)
	if !errors.Is(err, ErrNoTrainableData) {
		t.Errorf("TrainPhotos(all undecodable) error = %v, want ErrNoTrainableData", err)
	}
}

func TestTrainProgressMilestones(t *testing.T) {
	e := newTestEngine(t, Options{})

	var (
		mu     sync.Mutex
		events []Progress
	)
	sink := func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	report, err := e.Train(context.Background(), enrollmentRecords(e.pre), testNames, sink)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("got %d progress events, want at least 3", len(events))
	}
	if first := events[0]; first.Stage != StagePreparing || first.Percent != 0 {
		t.Errorf("first event = %+v, want preparing 0%%", first)
	}
	if last := events[len(events)-1]; last.Stage != StageDone || last.Percent != 100 {
		t.Errorf("last event = %+v, want done 100%%", last)
	}

	sawTraining := false
	prev := -1
	for _, ev := range events {
		if ev.RunID != report.RunID {
			t.Errorf("event run id %q, want %q", ev.RunID, report.RunID)
		}
		if ev.Percent < prev {
			t.Errorf("progress went backwards: %d after %d", ev.Percent, prev)
		}
		prev = ev.Percent
		if ev.Stage == StagePreparing && ev.Percent > 50 {
			t.Errorf("preparation reported %d%%, want <= 50", ev.Percent)
		}
		if ev.Stage == StageTraining {
			sawTraining = true
		}
	}
	if !sawTraining {
		t.Error("no training milestone reported")
	}
}

func TestTrainCancelled(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Train(ctx, enrollmentRecords(e.pre), testNames, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Train(cancelled) error = %v, want context.Canceled", err)
	}
	if e.Status().Trained {
		t.Error("cancelled training installed a model")
	}
}

func TestModelKeepsNamesOfKnownLabelsOnly(t *testing.T) {
	names := map[int]string{1: "Ada Lovelace", 2: "Alan Turing", 9: "Nobody"}
	e := newTestEngine(t, Options{})
	if _, err := e.Train(context.Background(), enrollmentRecords(e.pre), names, nil); err != nil {
		t.Fatal(err)
	}
	got := e.Model().Names()
	if len(got) != 2 || got[1] != "Ada Lovelace" || got[2] != "Alan Turing" {
		t.Errorf("Names() = %v", got)
	}
}
