package app

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"facegate/config"
	"facegate/internal/core/processor"
	"facegate/internal/recognition"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{DataDir: dir, Timezone: "UTC"},
		DB:     config.DBConfig{Driver: "sqlite", File: filepath.Join(dir, "app.db")},
		Recognition: config.RecognitionConfig{
			Threshold:     50,
			Comparer:      recognition.ComparerLBPH,
			CanonicalSize: 64,
			Radius:        1,
			Neighbors:     8,
			GridX:         4,
			GridY:         4,
		},
		Model: config.ModelConfig{Path: filepath.Join(dir, "model", "face.gob")},
	}
}

type namedDetector struct{ closed bool }

func (d *namedDetector) Name() string { return "named" }
func (d *namedDetector) DetectFaces(img *image.Gray) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Rect}, nil
}
func (d *namedDetector) Close() error { d.closed = true; return nil }

func TestNewWithoutDetector(t *testing.T) {
	cfg := testConfig(t)
	called := false
	a, err := New(cfg, func(config.DetectorConfig) (processor.FaceDetector, error) {
		called = true
		return nil, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if called {
		t.Error("detector factory used although the detector is disabled")
	}
	if got := a.Processor.DetectorName(); got != "whole-image" {
		t.Errorf("DetectorName() = %q", got)
	}
	if err := a.LoadModel(context.Background()); err != nil {
		t.Errorf("LoadModel() on an empty store = %v", err)
	}
	if a.Engine.Status().Trained {
		t.Error("engine trained without enrollment data")
	}
	if a.Engine.Threshold() != 50 || a.Engine.ComparerName() != recognition.ComparerLBPH {
		t.Errorf("engine threshold/comparer = %v/%s", a.Engine.Threshold(), a.Engine.ComparerName())
	}
}

func TestNewWithDetector(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detector.Enabled = true

	det := &namedDetector{}
	a, err := New(cfg, func(config.DetectorConfig) (processor.FaceDetector, error) { return det, nil }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := a.Processor.DetectorName(); got != "named" {
		t.Errorf("DetectorName() = %q", got)
	}
	a.Close()
	if !det.closed {
		t.Error("Close() did not close the detector")
	}

	boom := errors.New("cascade missing")
	cfg = testConfig(t)
	cfg.Detector.Enabled = true
	plain, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("nil factory = %v", err)
	}
	if got := plain.Processor.DetectorName(); got != "whole-image" {
		t.Errorf("nil factory DetectorName() = %q", got)
	}
	plain.Close()

	cfg = testConfig(t)
	cfg.Detector.Enabled = true
	if _, err := New(cfg, func(config.DetectorConfig) (processor.FaceDetector, error) { return nil, boom }, nil); !errors.Is(err, boom) {
		t.Errorf("factory error = %v, want %v", err, boom)
	}
}

func TestNewEngineRejectsBadParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recognition.GridX = 0
	if _, err := NewEngine(cfg, nil); !errors.Is(err, recognition.ErrInvalidInput) {
		t.Errorf("grid 0: err = %v", err)
	}

	cfg = testConfig(t)
	cfg.Recognition.Comparer = "eigen"
	if _, err := NewEngine(cfg, nil); err == nil {
		t.Error("unknown comparer accepted")
	}
}
