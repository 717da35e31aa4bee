// Package app verdrahtet Datenbank, Erkennung und Bildverarbeitung für
// Server und Kommandozeile.
package app

import (
	"context"
	"fmt"
	"io"

	"facegate/config"
	"facegate/internal/core/processor"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/recognition"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App hält die gemeinsam genutzten Komponenten
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Repo      *repository.GormRepository
	Engine    *recognition.Engine
	Processor *processor.ImageProcessor

	detector processor.FaceDetector
}

// DetectorFactory erzeugt den Gesichtsdetektor. Der OpenCV-Detektor wird von
// den Programmen eingesetzt, damit dieses Paket ohne cgo auskommt.
type DetectorFactory func(cfg config.DetectorConfig) (processor.FaceDetector, error)

// New öffnet die Datenbank und baut Engine und Prozessor. Ohne Factory oder bei
// deaktiviertem Detektor gilt das ganze Bild als Gesicht. events darf nil sein.
func New(cfg *config.Config, detectors DetectorFactory, events processor.EventSink) (*App, error) {
	timezone.Initialize(cfg.Server.Timezone)

	if err := db.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	conn, err := db.GetDB()
	if err != nil {
		return nil, err
	}
	repo := repository.NewGormRepository(conn)

	engine, err := NewEngine(cfg, repo)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: conn, Repo: repo, Engine: engine}

	if cfg.Detector.Enabled && detectors != nil {
		detector, err := detectors(cfg.Detector)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize face detector: %w", err)
		}
		a.detector = detector
	} else {
		log.Info("Face detector disabled, uploads are treated as face crops")
	}
	a.Processor = processor.NewImageProcessor(engine, a.detector, events)

	return a, nil
}

// NewEngine baut die Erkennungs-Engine aus der Konfiguration
func NewEngine(cfg *config.Config, audit recognition.AttemptLog) (*recognition.Engine, error) {
	rc := cfg.Recognition
	params := recognition.Params{Radius: rc.Radius, Neighbors: rc.Neighbors, GridX: rc.GridX, GridY: rc.GridY}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognition parameters: %w", err)
	}
	comparer, err := recognition.NewComparer(rc.Comparer, params)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"threshold": rc.Threshold,
		"comparer":  comparer.Name(),
		"size":      rc.CanonicalSize,
		"grid":      fmt.Sprintf("%dx%d", rc.GridX, rc.GridY),
		"model":     cfg.Model.Path,
	}).Info("Initializing recognition engine")

	return recognition.NewEngine(recognition.Options{
		Preprocessor: recognition.NewPreprocessor(rc.CanonicalSize),
		Params:       params,
		Threshold:    rc.Threshold,
		Comparer:     comparer,
		Workers:      rc.Workers,
		Store:        recognition.NewFileStore(cfg.Model.Path),
		Log:          audit,
		Clock:        timezone.Now,
	}), nil
}

// LoadModel lädt das gespeicherte Modell oder trainiert aus der Datenbank
func (a *App) LoadModel(ctx context.Context) error {
	return a.Engine.Initialize(ctx, a.Repo)
}

// Close gibt Detektor und Datenbankverbindung frei
func (a *App) Close() {
	if closer, ok := a.detector.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warnf("Failed to close face detector: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
