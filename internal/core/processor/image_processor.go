package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"facegate/internal/imaging"
	"facegate/internal/recognition"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// FaceDetector findet Gesichter in einem Bild. Die Reihenfolge der Rechtecke
// ist die des Detektors; verwendet wird immer das erste.
type FaceDetector interface {
	Name() string
	DetectFaces(img *image.Gray) ([]image.Rectangle, error)
}

// WholeImageDetector behandelt das gesamte Bild als Gesicht (bereits zugeschnittene Eingaben)
type WholeImageDetector struct{}

// Name implementiert FaceDetector
func (WholeImageDetector) Name() string { return "whole-image" }

// DetectFaces liefert die Bildgrenzen als einziges Gesicht
func (WholeImageDetector) DetectFaces(img *image.Gray) ([]image.Rectangle, error) {
	if img == nil || img.Rect.Empty() {
		return nil, nil
	}
	return []image.Rectangle{img.Rect}, nil
}

// Engine ist der Teil der Erkennung, den der Prozessor benötigt
type Engine interface {
	Recognize(ctx context.Context, crop *image.Gray) (*recognition.Recognition, error)
	ComparePair(a, b *image.Gray) (float64, error)
}

// EventSink empfängt Erkennungsergebnisse (SSE, MQTT)
type EventSink interface {
	PublishRecognition(result *Result)
}

// DetectionRecorder erhält jedes Detektorergebnis, etwa für Debug-Bilder
type DetectionRecorder interface {
	RecordDetection(source string, img *image.Gray, faces []image.Rectangle)
}

// Box ist ein Gesichtsrechteck in Bildkoordinaten
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func boxOf(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Result ist das Ergebnis der Verarbeitung eines Bildes
type Result struct {
	Source      string                   `json:"source,omitempty"`
	Format      string                   `json:"format"`
	Detector    string                   `json:"detector"`
	FacesFound  int                      `json:"faces_found"`
	Box         Box                      `json:"box"`
	Recognition *recognition.Recognition `json:"recognition"`
	ProcessedAt time.Time                `json:"processed_at"`
	Duration    time.Duration            `json:"duration"`
}

// ImageProcessor dekodiert Bilder, sucht das Gesicht und übergibt es der Erkennung
type ImageProcessor struct {
	engine   Engine
	detector FaceDetector
	events   EventSink
	recorder DetectionRecorder
}

// NewImageProcessor erstellt einen neuen Bildverarbeitungsprozessor.
// Ohne Detektor wird das ganze Bild als Gesicht verwendet.
func NewImageProcessor(engine Engine, detector FaceDetector, events EventSink) *ImageProcessor {
	if detector == nil {
		detector = WholeImageDetector{}
	}
	return &ImageProcessor{
		engine:   engine,
		detector: detector,
		events:   events,
	}
}

// SetRecorder aktiviert die Aufzeichnung der Detektorergebnisse. Vor der
// ersten Verarbeitung aufrufen.
func (p *ImageProcessor) SetRecorder(r DetectionRecorder) {
	p.recorder = r
}

// DetectorName gibt den Namen des aktiven Detektors zurück
func (p *ImageProcessor) DetectorName() string {
	return p.detector.Name()
}

// Face ist das ausgeschnittene Gesicht eines Bildes
type Face struct {
	Crop   *image.Gray
	Box    Box
	Found  int
	Format string
}

// ExtractFace dekodiert ein Bild und schneidet das erste gefundene Gesicht aus.
// Ohne Gesicht wird recognition.ErrNoFace zurückgegeben.
func (p *ImageProcessor) ExtractFace(data []byte) (*Face, error) {
	return p.extract(data, "")
}

func (p *ImageProcessor) extract(data []byte, source string) (*Face, error) {
	img, format, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", recognition.ErrInvalidInput, err)
	}
	gray := imaging.ToGray(img)

	faces, err := p.detector.DetectFaces(gray)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if p.recorder != nil {
		p.recorder.RecordDetection(source, gray, faces)
	}
	if len(faces) == 0 {
		return nil, recognition.ErrNoFace
	}

	crop := imaging.Crop(gray, faces[0])
	if crop.Rect.Empty() {
		return nil, recognition.ErrNoFace
	}
	return &Face{Crop: crop, Box: boxOf(faces[0].Intersect(gray.Rect)), Found: len(faces), Format: format}, nil
}

// ProcessImage führt Dekodierung, Gesichtssuche und Erkennung für ein Bild aus
func (p *ImageProcessor) ProcessImage(ctx context.Context, data []byte, source string) (*Result, error) {
	start := time.Now()

	face, err := p.extract(data, source)
	if err != nil {
		if errors.Is(err, recognition.ErrNoFace) {
			log.WithFields(log.Fields{"source": source, "detector": p.detector.Name()}).Debug("No face found in image")
		}
		return nil, err
	}

	rec, err := p.engine.Recognize(ctx, face.Crop)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Source:      source,
		Format:      face.Format,
		Detector:    p.detector.Name(),
		FacesFound:  face.Found,
		Box:         face.Box,
		Recognition: rec,
		ProcessedAt: timezone.Now(),
		Duration:    time.Since(start),
	}

	log.WithFields(log.Fields{
		"source":     source,
		"outcome":    rec.Attempt.Outcome,
		"label":      rec.Attempt.Label,
		"similarity": fmt.Sprintf("%.2f", rec.Attempt.Similarity),
		"faces":      face.Found,
	}).Info("Image processed")

	if p.events != nil {
		p.events.PublishRecognition(result)
	}
	return result, nil
}

// Compare sucht in beiden Bildern das Gesicht und vergleicht sie paarweise
func (p *ImageProcessor) Compare(a, b []byte) (float64, error) {
	faceA, err := p.ExtractFace(a)
	if err != nil {
		return 0, fmt.Errorf("first image: %w", err)
	}
	faceB, err := p.ExtractFace(b)
	if err != nil {
		return 0, fmt.Errorf("second image: %w", err)
	}
	return p.engine.ComparePair(faceA.Crop, faceB.Crop)
}
