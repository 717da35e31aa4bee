package opencv

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"facegate/config"
	"facegate/internal/core/processor"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// CascadeDetector findet frontale Gesichter mit einem Haar-Kaskadenklassifikator
type CascadeDetector struct {
	cfg         config.DetectorConfig
	classifier  gocv.CascadeClassifier
	mutex       sync.Mutex
	initialized bool
}

// NewCascadeDetector lädt die Kaskadendatei aus der Konfiguration
func NewCascadeDetector(cfg config.DetectorConfig) (*CascadeDetector, error) {
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = 1.3
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = 5
	}

	d := &CascadeDetector{cfg: cfg}
	if err := d.initialize(); err != nil {
		return nil, fmt.Errorf("fehler beim Initialisieren des OpenCV-Detektors: %w", err)
	}
	return d, nil
}

// NewDetector ist die app.DetectorFactory für den Kaskadendetektor
func NewDetector(cfg config.DetectorConfig) (processor.FaceDetector, error) {
	d, err := NewCascadeDetector(cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// initialize lädt den Klassifikator
func (d *CascadeDetector) initialize() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.initialized {
		return nil
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(d.cfg.CascadeFile) {
		classifier.Close()
		return fmt.Errorf("konnte Kaskadendatei %s nicht laden", d.cfg.CascadeFile)
	}
	d.classifier = classifier
	d.initialized = true

	log.WithFields(log.Fields{
		"cascade":       d.cfg.CascadeFile,
		"scale_factor":  d.cfg.ScaleFactor,
		"min_neighbors": d.cfg.MinNeighbors,
		"min_size":      d.cfg.MinSize,
	}).Info("OpenCV face detector initialized")
	return nil
}

// Name implementiert processor.FaceDetector
func (d *CascadeDetector) Name() string { return "opencv-haar" }

// DetectFaces liefert die gefundenen Gesichter, größte zuerst.
// Der Klassifikator ist nicht threadsicher, daher wird serialisiert.
func (d *CascadeDetector) DetectFaces(img *image.Gray) ([]image.Rectangle, error) {
	if img == nil || img.Rect.Empty() {
		return nil, nil
	}

	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("konnte Bild nicht in Mat umwandeln: %w", err)
	}
	defer mat.Close()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.initialized {
		return nil, fmt.Errorf("OpenCV-Detektor ist geschlossen")
	}

	minSize := image.Point{X: d.cfg.MinSize, Y: d.cfg.MinSize}
	rects := d.classifier.DetectMultiScaleWithParams(mat, d.cfg.ScaleFactor, d.cfg.MinNeighbors, 0, minSize, image.Point{})

	// Koordinaten relativ zum Bildursprung
	offset := img.Rect.Min
	for i := range rects {
		rects[i] = rects[i].Add(offset)
	}
	sort.SliceStable(rects, func(i, j int) bool {
		return area(rects[i]) > area(rects[j])
	})

	log.Debugf("OpenCV detector found %d faces", len(rects))
	return rects, nil
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// Close gibt die Ressourcen des Detektors frei
func (d *CascadeDetector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.initialized {
		if err := d.classifier.Close(); err != nil {
			return err
		}
		d.initialized = false
	}
	return nil
}
