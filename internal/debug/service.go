// Package debug hält die letzten Detektorergebnisse als annotierte Bilder im
// Speicher, damit Kaskadenparameter am laufenden Server geprüft werden können.
package debug

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"facegate/internal/util/timezone"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Farben der Rahmen: das verwendete Gesicht grün, weitere rot
var (
	usedColor  = color.RGBA{G: 220, A: 255}
	otherColor = color.RGBA{R: 220, A: 255}
)

// Image ist ein annotiertes Detektorbild
type Image struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source,omitempty"`
	Faces     []image.Rectangle `json:"faces"`
	Data      []byte            `json:"-"`
}

// Service speichert die letzten Debug-Bilder in einem Ringpuffer
type Service struct {
	mutex     sync.RWMutex
	images    map[string]*Image
	order     []*Image // älteste zuerst
	maxImages int
}

// NewService erstellt einen Debug-Service für höchstens maxImages Bilder
func NewService(maxImages int) *Service {
	if maxImages <= 0 {
		maxImages = 20
	}
	return &Service{
		images:    make(map[string]*Image),
		order:     make([]*Image, 0, maxImages),
		maxImages: maxImages,
	}
}

// RecordDetection implementiert processor.DetectionRecorder
func (s *Service) RecordDetection(source string, img *image.Gray, faces []image.Rectangle) {
	if img == nil {
		return
	}
	data, err := annotate(img, faces)
	if err != nil {
		log.Warnf("Failed to encode debug image: %v", err)
		return
	}
	s.Add(&Image{
		ID:        uuid.NewString(),
		Timestamp: timezone.Now(),
		Source:    source,
		Faces:     faces,
		Data:      data,
	})
}

// Add fügt ein Bild hinzu und verdrängt bei Bedarf das älteste
func (s *Service) Add(img *Image) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.images[img.ID] = img
	s.order = append(s.order, img)
	if len(s.order) > s.maxImages {
		oldest := s.order[0]
		delete(s.images, oldest.ID)
		s.order = s.order[1:]
	}
	log.Debugf("Debug image %s added with %d faces", img.ID, len(img.Faces))
}

// Latest liefert bis zu count Bilder, neueste zuerst
func (s *Service) Latest(count int) []*Image {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.order) {
		count = len(s.order)
	}
	result := make([]*Image, 0, count)
	for i := len(s.order) - 1; i >= 0 && len(result) < count; i-- {
		result = append(result, s.order[i])
	}
	return result
}

// Get liefert ein Bild anhand seiner ID oder nil
func (s *Service) Get(id string) *Image {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.images[id]
}

// RegisterRoutes hängt die Debug-Endpunkte unter group ein
func (s *Service) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/debug/detections", s.handleList)
	group.GET("/debug/detections/:id", s.handleImage)
	log.Info("Detector debug routes registered")
}

func (s *Service) handleList(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	type entry struct {
		*Image
		URL string `json:"url"`
	}
	images := s.Latest(count)
	entries := make([]entry, len(images))
	for i, img := range images {
		entries[i] = entry{Image: img, URL: fmt.Sprintf("/api/debug/detections/%s", img.ID)}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "images": entries})
}

func (s *Service) handleImage(c *gin.Context) {
	img := s.Get(c.Param("id"))
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "debug image not found"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", img.Data)
}

// annotate zeichnet die Gesichtsrahmen in eine Farbkopie und kodiert sie als JPEG
func annotate(img *image.Gray, faces []image.Rectangle) ([]byte, error) {
	canvas := image.NewRGBA(img.Rect)
	draw.Draw(canvas, canvas.Rect, img, img.Rect.Min, draw.Src)

	// rückwärts, damit der verwendete Rahmen oben liegt
	for i := len(faces) - 1; i >= 0; i-- {
		c := otherColor
		if i == 0 {
			c = usedColor
		}
		drawRect(canvas, faces[i].Intersect(canvas.Rect), c)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.SetRGBA(x, r.Min.Y, c)
		dst.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.SetRGBA(r.Min.X, y, c)
		dst.SetRGBA(r.Max.X-1, y, c)
	}
}
