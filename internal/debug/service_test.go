package debug

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestRingBufferEvictsOldest(t *testing.T) {
	s := NewService(2)
	for i := 0; i < 3; i++ {
		s.Add(&Image{ID: fmt.Sprintf("img-%d", i)})
	}

	latest := s.Latest(0)
	if len(latest) != 2 || latest[0].ID != "img-2" || latest[1].ID != "img-1" {
		t.Errorf("Latest() = %v, %v", latest[0].ID, latest[1].ID)
	}
	if s.Get("img-0") != nil {
		t.Error("oldest image still retrievable")
	}
	if got := s.Latest(1); len(got) != 1 || got[0].ID != "img-2" {
		t.Errorf("Latest(1) = %+v", got)
	}
}

func TestRecordDetectionDrawsFaces(t *testing.T) {
	s := NewService(5)
	faces := []image.Rectangle{image.Rect(4, 4, 20, 20), image.Rect(24, 2, 30, 10)}
	s.RecordDetection("cam", grayImage(32, 24), faces)
	s.RecordDetection("cam", nil, nil)

	latest := s.Latest(10)
	if len(latest) != 1 {
		t.Fatalf("stored %d images, want 1", len(latest))
	}
	img, err := jpeg.Decode(bytes.NewReader(latest[0].Data))
	if err != nil {
		t.Fatalf("stored data is not a JPEG: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 32, 24) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	// Rahmen des verwendeten Gesichts ist grün
	r, g, _, _ := img.At(4, 10).RGBA()
	if g <= r {
		t.Errorf("used face border not green: r=%d g=%d", r>>8, g>>8)
	}
}

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService(3)
	s.RecordDetection("door", grayImage(16, 16), []image.Rectangle{image.Rect(2, 2, 12, 12)})
	id := s.Latest(1)[0].ID

	router := gin.New()
	s.RegisterRoutes(router.Group("/api"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/detections?count=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Count  int `json:"count"`
		Images []struct {
			ID     string `json:"id"`
			Source string `json:"source"`
			URL    string `json:"url"`
		} `json:"images"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Images[0].Source != "door" || body.Images[0].URL != "/api/debug/detections/"+id {
		t.Errorf("list body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/detections/"+id, nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("image status = %d, type = %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/detections/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing image status = %d", w.Code)
	}
}
