package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"facegate/internal/api/middleware"
	"facegate/internal/core/processor"
	"facegate/internal/db/repository"
	"facegate/internal/imaging"
	"facegate/internal/recognition"
	"facegate/internal/server/sse"
	"facegate/internal/services"
	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recognizer führt eine Erkennung aus (processor.WorkerPool)
type Recognizer interface {
	ProcessImage(ctx context.Context, data []byte, source string) (*processor.Result, error)
}

// FaceExtractor sucht Gesichter in Bildern (processor.ImageProcessor)
type FaceExtractor interface {
	ExtractFace(data []byte) (*processor.Face, error)
	Compare(a, b []byte) (float64, error)
	DetectorName() string
}

// EngineInfo beschreibt das aktive Modell (recognition.Engine)
type EngineInfo interface {
	Status() recognition.Status
	Threshold() float64
	ComparerName() string
}

// TrainingRunner startet Trainingsläufe (services.TrainingService)
type TrainingRunner interface {
	RunNow(ctx context.Context, reason string) (*recognition.TrainReport, error)
	Trigger(reason string)
	Running() bool
	Last() *services.TrainingOutcome
}

// EventStream verwaltet SSE-Clients (sse.Hub)
type EventStream interface {
	Register(client sse.Client) bool
	Unregister(client sse.Client)
}

// Dependencies bündelt alles, was die API benötigt. Events und Pool sind optional.
type Dependencies struct {
	Repo        repository.Repository
	Processor   FaceExtractor
	Recognizer  Recognizer
	Engine      EngineInfo
	Training    TrainingRunner
	Events      EventStream
	Pool        utils.PoolStatter
	AutoRetrain bool
	MaxUpload   int64 // Bytes pro hochgeladener Datei
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	Dependencies
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(deps Dependencies) *APIHandler {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 10 << 20
	}
	return &APIHandler{Dependencies: deps}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Erkennung
	router.GET("/status", h.GetStatus)
	router.POST("/recognize", h.Recognize)
	router.POST("/compare", h.Compare)
	router.POST("/train", h.Train)
	router.GET("/events", h.StreamEvents)

	// Personen
	router.GET("/persons", h.ListPersons)
	router.POST("/persons", h.CreatePerson)
	router.GET("/persons/:id", h.GetPerson)
	router.PUT("/persons/:id", h.UpdatePerson)
	router.DELETE("/persons/:id", h.DeletePerson)
	router.GET("/persons/:id/photos", h.ListPhotos)
	router.POST("/persons/:id/photos", h.AddPhoto)

	// Fotos
	router.GET("/photos/:id/image", h.GetPhotoImage)
	router.DELETE("/photos/:id", h.DeletePhoto)

	// Protokoll und System
	router.GET("/logs", h.ListLogs)
	router.GET("/system", h.GetSystemStats)
}

var errTooLarge = errors.New("upload too large")

// readUpload liest eine hochgeladene Datei aus dem Formular
func (h *APIHandler) readUpload(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	if header.Size > h.MaxUpload {
		return nil, "", errTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxUpload+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > h.MaxUpload {
		return nil, "", errTooLarge
	}
	return data, header.Filename, nil
}

// uploadFailed beantwortet einen fehlgeschlagenen Upload
func uploadFailed(c *gin.Context, err error) {
	if errors.Is(err, errTooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "error.too_large", err)
		return
	}
	respondError(c, http.StatusBadRequest, "error.missing_image", err)
}

// statusFor ordnet Fehler HTTP-Statuscodes und Nachrichten zu
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, recognition.ErrInvalidInput), errors.Is(err, imaging.ErrEmpty):
		return http.StatusBadRequest, "error.invalid_image"
	case errors.Is(err, recognition.ErrNoFace):
		return http.StatusUnprocessableEntity, "error.no_face"
	case errors.Is(err, recognition.ErrNoTrainableData):
		return http.StatusUnprocessableEntity, "error.no_training_data"
	case errors.Is(err, recognition.ErrNotTrained):
		return http.StatusConflict, "error.not_trained"
	case errors.Is(err, processor.ErrPoolClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "error.unavailable"
	default:
		return http.StatusInternalServerError, "error.internal"
	}
}

// fail beantwortet einen Fehler aus Erkennung oder Speicher
func fail(c *gin.Context, err error) {
	status, id := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	respondError(c, status, id, err)
}

func respondError(c *gin.Context, status int, messageID string, err error) {
	body := gin.H{"error": middleware.T(c, messageID), "code": messageID}
	if err != nil && status < http.StatusInternalServerError {
		body["detail"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// parseID liest einen positiven ID-Pfadparameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "error.invalid_id", fmt.Errorf("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return uint(id), true
}

// queryInt liest einen nicht-negativen Ganzzahl-Query-Parameter
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// enrollmentChanged stößt bei aktivem Auto-Retrain ein Hintergrundtraining an
func (h *APIHandler) enrollmentChanged(reason string) {
	if h.AutoRetrain && h.Training != nil {
		h.Training.Trigger(reason)
	}
}
