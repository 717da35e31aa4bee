package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"facegate/internal/api/middleware"
	"facegate/internal/core/models"
	"facegate/internal/db/repository"
	"facegate/internal/imaging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// personRequest ist der Körper für das Anlegen und Ändern einer Person
type personRequest struct {
	FirstName   string `json:"first_name" binding:"required"`
	LastName    string `json:"last_name" binding:"required"`
	Group       string `json:"academic_group"`
	Description string `json:"description"`
}

func (r personRequest) apply(p *models.Person) {
	p.FirstName = strings.TrimSpace(r.FirstName)
	p.LastName = strings.TrimSpace(r.LastName)
	p.Group = strings.TrimSpace(r.Group)
	p.Description = r.Description
}

// ListPersons listet alle Personen mit Fotoanzahl
func (h *APIHandler) ListPersons(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	persons, total, err := h.Repo.GetPersons(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons, "total": total})
}

// CreatePerson legt eine neue Person an
func (h *APIHandler) CreatePerson(c *gin.Context) {
	var req personRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request", err)
		return
	}

	var person models.Person
	req.apply(&person)
	if err := h.Repo.CreatePerson(&person); err != nil {
		fail(c, err)
		return
	}
	log.WithFields(log.Fields{"person_id": person.ID, "name": person.DisplayName()}).Info("Person created")
	c.JSON(http.StatusCreated, person)
}

// GetPerson liefert eine Person
func (h *APIHandler) GetPerson(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	person, err := h.Repo.GetPersonByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	if person == nil {
		respondError(c, http.StatusNotFound, "error.person_not_found", nil)
		return
	}
	c.JSON(http.StatusOK, person)
}

// UpdatePerson ändert die Stammdaten einer Person
func (h *APIHandler) UpdatePerson(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req personRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request", err)
		return
	}

	person := models.Person{}
	person.ID = id
	req.apply(&person)
	if err := h.Repo.SavePerson(&person); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "error.person_not_found", nil)
			return
		}
		fail(c, err)
		return
	}

	updated, err := h.Repo.GetPersonByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	if updated == nil {
		respondError(c, http.StatusNotFound, "error.person_not_found", nil)
		return
	}
	// Anzeigenamen stecken im Modell
	h.enrollmentChanged("person updated")
	c.JSON(http.StatusOK, updated)
}

// DeletePerson löscht eine Person mit Fotos und Protokolleinträgen
func (h *APIHandler) DeletePerson(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Repo.DeletePerson(id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "error.person_not_found", nil)
			return
		}
		fail(c, err)
		return
	}
	log.WithField("person_id", id).Info("Person deleted")
	h.enrollmentChanged("person deleted")
	c.JSON(http.StatusOK, gin.H{"message": middleware.T(c, "person.deleted")})
}

// ListPhotos listet die Fotos einer Person ohne Bilddaten
func (h *APIHandler) ListPhotos(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	person, err := h.Repo.GetPersonByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	if person == nil {
		respondError(c, http.StatusNotFound, "error.person_not_found", nil)
		return
	}
	photos, err := h.Repo.GetPhotosByPersonID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos, "total": len(photos)})
}

// AddPhoto erfasst ein Foto für eine Person. Gespeichert wird der
// Gesichtsausschnitt als PNG, mit original=true das unveränderte Bild.
func (h *APIHandler) AddPhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	data, filename, err := h.readUpload(c, "file")
	if err != nil {
		uploadFailed(c, err)
		return
	}

	face, err := h.Processor.ExtractFace(data)
	if err != nil {
		fail(c, err)
		return
	}

	photo := models.Photo{PersonID: id, FileName: filepath.Base(filename)}
	if original, _ := strconv.ParseBool(c.Query("original")); original {
		photo.Data = data
		photo.FileFormat = face.Format
	} else {
		encoded, err := imaging.EncodePNG(face.Crop)
		if err != nil {
			fail(c, err)
			return
		}
		photo.Data = encoded
		photo.FileFormat = "png"
	}

	if err := h.Repo.AddPhoto(&photo); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "error.person_not_found", nil)
			return
		}
		fail(c, err)
		return
	}

	log.WithFields(log.Fields{"person_id": id, "photo_id": photo.ID, "bytes": photo.FileSize}).Info("Enrollment photo added")
	h.enrollmentChanged("photo added")
	c.JSON(http.StatusCreated, gin.H{"photo": photo, "box": face.Box, "faces_found": face.Found})
}

// GetPhotoImage liefert die gespeicherten Bilddaten eines Fotos
func (h *APIHandler) GetPhotoImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	photo, err := h.Repo.GetPhotoByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	if photo == nil {
		respondError(c, http.StatusNotFound, "error.photo_not_found", nil)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/"+photo.FileFormat, photo.Data)
}

// DeletePhoto löscht ein Foto
func (h *APIHandler) DeletePhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Repo.DeletePhoto(id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "error.photo_not_found", nil)
			return
		}
		fail(c, err)
		return
	}
	h.enrollmentChanged("photo deleted")
	c.JSON(http.StatusOK, gin.H{"message": middleware.T(c, "photo.deleted")})
}

// ListLogs liefert das Erkennungsprotokoll, neueste Einträge zuerst
func (h *APIHandler) ListLogs(c *gin.Context) {
	filter := models.LogFilter{
		Result: c.Query("result"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if filter.Result != "" && filter.Result != models.ResultAccepted && filter.Result != models.ResultRejected {
		respondError(c, http.StatusBadRequest, "error.invalid_request", errors.New("result must be accepted or rejected"))
		return
	}
	if raw := c.Query("person_id"); raw != "" {
		pid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "error.invalid_id", err)
			return
		}
		v := uint(pid)
		filter.PersonID = &v
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "error.invalid_request", err)
			return
		}
		filter.Since = since
	}

	logs, total, err := h.Repo.GetLogs(filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total})
}
