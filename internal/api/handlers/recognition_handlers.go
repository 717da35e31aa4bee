package handlers

import (
	"net/http"
	"strconv"

	"facegate/internal/api/middleware"
	"facegate/internal/recognition"

	"github.com/gin-gonic/gin"
)

// GetStatus liefert den Zustand von Modell und Datenbestand
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.Repo.GetStatistics()
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{
		"model":      h.Engine.Status(),
		"threshold":  h.Engine.Threshold(),
		"comparer":   h.Engine.ComparerName(),
		"detector":   h.Processor.DetectorName(),
		"statistics": stats,
	}
	if h.Training != nil {
		resp["training"] = gin.H{
			"running": h.Training.Running(),
			"last":    h.Training.Last(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Recognize erkennt das Gesicht in einem hochgeladenen Bild
func (h *APIHandler) Recognize(c *gin.Context) {
	data, filename, err := h.readUpload(c, "file")
	if err != nil {
		uploadFailed(c, err)
		return
	}

	source := c.PostForm("source")
	if source == "" {
		source = filename
	}

	result, err := h.Recognizer.ProcessImage(c.Request.Context(), data, source)
	if err != nil {
		fail(c, err)
		return
	}

	message := middleware.T(c, "result.rejected")
	if rec := result.Recognition; rec.Attempt.Accepted() && rec.Candidate != nil {
		message = middleware.T(c, "result.accepted", map[string]interface{}{"Name": rec.Candidate.DisplayName})
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"result":  result,
	})
}

// Compare vergleicht zwei Gesichter ohne trainiertes Modell
func (h *APIHandler) Compare(c *gin.Context) {
	first, _, err := h.readUpload(c, "first")
	if err != nil {
		uploadFailed(c, err)
		return
	}
	second, _, err := h.readUpload(c, "second")
	if err != nil {
		uploadFailed(c, err)
		return
	}

	similarity, err := h.Processor.Compare(first, second)
	if err != nil {
		fail(c, err)
		return
	}

	threshold := h.Engine.Threshold()
	c.JSON(http.StatusOK, gin.H{
		"similarity": similarity,
		"threshold":  threshold,
		"same":       similarity >= threshold,
		"band":       recognition.BandFor(similarity),
		"comparer":   h.Engine.ComparerName(),
	})
}

// Train trainiert das Modell neu. Mit async=true läuft das Training im Hintergrund.
func (h *APIHandler) Train(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.Training.Trigger("api")
		c.JSON(http.StatusAccepted, gin.H{"message": middleware.T(c, "training.started")})
		return
	}

	report, err := h.Training.RunNow(c.Request.Context(), "api")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": middleware.T(c, "training.completed", map[string]interface{}{
			"Samples": report.Samples,
			"Labels":  report.Labels,
		}),
		"report": report,
	})
}
