package handlers

import (
	"net/http"

	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetSystemStats liefert Laufzeit- und Worker-Pool-Kennzahlen
func (h *APIHandler) GetSystemStats(c *gin.Context) {
	stats := utils.GetSystemStats(h.Pool)
	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"memory_alloc": utils.FormatBytes(stats.MemoryAlloc),
		"memory_sys":   utils.FormatBytes(stats.MemorySys),
	})
}
