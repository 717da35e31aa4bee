package handlers

import (
	"io"
	"net/http"

	"facegate/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StreamEvents hält eine SSE-Verbindung offen und leitet Hub-Nachrichten weiter
func (h *APIHandler) StreamEvents(c *gin.Context) {
	if h.Events == nil {
		respondError(c, http.StatusServiceUnavailable, "error.unavailable", nil)
		return
	}

	client := make(sse.Client, 16)
	if !h.Events.Register(client) {
		respondError(c, http.StatusServiceUnavailable, "error.unavailable", nil)
		return
	}
	defer h.Events.Unregister(client)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	log.WithField("remote", c.ClientIP()).Debug("SSE client connected")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		case <-ctx.Done():
			return false
		}
	})
	log.WithField("remote", c.ClientIP()).Debug("SSE client disconnected")
}
