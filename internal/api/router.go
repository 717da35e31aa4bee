// Package api baut den gin-Router der HTTP-Schnittstelle.
package api

import (
	"net/http"
	"time"

	"facegate/internal/api/handlers"
	"facegate/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig steuert die Middleware des Routers
type RouterConfig struct {
	AllowedOrigins []string
	MaxUploadMB    int
}

// RouteRegistrar hängt zusätzliche Routen unter /api ein
type RouteRegistrar interface {
	RegisterRoutes(group *gin.RouterGroup)
}

// NewRouter erstellt den Router mit allen API-Routen unter /api
func NewRouter(cfg RouterConfig, translator *middleware.Translator, api *handlers.APIHandler, extras ...RouteRegistrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept-Language"},
		ExposeHeaders: []string{"Content-Length", "Content-Language"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	router.Use(cors.New(corsConfig))

	if cfg.MaxUploadMB > 0 {
		// zwei Dateien pro Vergleich
		router.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 21
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	group := router.Group("/api")
	group.Use(middleware.I18n(translator))
	api.RegisterRoutes(group)
	for _, extra := range extras {
		extra.RegisterRoutes(group)
	}

	return router
}
