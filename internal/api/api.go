package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/frameio-archiver/internal/api/handlers"
	"github.com/andresuchdata/frameio-archiver/internal/api/middleware"
	"github.com/andresuchdata/frameio-archiver/internal/archive"
)

type Services struct {
	Archiver handlers.Archiver
	Tree     archive.TreeProvider
	Importer handlers.Importer
}

type Options struct {
	AllowedOrigins []string
	// WebhookSecret enables signature verification on every archive route.
	// Job lookups and cancels sign an empty body.
	WebhookSecret string
}

func NewRouter(services *Services, opts Options) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.TimestampHeader, middleware.SignatureHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(opts.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.Archiver != nil {
		archiveHandler := handlers.NewArchiveHandler(services.Archiver, services.Tree)
		if services.Importer != nil {
			archiveHandler.WithImporter(services.Importer)
		}
		archiveGroup := apiGroup.Group("/archive")
		if opts.WebhookSecret != "" {
			archiveGroup.Use(middleware.VerifySignature(opts.WebhookSecret, nil))
		}
		{
			archiveGroup.POST("", archiveHandler.HandleAction)
			archiveGroup.GET("/jobs/:id", archiveHandler.GetJob)
			archiveGroup.DELETE("/jobs/:id", archiveHandler.CancelJob)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
