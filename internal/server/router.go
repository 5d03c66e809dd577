package server

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/middleware"
	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterOptions struct {
	APIKeys     []string
	CORSOrigins []string

	// Files serves the local object store under /files/. Nil for remote backends.
	Files http.FileSystem

	Gatherer    prometheus.Gatherer
	HTTPMetrics *observability.HTTPMetrics
}

// NewRouter builds the public HTTP API.
func NewRouter(svc AssetService, ready Pinger, logger *zap.Logger, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger))
	if opts.HTTPMetrics != nil {
		r.Use(middleware.Metrics(opts.HTTPMetrics))
	}
	if len(opts.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.CORSOrigins
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders,
			middleware.HeaderAPIKey, middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderRequestID)
		r.Use(cors.New(corsConfig))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", readiness(ready))
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.Handler(opts.Gatherer)))
	}
	if opts.Files != nil {
		r.GET("/files/*filepath", serveFiles(opts.Files))
	}

	api := r.Group("/api", middleware.APIKeyAuth(opts.APIKeys), middleware.Identity())

	resumes := &assetHandler{svc: svc, kind: models.AssetResume, field: "resume", logger: logger}
	student := api.Group("/student", middleware.RequireRole(middleware.RoleStudent))
	student.POST("/resume", resumes.upload)
	student.GET("/resume", resumes.get)
	student.DELETE("/resume", resumes.remove)

	logos := &assetHandler{svc: svc, kind: models.AssetLogo, field: "logo", logger: logger}
	company := api.Group("/company", middleware.RequireRole(middleware.RoleCompany))
	company.POST("/logo", logos.upload)
	company.GET("/logo", logos.get)
	company.DELETE("/logo", logos.remove)

	return r
}

func readiness(ready Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// serveFiles exposes locally stored objects. Resumes download as attachments.
func serveFiles(files http.FileSystem) gin.HandlerFunc {
	fileServer := http.StripPrefix("/files", http.FileServer(files))
	return func(c *gin.Context) {
		name := c.Param("filepath")
		if strings.HasSuffix(name, "/") {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(path.Base(name), string(models.AssetResume)+"-") {
			c.Header("Content-Disposition", "attachment")
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
