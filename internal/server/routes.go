package server

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/danmuck/clubsite/internal/observability"
	"github.com/danmuck/clubsite/internal/schema"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Nothing is written for a request whose client has gone away; the
	// status only shows up in access logs.
	statusClientClosedRequest = 499
)

func (s *Server) registerRoutes() {
	r := s.router
	for _, p := range []string{"/health", "/api/health", "/api", "/api/"} {
		r.GET(p, s.health)
	}

	api := r.Group("/api")
	for _, name := range dataset.Names() {
		api.GET("/"+name, s.datasetHandler(name))
	}
	api.GET("/assets/*filepath", s.asset)

	if s.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(notFound)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) datasetHandler(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(observability.KeyDataset, name)
		data, err := s.loader.Load(c.Request.Context(), name)
		if err != nil {
			s.recordDataset(name, outcome(err))
			fail(c, err)
			return
		}
		s.recordDataset(name, "ok")
		c.JSON(http.StatusOK, data)
	}
}

func (s *Server) asset(c *gin.Context) {
	requested := c.Param("filepath")
	c.Set(observability.KeyAsset, requested)
	found, err := s.resolver.Resolve(c.Request.Context(), requested)
	if err != nil {
		s.recordAsset("", outcome(err))
		fail(c, err)
		return
	}

	f, err := os.Open(found.Path)
	if err != nil {
		s.recordAsset(found.Strategy, "error")
		fail(c, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.recordAsset(found.Strategy, "error")
		fail(c, err)
		return
	}
	s.recordAsset(found.Strategy, "ok")
	c.Set(observability.KeyAsset, found.Rel)
	c.Set(observability.KeyStrategy, found.Strategy)

	c.Header("Content-Type", found.ContentType)
	c.Header("Cache-Control", assets.CacheControl)
	http.ServeContent(c.Writer, c.Request, found.Path, info.ModTime(), f)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not Found: " + c.Request.URL.Path})
}

func (s *Server) recordDataset(name, result string) {
	if s.cfg.MetricsEnabled {
		observability.RecordDatasetLoad(name, result)
	}
}

func (s *Server) recordAsset(strategy, result string) {
	if s.cfg.MetricsEnabled {
		observability.RecordAssetResolution(strategy, result)
	}
}

// fail maps a component error onto the JSON error response.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}
	c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": err.Error()})
}

// StatusFor returns the HTTP status an error is reported with.
func StatusFor(err error) int {
	var (
		datasetMissing *dataset.NotFoundError
		assetMissing   *assets.NotFoundError
		invalidPath    *assets.InvalidPathError
		parseErr       *dataset.ParseError
		validationErr  *schema.ValidationError
	)
	switch {
	case errors.As(err, &invalidPath):
		return http.StatusBadRequest
	case errors.As(err, &datasetMissing), errors.As(err, &assetMissing):
		return http.StatusNotFound
	case errors.As(err, &parseErr), errors.As(err, &validationErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	default:
		var validationErr *schema.ValidationError
		var parseErr *dataset.ParseError
		switch {
		case errors.As(err, &validationErr):
			return "invalid_schema"
		case errors.As(err, &parseErr):
			return "invalid_json"
		case errors.Is(err, context.Canceled):
			return "canceled"
		}
		return "error"
	}
}
