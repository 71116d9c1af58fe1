package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/config"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/danmuck/clubsite/internal/observability"
	"github.com/danmuck/clubsite/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the HTTP front door: it applies recovery, logging, metrics,
// security headers, CORS and rate limiting before the API routes.
type Server struct {
	cfg      config.Config
	loader   *dataset.Loader
	resolver *assets.Resolver
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
	router   *gin.Engine
}

// New wires a server from an already validated configuration.
func New(cfg config.Config, loader *dataset.Loader, resolver *assets.Resolver, logger zerolog.Logger) (*Server, error) {
	if loader == nil || resolver == nil {
		return nil, errors.New("server: loader and resolver are required")
	}
	limiter, err := ratelimit.New(cfg.RateLimitWindow(), cfg.RateLimitMax)
	if err != nil {
		return nil, err
	}
	if cfg.MetricsEnabled {
		observability.RegisterMetrics()
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = false
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}

	r.Use(gin.CustomRecovery(recoverJSON))
	r.Use(observability.RequestLogger(logger))
	if cfg.MetricsEnabled {
		r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	}
	r.Use(securityHeaders())
	r.Use(corsFor(cfg.CorsOrigin))
	r.Use(limiter.Middleware(observability.RecordRateLimited))
	r.Use(getOnly)

	s := &Server{
		cfg:      cfg,
		loader:   loader,
		resolver: resolver,
		limiter:  limiter,
		logger:   logger,
		router:   r,
	}
	s.registerRoutes()
	return s, nil
}

// Handler exposes the full middleware stack for a local listener or a
// serverless adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured port until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr(), err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("data_dir", s.loader.Dir()).
		Strs("asset_roots", s.resolver.Roots()).
		Msg("clubsite listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Shutdown()
	if timeout <= 0 {
		timeout = config.Default().Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info().Msg("clubsite stopped")
	return nil
}

func recoverJSON(c *gin.Context, recovered any) {
	msg := fmt.Sprint(recovered)
	if err, ok := recovered.(error); ok {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func securityHeaders() gin.HandlerFunc {
	headers := secure.New(secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data:; object-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		STSSeconds:            15552000,
		STSIncludeSubdomains:  true,
	})
	return func(c *gin.Context) {
		c.Header("Cross-Origin-Resource-Policy", "cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("X-DNS-Prefetch-Control", "off")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		headers(c)
	}
}

// corsFor answers CORS only for the configured origin. Requests from any
// other origin pass through without allow headers and the browser blocks
// them, so the method guard and JSON errors still apply.
func corsFor(origin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{"Origin", "Accept", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
	}
	handle := cors.New(cfg)
	return func(c *gin.Context) {
		requested := c.GetHeader("Origin")
		if requested == "" || (origin != "*" && requested != origin) {
			c.Next()
			return
		}
		handle(c)
	}
}

func getOnly(c *gin.Context) {
	if c.Request.Method == http.MethodGet {
		c.Next()
		return
	}
	c.Header("Allow", http.MethodGet)
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
}
