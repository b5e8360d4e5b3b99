package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/vmsync/internal/api/http"
	"github.com/GriffinCanCode/vmsync/internal/api/middleware"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/runner"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

// Deps are the components the server routes requests to
type Deps struct {
	Pool     *vm.Pool
	Runner   *runner.Runner
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer // Serves /metrics when set
	Logger   *logging.Logger
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	handler http.Handler
	logger  *logging.Logger
	config  *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Pool == nil || deps.Runner == nil {
		return nil, errors.New("server requires a pool and a runner")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rate := middleware.DefaultRateLimitConfig()
		rate.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rate.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rate))
	}

	handlers := api.NewHandlers(deps.Runner, deps.Pool, deps.Metrics, logger, cfg.Server.MaxScriptBytes)

	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)
	router.POST("/run", handlers.Run)
	router.POST("/run/batch", handlers.RunBatch)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		router:  router,
		handler: gzhttp.GzipHandler(router),
		logger:  logger,
		config:  cfg,
	}, nil
}

// Handler returns the root HTTP handler, gzip-compressing responses for
// clients that accept it
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.config.Server.Host + ":" + s.config.Server.Port
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
