package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/api/middleware"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/runner"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

// DefaultScriptName names scripts submitted without a name
const DefaultScriptName = "inline"

// RunRequest is one script submitted for execution
type RunRequest struct {
	Name   string `json:"name"`
	Source string `json:"source" binding:"required"`
}

// BatchRequest is a set of scripts executed concurrently
type BatchRequest struct {
	Scripts []RunRequest `json:"scripts" binding:"required,min=1,dive"`
}

// BatchResponse carries results in request order
type BatchResponse struct {
	Results []*runner.Result `json:"results"`
	Summary runner.Summary   `json:"summary"`
}

// Handlers serves the script API
type Handlers struct {
	runner   *runner.Runner
	pool     *vm.Pool
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	maxBytes int64
	started  time.Time
}

// NewHandlers creates the API handlers. maxBytes caps request bodies; 0
// disables the cap.
func NewHandlers(r *runner.Runner, pool *vm.Pool, metrics *monitoring.Metrics, logger *logging.Logger, maxBytes int64) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		runner:   r,
		pool:     pool,
		metrics:  metrics,
		logger:   logger.Named("api"),
		maxBytes: maxBytes,
		started:  time.Now(),
	}
}

// Health reports liveness and pool usage
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
		"pool":   h.pool.Stats(),
	})
}

// Stats reports the running metric totals
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// Run executes a single script
func (h *Handlers) Run(c *gin.Context) {
	var req RunRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.runner.Run(c.Request.Context(), script(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RunBatch executes several scripts
func (h *Handlers) RunBatch(c *gin.Context) {
	var req BatchRequest
	if !h.bind(c, &req) {
		return
	}

	scripts := make([]runner.Script, len(req.Scripts))
	for i, r := range req.Scripts {
		scripts[i] = script(r)
	}

	results, err := h.runner.RunAll(c.Request.Context(), scripts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{
		Results: results,
		Summary: runner.Summarize(results),
	})
}

func (h *Handlers) bind(c *gin.Context, v interface{}) bool {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, vm.ErrAcquireTimeout) || errors.Is(err, vm.ErrPoolClosed) {
		status = http.StatusServiceUnavailable
	}

	h.logger.Warn("Script request failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	c.JSON(status, gin.H{"error": err.Error()})
}

func script(req RunRequest) runner.Script {
	name := req.Name
	if name == "" {
		name = DefaultScriptName
	}
	return runner.Script{Name: name, Source: req.Source}
}
