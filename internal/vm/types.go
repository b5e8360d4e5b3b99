package vm

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
)

var (
	ErrClosed         = errors.New("vm context is closed")
	ErrTimeout        = errors.New("execution timeout exceeded")
	ErrNotFunction    = errors.New("not a function")
	ErrNotConstructor = errors.New("not a constructor")
	ErrNotObject      = errors.New("not an object")
	ErrInvalidKey     = errors.New("invalid property key")
)

// Config defines per-context engine limits
type Config struct {
	Timeout          time.Duration // Top-level evaluation timeout, 0 disables it
	MaxCallStackSize int           // JS call stack limit, 0 keeps the engine default
}

// DefaultConfig returns the default context configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
	}
}

// Option configures a Context
type Option func(*Context)

// WithLogger sets the context logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Context) {
		c.metrics = metrics
	}
}

// HostCall implements a VM function on the host. this and args are borrowed:
// they are disposed once the call returns, so anything kept beyond the call
// must be Dup'ed. The returned handle is released with MayDispose after its
// value has been handed to the VM. A returned error is thrown into the VM.
type HostCall func(this *Handle, args []*Handle) (*Handle, error)
