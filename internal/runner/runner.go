package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/vmsync/internal/arena"
	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

// Runner executes scripts in pooled contexts, each through its own arena
type Runner struct {
	pool    *vm.Pool
	config  Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner logger
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// New creates a runner on top of a context pool
func New(pool *vm.Pool, config Config, opts ...Option) *Runner {
	r := &Runner{
		pool:   pool,
		config: config,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// Run executes one script. Script failures are reported in the result; the
// error is only set when no context could be acquired.
func (r *Runner) Run(ctx context.Context, script Script) (*Result, error) {
	c, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.pool.Release(c); err != nil {
			r.logger.Warn("Failed to release context", zap.Error(err))
		}
	}()

	start := time.Now()
	result := &Result{Script: script.Name}
	out := &console{}

	options := arena.Options{SyncMode: r.syncMode, MaxArrayLength: r.config.MaxArrayLength}
	a, err := arena.New(c, options, arena.WithLogger(r.logger), arena.WithMetrics(r.metrics))
	if err != nil {
		return nil, fmt.Errorf("create arena: %w", err)
	}
	defer a.Dispose()

	if err := a.Expose(r.globals(out)); err != nil {
		return nil, fmt.Errorf("expose host API: %w", err)
	}

	v, err := a.EvalCode(ctx, script.Source)
	if err == nil {
		v = r.await(ctx, a, v)
	}

	result.Duration = time.Since(start)
	result.Console = out.entries()
	if err != nil {
		result.Error = err.Error()
		r.logger.Debug("Script failed", zap.String("script", script.Name), zap.Error(err))
		return result, nil
	}
	result.Value = Plain(v)

	r.logger.Debug("Script finished",
		zap.String("script", script.Name),
		zap.Duration("duration", result.Duration),
		zap.Int("identity_entries", a.Len()),
	)
	return result, nil
}

// RunAll executes scripts with at most Config.Concurrency running at once.
// Results keep the order of scripts.
func (r *Runner) RunAll(ctx context.Context, scripts []Script) ([]*Result, error) {
	results := make([]*Result, len(scripts))

	g, ctx := errgroup.WithContext(ctx)
	if r.config.Concurrency > 0 {
		g.SetLimit(r.config.Concurrency)
	}
	for i, script := range scripts {
		g.Go(func() error {
			res, err := r.Run(ctx, script)
			if err != nil {
				return fmt.Errorf("run %s: %w", script.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// await resolves a promise completion value by draining the job queue once
func (r *Runner) await(ctx context.Context, a *arena.Arena, v interface{}) interface{} {
	p, ok := v.(*host.Promise)
	if !ok || p.State() != host.Pending {
		return v
	}
	if _, err := a.EvalCode(ctx, "undefined"); err != nil {
		r.logger.Debug("Failed to drain jobs", zap.Error(err))
	}
	return p
}

func (r *Runner) syncMode(interface{}) wrap.SyncMode {
	return r.config.SyncMode
}

// globals builds the host API visible to scripts
func (r *Runner) globals(c *console) map[string]interface{} {
	api := host.NewObject()
	api.Set("now", host.NewFunction("now", 0, func(interface{}, ...interface{}) (interface{}, error) {
		return time.Now(), nil
	}))
	api.Set("env", host.NewFunction("env", 1, func(_ interface{}, args ...interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, nil
		}
		name, _ := args[0].(string)
		if !r.envAllowed(name) {
			return nil, nil
		}
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil, nil
		}
		return v, nil
	}))

	globals := map[string]interface{}{"host": api}
	if r.config.EnableConsole {
		obj := host.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			obj.Set(level, c.function(level))
		}
		globals["console"] = obj
		globals["print"] = c.function("log")
	}
	return globals
}

func (r *Runner) envAllowed(name string) bool {
	for _, allowed := range r.config.Env {
		if allowed == name {
			return true
		}
	}
	return false
}

// console collects script output
type console struct {
	mu  sync.Mutex
	log []LogEntry
}

func (c *console) function(level string) *host.Function {
	return host.NewFunction(level, 0, func(_ interface{}, args ...interface{}) (interface{}, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = format(arg)
		}

		c.mu.Lock()
		c.log = append(c.log, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		c.mu.Unlock()
		return nil, nil
	})
}

func (c *console) entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.log...)
}

func format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	}
	return fmt.Sprint(Plain(v))
}
