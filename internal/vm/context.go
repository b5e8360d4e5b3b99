package vm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/shared/id"
)

// Context wraps a goja runtime behind a handle-based API.
//
// A Context is single-threaded: apart from the interrupt watchdog started by
// EvalCode and Guard, every method must be called from the goroutine that
// drives it.
type Context struct {
	id      id.ContextID
	config  Config
	logger  *logging.Logger
	metrics *monitoring.Metrics

	rt        *goja.Runtime
	gen       uint64
	closed    bool
	live      int
	evalDepth int
	helpers   map[string]goja.Callable
	tripped   atomic.Pointer[error] // cause once the active watchdog fired

	undefined *Handle
	null      *Handle
	global    *Handle
	trueH     *Handle
	falseH    *Handle
}

// New creates a new VM context
func New(config Config, opts ...Option) (*Context, error) {
	c := &Context{
		id:     id.NewContextID(),
		config: config,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("vm").With(zap.String("context_id", c.id.String()))

	if err := c.setup(); err != nil {
		return nil, err
	}
	return c, nil
}

// setup creates a fresh runtime and invalidates every handle from the previous one
func (c *Context) setup() error {
	rt := goja.New()
	if c.config.MaxCallStackSize > 0 {
		rt.SetMaxCallStackSize(c.config.MaxCallStackSize)
	}

	// No module system inside the sandbox
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := rt.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to clear global %s: %w", name, err)
		}
	}

	c.rt = rt
	c.gen++
	c.live = 0
	c.evalDepth = 0
	c.tripped.Store(nil)
	c.helpers = make(map[string]goja.Callable)

	c.undefined = c.static(goja.Undefined())
	c.null = c.static(goja.Null())
	c.global = c.static(rt.GlobalObject())
	c.trueH = c.static(rt.ToValue(true))
	c.falseH = c.static(rt.ToValue(false))
	return nil
}

// ID returns the context identifier
func (c *Context) ID() id.ContextID {
	return c.id
}

// Reset replaces the runtime with a fresh one. All outstanding handles die.
func (c *Context) Reset() error {
	if c.closed {
		return ErrClosed
	}
	c.logger.Debug("Resetting context", zap.Int("live_handles", c.live))
	return c.setup()
}

// Close releases the runtime. Every handle reports not alive afterwards.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.helpers = nil
	if c.live > 0 {
		c.logger.Debug("Closing context with live handles", zap.Int("live_handles", c.live))
	}
	return nil
}

// Closed reports whether Close has been called
func (c *Context) Closed() bool {
	return c.closed
}

// LiveHandles returns the number of issued handles not yet disposed
func (c *Context) LiveHandles() int {
	return c.live
}

func (c *Context) newHandle(v goja.Value) *Handle {
	if v == nil {
		v = goja.Undefined()
	}
	c.live++
	c.metrics.IncHandlesCreated()
	return &Handle{ctx: c, value: v, gen: c.gen, alive: true}
}

func (c *Context) static(v goja.Value) *Handle {
	return &Handle{ctx: c, value: v, gen: c.gen, alive: true, static: true}
}

// Undefined returns the static undefined handle
func (c *Context) Undefined() *Handle { return c.undefined }

// Null returns the static null handle
func (c *Context) Null() *Handle { return c.null }

// Global returns the static global object handle
func (c *Context) Global() *Handle { return c.global }

// True returns the static true handle
func (c *Context) True() *Handle { return c.trueH }

// False returns the static false handle
func (c *Context) False() *Handle { return c.falseH }

// NewBool returns the static handle for b
func (c *Context) NewBool(b bool) *Handle {
	if b {
		return c.trueH
	}
	return c.falseH
}

// NewString creates a string handle
func (c *Context) NewString(s string) *Handle {
	return c.newHandle(c.rt.ToValue(s))
}

// NewNumber creates a number handle
func (c *Context) NewNumber(n float64) *Handle {
	return c.newHandle(c.rt.ToValue(n))
}

// NewObject creates an empty plain object
func (c *Context) NewObject() *Handle {
	return c.newHandle(c.rt.NewObject())
}

// NewArray creates an array holding the given elements
func (c *Context) NewArray(items ...*Handle) *Handle {
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = valueOf(item)
	}
	return c.newHandle(c.rt.NewArray(values...))
}

// NewSymbol creates a unique symbol
func (c *Context) NewSymbol(description string) *Handle {
	return c.newHandle(goja.NewSymbol(description))
}

// NewDate creates a Date object for t
func (c *Context) NewDate(t time.Time) (*Handle, error) {
	ms := c.NewNumber(float64(t.UnixMilli()))
	defer ms.Dispose()
	return c.Call(`ms => new Date(ms)`, nil, ms)
}

// Dump converts a handle into a host value. undefined and null become nil.
func (c *Context) Dump(h *Handle) interface{} {
	v := valueOf(h)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// EvalCode runs script source. Top-level evaluations are interrupted when the
// configured timeout elapses or ctx is done; inside a Guard the guard's
// watchdog applies instead.
func (c *Context) EvalCode(ctx context.Context, code string) (*Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	var stop func()
	if c.evalDepth == 0 {
		stop = c.watch(ctx)
	}

	c.evalDepth++
	val, err := c.rt.RunString(code)
	c.evalDepth--

	if stop != nil {
		stop()
	}

	status := monitoring.Status(err)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		status = monitoring.StatusTimeout
		err = interruptError(interrupted)
		c.logger.Warn("Evaluation interrupted", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	}
	c.metrics.RecordEval(status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return c.newHandle(val), nil
}

// Guard arms the interrupt watchdog for work that spans several calls, such
// as evaluating code and then reading its result. Any VM code run before the
// returned release function is called (getters, proxy traps, callbacks) is
// interrupted once the timeout elapses or ctx is done. Nested guards and
// evaluations reuse the outer watchdog.
func (c *Context) Guard(ctx context.Context) (release func()) {
	if c.closed || c.evalDepth > 0 {
		return func() {}
	}
	stop := c.watch(ctx)
	c.evalDepth++
	return func() {
		c.evalDepth--
		stop()
	}
}

// Interrupted returns the interrupt cause once the active watchdog has fired,
// nil otherwise
func (c *Context) Interrupted() error {
	if cause := c.tripped.Load(); cause != nil {
		return *cause
	}
	return nil
}

// interruptRetry is how often a fired watchdog interrupts again. goja clears
// the interrupt flag when a wrapped call unwinds, so VM code started after
// the first interrupt needs another one.
const interruptRetry = 10 * time.Millisecond

// watch arms the interrupt watchdog and returns a function that disarms it
func (c *Context) watch(ctx context.Context) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	var timeout <-chan time.Time
	var timer *time.Timer
	if c.config.Timeout > 0 {
		timer = time.NewTimer(c.config.Timeout)
		timeout = timer.C
	}

	rt := c.rt
	go func() {
		defer close(finished)
		var cause error
		select {
		case <-timeout:
			cause = ErrTimeout
		case <-ctx.Done():
			cause = ctx.Err()
		case <-done:
			return
		}
		c.tripped.Store(&cause)

		ticker := time.NewTicker(interruptRetry)
		defer ticker.Stop()
		for {
			rt.Interrupt(cause)
			select {
			case <-ticker.C:
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		if timer != nil {
			timer.Stop()
		}
		// An interrupt that raced with a completed script must not leak into the next run
		rt.ClearInterrupt()
		c.tripped.Store(nil)
	}
}

// interruptError reports an interrupted run by its cause
func interruptError(ie *goja.InterruptedError) error {
	if cause, ok := ie.Value().(error); ok {
		return fmt.Errorf("script interrupted: %w", cause)
	}
	return ie
}

// Call evaluates code, which must produce a function, and invokes it with
// this and args. The compiled function is cached per context, so helper
// snippets are only parsed once.
func (c *Context) Call(code string, this *Handle, args ...*Handle) (*Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	fn, err := c.helper(code)
	if err != nil {
		return nil, err
	}
	res, err := fn(valueOf(this), values(args)...)
	if err != nil {
		return nil, err
	}
	return c.newHandle(res), nil
}

func (c *Context) helper(code string) (goja.Callable, error) {
	if fn, ok := c.helpers[code]; ok {
		return fn, nil
	}
	v, err := c.rt.RunString("(" + code + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to compile helper: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("helper %q: %w", code, ErrNotFunction)
	}
	c.helpers[code] = fn
	return fn, nil
}

// CallFunction invokes fn with the given receiver and arguments. A nil this
// means undefined.
func (c *Context) CallFunction(fn, this *Handle, args ...*Handle) (*Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	callable, ok := goja.AssertFunction(valueOf(fn))
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.TypeOf(fn), ErrNotFunction)
	}
	res, err := callable(valueOf(this), values(args)...)
	if err != nil {
		return nil, err
	}
	return c.newHandle(res), nil
}

// Construct invokes ctor as a constructor, like `new ctor(...args)`.
func (c *Context) Construct(ctor *Handle, args ...*Handle) (*Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	construct, ok := goja.AssertConstructor(valueOf(ctor))
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.TypeOf(ctor), ErrNotConstructor)
	}
	obj, err := construct(nil, values(args)...)
	if err != nil {
		return nil, err
	}
	return c.newHandle(obj), nil
}

// try runs fn and turns a thrown JS exception or an interrupt into an error.
// fn runs under goja's Try so the VM stacks are unwound before an uncatchable
// error reaches the recover below.
func (c *Context) try(fn func()) (err error) {
	defer func() {
		if x := recover(); x != nil {
			switch ex := x.(type) {
			case *goja.InterruptedError:
				err = interruptError(ex)
			case *goja.StackOverflowError:
				err = ex
			default:
				panic(x)
			}
		}
	}()
	if ex := c.rt.Try(fn); ex != nil {
		return ex
	}
	return nil
}

// tryErr is try for goja calls that report their own errors
func (c *Context) tryErr(fn func() error) error {
	var err error
	if perr := c.try(func() { err = fn() }); perr != nil {
		return perr
	}
	return err
}

func valueOf(h *Handle) goja.Value {
	if h == nil || h.value == nil {
		return goja.Undefined()
	}
	return h.value
}

func values(handles []*Handle) []goja.Value {
	vals := make([]goja.Value, len(handles))
	for i, h := range handles {
		vals[i] = valueOf(h)
	}
	return vals
}
