package arena

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/shared/id"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/vmmap"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

var (
	ErrDisposed     = errors.New("arena is disposed")
	ErrNotWrappable = errors.New("value cannot be wrapped")
	ErrUnsupported  = errors.New("unsupported host value")
	ErrNoIdentity   = errors.New("registered expression has no identity")
	ErrArrayTooLong = errors.New("array exceeds maximum length")
)

// Arena keeps host values and VM values in sync for one context.
//
// Marshalled host objects and functions, and unmarshalled VM objects and
// functions, are recorded in an identity map, so each value has exactly one
// counterpart for the life of the arena. Like its context, an Arena must be
// used from a single goroutine.
type Arena struct {
	id      id.ArenaID
	ctx     *vm.Context
	options Options
	logger  *logging.Logger
	metrics *monitoring.Metrics

	key        *host.Symbol
	keyHandle  *vm.Handle
	m          *vmmap.Map
	registered map[interface{}]*vm.Handle
	synced     map[interface{}]struct{}
	pending    []*pendingPromise
	arrays     []*vm.Handle // arrays being unmarshalled
	disposed   bool
}

// New creates an arena on ctx and evaluates the registered objects
func New(ctx *vm.Context, options Options, opts ...Option) (*Arena, error) {
	if ctx == nil || ctx.Closed() {
		return nil, vm.ErrClosed
	}

	a := &Arena{
		id:         id.NewArenaID(),
		ctx:        ctx,
		options:    options,
		logger:     logging.NewNop(),
		key:        host.NewSymbol("vmsync.wrapped"),
		registered: make(map[interface{}]*vm.Handle),
		synced:     make(map[interface{}]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("arena").With(
		zap.String("arena_id", a.id.String()),
		zap.String("context_id", ctx.ID().String()),
	)

	a.keyHandle = ctx.NewSymbol("vmsync.wrapped")
	a.m = vmmap.New(ctx, a.keyHandle)

	registered := options.RegisteredObjects
	if registered == nil {
		registered = DefaultRegisteredObjects()
	}
	for _, target := range sortedTargets(registered) {
		err := a.Register(target, registered[target])
		if errors.Is(err, ErrNoIdentity) {
			// e.g. a well-known symbol this engine does not define
			a.logger.Debug("Skipping registered object", zap.String("code", registered[target]))
			continue
		}
		if err != nil {
			a.Dispose()
			return nil, err
		}
	}

	a.logger.Debug("Arena created", zap.Int("registered", len(a.registered)))
	return a, nil
}

// ID returns the arena identifier
func (a *Arena) ID() id.ArenaID {
	return a.id
}

// Context returns the VM context the arena works on
func (a *Arena) Context() *vm.Context {
	return a.ctx
}

// Len returns the number of entries in the identity map
func (a *Arena) Len() int {
	return a.m.Len()
}

// EvalCode runs code and unmarshals its completion value. Host promises
// settled since the last evaluation are settled in the VM first. The
// context's timeout covers evaluation and unmarshalling together.
func (a *Arena) EvalCode(ctx context.Context, code string) (interface{}, error) {
	if a.disposed {
		return nil, ErrDisposed
	}
	release := a.ctx.Guard(ctx)
	defer release()

	a.Settle()

	h, err := a.ctx.EvalCode(ctx, code)
	if err != nil {
		return nil, err
	}
	defer h.Dispose()

	v, err := a.unmarshalChecked(h)
	a.updateMetrics()
	return v, err
}

// Expose marshals each value and defines it as a global
func (a *Arena) Expose(values map[string]interface{}) error {
	if a.disposed {
		return ErrDisposed
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h, err := a.Marshal(values[k])
		if err != nil {
			return fmt.Errorf("expose %s: %w", k, err)
		}
		err = a.ctx.SetProp(a.ctx.Global(), k, h)
		vm.MayDispose(h)
		if err != nil {
			return fmt.Errorf("expose %s: %w", k, err)
		}
	}
	a.updateMetrics()
	return nil
}

// Register maps target to the value of the VM expression code, so target
// marshals to that value and the value unmarshals to target.
func (a *Arena) Register(target interface{}, code string) error {
	if a.disposed {
		return ErrDisposed
	}
	if !vmmap.Keyable(target) {
		return fmt.Errorf("register %T: %w", target, ErrUnsupported)
	}
	if _, ok := a.registered[target]; ok {
		return nil
	}

	h, err := a.ctx.EvalCode(context.Background(), code)
	if err != nil {
		return fmt.Errorf("register %q: %w", code, err)
	}
	if a.ctx.Identity(h) == nil {
		h.Dispose()
		return fmt.Errorf("register %q: %w", code, ErrNoIdentity)
	}
	if !a.m.Set(target, h) {
		h.Dispose()
		return fmt.Errorf("register %q: %w", code, ErrUnsupported)
	}
	a.registered[target] = h
	a.updateMetrics()

	a.logger.Debug("Registered object", zap.String("code", code))
	return nil
}

// Unregister forgets a registered target
func (a *Arena) Unregister(target interface{}) {
	if !vmmap.Keyable(target) {
		return
	}
	h, ok := a.registered[target]
	if !ok {
		return
	}
	delete(a.registered, target)
	a.m.Delete(target)
	h.Dispose()
	a.updateMetrics()
	a.logger.Debug("Unregistered object")
}

// Sync enables two-way sync for target and returns a wrapper whose writes
// reach the VM counterpart. When the counterpart was created by marshalling
// target, VM writes to it reach target as well.
func (a *Arena) Sync(target interface{}) (*wrap.Wrapped, error) {
	if a.disposed {
		return nil, ErrDisposed
	}
	target = wrap.Unwrap(target, a.key)

	w := wrap.Wrap(a.ctx, target, a.key, a.keyHandle, a.marshalHook, a.syncModeOf, a.options.Wrappable)
	if w == nil {
		return nil, fmt.Errorf("sync %T: %w", target, ErrNotWrappable)
	}
	a.synced[target] = struct{}{}

	// Make sure the counterpart exists before the first mirrored write
	h, err := a.Marshal(target)
	if err != nil {
		delete(a.synced, target)
		return nil, err
	}
	vm.MayDispose(h)

	a.metrics.IncWraps("host")
	a.updateMetrics()
	a.logger.Debug("Sync enabled", zap.String("type", fmt.Sprintf("%T", target)))
	return w, nil
}

// Unsync disables two-way sync for target
func (a *Arena) Unsync(target interface{}) {
	if target = wrap.Unwrap(target, a.key); vmmap.Keyable(target) {
		delete(a.synced, target)
	}
}

// Dispose releases every handle the arena holds. The context stays usable.
func (a *Arena) Dispose() {
	if a.disposed {
		return
	}
	for _, p := range a.pending {
		p.dispose()
	}
	a.pending = nil
	a.registered = nil
	a.m.Dispose()
	a.keyHandle.Dispose()
	a.metrics.DeleteMapEntries(a.id.String())
	a.disposed = true
	a.logger.Debug("Arena disposed")
}

// syncModeOf decides the sync mode of a host value
func (a *Arena) syncModeOf(target interface{}) wrap.SyncMode {
	if !vmmap.Keyable(target) {
		return ""
	}
	if _, ok := a.synced[target]; ok {
		return wrap.SyncBoth
	}
	if a.options.SyncMode != nil {
		return a.options.SyncMode(target)
	}
	return ""
}

// handleSyncModeOf decides the sync mode of a VM wrapper by its host value
func (a *Arena) handleSyncModeOf(h *vm.Handle) wrap.SyncMode {
	target, ok := a.m.GetByHandle(h)
	if !ok {
		return ""
	}
	return a.syncModeOf(target)
}

func (a *Arena) updateMetrics() {
	a.metrics.SetMapEntries(a.id.String(), a.m.Len())
}

func sortedTargets(registered map[interface{}]string) []interface{} {
	targets := make([]interface{}, 0, len(registered))
	for target := range registered {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool {
		return registered[targets[i]] < registered[targets[j]]
	})
	return targets
}
