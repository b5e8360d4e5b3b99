package vm

import "github.com/dop251/goja"

// Handle is an opaque, disposable reference to a value living in a Context.
//
// Disposal is explicit: the engine itself is garbage collected, but a handle
// tracks whether its holder may still use it. Handles die when disposed, when
// their context is closed, and when a pooled context is reset.
type Handle struct {
	ctx    *Context
	value  goja.Value
	gen    uint64
	alive  bool
	static bool
	pinned bool
}

// Alive reports whether the handle can still be used
func (h *Handle) Alive() bool {
	if h == nil || h.ctx == nil {
		return false
	}
	return h.alive && !h.ctx.closed && h.gen == h.ctx.gen
}

// Dispose releases the handle. Disposing twice, or disposing a static handle
// such as Undefined, is a no-op.
func (h *Handle) Dispose() {
	if h == nil || h.static || !h.alive {
		return
	}
	h.alive = false
	h.pinned = false
	if h.gen == h.ctx.gen {
		h.ctx.live--
	}
	h.ctx.metrics.IncHandlesDisposed()
}

// Dup returns a new handle to the same value with its own lifetime.
func (h *Handle) Dup() *Handle {
	if !h.Alive() {
		return &Handle{ctx: h.ctx, value: h.value, gen: h.gen}
	}
	return h.ctx.newHandle(h.value)
}

// Context returns the owning context
func (h *Handle) Context() *Context {
	return h.ctx
}

// Static reports whether the handle is one of the context's shared constants.
func (h *Handle) Static() bool {
	return h.static
}

// Pin marks the handle as held by a long-lived owner. Transient consumers use
// MayDispose, which leaves pinned handles alone. Pinning does not prevent an
// explicit Dispose.
func (h *Handle) Pin() {
	h.pinned = true
}

// Unpin hands ownership back to whoever holds the handle.
func (h *Handle) Unpin() {
	h.pinned = false
}

// Pinned reports whether an owner holds the handle
func (h *Handle) Pinned() bool {
	return h.pinned
}

// MayDispose disposes a handle that was produced for a single use, unless it is
// static or pinned by an owner.
func MayDispose(h *Handle) {
	if h == nil || h.static || h.pinned {
		return
	}
	h.Dispose()
}

// Consume calls fn with h and disposes h afterwards.
func Consume[T any](h *Handle, fn func(*Handle) T) T {
	defer h.Dispose()
	return fn(h)
}
