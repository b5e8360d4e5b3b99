package wrap

import (
	"fmt"
	"math"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

// SyncMode selects where writes through a wrapper land
type SyncMode string

const (
	// SyncHost writes to the host value only
	SyncHost SyncMode = "host"
	// SyncBoth writes to the host value and mirrors the write into the VM
	SyncBoth SyncMode = "both"
	// SyncVM writes to the VM counterpart only
	SyncVM SyncMode = "vm"
)

// Valid reports whether m is a known mode
func (m SyncMode) Valid() bool {
	switch m {
	case SyncHost, SyncBoth, SyncVM:
		return true
	}
	return false
}

// Properties is a host value whose own properties can be read and written.
// *host.Object and *host.Function implement it.
type Properties interface {
	Get(key interface{}) (interface{}, bool)
	Set(key, value interface{})
	Delete(key interface{})
	Keys() []string
}

// MarshalFunc converts a host value into a handle. Transient results are
// released with vm.MayDispose after use.
type MarshalFunc func(target interface{}) *vm.Handle

// Wrapped is a host value tagged as already crossing the boundary. It passes
// reads through to its payload and mirrors writes into the VM depending on
// the sync mode.
type Wrapped struct {
	payload Properties
	key     interface{}

	ctx        *vm.Context
	keyHandle  *vm.Handle
	marshal    MarshalFunc
	syncModeOf func(target interface{}) SyncMode
}

// Wrap tags target with key. It returns nil for values that are not objects,
// for promises and dates, and for targets rejected by wrappable. Wrapping an
// already wrapped value returns it unchanged, and an object that carries a
// value under key is wrapped over that value, so it is not tagged twice.
func Wrap(
	ctx *vm.Context,
	target interface{},
	key interface{},
	keyHandle *vm.Handle,
	marshal MarshalFunc,
	syncModeOf func(target interface{}) SyncMode,
	wrappable func(target interface{}) bool,
) *Wrapped {
	if w, ok := target.(*Wrapped); ok {
		if w.key == key {
			return w
		}
		return nil
	}
	if !host.IsObject(target) || host.IsPromise(target) || host.IsDate(target) {
		return nil
	}
	if wrappable != nil && !wrappable(target) {
		return nil
	}
	props, ok := target.(Properties)
	if !ok {
		return nil
	}
	if IsWrapped(props, key) {
		switch inner := Unwrap(props, key).(type) {
		case *Wrapped:
			if inner.key == key {
				return inner
			}
		case Properties:
			props = inner
		}
	}
	return &Wrapped{
		payload:    props,
		key:        key,
		ctx:        ctx,
		keyHandle:  keyHandle,
		marshal:    marshal,
		syncModeOf: syncModeOf,
	}
}

// Unwrap returns the payload of a value wrapped under key, or the value
// carried by an object under key. Anything else is returned unchanged.
func Unwrap(obj interface{}, key interface{}) interface{} {
	switch o := obj.(type) {
	case *Wrapped:
		if o.key == key {
			return o.payload
		}
	case Properties:
		if v, ok := o.Get(key); ok && v != nil {
			return v
		}
	}
	return obj
}

// IsWrapped reports whether obj is tagged with key
func IsWrapped(obj interface{}, key interface{}) bool {
	switch o := obj.(type) {
	case *Wrapped:
		return o.key == key
	case Properties:
		v, ok := o.Get(key)
		return ok && truthy(v)
	}
	return false
}

// Payload returns the wrapped host value
func (w *Wrapped) Payload() interface{} {
	return w.payload
}

// Key returns the reserved key the value is tagged with
func (w *Wrapped) Key() interface{} {
	return w.key
}

// Mode returns the sync mode for the wrapped value
func (w *Wrapped) Mode() SyncMode {
	if w.syncModeOf != nil {
		if m := w.syncModeOf(w.payload); m.Valid() {
			return m
		}
	}
	return SyncHost
}

// Get reads a property of the payload. The reserved key yields the payload
// itself.
func (w *Wrapped) Get(key interface{}) (interface{}, bool) {
	if key == w.key {
		return w.payload, true
	}
	return w.payload.Get(key)
}

// Keys returns the payload's own string keys
func (w *Wrapped) Keys() []string {
	return w.payload.Keys()
}

// Set writes a property. Wrapped values are stored unwrapped.
func (w *Wrapped) Set(key, value interface{}) error {
	v := Unwrap(value, w.key)
	mode := w.Mode()
	if mode != SyncVM {
		w.payload.Set(key, v)
	}
	if mode == SyncHost {
		return nil
	}
	return w.mirror(key, func(h *vm.Handle, k interface{}) error {
		vh := w.marshal(v)
		defer vm.MayDispose(vh)

		if w.keyHandle != nil {
			if inner, unwrapped := UnwrapHandle(w.ctx, vh, w.keyHandle); unwrapped {
				defer inner.Dispose()
				vh = inner
			}
		}
		return w.ctx.SetProp(h, k, vh)
	})
}

// Delete removes a property
func (w *Wrapped) Delete(key interface{}) error {
	mode := w.Mode()
	if mode != SyncVM {
		w.payload.Delete(key)
	}
	if mode == SyncHost {
		return nil
	}
	return w.mirror(key, func(h *vm.Handle, k interface{}) error {
		return w.ctx.DeleteProp(h, k)
	})
}

// mirror resolves the VM counterpart of the payload and the VM form of key,
// then applies fn to them
func (w *Wrapped) mirror(key interface{}, fn func(h *vm.Handle, k interface{}) error) error {
	if w.ctx == nil || w.marshal == nil {
		return nil
	}

	h := w.marshal(w.payload)
	defer vm.MayDispose(h)
	if !w.ctx.IsObject(h) {
		return fmt.Errorf("mirror %v: %w", key, vm.ErrNotObject)
	}

	// Write to the target of a VM wrapper so its traps do not echo the write back
	if w.keyHandle != nil {
		if inner, unwrapped := UnwrapHandle(w.ctx, h, w.keyHandle); unwrapped {
			defer inner.Dispose()
			h = inner
		}
	}

	var k interface{} = key
	if _, ok := key.(string); !ok {
		kh := w.marshal(key)
		defer vm.MayDispose(kh)
		k = kh
	}

	if err := fn(h, k); err != nil {
		return fmt.Errorf("mirror %v: %w", key, err)
	}
	return nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}
