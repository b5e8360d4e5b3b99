package vmmap

import (
	"iter"
	"reflect"

	"github.com/GriffinCanCode/vmsync/internal/vm"
)

type entry struct {
	handle   *vm.Handle
	identity interface{}
}

// Map is a bidirectional identity map between host values and VM handles.
//
// Host keys are compared by Go equality, so pointer keys such as *host.Object
// give identity semantics. Keys of non-comparable types are ignored. VM
// handles are compared by the engine value they refer to. When a proxy
// symbol is set, a handle that answers that symbol with an object is
// identified by that object instead of by itself, so a wrapper proxy and its
// target resolve to the same host value.
//
// A Map is not safe for concurrent use, like the Context it belongs to.
type Map struct {
	ctx         *vm.Context
	proxySymbol *vm.Handle

	forward  map[interface{}]entry
	backward map[interface{}]interface{}
	order    []interface{}
	disposed bool
}

// New creates an empty map. proxySymbol may be nil.
func New(ctx *vm.Context, proxySymbol *vm.Handle) *Map {
	m := &Map{
		ctx:      ctx,
		forward:  make(map[interface{}]entry),
		backward: make(map[interface{}]interface{}),
	}
	if proxySymbol != nil && proxySymbol.Alive() {
		m.proxySymbol = proxySymbol.Dup()
	}
	return m
}

// ProxyTarget returns the map's own copy of the proxy symbol, nil if none
func (m *Map) ProxyTarget() *vm.Handle {
	return m.proxySymbol
}

// Set records target <-> handle. The map takes ownership of handle: it is
// pinned while stored and disposed by Clear and Dispose. An engine value maps
// to one host value at a time, so an entry of another target for the same
// engine value is removed and its handle unpinned, as by Delete. Returns
// false when target cannot be used as a key or the handle has no identity.
func (m *Map) Set(target interface{}, handle *vm.Handle) bool {
	if m.disposed || !Keyable(target) || !handle.Alive() {
		return false
	}
	ident := m.identity(handle)
	if ident == nil {
		return false
	}

	if prev, ok := m.backward[ident]; ok && prev != target {
		e := m.forward[prev]
		if e.handle != handle {
			e.handle.Unpin()
		}
		m.remove(prev, e)
	}

	if old, ok := m.forward[target]; ok {
		delete(m.backward, old.identity)
		if old.handle != handle {
			old.handle.Unpin()
		}
	} else {
		m.order = append(m.order, target)
	}

	handle.Pin()
	m.forward[target] = entry{handle: handle, identity: ident}
	m.backward[ident] = target
	return true
}

// Get returns the live handle recorded for target
func (m *Map) Get(target interface{}) (*vm.Handle, bool) {
	if !Keyable(target) {
		return nil, false
	}
	e, ok := m.forward[target]
	if !ok || !e.handle.Alive() {
		return nil, false
	}
	return e.handle, true
}

// GetByHandle returns the host value recorded for the engine value behind
// handle, which need not be the handle passed to Set.
func (m *Map) GetByHandle(handle *vm.Handle) (interface{}, bool) {
	if !handle.Alive() {
		return nil, false
	}
	ident := m.identity(handle)
	if ident == nil {
		return nil, false
	}
	target, ok := m.backward[ident]
	if !ok {
		return nil, false
	}
	if e := m.forward[target]; !e.handle.Alive() {
		return nil, false
	}
	return target, true
}

// Has reports whether target maps to a live handle
func (m *Map) Has(target interface{}) bool {
	_, ok := m.Get(target)
	return ok
}

// HasHandle reports whether handle maps to a host value
func (m *Map) HasHandle(handle *vm.Handle) bool {
	_, ok := m.GetByHandle(handle)
	return ok
}

// Delete removes target. The handle is unpinned and handed back to the caller.
func (m *Map) Delete(target interface{}) {
	if !Keyable(target) {
		return
	}
	e, ok := m.forward[target]
	if !ok {
		return
	}
	e.handle.Unpin()
	m.remove(target, e)
}

// Len returns the number of entries, including entries whose handle has died
// and not yet been cleaned up.
func (m *Map) Len() int {
	return len(m.forward)
}

// Cleanup drops entries whose handle is no longer alive
func (m *Map) Cleanup() {
	for _, target := range append([]interface{}(nil), m.order...) {
		if e := m.forward[target]; !e.handle.Alive() {
			m.remove(target, e)
		}
	}
}

// Clear disposes every stored handle and empties the map
func (m *Map) Clear() {
	for _, target := range m.order {
		m.forward[target].handle.Dispose()
	}
	m.forward = make(map[interface{}]entry)
	m.backward = make(map[interface{}]interface{})
	m.order = nil
}

// Entries yields a snapshot of the entries in insertion order
func (m *Map) Entries() iter.Seq2[interface{}, *vm.Handle] {
	targets := append([]interface{}(nil), m.order...)
	handles := make([]*vm.Handle, len(targets))
	for i, target := range targets {
		handles[i] = m.forward[target].handle
	}
	return func(yield func(interface{}, *vm.Handle) bool) {
		for i, target := range targets {
			if !yield(target, handles[i]) {
				return
			}
		}
	}
}

// Dispose clears the map and releases the proxy symbol. The map must not be
// used afterwards.
func (m *Map) Dispose() {
	if m.disposed {
		return
	}
	m.Clear()
	if m.proxySymbol != nil {
		m.proxySymbol.Dispose()
	}
	m.disposed = true
}

func (m *Map) remove(target interface{}, e entry) {
	delete(m.forward, target)
	if m.backward[e.identity] == target {
		delete(m.backward, e.identity)
	}
	for i, t := range m.order {
		if t == target {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// identity resolves a handle through the proxy symbol before taking its
// engine identity
func (m *Map) identity(handle *vm.Handle) interface{} {
	if m.proxySymbol != nil && m.proxySymbol.Alive() && m.ctx.IsObject(handle) {
		if target, err := m.ctx.GetProp(handle, m.proxySymbol); err == nil {
			ident := m.ctx.Identity(target)
			vm.MayDispose(target)
			if ident != nil {
				return ident
			}
		}
	}
	return m.ctx.Identity(handle)
}

// Keyable reports whether v can be used as a host key
func Keyable(v interface{}) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Comparable()
}
