package wrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/vmmap"
)

// bridge is a minimal embedding: one identity map plus primitive conversion
type bridge struct {
	c         *vm.Context
	key       *host.Symbol
	keyHandle *vm.Handle
	m         *vmmap.Map
	marshals  int
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	c, err := vm.New(vm.DefaultConfig())
	require.NoError(t, err)

	keyHandle := c.NewSymbol("wrapped")
	b := &bridge{
		c:         c,
		key:       host.NewSymbol("wrapped"),
		keyHandle: keyHandle,
		m:         vmmap.New(c, keyHandle),
	}
	t.Cleanup(func() {
		b.m.Dispose()
		keyHandle.Dispose()
		_ = c.Close()
	})
	return b
}

func (b *bridge) marshal(v interface{}) *vm.Handle {
	b.marshals++
	if h, ok := b.m.Get(v); ok {
		return h
	}
	switch x := v.(type) {
	case string:
		return b.c.NewString(x)
	case int:
		return b.c.NewNumber(float64(x))
	case *host.Symbol:
		if x == b.key {
			return b.keyHandle
		}
	}
	return b.c.Undefined()
}

func (b *bridge) unmarshal(h *vm.Handle) interface{} {
	if v, ok := b.m.GetByHandle(h); ok {
		return v
	}
	return b.c.Dump(h)
}

// pair creates a host object and its VM counterpart, recorded in the map
func (b *bridge) pair() (*host.Object, *vm.Handle) {
	obj := host.NewObject()
	h := b.c.NewObject()
	b.m.Set(obj, h)
	return obj, h
}

func (b *bridge) eval(t *testing.T, code string) *vm.Handle {
	t.Helper()
	h, err := b.c.EvalCode(context.Background(), code)
	require.NoError(t, err)
	return h
}

func (b *bridge) call(t *testing.T, code string, args ...*vm.Handle) {
	t.Helper()
	fn := b.eval(t, code)
	defer fn.Dispose()
	res, err := b.c.CallFunction(fn, b.c.Undefined(), args...)
	require.NoError(t, err)
	res.Dispose()
}

func (b *bridge) prop(t *testing.T, h *vm.Handle, key string) interface{} {
	t.Helper()
	v, err := b.c.GetProp(h, key)
	require.NoError(t, err)
	return vm.Consume(v, b.c.Dump)
}

func mode(m SyncMode) func(interface{}) SyncMode {
	return func(interface{}) SyncMode { return m }
}

func handleMode(m SyncMode) func(*vm.Handle) SyncMode {
	return func(*vm.Handle) SyncMode { return m }
}

func TestWrapDeclines(t *testing.T) {
	b := newBridge(t)
	now := time.Now()

	targets := []interface{}{
		nil, 1, "str", true,
		map[string]interface{}{"a": 1},
		[]interface{}{1},
		host.Resolved(1),
		now, &now,
	}
	for _, target := range targets {
		assert.Nil(t, Wrap(b.c, target, b.key, b.keyHandle, b.marshal, nil, nil), "%v", target)
	}

	rejected := Wrap(b.c, host.NewObject(), b.key, b.keyHandle, b.marshal, nil, func(interface{}) bool { return false })
	assert.Nil(t, rejected)
	assert.Zero(t, b.marshals)
}

func TestWrapAndUnwrap(t *testing.T) {
	b := newBridge(t)
	obj := host.NewObject()
	fn := host.NewFunction("f", 0, nil)

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, w)
	assert.True(t, IsWrapped(w, b.key))
	assert.False(t, IsWrapped(obj, b.key))
	assert.False(t, IsWrapped(w, host.NewSymbol("other")))
	assert.Same(t, obj, w.Payload())
	assert.Equal(t, b.key, w.Key())

	// Idempotent
	assert.Same(t, w, Wrap(b.c, w, b.key, b.keyHandle, b.marshal, nil, nil))
	assert.Nil(t, Wrap(b.c, w, host.NewSymbol("other"), b.keyHandle, b.marshal, nil, nil))

	assert.Same(t, obj, Unwrap(w, b.key))
	assert.Same(t, obj, Unwrap(obj, b.key))
	assert.Equal(t, 1, Unwrap(1, b.key))

	got, ok := w.Get(b.key)
	require.True(t, ok)
	assert.Same(t, obj, got)

	wf := Wrap(b.c, fn, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, wf)
	assert.Same(t, fn, Unwrap(wf, b.key))
}

func TestIsWrappedTaggedObject(t *testing.T) {
	key := "__wrapped"
	inner := host.NewObject()

	tagged := host.NewObject()
	tagged.Set(key, inner)
	assert.True(t, IsWrapped(tagged, key))
	assert.Same(t, inner, Unwrap(tagged, key))

	falsy := host.NewObject()
	falsy.Set(key, false)
	assert.False(t, IsWrapped(falsy, key))
	assert.False(t, IsWrapped("str", key))
}

func TestWrapTaggedObject(t *testing.T) {
	b := newBridge(t)
	inner := host.NewObject()
	inner.Set("n", 1)

	tagged := host.NewObject()
	tagged.Set(b.key, inner)
	require.True(t, IsWrapped(tagged, b.key))

	w := Wrap(b.c, tagged, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, w)
	assert.Same(t, inner, w.Payload())
	assert.Same(t, inner, Unwrap(w, b.key))

	direct := Wrap(b.c, inner, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, direct)
	assert.Same(t, direct.Payload(), w.Payload())
	assert.Same(t, w, Wrap(b.c, w, b.key, b.keyHandle, b.marshal, nil, nil))

	// An object carrying a wrapper yields that wrapper
	carrier := host.NewObject()
	carrier.Set(b.key, direct)
	assert.Same(t, direct, Wrap(b.c, carrier, b.key, b.keyHandle, b.marshal, nil, nil))

	// A tag that is not an object leaves the target as the payload
	flagged := host.NewObject()
	flagged.Set(b.key, true)
	wf := Wrap(b.c, flagged, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, wf)
	assert.Same(t, flagged, wf.Payload())
	assert.Zero(t, b.marshals)
}

func TestWrappedSyncHost(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, nil, nil)
	require.NotNil(t, w)
	assert.Equal(t, SyncHost, w.Mode())

	require.NoError(t, w.Set("a", 1))
	assert.Equal(t, 1, obj.Value("a"))
	assert.Nil(t, b.prop(t, h, "a"))
	assert.Zero(t, b.marshals)
	assert.Equal(t, []string{"a"}, w.Keys())

	require.NoError(t, w.Delete("a"))
	assert.False(t, obj.Has("a"))
}

func TestWrappedSyncBoth(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, mode(SyncBoth), nil)
	require.NotNil(t, w)

	require.NoError(t, w.Set("a", "x"))
	assert.Equal(t, "x", obj.Value("a"))
	assert.Equal(t, "x", b.prop(t, h, "a"))

	require.NoError(t, w.Delete("a"))
	assert.False(t, obj.Has("a"))
	assert.Nil(t, b.prop(t, h, "a"))
	assert.True(t, h.Alive())
}

func TestWrappedSyncVM(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, mode(SyncVM), nil)
	require.NotNil(t, w)

	require.NoError(t, w.Set("a", 2))
	assert.False(t, obj.Has("a"))
	assert.EqualValues(t, 2, b.prop(t, h, "a"))
}

func TestWrappedSetStoresPayload(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()
	child, childHandle := b.pair()

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, mode(SyncBoth), nil)
	wc := Wrap(b.c, child, b.key, b.keyHandle, b.marshal, nil, nil)

	require.NoError(t, w.Set("child", wc))
	assert.Same(t, child, obj.Value("child"))

	v, err := b.c.GetProp(h, "child")
	require.NoError(t, err)
	defer v.Dispose()
	assert.True(t, b.c.SameValue(childHandle, v))
}

func TestWrappedMirrorRequiresObject(t *testing.T) {
	b := newBridge(t)
	obj := host.NewObject()

	w := Wrap(b.c, obj, b.key, b.keyHandle, b.marshal, mode(SyncBoth), nil)
	err := w.Set("a", 1)
	assert.ErrorIs(t, err, vm.ErrNotObject)
	assert.Equal(t, 1, obj.Value("a"))
}

func TestWrapHandleDeclines(t *testing.T) {
	b := newBridge(t)

	num := b.c.NewNumber(1)
	defer num.Dispose()
	str := b.c.NewString("s")
	defer str.Dispose()
	promise := b.eval(t, "Promise.resolve(1)")
	defer promise.Dispose()
	date := b.eval(t, "new Date(0)")
	defer date.Dispose()

	for _, h := range []*vm.Handle{b.c.Undefined(), b.c.Null(), b.c.True(), num, str, promise, date} {
		w, wrapped, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.False(t, wrapped)
	}

	obj := b.c.NewObject()
	defer obj.Dispose()
	w, wrapped, err := WrapHandle(b.c, obj, b.keyHandle, b.unmarshal, nil, func(*vm.Handle) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.False(t, wrapped)
}

func TestWrapHandle(t *testing.T) {
	b := newBridge(t)
	_, h := b.pair()

	w, wrapped, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, nil, nil)
	require.NoError(t, err)
	require.True(t, wrapped)
	defer w.Dispose()

	assert.True(t, IsHandleWrapped(b.c, w, b.keyHandle))
	assert.False(t, IsHandleWrapped(b.c, h, b.keyHandle))
	assert.False(t, b.c.SameValue(w, h))

	// Idempotent
	again, wrapped, err := WrapHandle(b.c, w, b.keyHandle, b.unmarshal, nil, nil)
	require.NoError(t, err)
	assert.False(t, wrapped)
	assert.Same(t, w, again)

	target, ok := UnwrapHandle(b.c, w, b.keyHandle)
	require.True(t, ok)
	assert.True(t, b.c.SameValue(target, h))
	target.Dispose()

	same, ok := UnwrapHandle(b.c, h, b.keyHandle)
	assert.False(t, ok)
	assert.Same(t, h, same)

	// Reads pass through
	b.call(t, `o => { o.x = 1 }`, h)
	assert.EqualValues(t, 1, b.prop(t, w, "x"))
}

func TestWrapHandleSyncVM(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w, _, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, nil, nil)
	require.NoError(t, err)
	defer w.Dispose()

	b.call(t, `o => { o.x = 1 }`, w)
	assert.EqualValues(t, 1, b.prop(t, h, "x"))
	assert.False(t, obj.Has("x"))
}

func TestWrapHandleSyncBoth(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w, _, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, handleMode(SyncBoth), nil)
	require.NoError(t, err)
	defer w.Dispose()

	b.call(t, `o => { o.x = 1 }`, w)
	assert.EqualValues(t, 1, b.prop(t, h, "x"))
	assert.EqualValues(t, 1, obj.Value("x"))

	b.call(t, `o => { delete o.x }`, w)
	assert.Nil(t, b.prop(t, h, "x"))
	assert.False(t, obj.Has("x"))
}

func TestWrapHandleSyncHost(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()

	w, _, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, handleMode(SyncHost), nil)
	require.NoError(t, err)
	defer w.Dispose()

	b.call(t, `o => { o.x = "host" }`, w)
	assert.Nil(t, b.prop(t, h, "x"))
	assert.Equal(t, "host", obj.Value("x"))
}

func TestWrapHandleStoresTarget(t *testing.T) {
	b := newBridge(t)
	obj, h := b.pair()
	child, childHandle := b.pair()

	w, _, err := WrapHandle(b.c, h, b.keyHandle, b.unmarshal, handleMode(SyncBoth), nil)
	require.NoError(t, err)
	defer w.Dispose()
	wc, _, err := WrapHandle(b.c, childHandle, b.keyHandle, b.unmarshal, nil, nil)
	require.NoError(t, err)
	defer wc.Dispose()

	b.call(t, `(o, c) => { o.child = c }`, w, wc)

	v, err := b.c.GetProp(h, "child")
	require.NoError(t, err)
	defer v.Dispose()
	assert.True(t, b.c.SameValue(v, childHandle))
	assert.Same(t, child, obj.Value("child"))
}

func TestIsHandleWrappedShapes(t *testing.T) {
	b := newBridge(t)

	tag := func(code string) *vm.Handle {
		fn := b.eval(t, code)
		defer fn.Dispose()
		h, err := b.c.CallFunction(fn, b.c.Undefined(), b.keyHandle)
		require.NoError(t, err)
		return h
	}

	fn := tag(`s => { const f = () => {}; f[s] = 1; return f }`)
	defer fn.Dispose()
	assert.True(t, IsHandleWrapped(b.c, fn, b.keyHandle))

	obj := tag(`s => ({ [s]: true })`)
	defer obj.Dispose()
	assert.True(t, IsHandleWrapped(b.c, obj, b.keyHandle))

	promise := tag(`s => { const p = Promise.resolve(); p[s] = true; return p }`)
	defer promise.Dispose()
	assert.False(t, IsHandleWrapped(b.c, promise, b.keyHandle))

	date := tag(`s => { const d = new Date(); d[s] = true; return d }`)
	defer date.Dispose()
	assert.False(t, IsHandleWrapped(b.c, date, b.keyHandle))

	falsy := tag(`s => ({ [s]: 0 })`)
	defer falsy.Dispose()
	assert.False(t, IsHandleWrapped(b.c, falsy, b.keyHandle))

	assert.False(t, IsHandleWrapped(b.c, b.c.Null(), b.keyHandle))
}
