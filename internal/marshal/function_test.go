package marshal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

func newContext(t *testing.T) *vm.Context {
	t.Helper()
	c, err := vm.New(vm.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func eval(t *testing.T, c *vm.Context, code string) *vm.Handle {
	t.Helper()
	h, err := c.EvalCode(context.Background(), code)
	require.NoError(t, err)
	return h
}

func dumpProp(t *testing.T, c *vm.Context, h *vm.Handle, key interface{}) interface{} {
	t.Helper()
	v, err := c.GetProp(h, key)
	require.NoError(t, err)
	return vm.Consume(v, c.Dump)
}

// recorder builds marshal/unmarshal hooks that remember their calls
type recorder struct {
	c          *vm.Context
	marshalled []interface{}
	unmarshal  []interface{}
}

func (r *recorder) marshal(v interface{}) *vm.Handle {
	r.marshalled = append(r.marshalled, v)
	switch x := v.(type) {
	case string:
		return r.c.NewString(x)
	case int:
		return r.c.NewNumber(float64(x))
	case int64:
		return r.c.NewNumber(float64(x))
	case float64:
		return r.c.NewNumber(x)
	case bool:
		return r.c.NewBool(x)
	}
	return r.c.Null()
}

func (r *recorder) unmarshalValue(h *vm.Handle) interface{} {
	var v interface{}
	if !r.c.SameValue(h, r.c.Global()) {
		v = r.c.Dump(h)
	}
	r.unmarshal = append(r.unmarshal, v)
	return v
}

func TestFunctionNormal(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	var innerArgs []interface{}
	fn := host.NewFunction("fn", 0, func(this interface{}, args ...interface{}) (interface{}, error) {
		innerArgs = args
		return "hoge", nil
	})

	var preCalls [][]interface{}
	preMarshal := func(target interface{}, h *vm.Handle) {
		preCalls = append(preCalls, []interface{}{target, h})
	}

	handle, err := Function(c, fn, rec.marshal, rec.unmarshalValue, preMarshal, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, []interface{}{0, "fn"}, rec.marshalled)
	require.Len(t, preCalls, 1)
	assert.Same(t, fn, preCalls[0][0])
	assert.Same(t, handle, preCalls[0][1])
	assert.Equal(t, "function", c.TypeOf(handle))
	assert.EqualValues(t, 0, dumpProp(t, c, handle, "length"))
	assert.Equal(t, "fn", dumpProp(t, c, handle, "name"))

	one := c.NewNumber(1)
	result, err := c.CallFunction(handle, c.Undefined(), one, c.True())
	require.NoError(t, err)
	one.Dispose()

	assert.Equal(t, "hoge", vm.Consume(result, c.Dump))
	require.Len(t, innerArgs, 2)
	assert.EqualValues(t, 1, innerArgs[0])
	assert.Equal(t, true, innerArgs[1])
	assert.Equal(t, "hoge", rec.marshalled[len(rec.marshalled)-1])

	require.Len(t, rec.unmarshal, 3)
	assert.Nil(t, rec.unmarshal[0])
	assert.EqualValues(t, 1, rec.unmarshal[1])
	assert.Equal(t, true, rec.unmarshal[2])

	handle.Dispose()
	assert.Equal(t, 0, c.LiveHandles())
}

func TestFunctionWithProperties(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	fn := host.NewFunction("fn", 0, nil)
	fn.Set("hoge", "foo")

	handle, err := Function(c, fn, rec.marshal, c.Dump, func(interface{}, *vm.Handle) {}, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, "function", c.TypeOf(handle))
	assert.Equal(t, "foo", dumpProp(t, c, handle, "hoge"))
	assert.Contains(t, rec.marshalled, "foo")

	handle.Dispose()
	assert.Equal(t, 0, c.LiveHandles())
}

func TestFunctionMarshalOrder(t *testing.T) {
	c := newContext(t)

	fn := host.NewFunction("outer", 2, nil)
	fn.Set("a", "x")
	fn.Set("b", 3)
	fn.Set("self", fn)

	var events []string
	registered := make(map[interface{}]*vm.Handle)

	marshal := func(v interface{}) *vm.Handle {
		switch x := v.(type) {
		case *host.Function:
			if h, ok := registered[x]; ok {
				events = append(events, "hit:"+x.Name())
				return h
			}
			events = append(events, "miss:"+x.Name())
			return c.Null()
		case string:
			events = append(events, "marshal:"+x)
			return c.NewString(x)
		case int:
			events = append(events, fmt.Sprintf("marshal:%d", x))
			return c.NewNumber(float64(x))
		}
		events = append(events, fmt.Sprintf("marshal:%v", v))
		return c.Undefined()
	}
	preMarshal := func(target interface{}, h *vm.Handle) {
		events = append(events, "pre")
		h.Pin()
		registered[target] = h
	}

	handle, err := Function(c, fn, marshal, c.Dump, preMarshal, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)

	require.Len(t, events, 6)
	assert.Equal(t, []string{"pre", "marshal:2", "marshal:outer"}, events[:3])
	assert.ElementsMatch(t, []string{"marshal:x", "marshal:3", "hit:outer"}, events[3:])
	assert.NotContains(t, events, "miss:outer")

	require.NoError(t, c.SetProp(c.Global(), "outer", handle))
	same := eval(t, c, "outer.self === outer && outer.a === 'x' && outer.b === 3")
	assert.Equal(t, true, vm.Consume(same, c.Dump))

	handle.Unpin()
	handle.Dispose()
	assert.Equal(t, 0, c.LiveHandles())
}

func TestFunctionSymbolProperty(t *testing.T) {
	c := newContext(t)
	hostSym := host.NewSymbol("meta")
	vmSym := eval(t, c, `Symbol("meta")`)
	defer vmSym.Dispose()

	fn := host.NewFunction("fn", 0, nil)
	fn.Set(hostSym, "tagged")

	marshalValue := func(v interface{}) *vm.Handle {
		switch x := v.(type) {
		case *host.Symbol:
			return vmSym
		case string:
			return c.NewString(x)
		case int:
			return c.NewNumber(float64(x))
		}
		return c.Null()
	}
	vmSym.Pin()

	handle, err := Function(c, fn, marshalValue, c.Dump, nil, nil)
	require.NoError(t, err)
	defer handle.Dispose()

	assert.True(t, vmSym.Alive())
	assert.Equal(t, "tagged", dumpProp(t, c, handle, vmSym))
}

func TestFunctionClass(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	instanceOf := eval(t, c, `(cls, i) => i instanceof cls`)
	defer instanceOf.Dispose()

	a := host.NewClass("A", 1, func(this *host.Object, args ...interface{}) error {
		this.Set("a", args[0])
		return nil
	})

	handle, err := Function(c, a, rec.marshal, c.Dump, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)
	defer handle.Dispose()

	newA := eval(t, c, `A => new A(100)`)
	defer newA.Dispose()
	instance, err := c.CallFunction(newA, c.Undefined(), handle)
	require.NoError(t, err)
	defer instance.Dispose()

	assert.Equal(t, "A", dumpProp(t, c, handle, "name"))
	assert.EqualValues(t, 1, dumpProp(t, c, handle, "length"))

	is, err := c.CallFunction(instanceOf, c.Undefined(), handle, instance)
	require.NoError(t, err)
	assert.Equal(t, true, vm.Consume(is, c.Dump))
	assert.EqualValues(t, 100, dumpProp(t, c, instance, "a"))
}

func TestFunctionClassWithoutNew(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	a := host.NewClass("A", 0, nil)
	handle, err := Function(c, a, rec.marshal, c.Dump, nil, nil)
	require.NoError(t, err)
	defer handle.Dispose()

	_, err = c.CallFunction(handle, c.Undefined())
	require.Error(t, err)
	assert.Contains(t, err.Error(), host.ErrClassCall.Error())
}

func TestFunctionClassWithSymbol(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	a := host.NewClass("A", 0, nil)
	sym := eval(t, c, "Symbol()")
	defer sym.Dispose()

	handle, err := Function(c, a, rec.marshal, c.Dump, func(interface{}, *vm.Handle) {}, sym)
	require.NoError(t, err)
	require.NotNil(t, handle)
	defer handle.Dispose()

	actual, err := c.GetProp(handle, sym)
	require.NoError(t, err)
	defer actual.Dispose()
	assert.Equal(t, "function", c.TypeOf(actual))

	newA := eval(t, c, `A => new A()`)
	defer newA.Dispose()

	_, err = c.CallFunction(newA, c.Undefined(), actual)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "not a constructor")

	// The projection itself still constructs
	instance, err := c.CallFunction(newA, c.Undefined(), handle)
	require.NoError(t, err)
	instance.Dispose()
}

func TestFunctionError(t *testing.T) {
	c := newContext(t)
	rec := &recorder{c: c}

	fn := host.NewFunction("fail", 0, func(interface{}, ...interface{}) (interface{}, error) {
		return nil, errors.New("host failure")
	})
	handle, err := Function(c, fn, rec.marshal, c.Dump, nil, nil)
	require.NoError(t, err)
	defer handle.Dispose()

	catcher := eval(t, c, `f => { try { f(); return "no error"; } catch (e) { return e.message; } }`)
	defer catcher.Dispose()

	res, err := c.CallFunction(catcher, c.Undefined(), handle)
	require.NoError(t, err)
	assert.Equal(t, "host failure", vm.Consume(res, c.Dump))
}

func TestFunctionDeclinesNonCallables(t *testing.T) {
	c := newContext(t)
	calls := 0
	marshalValue := func(interface{}) *vm.Handle { calls++; return c.Null() }
	unmarshalValue := func(*vm.Handle) interface{} { calls++; return nil }
	preMarshal := func(interface{}, *vm.Handle) { calls++ }

	var nilFn *host.Function
	targets := []interface{}{
		nil, false, true, 1, "fn",
		[]interface{}{1},
		map[string]interface{}{"a": 1},
		host.NewObject(),
		nilFn,
	}
	for _, target := range targets {
		h, err := Function(c, target, marshalValue, unmarshalValue, preMarshal, nil)
		assert.NoError(t, err)
		assert.Nil(t, h, "%v", target)
	}
	assert.Zero(t, calls)
	assert.Equal(t, 0, c.LiveHandles())
}
