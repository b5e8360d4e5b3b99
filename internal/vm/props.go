package vm

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Property keys are either a string or a *Handle. A handle holding a symbol
// addresses the symbol-keyed property; any other handle is converted to its
// string form, the way JS property access does.

// GetProp reads a property. Reading from a primitive yields undefined. The
// error is a thrown JS exception, e.g. from a getter or a proxy trap.
func (c *Context) GetProp(h *Handle, key interface{}) (*Handle, error) {
	obj, ok := valueOf(h).(*goja.Object)
	if !ok {
		return c.undefined, nil
	}

	var get func() goja.Value
	switch k := key.(type) {
	case string:
		get = func() goja.Value { return obj.Get(k) }
	case *Handle:
		if sym, ok := valueOf(k).(*goja.Symbol); ok {
			get = func() goja.Value { return obj.GetSymbol(sym) }
		} else {
			name := valueOf(k).String()
			get = func() goja.Value { return obj.Get(name) }
		}
	default:
		return nil, fmt.Errorf("get %v: %w", key, ErrInvalidKey)
	}

	var v goja.Value
	err := c.try(func() {
		v = get()
	})
	if err != nil {
		return nil, err
	}
	return c.newHandle(v), nil
}

// SetProp assigns a property, like `h[key] = value`.
func (c *Context) SetProp(h *Handle, key interface{}, value *Handle) error {
	obj, ok := valueOf(h).(*goja.Object)
	if !ok {
		return fmt.Errorf("set %v: %w", key, ErrNotObject)
	}

	switch k := key.(type) {
	case string:
		return c.tryErr(func() error { return obj.Set(k, valueOf(value)) })
	case *Handle:
		if sym, ok := valueOf(k).(*goja.Symbol); ok {
			return c.tryErr(func() error { return obj.SetSymbol(sym, valueOf(value)) })
		}
		return c.tryErr(func() error { return obj.Set(valueOf(k).String(), valueOf(value)) })
	default:
		return fmt.Errorf("set %v: %w", key, ErrInvalidKey)
	}
}

// DefineProp defines a non-enumerable, read-only, configurable property. It is
// used for descriptive properties such as a function's name and length.
func (c *Context) DefineProp(h *Handle, key interface{}, value *Handle) error {
	obj, ok := valueOf(h).(*goja.Object)
	if !ok {
		return fmt.Errorf("define %v: %w", key, ErrNotObject)
	}

	switch k := key.(type) {
	case string:
		return c.tryErr(func() error {
			return obj.DefineDataProperty(k, valueOf(value), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		})
	case *Handle:
		if sym, ok := valueOf(k).(*goja.Symbol); ok {
			return c.tryErr(func() error {
				return obj.DefineDataPropertySymbol(sym, valueOf(value), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
			})
		}
		return c.tryErr(func() error {
			return obj.DefineDataProperty(valueOf(k).String(), valueOf(value), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		})
	default:
		return fmt.Errorf("define %v: %w", key, ErrInvalidKey)
	}
}

// DeleteProp removes a property, like `delete h[key]`.
func (c *Context) DeleteProp(h *Handle, key interface{}) error {
	obj, ok := valueOf(h).(*goja.Object)
	if !ok {
		return fmt.Errorf("delete %v: %w", key, ErrNotObject)
	}

	switch k := key.(type) {
	case string:
		return c.tryErr(func() error { return obj.Delete(k) })
	case *Handle:
		if sym, ok := valueOf(k).(*goja.Symbol); ok {
			return c.tryErr(func() error { return obj.DeleteSymbol(sym) })
		}
		return c.tryErr(func() error { return obj.Delete(valueOf(k).String()) })
	default:
		return fmt.Errorf("delete %v: %w", key, ErrInvalidKey)
	}
}

// OwnKeys returns the own enumerable string keys of an object, in engine order.
func (c *Context) OwnKeys(h *Handle) ([]string, error) {
	obj, ok := valueOf(h).(*goja.Object)
	if !ok {
		return nil, nil
	}
	var keys []string
	err := c.try(func() {
		keys = obj.Keys()
	})
	return keys, err
}

// TypeOf returns the JS typeof string for a handle
func (c *Context) TypeOf(h *Handle) string {
	switch v := valueOf(h).(type) {
	case *goja.Object:
		if _, ok := goja.AssertFunction(v); ok {
			return "function"
		}
		return "object"
	case *goja.Symbol:
		return "symbol"
	}

	res, err := c.Call(`a => typeof a`, nil, h)
	if err != nil {
		return "undefined"
	}
	defer res.Dispose()
	return res.value.String()
}

// IsObject reports whether h refers to an object or a function
func (c *Context) IsObject(h *Handle) bool {
	_, ok := valueOf(h).(*goja.Object)
	return ok
}

// IsArray reports whether h is an Array
func (c *Context) IsArray(h *Handle) bool {
	return c.IsObject(h) && c.test(`a => Array.isArray(a)`, h)
}

// IsPromise reports whether h is a Promise instance
func (c *Context) IsPromise(h *Handle) bool {
	return c.IsObject(h) && c.test(`a => a instanceof Promise`, h)
}

// IsDate reports whether h is a Date instance
func (c *Context) IsDate(h *Handle) bool {
	return c.IsObject(h) && c.test(`a => a instanceof Date`, h)
}

// SameValue compares two handles like Object.is
func (c *Context) SameValue(a, b *Handle) bool {
	return valueOf(a).SameAs(valueOf(b))
}

// Identity returns a comparable key for the value behind h: the same engine
// object or symbol always yields the same key no matter which handle refers to
// it. Primitives have no identity and yield nil.
func (c *Context) Identity(h *Handle) interface{} {
	switch v := valueOf(h).(type) {
	case *goja.Object:
		return v
	case *goja.Symbol:
		return v
	}
	return nil
}

// Test evaluates a predicate helper against args and reports its truthiness.
func (c *Context) Test(code string, args ...*Handle) bool {
	return c.test(code, args...)
}

func (c *Context) test(code string, args ...*Handle) bool {
	res, err := c.Call(code, nil, args...)
	if err != nil {
		c.logger.Debug("Predicate helper failed", zap.String("helper", code), zap.Error(err))
		return false
	}
	defer res.Dispose()
	return res.value.ToBoolean()
}

// Promise states reported by PromiseState
const (
	PromisePending   = "pending"
	PromiseFulfilled = "fulfilled"
	PromiseRejected  = "rejected"
)

// PromiseState returns the state of a Promise handle and, once settled, its
// value or reason as a new handle. ok is false when h is not a Promise.
func (c *Context) PromiseState(h *Handle) (state string, result *Handle, ok bool) {
	obj, isObj := valueOf(h).(*goja.Object)
	if !isObj {
		return "", nil, false
	}
	p, isPromise := obj.Export().(*goja.Promise)
	if !isPromise {
		return "", nil, false
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return PromiseFulfilled, c.newHandle(p.Result()), true
	case goja.PromiseStateRejected:
		return PromiseRejected, c.newHandle(p.Result()), true
	default:
		return PromisePending, nil, true
	}
}
