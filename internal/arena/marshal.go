package arena

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/marshal"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

const setPrototype = `(o, C) => { Object.setPrototypeOf(o, C.prototype); }`

// Marshal converts a host value into a handle.
//
// Objects, functions and symbols are recorded in the identity map, so
// marshalling them again returns the same handle; the map owns it. Other
// results are owned by the caller. vm.MayDispose releases either kind
// correctly.
func (a *Arena) Marshal(target interface{}) (*vm.Handle, error) {
	if a.disposed {
		return nil, ErrDisposed
	}
	return a.marshal(target)
}

// marshalHook adapts marshal to the hook signature used by the marshaller and
// the wrap protocol. Failures become undefined.
func (a *Arena) marshalHook(target interface{}) *vm.Handle {
	h, err := a.marshal(target)
	if err != nil {
		a.logger.Warn("Failed to marshal value", zap.String("type", fmt.Sprintf("%T", target)), zap.Error(err))
		return a.ctx.Undefined()
	}
	return h
}

func (a *Arena) marshal(target interface{}) (*vm.Handle, error) {
	target = wrap.Unwrap(target, a.key)

	if h, ok := a.m.Get(target); ok {
		return h, nil
	}
	if target != nil && a.options.IsMarshalable != nil && !a.options.IsMarshalable(target) {
		return a.ctx.Undefined(), nil
	}

	switch v := target.(type) {
	case nil:
		return a.ctx.Undefined(), nil
	case bool:
		return a.ctx.NewBool(v), nil
	case string:
		return a.ctx.NewString(v), nil
	case int:
		return a.ctx.NewNumber(float64(v)), nil
	case int8:
		return a.ctx.NewNumber(float64(v)), nil
	case int16:
		return a.ctx.NewNumber(float64(v)), nil
	case int32:
		return a.ctx.NewNumber(float64(v)), nil
	case int64:
		return a.ctx.NewNumber(float64(v)), nil
	case uint:
		return a.ctx.NewNumber(float64(v)), nil
	case uint8:
		return a.ctx.NewNumber(float64(v)), nil
	case uint16:
		return a.ctx.NewNumber(float64(v)), nil
	case uint32:
		return a.ctx.NewNumber(float64(v)), nil
	case uint64:
		return a.ctx.NewNumber(float64(v)), nil
	case float32:
		return a.ctx.NewNumber(float64(v)), nil
	case float64:
		return a.ctx.NewNumber(v), nil
	case time.Time:
		return a.ctx.NewDate(v)
	case *time.Time:
		if v == nil {
			return a.ctx.Null(), nil
		}
		return a.ctx.NewDate(*v)
	case *host.Symbol:
		return a.marshalSymbol(v)
	case *host.Function:
		return a.marshalFunction(v)
	case *host.Object:
		return a.marshalObject(v)
	case *host.Promise:
		return a.marshalPromise(v)
	case error:
		return a.marshalError(v)
	}
	return a.marshalReflect(target)
}

func (a *Arena) marshalSymbol(sym *host.Symbol) (*vm.Handle, error) {
	h := a.ctx.NewSymbol(sym.Description())
	a.m.Set(sym, h)
	return h, nil
}

func (a *Arena) marshalFunction(fn *host.Function) (*vm.Handle, error) {
	preMarshal := func(target interface{}, h *vm.Handle) {
		a.m.Set(target, h)
	}
	h, err := marshal.Function(a.ctx, fn, a.marshalHook, a.unmarshalHook, preMarshal, nil)
	if err != nil {
		return nil, err
	}
	a.metrics.IncFunctionsProjected()
	return h, nil
}

// marshalObject creates the VM counterpart of a host object. The map records
// a wrapper proxy, so VM writes can be reported back to the host object.
func (a *Arena) marshalObject(obj *host.Object) (*vm.Handle, error) {
	raw := a.ctx.NewObject()
	defer raw.Dispose()

	if cls := obj.Class(); cls != nil {
		ctor, err := a.marshal(cls)
		if err != nil {
			return nil, err
		}
		res, err := a.ctx.Call(setPrototype, nil, raw, ctor)
		vm.MayDispose(ctor)
		if err != nil {
			return nil, fmt.Errorf("set prototype of %s instance: %w", cls.Name(), err)
		}
		res.Dispose()
	}

	h := raw.Dup()
	if a.options.Wrappable == nil || a.options.Wrappable(obj) {
		wrapped, ok, err := wrap.WrapHandle(a.ctx, raw, a.keyHandle, a.unmarshalHook, a.handleSyncModeOf, nil)
		if err != nil {
			h.Dispose()
			return nil, err
		}
		if ok {
			h.Dispose()
			h = wrapped
			a.metrics.IncWraps("vm")
		}
	}
	a.m.Set(obj, h)

	for _, key := range obj.Keys() {
		if err := a.setProp(raw, key, obj.Value(key)); err != nil {
			return nil, err
		}
	}
	for _, sym := range obj.Symbols() {
		kh, err := a.marshal(sym)
		if err != nil {
			return nil, err
		}
		err = a.setProp(raw, kh, obj.Value(sym))
		vm.MayDispose(kh)
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (a *Arena) marshalError(err error) (*vm.Handle, error) {
	msg := a.ctx.NewString(err.Error())
	defer msg.Dispose()
	return a.ctx.Call(`m => new Error(m)`, nil, msg)
}

// marshalReflect handles slices, arrays and string-keyed maps of any element
// type. They have no identity and are copied.
func (a *Arena) marshalReflect(target interface{}) (*vm.Handle, error) {
	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return a.ctx.Null(), nil
		}
		items := make([]*vm.Handle, rv.Len())
		defer func() {
			for _, item := range items {
				vm.MayDispose(item)
			}
		}()
		for i := range items {
			item, err := a.marshal(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return a.ctx.NewArray(items...), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return a.ctx.Null(), nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)

		obj := a.ctx.NewObject()
		for _, k := range keys {
			value := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
			if err := a.setProp(obj, k, value); err != nil {
				obj.Dispose()
				return nil, err
			}
		}
		return obj, nil

	case reflect.Ptr:
		if rv.IsNil() {
			return a.ctx.Null(), nil
		}
	}
	return nil, fmt.Errorf("marshal %T: %w", target, ErrUnsupported)
}

func (a *Arena) setProp(obj *vm.Handle, key interface{}, value interface{}) error {
	h, err := a.marshal(value)
	if err != nil {
		return err
	}
	defer vm.MayDispose(h)
	return a.ctx.SetProp(obj, key, h)
}
