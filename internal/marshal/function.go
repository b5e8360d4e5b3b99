package marshal

import (
	"fmt"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

// MarshalFunc converts a host value into a VM handle. The caller owns the
// returned handle unless it is pinned or static.
type MarshalFunc func(target interface{}) *vm.Handle

// UnmarshalFunc converts a VM handle into a host value. The handle is
// borrowed: an implementation that keeps it must Dup it.
type UnmarshalFunc func(handle *vm.Handle) interface{}

// PreMarshalFunc is called with the projection before any property is
// marshalled, so a cyclic reference back to target already finds it.
type PreMarshalFunc func(target interface{}, handle *vm.Handle)

// projection is a sloppy-mode function so that `this` of a plain call is the
// global object, like any script function.
const projection = `(raw, construct) => function (...args) {
	return new.target && construct ? construct.apply(this, args) : raw.apply(this, args);
}`

// Function projects a host function into the VM.
//
// It returns nil without calling any hook when target is not a
// *host.Function. The projection is callable with the host function's name
// and length, mirrors its own properties, and is a constructor when target is
// a class. With a symbolKey the plain callable is also installed on the
// projection under that symbol; that slot cannot be used with `new`.
func Function(ctx *vm.Context, target interface{}, marshal MarshalFunc, unmarshal UnmarshalFunc, preMarshal PreMarshalFunc, symbolKey *vm.Handle) (*vm.Handle, error) {
	fn, ok := target.(*host.Function)
	if !ok || fn == nil {
		return nil, nil
	}

	raw := ctx.NewFunction(fn.Name(), func(this *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		that := unmarshal(this)
		values := unmarshalAll(unmarshal, args)
		res, err := fn.Call(that, values...)
		if err != nil {
			return nil, err
		}
		return marshal(res), nil
	})
	defer raw.Dispose()

	construct := ctx.Null()
	if fn.IsClass() {
		construct = ctx.NewFunction(fn.Name(), func(this *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
			instance, err := fn.Construct(unmarshalAll(unmarshal, args)...)
			if err != nil {
				return nil, err
			}
			for _, key := range instance.Keys() {
				value := marshal(instance.Value(key))
				err := ctx.SetProp(this, key, value)
				vm.MayDispose(value)
				if err != nil {
					return nil, err
				}
			}
			return ctx.Undefined(), nil
		})
		defer construct.Dispose()
	}

	handle, err := ctx.Call(projection, nil, raw, construct)
	if err != nil {
		return nil, fmt.Errorf("failed to project %s: %w", fn.Name(), err)
	}

	if preMarshal != nil {
		preMarshal(target, handle)
	}

	if err := describe(ctx, handle, fn, marshal); err != nil {
		handle.Dispose()
		return nil, err
	}

	if symbolKey != nil {
		if err := ctx.SetProp(handle, symbolKey, raw); err != nil {
			handle.Dispose()
			return nil, fmt.Errorf("failed to install %s under symbol: %w", fn.Name(), err)
		}
	}
	return handle, nil
}

// describe copies length, name and the own properties of fn onto handle
func describe(ctx *vm.Context, handle *vm.Handle, fn *host.Function, marshal MarshalFunc) error {
	length := marshal(fn.Length())
	err := ctx.DefineProp(handle, "length", length)
	vm.MayDispose(length)
	if err != nil {
		return fmt.Errorf("failed to set length of %s: %w", fn.Name(), err)
	}

	name := marshal(fn.Name())
	err = ctx.DefineProp(handle, "name", name)
	vm.MayDispose(name)
	if err != nil {
		return fmt.Errorf("failed to set name of %s: %w", fn.Name(), err)
	}

	for _, key := range fn.Keys() {
		value := marshal(fn.Value(key))
		err := ctx.SetProp(handle, key, value)
		vm.MayDispose(value)
		if err != nil {
			return fmt.Errorf("failed to set %s.%s: %w", fn.Name(), key, err)
		}
	}

	for _, sym := range fn.Symbols() {
		key := marshal(sym)
		value := marshal(fn.Value(sym))
		err := ctx.SetProp(handle, key, value)
		vm.MayDispose(value)
		vm.MayDispose(key)
		if err != nil {
			return fmt.Errorf("failed to set %s[%s]: %w", fn.Name(), sym, err)
		}
	}
	return nil
}

func unmarshalAll(unmarshal UnmarshalFunc, args []*vm.Handle) []interface{} {
	values := make([]interface{}, len(args))
	for i, arg := range args {
		values[i] = unmarshal(arg)
	}
	return values
}
