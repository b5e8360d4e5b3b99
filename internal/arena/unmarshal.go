package arena

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

const (
	isError      = `a => a instanceof Error`
	errorFields  = `e => [String(e.name), String(e.message), String(e.stack ?? "")]`
	symbolDesc   = `s => s.description ?? ""`
	arrayLength  = `a => a.length`
	functionInfo = `f => [String(f.name), f.length]`
)

// ScriptError is a VM Error object seen from the host
type ScriptError struct {
	Name    string
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Unmarshal converts a handle into a host value. The handle is borrowed.
//
// undefined, null and the global object become nil, primitives become Go
// values, dates become time.Time and arrays become []interface{}. Objects,
// functions, symbols, promises and errors become host values recorded in the
// identity map, so unmarshalling the same VM value again returns the same
// host value.
func (a *Arena) Unmarshal(h *vm.Handle) (interface{}, error) {
	if a.disposed {
		return nil, ErrDisposed
	}
	if !h.Alive() {
		return nil, fmt.Errorf("unmarshal: handle is not alive")
	}
	release := a.ctx.Guard(context.Background())
	defer release()
	return a.unmarshalChecked(h)
}

// unmarshalChecked fails when the watchdog fired during unmarshalling, even
// if a predicate helper swallowed the interrupt and a partial value was built
func (a *Arena) unmarshalChecked(h *vm.Handle) (interface{}, error) {
	v, err := a.unmarshal(h)
	if err != nil {
		return nil, err
	}
	if err := a.ctx.Interrupted(); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}

func (a *Arena) unmarshalHook(h *vm.Handle) interface{} {
	v, err := a.unmarshal(h)
	if err != nil {
		a.logger.Warn("Failed to unmarshal value", zap.String("type", a.ctx.TypeOf(h)), zap.Error(err))
		return nil
	}
	return v
}

func (a *Arena) unmarshal(h *vm.Handle) (interface{}, error) {
	if err := a.ctx.Interrupted(); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if target, ok := a.m.GetByHandle(h); ok {
		return target, nil
	}

	if inner, ok := wrap.UnwrapHandle(a.ctx, h, a.keyHandle); ok {
		defer inner.Dispose()
		h = inner
		if target, ok := a.m.GetByHandle(h); ok {
			return target, nil
		}
	}

	switch a.ctx.TypeOf(h) {
	case "undefined":
		return nil, nil
	case "symbol":
		return a.unmarshalSymbol(h)
	case "function":
		return a.unmarshalFunction(h)
	case "object":
		if !a.ctx.IsObject(h) {
			return nil, nil
		}
		return a.unmarshalObject(h)
	}
	return a.ctx.Dump(h), nil
}

func (a *Arena) unmarshalSymbol(h *vm.Handle) (interface{}, error) {
	desc, err := a.ctx.Call(symbolDesc, nil, h)
	if err != nil {
		return nil, err
	}
	sym := host.NewSymbol(vm.Consume(desc, a.dumpString))
	a.m.Set(sym, h.Dup())
	return sym, nil
}

// unmarshalFunction creates a host function that calls back into the VM
func (a *Arena) unmarshalFunction(h *vm.Handle) (interface{}, error) {
	info, err := a.ctx.Call(functionInfo, nil, h)
	if err != nil {
		return nil, err
	}
	fields := vm.Consume(info, a.ctx.Dump)
	name, length := "", 0
	if list, ok := fields.([]interface{}); ok && len(list) == 2 {
		name, _ = list[0].(string)
		length = toInt(list[1])
	}

	ref := h.Dup()
	fn := host.NewFunction(name, length, func(this interface{}, args ...interface{}) (interface{}, error) {
		return a.call(ref, this, args)
	})
	a.m.Set(fn, ref)

	if err := a.copyProps(h, &fn.Object); err != nil {
		return nil, err
	}
	return fn, nil
}

// call invokes a VM function from the host
func (a *Arena) call(fn *vm.Handle, this interface{}, args []interface{}) (interface{}, error) {
	if a.disposed {
		return nil, ErrDisposed
	}
	if !fn.Alive() {
		return nil, fmt.Errorf("call: function handle is not alive")
	}
	release := a.ctx.Guard(context.Background())
	defer release()

	thisHandle, err := a.marshal(this)
	if err != nil {
		return nil, err
	}
	defer vm.MayDispose(thisHandle)

	handles := make([]*vm.Handle, 0, len(args))
	defer func() {
		for _, h := range handles {
			vm.MayDispose(h)
		}
	}()
	for _, arg := range args {
		h, err := a.marshal(arg)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	res, err := a.ctx.CallFunction(fn, thisHandle, handles...)
	if err != nil {
		return nil, err
	}
	defer res.Dispose()
	return a.unmarshal(res)
}

func (a *Arena) unmarshalObject(h *vm.Handle) (interface{}, error) {
	if a.ctx.SameValue(h, a.ctx.Global()) {
		return nil, nil
	}
	if a.ctx.IsDate(h) {
		if t, ok := a.ctx.Dump(h).(time.Time); ok {
			return t, nil
		}
	}
	if a.ctx.IsArray(h) {
		return a.unmarshalArray(h)
	}
	if a.ctx.IsPromise(h) {
		p, err := a.unmarshalPromise(h)
		if err != nil {
			return nil, err
		}
		a.m.Set(p, h.Dup())
		return p, nil
	}
	if a.ctx.Test(isError, h) {
		return a.unmarshalError(h)
	}

	obj := host.NewObject()
	a.m.Set(obj, h.Dup())
	if err := a.copyProps(h, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// unmarshalArray copies the elements of a VM array. Arrays are not
// identity-mapped, so a reference back to an array still being copied
// becomes nil. Arrays longer than the configured maximum are rejected before
// anything is allocated.
func (a *Arena) unmarshalArray(h *vm.Handle) (interface{}, error) {
	for _, open := range a.arrays {
		if a.ctx.SameValue(open, h) {
			return nil, nil
		}
	}
	a.arrays = append(a.arrays, h)
	defer func() { a.arrays = a.arrays[:len(a.arrays)-1] }()

	length, err := a.ctx.Call(arrayLength, nil, h)
	if err != nil {
		return nil, err
	}
	n := toInt(vm.Consume(length, a.ctx.Dump))
	if limit := a.maxArrayLength(); n > limit {
		return nil, fmt.Errorf("unmarshal array of length %d: %w (max %d)", n, ErrArrayTooLong, limit)
	}

	items := make([]interface{}, n)
	for i := range items {
		item, err := a.ctx.GetProp(h, fmt.Sprint(i))
		if err != nil {
			return nil, err
		}
		v, err := a.unmarshal(item)
		item.Dispose()
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

func (a *Arena) unmarshalError(h *vm.Handle) (interface{}, error) {
	fields, err := a.ctx.Call(errorFields, nil, h)
	if err != nil {
		return nil, err
	}
	list, _ := vm.Consume(fields, a.ctx.Dump).([]interface{})

	e := &ScriptError{}
	if len(list) == 3 {
		e.Name, _ = list[0].(string)
		e.Message, _ = list[1].(string)
		e.Stack, _ = list[2].(string)
	}
	a.m.Set(e, h.Dup())
	return e, nil
}

// copyProps unmarshals the own enumerable string-keyed properties of h onto obj
func (a *Arena) copyProps(h *vm.Handle, obj *host.Object) error {
	keys, err := a.ctx.OwnKeys(h)
	if err != nil {
		return err
	}
	for _, key := range keys {
		prop, err := a.ctx.GetProp(h, key)
		if err != nil {
			return err
		}
		v, err := a.unmarshal(prop)
		prop.Dispose()
		if err != nil {
			return err
		}
		obj.Set(key, v)
	}
	return nil
}

func (a *Arena) maxArrayLength() int {
	if a.options.MaxArrayLength > 0 {
		return a.options.MaxArrayLength
	}
	return DefaultMaxArrayLength
}

func (a *Arena) dumpString(h *vm.Handle) string {
	s, _ := a.ctx.Dump(h).(string)
	return s
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
