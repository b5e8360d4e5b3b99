package wrap

import (
	"fmt"

	"github.com/GriffinCanCode/vmsync/internal/vm"
)

// proxy builds the VM wrapper. Reading sym yields the target; writes and
// deletes are applied to the target and/or reported to the host depending on
// the sync mode returned by sync, "vm" when it has no opinion.
const proxy = `(target, sym, setter, deleter, sync) => {
	const unwrap = v => (v !== null && (typeof v === "object" || typeof v === "function")) ? (v[sym] ?? v) : v;
	const modeOf = p => (typeof sync === "function" && sync(p)) || "vm";
	const p = new Proxy(target, {
		get(obj, key) {
			return key === sym ? obj : Reflect.get(obj, key);
		},
		set(obj, key, value) {
			const v = unwrap(value);
			const mode = modeOf(p);
			if (mode === "host" || Reflect.set(obj, key, v)) {
				if (mode !== "vm") setter(p, key, v);
			}
			return true;
		},
		deleteProperty(obj, key) {
			const mode = modeOf(p);
			if (mode === "host" || Reflect.deleteProperty(obj, key)) {
				if (mode !== "vm") deleter(p, key);
			}
			return true;
		},
	});
	return p;
}`

const isWrappedHandle = `(a, s) => !(a instanceof Promise) && !(a instanceof Date) &&
	((typeof a === "object" && a !== null) || typeof a === "function") && !!a[s]`

// UnmarshalFunc converts a borrowed handle into a host value
type UnmarshalFunc func(handle *vm.Handle) interface{}

// WrapHandle tags a VM object with keyHandle by wrapping it in a proxy that
// reports writes back to the host value it unmarshals to.
//
// It returns nil for non-objects, promises, dates and handles rejected by
// wrappable. An already wrapped handle is returned as is with false; a new
// wrapper is returned with true and is owned by the caller.
func WrapHandle(
	ctx *vm.Context,
	handle *vm.Handle,
	keyHandle *vm.Handle,
	unmarshal UnmarshalFunc,
	syncModeOf func(handle *vm.Handle) SyncMode,
	wrappable func(handle *vm.Handle) bool,
) (*vm.Handle, bool, error) {
	if !ctx.IsObject(handle) || ctx.IsPromise(handle) || ctx.IsDate(handle) {
		return nil, false, nil
	}
	if wrappable != nil && !wrappable(handle) {
		return nil, false, nil
	}
	if IsHandleWrapped(ctx, handle, keyHandle) {
		return handle, false, nil
	}

	setter := ctx.NewFunction("set", func(_ *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		if target, ok := unmarshal(arg(ctx, args, 0)).(Properties); ok {
			target.Set(unmarshal(arg(ctx, args, 1)), unmarshal(arg(ctx, args, 2)))
		}
		return ctx.Undefined(), nil
	})
	defer setter.Dispose()

	deleter := ctx.NewFunction("deleteProperty", func(_ *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		if target, ok := unmarshal(arg(ctx, args, 0)).(Properties); ok {
			target.Delete(unmarshal(arg(ctx, args, 1)))
		}
		return ctx.Undefined(), nil
	})
	defer deleter.Dispose()

	sync := ctx.Undefined()
	if syncModeOf != nil {
		sync = ctx.NewFunction("syncMode", func(_ *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
			if mode := syncModeOf(arg(ctx, args, 0)); mode.Valid() {
				return ctx.NewString(string(mode)), nil
			}
			return ctx.Undefined(), nil
		})
		defer sync.Dispose()
	}

	wrapped, err := ctx.Call(proxy, nil, handle, keyHandle, setter, deleter, sync)
	if err != nil {
		return nil, false, fmt.Errorf("failed to wrap handle: %w", err)
	}
	return wrapped, true, nil
}

// UnwrapHandle returns the target of a wrapped handle as a new handle and
// true. Other handles are returned unchanged with false.
func UnwrapHandle(ctx *vm.Context, handle, keyHandle *vm.Handle) (*vm.Handle, bool) {
	if !IsHandleWrapped(ctx, handle, keyHandle) {
		return handle, false
	}
	target, err := ctx.GetProp(handle, keyHandle)
	if err != nil {
		return handle, false
	}
	return target, true
}

// IsHandleWrapped reports whether handle is an object or function carrying
// keyHandle. Promises and dates never are.
func IsHandleWrapped(ctx *vm.Context, handle, keyHandle *vm.Handle) bool {
	if !ctx.IsObject(handle) || keyHandle == nil {
		return false
	}
	return ctx.Test(isWrappedHandle, handle, keyHandle)
}

func arg(ctx *vm.Context, args []*vm.Handle, i int) *vm.Handle {
	if i < len(args) {
		return args[i]
	}
	return ctx.Undefined()
}
