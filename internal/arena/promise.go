package arena

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/vm"
)

const deferred = `() => {
	let resolve, reject;
	const promise = new Promise((res, rej) => { resolve = res; reject = rej; });
	return { promise, resolve, reject };
}`

const subscribe = `(p, onFulfilled, onRejected) => { p.then(onFulfilled, onRejected); }`

// pendingPromise links a host promise to the resolving functions of its VM
// counterpart until the host promise settles
type pendingPromise struct {
	promise *host.Promise
	resolve *vm.Handle
	reject  *vm.Handle
}

func (p *pendingPromise) dispose() {
	p.resolve.Dispose()
	p.reject.Dispose()
}

// marshalPromise creates a VM promise for a host promise. A promise that is
// still pending is settled in the VM by Settle once the host side settles.
func (a *Arena) marshalPromise(p *host.Promise) (*vm.Handle, error) {
	d, err := a.ctx.Call(deferred, nil)
	if err != nil {
		return nil, fmt.Errorf("create promise: %w", err)
	}
	defer d.Dispose()

	promise, err := a.ctx.GetProp(d, "promise")
	if err != nil {
		return nil, err
	}
	resolve, err := a.ctx.GetProp(d, "resolve")
	if err != nil {
		promise.Dispose()
		return nil, err
	}
	reject, err := a.ctx.GetProp(d, "reject")
	if err != nil {
		promise.Dispose()
		resolve.Dispose()
		return nil, err
	}

	a.m.Set(p, promise)
	pending := &pendingPromise{promise: p, resolve: resolve, reject: reject}
	if p.State() == host.Pending {
		a.pending = append(a.pending, pending)
		return promise, nil
	}
	a.settle(pending)
	return promise, nil
}

// Settle settles the VM counterparts of host promises that have settled.
// EvalCode calls it before running code.
func (a *Arena) Settle() {
	if a.disposed || len(a.pending) == 0 {
		return
	}
	release := a.ctx.Guard(context.Background())
	defer release()

	remaining := a.pending[:0]
	for _, p := range a.pending {
		if p.promise.State() == host.Pending {
			remaining = append(remaining, p)
			continue
		}
		a.settle(p)
	}
	a.pending = remaining
}

// Pending returns the number of host promises not yet settled in the VM
func (a *Arena) Pending() int {
	return len(a.pending)
}

func (a *Arena) settle(p *pendingPromise) {
	defer p.dispose()

	fn := p.resolve
	if p.promise.State() == host.Rejected {
		fn = p.reject
	}
	value := a.marshalHook(p.promise.Result())
	defer vm.MayDispose(value)

	res, err := a.ctx.CallFunction(fn, a.ctx.Undefined(), value)
	if err != nil {
		a.logger.Warn("Failed to settle promise", zap.Error(err))
		return
	}
	res.Dispose()
}

// unmarshalPromise creates a host promise for a VM promise. A pending VM
// promise settles the host promise from the VM's job queue.
func (a *Arena) unmarshalPromise(h *vm.Handle) (*host.Promise, error) {
	state, result, _ := a.ctx.PromiseState(h)
	switch state {
	case vm.PromiseFulfilled:
		return host.Resolved(a.consume(result)), nil
	case vm.PromiseRejected:
		return host.RejectedWith(a.consume(result)), nil
	}

	p, resolve, reject := host.NewPromise()
	onFulfilled := a.ctx.NewFunction("onFulfilled", func(_ *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		resolve(a.unmarshalHook(firstArg(a.ctx, args)))
		return a.ctx.Undefined(), nil
	})
	defer onFulfilled.Dispose()
	onRejected := a.ctx.NewFunction("onRejected", func(_ *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		reject(a.unmarshalHook(firstArg(a.ctx, args)))
		return a.ctx.Undefined(), nil
	})
	defer onRejected.Dispose()

	res, err := a.ctx.Call(subscribe, nil, h, onFulfilled, onRejected)
	if err != nil {
		return nil, fmt.Errorf("subscribe to promise: %w", err)
	}
	res.Dispose()
	return p, nil
}

// consume unmarshals a handle and disposes it
func (a *Arena) consume(h *vm.Handle) interface{} {
	return vm.Consume(h, a.unmarshalHook)
}

func firstArg(ctx *vm.Context, args []*vm.Handle) *vm.Handle {
	if len(args) == 0 {
		return ctx.Undefined()
	}
	return args[0]
}
