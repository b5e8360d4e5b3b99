package host

import (
	"context"
	"fmt"
	"sync"
)

// PromiseState is the settlement state of a Promise
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Promise is a host-side eventual value. It settles at most once and may be
// awaited from any goroutine.
type Promise struct {
	mu     sync.Mutex
	state  PromiseState
	result interface{}
	done   chan struct{}
}

// NewPromise creates a pending promise together with its resolving functions
func NewPromise() (p *Promise, resolve func(interface{}), reject func(interface{})) {
	p = &Promise{done: make(chan struct{})}
	return p, func(v interface{}) { p.settle(Fulfilled, v) }, func(v interface{}) { p.settle(Rejected, v) }
}

// Resolved creates a promise fulfilled with v
func Resolved(v interface{}) *Promise {
	p, resolve, _ := NewPromise()
	resolve(v)
	return p
}

// RejectedWith creates a promise rejected with reason
func RejectedWith(reason interface{}) *Promise {
	p, _, reject := NewPromise()
	reject(reason)
	return p
}

func (p *Promise) settle(state PromiseState, v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return
	}
	p.state = state
	p.result = v
	close(p.done)
}

// State returns the current settlement state
func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the fulfillment value or rejection reason, nil while pending
func (p *Promise) Result() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Await blocks until the promise settles or ctx is done. A rejection is
// returned as a *RejectionError.
func (p *Promise) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Rejected {
		return nil, &RejectionError{Reason: p.result}
	}
	return p.result, nil
}

// RejectionError carries the reason of a rejected promise
type RejectionError struct {
	Reason interface{}
}

func (e *RejectionError) Error() string {
	if err, ok := e.Reason.(error); ok {
		return "promise rejected: " + err.Error()
	}
	return fmt.Sprintf("promise rejected: %v", e.Reason)
}

func (e *RejectionError) Unwrap() error {
	err, _ := e.Reason.(error)
	return err
}
