package host

import (
	"errors"
	"fmt"
)

var (
	ErrClassCall      = errors.New("class constructor cannot be invoked without 'new'")
	ErrNotConstructor = errors.New("not a constructor")
)

// CallFunc implements a host function. this is the receiver, nil when the
// function is called without one.
type CallFunc func(this interface{}, args ...interface{}) (interface{}, error)

// InitFunc is a class constructor body. It assigns fields on the new instance.
type InitFunc func(this *Object, args ...interface{}) error

// Function is a host callable. Like any JS function it also carries its own
// properties, reachable through the embedded Object.
type Function struct {
	Object

	name   string
	length int
	call   CallFunc
	init   InitFunc
}

// NewFunction creates a plain host function with a declared parameter count
func NewFunction(name string, length int, fn CallFunc) *Function {
	return &Function{name: name, length: length, call: fn}
}

// NewClass creates a host class. Instances are created with Construct and
// initialized by init.
func NewClass(name string, length int, init InitFunc) *Function {
	if init == nil {
		init = func(*Object, ...interface{}) error { return nil }
	}
	return &Function{name: name, length: length, init: init}
}

// Name returns the function name
func (f *Function) Name() string {
	return f.name
}

// Length returns the declared parameter count
func (f *Function) Length() int {
	return f.length
}

// IsClass reports whether the function can be used with `new`
func (f *Function) IsClass() bool {
	return f.init != nil
}

// Call invokes the function with the given receiver
func (f *Function) Call(this interface{}, args ...interface{}) (interface{}, error) {
	if f.call == nil {
		if f.init != nil {
			return nil, fmt.Errorf("%s: %w", f.name, ErrClassCall)
		}
		return nil, nil
	}
	return f.call(this, args...)
}

// Construct creates a new instance of a class
func (f *Function) Construct(args ...interface{}) (*Object, error) {
	if f.init == nil {
		return nil, fmt.Errorf("%s: %w", f.name, ErrNotConstructor)
	}
	obj := &Object{class: f}
	if err := f.init(obj, args...); err != nil {
		return nil, err
	}
	return obj, nil
}

func (f *Function) String() string {
	if f.IsClass() {
		return fmt.Sprintf("class %s", f.name)
	}
	return fmt.Sprintf("function %s()", f.name)
}
