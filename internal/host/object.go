package host

import (
	"fmt"
	"time"
)

// Symbol is a host-side unique property key. Two symbols are equal only if
// they are the same pointer.
type Symbol struct {
	description string
}

// NewSymbol creates a unique symbol
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

// Description returns the symbol's description
func (s *Symbol) Description() string {
	return s.description
}

func (s *Symbol) String() string {
	return fmt.Sprintf("Symbol(%s)", s.description)
}

// Object is a host composite value with identity. Own properties are keyed by
// a string or a *Symbol and remember insertion order.
type Object struct {
	keys  []interface{}
	props map[interface{}]interface{}
	class *Function
}

// NewObject creates an empty plain object
func NewObject() *Object {
	return &Object{}
}

// ObjectFrom creates a plain object holding the given string-keyed values,
// inserted in sorted key order.
func ObjectFrom(values map[string]interface{}) *Object {
	o := NewObject()
	for _, k := range sortedKeys(values) {
		o.Set(k, values[k])
	}
	return o
}

// Get returns the own property for key
func (o *Object) Get(key interface{}) (interface{}, bool) {
	if o.props == nil {
		return nil, false
	}
	v, ok := o.props[key]
	return v, ok
}

// Value returns the own property for key, or nil when absent
func (o *Object) Value(key interface{}) interface{} {
	v, _ := o.Get(key)
	return v
}

// Has reports whether key is an own property
func (o *Object) Has(key interface{}) bool {
	_, ok := o.Get(key)
	return ok
}

// Set creates or replaces an own property. Keys must be a string or a *Symbol;
// other keys are ignored.
func (o *Object) Set(key, value interface{}) {
	if !validKey(key) {
		return
	}
	if o.props == nil {
		o.props = make(map[interface{}]interface{})
	}
	if _, exists := o.props[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.props[key] = value
}

// Delete removes an own property
func (o *Object) Delete(key interface{}) {
	if _, ok := o.props[key]; !ok {
		return
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the own string keys in insertion order
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys
}

// Symbols returns the own symbol keys in insertion order
func (o *Object) Symbols() []*Symbol {
	var syms []*Symbol
	for _, k := range o.keys {
		if s, ok := k.(*Symbol); ok {
			syms = append(syms, s)
		}
	}
	return syms
}

// Len returns the number of own properties
func (o *Object) Len() int {
	return len(o.keys)
}

// Class returns the constructor that produced the object, nil for plain objects
func (o *Object) Class() *Function {
	return o.class
}

// InstanceOf reports whether cls constructed the object
func (o *Object) InstanceOf(cls *Function) bool {
	return cls != nil && o.class == cls
}

func validKey(key interface{}) bool {
	switch key.(type) {
	case string, *Symbol:
		return true
	}
	return false
}

// IsObject reports whether v is a host value with object identity
func IsObject(v interface{}) bool {
	switch v.(type) {
	case *Object, *Function, *Promise, time.Time, *time.Time:
		return true
	}
	return false
}

// IsCallable reports whether v can be projected as a function
func IsCallable(v interface{}) bool {
	f, ok := v.(*Function)
	return ok && f != nil
}

// IsDate reports whether v is a date value
func IsDate(v interface{}) bool {
	switch v.(type) {
	case time.Time, *time.Time:
		return true
	}
	return false
}

// IsPromise reports whether v is a host promise
func IsPromise(v interface{}) bool {
	_, ok := v.(*Promise)
	return ok
}

// Well-known symbols. An arena registers them with their VM counterparts so
// they round-trip as the same symbol.
var (
	SymbolIterator      = NewSymbol("Symbol.iterator")
	SymbolAsyncIterator = NewSymbol("Symbol.asyncIterator")
	SymbolHasInstance   = NewSymbol("Symbol.hasInstance")
	SymbolToPrimitive   = NewSymbol("Symbol.toPrimitive")
	SymbolToStringTag   = NewSymbol("Symbol.toStringTag")
)
