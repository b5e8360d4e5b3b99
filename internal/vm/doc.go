/*
Package vm exposes a goja JavaScript runtime through opaque, disposable handles.

# Overview

Values inside the VM are never handed out directly. Every value crosses into
host code as a *Handle that can be disposed and reports whether it is still
alive. This is the collaborator API the bridge packages (vmmap, marshal,
wrap, arena) are written against:

  - Create handles for primitives, objects, arrays, symbols and dates
  - Get, set, define and delete properties by string or symbol key
  - Query a handle's typeof tag and Promise/Date/Array shape
  - Call a handle as a function or as a constructor
  - Dump a handle into a host value
  - Evaluate inline helper snippets (cached per context)

# Handle Lifetime

Handles issued by a Context are counted until disposed; LiveHandles exposes
the count so tests can assert that marshalling code releases what it
allocates. Undefined, Null, Global, True and False are static and ignore
Dispose. A handle can be pinned by a long-lived owner (the identity map);
MayDispose skips pinned handles so transient consumers do not release a value
somebody else owns.

# Execution Limits

EvalCode arms a watchdog that interrupts the runtime when the configured
timeout elapses or the caller's context is cancelled, as the browser sandbox
did for page scripts.

# Usage Example

	c, err := vm.New(vm.DefaultConfig(), vm.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	add := c.NewFunction("add", func(this *vm.Handle, args []*vm.Handle) (*vm.Handle, error) {
		a, _ := c.Dump(args[0]).(int64)
		b, _ := c.Dump(args[1]).(int64)
		return c.NewNumber(float64(a + b)), nil
	})
	defer add.Dispose()
*/
package vm
