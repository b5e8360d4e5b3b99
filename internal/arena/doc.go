/*
Package arena ties the identity map, the function marshaller and the wrap
protocol together into a two-way bridge for one VM context.

	a, err := arena.New(vmctx, arena.Options{})
	if err != nil {
		return err
	}
	defer a.Dispose()

	a.Expose(map[string]interface{}{"greet": greet})
	v, err := a.EvalCode(context.Background(), `greet("world")`)

Marshal and Unmarshal apply the default policy: primitives are copied,
slices and maps are copied, and objects, functions, symbols and promises keep
their identity across the boundary. Host objects reach the VM behind a wrapper
proxy, so enabling Sync on one makes writes on either side visible on the
other.
*/
package arena
