package vm

import (
	"errors"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
)

// NewFunction creates a VM function backed by fn. The function is callable but
// not a constructor: `new` on it throws a TypeError.
func (c *Context) NewFunction(name string, fn HostCall) *Handle {
	gen := c.gen
	native := func(call goja.FunctionCall) goja.Value {
		if c.closed || gen != c.gen {
			panic(c.rt.NewTypeError("host function %s outlived its context", name))
		}

		this := c.newHandle(call.This)
		args := make([]*Handle, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = c.newHandle(arg)
		}
		defer func() {
			this.Dispose()
			for _, arg := range args {
				arg.Dispose()
			}
		}()

		start := time.Now()
		res, err := fn(this, args)
		c.metrics.RecordHostCall(name, monitoring.Status(err), time.Since(start))

		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex)
			}
			c.logger.Debug("Host function failed", zap.String("function", name), zap.Error(err))
			panic(c.rt.NewGoError(err))
		}

		result := valueOf(res)
		MayDispose(res)
		return result
	}

	obj := c.rt.ToValue(native).(*goja.Object)
	if err := obj.DefineDataProperty("name", c.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		c.logger.Debug("Failed to name host function", zap.String("function", name), zap.Error(err))
	}
	return c.newHandle(obj)
}
