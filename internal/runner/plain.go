package runner

import (
	"math"
	"time"

	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

// Plain converts a host value into plain data that encodes as JSON.
// Functions become their name, symbols their description, promises their
// settled result, non-finite numbers their JS spelling, and cycles are cut
// with "[Circular]".
func Plain(v interface{}) interface{} {
	return plain(v, map[interface{}]bool{})
}

func plain(v interface{}, seen map[interface{}]bool) interface{} {
	switch x := v.(type) {
	case nil, bool, string, int64, int:
		return x
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Infinity"
		case math.IsInf(x, -1):
			return "-Infinity"
		}
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		return x.Format(time.RFC3339Nano)
	case *host.Symbol:
		return x.String()
	case *host.Function:
		return "[Function: " + x.Name() + "]"
	case *host.Promise:
		if x.State() == host.Pending {
			return "[Promise: pending]"
		}
		if x.State() == host.Rejected {
			return map[string]interface{}{"rejected": plain(x.Result(), seen)}
		}
		return plain(x.Result(), seen)
	case *wrap.Wrapped:
		return plain(x.Payload(), seen)
	case error:
		return x.Error()
	case []interface{}:
		if len(x) > 0 {
			if seen[&x[0]] {
				return "[Circular]"
			}
			seen[&x[0]] = true
			defer delete(seen, &x[0])
		}
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = plain(e, seen)
		}
		return out
	case *host.Object:
		if seen[x] {
			return "[Circular]"
		}
		seen[x] = true
		defer delete(seen, x)

		out := make(map[string]interface{}, x.Len())
		for _, k := range x.Keys() {
			out[k] = plain(x.Value(k), seen)
		}
		return out
	}
	return v
}
