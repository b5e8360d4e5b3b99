package arena

import (
	"github.com/GriffinCanCode/vmsync/internal/host"
	"github.com/GriffinCanCode/vmsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

// Options controls how values cross the boundary
type Options struct {
	// IsMarshalable rejects host values that must not enter the VM. Rejected
	// values marshal to undefined.
	IsMarshalable func(target interface{}) bool

	// SyncMode picks the sync mode of a wrapped value. Values passed to
	// Arena.Sync always sync both ways.
	SyncMode func(target interface{}) wrap.SyncMode

	// Wrappable rejects host objects that must not be wrapped
	Wrappable func(target interface{}) bool

	// RegisteredObjects maps host values to VM expressions evaluated once, so
	// they round-trip as the VM's own values. nil uses DefaultRegisteredObjects.
	RegisteredObjects map[interface{}]string

	// MaxArrayLength caps the length of VM arrays being unmarshalled. Longer
	// arrays fail with ErrArrayTooLong. Zero uses DefaultMaxArrayLength.
	MaxArrayLength int
}

// DefaultMaxArrayLength is the array length cap used when none is set
const DefaultMaxArrayLength = 1 << 20

// DefaultRegisteredObjects pairs the well-known host symbols with the VM's.
// Symbol.asyncIterator is left out: goja does not define it.
func DefaultRegisteredObjects() map[interface{}]string {
	return map[interface{}]string{
		host.SymbolIterator:      "Symbol.iterator",
		host.SymbolHasInstance:   "Symbol.hasInstance",
		host.SymbolToPrimitive:   "Symbol.toPrimitive",
		host.SymbolToStringTag:   "Symbol.toStringTag",
	}
}

// Option configures an Arena
type Option func(*Arena)

// WithLogger sets the arena logger
func WithLogger(logger *logging.Logger) Option {
	return func(a *Arena) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(a *Arena) {
		a.metrics = metrics
	}
}
