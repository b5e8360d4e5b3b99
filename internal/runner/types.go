package runner

import (
	"time"

	"github.com/GriffinCanCode/vmsync/internal/wrap"
)

// Config defines what a script may reach on the host
type Config struct {
	EnableConsole  bool          // Expose console.log/warn/error/info and print
	Env            []string      // Environment variables readable through host.env
	SyncMode       wrap.SyncMode // Sync mode of exposed host objects
	Concurrency    int           // Scripts run at once by RunAll
	MaxArrayLength int           // Longest array a script may return; 0 uses the arena default
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{
		EnableConsole: true,
		SyncMode:      wrap.SyncBoth,
		Concurrency:   4,
	}
}

// Script is a named piece of source code
type Script struct {
	Name   string
	Source string
}

// Result holds the outcome of one script
type Result struct {
	Script   string        `json:"script"`
	Value    interface{}   `json:"value"`
	Console  []LogEntry    `json:"console,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"` // log, warn, error, info
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
