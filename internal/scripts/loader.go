package scripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vmsync/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/vmsync/internal/logging"
	"github.com/GriffinCanCode/vmsync/internal/runner"
)

var (
	ErrNoScripts   = errors.New("no scripts matched")
	ErrNotText     = errors.New("not a text file")
	ErrFetchFailed = errors.New("fetch failed")
)

// Extensions recognised when a source is a directory
var Extensions = []string{".js", ".mjs", ".cjs", ".js.gz", ".js.zst"}

// Config defines loader behavior
type Config struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	MaxBytes     int64         // Per-script size cap, 0 disables it
	TripAfter    uint32        // Consecutive failed fetches that open a host's breaker
	OpenTimeout  time.Duration // How long an open breaker rejects fetches
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		RetryMax:     3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
		MaxBytes:     8 << 20,
		TripAfter:    3,
		OpenTimeout:  30 * time.Second,
	}
}

// Loader resolves script sources: doublestar globs, directories walked for
// script files, and http(s) URLs. Files ending in .gz or .zst are
// decompressed. Remote hosts that keep failing are cut off by a per-host
// circuit breaker.
type Loader struct {
	config   Config
	client   *retryablehttp.Client
	breakers *resilience.Group
	logger   *logging.Logger
}

// NewLoader creates a script loader
func NewLoader(config Config, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = config.RetryWaitMin
	client.RetryWaitMax = config.RetryWaitMax
	client.Logger = nil

	logger = logger.Named("loader")
	tripAfter := config.TripAfter
	if tripAfter == 0 {
		tripAfter = 3
	}
	breakers := resilience.NewGroup(resilience.Settings{
		Timeout: config.OpenTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("Host breaker state changed",
				zap.String("host", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Loader{
		config:   config,
		client:   client,
		breakers: breakers,
		logger:   logger,
	}
}

// Load resolves every source into scripts, sorted by name and deduplicated
func (l *Loader) Load(ctx context.Context, sources ...string) ([]runner.Script, error) {
	seen := make(map[string]bool)
	var out []runner.Script

	for _, source := range sources {
		names, err := l.resolve(ctx, source)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true

			src, err := l.read(ctx, name)
			if errors.Is(err, ErrNotText) {
				l.logger.Debug("Skipping non-text file", zap.String("path", name))
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, runner.Script{Name: name, Source: src})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoScripts, strings.Join(sources, ", "))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	l.logger.Debug("Loaded scripts", zap.Int("count", len(out)))
	return out, nil
}

// resolve expands a source into script names
func (l *Loader) resolve(ctx context.Context, source string) ([]string, error) {
	if isURL(source) {
		return []string{source}, nil
	}

	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		return l.walk(ctx, source)
	}

	matches, err := doublestar.FilepathGlob(source)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", source, err)
	}
	return matches, nil
}

// walk collects script files under root
func (l *Loader) walk(ctx context.Context, root string) ([]string, error) {
	var (
		mu      sync.Mutex
		matches []string
	)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}
		if hasScriptExtension(p) {
			mu.Lock()
			matches = append(matches, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return matches, nil
}

func (l *Loader) read(ctx context.Context, name string) (string, error) {
	var (
		body io.ReadCloser
		err  error
	)
	if isURL(name) {
		body, err = l.fetch(ctx, name)
	} else {
		body, err = os.Open(name)
	}
	if err != nil {
		return "", err
	}
	defer body.Close()

	r, closeFn, err := decompress(name, body)
	if err != nil {
		return "", fmt.Errorf("decompress %s: %w", name, err)
	}
	defer closeFn()

	if l.config.MaxBytes > 0 {
		r = io.LimitReader(r, l.config.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if l.config.MaxBytes > 0 && int64(len(data)) > l.config.MaxBytes {
		return "", fmt.Errorf("read %s: script exceeds %d bytes", name, l.config.MaxBytes)
	}
	if !isText(data) {
		return "", ErrNotText
	}
	return string(data), nil
}

func (l *Loader) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	var (
		body   io.ReadCloser
		status int
	)
	err = l.breakers.Get(req.URL.Host).Do(ctx, func(context.Context) error {
		resp, err := l.client.Do(req)
		if err != nil {
			return err
		}
		status = resp.StatusCode
		if status != http.StatusOK {
			resp.Body.Close()
			if status >= 500 {
				return fmt.Errorf("%w: status %d", ErrFetchFailed, status)
			}
			return nil
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, url, status)
	}
	return body, nil
}

func decompress(name string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	return r, func() {}, nil
}

// isText reports whether data is detected as text/plain or one of its children
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func hasScriptExtension(path string) bool {
	base := filepath.Base(path)
	for _, ext := range Extensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
