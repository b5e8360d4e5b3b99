package vm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("context pool is closed")
	ErrAcquireTimeout = errors.New("context acquisition timeout")
)

// PoolConfig sizes a context pool
type PoolConfig struct {
	Size           int
	AcquireTimeout time.Duration
}

// Pool manages a pool of reusable contexts. A context is handed to one
// goroutine at a time; Release resets it before it is reused.
type Pool struct {
	config   Config
	pool     PoolConfig
	opts     []Option
	contexts chan *Context
	mu       sync.RWMutex
	closed   bool
}

// NewPool creates a context pool
func NewPool(config Config, pool PoolConfig, opts ...Option) (*Pool, error) {
	if pool.Size <= 0 {
		pool.Size = 4
	}
	if pool.AcquireTimeout <= 0 {
		pool.AcquireTimeout = 5 * time.Second
	}

	p := &Pool{
		config:   config,
		pool:     pool,
		opts:     opts,
		contexts: make(chan *Context, pool.Size),
	}

	for i := 0; i < pool.Size; i++ {
		c, err := New(config, opts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.contexts <- c
	}

	return p, nil
}

// Acquire gets a context from the pool
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.pool.AcquireTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-p.contexts:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

// Release resets a context and returns it to the pool
func (p *Pool) Release(c *Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return c.Close()
	}

	if err := c.Reset(); err != nil {
		c.Close()
		// Replace the broken context so the pool keeps its size
		if fresh, err := New(p.config, p.opts...); err == nil {
			p.contexts <- fresh
		}
		return err
	}

	select {
	case p.contexts <- c:
		return nil
	default:
		return c.Close()
	}
}

// Close closes the pool and all idle contexts
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.contexts)

	for c := range p.contexts {
		c.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.pool.Size,
		"available": len(p.contexts),
		"in_use":    p.pool.Size - len(p.contexts),
		"closed":    p.closed,
	}
}
