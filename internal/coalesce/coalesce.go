// Package coalesce debounces quantity changes per cart line. Intents for the
// same line that arrive within the window collapse into one request carrying
// the last value. The server still version-checks whatever is sent.
package coalesce

import (
	"context"
	"errors"
	"sync"
	"time"
)

const DefaultWindow = 300 * time.Millisecond

var ErrClosed = errors.New("coalescer closed")

type Key struct {
	SessionKey string
	ItemRef    string
}

// SendFunc delivers the collapsed intent for key.
type SendFunc func(ctx context.Context, key Key, quantity int) error

type Coalescer struct {
	window time.Duration
	send   SendFunc

	mu      sync.Mutex
	pending map[Key]*intent
	closed  bool
	wg      sync.WaitGroup
}

type intent struct {
	quantity int
	seq      uint64
	timer    *time.Timer
	waiters  []chan error
}

func New(window time.Duration, send SendFunc) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{window: window, send: send, pending: make(map[Key]*intent)}
}

// Submit records quantity as the latest intent for key and restarts its
// window. The returned channel receives the outcome of the request that
// finally carries this intent.
func (c *Coalescer) Submit(key Key, quantity int) <-chan error {
	done := make(chan error, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		done <- ErrClosed
		return done
	}

	in, ok := c.pending[key]
	if !ok {
		in = &intent{}
		c.pending[key] = in
		c.wg.Add(1)
	} else {
		in.timer.Stop()
	}
	in.quantity = quantity
	in.seq++
	in.waiters = append(in.waiters, done)
	seq := in.seq
	in.timer = time.AfterFunc(c.window, func() { c.fire(key, in, seq) })
	return done
}

func (c *Coalescer) fire(key Key, in *intent, seq uint64) {
	c.mu.Lock()
	if c.pending[key] != in || in.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.mu.Unlock()

	c.deliver(context.Background(), key, in)
}

func (c *Coalescer) deliver(ctx context.Context, key Key, in *intent) {
	defer c.wg.Done()
	err := c.send(ctx, key, in.quantity)
	for _, w := range in.waiters {
		w <- err
	}
}

// Pending reports how many lines have an intent waiting for its window.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush sends every pending intent now and waits for in-flight sends.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := make(map[Key]*intent, len(c.pending))
	for key, in := range c.pending {
		in.timer.Stop()
		batch[key] = in
		delete(c.pending, key)
	}
	c.mu.Unlock()

	var errs []error
	for key, in := range batch {
		waiter := make(chan error, 1)
		in.waiters = append(in.waiters, waiter)
		c.deliver(ctx, key, in)
		if err := <-waiter; err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

// Close flushes pending intents and rejects later submissions.
func (c *Coalescer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Flush(context.Background())
}
