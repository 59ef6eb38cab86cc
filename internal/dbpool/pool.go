package dbpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xapiand/xapiand-core/internal/xerrors"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Pool is the keyed, bounded database pool of §4.2: at most one
// writable handle outstanding per (hash, writable) group, up to limit
// concurrent readonly handles, with waiters queued past that bound.
type Pool struct {
	mu          sync.Mutex
	queues      map[uint64]*dbQueue
	engine      IndexEngine
	limit       int
	closed      bool
	logger      *slog.Logger
	metricsHook func(outcome string, waitSeconds float64)
}

// New builds a Pool backed by engine, allowing up to limit concurrently
// open handles per (hash, writable) group.
func New(engine IndexEngine, limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{
		queues: make(map[uint64]*dbQueue),
		engine: engine,
		limit:  limit,
		logger: slog.With("component", "dbpool"),
	}
}

// SetMetricsHook installs a callback invoked after every Checkout with
// its outcome ("ok", "timeout", "error") and, for "ok", how long the
// caller waited. Used by cmd/xapiand to feed internal/metrics.
func (p *Pool) SetMetricsHook(hook func(outcome string, waitSeconds float64)) {
	p.mu.Lock()
	p.metricsHook = hook
	p.mu.Unlock()
}

func (p *Pool) queueFor(endpoints endpoint.Endpoints, writable bool) (*dbQueue, uint64) {
	hash := endpoint.Hash(endpoints, writable)
	p.mu.Lock()
	q, ok := p.queues[hash]
	if !ok {
		q = newQueue(hash, writable, endpoints, p.limit)
		p.queues[hash] = q
	}
	p.mu.Unlock()
	return q, hash
}

// Checkout implements the algorithm in §4.2: reuse an idle handle,
// open a fresh one under limit, or block up to timeout (and ctx) for
// one to free up. A writable checkout additionally blocks while the
// group's replicating flag is set.
func (p *Pool) Checkout(ctx context.Context, endpoints endpoint.Endpoints, writable bool, timeout time.Duration) (*Handle, error) {
	start := time.Now()
	h, err := p.checkout(ctx, endpoints, writable, timeout)
	if hook := p.hookFunc(); hook != nil {
		switch {
		case err == nil:
			hook("ok", time.Since(start).Seconds())
		case errors.Is(err, ErrCheckoutTimeout):
			hook("timeout", 0)
		default:
			hook("error", 0)
		}
	}
	return h, err
}

func (p *Pool) hookFunc() func(outcome string, waitSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metricsHook
}

func (p *Pool) checkout(ctx context.Context, endpoints endpoint.Endpoints, writable bool, timeout time.Duration) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	q, hash := p.queueFor(endpoints, writable)
	deadline := time.Now().Add(timeout)

	for {
		q.mu.Lock()
		blocked := q.writable && q.replicating

		if !blocked {
			for len(q.idle) > 0 {
				h := q.idle[len(q.idle)-1]
				q.idle = q.idle[:len(q.idle)-1]
				if h.generation != q.generation {
					q.mu.Unlock()
					_ = h.idx.Close()
					q.mu.Lock()
					continue
				}
				h.lastUsed = time.Now()
				q.outstanding++
				q.mu.Unlock()
				return h, nil
			}

			if q.outstanding < q.limit {
				q.outstanding++
				gen := q.generation
				path := q.path()
				q.mu.Unlock()

				idx, err := p.engine.Open(path, writable)
				if err != nil {
					q.mu.Lock()
					q.outstanding--
					q.wakeOneLocked()
					q.mu.Unlock()
					if xerrors.Of(err) == xerrors.KindDatabaseCorrupt {
						return nil, wrapDatabaseCorrupt(err)
					}
					return nil, wrapCheckoutError(err)
				}
				return &Handle{
					Endpoints:  endpoints,
					Writable:   writable,
					hash:       hash,
					generation: gen,
					idx:        idx,
					lastUsed:   time.Now(),
				}, nil
			}
		}

		wait := make(chan waitResult, 1)
		q.waiters = append(q.waiters, wait)
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)

		select {
		case res := <-wait:
			timer.Stop()
			if res.err != nil {
				return nil, res.err
			}
			if res.handle != nil {
				return res.handle, nil
			}
			// retry signal: loop back and reattempt acquisition
			continue
		case <-timer.C:
			q.removeWaiter(wait)
			return nil, ErrCheckoutTimeout
		case <-ctx.Done():
			timer.Stop()
			q.removeWaiter(wait)
			return nil, ctx.Err()
		}
	}
}

// Checkin returns h to its queue, per §4.2: poisoned handles are
// destroyed rather than pooled, and checking in always wakes one
// waiter if any are queued.
func (p *Pool) Checkin(h *Handle) {
	p.mu.Lock()
	q, ok := p.queues[h.hash]
	closed := p.closed
	p.mu.Unlock()
	if !ok || closed {
		_ = h.idx.Close()
		return
	}
	q.checkin(h)
}

// SetReplicating marks whether the (endpoints, writable=true) group is
// currently being populated by replication, blocking new writable
// checkouts until cleared (§4.2).
func (p *Pool) SetReplicating(endpoints endpoint.Endpoints, replicating bool) {
	q, _ := p.queueFor(endpoints, true)
	q.setReplicating(replicating)
}

// Reopen bumps the group's generation so the next checkout of an idle
// handle transparently reopens it instead of reusing a stale one,
// matching §4.2 step 6.
func (p *Pool) Reopen(endpoints endpoint.Endpoints, writable bool) {
	q, _ := p.queueFor(endpoints, writable)
	q.bumpGeneration()
}

// Close drains every queue, closing idle handles. Outstanding handles
// are closed as they are checked in after Close returns.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	queues := make([]*dbQueue, 0, len(p.queues))
	for _, q := range p.queues {
		queues = append(queues, q)
	}
	p.mu.Unlock()

	var firstErr error
	for _, q := range queues {
		q.mu.Lock()
		idle := q.idle
		q.idle = nil
		q.wakeAllLocked()
		q.mu.Unlock()
		for _, h := range idle {
			if err := h.idx.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
