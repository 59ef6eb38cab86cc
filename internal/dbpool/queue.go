package dbpool

import (
	"strings"
	"sync"
	"time"

	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// waitResult is delivered to a blocked checkout. A zero value (no
// handle, no error) is a "retry" wake-up: a slot or idle handle may now
// be available, but the waiter must re-run the acquisition attempt
// itself rather than being handed a ready-made Handle.
type waitResult struct {
	handle *Handle
	err    error
}

// dbQueue is the per-(hash, writable) state described in §4.2: idle
// handles, outstanding count, queued waiters, and the replication-
// blocking flag. It is keyed by the combined endpoint/writable hash, so
// readable and writable views of the same endpoint set live in
// different queues automatically.
type dbQueue struct {
	mu sync.Mutex

	hash      uint64
	writable  bool
	endpoints endpoint.Endpoints
	limit     int

	idle        []*Handle
	outstanding int
	waiters     []chan waitResult

	replicating bool
	generation  uint64
}

// newQueue caps a writable queue's limit at 1 regardless of the pool's
// readonly limit: §4.2's hard invariant is at most one outstanding
// writable handle per (hash, writable=true) group, never "up to limit".
func newQueue(hash uint64, writable bool, endpoints endpoint.Endpoints, limit int) *dbQueue {
	if writable {
		limit = 1
	}
	return &dbQueue{
		hash:      hash,
		writable:  writable,
		endpoints: endpoints,
		limit:     limit,
	}
}

// path joins the group's endpoint locators into the single string the
// IndexEngine identifies a (possibly multi-endpoint) shard view by.
func (q *dbQueue) path() string {
	parts := make([]string, len(q.endpoints))
	for i, e := range q.endpoints.Sorted() {
		parts[i] = e.String()
	}
	return strings.Join(parts, ";")
}

// setReplicating flips the replication-in-progress flag; while set, new
// writable checkouts block (§4.2) until replication finishes.
func (q *dbQueue) setReplicating(v bool) {
	q.mu.Lock()
	q.replicating = v
	wake := !v
	q.mu.Unlock()
	if wake {
		q.mu.Lock()
		q.wakeAllLocked()
		q.mu.Unlock()
	}
}

// bumpGeneration invalidates every idle handle currently pooled; the
// next checkout transparently reopens instead of reusing it (§4.2 step
// 6, "reopen_generation mismatch").
func (q *dbQueue) bumpGeneration() {
	q.mu.Lock()
	q.generation++
	q.mu.Unlock()
}

func (q *dbQueue) wakeOneLocked() {
	if len(q.waiters) == 0 {
		return
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	w <- waitResult{}
}

func (q *dbQueue) wakeAllLocked() {
	for _, w := range q.waiters {
		w <- waitResult{}
	}
	q.waiters = nil
}

func (q *dbQueue) removeWaiter(ch chan waitResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// checkin returns a handle to the queue: destroyed if poisoned,
// otherwise handed directly to the oldest waiter or parked idle, per
// §4.2's "wakes one waiter" rule.
func (q *dbQueue) checkin(h *Handle) {
	q.mu.Lock()
	q.outstanding--

	if h.poisoned {
		q.wakeOneLocked()
		q.mu.Unlock()
		_ = h.idx.Close()
		return
	}

	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.outstanding++
		q.mu.Unlock()
		h.lastUsed = time.Now()
		w <- waitResult{handle: h}
		return
	}

	h.lastUsed = time.Now()
	q.idle = append(q.idle, h)
	q.mu.Unlock()
}
