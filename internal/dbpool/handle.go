package dbpool

import (
	"time"

	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Handle is one checked-out index handle. Callers must pass it back to
// Pool.Checkin exactly once; a Handle obtained from Checkout must never
// be used concurrently from more than one goroutine.
type Handle struct {
	Endpoints endpoint.Endpoints
	Writable  bool

	hash       uint64
	generation uint64
	idx        IndexHandle
	lastUsed   time.Time
	poisoned   bool
}

// Index exposes the underlying engine handle for callers that need to
// perform reads/writes against it.
func (h *Handle) Index() IndexHandle {
	return h.idx
}

// Poison marks the handle as unfit for reuse; Checkin destroys rather
// than pools a poisoned handle, per §4.2.
func (h *Handle) Poison() {
	h.poisoned = true
}

// LastUsed reports when the handle was last checked out or checked in.
func (h *Handle) LastUsed() time.Time {
	return h.lastUsed
}
