package dbpool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeIndexEngine is the IndexEngine test double referenced in §4.2's
// expansion note: it stands in for the real index engine so the pool's
// checkout/checkin logic is fully testable without a Xapian binding.
type fakeIndexEngine struct {
	mu        sync.Mutex
	opens     int64
	failNext  bool
	failErr   error
	openDelay func()
}

func (f *fakeIndexEngine) Open(path string, writable bool) (IndexHandle, error) {
	f.mu.Lock()
	if f.failNext {
		f.failNext = false
		err := f.failErr
		f.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("fake open failure")
		}
		return nil, err
	}
	f.mu.Unlock()

	if f.openDelay != nil {
		f.openDelay()
	}
	atomic.AddInt64(&f.opens, 1)
	return &fakeHandle{path: path, writable: writable}, nil
}

func (f *fakeIndexEngine) openCount() int64 {
	return atomic.LoadInt64(&f.opens)
}

type fakeHandle struct {
	path     string
	writable bool
	closed   bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}
