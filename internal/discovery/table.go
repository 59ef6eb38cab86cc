package discovery

import (
	"sync"
	"time"

	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Table is the membership table of §4.3: a name-keyed set of known
// nodes, each refreshed by Wave/Heartbeat and evicted once stalled past
// HEARTBEAT_MAX.
type Table struct {
	mu    sync.Mutex
	nodes map[string]endpoint.Node
}

// NewTable builds an empty membership table.
func NewTable() *Table {
	return &Table{nodes: make(map[string]endpoint.Node)}
}

// TouchNode refreshes a known node's touched time and region, returning
// it; it reports ok=false if the node is not in the table.
func (t *Table) TouchNode(name string, region int32) (endpoint.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := endpoint.NameKey(name)
	n, ok := t.nodes[key]
	if !ok {
		return endpoint.Node{}, false
	}
	n.Region = region
	n.Touched = time.Now()
	t.nodes[key] = n
	return n, true
}

// PutNode installs or refreshes a node, stamping Touched = now. It
// returns true if this is a newly seen node (not a refresh of a known
// one).
func (t *Table) PutNode(n endpoint.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := endpoint.NameKey(n.Name)
	_, existed := t.nodes[key]
	n.Touched = time.Now()
	t.nodes[key] = n
	return !existed
}

// DropNode removes a node from the table, reporting whether it was
// present.
func (t *Table) DropNode(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := endpoint.NameKey(name)
	_, ok := t.nodes[key]
	delete(t.nodes, key)
	return ok
}

// Lookup returns the node registered under name, if any.
func (t *Table) Lookup(name string) (endpoint.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[endpoint.NameKey(name)]
	return n, ok
}

// Nodes returns a snapshot of every node currently in the table.
func (t *Table) Nodes() []endpoint.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]endpoint.Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// EvictStalled removes (and returns the names of) every node whose
// Touched time is older than max, per §4.3's "stalled peer... evicted
// by the next heartbeat tick".
func (t *Table) EvictStalled(max time.Duration) []string {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var evicted []string
	for key, n := range t.nodes {
		if n.Stalled(now, max) {
			delete(t.nodes, key)
			evicted = append(evicted, n.Name)
		}
	}
	return evicted
}

// Len reports the number of nodes currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
