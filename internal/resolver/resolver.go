// Package resolver implements the Endpoint Resolver of §4.6: an
// LRU-cached, discovery-driven lookup from a shard path to its ranked
// set of hosting endpoints.
package resolver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xapiand/xapiand-core/internal/discovery"
	"github.com/xapiand/xapiand-core/internal/xerrors"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Prober is the discovery-facing seam resolve() drives: probe a path
// and collect replies. *discovery.Discovery implements it directly.
type Prober interface {
	ProbeDbUpdated(path string)
	WatchDbUpdated(path string) (<-chan discovery.Message, func())
}

// NodeLookup reports whether a node is still live, used to filter
// stalled responders out of a resolve() result (§4.6 step 3).
type NodeLookup interface {
	Lookup(name string) (endpoint.Node, bool)
}

// Options configures a Resolver.
type Options struct {
	CacheSize  int
	FastWindow time.Duration // initial collection window, §4.6 step 2
	SlowWindow time.Duration // stretched window when under n_replicas
	StaleAfter time.Duration
}

// DefaultOptions mirrors discovery's own WAITING_FAST/WAITING_SLOW
// timers, since the resolver's probe-and-collect step runs the same
// fast-then-stretch pattern as discovery's own bootstrap wait.
func DefaultOptions() Options {
	return Options{
		CacheSize:  1024,
		FastWindow: discovery.WaitingFast,
		SlowWindow: discovery.WaitingSlow,
		StaleAfter: discovery.StaleAfter,
	}
}

// Resolver answers resolve(path, n_replicas, timeout) per §4.6.
type Resolver struct {
	cache  *lruCache
	prober Prober
	nodes  NodeLookup
	opts   Options
	logger *slog.Logger
}

// New builds a Resolver backed by prober (normally a *discovery.Discovery)
// and nodes (normally its Table()).
func New(prober Prober, nodes NodeLookup, opts Options) *Resolver {
	if opts.CacheSize < 1 {
		opts.CacheSize = 1024
	}
	if opts.FastWindow <= 0 {
		opts.FastWindow = discovery.WaitingFast
	}
	if opts.SlowWindow <= 0 {
		opts.SlowWindow = discovery.WaitingSlow
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = discovery.StaleAfter
	}
	return &Resolver{
		cache:  newLRUCache(opts.CacheSize),
		prober: prober,
		nodes:  nodes,
		opts:   opts,
		logger: slog.With("component", "resolver"),
	}
}

// Resolve implements §4.6's algorithm: consult the cache; if it lacks
// n_replicas fresh, live endpoints, probe peers and collect replies
// for an initial fast window, stretching to a slow window if still
// short; then rank by mastery, drop stalled responders, and return the
// top n_replicas. An empty result is reported as ErrEndpointUnresolved.
func (r *Resolver) Resolve(path string, nReplicas int, timeout time.Duration) (endpoint.Endpoints, error) {
	if nReplicas < 1 {
		nReplicas = 1
	}
	el := r.cache.getOrCreate(path)

	if fresh := r.liveSnapshot(el); len(fresh) >= nReplicas {
		el.setState(listReady)
		return fresh[:nReplicas], nil
	}

	deadline := time.Now().Add(timeout)
	ch, cancel := r.prober.WatchDbUpdated(path)
	defer cancel()

	el.setState(listWaiting)
	r.prober.ProbeDbUpdated(path)

	windows := []time.Duration{r.opts.FastWindow, r.opts.SlowWindow}
	for _, window := range windows {
		deadlineWindow := time.Now().Add(window)
		if deadlineWindow.After(deadline) {
			deadlineWindow = deadline
		}
		r.collectUntil(el, ch, deadlineWindow)
		if fresh := r.liveSnapshot(el); len(fresh) >= nReplicas {
			el.setState(listReady)
			if len(fresh) > nReplicas {
				fresh = fresh[:nReplicas]
			}
			return fresh, nil
		}
		if time.Now().After(deadline) {
			break
		}
	}

	fresh := r.liveSnapshot(el)
	if len(fresh) == 0 {
		el.setState(listReadyTimeout)
		return nil, fmt.Errorf("resolver: %w: %s", xerrors.ErrEndpointUnresolved, path)
	}
	el.setState(listReadyTimeout)
	if len(fresh) > nReplicas {
		fresh = fresh[:nReplicas]
	}
	return fresh, nil
}

func (r *Resolver) collectUntil(el *EndpointList, ch <-chan discovery.Message, deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		timer := time.NewTimer(remaining)
		select {
		case msg, ok := <-ch:
			timer.Stop()
			if !ok {
				return
			}
			el.addReply(endpoint.Endpoint{
				Host:         msg.Node.Host,
				Port:         int(msg.Node.BinaryPort),
				Path:         msg.Path,
				MasteryLevel: msg.Mastery,
				NodeName:     msg.Node.Name,
			})
		case <-timer.C:
			return
		}
	}
}

// liveSnapshot returns el's cached replies ranked by mastery, with any
// responder the node lookup now considers stalled filtered out.
func (r *Resolver) liveSnapshot(el *EndpointList) endpoint.Endpoints {
	ranked := el.snapshot()
	if r.nodes == nil {
		return ranked
	}
	out := make(endpoint.Endpoints, 0, len(ranked))
	now := time.Now()
	for _, ep := range ranked {
		n, ok := r.nodes.Lookup(ep.NodeName)
		if ok && n.Stalled(now, r.opts.StaleAfter) {
			continue
		}
		out = append(out, ep)
	}
	return out
}
