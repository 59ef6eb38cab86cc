package resolver

import (
	"sync"
	"time"

	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// listState mirrors original_source/src/endpoint_resolver.h's
// EndpointList::State enum (NEW/WAITING/READY/READY_TIME_OUT); NEW_ENDP
// is folded into READY since this port has no separate "entry added
// mid-wait" transition to model.
type listState int

const (
	listNew listState = iota
	listWaiting
	listReady
	listReadyTimeout
)

// EndpointList is one path's cached view of which nodes host it and at
// what mastery, the per-key value the resolver's LRU stores.
type EndpointList struct {
	mu       sync.Mutex
	state    listState
	replies  map[string]endpoint.Endpoint // keyed by NodeName
	lastRecv time.Time
}

func newEndpointList() *EndpointList {
	return &EndpointList{state: listNew, replies: make(map[string]endpoint.Endpoint)}
}

// addReply records one peer's mastery announcement for this path.
func (el *EndpointList) addReply(ep endpoint.Endpoint) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.replies[ep.NodeName] = ep
	el.lastRecv = time.Now()
	if el.state == listNew {
		el.state = listWaiting
	}
}

// snapshot returns the current replies ranked by mastery.
func (el *EndpointList) snapshot() endpoint.Endpoints {
	el.mu.Lock()
	defer el.mu.Unlock()
	out := make(endpoint.Endpoints, 0, len(el.replies))
	for _, ep := range el.replies {
		out = append(out, ep)
	}
	return out.RankByMastery()
}

func (el *EndpointList) setState(s listState) {
	el.mu.Lock()
	el.state = s
	el.mu.Unlock()
}

func (el *EndpointList) count() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.replies)
}
