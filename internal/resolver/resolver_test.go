package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand-core/internal/discovery"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// fakeProber stands in for *discovery.Discovery: ProbeDbUpdated queues
// a canned set of replies onto the watcher from the latest
// WatchDbUpdated call, the way real peers would reply to a QueryMastery
// broadcast.
type fakeProber struct {
	replies []discovery.Message
	probed  []string
	watcher chan discovery.Message
}

func (f *fakeProber) ProbeDbUpdated(path string) {
	f.probed = append(f.probed, path)
	go func() {
		for _, m := range f.replies {
			f.watcher <- m
		}
	}()
}

func (f *fakeProber) WatchDbUpdated(path string) (<-chan discovery.Message, func()) {
	f.watcher = make(chan discovery.Message, len(f.replies)+1)
	return f.watcher, func() { close(f.watcher) }
}

type fakeNodes struct {
	nodes map[string]endpoint.Node
}

func (f *fakeNodes) Lookup(name string) (endpoint.Node, bool) {
	n, ok := f.nodes[name]
	return n, ok
}

func liveNode(name string) endpoint.Node {
	return endpoint.Node{Name: name, Touched: time.Now()}
}

func TestResolveCollectsRepliesAndRanksByMastery(t *testing.T) {
	prober := &fakeProber{
		replies: []discovery.Message{
			{Node: endpoint.Node{Name: "node-a", Host: "10.0.0.1", BinaryPort: 8890}, Path: "twitter", Mastery: 5},
			{Node: endpoint.Node{Name: "node-b", Host: "10.0.0.2", BinaryPort: 8890}, Path: "twitter", Mastery: 9},
		},
	}
	nodes := &fakeNodes{nodes: map[string]endpoint.Node{
		"node-a": liveNode("node-a"),
		"node-b": liveNode("node-b"),
	}}

	r := New(prober, nodes, Options{FastWindow: 50 * time.Millisecond, SlowWindow: 50 * time.Millisecond})
	eps, err := r.Resolve("twitter", 2, time.Second)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	require.Equal(t, "node-b", eps[0].NodeName) // higher mastery first
	require.Equal(t, "node-a", eps[1].NodeName)
	require.Equal(t, []string{"twitter"}, prober.probed)
}

func TestResolveFiltersStalledResponders(t *testing.T) {
	prober := &fakeProber{
		replies: []discovery.Message{
			{Node: endpoint.Node{Name: "node-a", Host: "10.0.0.1"}, Path: "twitter", Mastery: 5},
			{Node: endpoint.Node{Name: "node-stale", Host: "10.0.0.3"}, Path: "twitter", Mastery: 9},
		},
	}
	nodes := &fakeNodes{nodes: map[string]endpoint.Node{
		"node-a":     liveNode("node-a"),
		"node-stale": {Name: "node-stale", Touched: time.Now().Add(-time.Hour)},
	}}

	r := New(prober, nodes, Options{FastWindow: 30 * time.Millisecond, SlowWindow: 30 * time.Millisecond, StaleAfter: time.Minute})
	eps, err := r.Resolve("twitter", 2, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	require.Equal(t, "node-a", eps[0].NodeName)
}

func TestResolveReturnsEndpointUnresolvedWhenEmpty(t *testing.T) {
	prober := &fakeProber{}
	r := New(prober, nil, Options{FastWindow: 10 * time.Millisecond, SlowWindow: 10 * time.Millisecond})
	_, err := r.Resolve("ghost", 1, 50*time.Millisecond)
	require.Error(t, err)
}

func TestResolveServesFromCacheWithoutReprobing(t *testing.T) {
	prober := &fakeProber{
		replies: []discovery.Message{
			{Node: endpoint.Node{Name: "node-a", Host: "10.0.0.1"}, Path: "twitter", Mastery: 5},
		},
	}
	nodes := &fakeNodes{nodes: map[string]endpoint.Node{"node-a": liveNode("node-a")}}
	r := New(prober, nodes, Options{FastWindow: 30 * time.Millisecond, SlowWindow: 30 * time.Millisecond})

	_, err := r.Resolve("twitter", 1, time.Second)
	require.NoError(t, err)
	require.Len(t, prober.probed, 1)

	_, err = r.Resolve("twitter", 1, time.Second)
	require.NoError(t, err)
	require.Len(t, prober.probed, 1) // second call served from cache, no reprobe
}
