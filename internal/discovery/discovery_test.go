package discovery

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// newTestDiscovery builds a Discovery the way New would, but against a
// loopback UDP socket instead of a joined multicast group, so
// handleDbUpdated's branching can be exercised without depending on
// multicast support in the test environment.
func newTestDiscovery(t *testing.T, name string, group *net.UDPAddr, localMastery func(string) (int64, bool), onUpdate DbUpdatedFunc) *Discovery {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &Discovery{
		opts: Options{
			ClusterName:  "test-cluster",
			Group:        group,
			LocalNode:    endpoint.Node{Name: name},
			OnDbUpdated:  onUpdate,
			LocalMastery: localMastery,
		},
		table:    NewTable(),
		logger:   slog.Default(),
		conn:     conn,
		name:     name,
		watchers: make(map[string][]chan Message),
		stopCh:   make(chan struct{}),
	}
}

func TestHandleDbUpdatedQueryMasteryRepliesWithLocalMastery(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()
	group := recv.LocalAddr().(*net.UDPAddr)

	d := newTestDiscovery(t, "node-a", group, func(path string) (int64, bool) {
		require.Equal(t, "twitter", path)
		return 5, true
	}, nil)

	d.handleDbUpdated(Message{Type: MsgDbUpdated, Node: endpoint.Node{Name: "node-b"}, Mastery: QueryMastery, Path: "twitter"})

	require.NoError(t, recv.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := recv.ReadFromUDP(buf)
	require.NoError(t, err)

	reply, err := Decode(buf[:n], "test-cluster")
	require.NoError(t, err)
	require.Equal(t, MsgDbUpdated, reply.Type)
	require.Equal(t, int64(5), reply.Mastery)
	require.Equal(t, "twitter", reply.Path)
	require.Equal(t, "node-a", reply.Node.Name)
}

func TestHandleDbUpdatedQueryMasteryFromSelfIsIgnored(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()
	group := recv.LocalAddr().(*net.UDPAddr)

	called := false
	d := newTestDiscovery(t, "node-a", group, func(path string) (int64, bool) {
		called = true
		return 5, true
	}, nil)

	d.handleDbUpdated(Message{Type: MsgDbUpdated, Node: endpoint.Node{Name: "node-a"}, Mastery: QueryMastery, Path: "twitter"})

	require.False(t, called)
	require.NoError(t, recv.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 64)
	_, _, err = recv.ReadFromUDP(buf)
	require.Error(t, err)
}

func TestHandleDbUpdatedQueryMasteryUnknownPathStaysSilent(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()
	group := recv.LocalAddr().(*net.UDPAddr)

	d := newTestDiscovery(t, "node-a", group, func(path string) (int64, bool) {
		return 0, false
	}, nil)

	d.handleDbUpdated(Message{Type: MsgDbUpdated, Node: endpoint.Node{Name: "node-b"}, Mastery: QueryMastery, Path: "twitter"})

	require.NoError(t, recv.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 64)
	_, _, err = recv.ReadFromUDP(buf)
	require.Error(t, err)
}

func TestHandleDbUpdatedFansOutToWatchersAndHigherMasteryWins(t *testing.T) {
	var gotPath string
	var gotMastery int64
	var gotNode endpoint.Node
	d := newTestDiscovery(t, "node-a", nil, func(path string) (int64, bool) {
		return 3, true
	}, func(path string, mastery int64, node endpoint.Node) {
		gotPath, gotMastery, gotNode = path, mastery, node
	})

	ch, cancel := d.WatchDbUpdated("twitter")
	defer cancel()

	peer := endpoint.Node{Name: "node-b"}
	d.handleDbUpdated(Message{Type: MsgDbUpdated, Node: peer, Mastery: 7, Path: "twitter"})

	select {
	case m := <-ch:
		require.Equal(t, int64(7), m.Mastery)
		require.Equal(t, "twitter", m.Path)
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive announcement")
	}

	require.Equal(t, "twitter", gotPath)
	require.Equal(t, int64(7), gotMastery)
	require.Equal(t, peer, gotNode)
}

func TestHandleDbUpdatedTieIsIgnoredButStillFansOut(t *testing.T) {
	onUpdateCalled := false
	d := newTestDiscovery(t, "node-a", nil, func(path string) (int64, bool) {
		return 4, true
	}, func(path string, mastery int64, node endpoint.Node) {
		onUpdateCalled = true
	})

	ch, cancel := d.WatchDbUpdated("twitter")
	defer cancel()

	d.handleDbUpdated(Message{Type: MsgDbUpdated, Node: endpoint.Node{Name: "node-b"}, Mastery: 4, Path: "twitter"})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive announcement")
	}
	require.False(t, onUpdateCalled)
}

func TestSneerRenamesWhenNameIsNotFixed(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()

	d := newTestDiscovery(t, "node-a", recv.LocalAddr().(*net.UDPAddr), nil, nil)
	original := d.name

	d.handle(Message{Type: MsgSneer, Node: endpoint.Node{Name: "node-a"}})

	require.NotEqual(t, original, d.name)
	require.NotEqual(t, original, d.opts.LocalNode.Name)
}

func TestSneerShutsDownInsteadOfRenamingWhenNameIsFixed(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()

	d := newTestDiscovery(t, "node-a", recv.LocalAddr().(*net.UDPAddr), nil, nil)
	d.opts.NameFixed = true
	original := d.name

	var reason string
	d.opts.OnFatal = func(r string) { reason = r }

	d.handle(Message{Type: MsgSneer, Node: endpoint.Node{Name: "node-a"}})

	require.Equal(t, original, d.name, "a fixed name must never be renamed")
	require.Contains(t, reason, "node-a")
}

func TestSneerForAnotherNodeIsIgnored(t *testing.T) {
	recv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer recv.Close()

	d := newTestDiscovery(t, "node-a", recv.LocalAddr().(*net.UDPAddr), nil, nil)
	d.opts.NameFixed = true
	called := false
	d.opts.OnFatal = func(string) { called = true }

	d.handle(Message{Type: MsgSneer, Node: endpoint.Node{Name: "node-b"}})

	require.False(t, called)
}

func TestWatchDbUpdatedCancelClosesChannel(t *testing.T) {
	d := newTestDiscovery(t, "node-a", nil, nil, nil)
	ch, cancel := d.WatchDbUpdated("twitter")
	cancel()
	_, ok := <-ch
	require.False(t, ok)
}
