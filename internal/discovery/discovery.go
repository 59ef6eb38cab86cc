package discovery

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/xapiand/xapiand-core/internal/xerrors"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Timer bounds from original_source/src/servers/discovery.h, carried
// forward unchanged.
const (
	WaitingFast  = 200 * time.Millisecond
	WaitingSlow  = 1 * time.Second
	HeartbeatMin = 2 * time.Second
	HeartbeatMax = 4 * time.Second

	// StaleAfter is how long a node may go unheard-from before it is
	// considered stalled, exported for callers outside this package
	// (e.g. the Endpoint Resolver's §4.6 probe filter) that need the
	// same threshold EvictStalled uses internally.
	StaleAfter = HeartbeatMax
)

// State is the local node's bootstrap/steady-state phase, per §4.3.
type State int

const (
	StateBootstrapping State = iota
	StateWaiting
	StateWaitingMore
	StateReady
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "Bootstrapping"
	case StateWaiting:
		return "Waiting"
	case StateWaitingMore:
		return "WaitingMore"
	case StateReady:
		return "Ready"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// DbUpdatedFunc is invoked when a peer announces a shard update whose
// mastery should trigger local replication (§4.3's DbUpdated effect).
type DbUpdatedFunc func(path string, remoteMastery int64, node endpoint.Node)

// FatalFunc is invoked when Discovery hits a condition it cannot
// recover from under its current identity, e.g. a name conflict while
// NameFixed is set (§4.3's Sneer effect: "rename & retry, or shutdown
// if name was fixed"). Discovery only reports the condition; the owner
// decides how to actually stop the node.
type FatalFunc func(reason string)

// Options configures one Discovery instance.
type Options struct {
	ClusterName  string
	Group        *net.UDPAddr // multicast group address, e.g. 239.0.0.1:8890
	Interface    *net.Interface
	LocalNode    endpoint.Node
	OnDbUpdated  DbUpdatedFunc
	LocalMastery func(path string) (int64, bool)
	// NameFixed pins LocalNode.Name: a Sneer naming this node's current
	// name is fatal instead of triggering a rename-and-retry.
	NameFixed bool
	OnFatal   FatalFunc
}

// Discovery runs the UDP-multicast gossip transport and membership
// state machine of §4.3.
type Discovery struct {
	opts   Options
	table  *Table
	logger *slog.Logger

	pc   *ipv4.PacketConn
	conn *net.UDPConn

	mu    sync.Mutex
	state State
	name  string

	watchMu  sync.Mutex
	watchers map[string][]chan Message

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New opens the multicast socket and builds a Discovery ready to Start.
func New(opts Options) (*Discovery, error) {
	if opts.Group == nil {
		return nil, fmt.Errorf("discovery: %w: nil multicast group", xerrors.ErrInvalidArgument)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: opts.Group.Port})
	if err != nil {
		return nil, fmt.Errorf("discovery: listen: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(opts.Interface, opts.Group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: join group: %w", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: set loopback: %w", err)
	}

	d := &Discovery{
		opts:     opts,
		table:    NewTable(),
		logger:   slog.With("component", "discovery", "node", opts.LocalNode.Name),
		pc:       pc,
		conn:     conn,
		state:    StateBootstrapping,
		name:     opts.LocalNode.Name,
		watchers: make(map[string][]chan Message),
		stopCh:   make(chan struct{}),
	}
	return d, nil
}

// Table exposes the membership table for callers that need to enumerate
// known nodes (e.g. the endpoint resolver, §4.6).
func (d *Discovery) Table() *Table {
	return d.table
}

// State reports the local node's current phase.
func (d *Discovery) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Discovery) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.logger.Info("state transition", "state", s.String())
}

// Start enters the cluster (§4.3's enter()): sends Hello, then runs the
// receive loop and the periodic heartbeat loop until Stop.
func (d *Discovery) Start() {
	d.wg.Add(2)
	go d.receiveLoop()
	go d.heartbeatLoop()
	d.setState(StateWaiting)
	d.sendHello()
}

// Stop leaves the cluster (§4.3's leave()): broadcasts Bye, stops the
// loops, and closes the socket.
func (d *Discovery) Stop() {
	d.setState(StateShutdown)
	d.broadcast(Message{Type: MsgBye, Node: d.opts.LocalNode})
	close(d.stopCh)
	d.wg.Wait()
	d.pc.Close()
}

func (d *Discovery) broadcast(m Message) {
	m.ClusterName = d.opts.ClusterName
	data, err := Encode(m)
	if err != nil {
		d.logger.Error("encode failed", "type", m.Type.String(), "error", err)
		return
	}
	if _, err := d.conn.WriteToUDP(data, d.opts.Group); err != nil {
		d.logger.Error("send failed", "type", m.Type.String(), "error", err)
	}
}

func (d *Discovery) sendHello() {
	d.broadcast(Message{Type: MsgHello, Node: d.opts.LocalNode})
}

// heartbeatLoop emits this node's own heartbeat every
// rand(HeartbeatMin, HeartbeatMax), and on each tick sweeps the table
// for stalled peers, per §4.3's scheduling rule.
func (d *Discovery) heartbeatLoop() {
	defer d.wg.Done()
	for {
		wait := HeartbeatMin + time.Duration(rand.Int63n(int64(HeartbeatMax-HeartbeatMin)+1))
		timer := time.NewTimer(wait)
		select {
		case <-d.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			d.broadcast(Message{Type: MsgHeartbeat, Node: d.opts.LocalNode})
			for _, name := range d.table.EvictStalled(StaleAfter) {
				d.logger.Info("evicted stalled node", "name", name)
			}
		}
	}
}

func (d *Discovery) receiveLoop() {
	defer d.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-d.stopCh:
				return
			default:
				d.logger.Error("read failed", "error", err)
				continue
			}
		}
		msg, err := Decode(buf[:n], d.opts.ClusterName)
		if err != nil {
			d.logger.Debug("dropping message", "error", err)
			continue
		}
		if msg.Node.Name == d.name && msg.Type != MsgSneer {
			continue // our own broadcast looped back
		}
		d.handle(msg)
	}
}

func (d *Discovery) handle(msg Message) {
	switch msg.Type {
	case MsgHello:
		if existing, ok := d.table.Lookup(msg.Node.Name); ok && !sameNode(existing, msg.Node) {
			d.broadcast(Message{Type: MsgSneer, Node: msg.Node})
			return
		}
		d.broadcast(Message{Type: MsgWave, Node: d.opts.LocalNode})
		d.table.PutNode(msg.Node)
		d.setState(StateWaitingMore)

	case MsgWave, MsgHeartbeat:
		d.table.PutNode(msg.Node)
		if d.State() == StateWaiting || d.State() == StateWaitingMore {
			d.setState(StateReady)
		}

	case MsgSneer:
		if msg.Node.Name == d.name {
			if d.opts.NameFixed {
				d.logger.Warn("node name conflict, local name is fixed; shutting down")
				if d.opts.OnFatal != nil {
					d.opts.OnFatal(fmt.Sprintf("name conflict: %q is fixed and already in use", d.name))
				}
				return
			}
			d.logger.Warn("node name conflict, renaming")
			d.opts.LocalNode.Name = d.name + "_" + strconv.FormatInt(time.Now().UnixNano(), 36)
			d.name = d.opts.LocalNode.Name
			d.sendHello()
		}

	case MsgEnter:
		d.table.PutNode(msg.Node)

	case MsgBye:
		d.table.DropNode(msg.Node.Name)

	case MsgDbUpdated:
		d.handleDbUpdated(msg)
	}
}

// handleDbUpdated resolves the tie-break Open Question of §9: equal
// mastery is ignored with a Debug log line rather than arbitrarily
// picking a side. Every genuine DbUpdated is also fanned out to
// watchers registered via WatchDbUpdated, since the Endpoint
// Resolver's probe (§4.6) needs every peer's announced mastery, not
// just those that beat our own. A QueryMastery probe is answered with
// our own real mastery (if we host Path) instead of being treated as
// an update.
func (d *Discovery) handleDbUpdated(msg Message) {
	if msg.Mastery == QueryMastery {
		if msg.Node.Name == d.name {
			return
		}
		if d.opts.LocalMastery == nil {
			return
		}
		if mastery, known := d.opts.LocalMastery(msg.Path); known {
			d.AnnounceDbUpdated(msg.Path, mastery)
		}
		return
	}

	d.notifyWatchers(msg)

	if d.opts.LocalMastery == nil || d.opts.OnDbUpdated == nil {
		return
	}
	local, known := d.opts.LocalMastery(msg.Path)
	if !known {
		d.opts.OnDbUpdated(msg.Path, msg.Mastery, msg.Node)
		return
	}
	switch {
	case msg.Mastery > local:
		d.opts.OnDbUpdated(msg.Path, msg.Mastery, msg.Node)
	case msg.Mastery == local:
		d.logger.Debug("db_updated tie, ignoring", "path", msg.Path, "mastery", local, "from", msg.Node.Name)
	}
}

// WatchDbUpdated subscribes to DbUpdated announcements for path, used
// by the Endpoint Resolver's probe-and-collect step (§4.6). The
// returned channel is closed by the cancel func; callers must call
// cancel to avoid leaking the subscription.
func (d *Discovery) WatchDbUpdated(path string) (<-chan Message, func()) {
	ch := make(chan Message, 16)
	d.watchMu.Lock()
	d.watchers[path] = append(d.watchers[path], ch)
	d.watchMu.Unlock()

	cancel := func() {
		d.watchMu.Lock()
		defer d.watchMu.Unlock()
		subs := d.watchers[path]
		for i, c := range subs {
			if c == ch {
				d.watchers[path] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}

func (d *Discovery) notifyWatchers(msg Message) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	for _, ch := range d.watchers[msg.Path] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// AnnounceDbUpdated broadcasts a DbUpdated message for path at the
// given mastery level.
func (d *Discovery) AnnounceDbUpdated(path string, mastery int64) {
	d.broadcast(Message{Type: MsgDbUpdated, Node: d.opts.LocalNode, Mastery: mastery, Path: path})
}

// ProbeDbUpdated broadcasts a QueryMastery DbUpdated for path, asking
// any peer hosting it to reply with its own real mastery. Used by the
// Endpoint Resolver's resolve() (§4.6 step 2).
func (d *Discovery) ProbeDbUpdated(path string) {
	d.broadcast(Message{Type: MsgDbUpdated, Node: d.opts.LocalNode, Mastery: QueryMastery, Path: path})
}

func sameNode(a, b endpoint.Node) bool {
	return a.Host == b.Host && a.HTTPPort == b.HTTPPort && a.BinaryPort == b.BinaryPort
}
