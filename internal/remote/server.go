package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/xapiand/xapiand-core/internal/dbpool"
	"github.com/xapiand/xapiand-core/internal/wire"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

// Server accepts Remote Protocol connections and serves each on its
// own goroutine, checking shards out of a dbpool.Pool the way the
// teacher's listener handed accepted connections to its worker pool.
type Server struct {
	ln           net.Listener
	pool         *dbpool.Pool
	checkoutWait time.Duration
	logger       *slog.Logger
}

// NewServer listens on addr and wires checkouts through pool. The real
// index engine is out of scope (§1); a shard is obtained by asserting
// the checked-out dbpool.IndexHandle also implements ShardOps, which
// is how a real engine binding would plug in alongside C3.
func NewServer(addr string, pool *dbpool.Pool, checkoutWait time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote: listen %s: %w", addr, err)
	}
	return &Server{
		ln:           ln,
		pool:         pool,
		checkoutWait: checkoutWait,
		logger:       slog.With("component", "remote"),
	}, nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return err
		}
		conn := NewConnection(wire.NewConn(nc), s.logger)
		go conn.Serve(s.selectShard)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// selectShard checks out a handle from the pool for the requested
// endpoint paths and adapts it to ShardOps.
func (s *Server) selectShard(paths []string, writable bool) (ShardOps, func(), error) {
	eps := make(endpoint.Endpoints, 0, len(paths))
	for _, p := range paths {
		ep, err := endpoint.Parse(p)
		if err != nil {
			return nil, nil, errBadMessage("selectShard: endpoint", err)
		}
		eps = append(eps, ep)
	}

	h, err := s.pool.Checkout(context.Background(), eps, writable, s.checkoutWait)
	if err != nil {
		return nil, nil, err
	}

	shard, ok := h.Index().(ShardOps)
	if !ok {
		s.pool.Checkin(h)
		return nil, nil, errBadMessage("selectShard", fmt.Errorf("index handle for %s does not implement ShardOps", eps.String()))
	}
	release := func() { s.pool.Checkin(h) }
	return shard, release, nil
}
