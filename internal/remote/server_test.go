package remote

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand-core/internal/dbpool"
	"github.com/xapiand/xapiand-core/internal/wire"
)

// shardHandle satisfies both dbpool.IndexHandle and ShardOps, standing
// in for a real engine binding that opens a shard and also answers
// Remote Protocol requests against it.
type shardHandle struct {
	*fakeShard
}

func (h *shardHandle) Close() error { return nil }

type shardEngine struct{}

func (shardEngine) Open(path string, writable bool) (dbpool.IndexHandle, error) {
	return &shardHandle{fakeShard: newFakeShard()}, nil
}

func TestServerReadAccessOverRealSocket(t *testing.T) {
	pool := dbpool.New(shardEngine{}, 4)
	defer pool.Close()

	srv, err := NewServer("127.0.0.1:0", pool, 2*time.Second)
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	conn, err := wire.Dial("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	var buf bytes.Buffer
	putUint32(&buf, 1)
	putString(&buf, "xapian://node1/twitter")
	require.NoError(t, conn.Send(wire.Frame{Type: byte(ReqReadAccess), Payload: buf.Bytes()}, time.Second))

	reply, err := conn.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(RepUpdate), reply.Type)
}
