package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	node := endpoint.Node{Name: "node1", Host: "10.0.0.1", HTTPPort: 8880, BinaryPort: 8890, Region: 3}
	cases := []Message{
		{Type: MsgHello, ClusterName: "xapiand", Node: node},
		{Type: MsgWave, ClusterName: "xapiand", Node: node},
		{Type: MsgHeartbeat, ClusterName: "xapiand", Node: node},
		{Type: MsgBye, ClusterName: "xapiand", Node: node},
		{Type: MsgDbUpdated, ClusterName: "xapiand", Node: node, Mastery: 42, Path: "twitter/shard0"},
	}
	for _, m := range cases {
		data, err := Encode(m)
		require.NoError(t, err)

		got, err := Decode(data, "xapiand")
		require.NoError(t, err)
		require.Equal(t, m.Type, got.Type)
		require.Equal(t, m.ClusterName, got.ClusterName)
		require.Equal(t, m.Node, got.Node)
		require.Equal(t, m.Mastery, got.Mastery)
		require.Equal(t, m.Path, got.Path)
	}
}

func TestDecodeRejectsClusterMismatch(t *testing.T) {
	node := endpoint.Node{Name: "node1"}
	data, err := Encode(Message{Type: MsgHello, ClusterName: "cluster-a", Node: node})
	require.NoError(t, err)

	_, err = Decode(data, "cluster-b")
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	data, err := Encode(Message{Type: MsgHello, ClusterName: "c", Node: endpoint.Node{}})
	require.NoError(t, err)
	data[0] = 0xEE
	_, err = Decode(data, "c")
	require.Error(t, err)
}
