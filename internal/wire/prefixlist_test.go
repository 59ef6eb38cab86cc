package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixEncodeDecodeRoundTrip(t *testing.T) {
	terms := [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abd"),
		[]byte("ac"),
	}

	entries := PrefixEncode(terms)
	require.Len(t, entries, 5)
	require.Equal(t, byte(0), entries[0].Reuse)
	require.Equal(t, []byte("a"), entries[0].Suffix)
	require.Equal(t, byte(1), entries[1].Reuse)
	require.Equal(t, []byte("b"), entries[1].Suffix)
	require.Equal(t, byte(2), entries[2].Reuse)
	require.Equal(t, []byte("c"), entries[2].Suffix)
	require.Equal(t, byte(2), entries[3].Reuse)
	require.Equal(t, []byte("d"), entries[3].Suffix)
	require.Equal(t, byte(1), entries[4].Reuse)
	require.Equal(t, []byte("c"), entries[4].Suffix)

	decoded := PrefixDecode(entries)
	require.Equal(t, terms, decoded)
}

func TestPrefixEncodeClampsReuseTo255(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	longer := append(append([]byte(nil), long...), 'y')

	entries := PrefixEncode([][]byte{long, longer})
	require.Equal(t, byte(255), entries[1].Reuse)

	decoded := PrefixDecode(entries)
	require.Equal(t, long, decoded[0])
	require.Equal(t, longer, decoded[1])
}
