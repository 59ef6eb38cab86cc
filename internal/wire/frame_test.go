package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 16384, 1 << 40}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteVarint(&buf, v))
		got, err := ReadVarint(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Type: 7, Payload: []byte("hello world")}
	require.NoError(t, WriteFrame(&buf, want))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVarint(&buf, MaxFramePayload+2))
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
