package remote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamedListReplyRoundTrip(t *testing.T) {
	terms := []string{"a", "ab", "abc", "abd", "ac"}
	frames := streamedListReply(terms)
	require.Len(t, frames, len(terms)+1)
	require.Equal(t, byte(RepDone), frames[len(frames)-1].Type)

	decoded, err := decodeStreamedList(frames)
	require.NoError(t, err)
	require.Equal(t, terms, decoded)
}

func TestStreamedListReplyEmpty(t *testing.T) {
	frames := streamedListReply(nil)
	require.Len(t, frames, 1)
	require.Equal(t, byte(RepDone), frames[0].Type)

	decoded, err := decodeStreamedList(frames)
	require.NoError(t, err)
	require.Empty(t, decoded)
}
