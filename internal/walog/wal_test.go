package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	o := DefaultOptions()
	o.GroupCommitWindow = 0
	o.GroupCommitMaxBatch = 1
	return o
}

func TestAppendAssignsMonotonicTxIDs(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, fastOptions())
	require.NoError(t, err)
	defer w.Close()

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := w.Append(OpAddDoc, []byte("doc"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
	require.Equal(t, uint64(5), w.LastTxID())
}

func TestReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, fastOptions())
	require.NoError(t, err)

	type write struct {
		op      Op
		payload string
	}
	writes := []write{
		{OpAddDoc, "doc-1"},
		{OpAddDoc, "doc-2"},
		{OpSetMeta, "meta"},
		{OpCommit, ""},
	}
	for _, wr := range writes {
		_, err := w.Append(wr.op, []byte(wr.payload))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	var replayed []Entry
	lastTxID, err := Replay(dir, func(e Entry) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(4), lastTxID)
	require.Len(t, replayed, 4)
	for i, wr := range writes {
		require.Equal(t, wr.op, replayed[i].Op)
		require.Equal(t, []byte(wr.payload), replayed[i].Payload)
	}
}

func TestReplayStopsAtCorruptionAndTruncates(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, fastOptions())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := w.Append(OpAddDoc, []byte("doc"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	names, err := w.segmentFiles()
	require.NoError(t, err)
	require.Len(t, names, 1)
	path := filepath.Join(dir, names[0])

	// Flip a bit well into the payload of the 3rd entry.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// header(32) + 2 entries; each entry with the 3-byte payload "doc" is
	// body=9+3=12, total=4+12+4=20, pad=4 -> 24 bytes/entry.
	const entrySize = 24
	corruptOffset := headerSize + 2*entrySize + 15
	data[corruptOffset] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var replayed []Entry
	lastTxID, err := Replay(dir, func(e Entry) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), lastTxID)
	require.Len(t, replayed, 2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(headerSize+2*entrySize), info.Size())
}

func TestRotateStartsNewBaseTxID(t *testing.T) {
	dir := t.TempDir()
	opts := fastOptions()
	opts.MaxFileEntries = 2
	w, err := Open(dir, opts)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := w.Append(OpAddDoc, []byte("x"))
		require.NoError(t, err)
	}

	names, err := w.segmentFiles()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(names), 2)
}
