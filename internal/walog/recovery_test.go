package walog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWALRestoreAtFileBoundary exercises seed scenario 1 ("WAL restore")
// against the log directly: index many documents, snapshot the
// directory at a WAL file boundary, replay the copy, and confirm it
// yields exactly the same entries (tx_id, op and payload) up to that
// point.
func TestWALRestoreAtFileBoundary(t *testing.T) {
	dir := t.TempDir()
	opts := fastOptions()
	opts.MaxFileEntries = 100 // forces several rotations over 1020 documents

	w, err := Open(dir, opts)
	require.NoError(t, err)

	const total = 1020
	const snapshotAt = 1016

	body, err := json.Marshal(map[string]string{"message": "Hello world"})
	require.NoError(t, err)

	var snapshotDir string
	for i := 1; i <= total; i++ {
		txID, err := w.Append(OpAddDoc, body)
		require.NoError(t, err)
		require.Equal(t, uint64(i), txID)

		if i == snapshotAt {
			require.NoError(t, w.Rotate())
			snapshotDir = t.TempDir()
			copyDir(t, dir, snapshotDir)
		}
	}
	require.NoError(t, w.Close())
	require.NotEmpty(t, snapshotDir)

	var liveEntries []Entry
	_, err = Replay(dir, func(e Entry) error {
		liveEntries = append(liveEntries, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, liveEntries, total)

	var restoredEntries []Entry
	lastTxID, err := Replay(snapshotDir, func(e Entry) error {
		restoredEntries = append(restoredEntries, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(snapshotAt), lastTxID)
	require.Len(t, restoredEntries, snapshotAt)

	for i := range restoredEntries {
		require.Equal(t, liveEntries[i].TxID, restoredEntries[i].TxID)
		require.Equal(t, liveEntries[i].Op, restoredEntries[i].Op)
		require.Equal(t, liveEntries[i].Payload, restoredEntries[i].Payload)
	}
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, e.IsDir())
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644))
	}
}
