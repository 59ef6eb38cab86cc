package localshard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand-core/internal/walog"
)

func fastWALOpts() walog.Options {
	opts := walog.DefaultOptions()
	opts.GroupCommitWindow = 0
	opts.GroupCommitMaxBatch = 1
	return opts
}

func TestEngineOpenReturnsSameShardForSamePath(t *testing.T) {
	e := NewEngine(t.TempDir(), fastWALOpts())
	h1, err := e.Open("twitter", true)
	require.NoError(t, err)
	h2, err := e.Open("twitter", true)
	require.NoError(t, err)
	require.Same(t, h1, h2)
}

func TestAddDocumentThenGetDocumentRoundTrips(t *testing.T) {
	e := NewEngine(t.TempDir(), fastWALOpts())
	h, err := e.Open("twitter", true)
	require.NoError(t, err)
	shard := h.(*Shard)

	id, err := shard.AddDocument([]byte(`{"hello":"world"}`))
	require.NoError(t, err)

	doc, err := shard.GetDocument(id)
	require.NoError(t, err)
	require.Equal(t, `{"hello":"world"}`, string(doc.Data))

	info, err := shard.Update(true)
	require.NoError(t, err)
	require.Equal(t, uint32(1), info.DocCount)
}

func TestReplayRestoresDocumentsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	e1 := NewEngine(dir, fastWALOpts())
	h, err := e1.Open("twitter", true)
	require.NoError(t, err)
	shard := h.(*Shard)

	id, err := shard.AddDocument([]byte("doc-1"))
	require.NoError(t, err)
	require.NoError(t, shard.SetMetadata("schema_version", "3"))
	require.NoError(t, shard.Close())

	e2 := NewEngine(dir, fastWALOpts())
	h2, err := e2.Open("twitter", true)
	require.NoError(t, err)
	shard2 := h2.(*Shard)

	doc, err := shard2.GetDocument(id)
	require.NoError(t, err)
	require.Equal(t, "doc-1", string(doc.Data))

	meta, err := shard2.GetMetadata("schema_version")
	require.NoError(t, err)
	require.Equal(t, "3", meta)
}

func TestDeleteDocumentRemovesIt(t *testing.T) {
	e := NewEngine(t.TempDir(), fastWALOpts())
	h, err := e.Open("twitter", true)
	require.NoError(t, err)
	shard := h.(*Shard)

	id, err := shard.AddDocument([]byte("doc"))
	require.NoError(t, err)
	require.NoError(t, shard.DeleteDocument(id))

	_, err = shard.GetDocument(id)
	require.Error(t, err)
}

func TestMetadataKeyListFiltersByPrefix(t *testing.T) {
	e := NewEngine(t.TempDir(), fastWALOpts())
	h, err := e.Open("twitter", true)
	require.NoError(t, err)
	shard := h.(*Shard)

	require.NoError(t, shard.SetMetadata("schema_version", "1"))
	require.NoError(t, shard.SetMetadata("schema_fields", "a,b"))
	require.NoError(t, shard.SetMetadata("other", "x"))

	keys, err := shard.MetadataKeyList("schema_")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"schema_version", "schema_fields"}, keys)
}
