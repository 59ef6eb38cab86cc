package remote

// UpdateInfo answers a ReadAccess/WriteAccess request, matching §4.5's
// Update reply payload exactly.
type UpdateInfo struct {
	ProtocolMajor    uint32
	ProtocolMinor    uint32
	DocCount         uint32
	LastDocID        uint32
	DoclenLower      uint32
	DoclenUpperDelta uint32
	HasPositions     bool
	TotalLength      int64
	UUID             string
}

// QueryParams carries the enquire parameters accompanying a Query
// request (§4.5): collapse key, sort key, percentage cutoff, weighting
// scheme name, relevance set, and match spy identifiers. The opaque
// query blob itself is out of scope (§1 puts the query-language layer
// out of scope); Query here only needs to round-trip it to the engine.
type QueryParams struct {
	QueryBlob []byte
	Collapse  string
	Sort      string
	Cutoff    int32
	Weighting string
	RSet      []uint32
	MatchSpies []string
}

// Stats answers a prepared Query (§4.5's Stats reply).
type Stats struct {
	MatchesEstimated int32
	MatchesLowerBound int32
	MatchesUpperBound int32
}

// MSetResult answers a GetMSet request: a serialized MSet plus
// serialized match-spy results, both opaque blobs from this
// component's point of view.
type MSetResult struct {
	MSet      []byte
	SpyResult []byte
}

// Document is a stored/retrieved document body plus its docid, returned
// by GetDocument for the Document request.
type Document struct {
	DocID uint32
	Data  []byte
}

// ShardOps is the collaborator interface a Connection dispatches
// requests to. The real query/index engine is out of scope (§1); this
// is the seam, exactly as dbpool.IndexEngine is for C3 — tests use a
// fake implementation (fakeshard_test.go's fakeShard).
type ShardOps interface {
	Update(writable bool) (UpdateInfo, error)
	PrepareQuery(params QueryParams) (Stats, error)
	GetMSet(first, maxItems, checkAtLeast int32) (MSetResult, error)

	TermExists(term string) (bool, error)
	TermFreq(term string) (uint32, error)
	CollFreq(term string) (uint32, error)
	DocLength(docID uint32) (uint32, error)
	UniqueTerms(docID uint32) (uint32, error)
	Freqs(term string) (termFreq, collFreq uint32, err error)
	GetMetadata(key string) (string, error)
	GetDocument(docID uint32) (Document, error)

	AddDocument(data []byte) (docID uint32, err error)
	ReplaceDocument(docID uint32, data []byte) error
	ReplaceDocumentTerm(term string, data []byte) (docID uint32, err error)
	DeleteDocument(docID uint32) error
	DeleteDocumentTerm(term string) error
	SetMetadata(key, value string) error
	AddSpelling(term string, freqIncrement uint32) error
	RemoveSpelling(term string, freqDecrement uint32) error
	Commit() error
	Cancel() error

	AllTerms(prefix string) ([]string, error)
	TermList(docID uint32) ([]string, error)
	PositionList(docID uint32, term string) ([]uint32, error)
	PostList(term string) ([]uint32, error)
	MetadataKeyList(prefix string) ([]string, error)
}

// ShardFactory opens a ShardOps for a selected set of endpoint paths,
// the way dbpool.Pool opens IndexHandles for C3. Production wiring
// plugs dbpool.Pool.Checkout in; tests use a fake.
type ShardFactory func(paths []string, writable bool) (ShardOps, func(), error)
