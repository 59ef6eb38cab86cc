package remote

import (
	"fmt"
	"sort"
	"sync"
)

// fakeShard is a tiny in-memory ShardOps double: tests drive Connection
// through the wire without a real index engine, the same role
// fakeIndexEngine plays for dbpool's tests.
type fakeShard struct {
	mu   sync.Mutex
	docs map[uint32][]byte
	meta map[string]string
	next uint32

	committed bool
	canceled  bool
	failNext  error
}

func newFakeShard() *fakeShard {
	return &fakeShard{
		docs: make(map[uint32][]byte),
		meta: make(map[string]string),
		next: 1,
	}
}

func (f *fakeShard) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeShard) Update(writable bool) (UpdateInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return UpdateInfo{}, err
	}
	return UpdateInfo{
		ProtocolMajor: 1,
		ProtocolMinor: 0,
		DocCount:      uint32(len(f.docs)),
		LastDocID:     f.next - 1,
		UUID:          "fake-uuid",
	}, nil
}

func (f *fakeShard) PrepareQuery(params QueryParams) (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return Stats{}, err
	}
	n := int32(len(f.docs))
	return Stats{MatchesEstimated: n, MatchesLowerBound: n, MatchesUpperBound: n}, nil
}

func (f *fakeShard) GetMSet(first, maxItems, checkAtLeast int32) (MSetResult, error) {
	return MSetResult{MSet: []byte("mset"), SpyResult: []byte("spy")}, nil
}

func (f *fakeShard) TermExists(term string) (bool, error) {
	return term == "known", nil
}

func (f *fakeShard) TermFreq(term string) (uint32, error) { return 3, nil }
func (f *fakeShard) CollFreq(term string) (uint32, error) { return 9, nil }

func (f *fakeShard) DocLength(docID uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint32(len(f.docs[docID])), nil
}

func (f *fakeShard) UniqueTerms(docID uint32) (uint32, error) { return 5, nil }

func (f *fakeShard) Freqs(term string) (uint32, uint32, error) {
	return 3, 9, nil
}

func (f *fakeShard) GetMetadata(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[key], nil
}

func (f *fakeShard) GetDocument(docID uint32) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.docs[docID]
	if !ok {
		return Document{}, fmt.Errorf("no such document %d", docID)
	}
	return Document{DocID: docID, Data: data}, nil
}

func (f *fakeShard) AddDocument(data []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.docs[id] = data
	return id, nil
}

func (f *fakeShard) ReplaceDocument(docID uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[docID] = data
	if docID >= f.next {
		f.next = docID + 1
	}
	return nil
}

func (f *fakeShard) ReplaceDocumentTerm(term string, data []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.docs[id] = data
	return id, nil
}

func (f *fakeShard) DeleteDocument(docID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, docID)
	return nil
}

func (f *fakeShard) DeleteDocumentTerm(term string) error { return nil }

func (f *fakeShard) SetMetadata(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[key] = value
	return nil
}

func (f *fakeShard) AddSpelling(term string, freqIncrement uint32) error    { return nil }
func (f *fakeShard) RemoveSpelling(term string, freqDecrement uint32) error { return nil }

func (f *fakeShard) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = true
	return nil
}

func (f *fakeShard) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = true
	return nil
}

func (f *fakeShard) AllTerms(prefix string) ([]string, error) {
	return []string{"a", "ab", "abc", "abd", "ac"}, nil
}

func (f *fakeShard) TermList(docID uint32) ([]string, error) {
	return []string{"alpha", "beta"}, nil
}

func (f *fakeShard) PositionList(docID uint32, term string) ([]uint32, error) {
	return []uint32{1, 2, 3}, nil
}

func (f *fakeShard) PostList(term string) ([]uint32, error) {
	return []uint32{1, 2, 3}, nil
}

func (f *fakeShard) MetadataKeyList(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.meta))
	for k := range f.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
