// Package localshard is the local stand-in for the embedded full-text
// index engine that §1 puts out of scope: an in-memory document and
// metadata store whose every mutation is durably appended to a
// per-shard internal/walog.WAL before being applied, the way §2's
// control-flow line describes ("mutate index + append to WAL"). It
// satisfies both dbpool.IndexEngine/IndexHandle (C3's seam) and
// remote.ShardOps (C6's seam), so cmd/xapiand has one real collaborator
// wired into both instead of leaving them permanently stubbed.
package localshard

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xapiand/xapiand-core/internal/dbpool"
	"github.com/xapiand/xapiand-core/internal/remote"
	"github.com/xapiand/xapiand-core/internal/walog"
)

// Engine opens one Shard per distinct path beneath baseDir, each backed
// by its own WAL directory baseDir/<path>/wal.
type Engine struct {
	baseDir string
	walOpts walog.Options

	mu          sync.Mutex
	shards      map[string]*Shard
	metricsHook func(fsyncSeconds float64)
}

// NewEngine builds an Engine rooted at baseDir.
func NewEngine(baseDir string, walOpts walog.Options) *Engine {
	return &Engine{baseDir: baseDir, walOpts: walOpts, shards: make(map[string]*Shard)}
}

// SetMetricsHook installs the fsync-duration hook every shard's WAL is
// opened with from this point on, propagating internal/metrics into
// shards this Engine creates.
func (e *Engine) SetMetricsHook(hook func(fsyncSeconds float64)) {
	e.mu.Lock()
	e.metricsHook = hook
	e.mu.Unlock()
}

// Mastery reports whether this node has ever opened path and, if so,
// its mastery level. The mastery value itself tracks nothing beyond
// "hosted here" (0) since ranking multiple replicas by recency of
// write is a full-text-index-engine concern (§1 Non-goal); it exists so
// discovery.Options.LocalMastery has a real answer to give a peer's
// Endpoint Resolver probe (§4.6) instead of always reporting unknown.
func (e *Engine) Mastery(path string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.shards[path]
	if !ok {
		return 0, false
	}
	return 0, true
}

// Open implements dbpool.IndexEngine. writable is ignored here and does
// not gate anything; the pool itself enforces the single-writer
// invariant (§4.2) before ever calling Open for a writable handle.
func (e *Engine) Open(path string, writable bool) (dbpool.IndexHandle, error) {
	e.mu.Lock()
	s, ok := e.shards[path]
	e.mu.Unlock()
	if ok {
		return s, nil
	}

	w, err := walog.Open(filepath.Join(e.baseDir, path, "wal"), e.walOpts)
	if err != nil {
		return nil, fmt.Errorf("localshard: open wal for %s: %w", path, err)
	}
	e.mu.Lock()
	if e.metricsHook != nil {
		w.SetMetricsHook(e.metricsHook)
	}
	e.mu.Unlock()

	s = &Shard{
		path: path,
		wal:  w,
		docs: make(map[uint32][]byte),
		meta: make(map[string]string),
	}
	if _, err := walog.Replay(filepath.Join(e.baseDir, path, "wal"), s.applyReplay); err != nil {
		return nil, fmt.Errorf("localshard: replay %s: %w", path, err)
	}

	e.mu.Lock()
	e.shards[path] = s
	e.mu.Unlock()
	return s, nil
}

// Shard is one open index: an in-memory projection of everything its
// WAL has durably recorded.
type Shard struct {
	path string
	wal  *walog.WAL

	mu     sync.Mutex
	docs   map[uint32][]byte
	meta   map[string]string
	nextID uint32
}

// Close implements dbpool.IndexHandle.
func (s *Shard) Close() error {
	return s.wal.Close()
}

func (s *Shard) applyReplay(e walog.Entry) error {
	switch e.Op {
	case walog.OpAddDoc:
		id := binary.BigEndian.Uint32(e.Payload[:4])
		s.docs[id] = append([]byte(nil), e.Payload[4:]...)
		if id >= s.nextID {
			s.nextID = id + 1
		}
	case walog.OpReplaceDoc:
		id := binary.BigEndian.Uint32(e.Payload[:4])
		s.docs[id] = append([]byte(nil), e.Payload[4:]...)
	case walog.OpDeleteDoc:
		id := binary.BigEndian.Uint32(e.Payload[:4])
		delete(s.docs, id)
	case walog.OpSetMeta:
		klen := binary.BigEndian.Uint16(e.Payload[:2])
		key := string(e.Payload[2 : 2+klen])
		val := string(e.Payload[2+klen:])
		s.meta[key] = val
	case walog.OpDeleteTerm, walog.OpReplaceTerm, walog.OpAddSpelling, walog.OpRemoveSpelling, walog.OpCommit:
		// no durable in-memory projection needed beyond replay bookkeeping
	}
	return nil
}

// Update implements remote.ShardOps.
func (s *Shard) Update(writable bool) (remote.UpdateInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last uint32
	for id := range s.docs {
		if id > last {
			last = id
		}
	}
	return remote.UpdateInfo{
		ProtocolMajor: 2,
		ProtocolMinor: 0,
		DocCount:      uint32(len(s.docs)),
		LastDocID:     last,
		UUID:          s.path,
	}, nil
}

func (s *Shard) PrepareQuery(params remote.QueryParams) (remote.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int32(len(s.docs))
	return remote.Stats{MatchesEstimated: n, MatchesLowerBound: n, MatchesUpperBound: n}, nil
}

func (s *Shard) GetMSet(first, maxItems, checkAtLeast int32) (remote.MSetResult, error) {
	return remote.MSetResult{}, nil
}

func (s *Shard) TermExists(term string) (bool, error) { return false, nil }
func (s *Shard) TermFreq(term string) (uint32, error) { return 0, nil }
func (s *Shard) CollFreq(term string) (uint32, error) { return 0, nil }

func (s *Shard) DocLength(docID uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.docs[docID])), nil
}

func (s *Shard) UniqueTerms(docID uint32) (uint32, error) { return 0, nil }

func (s *Shard) Freqs(term string) (termFreq, collFreq uint32, err error) { return 0, 0, nil }

func (s *Shard) GetMetadata(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[key], nil
}

func (s *Shard) GetDocument(docID uint32) (remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[docID]
	if !ok {
		return remote.Document{}, fmt.Errorf("localshard: no such document %d", docID)
	}
	return remote.Document{DocID: docID, Data: data}, nil
}

func (s *Shard) AddDocument(data []byte) (uint32, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	payload := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(payload[:4], id)
	copy(payload[4:], data)
	if _, err := s.wal.Append(walog.OpAddDoc, payload); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.docs[id] = append([]byte(nil), data...)
	s.mu.Unlock()
	return id, nil
}

func (s *Shard) ReplaceDocument(docID uint32, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(payload[:4], docID)
	copy(payload[4:], data)
	if _, err := s.wal.Append(walog.OpReplaceDoc, payload); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[docID] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *Shard) ReplaceDocumentTerm(term string, data []byte) (uint32, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	if err := s.ReplaceDocument(id, data); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Shard) DeleteDocument(docID uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, docID)
	if _, err := s.wal.Append(walog.OpDeleteDoc, payload); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, docID)
	s.mu.Unlock()
	return nil
}

func (s *Shard) DeleteDocumentTerm(term string) error {
	_, err := s.wal.Append(walog.OpDeleteTerm, []byte(term))
	return err
}

func (s *Shard) SetMetadata(key, value string) error {
	payload := make([]byte, 2+len(key)+len(value))
	binary.BigEndian.PutUint16(payload[:2], uint16(len(key)))
	copy(payload[2:2+len(key)], key)
	copy(payload[2+len(key):], value)
	if _, err := s.wal.Append(walog.OpSetMeta, payload); err != nil {
		return err
	}
	s.mu.Lock()
	s.meta[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Shard) AddSpelling(term string, freqIncrement uint32) error {
	payload := make([]byte, 4+len(term))
	binary.BigEndian.PutUint32(payload[:4], freqIncrement)
	copy(payload[4:], term)
	_, err := s.wal.Append(walog.OpAddSpelling, payload)
	return err
}

func (s *Shard) RemoveSpelling(term string, freqDecrement uint32) error {
	payload := make([]byte, 4+len(term))
	binary.BigEndian.PutUint32(payload[:4], freqDecrement)
	copy(payload[4:], term)
	_, err := s.wal.Append(walog.OpRemoveSpelling, payload)
	return err
}

func (s *Shard) Commit() error {
	_, err := s.wal.Append(walog.OpCommit, nil)
	return err
}

func (s *Shard) Cancel() error { return nil }

func (s *Shard) AllTerms(prefix string) ([]string, error) { return nil, nil }
func (s *Shard) TermList(docID uint32) ([]string, error)  { return nil, nil }

func (s *Shard) PositionList(docID uint32, term string) ([]uint32, error) { return nil, nil }
func (s *Shard) PostList(term string) ([]uint32, error)                   { return nil, nil }

func (s *Shard) MetadataKeyList(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.meta))
	for k := range s.meta {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
