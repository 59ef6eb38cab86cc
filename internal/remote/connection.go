package remote

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/xapiand/xapiand-core/internal/wire"
	"github.com/xapiand/xapiand-core/internal/xerrors"
)

// connState tracks where a Connection sits in the §4.5 state machine.
// Requests are handled strictly one at a time; there is no pipelining.
type connState int

const (
	stateOpen connState = iota
	stateDatabaseSelected
	stateQueryPrepared
	stateShutdown
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "Open"
	case stateDatabaseSelected:
		return "DatabaseSelected"
	case stateQueryPrepared:
		return "QueryPrepared"
	case stateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// ioTimeout bounds every frame read/write; a stalled peer is dropped
// rather than pinning a server goroutine forever.
const ioTimeout = 30 * time.Second

// Connection drives one client's worth of the Remote Protocol: a
// strictly-serial read-dispatch-write loop over a single wire.Conn,
// mirroring the teacher's per-connection handler shape but replacing
// its job-queue payload with the request/reply catalogue of §4.5.
type Connection struct {
	conn    *wire.Conn
	shard   ShardOps
	release func()
	logger  *slog.Logger

	state   connState
	writable bool
	stats   Stats
}

// NewConnection wraps an accepted wire.Conn. shard/release are
// supplied once ReadAccess or WriteAccess selects a database; until
// then shard is nil and only those two requests are legal.
func NewConnection(conn *wire.Conn, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{conn: conn, logger: logger, state: stateOpen}
}

// Serve runs the dispatch loop until a frame read or write fails (the
// peer disconnecting included) or dispatch reports that the connection
// should close. A Cancel request does not end the loop.
func (c *Connection) Serve(selectShard ShardFactory) {
	defer func() {
		if c.release != nil {
			c.release()
		}
		c.conn.Close()
	}()

	for c.state != stateShutdown {
		f, err := c.conn.Recv(ioTimeout)
		if err != nil {
			c.logger.Debug("connection closed", "err", err)
			return
		}

		frames, fatal := c.dispatch(RequestType(f.Type), f.Payload, selectShard)
		wireErr := false
		for _, reply := range frames {
			if err := c.conn.Send(reply, ioTimeout); err != nil {
				c.logger.Debug("write failed", "err", err)
				wireErr = true
				break
			}
		}
		if wireErr || fatal {
			return
		}
	}
}

// dispatch handles a single request, returning the reply frames (in
// send order) and whether the connection should close afterward.
func (c *Connection) dispatch(reqType RequestType, payload []byte, selectShard ShardFactory) ([]wire.Frame, bool) {
	switch reqType {
	case ReqReadAccess, ReqWriteAccess:
		return single(c.handleAccess(reqType, payload, selectShard)), false
	case ReqQuery:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleQuery(payload)) })
	case ReqGetMSet:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleGetMSet(payload)) })
	case ReqTermExists:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleTermExists(payload)) })
	case ReqTermFreq:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleTermFreq(payload)) })
	case ReqCollFreq:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleCollFreq(payload)) })
	case ReqDocLength:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleDocLength(payload)) })
	case ReqUniqueTerms:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleUniqueTerms(payload)) })
	case ReqFreqs:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleFreqs(payload)) })
	case ReqGetMetadata:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleGetMetadata(payload)) })
	case ReqDocument:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleGetDocument(payload)) })
	case ReqAddDocument:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleAddDocument(payload)) })
	case ReqReplaceDocument:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleReplaceDocument(payload)) })
	case ReqReplaceDocumentTerm:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleReplaceDocumentTerm(payload)) })
	case ReqDeleteDocument:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleDeleteDocument(payload)) })
	case ReqDeleteDocumentTerm:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleDeleteDocumentTerm(payload)) })
	case ReqSetMetadata:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleSetMetadata(payload)) })
	case ReqAddSpelling:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleAddSpelling(payload)) })
	case ReqRemoveSpelling:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleRemoveSpelling(payload)) })
	case ReqCommit:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleCommit(payload)) })
	case ReqCancel:
		return c.requireShard(func() ([]wire.Frame, error) { return single1(c.handleCancel(payload)) })
	case ReqAllTerms:
		return c.requireShard(func() ([]wire.Frame, error) { return c.handleAllTerms(payload) })
	case ReqTermList:
		return c.requireShard(func() ([]wire.Frame, error) { return c.handleTermList(payload) })
	case ReqPositionList:
		return c.requireShard(func() ([]wire.Frame, error) { return c.handlePositionList(payload) })
	case ReqPostList:
		return c.requireShard(func() ([]wire.Frame, error) { return c.handlePostList(payload) })
	case ReqMetadataKeyList:
		return c.requireShard(func() ([]wire.Frame, error) { return c.handleMetadataKeyList(payload) })
	default:
		return single(c.exceptionFrame(errBadMessage("dispatch", fmt.Errorf("unknown request type %d", reqType)))), false
	}
}

// requireShard rejects any data request sent before ReadAccess/
// WriteAccess selected a database (§4.5's state machine).
func (c *Connection) requireShard(fn func() ([]wire.Frame, error)) ([]wire.Frame, bool) {
	if c.shard == nil {
		return single(c.exceptionFrame(errBadMessage("dispatch", fmt.Errorf("no database selected")))), false
	}
	frames, err := fn()
	if err != nil {
		return single(c.exceptionFrame(err)), false
	}
	return frames, false
}

func single(f wire.Frame) []wire.Frame { return []wire.Frame{f} }

func single1(f wire.Frame, err error) ([]wire.Frame, error) {
	if err != nil {
		return nil, err
	}
	return []wire.Frame{f}, nil
}

// exceptionFrame encodes the five-field Exception payload of §6:
// type_code, a length-prefixed context (empty here; no query/docid
// context is tracked per request), a length-prefixed msg (also empty,
// kept distinct from error_string for wire compatibility), and
// error_string carrying err's text.
func (c *Connection) exceptionFrame(err error) wire.Frame {
	var buf bytes.Buffer
	buf.WriteByte(byte(xerrors.Of(err)))
	putString(&buf, "")
	putString(&buf, "")
	putString(&buf, err.Error())
	return wire.Frame{Type: byte(RepException), Payload: buf.Bytes()}
}

func (c *Connection) handleAccess(reqType RequestType, payload []byte, selectShard ShardFactory) wire.Frame {
	r := bytes.NewReader(payload)
	n, err := getUint32(r)
	if err != nil {
		return c.exceptionFrame(errBadMessage("access: path count", err))
	}
	paths := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		p, err := getString(r)
		if err != nil {
			return c.exceptionFrame(errBadMessage("access: path", err))
		}
		paths = append(paths, p)
	}

	writable := reqType == ReqWriteAccess
	shard, release, err := selectShard(paths, writable)
	if err != nil {
		return c.exceptionFrame(err)
	}
	if c.release != nil {
		c.release()
	}
	c.shard, c.release, c.writable = shard, release, writable
	c.state = stateDatabaseSelected

	info, err := shard.Update(writable)
	if err != nil {
		return c.exceptionFrame(err)
	}
	var buf bytes.Buffer
	putUint32(&buf, info.ProtocolMajor)
	putUint32(&buf, info.ProtocolMinor)
	putUint32(&buf, info.DocCount)
	putUint32(&buf, info.LastDocID)
	putUint32(&buf, info.DoclenLower)
	putUint32(&buf, info.DoclenUpperDelta)
	putBool(&buf, info.HasPositions)
	putInt64(&buf, info.TotalLength)
	putString(&buf, info.UUID)
	return wire.Frame{Type: byte(RepUpdate), Payload: buf.Bytes()}
}

func (c *Connection) handleQuery(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	blob, err := getBytes(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("query: blob", err)
	}
	collapse, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("query: collapse", err)
	}
	sort, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("query: sort", err)
	}
	cutoff, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("query: cutoff", err)
	}
	weighting, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("query: weighting", err)
	}

	stats, err := c.shard.PrepareQuery(QueryParams{
		QueryBlob: blob,
		Collapse:  collapse,
		Sort:      sort,
		Cutoff:    int32(cutoff),
		Weighting: weighting,
	})
	if err != nil {
		return wire.Frame{}, err
	}
	c.stats = stats
	c.state = stateQueryPrepared

	var buf bytes.Buffer
	putUint32(&buf, uint32(stats.MatchesEstimated))
	putUint32(&buf, uint32(stats.MatchesLowerBound))
	putUint32(&buf, uint32(stats.MatchesUpperBound))
	return wire.Frame{Type: byte(RepStats), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleGetMSet(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	first, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("getmset: first", err)
	}
	maxItems, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("getmset: maxitems", err)
	}
	checkAtLeast, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("getmset: checkatleast", err)
	}

	result, err := c.shard.GetMSet(int32(first), int32(maxItems), int32(checkAtLeast))
	if err != nil {
		return wire.Frame{}, err
	}
	var buf bytes.Buffer
	putBytes(&buf, result.MSet)
	putBytes(&buf, result.SpyResult)
	return wire.Frame{Type: byte(RepMSet), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleTermExists(payload []byte) (wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("termexists", err)
	}
	exists, err := c.shard.TermExists(term)
	if err != nil {
		return wire.Frame{}, err
	}
	var buf bytes.Buffer
	putBool(&buf, exists)
	return wire.Frame{Type: byte(RepBool), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleTermFreq(payload []byte) (wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("termfreq", err)
	}
	freq, err := c.shard.TermFreq(term)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(freq), nil
}

func (c *Connection) handleCollFreq(payload []byte) (wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("collfreq", err)
	}
	freq, err := c.shard.CollFreq(term)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(freq), nil
}

func (c *Connection) handleDocLength(payload []byte) (wire.Frame, error) {
	docID, err := getUint32(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("doclength", err)
	}
	length, err := c.shard.DocLength(docID)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(length), nil
}

func (c *Connection) handleUniqueTerms(payload []byte) (wire.Frame, error) {
	docID, err := getUint32(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("uniqueterms", err)
	}
	n, err := c.shard.UniqueTerms(docID)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(n), nil
}

func (c *Connection) handleFreqs(payload []byte) (wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("freqs", err)
	}
	termFreq, collFreq, err := c.shard.Freqs(term)
	if err != nil {
		return wire.Frame{}, err
	}
	var buf bytes.Buffer
	putUint32(&buf, termFreq)
	putUint32(&buf, collFreq)
	return wire.Frame{Type: byte(RepUint32), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleGetMetadata(payload []byte) (wire.Frame, error) {
	key, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("getmetadata", err)
	}
	value, err := c.shard.GetMetadata(key)
	if err != nil {
		return wire.Frame{}, err
	}
	var buf bytes.Buffer
	putString(&buf, value)
	return wire.Frame{Type: byte(RepString), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleGetDocument(payload []byte) (wire.Frame, error) {
	docID, err := getUint32(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("document", err)
	}
	doc, err := c.shard.GetDocument(docID)
	if err != nil {
		return wire.Frame{}, err
	}
	var buf bytes.Buffer
	putUint32(&buf, doc.DocID)
	putBytes(&buf, doc.Data)
	return wire.Frame{Type: byte(RepDocument), Payload: buf.Bytes()}, nil
}

func (c *Connection) handleAddDocument(payload []byte) (wire.Frame, error) {
	data, err := getBytes(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("adddocument", err)
	}
	docID, err := c.shard.AddDocument(data)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(docID), nil
}

func (c *Connection) handleReplaceDocument(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	docID, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("replacedocument: docid", err)
	}
	data, err := getBytes(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("replacedocument: data", err)
	}
	if err := c.shard.ReplaceDocument(docID, data); err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(docID), nil
}

func (c *Connection) handleReplaceDocumentTerm(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	term, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("replacedocumentterm: term", err)
	}
	data, err := getBytes(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("replacedocumentterm: data", err)
	}
	docID, err := c.shard.ReplaceDocumentTerm(term, data)
	if err != nil {
		return wire.Frame{}, err
	}
	return uint32Reply(docID), nil
}

func (c *Connection) handleDeleteDocument(payload []byte) (wire.Frame, error) {
	docID, err := getUint32(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("deletedocument", err)
	}
	if err := c.shard.DeleteDocument(docID); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleDeleteDocumentTerm(payload []byte) (wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return wire.Frame{}, errBadMessage("deletedocumentterm", err)
	}
	if err := c.shard.DeleteDocumentTerm(term); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleSetMetadata(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	key, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("setmetadata: key", err)
	}
	value, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("setmetadata: value", err)
	}
	if err := c.shard.SetMetadata(key, value); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleAddSpelling(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	term, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("addspelling: term", err)
	}
	freq, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("addspelling: freq", err)
	}
	if err := c.shard.AddSpelling(term, freq); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleRemoveSpelling(payload []byte) (wire.Frame, error) {
	r := bytes.NewReader(payload)
	term, err := getString(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("removespelling: term", err)
	}
	freq, err := getUint32(r)
	if err != nil {
		return wire.Frame{}, errBadMessage("removespelling: freq", err)
	}
	if err := c.shard.RemoveSpelling(term, freq); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleCommit(payload []byte) (wire.Frame, error) {
	if err := c.shard.Commit(); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleCancel(payload []byte) (wire.Frame, error) {
	if err := c.shard.Cancel(); err != nil {
		return wire.Frame{}, err
	}
	return doneReply(), nil
}

func (c *Connection) handleAllTerms(payload []byte) ([]wire.Frame, error) {
	prefix, err := getString(bytes.NewReader(payload))
	if err != nil {
		return nil, errBadMessage("allterms", err)
	}
	terms, err := c.shard.AllTerms(prefix)
	if err != nil {
		return nil, err
	}
	return streamedListReply(terms), nil
}

func (c *Connection) handleTermList(payload []byte) ([]wire.Frame, error) {
	docID, err := getUint32(bytes.NewReader(payload))
	if err != nil {
		return nil, errBadMessage("termlist", err)
	}
	terms, err := c.shard.TermList(docID)
	if err != nil {
		return nil, err
	}
	return streamedListReply(terms), nil
}

func (c *Connection) handlePositionList(payload []byte) ([]wire.Frame, error) {
	r := bytes.NewReader(payload)
	docID, err := getUint32(r)
	if err != nil {
		return nil, errBadMessage("positionlist: docid", err)
	}
	term, err := getString(r)
	if err != nil {
		return nil, errBadMessage("positionlist: term", err)
	}
	positions, err := c.shard.PositionList(docID, term)
	if err != nil {
		return nil, err
	}
	strs := make([]string, len(positions))
	for i, p := range positions {
		strs[i] = fmt.Sprintf("%020d", p)
	}
	return streamedListReply(strs), nil
}

func (c *Connection) handlePostList(payload []byte) ([]wire.Frame, error) {
	term, err := getString(bytes.NewReader(payload))
	if err != nil {
		return nil, errBadMessage("postlist", err)
	}
	docIDs, err := c.shard.PostList(term)
	if err != nil {
		return nil, err
	}
	strs := make([]string, len(docIDs))
	for i, d := range docIDs {
		strs[i] = fmt.Sprintf("%020d", d)
	}
	return streamedListReply(strs), nil
}

func (c *Connection) handleMetadataKeyList(payload []byte) ([]wire.Frame, error) {
	prefix, err := getString(bytes.NewReader(payload))
	if err != nil {
		return nil, errBadMessage("metadatakeylist", err)
	}
	keys, err := c.shard.MetadataKeyList(prefix)
	if err != nil {
		return nil, err
	}
	return streamedListReply(keys), nil
}

func uint32Reply(v uint32) wire.Frame {
	var buf bytes.Buffer
	putUint32(&buf, v)
	return wire.Frame{Type: byte(RepUint32), Payload: buf.Bytes()}
}

func doneReply() wire.Frame {
	return wire.Frame{Type: byte(RepDone)}
}
