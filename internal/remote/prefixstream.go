package remote

import (
	"bytes"
	"errors"

	"github.com/xapiand/xapiand-core/internal/wire"
)

var errUnexpectedFrameType = errors.New("unexpected frame type in stream")

// streamedListReply turns a sorted string list into the frame sequence
// §4.5's streaming requests (AllTerms, TermList, PositionList, PostList,
// MetadataKeyList) reply with: one RepListEntry frame per prefix-
// compressed entry, terminated by a RepDone frame. Seed scenario 2:
// ["a","ab","abc","abd","ac"] encodes as entries {0,"a"},{1,"b"},
// {2,"c"},{2,"d"},{1,"c"} followed by Done.
func streamedListReply(items []string) []wire.Frame {
	raw := make([][]byte, len(items))
	for i, s := range items {
		raw[i] = []byte(s)
	}
	entries := wire.PrefixEncode(raw)

	frames := make([]wire.Frame, 0, len(entries)+1)
	for _, e := range entries {
		var buf bytes.Buffer
		buf.WriteByte(e.Reuse)
		putBytes(&buf, e.Suffix)
		frames = append(frames, wire.Frame{Type: byte(RepListEntry), Payload: buf.Bytes()})
	}
	frames = append(frames, wire.Frame{Type: byte(RepDone)})
	return frames
}

// decodeStreamedList is the client-side counterpart, reconstructing the
// original list from a RepListEntry sequence terminated by RepDone.
// Used by remote's tests to verify round-tripping without a live socket.
func decodeStreamedList(frames []wire.Frame) ([]string, error) {
	entries := make([]wire.PrefixEntry, 0, len(frames))
	for _, f := range frames {
		if ReplyType(f.Type) == RepDone {
			break
		}
		if ReplyType(f.Type) != RepListEntry {
			return nil, errBadMessage("decodeStreamedList", errUnexpectedFrameType)
		}
		r := bytes.NewReader(f.Payload)
		reuse, err := r.ReadByte()
		if err != nil {
			return nil, errBadMessage("decodeStreamedList: reuse", err)
		}
		suffix, err := getBytes(r)
		if err != nil {
			return nil, errBadMessage("decodeStreamedList: suffix", err)
		}
		entries = append(entries, wire.PrefixEntry{Reuse: reuse, Suffix: suffix})
	}
	raw := wire.PrefixDecode(entries)
	out := make([]string, len(raw))
	for i, b := range raw {
		out[i] = string(b)
	}
	return out, nil
}
