package walog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// decodeEntry reads one entry (§6 layout) including its alignment
// padding. ok is false (with err == nil) when the record is truncated
// or its checksum is wrong — the only two corruption shapes a reader
// can observe — signaling the caller to stop per §4.1.
func decodeEntry(r *bufio.Reader) (entry Entry, n int, ok bool, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Entry{}, 0, false, io.EOF
		}
		return Entry{}, 0, false, nil // short read: truncated record
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	if bodyLen < 9 {
		return Entry{}, 4, false, nil
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Entry{}, 4, false, nil
	}

	var sumBuf [4]byte
	if _, err := io.ReadFull(r, sumBuf[:]); err != nil {
		return Entry{}, 4 + int(bodyLen), false, nil
	}

	total := 4 + int(bodyLen) + 4
	pad := padLen(total)
	if pad > 0 {
		if _, err := io.ReadFull(r, make([]byte, pad)); err != nil {
			return Entry{}, total, false, nil
		}
	}

	txID := binary.BigEndian.Uint64(body[0:8])
	op := Op(body[8])
	payload := append([]byte(nil), body[9:]...)
	wantSum := binary.BigEndian.Uint32(sumBuf[:])
	gotSum := checksum(txID, op, payload)

	e := Entry{TxID: txID, Op: op, Payload: payload, Checksum: wantSum}
	if wantSum != gotSum {
		return e, total + pad, false, nil
	}
	return e, total + pad, true, nil
}

// repairSegments scans every "wal.*" file in dir in order, invoking
// handler (if non-nil) for each valid entry, and truncates/deletes at
// the first corrupt or incomplete record found, per §4.1. It returns
// the highest tx_id that survived.
func repairSegments(dir string, handler Handler) (uint64, error) {
	logger := slog.With("component", "walog.repair", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("walog: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > 4 && e.Name()[:4] == "wal." {
			names = append(names, e.Name())
		}
	}

	var lastGood uint64
	stoppedAt := -1

	for i, name := range names {
		path := filepath.Join(dir, name)
		last, err := replayOneFile(path, handler, logger)
		if err == errFileCorruptHeader {
			stoppedAt = i
			break
		}
		if err == errSegmentTruncated {
			lastGood = last
			stoppedAt = i + 1
			break
		}
		if err != nil {
			return 0, err
		}
		lastGood = last
	}

	if stoppedAt >= 0 {
		for _, name := range names[stoppedAt:] {
			path := filepath.Join(dir, name)
			logger.Info("removing corrupt wal segment", "file", name)
			if err := os.Remove(path); err != nil {
				return 0, fmt.Errorf("walog: remove corrupt segment %s: %w", path, err)
			}
		}
	}

	return lastGood, nil
}

var errFileCorruptHeader = fmt.Errorf("walog: segment header corrupt")

var errSegmentTruncated = fmt.Errorf("walog: segment truncated at a corrupt record")

// replayOneFile streams and verifies one segment file, truncating it
// at the last good boundary (and returning errSegmentTruncated) if a
// corrupt or incomplete record is found partway through.
func replayOneFile(path string, handler Handler, logger *slog.Logger) (uint64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("walog: open %s: %w", path, err)
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return 0, errFileCorruptHeader
	}

	br := bufio.NewReader(f)
	offset := int64(headerSize)
	lastTxID := hdr.BaseTxID - 1

	for {
		e, n, ok, err := decodeEntry(br)
		if err == io.EOF {
			break
		}
		if !ok {
			logger.Info("wal corruption detected, truncating", "file", filepath.Base(path), "offset", offset)
			if terr := f.Truncate(offset); terr != nil {
				return 0, fmt.Errorf("walog: truncate %s: %w", path, terr)
			}
			return lastTxID, errSegmentTruncated
		}
		if handler != nil {
			if herr := handler(e); herr != nil {
				return 0, fmt.Errorf("walog: replay handler tx=%d: %w", e.TxID, herr)
			}
		}
		lastTxID = e.TxID
		offset += int64(n)
	}

	return lastTxID, nil
}

// Replay streams every valid entry in dir, in tx_id order, to handler,
// performing the same corruption-boundary repair as Open (§4.1's
// replay contract is always idempotent and safe to re-run). Readers
// use independent file descriptors from any live writer, per §5.
func Replay(dir string, handler Handler) (uint64, error) {
	return repairSegments(dir, handler)
}
