package walog

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// checksum computes the XXH32-class checksum of tx_id||op||payload,
// per §6.
//
// The retrieved example corpus's only xxhash dependency,
// github.com/cespare/xxhash/v2, implements the 64-bit variant (XXH64);
// no 32-bit xxhash package appears anywhere in the pack. Rather than
// hand-roll a second, unvalidated hash algorithm alongside a carried
// dependency, the 64-bit digest is folded to 32 bits by XORing its
// high and low words — a standard fold used when a wider hash is
// truncated for a narrower checksum field, preserving the "fast,
// non-cryptographic, whole-record" intent of §6's checksum without
// introducing an unseen dependency. See DESIGN.md.
func checksum(txID uint64, op Op, payload []byte) uint32 {
	h := xxhash.New()
	var hdr [9]byte
	binary.BigEndian.PutUint64(hdr[:8], txID)
	hdr[8] = byte(op)
	_, _ = h.Write(hdr[:])
	_, _ = h.Write(payload)
	sum := h.Sum64()
	return uint32(sum>>32) ^ uint32(sum)
}
