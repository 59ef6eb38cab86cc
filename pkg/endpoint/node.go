package endpoint

import (
	"strings"
	"time"
)

// Node is a cluster member as seen by the discovery layer (§3, §4.3).
type Node struct {
	Name       string
	Host       string
	HTTPPort   uint16
	BinaryPort uint16
	Region     int32
	Touched    time.Time
}

// NameKey returns the case-insensitive key used in the membership table,
// since node names are unique case-insensitively per §3.
func NameKey(name string) string {
	return strings.ToLower(name)
}

// Stalled reports whether the node has not been heard from within max,
// per §3's "stalled" definition.
func (n Node) Stalled(now time.Time, max time.Duration) bool {
	return n.Touched.Before(now.Add(-max))
}
