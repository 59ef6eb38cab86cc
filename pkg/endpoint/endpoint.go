// Package endpoint identifies shards: the (host, port, path) triple a
// client or peer uses to address a single index, plus the mastery rank
// used to decide which replica is authoritative.
package endpoint

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPort is used when an endpoint URI omits an explicit port.
const DefaultPort = 8890

// Endpoint is a reference to a shard, optionally hosted on a remote node.
// Two endpoints are equal iff (Host, Port, Path) match; MasteryLevel and
// NodeName do not participate in equality so that a node can compare its
// own view of a shard against a peer's announcement for the same path.
type Endpoint struct {
	Scheme       string
	Host         string
	Port         int
	Path         string
	MasteryLevel int64
	NodeName     string
}

// Parse builds an Endpoint from a URI of the form
// "[xapian://]host[:port]/path[?mastery=N]". Mastery defaults to 0.
func Parse(uri string) (Endpoint, error) {
	raw := uri
	if !strings.Contains(raw, "://") {
		raw = "xapian://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid uri %q: %w", uri, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint: missing host in %q", uri)
	}

	host := u.Hostname()
	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint: invalid port in %q: %w", uri, err)
		}
	}

	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return Endpoint{}, fmt.Errorf("endpoint: missing path in %q", uri)
	}

	mastery := int64(0)
	if m := u.Query().Get("mastery"); m != "" {
		mastery, err = strconv.ParseInt(m, 10, 64)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint: invalid mastery in %q: %w", uri, err)
		}
	}

	return Endpoint{
		Scheme:       u.Scheme,
		Host:         host,
		Port:         port,
		Path:         path,
		MasteryLevel: mastery,
	}, nil
}

// Equal reports whether two endpoints address the same shard.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Host == other.Host && e.Port == other.Port && e.Path == other.Path
}

// String renders the canonical URI form, including mastery when nonzero.
func (e Endpoint) String() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "xapian"
	}
	s := fmt.Sprintf("%s://%s:%d/%s", scheme, e.Host, e.Port, e.Path)
	if e.MasteryLevel != 0 {
		s += fmt.Sprintf("?mastery=%d", e.MasteryLevel)
	}
	return s
}

// Endpoints is an ordered multiset of Endpoint treated as a shard group.
type Endpoints []Endpoint

// Sorted returns a copy ordered by (Host, Port, Path) for stable hashing
// and for deterministic tie-breaking by node name when mastery is equal.
func (es Endpoints) Sorted() Endpoints {
	out := make(Endpoints, len(es))
	copy(out, es)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.NodeName < b.NodeName
	})
	return out
}

// RankByMastery returns the endpoints ordered by non-increasing
// MasteryLevel, ties broken by stable NodeName order, per §4.2's and
// §4.6's tie-break rule.
func (es Endpoints) RankByMastery() Endpoints {
	out := make(Endpoints, len(es))
	copy(out, es)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MasteryLevel != out[j].MasteryLevel {
			return out[i].MasteryLevel > out[j].MasteryLevel
		}
		return out[i].NodeName < out[j].NodeName
	})
	return out
}

// String renders the comma-joined canonical form of every member.
func (es Endpoints) String() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

// Hash returns a stable key for (endpoints, writable), used by the
// Database Pool to key its per-shard queues (§4.2).
func Hash(es Endpoints, writable bool) uint64 {
	h := fnvOffset
	for _, e := range es.Sorted() {
		h = fnvMix(h, e.Host)
		h = fnvMix(h, strconv.Itoa(e.Port))
		h = fnvMix(h, e.Path)
	}
	if writable {
		h = fnvMix(h, "w")
	} else {
		h = fnvMix(h, "r")
	}
	return h
}

const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)

func fnvMix(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	h ^= 0
	h *= fnvPrime
	return h
}
