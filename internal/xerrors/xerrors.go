// Package xerrors collects the error kinds the core surfaces across its
// components (§7), following the sentinel-error-per-concern pattern
// internal/storage/wal/errors.go used, consolidated into one place since
// §7 enumerates a single cross-cutting list rather than a per-package one.
package xerrors

import "errors"

// Kind classifies a surfaced error so callers can branch on category
// without string matching, independent of the wrapped sentinel.
type Kind int

const (
	KindUnknown Kind = iota
	KindCheckoutError
	KindCheckoutTimeout
	KindDatabaseCorrupt
	KindDatabaseWALError
	KindStorageFull
	KindNetworkError
	KindNetworkTimeout
	KindProtocolVersionMismatch
	KindClusterNameMismatch
	KindBadMessage
	KindEndpointUnresolved
	KindNoSuchNode
	KindNodeNameConflict
	KindInvalidArgument
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindCheckoutError:
		return "CheckoutError"
	case KindCheckoutTimeout:
		return "CheckoutTimeout"
	case KindDatabaseCorrupt:
		return "DatabaseCorrupt"
	case KindDatabaseWALError:
		return "DatabaseWALError"
	case KindStorageFull:
		return "StorageFull"
	case KindNetworkError:
		return "NetworkError"
	case KindNetworkTimeout:
		return "NetworkTimeout"
	case KindProtocolVersionMismatch:
		return "ProtocolVersionMismatch"
	case KindClusterNameMismatch:
		return "ClusterNameMismatch"
	case KindBadMessage:
		return "BadMessage"
	case KindEndpointUnresolved:
		return "EndpointUnresolved"
	case KindNoSuchNode:
		return "NoSuchNode"
	case KindNodeNameConflict:
		return "NodeNameConflict"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

var (
	ErrCheckoutError           = errors.New("checkout failed")
	ErrCheckoutTimeout         = errors.New("checkout timed out")
	ErrDatabaseCorrupt         = errors.New("database is corrupt")
	ErrDatabaseWALError        = errors.New("database wal error")
	ErrStorageFull             = errors.New("storage full")
	ErrNetworkError            = errors.New("network error")
	ErrNetworkTimeout          = errors.New("network timeout")
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")
	ErrClusterNameMismatch     = errors.New("cluster name mismatch")
	ErrBadMessage              = errors.New("bad message")
	ErrEndpointUnresolved      = errors.New("endpoint unresolved")
	ErrNoSuchNode              = errors.New("no such node")
	ErrNodeNameConflict        = errors.New("node name conflict")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInternalError           = errors.New("internal error")
)

// kindOf maps each sentinel to its Kind, used by Of below.
var kindOf = map[error]Kind{
	ErrCheckoutError:           KindCheckoutError,
	ErrCheckoutTimeout:         KindCheckoutTimeout,
	ErrDatabaseCorrupt:         KindDatabaseCorrupt,
	ErrDatabaseWALError:        KindDatabaseWALError,
	ErrStorageFull:             KindStorageFull,
	ErrNetworkError:            KindNetworkError,
	ErrNetworkTimeout:          KindNetworkTimeout,
	ErrProtocolVersionMismatch: KindProtocolVersionMismatch,
	ErrClusterNameMismatch:     KindClusterNameMismatch,
	ErrBadMessage:              KindBadMessage,
	ErrEndpointUnresolved:      KindEndpointUnresolved,
	ErrNoSuchNode:              KindNoSuchNode,
	ErrNodeNameConflict:        KindNodeNameConflict,
	ErrInvalidArgument:         KindInvalidArgument,
	ErrInternalError:           KindInternalError,
}

// Of returns the Kind of err by walking its wrap chain against the
// sentinels above, or KindUnknown if none match.
func Of(err error) Kind {
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
