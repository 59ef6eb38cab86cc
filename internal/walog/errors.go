package walog

import (
	"errors"
	"fmt"

	"github.com/xapiand/xapiand-core/internal/xerrors"
)

// Package-local sentinels, grounded on internal/storage/wal/errors.go's
// one-sentinel-per-failure-mode pattern, each wrapping the matching
// cross-cutting xerrors.Kind from §7.
var (
	ErrCorrupted = fmt.Errorf("walog: file is corrupted: %w", xerrors.ErrDatabaseCorrupt)
	ErrChecksum  = fmt.Errorf("walog: checksum mismatch: %w", xerrors.ErrDatabaseCorrupt)
	ErrClosed    = errors.New("walog: already closed")
	ErrStorageFull = fmt.Errorf("walog: %w", xerrors.ErrStorageFull)
)
