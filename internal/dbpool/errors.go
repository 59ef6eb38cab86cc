package dbpool

import (
	"errors"
	"fmt"

	"github.com/xapiand/xapiand-core/internal/xerrors"
)

var (
	// ErrPoolClosed is returned by Checkout once Close has been called.
	ErrPoolClosed = errors.New("dbpool: pool is closed")
)

// wrapCheckoutError wraps an IndexEngine.Open failure per §4.2's
// "failure to open the index surfaces as CheckoutError" contract.
func wrapCheckoutError(err error) error {
	return fmt.Errorf("dbpool: checkout %w: %v", xerrors.ErrCheckoutError, err)
}

// ErrCheckoutTimeout is returned when a checkout does not acquire a
// handle before its timeout elapses.
var ErrCheckoutTimeout = fmt.Errorf("dbpool: %w", xerrors.ErrCheckoutTimeout)

// wrapDatabaseCorrupt wraps an IndexEngine.Open failure that the engine
// reports as corruption, per §4.2.
func wrapDatabaseCorrupt(err error) error {
	return fmt.Errorf("dbpool: %w: %v", xerrors.ErrDatabaseCorrupt, err)
}
