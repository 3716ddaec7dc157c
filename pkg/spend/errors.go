package spend

import (
	"errors"
	"fmt"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/ledger"
)

var (
	ErrNothingStaged      = errors.New("spend: no actions staged")
	ErrNoCarrier          = errors.New("spend: no owned spend available to carry outputs or conditions")
	ErrGenesisCoinMissing = errors.New("spend: issuance genesis coin is not in the session pool")
	ErrSingletonNotFound  = errors.New("spend: singleton is not in the session pool")
	ErrPuzzleMismatch     = errors.New("spend: coin puzzle hash does not match the supplied keys")
)

// InsufficientFundsError reports that the pooled coins of one asset cannot
// cover the staged batch.
type InsufficientFundsError struct {
	Asset     assets.Id
	Required  uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("spend: insufficient funds for %s: need %d, have %d (short %d)",
		e.Asset, e.Required, e.Available, e.Required-e.Available)
}

// Shortfall is the amount the pool is missing.
func (e *InsufficientFundsError) Shortfall() uint64 {
	return e.Required - e.Available
}

// DuplicateCoinError reports a coin added or spent twice.
type DuplicateCoinError struct {
	CoinID ledger.Hash256
}

func (e *DuplicateCoinError) Error() string {
	return fmt.Sprintf("spend: duplicate coin %s", e.CoinID)
}

// RingSequencingMismatchError reports a fungible asset whose spends do not
// conserve supply: the announcement ring cannot close on a non-zero balance.
type RingSequencingMismatchError struct {
	AssetID   ledger.Hash256
	Imbalance int64
}

func (e *RingSequencingMismatchError) Error() string {
	return fmt.Sprintf("spend: conservation ring for asset %s does not close, imbalance %d",
		e.AssetID, e.Imbalance)
}

// UnsatisfiedAssertionError reports an assertion condition with no matching
// creation inside the bundle.
type UnsatisfiedAssertionError struct {
	Kind string
	ID   ledger.Hash256
}

func (e *UnsatisfiedAssertionError) Error() string {
	return fmt.Sprintf("spend: unsatisfied %s assertion %s", e.Kind, e.ID)
}
