package assets

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// BurnPuzzleHash is the well-known unspendable sink. No program hashes to
// it, so value locked there is permanently removed from circulation.
var BurnPuzzleHash = ledger.HashBytes([]byte("spendkit/burn/v1"))

// An Action is one declarative intent in a batch. Actions never name coins;
// the orchestrator picks coins after the batch resolves into deltas.
type Action interface {
	isAction()
}

// Send pays Amount of Asset to a puzzle hash.
type Send struct {
	Asset  Id
	To     ledger.Hash256
	Amount uint64
	Memos  [][]byte
}

// Burn removes Amount of Asset from circulation by paying the burn sink.
type Burn struct {
	Asset  Id
	Amount uint64
}

// Fee reserves Amount of native value for the block producer.
type Fee struct {
	Amount uint64
}

// IssueCat creates Amount units of a new fungible asset whose identity and
// issuance policy both derive from Tail.
type IssueCat struct {
	Tail   TailSpec
	Amount uint64
}

// MintNft launches a new singleton carrying a metadata commitment and an
// on-transfer royalty obligation. Amount must be odd; 1 is the convention.
type MintNft struct {
	To                 ledger.Hash256
	MetadataDigest     ledger.Hash256
	RoyaltyPuzzleHash  ledger.Hash256
	RoyaltyBasisPoints uint16
	Amount             uint64
}

// UpdateNft re-commits an existing singleton to a new metadata digest.
type UpdateNft struct {
	Asset          Id
	MetadataDigest ledger.Hash256
}

// CreateDid launches a new identity singleton owned by To.
type CreateDid struct {
	To     ledger.Hash256
	Amount uint64
}

// UpdateDid rotates an identity singleton to a new inner puzzle hash.
type UpdateDid struct {
	Asset          Id
	NewInnerPuzzle ledger.Hash256
}

// Settle pays out notarized payment groups from the public settlement
// program for Asset, as the taker side of an offer does.
type Settle struct {
	Asset    Id
	Payments []ledger.NotarizedPayment
}

// MeltSingleton destroys a singleton, releasing its amount as fee.
type MeltSingleton struct {
	Asset Id
}

func (Send) isAction()          {}
func (Burn) isAction()          {}
func (Fee) isAction()           {}
func (IssueCat) isAction()      {}
func (MintNft) isAction()       {}
func (UpdateNft) isAction()     {}
func (CreateDid) isAction()     {}
func (UpdateDid) isAction()     {}
func (Settle) isAction()        {}
func (MeltSingleton) isAction() {}

// TailSpec describes an issuance policy without constructing its program.
type TailSpec struct {
	Kind enum.TailKind

	// GenesisCoinID pins one-shot issuance to a single coin
	// (TailKindGenesisByCoinID).
	GenesisCoinID ledger.Hash256

	// PublicKey countersigns every supply change
	// (TailKindEverythingWithSignature).
	PublicKey bls.PublicKey
}

// Program builds the policy reveal.
func (t TailSpec) Program() (ledger.Program, error) {
	switch t.Kind {
	case enum.TailKindGenesisByCoinID:
		return puzzle.GenesisByCoinIDTail(t.GenesisCoinID), nil
	case enum.TailKindEverythingWithSignature:
		return puzzle.EverythingWithSignatureTail(t.PublicKey), nil
	default:
		return nil, fmt.Errorf("assets: unknown tail kind %q", t.Kind)
	}
}

// AssetID derives the asset identity the policy commits to.
func (t TailSpec) AssetID() (ledger.Hash256, error) {
	p, err := t.Program()
	if err != nil {
		return ledger.Hash256{}, err
	}
	return puzzle.TreeHash(p), nil
}
