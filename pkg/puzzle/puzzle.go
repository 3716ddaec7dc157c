// Package puzzle defines the engine's own program templates and the gateway
// interface to an external condition evaluator. Foreign programs stay
// opaque; the built-in templates cover the spends this engine synthesizes
// itself: the standard owner-signs-conditions spend, the public settlement
// program, the CAT wrapper, and the singleton/launcher pair.
package puzzle

import (
	"errors"
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/ledger"
)

// Template tags. The first byte of a built-in program reveal.
const (
	tagStandard      uint8 = 0x01
	tagSettlement    uint8 = 0x02
	tagCat           uint8 = 0x03
	tagTailGenesis   uint8 = 0x04
	tagTailSignature uint8 = 0x05
	tagLauncher      uint8 = 0x06
	tagSingleton     uint8 = 0x07
)

var (
	ErrUnknownProgram    = errors.New("puzzle: unknown program")
	ErrMalformedProgram  = errors.New("puzzle: malformed program")
	ErrMalformedSolution = errors.New("puzzle: malformed solution")
)

// StandardPuzzle is the common owner spend: the solution is a declarative
// condition list, and evaluation adds a signature requirement over its
// digest for the curried owner key.
func StandardPuzzle(owner bls.PublicKey) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagStandard)
	e.WriteBytes(owner[:])
	return ledger.Program(e.Bytes())
}

// SettlementPuzzle is the publicly computable settlement program for a
// protocol version. It curries no secrets: anyone may spend a settlement
// coin by presenting notarized payment groups.
func SettlementPuzzle(version uint8) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagSettlement)
	e.WriteUint8(version)
	return ledger.Program(e.Bytes())
}

// SettlementPuzzleHash is the well-known lock target for offers.
func SettlementPuzzleHash(version uint8) ledger.Hash256 {
	return TreeHash(SettlementPuzzle(version))
}

// CatPuzzle wraps an inner puzzle in the fungible-asset layer for assetID.
func CatPuzzle(assetID ledger.Hash256, inner ledger.Program) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagCat)
	e.WriteHash(assetID)
	e.WriteBytes(inner)
	return ledger.Program(e.Bytes())
}

// CatPuzzleHash computes the wrapped puzzle hash from the inner hash alone,
// so outputs can be addressed without revealing the inner program.
func CatPuzzleHash(assetID, innerHash ledger.Hash256) ledger.Hash256 {
	return ledger.HashConcat([]byte{tagCat}, assetID[:], innerHash[:])
}

// GenesisByCoinIDTail authorizes issuance exactly once, from one specific
// genesis coin. The asset id is the tail program's tree hash.
func GenesisByCoinIDTail(genesisCoinID ledger.Hash256) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagTailGenesis)
	e.WriteHash(genesisCoinID)
	return ledger.Program(e.Bytes())
}

// EverythingWithSignatureTail authorizes any supply change countersigned by
// the curried key.
func EverythingWithSignatureTail(pk bls.PublicKey) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagTailSignature)
	e.WriteBytes(pk[:])
	return ledger.Program(e.Bytes())
}

// LauncherPuzzle is the public singleton launcher. Its coin id becomes the
// launcher id of the singleton it creates.
func LauncherPuzzle() ledger.Program {
	return ledger.Program([]byte{tagLauncher})
}

func LauncherPuzzleHash() ledger.Hash256 {
	return TreeHash(LauncherPuzzle())
}

// SingletonPuzzle wraps an inner puzzle in the unique-lineage layer for one
// launcher id.
func SingletonPuzzle(launcherID ledger.Hash256, inner ledger.Program) ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint8(tagSingleton)
	e.WriteHash(launcherID)
	e.WriteBytes(inner)
	return ledger.Program(e.Bytes())
}

func SingletonPuzzleHash(launcherID, innerHash ledger.Hash256) ledger.Hash256 {
	return ledger.HashConcat([]byte{tagSingleton}, launcherID[:], innerHash[:])
}

// CatAssetID extracts the asset id from a wrapped fungible program.
func CatAssetID(p ledger.Program) (ledger.Hash256, bool) {
	if len(p) == 0 || p[0] != tagCat {
		return ledger.Hash256{}, false
	}
	body, err := parseWrapper(p)
	if err != nil {
		return ledger.Hash256{}, false
	}
	return body.id, true
}

// TreeHash is the structural puzzle hash. Wrapper templates commit to the
// hash of their inner program, not its bytes, so a coin's puzzle hash can be
// computed before the inner reveal is known. Unknown programs hash as plain
// sha256 of their serialization.
func TreeHash(p ledger.Program) ledger.Hash256 {
	if len(p) == 0 {
		return ledger.HashBytes(nil)
	}
	switch p[0] {
	case tagCat:
		body, err := parseWrapper(p)
		if err != nil {
			return ledger.HashBytes(p)
		}
		return CatPuzzleHash(body.id, TreeHash(body.inner))
	case tagSingleton:
		body, err := parseWrapper(p)
		if err != nil {
			return ledger.HashBytes(p)
		}
		return SingletonPuzzleHash(body.id, TreeHash(body.inner))
	default:
		return ledger.HashBytes(p)
	}
}

type wrapperBody struct {
	id    ledger.Hash256
	inner ledger.Program
}

func parseWrapper(p ledger.Program) (wrapperBody, error) {
	d := ledger.NewDecoder(p)
	_ = d.ReadUint8()
	body := wrapperBody{id: d.ReadHash()}
	body.inner = ledger.Program(d.ReadBytes())
	if err := d.Finish(); err != nil {
		return body, fmt.Errorf("%w: %v", ErrMalformedProgram, err)
	}
	return body, nil
}

func standardOwner(p ledger.Program) (bls.PublicKey, error) {
	d := ledger.NewDecoder(p)
	_ = d.ReadUint8()
	pkb := d.ReadBytes()
	if err := d.Finish(); err != nil {
		return bls.PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedProgram, err)
	}
	return bls.PublicKeyFromBytes(pkb)
}
