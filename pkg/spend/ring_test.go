package spend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

func catCoin(tag string, assetID ledger.Hash256, owner bls.PublicKey, amount uint64) (ledger.Coin, ledger.LineageProof) {
	inner := puzzle.TreeHash(puzzle.StandardPuzzle(owner))
	coin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte(tag)),
		PuzzleHash:   puzzle.CatPuzzleHash(assetID, inner),
		Amount:       amount,
	}
	lineage := ledger.LineageProof{
		ParentParentCoinID:    ledger.HashBytes([]byte(tag + " grandparent")),
		ParentInnerPuzzleHash: inner,
		ParentAmount:          amount,
	}
	return coin, lineage
}

func TestIssueCatAndSendNewSupply(t *testing.T) {
	sk := testKey(t, "issuer")
	owner := sk.PublicKey()
	s := newTestSession(owner)

	genesis := standardCoin("genesis funding", owner, 2000)
	require.NoError(t, s.AddXch(genesis, owner))

	tail := assets.TailSpec{Kind: enum.TailKindGenesisByCoinID, GenesisCoinID: genesis.ID()}
	assetID, err := tail.AssetID()
	require.NoError(t, err)

	to := ledger.HashBytes([]byte("recipient inner"))
	require.NoError(t, s.Apply(
		assets.IssueCat{Tail: tail, Amount: 500},
		assets.Send{Asset: assets.New(0), To: to, Amount: 500},
	))

	res, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, assetID, res.Created[0])
	require.Len(t, res.Bundle.CoinSpends, 2)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	// freshly issued supply leaves through the eve coin, wrapped for the asset
	conds := evaluateAll(t, res.Bundle)
	var sawPayment bool
	for _, cs := range conds {
		for _, c := range cs {
			if cc, ok := c.(ledger.CreateCoin); ok &&
				cc.PuzzleHash == puzzle.CatPuzzleHash(assetID, to) {
				sawPayment = true
				assert.Equal(t, uint64(500), cc.Amount)
			}
		}
	}
	assert.True(t, sawPayment)
}

func TestIssueCatRequiresGenesisInPool(t *testing.T) {
	owner := testKey(t, "no genesis").PublicKey()
	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("unrelated", owner, 2000), owner))

	tail := assets.TailSpec{
		Kind:          enum.TailKindGenesisByCoinID,
		GenesisCoinID: ledger.HashBytes([]byte("never pooled")),
	}
	require.NoError(t, s.Apply(assets.IssueCat{Tail: tail, Amount: 100}))

	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrGenesisCoinMissing)
}

func TestCatSendRoutesChangeThroughRing(t *testing.T) {
	sk := testKey(t, "cat holder")
	owner := sk.PublicKey()
	s := newTestSession(owner)

	assetID := ledger.HashBytes([]byte("some asset"))
	coin, lineage := catCoin("cat funding", assetID, owner, 500)
	require.NoError(t, s.AddCat(assetID, coin, owner, lineage))

	to := ledger.HashBytes([]byte("payee inner"))
	require.NoError(t, s.Apply(assets.Send{Asset: assets.Existing(assetID), To: to, Amount: 300}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 1)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	inner := puzzle.TreeHash(puzzle.StandardPuzzle(owner))
	conds := evaluateAll(t, res.Bundle)[coin.ID()]
	assert.Contains(t, conds, ledger.Condition(ledger.CreateCoin{
		PuzzleHash: puzzle.CatPuzzleHash(assetID, to), Amount: 300,
	}))
	assert.Contains(t, conds, ledger.Condition(ledger.CreateCoin{
		PuzzleHash: puzzle.CatPuzzleHash(assetID, inner), Amount: 200,
	}))
}

func TestCatRingSpansMultipleCoins(t *testing.T) {
	owner := testKey(t, "two coins").PublicKey()
	s := newTestSession(owner)

	assetID := ledger.HashBytes([]byte("split asset"))
	a, aLineage := catCoin("cat a", assetID, owner, 300)
	b, bLineage := catCoin("cat b", assetID, owner, 300)
	require.NoError(t, s.AddCat(assetID, a, owner, aLineage))
	require.NoError(t, s.AddCat(assetID, b, owner, bLineage))

	require.NoError(t, s.Apply(assets.Send{
		Asset: assets.Existing(assetID), To: ledger.HashBytes([]byte("x")), Amount: 450,
	}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 2)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))
}

func TestAddCatRejectsWrongAsset(t *testing.T) {
	owner := testKey(t, "wrong asset").PublicKey()
	s := newTestSession(owner)

	assetID := ledger.HashBytes([]byte("real asset"))
	coin, lineage := catCoin("coin", assetID, owner, 100)
	err := s.AddCat(ledger.HashBytes([]byte("other asset")), coin, owner, lineage)
	assert.ErrorIs(t, err, ErrPuzzleMismatch)
}

func TestMintUpdateAndMeltNft(t *testing.T) {
	sk := testKey(t, "minter")
	owner := sk.PublicKey()
	inner := puzzle.TreeHash(puzzle.StandardPuzzle(owner))

	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("mint funding", owner, 1000), owner))

	digest := ledger.HashBytes([]byte("metadata v1"))
	require.NoError(t, s.Apply(assets.MintNft{
		To:                 inner,
		MetadataDigest:     digest,
		RoyaltyPuzzleHash:  ledger.HashBytes([]byte("artist")),
		RoyaltyBasisPoints: 300,
		Amount:             1,
	}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	launcherID, ok := res.Created[0]
	require.True(t, ok)

	singleton := ledger.Coin{
		ParentCoinID: launcherID,
		PuzzleHash:   puzzle.SingletonPuzzleHash(launcherID, inner),
		Amount:       1,
	}
	lineage := ledger.LineageProof{
		ParentParentCoinID:    launcherID,
		ParentInnerPuzzleHash: inner,
		ParentAmount:          1,
	}

	// update: the singleton recreates itself and announces the new digest
	require.NoError(t, s.AddSingleton(launcherID, singleton, owner, lineage))
	next := ledger.HashBytes([]byte("metadata v2"))
	require.NoError(t, s.Apply(assets.UpdateNft{Asset: assets.Existing(launcherID), MetadataDigest: next}))

	res, err = s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 1)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	conds := evaluateAll(t, res.Bundle)[singleton.ID()]
	assert.Contains(t, conds, ledger.Condition(ledger.CreateCoin{
		PuzzleHash: singleton.PuzzleHash, Amount: 1,
	}))
	assert.Contains(t, conds, ledger.Condition(ledger.CreateCoinAnnouncement{Message: next.Bytes()}))

	// melt: the successor coin is destroyed and nothing is recreated
	successor := ledger.Coin{
		ParentCoinID: singleton.ID(),
		PuzzleHash:   singleton.PuzzleHash,
		Amount:       1,
	}
	require.NoError(t, s.AddSingleton(launcherID, successor, owner, lineage))
	require.NoError(t, s.Apply(assets.MeltSingleton{Asset: assets.Existing(launcherID)}))

	res, err = s.Finish()
	require.NoError(t, err)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))
	for _, c := range evaluateAll(t, res.Bundle)[successor.ID()] {
		_, isCreate := c.(ledger.CreateCoin)
		assert.False(t, isCreate)
	}
}

func TestUpdateUnknownSingleton(t *testing.T) {
	owner := testKey(t, "no singleton").PublicKey()
	s := newTestSession(owner)

	require.NoError(t, s.Apply(assets.UpdateNft{
		Asset:          assets.Existing(ledger.HashBytes([]byte("ghost"))),
		MetadataDigest: ledger.HashBytes([]byte("d")),
	}))
	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrSingletonNotFound)
}

func TestMintRejectsEvenAmount(t *testing.T) {
	owner := testKey(t, "even").PublicKey()
	s := newTestSession(owner)

	err := s.Apply(assets.MintNft{To: ledger.HashBytes([]byte("to")), Amount: 2})
	assert.Error(t, err)
}

func TestIssueCatRejectsZeroAmount(t *testing.T) {
	owner := testKey(t, "zero issue").PublicKey()
	s := newTestSession(owner)

	err := s.Apply(assets.IssueCat{
		Tail:   assets.TailSpec{Kind: enum.TailKindEverythingWithSignature, PublicKey: owner},
		Amount: 0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestMintBatchRejectsPartialReplay(t *testing.T) {
	sk := testKey(t, "nft tamper")
	owner := sk.PublicKey()
	s := NewSession(Options{SelfKey: owner, Relation: enum.RelationAssertConcurrent})
	require.NoError(t, s.AddXch(standardCoin("nft funding", owner, 1000), owner))

	require.NoError(t, s.Apply(assets.MintNft{
		To:             puzzle.TreeHash(puzzle.StandardPuzzle(owner)),
		MetadataDigest: ledger.HashBytes([]byte("art")),
		Amount:         1,
	}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 2)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	// the launcher and its funding spend pin each other: neither half of the
	// batch validates on its own
	for drop := range res.Bundle.CoinSpends {
		err := VerifyBundle(dropSpend(res.Bundle, drop), puzzle.NativeEvaluator{})
		var unsat *UnsatisfiedAssertionError
		require.ErrorAs(t, err, &unsat, "spend %d removed", drop)
	}
}

func TestVerifyBundleRejectsDuplicates(t *testing.T) {
	owner := testKey(t, "dup bundle").PublicKey()
	reveal := puzzle.StandardPuzzle(owner)
	sol, err := puzzle.StandardSolution(nil)
	require.NoError(t, err)

	cs := ledger.CoinSpend{
		Coin: ledger.Coin{
			ParentCoinID: ledger.HashBytes([]byte("p")),
			PuzzleHash:   puzzle.TreeHash(reveal),
			Amount:       1,
		},
		PuzzleReveal: reveal,
		Solution:     sol,
	}
	err = VerifyBundle(ledger.SpendBundle{CoinSpends: []ledger.CoinSpend{cs, cs}}, puzzle.NativeEvaluator{})

	var dup *DuplicateCoinError
	assert.ErrorAs(t, err, &dup)
}

func TestVerifyBundleRejectsRevealMismatch(t *testing.T) {
	owner := testKey(t, "mismatch").PublicKey()
	sol, err := puzzle.StandardSolution(nil)
	require.NoError(t, err)

	cs := ledger.CoinSpend{
		Coin: ledger.Coin{
			ParentCoinID: ledger.HashBytes([]byte("p")),
			PuzzleHash:   ledger.HashBytes([]byte("not the reveal")),
			Amount:       1,
		},
		PuzzleReveal: puzzle.StandardPuzzle(owner),
		Solution:     sol,
	}
	err = VerifyBundle(ledger.SpendBundle{CoinSpends: []ledger.CoinSpend{cs}}, puzzle.NativeEvaluator{})
	assert.ErrorContains(t, err, "does not match")
}

func TestVerifyBundleRejectsUnsatisfiedAssertion(t *testing.T) {
	owner := testKey(t, "dangling assert").PublicKey()
	reveal := puzzle.StandardPuzzle(owner)
	sol, err := puzzle.StandardSolution([]ledger.Condition{
		ledger.AssertCoinAnnouncement{AnnouncementID: ledger.HashBytes([]byte("nobody says this"))},
	})
	require.NoError(t, err)

	cs := ledger.CoinSpend{
		Coin: ledger.Coin{
			ParentCoinID: ledger.HashBytes([]byte("p")),
			PuzzleHash:   puzzle.TreeHash(reveal),
			Amount:       1,
		},
		PuzzleReveal: reveal,
		Solution:     sol,
	}
	err = VerifyBundle(ledger.SpendBundle{CoinSpends: []ledger.CoinSpend{cs}}, puzzle.NativeEvaluator{})

	var unsat *UnsatisfiedAssertionError
	require.ErrorAs(t, err, &unsat)
	assert.Equal(t, "coin announcement", unsat.Kind)
}

func TestVerifyBundleRejectsOverspend(t *testing.T) {
	owner := testKey(t, "overspend").PublicKey()
	reveal := puzzle.StandardPuzzle(owner)
	sol, err := puzzle.StandardSolution([]ledger.Condition{
		ledger.CreateCoin{PuzzleHash: ledger.HashBytes([]byte("to")), Amount: 20},
	})
	require.NoError(t, err)

	cs := ledger.CoinSpend{
		Coin: ledger.Coin{
			ParentCoinID: ledger.HashBytes([]byte("p")),
			PuzzleHash:   puzzle.TreeHash(reveal),
			Amount:       10,
		},
		PuzzleReveal: reveal,
		Solution:     sol,
	}
	err = VerifyBundle(ledger.SpendBundle{CoinSpends: []ledger.CoinSpend{cs}}, puzzle.NativeEvaluator{})
	assert.ErrorContains(t, err, "exceed")
}
