package offer

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
	"github.com/fystack/spendkit/pkg/sign"
	"github.com/fystack/spendkit/pkg/spend"
)

func testKey(t *testing.T, tag string) *bls.SecretKey {
	t.Helper()
	seed := sha256.Sum256([]byte(tag))
	sk, err := bls.KeyGen(seed[:])
	require.NoError(t, err)
	return sk
}

func testProtocol() Protocol {
	return Protocol{
		Version:   1,
		Evaluator: puzzle.NativeEvaluator{},
		Constants: sign.DomainConstants{AggSigMeExtra: ledger.HashBytes([]byte("trade net"))},
	}
}

func TestRoyaltyAmountRoundsUp(t *testing.T) {
	r := Royalty{BasisPoints: 300}
	assert.Equal(t, uint64(15), r.Amount(500))
	assert.Equal(t, uint64(15), r.Amount(499)) // 14.97 rounds up
	assert.Equal(t, uint64(300), r.Amount(10000))

	tiny := Royalty{BasisPoints: 1}
	assert.Equal(t, uint64(1), tiny.Amount(1))
	assert.Equal(t, uint64(0), Royalty{BasisPoints: 0}.Amount(10000))
}

func TestSettlementGroupOrderIsStable(t *testing.T) {
	// map insertion order must not leak into the order coins are claimed in
	a := ledger.HashBytes([]byte("asset a"))
	b := ledger.HashBytes([]byte("asset b"))
	c := ledger.HashBytes([]byte("asset c"))

	forward := map[ledger.Hash256][]settlementCoin{a: nil, b: nil, c: nil}
	backward := map[ledger.Hash256][]settlementCoin{c: nil, b: nil, a: nil}

	order := sortedAssets(forward)
	require.Equal(t, order, sortedAssets(backward))
	for i := 1; i < len(order); i++ {
		assert.True(t, order[i-1].String() < order[i].String())
	}
}

func TestOfferEncodeDecodeRoundTrip(t *testing.T) {
	o := Offer{
		Requested: []RequestedPayment{{
			AssetID: ledger.HashBytes([]byte("asset")),
			Group: ledger.NotarizedPayment{
				Nonce:    ledger.HashBytes([]byte("nonce")),
				Payments: []ledger.Payment{{PuzzleHash: ledger.HashBytes([]byte("to")), Amount: 500}},
			},
		}},
		Royalty: &Royalty{PuzzleHash: ledger.HashBytes([]byte("artist")), BasisPoints: 250},
		Bundle: ledger.SpendBundle{
			CoinSpends: []ledger.CoinSpend{{
				Coin:         ledger.Coin{ParentCoinID: ledger.HashBytes([]byte("p")), PuzzleHash: ledger.HashBytes([]byte("q")), Amount: 1},
				PuzzleReveal: ledger.Program([]byte{0x01}),
				Solution:     ledger.Program([]byte{0x02}),
			}},
		},
	}

	text := o.Encode()
	assert.True(t, len(text) > len("offer1"))

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not an offer")
	assert.ErrorIs(t, err, ErrMalformedOffer)

	_, err = Decode("offer1!!!not base64!!!")
	assert.ErrorIs(t, err, ErrMalformedOffer)

	_, err = Decode("offer1AAAA")
	assert.ErrorIs(t, err, ErrMalformedOffer)
}

// Full trade: the maker locks 1000 native and requests 500 of a wrapped
// asset plus a 3% royalty; the taker funds both from a wrapped coin and
// claims the native side. The combined bundle must validate end to end.
func TestMakeAndTakeSettleAtomically(t *testing.T) {
	p := testProtocol()

	makerKey := testKey(t, "maker")
	takerKey := testKey(t, "taker")
	makerInner := puzzle.TreeHash(puzzle.StandardPuzzle(makerKey.PublicKey()))
	takerInner := puzzle.TreeHash(puzzle.StandardPuzzle(takerKey.PublicKey()))
	artist := ledger.HashBytes([]byte("artist payout"))
	assetID := ledger.HashBytes([]byte("traded asset"))

	maker := spend.NewSession(spend.Options{
		SelfKey: makerKey.PublicKey(), Relation: enum.RelationNone, SettlementVersion: p.Version,
	})
	makerCoin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("maker funds")),
		PuzzleHash:   makerInner,
		Amount:       2000,
	}
	require.NoError(t, maker.AddXch(makerCoin, makerKey.PublicKey()))

	o, err := Make(p, maker,
		[]Offered{{Asset: assets.Xch(), Amount: 1000}},
		[]Request{{AssetID: assetID, Payments: []ledger.Payment{{PuzzleHash: makerInner, Amount: 500}}}},
		&Royalty{PuzzleHash: artist, BasisPoints: 300},
		sign.NewKeyring(makerKey),
	)
	require.NoError(t, err)

	// the offer survives its portable encoding
	o2, err := Decode(o.Encode())
	require.NoError(t, err)

	taker := spend.NewSession(spend.Options{
		SelfKey: takerKey.PublicKey(), Relation: enum.RelationNone, SettlementVersion: p.Version,
	})
	takerCoin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("taker funds")),
		PuzzleHash:   puzzle.CatPuzzleHash(assetID, takerInner),
		Amount:       1000,
	}
	lineage := ledger.LineageProof{
		ParentParentCoinID:    ledger.HashBytes([]byte("taker grandparent")),
		ParentInnerPuzzleHash: takerInner,
		ParentAmount:          1000,
	}
	require.NoError(t, taker.AddCat(assetID, takerCoin, takerKey.PublicKey(), lineage))

	combined, err := Take(p, taker, &o2, takerInner, sign.NewKeyring(takerKey))
	require.NoError(t, err)

	require.NoError(t, spend.VerifyBundle(combined, p.Evaluator))
	ok, err := sign.VerifySignature(combined, p.Evaluator, p.Constants)
	require.NoError(t, err)
	assert.True(t, ok)

	// trace where the value lands
	outputs := make(map[ledger.Hash256]uint64)
	for _, cs := range combined.CoinSpends {
		conds, err := p.Evaluator.Evaluate(cs.PuzzleReveal, cs.Solution)
		require.NoError(t, err)
		for _, c := range conds {
			if cc, isCreate := c.(ledger.CreateCoin); isCreate {
				outputs[cc.PuzzleHash] += cc.Amount
			}
		}
	}
	assert.Equal(t, uint64(500), outputs[puzzle.CatPuzzleHash(assetID, makerInner)])
	assert.Equal(t, uint64(15), outputs[puzzle.CatPuzzleHash(assetID, artist)])
	assert.Equal(t, uint64(1000), outputs[takerInner])
}

// makerNativeOffer builds a minimal signed maker half requesting 500 native.
func makerNativeOffer(t *testing.T, p Protocol, royalty *Royalty) *Offer {
	t.Helper()
	makerKey := testKey(t, "native maker")
	makerInner := puzzle.TreeHash(puzzle.StandardPuzzle(makerKey.PublicKey()))

	s := spend.NewSession(spend.Options{
		SelfKey: makerKey.PublicKey(), Relation: enum.RelationNone, SettlementVersion: p.Version,
	})
	coin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("native maker funds")),
		PuzzleHash:   makerInner,
		Amount:       100,
	}
	require.NoError(t, s.AddXch(coin, makerKey.PublicKey()))

	o, err := Make(p, s,
		[]Offered{{Asset: assets.Xch(), Amount: 100}},
		[]Request{{Payments: []ledger.Payment{{PuzzleHash: makerInner, Amount: 500}}}},
		royalty,
		sign.NewKeyring(makerKey),
	)
	require.NoError(t, err)
	return o
}

// takerFunding builds an unrelated taker bundle paying amount into the
// native settlement puzzle.
func takerFunding(t *testing.T, p Protocol, amount uint64) ledger.SpendBundle {
	t.Helper()
	takerKey := testKey(t, "underfunded taker")
	takerInner := puzzle.TreeHash(puzzle.StandardPuzzle(takerKey.PublicKey()))

	s := spend.NewSession(spend.Options{
		SelfKey: takerKey.PublicKey(), Relation: enum.RelationNone, SettlementVersion: p.Version,
	})
	coin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("taker xch")),
		PuzzleHash:   takerInner,
		Amount:       1000,
	}
	require.NoError(t, s.AddXch(coin, takerKey.PublicKey()))
	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: p.settlementInner(), Amount: amount}))
	res, err := s.Finish()
	require.NoError(t, err)
	return res.Bundle
}

func TestCheckPaymentsShortfall(t *testing.T) {
	p := testProtocol()
	o := makerNativeOffer(t, p, nil)

	err := CheckPayments(p, o, takerFunding(t, p, 499))

	var short *InsufficientPaymentError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, uint64(500), short.Required)
	assert.Equal(t, uint64(499), short.Paid)

	assert.NoError(t, CheckPayments(p, o, takerFunding(t, p, 500)))
}

func TestCheckPaymentsRoyalty(t *testing.T) {
	p := testProtocol()
	o := makerNativeOffer(t, p, &Royalty{PuzzleHash: ledger.HashBytes([]byte("artist")), BasisPoints: 300})

	// paying exactly the requested total still shorts the royalty
	err := CheckPayments(p, o, takerFunding(t, p, 500))

	var roy *RoyaltyNotPaidError
	require.ErrorAs(t, err, &roy)
	assert.Equal(t, uint64(15), roy.Required)
	assert.Equal(t, uint64(0), roy.Paid)

	assert.NoError(t, CheckPayments(p, o, takerFunding(t, p, 515)))
}
