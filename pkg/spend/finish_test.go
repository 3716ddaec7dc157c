package spend

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
)

func testKey(t *testing.T, tag string) *bls.SecretKey {
	t.Helper()
	seed := sha256.Sum256([]byte(tag))
	sk, err := bls.KeyGen(seed[:])
	require.NoError(t, err)
	return sk
}

func standardCoin(tag string, owner bls.PublicKey, amount uint64) ledger.Coin {
	return ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte(tag)),
		PuzzleHash:   puzzle.TreeHash(puzzle.StandardPuzzle(owner)),
		Amount:       amount,
	}
}

func newTestSession(owner bls.PublicKey) *Session {
	return NewSession(Options{SelfKey: owner, Relation: enum.RelationNone})
}

func evaluateAll(t *testing.T, bundle ledger.SpendBundle) map[ledger.Hash256][]ledger.Condition {
	t.Helper()
	out := make(map[ledger.Hash256][]ledger.Condition)
	for _, cs := range bundle.CoinSpends {
		conds, err := puzzle.NativeEvaluator{}.Evaluate(cs.PuzzleReveal, cs.Solution)
		require.NoError(t, err)
		out[cs.Coin.ID()] = conds
	}
	return out
}

func TestFinishSimpleSendWithChange(t *testing.T) {
	sk := testKey(t, "alice")
	owner := sk.PublicKey()
	s := newTestSession(owner)

	coin := standardCoin("funding", owner, 1000)
	require.NoError(t, s.AddXch(coin, owner))

	to := ledger.HashBytes([]byte("bob"))
	require.NoError(t, s.Apply(
		assets.Send{Asset: assets.Xch(), To: to, Amount: 600},
		assets.Fee{Amount: 50},
	))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 1)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	conds := evaluateAll(t, res.Bundle)[coin.ID()]
	var outputs []ledger.CreateCoin
	var fee uint64
	for _, c := range conds {
		switch cc := c.(type) {
		case ledger.CreateCoin:
			outputs = append(outputs, cc)
		case ledger.ReserveFee:
			fee += cc.Amount
		}
	}
	require.Len(t, outputs, 2)
	assert.Equal(t, ledger.CreateCoin{PuzzleHash: to, Amount: 600}, outputs[0])
	// change goes back to the owner's own puzzle
	assert.Equal(t, coin.PuzzleHash, outputs[1].PuzzleHash)
	assert.Equal(t, uint64(350), outputs[1].Amount)
	assert.Equal(t, uint64(50), fee)
}

func TestFinishConsumesPool(t *testing.T) {
	owner := testKey(t, "drained").PublicKey()
	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("only", owner, 100), owner))

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 100}))
	_, err := s.Finish()
	require.NoError(t, err)

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 1}))
	_, err = s.Finish()
	var short *InsufficientFundsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, uint64(0), short.Available)
}

func TestFinishInsufficientFunds(t *testing.T) {
	owner := testKey(t, "poor").PublicKey()
	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("small", owner, 100), owner))

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 200}))
	_, err := s.Finish()

	var short *InsufficientFundsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, assets.Xch(), short.Asset)
	assert.Equal(t, uint64(200), short.Required)
	assert.Equal(t, uint64(100), short.Available)
	assert.Equal(t, uint64(100), short.Shortfall())
}

func TestFinishErrorLeavesSessionUsable(t *testing.T) {
	owner := testKey(t, "retry").PublicKey()
	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("first", owner, 100), owner))

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 150}))
	_, err := s.Finish()
	require.Error(t, err)

	// topping the pool up makes the same staged batch succeed
	require.NoError(t, s.AddXch(standardCoin("second", owner, 100), owner))
	res, err := s.Finish()
	require.NoError(t, err)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))
	assert.Len(t, res.Bundle.CoinSpends, 2)
}

func TestFinishNothingStaged(t *testing.T) {
	s := newTestSession(testKey(t, "idle").PublicKey())
	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestAddXchRejectsForeignPuzzle(t *testing.T) {
	owner := testKey(t, "mine").PublicKey()
	other := testKey(t, "theirs").PublicKey()
	s := newTestSession(owner)

	err := s.AddXch(standardCoin("foreign", other, 10), owner)
	assert.ErrorIs(t, err, ErrPuzzleMismatch)
}

func TestAddDuplicateCoin(t *testing.T) {
	owner := testKey(t, "dup").PublicKey()
	s := newTestSession(owner)
	coin := standardCoin("once", owner, 10)

	require.NoError(t, s.AddXch(coin, owner))
	err := s.AddXch(coin, owner)

	var dup *DuplicateCoinError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, coin.ID(), dup.CoinID)
}

func TestApplyIsAtomic(t *testing.T) {
	owner := testKey(t, "atomic").PublicKey()
	s := newTestSession(owner)
	require.NoError(t, s.AddXch(standardCoin("fund", owner, 1000), owner))

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 100}))

	// a batch with a dangling reference is rejected whole
	err := s.Apply(assets.Send{Asset: assets.New(9), To: ledger.HashBytes([]byte("y")), Amount: 1})
	require.Error(t, err)

	res, err := s.Finish()
	require.NoError(t, err)
	conds := evaluateAll(t, res.Bundle)
	require.Len(t, conds, 1)
}

func TestRelationAssertConcurrentBindsAllSpends(t *testing.T) {
	sk := testKey(t, "bound")
	owner := sk.PublicKey()
	s := NewSession(Options{SelfKey: owner, Relation: enum.RelationAssertConcurrent})

	a := standardCoin("coin a", owner, 100)
	b := standardCoin("coin b", owner, 100)
	require.NoError(t, s.AddXch(a, owner))
	require.NoError(t, s.AddXch(b, owner))

	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 150}))
	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 2)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	// every spend asserts another member of the batch, closing a cycle
	conds := evaluateAll(t, res.Bundle)
	spent := map[ledger.Hash256]bool{a.ID(): true, b.ID(): true}
	asserted := make(map[ledger.Hash256]bool)
	for _, cs := range conds {
		for _, c := range cs {
			if acs, ok := c.(ledger.AssertConcurrentSpend); ok {
				assert.True(t, spent[acs.CoinID])
				asserted[acs.CoinID] = true
			}
		}
	}
	assert.Len(t, asserted, 2)
}

// dropSpend returns the bundle without its i-th spend.
func dropSpend(bundle ledger.SpendBundle, i int) ledger.SpendBundle {
	var subset ledger.SpendBundle
	subset.CoinSpends = append(subset.CoinSpends, bundle.CoinSpends[:i]...)
	subset.CoinSpends = append(subset.CoinSpends, bundle.CoinSpends[i+1:]...)
	return subset
}

func TestDroppingAnySpendInvalidatesTheBatch(t *testing.T) {
	owner := testKey(t, "tamper").PublicKey()
	s := NewSession(Options{SelfKey: owner, Relation: enum.RelationAssertConcurrent})
	for _, tag := range []string{"one", "two", "three"} {
		require.NoError(t, s.AddXch(standardCoin(tag, owner, 100), owner))
	}
	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 250}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 3)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	for drop := range res.Bundle.CoinSpends {
		err := VerifyBundle(dropSpend(res.Bundle, drop), puzzle.NativeEvaluator{})
		var unsat *UnsatisfiedAssertionError
		require.ErrorAs(t, err, &unsat, "spend %d removed", drop)
	}
}

func TestSettlementOnlyBatchStaysBound(t *testing.T) {
	owner := testKey(t, "claims").PublicKey()
	s := NewSession(Options{SelfKey: owner, Relation: enum.RelationAssertConcurrent})

	// two settlement coins and no carrier: the concurrency pins ride the
	// settlement solutions themselves
	group := ledger.NotarizedPayment{
		Nonce:    ledger.HashBytes([]byte("claim nonce")),
		Payments: []ledger.Payment{{PuzzleHash: ledger.HashBytes([]byte("payee")), Amount: 500}},
	}
	a := ledger.Coin{ParentCoinID: ledger.HashBytes([]byte("f1")), PuzzleHash: puzzle.SettlementPuzzleHash(1), Amount: 300}
	b := ledger.Coin{ParentCoinID: ledger.HashBytes([]byte("f2")), PuzzleHash: puzzle.SettlementPuzzleHash(1), Amount: 200}
	require.NoError(t, s.AddSettlement(assets.Xch(), a, nil))
	require.NoError(t, s.AddSettlement(assets.Xch(), b, nil))
	require.NoError(t, s.Apply(assets.Settle{Asset: assets.Xch(), Payments: []ledger.NotarizedPayment{group}}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 2)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	for drop := range res.Bundle.CoinSpends {
		err := VerifyBundle(dropSpend(res.Bundle, drop), puzzle.NativeEvaluator{})
		var unsat *UnsatisfiedAssertionError
		require.ErrorAs(t, err, &unsat, "spend %d removed", drop)
		assert.Equal(t, "concurrent spend", unsat.Kind)
	}
}

func TestRequireConditionsRideTheCarrier(t *testing.T) {
	owner := testKey(t, "carrier").PublicKey()
	s := newTestSession(owner)
	coin := standardCoin("fund", owner, 100)
	require.NoError(t, s.AddXch(coin, owner))

	want := ledger.AssertSecondsAbsolute{Seconds: 12345}
	s.RequireConditions(want)
	require.NoError(t, s.Apply(assets.Send{Asset: assets.Xch(), To: ledger.HashBytes([]byte("x")), Amount: 100}))

	res, err := s.Finish()
	require.NoError(t, err)
	conds := evaluateAll(t, res.Bundle)[coin.ID()]
	assert.Contains(t, conds, ledger.Condition(want))
}

func TestRequireConditionsWithoutCarrier(t *testing.T) {
	owner := testKey(t, "no carrier").PublicKey()
	s := newTestSession(owner)

	// only a settlement coin is pooled; nothing can carry the assertion
	group := ledger.NotarizedPayment{
		Nonce:    ledger.HashBytes([]byte("n")),
		Payments: []ledger.Payment{{PuzzleHash: ledger.HashBytes([]byte("to")), Amount: 50}},
	}
	settleCoin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("p")),
		PuzzleHash:   puzzle.SettlementPuzzleHash(1),
		Amount:       50,
	}
	require.NoError(t, s.AddSettlement(assets.Xch(), settleCoin, nil))

	s.RequireConditions(ledger.AssertSecondsAbsolute{Seconds: 1})
	require.NoError(t, s.Apply(assets.Settle{Asset: assets.Xch(), Payments: []ledger.NotarizedPayment{group}}))

	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrNoCarrier)
}

func TestSettleNativePaysGroupOut(t *testing.T) {
	owner := testKey(t, "settler").PublicKey()
	s := newTestSession(owner)

	to := ledger.HashBytes([]byte("payee"))
	group := ledger.NotarizedPayment{
		Nonce:    ledger.HashBytes([]byte("offer nonce")),
		Payments: []ledger.Payment{{PuzzleHash: to, Amount: 75}},
	}
	settleCoin := ledger.Coin{
		ParentCoinID: ledger.HashBytes([]byte("funder")),
		PuzzleHash:   puzzle.SettlementPuzzleHash(1),
		Amount:       75,
	}
	require.NoError(t, s.AddSettlement(assets.Xch(), settleCoin, nil))
	require.NoError(t, s.Apply(assets.Settle{Asset: assets.Xch(), Payments: []ledger.NotarizedPayment{group}}))

	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Bundle.CoinSpends, 1)
	require.NoError(t, VerifyBundle(res.Bundle, puzzle.NativeEvaluator{}))

	conds := evaluateAll(t, res.Bundle)[settleCoin.ID()]
	digest := group.Digest()
	assert.Contains(t, conds, ledger.Condition(ledger.CreatePuzzleAnnouncement{
		Message: ledger.HashConcat(group.Nonce[:], digest[:]).Bytes(),
	}))
	assert.Contains(t, conds, ledger.Condition(ledger.CreateCoin{PuzzleHash: to, Amount: 75}))
}
