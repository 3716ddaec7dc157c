package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/spendkit/pkg/bls"
)

func testKey(t *testing.T, tag string) *bls.SecretKey {
	t.Helper()
	seed := sha256.Sum256([]byte(tag))
	sk, err := bls.KeyGen(seed[:])
	require.NoError(t, err)
	return sk
}

func TestCoinIDMatchesDefinition(t *testing.T) {
	coin := Coin{
		ParentCoinID: HashBytes([]byte("parent")),
		PuzzleHash:   HashBytes([]byte("puzzle")),
		Amount:       12345,
	}

	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], coin.Amount)
	h := sha256.New()
	h.Write(coin.ParentCoinID[:])
	h.Write(coin.PuzzleHash[:])
	h.Write(amount[:])

	var want Hash256
	copy(want[:], h.Sum(nil))
	assert.Equal(t, want, coin.ID())
}

func TestCoinIDChangesWithAmount(t *testing.T) {
	a := Coin{ParentCoinID: HashBytes([]byte("p")), PuzzleHash: HashBytes([]byte("q")), Amount: 1}
	b := a
	b.Amount = 2
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestConditionsRoundTrip(t *testing.T) {
	pk := testKey(t, "conditions").PublicKey()
	conds := []Condition{
		CreateCoin{PuzzleHash: HashBytes([]byte("to")), Amount: 99, Memos: [][]byte{[]byte("memo")}},
		ReserveFee{Amount: 10},
		AggSigMe{PublicKey: pk, Message: []byte("digest")},
		AssertConcurrentSpend{CoinID: HashBytes([]byte("peer"))},
		CreateCoinAnnouncement{Message: []byte("hello")},
		AssertCoinAnnouncement{AnnouncementID: HashBytes([]byte("ann"))},
		CreatePuzzleAnnouncement{Message: []byte("world")},
		AssertPuzzleAnnouncement{AnnouncementID: HashBytes([]byte("pann"))},
		AssertSecondsAbsolute{Seconds: 1700000000},
		AssertHeightAbsolute{Height: 4200000},
		Opaque{Code: 90, Payload: []byte{0xde, 0xad}},
	}

	p, err := EncodeConditions(conds)
	require.NoError(t, err)
	got, err := DecodeConditions(p)
	require.NoError(t, err)
	assert.Equal(t, conds, got)
}

func TestOpaqueCannotUseReservedOpcode(t *testing.T) {
	_, err := EncodeConditions([]Condition{Opaque{Code: OpCreateCoin, Payload: []byte("x")}})
	assert.Error(t, err)
}

func TestDecodeConditionsRejectsTrailingBytes(t *testing.T) {
	p, err := EncodeConditions([]Condition{ReserveFee{Amount: 1}})
	require.NoError(t, err)
	_, err = DecodeConditions(append(p, 0x00))
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestAnnouncementIDs(t *testing.T) {
	coinID := HashBytes([]byte("coin"))
	msg := []byte("payload")
	assert.Equal(t, HashConcat(coinID[:], msg), CoinAnnouncementID(coinID, msg))

	ph := HashBytes([]byte("ph"))
	assert.Equal(t, HashConcat(ph[:], msg), PuzzleAnnouncementID(ph, msg))
	assert.NotEqual(t, CoinAnnouncementID(coinID, msg), PuzzleAnnouncementID(ph, msg))
}

func TestComputeNonceOrderIndependent(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	c := HashBytes([]byte("c"))
	assert.Equal(t, ComputeNonce([]Hash256{a, b, c}), ComputeNonce([]Hash256{c, a, b}))
	assert.NotEqual(t, ComputeNonce([]Hash256{a, b}), ComputeNonce([]Hash256{a, b, c}))
}

func TestNotarizedPaymentDigestCommitsToNonce(t *testing.T) {
	group := NotarizedPayment{
		Nonce:    HashBytes([]byte("offer one")),
		Payments: []Payment{{PuzzleHash: HashBytes([]byte("to")), Amount: 500}},
	}
	other := group
	other.Nonce = HashBytes([]byte("offer two"))
	assert.NotEqual(t, group.Digest(), other.Digest())
	assert.Equal(t, uint64(500), group.Total())
}

func TestSpendBundleRoundTrip(t *testing.T) {
	bundle := SpendBundle{
		CoinSpends: []CoinSpend{{
			Coin:         Coin{ParentCoinID: HashBytes([]byte("p")), PuzzleHash: HashBytes([]byte("q")), Amount: 7},
			PuzzleReveal: Program([]byte{0x01, 0x02}),
			Solution:     Program([]byte{0x03}),
		}},
	}
	sk := testKey(t, "bundle")
	sig, err := bls.Sign(sk, []byte("msg"))
	require.NoError(t, err)
	bundle.AggregatedSignature = sig

	e := NewEncoder()
	bundle.EncodeTo(e)

	var got SpendBundle
	d := NewDecoder(e.Bytes())
	got.DecodeFrom(d)
	require.NoError(t, d.Finish())
	assert.Equal(t, bundle, got)
	assert.Equal(t, bundle.Name(), got.Name())
}

func TestAddressRoundTrip(t *testing.T) {
	ph := HashBytes([]byte("receive here"))
	addr, err := EncodeAddress("txch", ph)
	require.NoError(t, err)

	got, err := DecodeAddress("txch", addr)
	require.NoError(t, err)
	assert.Equal(t, ph, got)

	_, err = DecodeAddress("xch", addr)
	assert.Error(t, err)
}

func TestDecodeAddressRejectsClassicChecksum(t *testing.T) {
	ph := HashBytes([]byte("receive here"))
	converted, err := bech32.ConvertBits(ph[:], 8, 5, true)
	require.NoError(t, err)

	// same payload under the original bech32 checksum must not pass
	classic, err := bech32.Encode("txch", converted)
	require.NoError(t, err)

	_, err = DecodeAddress("txch", classic)
	assert.ErrorContains(t, err, "bech32m")
}

func TestHashTextRoundTrip(t *testing.T) {
	h := HashBytes([]byte("hash me"))
	text, err := h.MarshalText()
	require.NoError(t, err)

	var got Hash256
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, h, got)

	assert.Error(t, got.UnmarshalText([]byte("not hex")))
	assert.Error(t, got.UnmarshalText([]byte("abcd")))
}
