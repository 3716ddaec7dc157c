package bls

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyFromTag(t *testing.T, tag string) *SecretKey {
	t.Helper()
	seed := sha256.Sum256([]byte(tag))
	sk, err := KeyGen(seed[:])
	require.NoError(t, err)
	return sk
}

func TestKeyGenDeterministic(t *testing.T) {
	a := keyFromTag(t, "alpha")
	b := keyFromTag(t, "alpha")
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	c := keyFromTag(t, "beta")
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestKeyGenRejectsShortSeed(t *testing.T) {
	_, err := KeyGen([]byte("short"))
	assert.ErrorIs(t, err, ErrShortSeed)
}

func TestSecretKeyBytesRoundTrip(t *testing.T) {
	sk := keyFromTag(t, "roundtrip")
	got, err := SecretKeyFromBytes(sk.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sk.PublicKey(), got.PublicKey())
}

func TestSignAndVerify(t *testing.T) {
	sk := keyFromTag(t, "signer")
	msg := []byte("spend this coin")

	sig, err := Sign(sk, msg)
	require.NoError(t, err)
	assert.True(t, Verify(sk.PublicKey(), msg, sig))
	assert.False(t, Verify(sk.PublicKey(), []byte("different message"), sig))

	other := keyFromTag(t, "other")
	assert.False(t, Verify(other.PublicKey(), msg, sig))
}

func TestAggregateVerify(t *testing.T) {
	a := keyFromTag(t, "party a")
	b := keyFromTag(t, "party b")
	msgA := []byte("maker half")
	msgB := []byte("taker half")

	sigA, err := Sign(a, msgA)
	require.NoError(t, err)
	sigB, err := Sign(b, msgB)
	require.NoError(t, err)

	agg, err := Aggregate(sigA, sigB)
	require.NoError(t, err)

	pks := []PublicKey{a.PublicKey(), b.PublicKey()}
	assert.True(t, AggregateVerify(pks, [][]byte{msgA, msgB}, agg))
	assert.False(t, AggregateVerify(pks, [][]byte{msgB, msgA}, agg))
	assert.False(t, AggregateVerify(pks[:1], [][]byte{msgA}, agg))
}

func TestAggregateRequiresInput(t *testing.T) {
	_, err := Aggregate()
	assert.ErrorIs(t, err, ErrNoSignatures)
}

func TestPublicKeyFromBytesRejectsGarbage(t *testing.T) {
	_, err := PublicKeyFromBytes(make([]byte, PublicKeySize))
	assert.Error(t, err)

	_, err = PublicKeyFromBytes([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}
