// Package bls implements the minimal-pubkey, augmented-scheme BLS signatures
// over BLS12-381 used for spend authorization. Public keys live in G1
// (48 bytes compressed), signatures in G2 (96 bytes compressed).
// Independently produced signatures combine by point addition, so a batch of
// requirements can be signed by different parties and aggregated afterwards.
package bls

import (
	"crypto/sha256"
	"errors"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/hkdf"
)

const (
	PublicKeySize = 48
	SignatureSize = 96
	SecretKeySize = 32
)

// Domain separation tag for the augmented scheme: the message hashed to the
// curve is pk || msg, binding every signature to its signer.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_AUG_")

var keygenSalt = []byte("spendkit bls key derivation")

var (
	ErrShortSeed        = errors.New("bls: seed must be at least 32 bytes")
	ErrInvalidPublicKey = errors.New("bls: invalid public key encoding")
	ErrInvalidSignature = errors.New("bls: invalid signature encoding")
	ErrNoSignatures     = errors.New("bls: nothing to aggregate")
)

type SecretKey struct {
	s big.Int
}

type PublicKey [PublicKeySize]byte

type Signature [SignatureSize]byte

// KeyGen derives a secret key from a seed (typically a BIP-39 seed) via
// HKDF-SHA256, reduced into the scalar field.
func KeyGen(seed []byte) (*SecretKey, error) {
	if len(seed) < 32 {
		return nil, ErrShortSeed
	}
	r := hkdf.New(sha256.New, seed, keygenSalt, nil)
	buf := make([]byte, 48)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	var sk SecretKey
	sk.s.SetBytes(buf)
	sk.s.Mod(&sk.s, fr.Modulus())
	if sk.s.Sign() == 0 {
		// astronomically unlikely; reject rather than sign with zero
		return nil, errors.New("bls: derived zero scalar")
	}
	return &sk, nil
}

// Bytes returns the 32-byte big-endian scalar.
func (sk *SecretKey) Bytes() []byte {
	out := make([]byte, SecretKeySize)
	sk.s.FillBytes(out)
	return out
}

func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeySize {
		return nil, errors.New("bls: secret key must be 32 bytes")
	}
	var sk SecretKey
	sk.s.SetBytes(b)
	sk.s.Mod(&sk.s, fr.Modulus())
	if sk.s.Sign() == 0 {
		return nil, errors.New("bls: zero secret key")
	}
	return &sk, nil
}

// PublicKey returns g1 * sk, compressed.
func (sk *SecretKey) PublicKey() PublicKey {
	_, _, g1, _ := bls12381.Generators()
	var p bls12381.G1Affine
	p.ScalarMultiplication(&g1, &sk.s)
	return PublicKey(p.Bytes())
}

func (pk PublicKey) point() (bls12381.G1Affine, error) {
	var p bls12381.G1Affine
	if _, err := p.SetBytes(pk[:]); err != nil {
		return p, ErrInvalidPublicKey
	}
	return p, nil
}

func (sig Signature) point() (bls12381.G2Affine, error) {
	var p bls12381.G2Affine
	if _, err := p.SetBytes(sig[:]); err != nil {
		return p, ErrInvalidSignature
	}
	return p, nil
}

// Sign signs msg under the augmented scheme: the hashed input is pk || msg.
func Sign(sk *SecretKey, msg []byte) (Signature, error) {
	pk := sk.PublicKey()
	aug := make([]byte, 0, len(pk)+len(msg))
	aug = append(aug, pk[:]...)
	aug = append(aug, msg...)
	h, err := bls12381.HashToG2(aug, dst)
	if err != nil {
		return Signature{}, err
	}
	var s bls12381.G2Affine
	s.ScalarMultiplication(&h, &sk.s)
	return Signature(s.Bytes()), nil
}

// Verify checks a single (pk, msg) signature.
func Verify(pk PublicKey, msg []byte, sig Signature) bool {
	return AggregateVerify([]PublicKey{pk}, [][]byte{msg}, sig)
}

// Aggregate sums signatures into one. The result verifies against the full
// set of (pk, msg) pairs the parts were produced over.
func Aggregate(sigs ...Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, ErrNoSignatures
	}
	var acc bls12381.G2Jac
	for _, sig := range sigs {
		p, err := sig.point()
		if err != nil {
			return Signature{}, err
		}
		acc.AddMixed(&p)
	}
	var out bls12381.G2Affine
	out.FromJacobian(&acc)
	return Signature(out.Bytes()), nil
}

// AggregateVerify checks an aggregate signature over pairwise (pk, msg)
// inputs: e(g1, sig) == prod e(pk_i, H(pk_i || msg_i)).
func AggregateVerify(pks []PublicKey, msgs [][]byte, sig Signature) bool {
	if len(pks) == 0 || len(pks) != len(msgs) {
		return false
	}
	sigPoint, err := sig.point()
	if err != nil {
		return false
	}
	_, _, g1, _ := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1)

	ps := make([]bls12381.G1Affine, 0, len(pks)+1)
	qs := make([]bls12381.G2Affine, 0, len(pks)+1)
	ps = append(ps, negG1)
	qs = append(qs, sigPoint)

	for i, pk := range pks {
		p, err := pk.point()
		if err != nil {
			return false
		}
		aug := make([]byte, 0, len(pk)+len(msgs[i]))
		aug = append(aug, pk[:]...)
		aug = append(aug, msgs[i]...)
		h, err := bls12381.HashToG2(aug, dst)
		if err != nil {
			return false
		}
		ps = append(ps, p)
		qs = append(qs, h)
	}

	ok, err := bls12381.PairingCheck(ps, qs)
	return err == nil && ok
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, ErrInvalidPublicKey
	}
	copy(pk[:], b)
	if _, err := pk.point(); err != nil {
		return pk, err
	}
	return pk, nil
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, ErrInvalidSignature
	}
	copy(sig[:], b)
	if _, err := sig.point(); err != nil {
		return sig, err
	}
	return sig, nil
}
