// Package sign derives the signing requirements a bundle carries and
// produces the aggregate signature satisfying them. Deriving re-evaluates
// every spend through the condition gateway, so the requirements always
// reflect what the bundle actually commits to.
package sign

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// DomainConstants separates signatures across networks: the extra bytes are
// appended to every signed message, so a signature from one network never
// validates on another.
type DomainConstants struct {
	AggSigMeExtra ledger.Hash256
}

// A Requirement is one pending signature: the key that must sign and the
// fully domain-separated message it must sign.
type Requirement struct {
	PublicKey bls.PublicKey
	Message   []byte
}

// MissingSignerKeyError reports a requirement whose secret key the keyring
// does not hold.
type MissingSignerKeyError struct {
	PublicKey bls.PublicKey
}

func (e *MissingSignerKeyError) Error() string {
	return fmt.Sprintf("sign: no secret key for public key %x", e.PublicKey[:8])
}

// Message binds a raw signing payload to one coin and one network:
// payload || coin_id || extra.
func Message(payload []byte, coinID ledger.Hash256, dc DomainConstants) []byte {
	out := make([]byte, 0, len(payload)+2*len(coinID))
	out = append(out, payload...)
	out = append(out, coinID[:]...)
	out = append(out, dc.AggSigMeExtra[:]...)
	return out
}

// Derive lists every signing requirement in the bundle, in spend order.
func Derive(bundle ledger.SpendBundle, eval puzzle.Evaluator, dc DomainConstants) ([]Requirement, error) {
	var reqs []Requirement
	for _, cs := range bundle.CoinSpends {
		conds, err := eval.Evaluate(cs.PuzzleReveal, cs.Solution)
		if err != nil {
			return nil, fmt.Errorf("sign: coin %s: %w", cs.Coin.ID(), err)
		}
		coinID := cs.Coin.ID()
		for _, c := range conds {
			if agg, ok := c.(ledger.AggSigMe); ok {
				reqs = append(reqs, Requirement{
					PublicKey: agg.PublicKey,
					Message:   Message(agg.Message, coinID, dc),
				})
			}
		}
	}
	return reqs, nil
}

// A Keyring holds secret keys indexed by their public key. It is a plain
// in-process store; persistent custody is out of scope here.
type Keyring struct {
	keys map[bls.PublicKey]*bls.SecretKey
}

func NewKeyring(keys ...*bls.SecretKey) *Keyring {
	k := &Keyring{keys: make(map[bls.PublicKey]*bls.SecretKey)}
	for _, sk := range keys {
		k.Add(sk)
	}
	return k
}

func (k *Keyring) Add(sk *bls.SecretKey) {
	k.keys[sk.PublicKey()] = sk
}

// Sign satisfies every requirement and aggregates the parts. Requirements
// for keys the ring does not hold fail with MissingSignerKeyError.
func (k *Keyring) Sign(reqs []Requirement) (bls.Signature, error) {
	sigs := make([]bls.Signature, 0, len(reqs))
	for _, req := range reqs {
		sk, ok := k.keys[req.PublicKey]
		if !ok {
			return bls.Signature{}, &MissingSignerKeyError{PublicKey: req.PublicKey}
		}
		sig, err := bls.Sign(sk, req.Message)
		if err != nil {
			return bls.Signature{}, err
		}
		sigs = append(sigs, sig)
	}
	return bls.Aggregate(sigs...)
}

// SignBundle derives the bundle's requirements, signs them with the keyring
// and returns the bundle with its aggregate signature attached.
func SignBundle(bundle ledger.SpendBundle, eval puzzle.Evaluator, dc DomainConstants, keyring *Keyring) (ledger.SpendBundle, error) {
	reqs, err := Derive(bundle, eval, dc)
	if err != nil {
		return bundle, err
	}
	sig, err := keyring.Sign(reqs)
	if err != nil {
		return bundle, err
	}
	bundle.AggregatedSignature = sig
	return bundle, nil
}

// VerifySignature checks the bundle's aggregate signature against its own
// derived requirements.
func VerifySignature(bundle ledger.SpendBundle, eval puzzle.Evaluator, dc DomainConstants) (bool, error) {
	reqs, err := Derive(bundle, eval, dc)
	if err != nil {
		return false, err
	}
	pks := make([]bls.PublicKey, len(reqs))
	msgs := make([][]byte, len(reqs))
	for i, req := range reqs {
		pks[i] = req.PublicKey
		msgs[i] = req.Message
	}
	return bls.AggregateVerify(pks, msgs, bundle.AggregatedSignature), nil
}
