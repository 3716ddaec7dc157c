package ledger

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
)

// A Program is an opaque, canonically serialized puzzle or solution. The
// engine never interprets foreign programs; evaluation goes through the
// condition evaluator gateway.
type Program []byte

// Hash is the plain sha256 of the serialized program bytes.
func (p Program) Hash() Hash256 {
	return HashBytes(p)
}

// A Coin is an unspent value record. It is immutable: coins are created by a
// parent spend and destroyed the instant they are spent.
type Coin struct {
	ParentCoinID Hash256 `json:"parentCoinId"`
	PuzzleHash   Hash256 `json:"puzzleHash"`
	Amount       uint64  `json:"amount"`
}

// ID is the deterministic coin identity:
// sha256(parent_coin_id || puzzle_hash || be64(amount)).
func (c Coin) ID() Hash256 {
	e := NewEncoder()
	c.EncodeTo(e)
	return HashBytes(e.Bytes())
}

func (c Coin) EncodeTo(e *Encoder) {
	e.WriteHash(c.ParentCoinID)
	e.WriteHash(c.PuzzleHash)
	e.WriteUint64(c.Amount)
}

func (c *Coin) DecodeFrom(d *Decoder) {
	c.ParentCoinID = d.ReadHash()
	c.PuzzleHash = d.ReadHash()
	c.Amount = d.ReadUint64()
}

func (c Coin) String() string {
	return fmt.Sprintf("{Coin id: %s, puzzle_hash: %s, amount: %d}", c.ID(), c.PuzzleHash, c.Amount)
}

// A CoinSpend reveals a coin's puzzle and supplies a solution for it. A coin
// may appear as the subject of at most one CoinSpend per transaction.
type CoinSpend struct {
	Coin         Coin    `json:"coin"`
	PuzzleReveal Program `json:"puzzleReveal"`
	Solution     Program `json:"solution"`
}

func (cs CoinSpend) EncodeTo(e *Encoder) {
	cs.Coin.EncodeTo(e)
	e.WriteBytes(cs.PuzzleReveal)
	e.WriteBytes(cs.Solution)
}

func (cs *CoinSpend) DecodeFrom(d *Decoder) {
	cs.Coin.DecodeFrom(d)
	cs.PuzzleReveal = Program(d.ReadBytes())
	cs.Solution = Program(d.ReadBytes())
}

// A LineageProof pins a wrapped coin to its parent so asset layers can prove
// an unbroken ancestry chain back to a valid genesis.
type LineageProof struct {
	ParentParentCoinID    Hash256 `json:"parentParentCoinId"`
	ParentInnerPuzzleHash Hash256 `json:"parentInnerPuzzleHash"`
	ParentAmount          uint64  `json:"parentAmount"`
}

func (lp LineageProof) EncodeTo(e *Encoder) {
	e.WriteHash(lp.ParentParentCoinID)
	e.WriteHash(lp.ParentInnerPuzzleHash)
	e.WriteUint64(lp.ParentAmount)
}

func (lp *LineageProof) DecodeFrom(d *Decoder) {
	lp.ParentParentCoinID = d.ReadHash()
	lp.ParentInnerPuzzleHash = d.ReadHash()
	lp.ParentAmount = d.ReadUint64()
}

// A SpendBundle is the finished hand-off unit: the full CoinSpend set plus
// one aggregate signature covering every signing requirement in it.
// Broadcast and mempool acceptance are external concerns.
type SpendBundle struct {
	CoinSpends          []CoinSpend   `json:"coinSpends"`
	AggregatedSignature bls.Signature `json:"aggregatedSignature"`
}

func (sb SpendBundle) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(len(sb.CoinSpends)))
	for _, cs := range sb.CoinSpends {
		cs.EncodeTo(e)
	}
	e.WriteBytes(sb.AggregatedSignature[:])
}

func (sb *SpendBundle) DecodeFrom(d *Decoder) {
	n := d.ReadUint32()
	if !d.checkCount(n, 72) {
		return
	}
	sb.CoinSpends = make([]CoinSpend, n)
	for i := range sb.CoinSpends {
		sb.CoinSpends[i].DecodeFrom(d)
	}
	sig := d.ReadBytes()
	if d.err == nil {
		if len(sig) != bls.SignatureSize {
			d.setErr(fmt.Errorf("ledger: aggregate signature must be %d bytes", bls.SignatureSize))
			return
		}
		copy(sb.AggregatedSignature[:], sig)
	}
}

// Name is a deterministic identifier for the bundle, usable as an
// idempotency key when handing off for submission.
func (sb SpendBundle) Name() Hash256 {
	e := NewEncoder()
	sb.EncodeTo(e)
	return HashBytes(e.Bytes())
}
