package ledger

import (
	"bytes"
	"sort"
)

// A Payment is a concrete requested output: destination puzzle hash, amount
// and optional memos.
type Payment struct {
	PuzzleHash Hash256  `json:"puzzleHash"`
	Amount     uint64   `json:"amount"`
	Memos      [][]byte `json:"memos,omitempty"`
}

func (p Payment) EncodeTo(e *Encoder) {
	e.WriteHash(p.PuzzleHash)
	e.WriteUint64(p.Amount)
	e.WriteUint32(uint32(len(p.Memos)))
	for _, m := range p.Memos {
		e.WriteBytes(m)
	}
}

func (p *Payment) DecodeFrom(d *Decoder) {
	p.PuzzleHash = d.ReadHash()
	p.Amount = d.ReadUint64()
	n := d.ReadUint32()
	if !d.checkCount(n, 4) {
		return
	}
	for i := uint32(0); i < n; i++ {
		p.Memos = append(p.Memos, d.ReadBytes())
	}
}

// A NotarizedPayment is a payment group tagged with the nonce of one
// specific offer instance, so a taker cannot replay the maker's requested
// payment shape against a different offer.
type NotarizedPayment struct {
	Nonce    Hash256   `json:"nonce"`
	Payments []Payment `json:"payments"`
}

func (np NotarizedPayment) EncodeTo(e *Encoder) {
	e.WriteHash(np.Nonce)
	e.WriteUint32(uint32(len(np.Payments)))
	for _, p := range np.Payments {
		p.EncodeTo(e)
	}
}

func (np *NotarizedPayment) DecodeFrom(d *Decoder) {
	np.Nonce = d.ReadHash()
	n := d.ReadUint32()
	if !d.checkCount(n, 44) {
		return
	}
	np.Payments = make([]Payment, n)
	for i := range np.Payments {
		np.Payments[i].DecodeFrom(d)
	}
}

func (np NotarizedPayment) Total() uint64 {
	var sum uint64
	for _, p := range np.Payments {
		sum += p.Amount
	}
	return sum
}

// Digest is the canonical hash of the group, announced by the settlement
// puzzle when the group is paid out.
func (np NotarizedPayment) Digest() Hash256 {
	e := NewEncoder()
	np.EncodeTo(e)
	return HashBytes(e.Bytes())
}

// ComputeNonce derives the offer nonce from the set of offered coin ids.
// Ids are sorted bytewise first so the nonce is independent of input order.
func ComputeNonce(coinIDs []Hash256) Hash256 {
	sorted := make([]Hash256, len(coinIDs))
	copy(sorted, coinIDs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	e := NewEncoder()
	e.WriteUint32(uint32(len(sorted)))
	for _, id := range sorted {
		e.WriteHash(id)
	}
	return HashBytes(e.Bytes())
}
