// Package offer implements the settlement protocol: a maker locks assets at
// the public settlement puzzle and states what must be paid out in return; a
// taker completes the trade by funding those payouts. Either whole trade
// lands on chain or nothing does.
package offer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fystack/spendkit/pkg/ledger"
)

const encodingPrefix = "offer1"

var (
	ErrMalformedOffer = errors.New("offer: malformed encoding")
)

// InsufficientPaymentError reports a take that pays less into settlement
// than the offer requests.
type InsufficientPaymentError struct {
	AssetID  ledger.Hash256 // zero for the native asset
	Required uint64
	Paid     uint64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("offer: requested payment short for asset %s: need %d, paid %d",
		e.AssetID, e.Required, e.Paid)
}

// RoyaltyNotPaidError reports a take that skips or shorts the creator
// royalty attached to the offer.
type RoyaltyNotPaidError struct {
	Required uint64
	Paid     uint64
}

func (e *RoyaltyNotPaidError) Error() string {
	return fmt.Sprintf("offer: royalty of %d not paid, got %d", e.Required, e.Paid)
}

// A RequestedPayment is one notarized group the maker demands, in one asset.
// A zero asset id means the native asset.
type RequestedPayment struct {
	AssetID ledger.Hash256
	Group   ledger.NotarizedPayment
}

// Royalty is an obligation the taker must fund on top of the requested
// payments, proportional to each requested group's total.
type Royalty struct {
	PuzzleHash  ledger.Hash256
	BasisPoints uint16
}

// Amount computes the royalty due on a payment total, rounded up so the
// creator is never shorted by integer division.
func (r Royalty) Amount(total uint64) uint64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0)
	due := d.Mul(decimal.NewFromInt(int64(r.BasisPoints))).Div(decimal.NewFromInt(10000)).Ceil()
	return due.BigInt().Uint64()
}

// An Offer is the maker's half of a trade: locked spends with a partial
// aggregate signature, the requested payments, and an optional royalty.
type Offer struct {
	Requested []RequestedPayment
	Royalty   *Royalty
	Bundle    ledger.SpendBundle
}

func (o Offer) encodeTo(e *ledger.Encoder) {
	e.WriteUint32(uint32(len(o.Requested)))
	for _, r := range o.Requested {
		e.WriteHash(r.AssetID)
		r.Group.EncodeTo(e)
	}
	e.WriteBool(o.Royalty != nil)
	if o.Royalty != nil {
		e.WriteHash(o.Royalty.PuzzleHash)
		e.WriteUint16(o.Royalty.BasisPoints)
	}
	o.Bundle.EncodeTo(e)
}

// Encode serializes the offer into its portable text form.
func (o Offer) Encode() string {
	e := ledger.NewEncoder()
	o.encodeTo(e)
	return encodingPrefix + base64.RawURLEncoding.EncodeToString(e.Bytes())
}

// Decode parses the portable text form.
func Decode(s string) (Offer, error) {
	var o Offer
	if !strings.HasPrefix(s, encodingPrefix) {
		return o, ErrMalformedOffer
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, encodingPrefix))
	if err != nil {
		return o, fmt.Errorf("%w: %v", ErrMalformedOffer, err)
	}
	d := ledger.NewDecoder(raw)
	n := d.ReadUint32()
	if err := d.Err(); err != nil {
		return o, fmt.Errorf("%w: %v", ErrMalformedOffer, err)
	}
	o.Requested = make([]RequestedPayment, n)
	for i := range o.Requested {
		o.Requested[i].AssetID = d.ReadHash()
		o.Requested[i].Group.DecodeFrom(d)
	}
	if d.ReadBool() {
		o.Royalty = &Royalty{PuzzleHash: d.ReadHash(), BasisPoints: d.ReadUint16()}
	}
	o.Bundle.DecodeFrom(d)
	if err := d.Finish(); err != nil {
		return o, fmt.Errorf("%w: %v", ErrMalformedOffer, err)
	}
	return o, nil
}
