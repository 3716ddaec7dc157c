package offer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
	"github.com/fystack/spendkit/pkg/sign"
	"github.com/fystack/spendkit/pkg/spend"
)

// Protocol fixes the settlement revision, the evaluator gateway and the
// network's signing domain for one trading venue.
type Protocol struct {
	Version   uint8
	Evaluator puzzle.Evaluator
	Constants sign.DomainConstants
}

func (p Protocol) settlementInner() ledger.Hash256 {
	return puzzle.SettlementPuzzleHash(p.Version)
}

func (p Protocol) settlementOuter(assetID ledger.Hash256) ledger.Hash256 {
	if assetID.IsZero() {
		return p.settlementInner()
	}
	return puzzle.CatPuzzleHash(assetID, p.settlementInner())
}

func assetFor(assetID ledger.Hash256) assets.Id {
	if assetID.IsZero() {
		return assets.Xch()
	}
	return assets.Existing(assetID)
}

// Offered is one asset amount the maker locks into the offer.
type Offered struct {
	Asset  assets.Id
	Amount uint64
}

// Request is one payment group the maker demands in return.
type Request struct {
	AssetID  ledger.Hash256 // zero for the native asset
	Payments []ledger.Payment
}

// Make locks the offered amounts at the settlement puzzle and binds the
// maker's spends to the requested payouts: the resulting bundle only
// validates next to spends that announce every requested group.
func Make(p Protocol, s *spend.Session, offered []Offered, requested []Request, royalty *Royalty, keyring *sign.Keyring) (*Offer, error) {
	nonce := ledger.ComputeNonce(s.PooledCoinIDs())

	groups := make([]RequestedPayment, 0, len(requested))
	for _, req := range requested {
		g := ledger.NotarizedPayment{Nonce: nonce, Payments: req.Payments}
		digest := g.Digest()
		s.RequireConditions(ledger.AssertPuzzleAnnouncement{
			AnnouncementID: ledger.PuzzleAnnouncementID(
				p.settlementOuter(req.AssetID),
				ledger.HashConcat(nonce[:], digest[:]).Bytes(),
			),
		})
		groups = append(groups, RequestedPayment{AssetID: req.AssetID, Group: g})
	}

	for _, off := range offered {
		err := s.Apply(assets.Send{Asset: off.Asset, To: p.settlementInner(), Amount: off.Amount})
		if err != nil {
			return nil, err
		}
	}
	res, err := s.Finish()
	if err != nil {
		return nil, err
	}
	signed, err := sign.SignBundle(res.Bundle, p.Evaluator, p.Constants, keyring)
	if err != nil {
		return nil, err
	}
	return &Offer{Requested: groups, Royalty: royalty, Bundle: signed}, nil
}

type settlementCoin struct {
	coin    ledger.Coin
	lineage *ledger.LineageProof
}

// sortedAssets fixes the iteration order over per-asset coin groups so
// identical inputs compile to byte-identical bundles.
func sortedAssets(m map[ledger.Hash256][]settlementCoin) []ledger.Hash256 {
	ids := make([]ledger.Hash256, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return bytes.Compare(ids[a][:], ids[b][:]) < 0 })
	return ids
}

// settlementOutputs finds the settlement coins a bundle creates, per asset.
// The zero key is the native asset.
func (p Protocol) settlementOutputs(bundle ledger.SpendBundle) (map[ledger.Hash256][]settlementCoin, error) {
	out := make(map[ledger.Hash256][]settlementCoin)
	inner := p.settlementInner()
	for _, cs := range bundle.CoinSpends {
		conds, err := p.Evaluator.Evaluate(cs.PuzzleReveal, cs.Solution)
		if err != nil {
			return nil, err
		}
		parentID := cs.Coin.ID()
		assetID, isCat := puzzle.CatAssetID(cs.PuzzleReveal)
		for _, c := range conds {
			cc, ok := c.(ledger.CreateCoin)
			if !ok {
				continue
			}
			coin := ledger.Coin{ParentCoinID: parentID, PuzzleHash: cc.PuzzleHash, Amount: cc.Amount}
			switch {
			case isCat && cc.PuzzleHash == puzzle.CatPuzzleHash(assetID, inner):
				lin := &ledger.LineageProof{
					ParentParentCoinID: cs.Coin.ParentCoinID,
					ParentAmount:       cs.Coin.Amount,
				}
				out[assetID] = append(out[assetID], settlementCoin{coin: coin, lineage: lin})
			case !isCat && cc.PuzzleHash == inner:
				out[ledger.Hash256{}] = append(out[ledger.Hash256{}], settlementCoin{coin: coin})
			}
		}
	}
	return out, nil
}

// Take completes an offer: the taker funds the requested payments (plus any
// royalty) through the settlement puzzle, pays them out so the maker's
// assertions hold, and claims the offered assets to payout.
func Take(p Protocol, s *spend.Session, o *Offer, payout ledger.Hash256, keyring *sign.Keyring) (ledger.SpendBundle, error) {
	makerCoins, err := p.settlementOutputs(o.Bundle)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	if len(makerCoins) == 0 {
		return ledger.SpendBundle{}, fmt.Errorf("offer: maker bundle locks nothing at the settlement puzzle")
	}

	// stage one: lock the taker's own funds at the settlement puzzle
	royaltyDue := make(map[ledger.Hash256]uint64)
	for _, r := range o.Requested {
		total := r.Group.Total()
		var roy uint64
		if o.Royalty != nil {
			roy = o.Royalty.Amount(total)
		}
		royaltyDue[r.AssetID] += roy
		err := s.Apply(assets.Send{Asset: assetFor(r.AssetID), To: p.settlementInner(), Amount: total + roy})
		if err != nil {
			return ledger.SpendBundle{}, err
		}
	}
	funding, err := s.Finish()
	if err != nil {
		return ledger.SpendBundle{}, err
	}

	takerCoins, err := p.settlementOutputs(funding.Bundle)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	for _, assetID := range sortedAssets(takerCoins) {
		for _, e := range takerCoins[assetID] {
			if err := s.AddSettlement(assetFor(assetID), e.coin, e.lineage); err != nil {
				return ledger.SpendBundle{}, err
			}
		}
	}
	var claimIDs []ledger.Hash256
	for _, assetID := range sortedAssets(makerCoins) {
		for _, e := range makerCoins[assetID] {
			if err := s.AddSettlement(assetFor(assetID), e.coin, e.lineage); err != nil {
				return ledger.SpendBundle{}, err
			}
			claimIDs = append(claimIDs, e.coin.ID())
		}
	}

	// stage two: pay the maker's groups out and claim the offered coins
	for _, r := range o.Requested {
		groups := []ledger.NotarizedPayment{r.Group}
		if roy := royaltyDue[r.AssetID]; roy > 0 {
			groups = append(groups, ledger.NotarizedPayment{
				Nonce:    r.Group.Nonce,
				Payments: []ledger.Payment{{PuzzleHash: o.Royalty.PuzzleHash, Amount: roy}},
			})
			royaltyDue[r.AssetID] = 0
		}
		if err := s.Apply(assets.Settle{Asset: assetFor(r.AssetID), Payments: groups}); err != nil {
			return ledger.SpendBundle{}, err
		}
	}
	claimNonce := ledger.ComputeNonce(claimIDs)
	for _, assetID := range sortedAssets(makerCoins) {
		var total uint64
		for _, e := range makerCoins[assetID] {
			total += e.coin.Amount
		}
		err := s.Apply(assets.Settle{Asset: assetFor(assetID), Payments: []ledger.NotarizedPayment{{
			Nonce:    claimNonce,
			Payments: []ledger.Payment{{PuzzleHash: payout, Amount: total}},
		}}})
		if err != nil {
			return ledger.SpendBundle{}, err
		}
	}
	payouts, err := s.Finish()
	if err != nil {
		return ledger.SpendBundle{}, err
	}

	taker := ledger.SpendBundle{
		CoinSpends: append(funding.Bundle.CoinSpends, payouts.Bundle.CoinSpends...),
	}
	taker, err = sign.SignBundle(taker, p.Evaluator, p.Constants, keyring)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	return Combine(p, o, taker)
}

// CheckPayments verifies a taker bundle funds every requested group and the
// royalty on top of it, before the maker agrees to combine.
func CheckPayments(p Protocol, o *Offer, taker ledger.SpendBundle) error {
	paid := make(map[ledger.Hash256]uint64)
	for _, cs := range taker.CoinSpends {
		conds, err := p.Evaluator.Evaluate(cs.PuzzleReveal, cs.Solution)
		if err != nil {
			return err
		}
		assetID, isCat := puzzle.CatAssetID(cs.PuzzleReveal)
		for _, c := range conds {
			cc, ok := c.(ledger.CreateCoin)
			if !ok {
				continue
			}
			switch {
			case isCat && cc.PuzzleHash == p.settlementOuter(assetID):
				paid[assetID] += cc.Amount
			case !isCat && cc.PuzzleHash == p.settlementInner():
				paid[ledger.Hash256{}] += cc.Amount
			}
		}
	}

	required := make(map[ledger.Hash256]uint64)
	royalty := make(map[ledger.Hash256]uint64)
	for _, r := range o.Requested {
		total := r.Group.Total()
		required[r.AssetID] += total
		if o.Royalty != nil {
			royalty[r.AssetID] += o.Royalty.Amount(total)
		}
	}
	checked := make([]ledger.Hash256, 0, len(required))
	for assetID := range required {
		checked = append(checked, assetID)
	}
	sort.Slice(checked, func(a, b int) bool { return bytes.Compare(checked[a][:], checked[b][:]) < 0 })
	for _, assetID := range checked {
		need := required[assetID]
		got := paid[assetID]
		if got < need {
			return &InsufficientPaymentError{AssetID: assetID, Required: need, Paid: got}
		}
		if roy := royalty[assetID]; got < need+roy {
			return &RoyaltyNotPaidError{Required: roy, Paid: got - need}
		}
	}
	return nil
}

// Combine merges the maker's and taker's halves into one bundle, aggregates
// their signatures and validates the result end to end.
func Combine(p Protocol, o *Offer, taker ledger.SpendBundle) (ledger.SpendBundle, error) {
	if err := CheckPayments(p, o, taker); err != nil {
		return ledger.SpendBundle{}, err
	}

	combined := ledger.SpendBundle{
		CoinSpends: make([]ledger.CoinSpend, 0, len(o.Bundle.CoinSpends)+len(taker.CoinSpends)),
	}
	combined.CoinSpends = append(combined.CoinSpends, o.Bundle.CoinSpends...)
	combined.CoinSpends = append(combined.CoinSpends, taker.CoinSpends...)

	sig, err := bls.Aggregate(o.Bundle.AggregatedSignature, taker.AggregatedSignature)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	combined.AggregatedSignature = sig

	if err := spend.VerifyBundle(combined, p.Evaluator); err != nil {
		return ledger.SpendBundle{}, err
	}
	ok, err := sign.VerifySignature(combined, p.Evaluator, p.Constants)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	if !ok {
		return ledger.SpendBundle{}, fmt.Errorf("offer: combined signature does not verify")
	}
	return combined, nil
}
