package spend

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// VerifyBundle validates a bundle's internal consistency without chain
// state: no duplicate inputs, every reveal evaluates, every assertion is
// satisfied inside the bundle, value covers the reserved fee, and every
// wrapped asset's spends conserve supply.
func VerifyBundle(bundle ledger.SpendBundle, eval puzzle.Evaluator) error {
	spent := make(map[ledger.Hash256]struct{}, len(bundle.CoinSpends))
	for _, cs := range bundle.CoinSpends {
		id := cs.Coin.ID()
		if _, dup := spent[id]; dup {
			return &DuplicateCoinError{CoinID: id}
		}
		spent[id] = struct{}{}
	}

	type evaluated struct {
		spend ledger.CoinSpend
		conds []ledger.Condition
	}
	evals := make([]evaluated, 0, len(bundle.CoinSpends))
	for _, cs := range bundle.CoinSpends {
		if cs.Coin.PuzzleHash != puzzle.TreeHash(cs.PuzzleReveal) {
			return fmt.Errorf("spend: reveal for coin %s does not match its puzzle hash", cs.Coin.ID())
		}
		conds, err := eval.Evaluate(cs.PuzzleReveal, cs.Solution)
		if err != nil {
			return fmt.Errorf("spend: coin %s: %w", cs.Coin.ID(), err)
		}
		evals = append(evals, evaluated{spend: cs, conds: conds})
	}

	coinAnns := make(map[ledger.Hash256]struct{})
	puzzleAnns := make(map[ledger.Hash256]struct{})
	var totalIn, totalOut, fee uint64
	for _, ev := range evals {
		totalIn += ev.spend.Coin.Amount
		coinID := ev.spend.Coin.ID()
		for _, c := range ev.conds {
			switch cc := c.(type) {
			case ledger.CreateCoin:
				totalOut += cc.Amount
			case ledger.ReserveFee:
				fee += cc.Amount
			case ledger.CreateCoinAnnouncement:
				coinAnns[ledger.CoinAnnouncementID(coinID, cc.Message)] = struct{}{}
			case ledger.CreatePuzzleAnnouncement:
				puzzleAnns[ledger.PuzzleAnnouncementID(ev.spend.Coin.PuzzleHash, cc.Message)] = struct{}{}
			}
		}
	}

	for _, ev := range evals {
		for _, c := range ev.conds {
			switch cc := c.(type) {
			case ledger.AssertCoinAnnouncement:
				if _, ok := coinAnns[cc.AnnouncementID]; !ok {
					return &UnsatisfiedAssertionError{Kind: "coin announcement", ID: cc.AnnouncementID}
				}
			case ledger.AssertPuzzleAnnouncement:
				if _, ok := puzzleAnns[cc.AnnouncementID]; !ok {
					return &UnsatisfiedAssertionError{Kind: "puzzle announcement", ID: cc.AnnouncementID}
				}
			case ledger.AssertConcurrentSpend:
				if _, ok := spent[cc.CoinID]; !ok {
					return &UnsatisfiedAssertionError{Kind: "concurrent spend", ID: cc.CoinID}
				}
			}
		}
	}

	if totalIn < totalOut+fee {
		return fmt.Errorf("spend: bundle outputs %d plus fee %d exceed inputs %d", totalOut, fee, totalIn)
	}

	// wrapped assets must conserve supply across the whole bundle
	catDeltas := make(map[ledger.Hash256]int64)
	for _, ev := range evals {
		assetID, ok := puzzle.CatAssetID(ev.spend.PuzzleReveal)
		if !ok {
			continue
		}
		sol, err := puzzle.DecodeCatSolution(ev.spend.Solution)
		if err != nil {
			return err
		}
		var in int64
		if sol.HasLineage {
			in = int64(ev.spend.Coin.Amount)
		}
		var out int64
		for _, c := range ev.conds {
			if cc, isCreate := c.(ledger.CreateCoin); isCreate {
				out += int64(cc.Amount)
			}
		}
		catDeltas[assetID] += in - out + sol.ExtraDelta
	}
	for assetID, delta := range catDeltas {
		if delta != 0 {
			return &RingSequencingMismatchError{AssetID: assetID, Imbalance: delta}
		}
	}
	return nil
}
