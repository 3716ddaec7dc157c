package spend

import (
	"github.com/samber/lo"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// ringMember is one spend of a wrapped asset before ring wiring. Members
// with a standard inner puzzle stay open for condition injection; settlement
// members have a fixed payout shape.
type ringMember struct {
	coin       ledger.Coin
	reveal     ledger.Program
	hasLineage bool
	lineage    ledger.LineageProof
	extraDelta int64
	tailReveal ledger.Program
	conds      []ledger.Condition
	groups     []ledger.NotarizedPayment
	settle     bool
	outputs    uint64
}

func catEncoder(sol puzzle.CatSolution, conds []ledger.Condition) func([]ledger.Condition) (ledger.Program, error) {
	return func(extra []ledger.Condition) (ledger.Program, error) {
		all := make([]ledger.Condition, 0, len(conds)+len(extra))
		all = append(all, conds...)
		all = append(all, extra...)
		inner, err := puzzle.StandardSolution(all)
		if err != nil {
			return nil, err
		}
		sol.InnerSolution = inner
		return sol.Encode(), nil
	}
}

func catSettlementEncoder(sol puzzle.CatSolution, inner puzzle.SettlementSolution) func([]ledger.Condition) (ledger.Program, error) {
	return func(extra []ledger.Condition) (ledger.Program, error) {
		ids, err := concurrencySlots(extra)
		if err != nil {
			return nil, err
		}
		inner.Assertions = append(inner.Assertions, ids...)
		sol.InnerSolution = inner.Encode()
		return sol.Encode(), nil
	}
}

// compileCatRing selects coins of one wrapped asset, assigns outputs and
// change to a carrier member, chains every member into the announcement ring
// and emits the asset's spends.
func (s *Session) compileCatRing(bp *batchPlan, assetID ledger.Hash256, plans *[]plannedSpend) ([]catEntry, []settlementEntry, error) {
	asset := assets.Existing(assetID)
	pays := bp.payments[asset]
	groups := bp.settles[asset]
	sendsTotal := paymentsTotal(pays)
	gTotal := groupsTotal(groups)
	issued := s.deltas.Issued(asset)

	// settlement coins fund exactly the notarized groups
	var usedSettles []settlementEntry
	var settleSum uint64
	for _, e := range s.settlement[assetID] {
		if settleSum >= gTotal {
			break
		}
		usedSettles = append(usedSettles, e)
		settleSum += e.coin.Amount
	}
	if settleSum < gTotal {
		return nil, nil, &InsufficientFundsError{Asset: asset, Required: gTotal, Available: settleSum}
	}

	outNeeded := sendsTotal + gTotal
	inFixed := issued + settleSum
	poolNeed := outNeeded - min(outNeeded, inFixed)

	var usedPool []catEntry
	var poolSum uint64
	for _, e := range s.cats[assetID] {
		if poolSum >= poolNeed {
			break
		}
		usedPool = append(usedPool, e)
		poolSum += e.coin.Amount
	}
	totalIn := poolSum + inFixed
	if totalIn < outNeeded {
		available := lo.SumBy(s.cats[assetID], func(e catEntry) uint64 { return e.coin.Amount }) + inFixed
		return nil, nil, &InsufficientFundsError{Asset: asset, Required: outNeeded, Available: available}
	}
	change := totalIn - outNeeded

	// members in ring order: owned coins, then issuance eves, then
	// settlement payouts
	var members []ringMember
	for _, e := range usedPool {
		members = append(members, ringMember{
			coin:       e.coin,
			reveal:     s.cache.Cat(assetID, s.cache.Standard(e.owner)),
			hasLineage: true,
			lineage:    e.lineage,
		})
	}
	eveReveal := s.cache.Cat(assetID, s.cache.Standard(s.opts.SelfKey))
	for _, iss := range bp.issuances {
		if iss.assetID != assetID {
			continue
		}
		tail, err := iss.tail.Program()
		if err != nil {
			return nil, nil, err
		}
		members = append(members, ringMember{
			coin:       iss.eveCoin,
			reveal:     eveReveal,
			extraDelta: int64(iss.amount),
			tailReveal: tail,
		})
	}
	firstEve := len(usedPool)
	hasEve := len(members) > len(usedPool)
	for i, e := range usedSettles {
		m := ringMember{
			coin:       e.coin,
			reveal:     s.cache.Cat(assetID, s.cache.Settlement(s.opts.SettlementVersion)),
			hasLineage: e.hasLineage,
			lineage:    e.lineage,
			settle:     true,
		}
		if i == 0 {
			m.groups = groups
			m.outputs = gTotal
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return nil, nil, nil
	}

	// the carrier creates the batch's outputs plus change; an issuance eve
	// takes precedence so freshly issued supply flows out directly
	carrier := -1
	if hasEve {
		carrier = firstEve
	} else if len(usedPool) > 0 {
		carrier = 0
	}
	if carrier == -1 {
		if len(pays) > 0 || change > 0 {
			return nil, nil, ErrNoCarrier
		}
	} else {
		for _, pay := range pays {
			members[carrier].conds = append(members[carrier].conds, ledger.CreateCoin{
				PuzzleHash: pay.PuzzleHash, Amount: pay.Amount, Memos: pay.Memos,
			})
		}
		if change > 0 {
			members[carrier].conds = append(members[carrier].conds, ledger.CreateCoin{
				PuzzleHash: s.changePuzzleHash(), Amount: change,
			})
		}
		members[carrier].outputs = sendsTotal + change
	}

	// subtotal chain; the ring closes only on a zero balance
	n := len(members)
	prev := make([]int64, n)
	var running int64
	for i, m := range members {
		prev[i] = running
		var in int64
		if m.hasLineage {
			in = int64(m.coin.Amount)
		}
		running += in - int64(m.outputs) + m.extraDelta
	}
	if running != 0 {
		return nil, nil, &RingSequencingMismatchError{AssetID: assetID, Imbalance: running}
	}

	for i, m := range members {
		sol := puzzle.CatSolution{
			HasLineage:   m.hasLineage,
			Lineage:      m.lineage,
			ParentCoinID: m.coin.ParentCoinID,
			PrevCoinID:   members[(i-1+n)%n].coin.ID(),
			ThisCoinID:   m.coin.ID(),
			NextCoinID:   members[(i+1)%n].coin.ID(),
			PrevSubtotal: prev[i],
			AmountIn:     m.coin.Amount,
			ExtraDelta:   m.extraDelta,
			TailReveal:   m.tailReveal,
		}
		if m.settle {
			*plans = append(*plans, plannedSpend{
				coin:   m.coin,
				reveal: m.reveal,
				encode: catSettlementEncoder(sol, puzzle.SettlementSolution{Groups: m.groups}),
			})
			continue
		}
		*plans = append(*plans, plannedSpend{
			coin:    m.coin,
			reveal:  m.reveal,
			carries: true,
			encode:  catEncoder(sol, m.conds),
		})
	}
	return usedPool, usedSettles, nil
}
