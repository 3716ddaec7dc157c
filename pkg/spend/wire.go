package spend

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

func singletonEncoder(sol puzzle.SingletonSolution, conds []ledger.Condition) func([]ledger.Condition) (ledger.Program, error) {
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

// compileSingletons emits one spend per staged singleton transition: an
// update recreates the coin with the same amount, a melt destroys it.
func (s *Session) compileSingletons(bp *batchPlan, plans *[]plannedSpend) ([]ledger.Hash256, error) {
	var used []ledger.Hash256
	for _, up := range bp.updates {
		entry, ok := s.singletons[up.launcherID]
		if !ok {
			return nil, fmt.Errorf("%w: launcher %s", ErrSingletonNotFound, up.launcherID)
		}
		var conds []ledger.Condition
		if !up.melt {
			inner := entry.innerHash
			if up.newInner != nil {
				inner = *up.newInner
			}
			conds = append(conds, ledger.CreateCoin{PuzzleHash: inner, Amount: entry.coin.Amount})
			if up.announce != nil {
				conds = append(conds, ledger.CreateCoinAnnouncement{Message: up.announce.Bytes()})
			}
		}
		sol := puzzle.SingletonSolution{Lineage: entry.lineage, Melt: up.melt}
		*plans = append(*plans, plannedSpend{
			coin:    entry.coin,
			reveal:  s.cache.Singleton(up.launcherID, s.cache.Standard(entry.owner)),
			carries: true,
			encode:  singletonEncoder(sol, conds),
		})
		used = append(used, up.launcherID)
	}
	return used, nil
}

// wireBatch decides which conditions each sealed solution still receives:
// the caller's required conditions ride the first carrier, and under the
// concurrent relation every spend asserts its cyclic successor itself, so
// removing any member breaks some remaining member's assertion and no proper
// subset of the batch validates alone. Fixed-shape solutions take the
// assertion through their dedicated slot.
func (s *Session) wireBatch(plans []plannedSpend) ([][]ledger.Condition, error) {
	injected := make([][]ledger.Condition, len(plans))

	if len(s.extra) > 0 {
		firstCarrier := -1
		for i, p := range plans {
			if p.carries {
				firstCarrier = i
				break
			}
		}
		if firstCarrier == -1 {
			return nil, ErrNoCarrier
		}
		injected[firstCarrier] = append(injected[firstCarrier], s.extra...)
	}

	if s.opts.Relation == enum.RelationAssertConcurrent && len(plans) > 1 {
		for i := range plans {
			next := plans[(i+1)%len(plans)].coin.ID()
			injected[i] = append(injected[i], ledger.AssertConcurrentSpend{CoinID: next})
		}
	}
	return injected, nil
}

// consume removes the spent coins from the pools and resets the staging
// area. Only called once the whole batch compiled.
func (s *Session) consume(xch []standardEntry, cats map[ledger.Hash256][]catEntry, settles map[ledger.Hash256][]settlementEntry, singletons []ledger.Hash256) {
	spent := make(map[ledger.Hash256]struct{})
	for _, e := range xch {
		spent[e.coin.ID()] = struct{}{}
	}
	for _, entries := range cats {
		for _, e := range entries {
			spent[e.coin.ID()] = struct{}{}
		}
	}
	for _, entries := range settles {
		for _, e := range entries {
			spent[e.coin.ID()] = struct{}{}
		}
	}

	s.xch = lo.Reject(s.xch, func(e standardEntry, _ int) bool {
		_, ok := spent[e.coin.ID()]
		return ok
	})
	for asset := range cats {
		s.cats[asset] = lo.Reject(s.cats[asset], func(e catEntry, _ int) bool {
			_, ok := spent[e.coin.ID()]
			return ok
		})
	}
	for asset := range settles {
		s.settlement[asset] = lo.Reject(s.settlement[asset], func(e settlementEntry, _ int) bool {
			_, ok := spent[e.coin.ID()]
			return ok
		})
	}
	for _, launcherID := range singletons {
		delete(s.singletons, launcherID)
	}

	s.actions = nil
	s.deltas = nil
	s.extra = nil
}
