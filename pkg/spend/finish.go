package spend

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// Result is a compiled batch. The bundle is unsigned: derive its signing
// requirements and attach the aggregate before broadcast.
type Result struct {
	Bundle ledger.SpendBundle

	// Created maps asset-creating action indices to the identity the batch
	// assigned: the asset id for fungible issuance, the launcher id for
	// singleton launches.
	Created map[int]ledger.Hash256
}

// plannedSpend is a spend whose solution is not yet sealed, so batch-level
// conditions can still be injected into carriers.
type plannedSpend struct {
	coin    ledger.Coin
	reveal  ledger.Program
	carries bool
	encode  func(extra []ledger.Condition) (ledger.Program, error)
}

func standardEncoder(conds []ledger.Condition) func([]ledger.Condition) (ledger.Program, error) {
	return func(extra []ledger.Condition) (ledger.Program, error) {
		all := make([]ledger.Condition, 0, len(conds)+len(extra))
		all = append(all, conds...)
		all = append(all, extra...)
		return puzzle.StandardSolution(all)
	}
}

// concurrencySlots narrows injected conditions to the coin ids a fixed-shape
// solution can pin. Anything else needs a carrier and is a wiring bug here.
func concurrencySlots(extra []ledger.Condition) ([]ledger.Hash256, error) {
	ids := make([]ledger.Hash256, 0, len(extra))
	for _, c := range extra {
		a, ok := c.(ledger.AssertConcurrentSpend)
		if !ok {
			return nil, fmt.Errorf("spend: fixed-shape solution cannot carry %T", c)
		}
		ids = append(ids, a.CoinID)
	}
	return ids, nil
}

func settlementEncoder(sol puzzle.SettlementSolution) func([]ledger.Condition) (ledger.Program, error) {
	return func(extra []ledger.Condition) (ledger.Program, error) {
		ids, err := concurrencySlots(extra)
		if err != nil {
			return nil, err
		}
		sol.Assertions = append(sol.Assertions, ids...)
		return sol.Encode(), nil
	}
}

func launcherEncoder(sol puzzle.LauncherSolution) func([]ledger.Condition) (ledger.Program, error) {
	return func(extra []ledger.Condition) (ledger.Program, error) {
		ids, err := concurrencySlots(extra)
		if err != nil {
			return nil, err
		}
		sol.Assertions = append(sol.Assertions, ids...)
		return sol.Encode(), nil
	}
}

type issuancePlan struct {
	index   int
	tail    assets.TailSpec
	assetID ledger.Hash256
	amount  uint64
	eveCoin ledger.Coin
}

type launchPlan struct {
	index  int
	inner  ledger.Hash256
	kv     ledger.Hash256
	amount uint64
}

type singletonPlan struct {
	launcherID ledger.Hash256
	newInner   *ledger.Hash256
	announce   *ledger.Hash256
	melt       bool
}

type batchPlan struct {
	payments   map[assets.Id][]ledger.Payment
	settles    map[assets.Id][]ledger.NotarizedPayment
	issuances  []issuancePlan
	launches   []launchPlan
	updates    []singletonPlan
	catAssets  []ledger.Hash256 // first-touch order
	catTouched map[ledger.Hash256]bool
}

func (bp *batchPlan) touchCat(assetID ledger.Hash256) {
	if !bp.catTouched[assetID] {
		bp.catTouched[assetID] = true
		bp.catAssets = append(bp.catAssets, assetID)
	}
}

func groupsTotal(groups []ledger.NotarizedPayment) uint64 {
	return lo.SumBy(groups, func(g ledger.NotarizedPayment) uint64 { return g.Total() })
}

func paymentsTotal(pays []ledger.Payment) uint64 {
	return lo.SumBy(pays, func(p ledger.Payment) uint64 { return p.Amount })
}

// Finish compiles the staged batch into an unsigned bundle. On success the
// spent coins leave the session pools and the staging area resets; on error
// the session is unchanged and may be corrected and finished again.
func (s *Session) Finish() (*Result, error) {
	if len(s.actions) == 0 {
		return nil, ErrNothingStaged
	}

	bp, created, err := s.plan()
	if err != nil {
		return nil, err
	}

	var plans []plannedSpend

	selectedXch, xchSettles, err := s.compileNative(bp, &plans, created)
	if err != nil {
		return nil, err
	}

	usedCats := make(map[ledger.Hash256][]catEntry)
	usedSettles := make(map[ledger.Hash256][]settlementEntry)
	usedSettles[ledger.Hash256{}] = xchSettles
	for _, assetID := range bp.catAssets {
		used, usedSet, err := s.compileCatRing(bp, assetID, &plans)
		if err != nil {
			return nil, err
		}
		usedCats[assetID] = used
		usedSettles[assetID] = usedSet
	}

	usedSingletons, err := s.compileSingletons(bp, &plans)
	if err != nil {
		return nil, err
	}

	injected, err := s.wireBatch(plans)
	if err != nil {
		return nil, err
	}

	spends := make([]ledger.CoinSpend, 0, len(plans))
	spent := make(map[ledger.Hash256]struct{}, len(plans))
	for i, p := range plans {
		id := p.coin.ID()
		if _, dup := spent[id]; dup {
			return nil, &DuplicateCoinError{CoinID: id}
		}
		spent[id] = struct{}{}
		solution, err := p.encode(injected[i])
		if err != nil {
			return nil, err
		}
		spends = append(spends, ledger.CoinSpend{Coin: p.coin, PuzzleReveal: p.reveal, Solution: solution})
	}

	s.consume(selectedXch, usedCats, usedSettles, usedSingletons)

	return &Result{
		Bundle:  ledger.SpendBundle{CoinSpends: spends},
		Created: created,
	}, nil
}

// plan walks the staged actions once, grouping work per asset.
func (s *Session) plan() (*batchPlan, map[int]ledger.Hash256, error) {
	bp := &batchPlan{
		payments:   make(map[assets.Id][]ledger.Payment),
		settles:    make(map[assets.Id][]ledger.NotarizedPayment),
		catTouched: make(map[ledger.Hash256]bool),
	}
	created := make(map[int]ledger.Hash256)

	for i, act := range s.actions {
		switch a := act.(type) {
		case assets.Send:
			asset := s.deltas.Canonical(a.Asset)
			if asset.Kind() == enum.AssetKindNew {
				return nil, nil, fmt.Errorf("spend: action %d sends a unique asset", i)
			}
			bp.payments[asset] = append(bp.payments[asset], ledger.Payment{
				PuzzleHash: a.To, Amount: a.Amount, Memos: a.Memos,
			})
			if asset.Kind() == enum.AssetKindExisting && !s.isPooledSingleton(asset.Hash()) {
				bp.touchCat(asset.Hash())
			}
		case assets.Burn:
			asset := s.deltas.Canonical(a.Asset)
			bp.payments[asset] = append(bp.payments[asset], ledger.Payment{
				PuzzleHash: assets.BurnPuzzleHash, Amount: a.Amount,
			})
			if asset.Kind() == enum.AssetKindExisting {
				bp.touchCat(asset.Hash())
			}
		case assets.Fee:
			// accounted through the delta ledger
		case assets.IssueCat:
			assetID, err := a.Tail.AssetID()
			if err != nil {
				return nil, nil, err
			}
			bp.issuances = append(bp.issuances, issuancePlan{
				index: i, tail: a.Tail, assetID: assetID, amount: a.Amount,
			})
			bp.touchCat(assetID)
			created[i] = assetID
		case assets.MintNft:
			kv := ledger.HashConcat(a.MetadataDigest[:], a.RoyaltyPuzzleHash[:],
				[]byte{byte(a.RoyaltyBasisPoints >> 8), byte(a.RoyaltyBasisPoints)})
			bp.launches = append(bp.launches, launchPlan{index: i, inner: a.To, kv: kv, amount: a.Amount})
		case assets.CreateDid:
			bp.launches = append(bp.launches, launchPlan{index: i, inner: a.To, amount: a.Amount})
		case assets.UpdateNft:
			asset := s.deltas.Canonical(a.Asset)
			digest := a.MetadataDigest
			bp.updates = append(bp.updates, singletonPlan{launcherID: asset.Hash(), announce: &digest})
		case assets.UpdateDid:
			asset := s.deltas.Canonical(a.Asset)
			inner := a.NewInnerPuzzle
			bp.updates = append(bp.updates, singletonPlan{launcherID: asset.Hash(), newInner: &inner})
		case assets.MeltSingleton:
			asset := s.deltas.Canonical(a.Asset)
			bp.updates = append(bp.updates, singletonPlan{launcherID: asset.Hash(), melt: true})
		case assets.Settle:
			asset := s.deltas.Canonical(a.Asset)
			bp.settles[asset] = append(bp.settles[asset], a.Payments...)
			if asset.Kind() == enum.AssetKindExisting {
				bp.touchCat(asset.Hash())
			}
		default:
			return nil, nil, fmt.Errorf("spend: unknown action %T", act)
		}
	}
	return bp, created, nil
}

func (s *Session) isPooledSingleton(launcherID ledger.Hash256) bool {
	_, ok := s.singletons[launcherID]
	return ok
}

// compileNative selects native coins, routes outputs, fee, issuance funding
// and launcher creation through them, and emits the native spends.
func (s *Session) compileNative(bp *batchPlan, plans *[]plannedSpend, created map[int]ledger.Hash256) ([]standardEntry, []settlementEntry, error) {
	xchGroups := bp.settles[assets.Xch()]
	xchGroupsTotal := groupsTotal(xchGroups)

	required := s.deltas.Get(assets.Xch()).RequiredInput
	poolNeed := required - min(required, xchGroupsTotal)

	forced := make(map[ledger.Hash256]bool)
	for _, iss := range bp.issuances {
		if iss.tail.Kind == enum.TailKindGenesisByCoinID {
			forced[iss.tail.GenesisCoinID] = true
		}
	}

	var selected []standardEntry
	var sum uint64
	for _, e := range s.xch {
		id := e.coin.ID()
		if forced[id] || sum < poolNeed {
			selected = append(selected, e)
			sum += e.coin.Amount
			delete(forced, id)
		}
	}
	if len(forced) > 0 {
		return nil, nil, ErrGenesisCoinMissing
	}
	if sum < poolNeed {
		available := lo.SumBy(s.xch, func(e standardEntry) uint64 { return e.coin.Amount }) + xchGroupsTotal
		return nil, nil, &InsufficientFundsError{Asset: assets.Xch(), Required: required, Available: available}
	}

	// conditions per selected coin; index 0 is the primary carrier
	conds := make([][]ledger.Condition, len(selected))
	indexOf := make(map[ledger.Hash256]int, len(selected))
	for i, e := range selected {
		indexOf[e.coin.ID()] = i
	}

	if len(selected) > 0 {
		for _, pay := range bp.payments[assets.Xch()] {
			conds[0] = append(conds[0], ledger.CreateCoin{PuzzleHash: pay.PuzzleHash, Amount: pay.Amount, Memos: pay.Memos})
		}
		if fee := s.deltas.Fee(); fee > 0 {
			conds[0] = append(conds[0], ledger.ReserveFee{Amount: fee})
		}
		if change := sum - poolNeed; change > 0 {
			conds[0] = append(conds[0], ledger.CreateCoin{PuzzleHash: s.changePuzzleHash(), Amount: change})
		}
	} else if len(bp.payments[assets.Xch()]) > 0 || s.deltas.Fee() > 0 ||
		len(bp.issuances) > 0 || len(bp.launches) > 0 {
		// eve and launcher coins need a native spend to create them
		return nil, nil, ErrNoCarrier
	}

	// issuance eve coins: each is created by its genesis coin, or by the
	// primary when the policy does not pin one
	eveInner := puzzle.TreeHash(s.cache.Standard(s.opts.SelfKey))
	for i := range bp.issuances {
		iss := &bp.issuances[i]
		creator := 0
		if iss.tail.Kind == enum.TailKindGenesisByCoinID {
			idx, ok := indexOf[iss.tail.GenesisCoinID]
			if !ok {
				return nil, nil, ErrGenesisCoinMissing
			}
			creator = idx
		}
		iss.eveCoin = ledger.Coin{
			ParentCoinID: selected[creator].coin.ID(),
			PuzzleHash:   puzzle.CatPuzzleHash(iss.assetID, eveInner),
			Amount:       iss.amount,
		}
		conds[creator] = append(conds[creator], ledger.CreateCoin{
			PuzzleHash: iss.eveCoin.PuzzleHash, Amount: iss.eveCoin.Amount,
		})
	}

	// launcher coins are created by the primary, spent in the same batch,
	// and pinned through their solution-digest announcement
	for _, l := range bp.launches {
		launcherCoin := ledger.Coin{
			ParentCoinID: selected[0].coin.ID(),
			PuzzleHash:   puzzle.LauncherPuzzleHash(),
			Amount:       l.amount,
		}
		launcherID := launcherCoin.ID()
		sol := puzzle.LauncherSolution{
			LauncherID:      launcherID,
			InnerPuzzleHash: l.inner,
			Amount:          l.amount,
			KeyValueDigest:  l.kv,
		}
		conds[0] = append(conds[0],
			ledger.CreateCoin{PuzzleHash: launcherCoin.PuzzleHash, Amount: launcherCoin.Amount},
			ledger.AssertCoinAnnouncement{
				AnnouncementID: ledger.CoinAnnouncementID(launcherID, sol.Digest().Bytes()),
			},
		)
		created[l.index] = launcherID
		*plans = append(*plans, plannedSpend{
			coin:   launcherCoin,
			reveal: puzzle.LauncherPuzzle(),
			encode: launcherEncoder(sol),
		})
	}

	for i, e := range selected {
		*plans = append(*plans, plannedSpend{
			coin:    e.coin,
			reveal:  s.cache.Standard(e.owner),
			carries: true,
			encode:  standardEncoder(conds[i]),
		})
	}

	// native settlement payouts
	var usedSettles []settlementEntry
	if len(xchGroups) > 0 {
		pool := s.settlement[ledger.Hash256{}]
		var settleSum uint64
		for _, e := range pool {
			if settleSum >= xchGroupsTotal {
				break
			}
			usedSettles = append(usedSettles, e)
			settleSum += e.coin.Amount
		}
		if settleSum < xchGroupsTotal {
			return nil, nil, &InsufficientFundsError{Asset: assets.Xch(), Required: xchGroupsTotal, Available: settleSum}
		}
		for i, e := range usedSettles {
			sol := puzzle.SettlementSolution{}
			if i == 0 {
				sol.Groups = xchGroups
			}
			*plans = append(*plans, plannedSpend{
				coin:   e.coin,
				reveal: s.cache.Settlement(s.opts.SettlementVersion),
				encode: settlementEncoder(sol),
			})
		}
	}

	return selected, usedSettles, nil
}
