// Package spend orchestrates a batch of declarative actions into a fully
// wired set of coin spends: it selects coins from per-asset pools, routes
// change, constructs conservation rings for wrapped assets, and binds the
// batch together so no subset of it validates alone.
package spend

import (
	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/puzzle"
)

// Options configures a Session.
type Options struct {
	// ChangePuzzleHash receives leftover value. Zero means change goes to
	// the session key's own standard puzzle.
	ChangePuzzleHash ledger.Hash256

	// SelfKey owns intermediate coins the session mints for itself, such as
	// issuance eve coins.
	SelfKey bls.PublicKey

	// Relation binds the finished batch's spends together.
	Relation enum.RelationMode

	// SettlementVersion selects the public settlement program revision.
	SettlementVersion uint8

	// Cache interns program templates across sessions. Optional.
	Cache *puzzle.Cache
}

type standardEntry struct {
	coin  ledger.Coin
	owner bls.PublicKey
}

type catEntry struct {
	coin    ledger.Coin
	owner   bls.PublicKey
	lineage ledger.LineageProof
}

type settlementEntry struct {
	coin       ledger.Coin
	hasLineage bool
	lineage    ledger.LineageProof
}

type singletonEntry struct {
	coin      ledger.Coin
	owner     bls.PublicKey
	innerHash ledger.Hash256
	lineage   ledger.LineageProof
}

// A Session accumulates spendable coins and staged actions, then compiles
// them into one spend bundle. Sessions are not safe for concurrent use.
type Session struct {
	opts  Options
	cache *puzzle.Cache

	xch        []standardEntry
	cats       map[ledger.Hash256][]catEntry
	catOrder   []ledger.Hash256
	settlement map[ledger.Hash256][]settlementEntry
	singletons map[ledger.Hash256]*singletonEntry
	seen       map[ledger.Hash256]struct{}

	actions []assets.Action
	deltas  *assets.Deltas
	extra   []ledger.Condition
}

func NewSession(opts Options) *Session {
	if opts.Cache == nil {
		opts.Cache = puzzle.NewCache()
	}
	if opts.SettlementVersion == 0 {
		opts.SettlementVersion = 1
	}
	return &Session{
		opts:       opts,
		cache:      opts.Cache,
		cats:       make(map[ledger.Hash256][]catEntry),
		settlement: make(map[ledger.Hash256][]settlementEntry),
		singletons: make(map[ledger.Hash256]*singletonEntry),
		seen:       make(map[ledger.Hash256]struct{}),
	}
}

func (s *Session) changePuzzleHash() ledger.Hash256 {
	if !s.opts.ChangePuzzleHash.IsZero() {
		return s.opts.ChangePuzzleHash
	}
	return puzzle.TreeHash(s.cache.Standard(s.opts.SelfKey))
}

func (s *Session) admit(coin ledger.Coin) error {
	id := coin.ID()
	if _, ok := s.seen[id]; ok {
		return &DuplicateCoinError{CoinID: id}
	}
	s.seen[id] = struct{}{}
	return nil
}

// AddXch pools a native coin locked by owner's standard puzzle.
func (s *Session) AddXch(coin ledger.Coin, owner bls.PublicKey) error {
	if coin.PuzzleHash != puzzle.TreeHash(s.cache.Standard(owner)) {
		return ErrPuzzleMismatch
	}
	if err := s.admit(coin); err != nil {
		return err
	}
	s.xch = append(s.xch, standardEntry{coin: coin, owner: owner})
	return nil
}

// AddCat pools a wrapped coin of assetID whose inner puzzle is owner's
// standard puzzle. The lineage proof must point at the coin's parent.
func (s *Session) AddCat(assetID ledger.Hash256, coin ledger.Coin, owner bls.PublicKey, lineage ledger.LineageProof) error {
	inner := puzzle.TreeHash(s.cache.Standard(owner))
	if coin.PuzzleHash != puzzle.CatPuzzleHash(assetID, inner) {
		return ErrPuzzleMismatch
	}
	if err := s.admit(coin); err != nil {
		return err
	}
	if _, ok := s.cats[assetID]; !ok {
		s.catOrder = append(s.catOrder, assetID)
	}
	s.cats[assetID] = append(s.cats[assetID], catEntry{coin: coin, owner: owner, lineage: lineage})
	return nil
}

// AddSettlement pools a coin locked at the public settlement puzzle for
// asset. Native settlement coins carry no lineage; wrapped ones must.
func (s *Session) AddSettlement(asset assets.Id, coin ledger.Coin, lineage *ledger.LineageProof) error {
	var key ledger.Hash256
	expect := puzzle.SettlementPuzzleHash(s.opts.SettlementVersion)
	if !asset.IsXch() {
		key = asset.Hash()
		expect = puzzle.CatPuzzleHash(key, expect)
		if lineage == nil {
			return ErrPuzzleMismatch
		}
	}
	if coin.PuzzleHash != expect {
		return ErrPuzzleMismatch
	}
	if err := s.admit(coin); err != nil {
		return err
	}
	entry := settlementEntry{coin: coin}
	if lineage != nil {
		entry.hasLineage = true
		entry.lineage = *lineage
	}
	s.settlement[key] = append(s.settlement[key], entry)
	return nil
}

// AddSingleton pools a unique coin identified by its launcher id, with
// owner's standard puzzle inside the uniqueness wrapper.
func (s *Session) AddSingleton(launcherID ledger.Hash256, coin ledger.Coin, owner bls.PublicKey, lineage ledger.LineageProof) error {
	inner := puzzle.TreeHash(s.cache.Standard(owner))
	if coin.PuzzleHash != puzzle.SingletonPuzzleHash(launcherID, inner) {
		return ErrPuzzleMismatch
	}
	if err := s.admit(coin); err != nil {
		return err
	}
	s.singletons[launcherID] = &singletonEntry{coin: coin, owner: owner, innerHash: inner, lineage: lineage}
	return nil
}

// PooledCoinIDs lists every coin currently pooled, in add order per pool.
// Offer makers hash these into the offer nonce.
func (s *Session) PooledCoinIDs() []ledger.Hash256 {
	var ids []ledger.Hash256
	for _, e := range s.xch {
		ids = append(ids, e.coin.ID())
	}
	for _, assetID := range s.catOrder {
		for _, e := range s.cats[assetID] {
			ids = append(ids, e.coin.ID())
		}
	}
	for _, entry := range s.singletons {
		ids = append(ids, entry.coin.ID())
	}
	return ids
}

// SettlementVersion is the protocol revision this session locks and spends
// settlement coins under.
func (s *Session) SettlementVersion() uint8 {
	return s.opts.SettlementVersion
}

// RequireConditions attaches extra conditions to the batch's primary spend.
// Offer takers use this to assert the maker's requested announcements.
func (s *Session) RequireConditions(conds ...ledger.Condition) {
	s.extra = append(s.extra, conds...)
}

// Apply stages more actions. The whole staged batch re-resolves atomically:
// on error the session keeps its previous state untouched.
func (s *Session) Apply(actions ...assets.Action) error {
	staged := make([]assets.Action, 0, len(s.actions)+len(actions))
	staged = append(staged, s.actions...)
	staged = append(staged, actions...)
	deltas, err := assets.Resolve(staged)
	if err != nil {
		return err
	}
	s.actions = staged
	s.deltas = deltas
	return nil
}

// Drain discards the staged batch and any required conditions, keeping the
// coin pools intact.
func (s *Session) Drain() {
	s.actions = nil
	s.deltas = nil
	s.extra = nil
}
