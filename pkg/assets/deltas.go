package assets

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fystack/spendkit/pkg/common/enum"
)

// Delta is one asset's resolved flow: how much must be drawn from that
// asset's coin pool and how much the batch pays out.
type Delta struct {
	RequiredInput  uint64
	ProducedOutput uint64
}

// UnresolvedAssetReferenceError reports a New(i) reference whose creating
// action does not precede the referencing action, or does not create an
// asset at all.
type UnresolvedAssetReferenceError struct {
	ActionIndex uint32
	Reference   uint32
}

func (e *UnresolvedAssetReferenceError) Error() string {
	return fmt.Sprintf("assets: action %d references new(%d), which no earlier action creates",
		e.ActionIndex, e.Reference)
}

// Deltas is the resolved form of an action batch. Per-asset flows are keyed
// by canonical id: New(i) references collapse to the concrete asset identity
// where one is derivable at resolution time (CAT issuance); singleton
// launches stay under New(i) until the orchestrator pins a launcher coin.
type Deltas struct {
	byAsset  map[Id]Delta
	bindings map[uint32]Id
	issuance map[Id]uint64
	fee      uint64
}

// Resolve walks the batch in order and accumulates per-asset deltas. It
// fails on the first unresolved reference and leaves no partial state
// behind.
func Resolve(actions []Action) (*Deltas, error) {
	r := &Deltas{
		byAsset:  make(map[Id]Delta),
		bindings: make(map[uint32]Id),
		issuance: make(map[Id]uint64),
	}
	for i, act := range actions {
		if err := r.apply(uint32(i), act); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Deltas) apply(i uint32, act Action) error {
	switch a := act.(type) {
	case Send:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		r.add(asset, a.Amount, a.Amount)
	case Burn:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		r.add(asset, a.Amount, a.Amount)
	case Fee:
		r.add(Xch(), a.Amount, 0)
		r.fee += a.Amount
	case IssueCat:
		if a.Amount == 0 {
			return fmt.Errorf("assets: issuance amount must be positive")
		}
		assetID, err := a.Tail.AssetID()
		if err != nil {
			return err
		}
		asset := Existing(assetID)
		r.bindings[i] = asset
		r.issuance[asset] += a.Amount
		r.touch(asset)
		// issuance is funded from the native pool
		r.add(Xch(), a.Amount, 0)
	case MintNft:
		if a.Amount%2 == 0 {
			return fmt.Errorf("assets: singleton amount must be odd, got %d", a.Amount)
		}
		r.bindings[i] = New(i)
		r.issuance[New(i)] += a.Amount
		r.touch(New(i))
		r.add(Xch(), a.Amount, 0)
	case CreateDid:
		if a.Amount%2 == 0 {
			return fmt.Errorf("assets: singleton amount must be odd, got %d", a.Amount)
		}
		r.bindings[i] = New(i)
		r.issuance[New(i)] += a.Amount
		r.touch(New(i))
		r.add(Xch(), a.Amount, 0)
	case UpdateNft:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		r.touch(asset)
	case UpdateDid:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		r.touch(asset)
	case Settle:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		var total uint64
		for _, g := range a.Payments {
			total += g.Total()
		}
		r.add(asset, total, total)
	case MeltSingleton:
		asset, err := r.canonical(i, a.Asset)
		if err != nil {
			return err
		}
		r.touch(asset)
	default:
		return fmt.Errorf("assets: unknown action %T", act)
	}
	return nil
}

// canonical rewrites New(j) through the bindings established by earlier
// actions. A dangling reference is an authoring error, reported eagerly.
func (r *Deltas) canonical(i uint32, id Id) (Id, error) {
	if id.Kind() != enum.AssetKindNew {
		return id, nil
	}
	bound, ok := r.bindings[id.Index()]
	if !ok {
		return Id{}, &UnresolvedAssetReferenceError{ActionIndex: i, Reference: id.Index()}
	}
	return bound, nil
}

func (r *Deltas) add(asset Id, required, produced uint64) {
	d := r.byAsset[asset]
	d.RequiredInput += required
	d.ProducedOutput += produced
	r.byAsset[asset] = d
}

func (r *Deltas) touch(asset Id) {
	if _, ok := r.byAsset[asset]; !ok {
		r.byAsset[asset] = Delta{}
	}
}

// Get returns the resolved flow for one asset.
func (r *Deltas) Get(asset Id) Delta {
	return r.byAsset[asset]
}

// Issued returns the in-flight supply the batch creates for asset. It
// counts toward the asset's spendable pool during funds checking.
func (r *Deltas) Issued(asset Id) uint64 {
	return r.issuance[asset]
}

// Fee is the total native value reserved for the block producer.
func (r *Deltas) Fee() uint64 {
	return r.fee
}

// Canonical rewrites a New(i) reference through its binding. References
// Resolve accepted always have one; anything else passes through unchanged.
func (r *Deltas) Canonical(id Id) Id {
	if id.Kind() != enum.AssetKindNew {
		return id
	}
	if bound, ok := r.bindings[id.Index()]; ok {
		return bound
	}
	return id
}

// Binding resolves the asset created by action index i, if any.
func (r *Deltas) Binding(i uint32) (Id, bool) {
	id, ok := r.bindings[i]
	return id, ok
}

// Assets lists every touched asset in a deterministic order: native first,
// then existing assets by identity, then pending singletons by index.
func (r *Deltas) Assets() []Id {
	out := make([]Id, 0, len(r.byAsset))
	for id := range r.byAsset {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool {
		ka, kb := rankKind(out[a].Kind()), rankKind(out[b].Kind())
		if ka != kb {
			return ka < kb
		}
		if out[a].Kind() == enum.AssetKindExisting {
			ha, hb := out[a].Hash(), out[b].Hash()
			return bytes.Compare(ha[:], hb[:]) < 0
		}
		return out[a].Index() < out[b].Index()
	})
	return out
}

func rankKind(k enum.AssetKind) int {
	switch k {
	case enum.AssetKindXch:
		return 0
	case enum.AssetKindExisting:
		return 1
	default:
		return 2
	}
}
