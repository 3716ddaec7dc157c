// Package assets defines asset identities, declarative actions, and the
// delta ledger that resolves a batch of actions into per-asset input/output
// requirements.
package assets

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
)

// An Id names an asset. Xch is the native value; Existing assets are
// identified by their genesis-derived hash; New(i) names an asset whose
// identity is only known once the asset-creating action at index i executes.
// Ids are comparable and usable as map keys.
type Id struct {
	kind  enum.AssetKind
	hash  ledger.Hash256
	index uint32
}

func Xch() Id {
	return Id{kind: enum.AssetKindXch}
}

func Existing(assetID ledger.Hash256) Id {
	return Id{kind: enum.AssetKindExisting, hash: assetID}
}

func New(actionIndex uint32) Id {
	return Id{kind: enum.AssetKindNew, index: actionIndex}
}

func (id Id) Kind() enum.AssetKind {
	return id.kind
}

func (id Id) Hash() ledger.Hash256 {
	return id.hash
}

func (id Id) Index() uint32 {
	return id.index
}

func (id Id) IsXch() bool {
	return id.kind == enum.AssetKindXch
}

func (id Id) String() string {
	switch id.kind {
	case enum.AssetKindXch:
		return "xch"
	case enum.AssetKindExisting:
		return id.hash.String()
	default:
		return fmt.Sprintf("new(%d)", id.index)
	}
}
