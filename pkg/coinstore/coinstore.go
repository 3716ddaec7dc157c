// Package coinstore tracks the wallet's spendable coins in a key-value
// store: unspent records under one prefix, spent markers under another, so a
// crash between submit and confirmation never double-funds a batch.
package coinstore

import (
	"errors"
	"fmt"

	"github.com/fystack/spendkit/pkg/common/constant"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/infra"
	"github.com/fystack/spendkit/pkg/kvstore"
	"github.com/fystack/spendkit/pkg/ledger"
)

// Record is one tracked coin with everything a session needs to pool it.
type Record struct {
	Coin      ledger.Coin          `json:"coin"`
	AssetKind enum.AssetKind       `json:"asset_kind"`
	AssetID   ledger.Hash256       `json:"asset_id,omitempty"`
	Lineage   *ledger.LineageProof `json:"lineage,omitempty"`
}

type Store struct {
	kv infra.KVStore
}

func New(kv infra.KVStore) *Store {
	return &Store{kv: kv}
}

func coinKey(id ledger.Hash256) string {
	return constant.KVPrefixCoin + "/" + id.String()
}

func spentKey(id ledger.Hash256) string {
	return constant.KVPrefixSpent + "/" + id.String()
}

// Put records a coin as unspent. Re-putting a spent coin is rejected.
func (s *Store) Put(rec Record) error {
	id := rec.Coin.ID()
	if spent, err := s.IsSpent(id); err != nil {
		return err
	} else if spent {
		return fmt.Errorf("coinstore: coin %s is already spent", id)
	}
	return s.kv.SetAny(coinKey(id), rec)
}

func (s *Store) Get(id ledger.Hash256) (Record, bool, error) {
	var rec Record
	found, err := s.kv.GetAny(coinKey(id), &rec)
	return rec, found, err
}

// Unspent lists every tracked coin not yet marked spent.
func (s *Store) Unspent() ([]Record, error) {
	pairs, err := s.kv.List(constant.KVPrefixCoin)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(pairs))
	for _, pair := range pairs {
		var rec Record
		if err := infra.JSON.Unmarshal(pair.Value, &rec); err != nil {
			return nil, fmt.Errorf("coinstore: corrupt record at %s: %w", pair.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkSpent moves a coin from the unspent prefix to the spent one. Marking
// an unknown coin is not an error: spends of ephemeral coins land here too.
func (s *Store) MarkSpent(id ledger.Hash256) error {
	if err := s.kv.Set(spentKey(id), "1"); err != nil {
		return err
	}
	return s.kv.Delete(coinKey(id))
}

func (s *Store) IsSpent(id ledger.Hash256) (bool, error) {
	_, err := s.kv.Get(spentKey(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Store) Close() error {
	return s.kv.Close()
}
