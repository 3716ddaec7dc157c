package model

import (
	"time"

	"github.com/fystack/spendkit/pkg/common/enum"
)

// CoinRecord is the durable row behind the engine's coin tracking: every
// coin the wallet has ever observed for one of its puzzle hashes, with its
// asset identity and spend status.
type CoinRecord struct {
	BaseModel
	CoinID       string         `gorm:"not null;type:varchar(64);uniqueIndex:idx_unique_coin_id" json:"coin_id"`
	ParentCoinID string         `gorm:"not null;type:varchar(64)"                                json:"parent_coin_id"`
	PuzzleHash   string         `gorm:"not null;type:varchar(64);index:idx_puzzle_hash"          json:"puzzle_hash"`
	AssetKind    enum.AssetKind `gorm:"not null;type:varchar(16)"                                json:"asset_kind"`
	AssetID      string         `gorm:"type:varchar(64);index:idx_asset_id"                      json:"asset_id"`
	Amount       uint64         `gorm:"not null"                                                 json:"amount"`
	SpentAt      *time.Time     `json:"spent_at"`
}
