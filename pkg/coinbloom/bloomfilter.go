package coinbloom

import (
	"context"

	"github.com/fystack/spendkit/pkg/common/config"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/infra"
	"github.com/fystack/spendkit/pkg/model"
	"github.com/fystack/spendkit/pkg/repository"
	"gorm.io/gorm"
)

// CoinBloomFilter answers "have we seen this coin id before" per asset kind,
// without holding every tracked coin in memory. False positives are resolved
// against the coin store; false negatives never happen.
type CoinBloomFilter interface {
	// Initialize fully resets the bloom filter from database state.
	Initialize(ctx context.Context) error

	// InitializeWithKinds resets bloom filters for selected asset kinds only.
	InitializeWithKinds(ctx context.Context, kinds []enum.AssetKind) error

	// Add inserts a single coin id into the bloom filter for a given asset kind.
	Add(coinID string, kind enum.AssetKind)

	// AddBatch inserts multiple coin ids into the bloom filter for a given asset kind.
	AddBatch(coinIDs []string, kind enum.AssetKind)

	// Contains checks if a given coin id exists in the bloom filter for the specified kind.
	Contains(coinID string, kind enum.AssetKind) bool

	// Clear deletes the bloom filter for a given asset kind.
	Clear(kind enum.AssetKind)

	// Stats returns metadata and filter info for the given asset kind.
	Stats(kind enum.AssetKind) map[string]any
}

func DefaultAssetKinds() []enum.AssetKind {
	return []enum.AssetKind{
		enum.AssetKindXch,
		enum.AssetKindExisting,
	}
}

func NewBloomFilter(
	cfg config.BloomConfig,
	db *gorm.DB,
	redisClient infra.RedisClient,
) CoinBloomFilter {
	coinRecordRepo := repository.NewRepository[model.CoinRecord](db)
	switch cfg.Backend {
	case enum.BFBackendRedis:
		return NewRedisBloomFilter(RedisBloomConfig{
			RedisClient:    redisClient,
			CoinRecordRepo: coinRecordRepo,
			BatchSize:      cfg.BatchSize,
			KeyPrefix:      cfg.Redis.KeyPrefix,
			ErrorRate:      cfg.Redis.ErrorRate,
			Capacity:       cfg.Redis.Capacity,
		})
	default:
		return NewCoinBloomFilter(Config{
			CoinRecordRepo:    coinRecordRepo,
			ExpectedItems:     cfg.InMemory.ExpectedItems,
			FalsePositiveRate: cfg.InMemory.FalsePositiveRate,
			BatchSize:         cfg.BatchSize,
		})
	}
}
