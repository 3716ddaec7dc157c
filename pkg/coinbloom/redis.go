package coinbloom

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/fystack/spendkit/pkg/infra"
	"github.com/fystack/spendkit/pkg/model"
	"github.com/fystack/spendkit/pkg/repository"
	"github.com/samber/lo"
)

type redisBloomFilter struct {
	mu             sync.RWMutex
	redisClient    infra.RedisClient
	coinRecordRepo repository.Repository[model.CoinRecord]
	batchSize      int
	keyPrefix      string
	ctx            context.Context
	errorRate      float64
	capacity       int
}

type RedisBloomConfig struct {
	RedisClient    infra.RedisClient
	CoinRecordRepo repository.Repository[model.CoinRecord]
	BatchSize      int
	KeyPrefix      string
	ErrorRate      float64
	Capacity       int
}

func NewRedisBloomFilter(cfg RedisBloomConfig) CoinBloomFilter {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "coin_bloom"
	}
	errorRate := cfg.ErrorRate
	if errorRate <= 0 {
		errorRate = 0.01
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 10000
	}

	return &redisBloomFilter{
		redisClient:    cfg.RedisClient,
		coinRecordRepo: cfg.CoinRecordRepo,
		batchSize:      cfg.BatchSize,
		keyPrefix:      keyPrefix,
		ctx:            context.Background(),
		errorRate:      errorRate,
		capacity:       capacity,
	}
}

func (rbf *redisBloomFilter) getKey(kind enum.AssetKind) string {
	return fmt.Sprintf("%s:%s", rbf.keyPrefix, kind)
}

func (rbf *redisBloomFilter) Initialize(ctx context.Context) error {
	return rbf.InitializeWithKinds(ctx, DefaultAssetKinds())
}

func (rbf *redisBloomFilter) InitializeWithKinds(ctx context.Context, kinds []enum.AssetKind) error {
	rbf.mu.Lock()
	defer rbf.mu.Unlock()

	for _, kind := range kinds {
		key := rbf.getKey(kind)
		client := rbf.redisClient.GetClient()

		// Drop any stale filter before reserving a fresh one.
		exists, err := client.Do(ctx, "EXISTS", key).Int()
		if err != nil {
			return fmt.Errorf("failed to check existence of key %s: %w", key, err)
		}
		if exists == 1 {
			_ = rbf.redisClient.Del(key)
		}

		_, err = client.Do(ctx, "BF.RESERVE", key, rbf.errorRate, rbf.capacity).Result()
		if err != nil {
			return fmt.Errorf("failed to create Bloom filter for %s: %w", kind, err)
		}

		if rbf.coinRecordRepo == nil {
			return errors.New("CoinRecordRepo was not provided in config")
		}

		offset := 0
		limit := rbf.batchSize
		total := 0

		for {
			records, err := rbf.coinRecordRepo.Find(ctx, repository.FindOptions{
				Where:  repository.WhereType{"asset_kind": kind},
				Select: []string{"coin_id"},
				Limit:  uint(limit),
				Offset: uint(offset),
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				break
			}

			coinIDs := lo.Map(records, func(r *model.CoinRecord, _ int) string {
				return r.CoinID
			})

			logger.Info("Processing coin ids", "assetKind", kind, "count", len(coinIDs))

			if err := rbf.addBatchToBloom(ctx, key, coinIDs); err != nil {
				return err
			}

			offset += limit
			total += len(coinIDs)
		}

		logger.Info("Redis Bloom filter initialized", "assetKind", kind, "total", total)
	}

	return nil
}

func (rbf *redisBloomFilter) addBatchToBloom(
	ctx context.Context,
	key string,
	coinIDs []string,
) error {
	client := rbf.redisClient.GetClient()
	args := make([]any, 0, len(coinIDs)+2)
	args = append(args, "BF.MADD", key)
	for _, id := range coinIDs {
		args = append(args, id)
	}
	_, err := client.Do(ctx, args...).Result()
	return err
}

func (rbf *redisBloomFilter) Add(coinID string, kind enum.AssetKind) {
	rbf.mu.Lock()
	defer rbf.mu.Unlock()

	key := rbf.getKey(kind)
	client := rbf.redisClient.GetClient()

	_, err := client.Do(rbf.ctx, "BF.ADD", key, coinID).Result()
	if err != nil {
		logger.Error("Failed to add coin id to Redis bloom filter", "error", err)
	}
}

func (rbf *redisBloomFilter) AddBatch(coinIDs []string, kind enum.AssetKind) {
	if len(coinIDs) == 0 {
		return
	}
	rbf.mu.Lock()
	defer rbf.mu.Unlock()

	key := rbf.getKey(kind)
	if err := rbf.addBatchToBloom(rbf.ctx, key, coinIDs); err != nil {
		logger.Error("Failed to add batch to Redis bloom filter", "error", err)
	}
}

func (rbf *redisBloomFilter) Contains(coinID string, kind enum.AssetKind) bool {
	rbf.mu.RLock()
	defer rbf.mu.RUnlock()

	key := rbf.getKey(kind)
	client := rbf.redisClient.GetClient()

	result, err := client.Do(rbf.ctx, "BF.EXISTS", key, coinID).Bool()
	if err != nil {
		logger.Error("Error checking Redis bloom filter", "error", err)
		return false
	}
	return result
}

func (rbf *redisBloomFilter) Clear(kind enum.AssetKind) {
	rbf.mu.Lock()
	defer rbf.mu.Unlock()

	key := rbf.getKey(kind)
	_ = rbf.redisClient.Del(key)
}

func (rbf *redisBloomFilter) Stats(kind enum.AssetKind) map[string]any {
	rbf.mu.RLock()
	defer rbf.mu.RUnlock()

	logger.Info("Redis Bloom filter stats not supported yet")
	return nil
}
