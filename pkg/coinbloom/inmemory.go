package coinbloom

import (
	"context"
	"math"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/fystack/spendkit/pkg/model"
	"github.com/fystack/spendkit/pkg/repository"
	"github.com/samber/lo"
)

// Config holds dependencies and configuration for the Bloom filter container.
type Config struct {
	CoinRecordRepo    repository.Repository[model.CoinRecord] // Repository for loading coin ids from DB
	ExpectedItems     uint                                    // Estimated number of coins per asset kind
	FalsePositiveRate float64                                 // Desired false positive rate
	BatchSize         int                                     // Batch size for paginated DB fetches
}

type kindBloomFilter struct {
	mu        sync.RWMutex
	filter    *bloom.BloomFilter
	coinCount uint
}

type coinBloomFilter struct {
	mu      sync.RWMutex
	filters map[enum.AssetKind]*kindBloomFilter
	config  Config
}

// NewCoinBloomFilter creates a new in-memory bloom filter container using the provided config.
func NewCoinBloomFilter(cfg Config) CoinBloomFilter {
	return &coinBloomFilter{
		filters: make(map[enum.AssetKind]*kindBloomFilter),
		config:  cfg,
	}
}

func (cbf *coinBloomFilter) Initialize(ctx context.Context) error {
	return cbf.InitializeWithKinds(ctx, DefaultAssetKinds())
}

func (cbf *coinBloomFilter) InitializeWithKinds(ctx context.Context, kinds []enum.AssetKind) error {
	for _, kind := range kinds {
		cbf.Clear(kind)

		offset := 0
		limit := cbf.config.BatchSize
		total := 0

		for {
			records, err := cbf.config.CoinRecordRepo.Find(ctx, repository.FindOptions{
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
			cbf.AddBatch(coinIDs, kind)

			offset += limit
			total += len(coinIDs)
		}

		logger.Info("In-memory Bloom filter initialized", "assetKind", kind, "total", total)
	}
	return nil
}

func (cbf *coinBloomFilter) getOrCreateFilter(kind enum.AssetKind) *kindBloomFilter {
	cbf.mu.Lock()
	defer cbf.mu.Unlock()

	if bf, ok := cbf.filters[kind]; ok {
		return bf
	}

	m, k := bloom.EstimateParameters(cbf.config.ExpectedItems, cbf.config.FalsePositiveRate)
	filter := bloom.New(m, k)

	bf := &kindBloomFilter{
		filter:    filter,
		coinCount: 0,
	}
	cbf.filters[kind] = bf
	return bf
}

func (cbf *coinBloomFilter) Add(coinID string, kind enum.AssetKind) {
	bf := cbf.getOrCreateFilter(kind)
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.Add([]byte(coinID))
	bf.coinCount++
}

func (cbf *coinBloomFilter) AddBatch(coinIDs []string, kind enum.AssetKind) {
	bf := cbf.getOrCreateFilter(kind)
	bf.mu.Lock()
	defer bf.mu.Unlock()
	for _, coinID := range coinIDs {
		bf.filter.Add([]byte(coinID))
		bf.coinCount++
	}
}

func (cbf *coinBloomFilter) Contains(coinID string, kind enum.AssetKind) bool {
	bf := cbf.getOrCreateFilter(kind)
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Test([]byte(coinID))
}

func (cbf *coinBloomFilter) Clear(kind enum.AssetKind) {
	bf := cbf.getOrCreateFilter(kind)
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.ClearAll()
	bf.coinCount = 0
}

func (cbf *coinBloomFilter) Stats(kind enum.AssetKind) map[string]any {
	bf := cbf.getOrCreateFilter(kind)
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	fillRatio := bf.approximatedFillRatio()
	return map[string]any{
		"assetKind":                  kind,
		"coinCount":                  bf.coinCount,
		"bitsCount":                  bf.filter.Cap(),
		"hashFunctions":              bf.filter.K(),
		"approximateFillRatio":       fillRatio,
		"fillPercentage":             fillRatio * 100,
		"estimatedFalsePositiveRate": bf.estimateFalsePositiveRate(),
	}
}

func (bf *kindBloomFilter) approximatedFillRatio() float64 {
	bitset := bf.filter.BitSet()
	bitsSet := bitset.Count()
	totalBits := bitset.Len()
	if totalBits == 0 {
		return 0
	}
	return float64(bitsSet) / float64(totalBits)
}

func (bf *kindBloomFilter) estimateFalsePositiveRate() float64 {
	n := float64(bf.coinCount)
	m := float64(bf.filter.Cap())
	k := float64(bf.filter.K())
	if m == 0 || k == 0 {
		return 0.0
	}
	return math.Pow(1-math.Exp(-k*n/m), k)
}
