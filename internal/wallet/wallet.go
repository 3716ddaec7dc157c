// Package wallet ties the spend engine to its operational surroundings: key
// material from a mnemonic, coin tracking in the KV store, a bloom filter
// over known coin ids, and bundle hand-off over NATS.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/coinbloom"
	"github.com/fystack/spendkit/pkg/coinstore"
	"github.com/fystack/spendkit/pkg/common/config"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/fystack/spendkit/pkg/common/types"
	"github.com/fystack/spendkit/pkg/infra"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/model"
	"github.com/fystack/spendkit/pkg/offer"
	"github.com/fystack/spendkit/pkg/puzzle"
	"github.com/fystack/spendkit/pkg/repository"
	"github.com/fystack/spendkit/pkg/sign"
	"github.com/fystack/spendkit/pkg/spend"
	"github.com/fystack/spendkit/pkg/submitter"
	"github.com/nats-io/nats.go"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrNoSeed      = errors.New("wallet: seed environment variable is empty")
	ErrInvalidSeed = errors.New("wallet: seed is not a valid mnemonic")
)

// Dependencies carries the infrastructure a wallet runs against. KV is the
// only hard requirement; the rest degrade gracefully when absent.
type Dependencies struct {
	KV    infra.KVStore
	DB    *gorm.DB
	Redis infra.RedisClient
	NATS  *nats.Conn
}

type Wallet struct {
	cfg     *config.Config
	key     *bls.SecretKey
	keyring *sign.Keyring
	session *spend.Session
	eval    puzzle.Evaluator
	dc      sign.DomainConstants

	store *coinstore.Store
	bloom coinbloom.CoinBloomFilter
	sub   *submitter.Submitter
	coins repository.Repository[model.CoinRecord]
}

func New(cfg *config.Config, deps Dependencies) (*Wallet, error) {
	mnemonic := os.Getenv(cfg.Wallet.KeySeedEnv)
	if mnemonic == "" {
		return nil, ErrNoSeed
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidSeed
	}
	key, err := bls.KeyGen(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return nil, err
	}

	extra, err := cfg.Network.AggSigMeExtraHash()
	if err != nil {
		return nil, err
	}

	var change ledger.Hash256
	if cfg.Wallet.ChangeAddress != "" {
		change, err = ledger.DecodeAddress(cfg.Network.AddressHRP, cfg.Wallet.ChangeAddress)
		if err != nil {
			return nil, fmt.Errorf("wallet: change address: %w", err)
		}
	}

	w := &Wallet{
		cfg:     cfg,
		key:     key,
		keyring: sign.NewKeyring(key),
		eval:    puzzle.NativeEvaluator{},
		dc:      sign.DomainConstants{AggSigMeExtra: extra},
		store:   coinstore.New(deps.KV),
	}
	w.session = spend.NewSession(spend.Options{
		ChangePuzzleHash:  change,
		SelfKey:           key.PublicKey(),
		Relation:          cfg.Wallet.Relation,
		SettlementVersion: cfg.Network.SettlementVersion,
	})

	if deps.DB != nil {
		w.coins = repository.NewRepository[model.CoinRecord](deps.DB)
		w.bloom = coinbloom.NewBloomFilter(cfg.BloomFilter, deps.DB, deps.Redis)
	}
	if deps.NATS != nil {
		w.sub = submitter.New(deps.NATS, cfg.Submitter, cfg.NATS.SubjectPrefix)
	}
	return w, nil
}

func (w *Wallet) PublicKey() bls.PublicKey {
	return w.key.PublicKey()
}

// PuzzleHash is the wallet's own standard puzzle hash, where change and
// claimed offer payouts land.
func (w *Wallet) PuzzleHash() ledger.Hash256 {
	return puzzle.TreeHash(puzzle.StandardPuzzle(w.key.PublicKey()))
}

func (w *Wallet) Address() (string, error) {
	return ledger.EncodeAddress(w.cfg.Network.AddressHRP, w.PuzzleHash())
}

// DecodeAddress parses an address under the wallet's network prefix.
func (w *Wallet) DecodeAddress(addr string) (ledger.Hash256, error) {
	return ledger.DecodeAddress(w.cfg.Network.AddressHRP, addr)
}

func (w *Wallet) protocol() offer.Protocol {
	return offer.Protocol{
		Version:   w.session.SettlementVersion(),
		Evaluator: w.eval,
		Constants: w.dc,
	}
}

// Track records one observed coin. The bloom filter short-circuits coins the
// wallet already knows; positives fall through to the coin store, which is
// exact.
func (w *Wallet) Track(ctx context.Context, rec coinstore.Record) error {
	id := rec.Coin.ID()
	if w.bloom != nil && w.bloom.Contains(id.String(), rec.AssetKind) {
		if _, found, err := w.store.Get(id); err != nil {
			return err
		} else if found {
			return nil
		}
	}
	if err := w.store.Put(rec); err != nil {
		return err
	}
	if w.bloom != nil {
		w.bloom.Add(id.String(), rec.AssetKind)
	}
	if w.coins != nil {
		row := &model.CoinRecord{
			CoinID:       id.String(),
			ParentCoinID: rec.Coin.ParentCoinID.String(),
			PuzzleHash:   rec.Coin.PuzzleHash.String(),
			AssetKind:    rec.AssetKind,
			AssetID:      rec.AssetID.String(),
			Amount:       rec.Coin.Amount,
		}
		if err := w.coins.Create(ctx, row); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}
	return nil
}

// TrackBatch records many coins, collecting every failure instead of
// stopping at the first.
func (w *Wallet) TrackBatch(ctx context.Context, recs []coinstore.Record) error {
	var merr types.MultiError
	for _, rec := range recs {
		if err := w.Track(ctx, rec); err != nil {
			merr.Addf("coin %s: %w", rec.Coin.ID(), err)
		}
	}
	return merr.ErrOrNil()
}

// LoadPool moves every unspent tracked coin into the session's pools.
func (w *Wallet) LoadPool() error {
	recs, err := w.store.Unspent()
	if err != nil {
		return err
	}
	owner := w.key.PublicKey()
	loaded := 0
	for _, rec := range recs {
		switch rec.AssetKind {
		case enum.AssetKindXch:
			err = w.session.AddXch(rec.Coin, owner)
		case enum.AssetKindExisting:
			if rec.Lineage == nil {
				return fmt.Errorf("wallet: coin %s has no lineage proof", rec.Coin.ID())
			}
			err = w.session.AddCat(rec.AssetID, rec.Coin, owner, *rec.Lineage)
		default:
			continue
		}
		var dup *spend.DuplicateCoinError
		if errors.As(err, &dup) {
			continue
		}
		if err != nil {
			return err
		}
		loaded++
	}
	logger.Debug("Pool loaded", "coins", loaded)
	return nil
}

// Sync warms the bloom filter and the session pool concurrently.
func (w *Wallet) Sync(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if w.bloom != nil {
		g.Go(func() error { return w.bloom.Initialize(ctx) })
	}
	g.Go(w.LoadPool)
	return g.Wait()
}

func (w *Wallet) finishSigned() (ledger.SpendBundle, *spend.Result, error) {
	res, err := w.session.Finish()
	if err != nil {
		return ledger.SpendBundle{}, nil, err
	}
	signed, err := sign.SignBundle(res.Bundle, w.eval, w.dc, w.keyring)
	if err != nil {
		return ledger.SpendBundle{}, nil, err
	}
	return signed, res, nil
}

// Send pays amount of the native asset to a bech32 address, burning fee.
func (w *Wallet) Send(to string, amount, fee uint64) (ledger.SpendBundle, error) {
	ph, err := ledger.DecodeAddress(w.cfg.Network.AddressHRP, to)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	actions := []assets.Action{assets.Send{Asset: assets.Xch(), To: ph, Amount: amount}}
	if fee > 0 {
		actions = append(actions, assets.Fee{Amount: fee})
	}
	if err := w.session.Apply(actions...); err != nil {
		return ledger.SpendBundle{}, err
	}
	bundle, _, err := w.finishSigned()
	return bundle, err
}

// SendCat pays amount of a wrapped asset to a bech32 address.
func (w *Wallet) SendCat(assetID ledger.Hash256, to string, amount, fee uint64) (ledger.SpendBundle, error) {
	ph, err := ledger.DecodeAddress(w.cfg.Network.AddressHRP, to)
	if err != nil {
		return ledger.SpendBundle{}, err
	}
	actions := []assets.Action{assets.Send{Asset: assets.Existing(assetID), To: ph, Amount: amount}}
	if fee > 0 {
		actions = append(actions, assets.Fee{Amount: fee})
	}
	if err := w.session.Apply(actions...); err != nil {
		return ledger.SpendBundle{}, err
	}
	bundle, _, err := w.finishSigned()
	return bundle, err
}

// IssueCat mints amount of a brand-new fungible asset under the given
// issuance policy. Returns the asset id the new coins live under.
func (w *Wallet) IssueCat(tail assets.TailSpec, amount, fee uint64) (ledger.SpendBundle, ledger.Hash256, error) {
	assetID, err := tail.AssetID()
	if err != nil {
		return ledger.SpendBundle{}, ledger.Hash256{}, err
	}
	actions := []assets.Action{assets.IssueCat{Tail: tail, Amount: amount}}
	if fee > 0 {
		actions = append(actions, assets.Fee{Amount: fee})
	}
	if err := w.session.Apply(actions...); err != nil {
		return ledger.SpendBundle{}, ledger.Hash256{}, err
	}
	bundle, _, err := w.finishSigned()
	if err != nil {
		return ledger.SpendBundle{}, ledger.Hash256{}, err
	}
	return bundle, assetID, nil
}

// MintNft mints a unique coin carrying the given metadata digest. Returns
// the launcher id that names the new singleton forever.
func (w *Wallet) MintNft(mint assets.MintNft, fee uint64) (ledger.SpendBundle, ledger.Hash256, error) {
	actions := []assets.Action{mint}
	if fee > 0 {
		actions = append(actions, assets.Fee{Amount: fee})
	}
	if err := w.session.Apply(actions...); err != nil {
		return ledger.SpendBundle{}, ledger.Hash256{}, err
	}
	bundle, res, err := w.finishSigned()
	if err != nil {
		return ledger.SpendBundle{}, ledger.Hash256{}, err
	}
	return bundle, res.Created[0], nil
}

// MakeOffer locks the offered amounts and returns the signed half-trade.
func (w *Wallet) MakeOffer(offered []offer.Offered, requested []offer.Request, royalty *offer.Royalty) (*offer.Offer, error) {
	return offer.Make(w.protocol(), w.session, offered, requested, royalty, w.keyring)
}

// TakeOffer completes an offer, claiming the offered assets to the wallet's
// own puzzle hash.
func (w *Wallet) TakeOffer(o *offer.Offer) (ledger.SpendBundle, error) {
	return offer.Take(w.protocol(), w.session, o, w.PuzzleHash(), w.keyring)
}

// Submit validates the bundle, hands it to the broadcast layer and marks its
// inputs spent. Spent markers and the publish run concurrently; a failed
// publish leaves the markers in place, which is the safe side.
func (w *Wallet) Submit(ctx context.Context, bundle ledger.SpendBundle) error {
	if err := spend.VerifyBundle(bundle, w.eval); err != nil {
		return err
	}
	if w.sub == nil {
		return errors.New("wallet: no submitter configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.sub.Submit(ctx, bundle) })
	for _, cs := range bundle.CoinSpends {
		id := cs.Coin.ID()
		g.Go(func() error { return w.store.MarkSpent(id) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Bundle submitted", "name", bundle.Name(), "spends", len(bundle.CoinSpends))
	return nil
}
