package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fystack/spendkit/internal/wallet"
	"github.com/fystack/spendkit/pkg/assets"
	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/common/config"
	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/fystack/spendkit/pkg/infra"
	"github.com/fystack/spendkit/pkg/kvstore"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/offer"

	"github.com/alecthomas/kong"
	"github.com/tyler-smith/go-bip39"
)

// --- CLI definitions --- //

type CLI struct {
	Keygen  KeygenCmd  `cmd:"" help:"Generate a mnemonic and print its public key."`
	Address AddressCmd `cmd:"" help:"Print the wallet's receive address."`
	Send    SendCmd    `cmd:"" help:"Send native or wrapped funds."`
	Issue   IssueCmd   `cmd:"" name:"issue-cat" help:"Issue a new fungible asset."`
	Mint    MintCmd    `cmd:"" name:"mint-nft" help:"Mint a unique coin."`
	Offer   OfferCmd   `cmd:"" help:"Make or take settlement offers."`
}

type globals struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type KeygenCmd struct{}

type AddressCmd struct {
	globals
}

type SendCmd struct {
	globals
	To     string `help:"Destination address." required:""`
	Amount uint64 `help:"Amount in base units." required:""`
	Fee    uint64 `help:"Fee in base units."`
	Asset  string `help:"Asset id (hex). Empty sends the native asset."`
	Submit bool   `help:"Hand the bundle to the broadcast layer."`
}

type IssueCmd struct {
	globals
	Amount      uint64 `help:"Supply to issue." required:""`
	Policy      string `help:"Issuance policy: genesis or signature." default:"genesis"`
	GenesisCoin string `help:"Genesis coin id (hex), for the genesis policy."`
	Fee         uint64 `help:"Fee in base units."`
	Submit      bool   `help:"Hand the bundle to the broadcast layer."`
}

type MintCmd struct {
	globals
	Metadata   string `help:"Metadata digest (hex, 32 bytes)." required:""`
	Amount     uint64 `help:"Singleton amount, must be odd." default:"1"`
	RoyaltyBps uint16 `help:"Royalty basis points." name:"royalty-bps"`
	RoyaltyTo  string `help:"Royalty address." name:"royalty-to"`
	Fee        uint64 `help:"Fee in base units."`
	Submit     bool   `help:"Hand the bundle to the broadcast layer."`
}

type OfferCmd struct {
	Make OfferMakeCmd `cmd:"" help:"Lock funds and print the offer text."`
	Take OfferTakeCmd `cmd:"" help:"Complete an offer."`
}

type OfferMakeCmd struct {
	globals
	OfferAsset    string `help:"Offered asset id (hex). Empty offers the native asset."`
	OfferAmount   uint64 `help:"Offered amount." required:""`
	RequestAsset  string `help:"Requested asset id (hex). Empty requests the native asset."`
	RequestAmount uint64 `help:"Requested amount." required:""`
	RoyaltyBps    uint16 `help:"Royalty basis points." name:"royalty-bps"`
	RoyaltyTo     string `help:"Royalty address." name:"royalty-to"`
}

type OfferTakeCmd struct {
	globals
	Offer  string `help:"Offer text, or @path to read it from a file." required:""`
	Submit bool   `help:"Hand the combined bundle to the broadcast layer."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("spendkit"),
		kong.Description("Coin-set transaction construction and settlement."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// --- wiring --- //

func setup(g globals) (*wallet.Wallet, func(), error) {
	level := slog.LevelInfo
	if g.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{Level: level, TimeFormat: time.RFC3339})

	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, nil, fmt.Errorf("open kv store: %w", err)
	}

	deps := wallet.Dependencies{KV: kv}
	cleanup := func() { _ = kv.Close() }

	if cfg.DB.URL != "" {
		deps.DB, err = infra.NewDBConnection(cfg.DB.URL, cfg.Environment)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
	}
	if cfg.Redis.URL != "" {
		deps.Redis, err = infra.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	if cfg.NATS.URL != "" {
		deps.NATS, err = infra.GetNATSConnection(cfg.NATS, cfg.Environment)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
	}

	w, err := wallet.New(cfg, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := w.Sync(context.Background()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("sync wallet: %w", err)
	}
	return w, cleanup, nil
}

func parseAssetID(s string) (ledger.Hash256, error) {
	if s == "" {
		return ledger.Hash256{}, nil
	}
	return ledger.HashFromHex(s)
}

func emit(w *wallet.Wallet, bundle ledger.SpendBundle, submit bool) error {
	if submit {
		return w.Submit(context.Background(), bundle)
	}
	e := ledger.NewEncoder()
	bundle.EncodeTo(e)
	fmt.Println(hex.EncodeToString(e.Bytes()))
	return nil
}

// --- commands --- //

func (c *KeygenCmd) Run() error {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return err
	}
	key, err := bls.KeyGen(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return err
	}
	pk := key.PublicKey()
	fmt.Printf("mnemonic:   %s\n", mnemonic)
	fmt.Printf("public key: %s\n", hex.EncodeToString(pk[:]))
	return nil
}

func (c *AddressCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()
	addr, err := w.Address()
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

func (c *SendCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()

	var bundle ledger.SpendBundle
	if c.Asset == "" {
		bundle, err = w.Send(c.To, c.Amount, c.Fee)
	} else {
		var assetID ledger.Hash256
		assetID, err = parseAssetID(c.Asset)
		if err != nil {
			return err
		}
		bundle, err = w.SendCat(assetID, c.To, c.Amount, c.Fee)
	}
	if err != nil {
		return err
	}
	return emit(w, bundle, c.Submit)
}

func (c *IssueCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()

	var tail assets.TailSpec
	switch c.Policy {
	case "genesis":
		genesis, err := ledger.HashFromHex(c.GenesisCoin)
		if err != nil {
			return fmt.Errorf("genesis coin id: %w", err)
		}
		tail = assets.TailSpec{Kind: enum.TailKindGenesisByCoinID, GenesisCoinID: genesis}
	case "signature":
		tail = assets.TailSpec{Kind: enum.TailKindEverythingWithSignature, PublicKey: w.PublicKey()}
	default:
		return fmt.Errorf("unknown issuance policy %q", c.Policy)
	}

	bundle, assetID, err := w.IssueCat(tail, c.Amount, c.Fee)
	if err != nil {
		return err
	}
	fmt.Printf("asset id: %s\n", assetID)
	return emit(w, bundle, c.Submit)
}

func (c *MintCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()

	metadata, err := ledger.HashFromHex(c.Metadata)
	if err != nil {
		return fmt.Errorf("metadata digest: %w", err)
	}
	mint := assets.MintNft{
		To:                 w.PuzzleHash(),
		MetadataDigest:     metadata,
		RoyaltyBasisPoints: c.RoyaltyBps,
		Amount:             c.Amount,
	}
	if c.RoyaltyTo != "" {
		royaltyPH, err := w.DecodeAddress(c.RoyaltyTo)
		if err != nil {
			return fmt.Errorf("royalty address: %w", err)
		}
		mint.RoyaltyPuzzleHash = royaltyPH
	}

	bundle, launcherID, err := w.MintNft(mint, c.Fee)
	if err != nil {
		return err
	}
	fmt.Printf("launcher id: %s\n", launcherID)
	return emit(w, bundle, c.Submit)
}

func (c *OfferMakeCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()

	offerAsset, err := parseAssetID(c.OfferAsset)
	if err != nil {
		return fmt.Errorf("offered asset: %w", err)
	}
	requestAsset, err := parseAssetID(c.RequestAsset)
	if err != nil {
		return fmt.Errorf("requested asset: %w", err)
	}

	offered := []offer.Offered{{Asset: assetIDToId(offerAsset), Amount: c.OfferAmount}}
	requested := []offer.Request{{
		AssetID:  requestAsset,
		Payments: []ledger.Payment{{PuzzleHash: w.PuzzleHash(), Amount: c.RequestAmount}},
	}}

	var royalty *offer.Royalty
	if c.RoyaltyBps > 0 {
		if c.RoyaltyTo == "" {
			return fmt.Errorf("royalty-bps set without royalty-to")
		}
		royaltyPH, err := w.DecodeAddress(c.RoyaltyTo)
		if err != nil {
			return fmt.Errorf("royalty address: %w", err)
		}
		royalty = &offer.Royalty{PuzzleHash: royaltyPH, BasisPoints: c.RoyaltyBps}
	}

	o, err := w.MakeOffer(offered, requested, royalty)
	if err != nil {
		return err
	}
	fmt.Println(o.Encode())
	return nil
}

func (c *OfferTakeCmd) Run() error {
	w, cleanup, err := setup(c.globals)
	if err != nil {
		return err
	}
	defer cleanup()

	text := c.Offer
	if strings.HasPrefix(text, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(text, "@"))
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(data))
	}
	o, err := offer.Decode(text)
	if err != nil {
		return err
	}

	bundle, err := w.TakeOffer(&o)
	if err != nil {
		return err
	}
	return emit(w, bundle, c.Submit)
}

func assetIDToId(assetID ledger.Hash256) assets.Id {
	if assetID.IsZero() {
		return assets.Xch()
	}
	return assets.Existing(assetID)
}
