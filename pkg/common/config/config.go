package config

import (
	"fmt"
	"os"

	"github.com/fystack/spendkit/pkg/common/enum"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"
)

var validate = validator.New()

type Config struct {
	Environment string          `yaml:"environment" validate:"required,oneof=production development"`
	Network     NetworkConfig   `yaml:"network"     validate:"required"`
	Wallet      WalletConfig    `yaml:"wallet"`
	NATS        NatsConfig      `yaml:"nats"`
	KVStore     KVSConfig       `yaml:"kvstore"     validate:"required"`
	DB          DBConfig        `yaml:"db"`
	Redis       RedisConfig     `yaml:"redis"`
	BloomFilter BloomConfig     `yaml:"bloomfilter"`
	Submitter   SubmitterConfig `yaml:"submitter"`
}

// NetworkConfig pins the consensus-facing constants: the signing domain
// separator and the address encoding.
type NetworkConfig struct {
	Name              string `yaml:"name" validate:"required"`
	AddressHRP        string `yaml:"address_hrp" validate:"required"`
	AggSigMeExtra     string `yaml:"agg_sig_me_extra" validate:"required,len=64,hexadecimal"`
	SettlementVersion uint8  `yaml:"settlement_version"`
}

// AggSigMeExtraHash parses the configured signing domain separator.
func (n NetworkConfig) AggSigMeExtraHash() (ledger.Hash256, error) {
	return ledger.HashFromHex(n.AggSigMeExtra)
}

type WalletConfig struct {
	ChangeAddress string            `yaml:"change_address"`
	Relation      enum.RelationMode `yaml:"relation" validate:"omitempty,oneof=none assert_concurrent"`
	// KeySeedEnv names the environment variable holding the BIP-39 mnemonic.
	KeySeedEnv string `yaml:"key_seed_env"`
}

type NatsConfig struct {
	URL           string  `yaml:"url"`
	SubjectPrefix string  `yaml:"subject_prefix"`
	Username      string  `yaml:"username"`
	Password      string  `yaml:"password"`
	TLS           TLSCert `yaml:"tls"`
}

type TLSCert struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type KVSConfig struct {
	Type   enum.KVStoreType `yaml:"type" validate:"required,oneof=badger consul"`
	Badger BadgerKVConfig   `yaml:"badger"`
	Consul ConsulKVConfig   `yaml:"consul"`
}

type BadgerKVConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

type ConsulKVConfig struct {
	Scheme   string         `yaml:"scheme"`
	Address  string         `yaml:"address"`
	Folder   string         `yaml:"folder"`
	Token    string         `yaml:"token"`
	HttpAuth HttpAuthConfig `yaml:"http_auth"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type DBConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

type BloomConfig struct {
	Backend   enum.BloomBackend   `yaml:"backend" validate:"omitempty,oneof=inmemory redis"`
	BatchSize int                 `yaml:"batch_size"`
	Redis     RedisBloomConfig    `yaml:"redis"`
	InMemory  InMemoryBloomConfig `yaml:"in_memory"`
}

type RedisBloomConfig struct {
	KeyPrefix string  `yaml:"key_prefix"`
	ErrorRate float64 `yaml:"error_rate"`
	Capacity  int     `yaml:"capacity"`
}

type InMemoryBloomConfig struct {
	ExpectedItems     uint    `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

type SubmitterConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	MaxAttempts   int     `yaml:"max_attempts"`
}

// defaults are merged into whatever the file leaves unset.
var defaults = Config{
	Network: NetworkConfig{
		AddressHRP:        "xch",
		SettlementVersion: 1,
	},
	Wallet: WalletConfig{
		Relation: enum.RelationAssertConcurrent,
	},
	BloomFilter: BloomConfig{
		Backend:   enum.BFBackendInMemory,
		BatchSize: 500,
		InMemory: InMemoryBloomConfig{
			ExpectedItems:     100_000,
			FalsePositiveRate: 0.001,
		},
	},
	Submitter: SubmitterConfig{
		RatePerSecond: 5,
		Burst:         10,
		MaxAttempts:   5,
	},
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, err
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Network.AggSigMeExtraHash(); err != nil {
		return nil, fmt.Errorf("network.agg_sig_me_extra: %w", err)
	}
	return &cfg, nil
}
