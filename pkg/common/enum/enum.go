package enum

type RelationMode string
type AssetKind string
type TailKind string
type KVStoreType string
type BloomBackend string

// RelationMode controls how the input coins of one finished batch are bound
// together. AssertConcurrent is the safe default: no proper subset of the
// batch validates on its own.
const (
	RelationNone             RelationMode = "none"
	RelationAssertConcurrent RelationMode = "assert_concurrent"
)

const (
	AssetKindXch      AssetKind = "xch"
	AssetKindExisting AssetKind = "existing"
	AssetKindNew      AssetKind = "new"
)

// TailKind selects the issuance policy curried into a fungible asset.
const (
	TailKindGenesisByCoinID         TailKind = "genesis_by_coin_id"
	TailKindEverythingWithSignature TailKind = "everything_with_signature"
)

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

const (
	BFBackendInMemory BloomBackend = "inmemory"
	BFBackendRedis    BloomBackend = "redis"
)
