package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// NATS subjects for finished bundles.
	BundleSubjectPrefix = "spendkit.bundle"

	// KV key prefixes for the coin store.
	KVPrefixCoin  = "coins"
	KVPrefixSpent = "spent"
)
