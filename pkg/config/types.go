package config

// BusConfig describes how to reach the partitioned message bus (§6).
// The bus implementation itself is an external collaborator; this is
// only the connection contract pkg/bus needs to construct a client.
type BusConfig struct {
	Brokers []string `validate:"required,min=1"`
	GroupID string   `validate:"required"`
}

// StoreConfig is the pooled relational store DSN and pool shape (§4.F).
type StoreConfig struct {
	DSN             string `validate:"required"`
	MaxOpenConns    int    `validate:"min=1"`
	MaxIdleConns    int    `validate:"min=0"`
	StatementTimeMS int    `validate:"min=1"`
}

// CacheConfig is the Redis-compatible cache endpoint (§4.F).
type CacheConfig struct {
	URL string `validate:"required"`
}

// VectorConfig is the vector store endpoint (§4.F).
type VectorConfig struct {
	Endpoint string `validate:"required"`
}

// ObjectStoreConfig is the evidence cold-storage bucket (§4.E).
type ObjectStoreConfig struct {
	Endpoint string `validate:"required"`
	Bucket   string `validate:"required"`
	KMSKeyID string `validate:"required"`
}

// RedactionConfig holds the symmetric key used by pkg/redact to encrypt the
// PII placeholder map at rest (§8: decrypt(encrypt(map,k),k)==map).
type RedactionConfig struct {
	Key []byte `validate:"required,len=32"` // 32-byte ChaCha20-Poly1305 key, decoded from base64
}

// ProviderConfig names the environment variable holding a given LLM
// provider's credential; the credential value itself is never logged or
// held longer than needed to construct the provider's SDK client.
type ProviderConfig struct {
	Name      string
	APIKeyEnv string
	APIKey    string `validate:"required"`
}

// SpendConfig is the monthly budget guard consumed by the Context Gateway
// (§4.B item 1).
type SpendConfig struct {
	MonthlySoftCapUSD float64 `validate:"gt=0"`
	MonthlyHardCapUSD float64 `validate:"gtfield=MonthlySoftCapUSD"`
}

// ShadowModeConfig is the tenant-default shadow-mode posture (§4.D).
type ShadowModeConfig struct {
	DefaultForNewTenants bool
	GoLiveRequiresSignoff bool
}
