package config

// Config is the umbrella object returned by Load(): every environment-driven
// setting plus the system-wide defaults, validated and ready to use. Mirrors
// the teacher's pkg/config.Config as the single object threaded through
// service wiring.
type Config struct {
	Defaults *Defaults

	Bus         BusConfig
	Store       StoreConfig
	Cache       CacheConfig
	Vector      VectorConfig
	ObjectStore ObjectStoreConfig
	Redaction   RedactionConfig
	Providers   map[string]ProviderConfig
	Spend       SpendConfig
	ShadowMode  ShadowModeConfig
}

// Provider looks up a configured LLM provider credential by name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}
