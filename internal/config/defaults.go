package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bekutoru/data/bekutoru.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "cohere"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "embed-v4.0"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "COHERE_API_KEY"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.OverfetchMultiplier == 0 {
		cfg.Search.OverfetchMultiplier = 10
	}
	if cfg.Search.MaxExpansions == 0 {
		cfg.Search.MaxExpansions = 3
	}
}
