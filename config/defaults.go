package config

// DefaultMainnet returns the default node configuration for mainnet (§6.5).
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		Chain:   DefaultChainParams(),
		P2P: P2PConfig{
			Host:          "0.0.0.0",
			Port:          30303,
			Seeds:         []string{},
			MaxPeers:      50,
			MaxBufferSize: 5 * 1024 * 1024, // 5 MiB
		},
		Mining: MiningConfig{
			Enabled: false,
			Threads: 1,
		},
		Storage: StorageConfig{
			Engine:  "badger",
			DBName:  "klingnet",
			DataDir: DefaultDataDir(),
		},
		Mempool: MempoolConfig{
			MaxSize: 5000,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 30304
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
