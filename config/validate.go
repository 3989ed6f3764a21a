package config

import (
	"fmt"
)

// Validate checks node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p_port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 0 {
		return fmt.Errorf("max_peers must be non-negative")
	}
	if cfg.P2P.MaxBufferSize <= 0 {
		return fmt.Errorf("max_buffer_size must be positive")
	}

	if cfg.Chain.TargetBlockTimeSec <= 0 {
		return fmt.Errorf("target_block_time_sec must be positive")
	}
	if cfg.Chain.DifficultyAdjustmentInterval <= 0 {
		return fmt.Errorf("difficulty_adjustment_interval must be positive")
	}
	if cfg.Chain.MaxBlockSizeBytes <= 0 {
		return fmt.Errorf("max_block_size_bytes must be positive")
	}
	if cfg.Chain.InitialSubsidy == 0 {
		return fmt.Errorf("initial_subsidy must be positive")
	}

	if cfg.Mempool.MaxSize < 0 {
		return fmt.Errorf("mempool_max_size must be non-negative")
	}

	switch cfg.Storage.Engine {
	case "badger", "memory":
	default:
		return fmt.Errorf("storage_engine must be %q or %q", "badger", "memory")
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if cfg.Mining.Enabled {
		if cfg.Mining.PayoutAddress == "" {
			return fmt.Errorf("mining.enabled requires payout_address")
		}
		if cfg.Mining.Threads <= 0 {
			return fmt.Errorf("threads must be positive when mining is enabled")
		}
	}

	return nil
}
