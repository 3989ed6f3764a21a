package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by its §6.5 key name.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "data_dir":
		cfg.Storage.DataDir = value

	// Chain params (§6.5)
	case "target_block_time_sec":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chain.TargetBlockTimeSec = n
	case "difficulty_adjustment_interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chain.DifficultyAdjustmentInterval = n
	case "initial_difficulty_bits":
		bits, err := types.BitsFromHex(value)
		if err != nil {
			return err
		}
		cfg.Chain.InitialDifficultyBits = bits
	case "max_block_size_bytes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chain.MaxBlockSizeBytes = n
	case "max_nonce":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Chain.MaxNonce = uint32(n)
	case "initial_subsidy":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.InitialSubsidy = n * CoinFactor
	case "halving_interval":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.HalvingInterval = n

	// P2P
	case "p2p_host":
		cfg.P2P.Host = value
	case "p2p_port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = n
	case "seeds":
		cfg.P2P.Seeds = parseStringList(value)
	case "max_peers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxPeers = n
	case "max_buffer_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxBufferSize = n

	// Storage
	case "storage_engine":
		cfg.Storage.Engine = value
	case "db_name":
		cfg.Storage.DBName = value

	// Mempool
	case "mempool_max_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxSize = n

	// Mining
	case "mining.enabled", "mine":
		cfg.Mining.Enabled = parseBool(value)
	case "payout_address":
		cfg.Mining.PayoutAddress = value
	case "coinbase_message":
		cfg.Mining.CoinbaseMessage = value
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mining.Threads = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored.
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Klingnet Chain Node Configuration

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.klingnet)
# data_dir = ~/.klingnet

# ============================================================================
# Chain parameters (hard-fork if changed on a running chain)
# ============================================================================

# target_block_time_sec = 60
# difficulty_adjustment_interval = 10
# initial_difficulty_bits = 207fffff
# max_block_size_bytes = 1000000
# max_nonce = 4294967295
# initial_subsidy = 50
# halving_interval = 210000

# ============================================================================
# P2P Network
# ============================================================================

p2p_host = 0.0.0.0
p2p_port = ` + defaultPort(network) + `
max_peers = 50
max_buffer_size = 5242880

# Seed nodes (comma-separated host:port)
# seeds = node1.example.com:30303,node2.example.com:30303

# ============================================================================
# Storage
# ============================================================================

storage_engine = badger
db_name = klingnet

# ============================================================================
# Mempool
# ============================================================================

mempool_max_size = 5000

# ============================================================================
# Mining / Block Production
# ============================================================================

mining.enabled = false

# Address to receive block rewards
# payout_address = <your-address>

# coinbase_message = Klingnet
# threads = 1

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultPort(network NetworkType) string {
	if network == Testnet {
		return "30304"
	}
	return "30303"
}
