// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Defined in genesis, immutable, must match across all nodes
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Denomination constants (§6.5: "initial_subsidy (in coins) times COIN_FACTOR").
const (
	Decimals   = 8
	CoinFactor = 100_000_000 // atomic units per coin
)

// Consensus-critical block/transaction shape limits. Not among the
// tunable keys enumerated in §6.5 — they bound wire shape rather than
// an economic or timing parameter — so they stay fixed constants, the
// way the teacher keeps its own shape limits out of the tunable set.
const (
	MaxBlockTxs   = 500    // Max transactions per block (including coinbase).
	MaxTxInputs   = 2500   // Max inputs per transaction.
	MaxTxOutputs  = 2500   // Max outputs per transaction.
	MaxScriptData = 65_536 // 64 KB max script data per output.
)

// MaxTxPerBlockSelection is MAX_TX_PER_BLOCK (§4.16): the cap the block
// builder applies when selecting from the mempool.
const MaxTxPerBlockSelection = 2000

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// ChainParams are the consensus-critical parameters every node on a
// given network must agree on (§6.5). Fixed at genesis; changing them
// on a running chain is a hard fork.
type ChainParams struct {
	TargetBlockTimeSec           int               `conf:"target_block_time_sec"`
	DifficultyAdjustmentInterval int               `conf:"difficulty_adjustment_interval"`
	InitialDifficultyBits        types.CompactBits `conf:"initial_difficulty_bits"`
	MaxBlockSizeBytes            int               `conf:"max_block_size_bytes"`
	MaxNonce                     uint32            `conf:"max_nonce"`
	InitialSubsidy               uint64            `conf:"initial_subsidy"` // atomic units
	HalvingInterval              uint64            `conf:"halving_interval"`
}

// DefaultChainParams returns the §6.5 default values.
func DefaultChainParams() ChainParams {
	return ChainParams{
		TargetBlockTimeSec:           60,
		DifficultyAdjustmentInterval: 10,
		InitialDifficultyBits:        types.MaxTargetBits, // 0x207fffff
		MaxBlockSizeBytes:            1_000_000,
		MaxNonce:                     ^uint32(0),
		InitialSubsidy:               50 * CoinFactor,
		HalvingInterval:              210_000,
	}
}

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration plus the chain
// parameters currently in effect.
type Config struct {
	Network NetworkType `conf:"network"`
	Chain   ChainParams

	P2P     P2PConfig
	Mining  MiningConfig
	Storage StorageConfig
	Mempool MempoolConfig
	Log     LogConfig
}

// P2PConfig holds peer-to-peer transport settings (§4.17, §6.5).
type P2PConfig struct {
	Host          string   `conf:"p2p_host"`
	Port          int      `conf:"p2p_port"`
	Seeds         []string `conf:"seeds"`
	MaxPeers      int      `conf:"max_peers"`
	MaxBufferSize int      `conf:"max_buffer_size"` // bytes, per-connection receive cap
}

// MiningConfig holds block-production settings (§4.16, §6.5).
type MiningConfig struct {
	Enabled         bool   `conf:"mining.enabled"`
	PayoutAddress   string `conf:"payout_address"`
	CoinbaseMessage string `conf:"coinbase_message"`
	Threads         int    `conf:"threads"`
}

// StorageConfig holds persistence settings (§6.4, §6.5).
type StorageConfig struct {
	Engine  string `conf:"storage_engine"` // "badger" or "memory"
	DBName  string `conf:"db_name"`
	DataDir string `conf:"data_dir"`
}

// MempoolConfig holds mempool admission settings (§4.6, §6.5).
type MempoolConfig struct {
	MaxSize int `conf:"mempool_max_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet
//	macOS:   ~/Library/Application Support/Klingnet
//	Windows: %APPDATA%\Klingnet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingnet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingnet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingnet")
	default:
		return filepath.Join(home, ".klingnet")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.Storage.DataDir, string(c.Network))
}

// BlocksDir returns the blocks storage directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.ChainDataDir(), "utxo")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Storage.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Storage.DataDir, "klingnet.conf")
}
