package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// GenesisTimestamp is the fixed genesis block timestamp (§6.3).
const GenesisTimestamp int64 = 1704067200

// Genesis holds the deterministic genesis block parameters (§6.3). Every
// node computes a byte-identical genesis block from these values on
// first start, before accepting any peer message that references it.
type Genesis struct {
	ChainID string `json:"chain_id"`

	Timestamp       int64             `json:"timestamp"`
	InitialBits     types.CompactBits `json:"bits"`
	CoinbaseMessage string            `json:"coinbase_message"`
	PayoutAddress   string            `json:"payout_address"`
	InitialSubsidy  uint64            `json:"initial_subsidy"`
}

// DefaultGenesis returns the canonical mainnet genesis parameters. The
// payout address is left blank: unlike the teacher's ERC-20-swap
// allocation list, a pure-PoW chain mints its first coins to whatever
// address the launching node configures, so the caller must fill it in.
func DefaultGenesis() *Genesis {
	params := DefaultChainParams()
	return &Genesis{
		ChainID:         "klingnet-mainnet-1",
		Timestamp:       GenesisTimestamp,
		InitialBits:     params.InitialDifficultyBits,
		CoinbaseMessage: "Klingnet Genesis",
		InitialSubsidy:  params.InitialSubsidy,
	}
}

// TestnetGenesis returns the canonical testnet genesis parameters.
func TestnetGenesis() *Genesis {
	g := DefaultGenesis()
	g.ChainID = "klingnet-testnet-1"
	g.CoinbaseMessage = "Klingnet Testnet Genesis"
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return DefaultGenesis()
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is usable.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.PayoutAddress == "" {
		return fmt.Errorf("payout_address is required")
	}
	if _, err := types.ParseAddress(g.PayoutAddress); err != nil {
		return fmt.Errorf("invalid payout_address: %w", err)
	}
	if g.InitialSubsidy == 0 {
		return fmt.Errorf("initial_subsidy must be positive")
	}
	return nil
}

// Hash returns a SHA-256 hash of the genesis configuration, used to
// detect genesis mismatches between nodes.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
