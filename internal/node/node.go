// Package node wires together the chain, mempool, miner, and p2p gossip
// layers into a runnable full node.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/chain"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/miner"
	"github.com/Klingon-tech/klingnet-chain/internal/p2p"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/utxo"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized blockchain node: storage, consensus,
// mempool, and p2p gossip, optionally mining new blocks.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db        storage.DB
	utxoStore *utxo.Store
	pow       *consensus.PoW
	ch        *chain.Chain
	pool      *mempool.Pool

	p2pNode *p2p.Node
	gossip  *p2p.Gossip
	bans    *p2p.BanManager

	payout [20]byte
	miner  *miner.Miner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type utxoProviderAdapter struct{ utxos utxo.Set }

func (a utxoProviderAdapter) GetUTXO(outpoint types.Outpoint) (value uint64, scriptPubKey []byte, ok bool) {
	u, err := a.utxos.Get(outpoint)
	if err != nil {
		return 0, nil, false
	}
	return u.Output.Value, u.Output.ScriptPubKey, true
}

// New creates and initializes a Node. It performs all setup (logger,
// storage, chain, mempool, p2p) but does not start background
// goroutines (mining, networking). Call Start for that.
func New(cfg *config.Config) (*Node, error) {
	// 1. Address version.
	if cfg.Network == config.Testnet {
		types.SetAddressVersion(types.TestnetVersion)
	} else {
		types.SetAddressVersion(types.MainnetVersion)
	}

	// 2. Logger.
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// 3. Storage.
	var db storage.DB
	var err error
	if cfg.Storage.Engine == "memory" {
		db = storage.NewMemory()
	} else {
		db, err = storage.NewBadger(cfg.ChainDataDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.ChainDataDir(), err)
		}
	}
	utxoStore := utxo.NewStore(db)
	logger.Info().Str("path", cfg.ChainDataDir()).Msg("database opened")

	// 4. Payout address (required if mining is enabled).
	var payout [20]byte
	if cfg.Mining.Enabled {
		if cfg.Mining.PayoutAddress == "" {
			db.Close()
			return nil, fmt.Errorf("mining.enabled requires payout_address")
		}
		payout, err = resolvePayout(cfg.Mining.PayoutAddress)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	// 5. Consensus and chain.
	pow := consensus.NewPoW(cfg.Chain.DifficultyAdjustmentInterval, cfg.Chain.TargetBlockTimeSec)
	rules := &consensus.BlockRules{
		InitialSubsidy:  cfg.Chain.InitialSubsidy,
		HalvingInterval: cfg.Chain.HalvingInterval,
	}
	blocks := chain.NewBlockStore(db)
	pool := mempool.New(utxoProviderAdapter{utxos: utxoStore}, cfg.Mempool.MaxSize)

	ch, err := chain.New(blocks, utxoStore, pool, rules, pow)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chain: %w", err)
	}

	chainState := ch.State()
	if chainState.IsGenesis() {
		gen := config.GenesisFor(cfg.Network)
		if cfg.Mining.PayoutAddress != "" {
			gen.PayoutAddress = cfg.Mining.PayoutAddress
		}
		gen.InitialBits = cfg.Chain.InitialDifficultyBits
		gen.InitialSubsidy = cfg.Chain.InitialSubsidy
		if err := ch.InitFromGenesis(gen); err != nil {
			db.Close()
			return nil, fmt.Errorf("init from genesis: %w", err)
		}
		logger.Info().Msg("chain initialized from genesis")
	}
	logger.Info().Uint64("height", ch.Height()).Msg("chain loaded")

	// 6. P2P transport, bans, and gossip.
	bans := p2p.NewBanManager(p2p.NewBanStore(db), nil)
	bans.LoadBans()
	p2pNode := p2p.NewNode(p2p.Config{
		Host:          cfg.P2P.Host,
		Port:          cfg.P2P.Port,
		Seeds:         cfg.P2P.Seeds,
		MaxPeers:      cfg.P2P.MaxPeers,
		MaxBufferSize: cfg.P2P.MaxBufferSize,
	}, bans)
	bans.SetNode(p2pNode)
	gossip := p2p.NewGossip(p2pNode, ch, pool, utxoStore, bans)

	n := &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		utxoStore: utxoStore,
		pow:       pow,
		ch:        ch,
		pool:      pool,
		p2pNode:   p2pNode,
		gossip:    gossip,
		bans:      bans,
		payout:    payout,
	}

	if cfg.Mining.Enabled {
		n.miner = miner.New(ch, pool, pow, payout, cfg.Chain.InitialSubsidy, cfg.Chain.HalvingInterval)
	}

	return n, nil
}

// Start begins networking and, if configured, mining. It returns once
// the p2p listener is bound; background goroutines continue to run
// until Stop is called.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	if err := n.p2pNode.Start(); err != nil {
		return fmt.Errorf("starting p2p: %w", err)
	}

	n.wg.Add(1)
	go n.runBanPruneLoop()

	if n.miner != nil {
		n.wg.Add(1)
		go n.runMiningLoop()
	}

	return nil
}

// Stop gracefully shuts down networking, background goroutines, and
// storage.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.p2pNode.Stop()
	n.wg.Wait()
	return n.db.Close()
}

func (n *Node) runBanPruneLoop() {
	defer n.wg.Done()
	done := make(chan struct{})
	go func() {
		<-n.ctx.Done()
		close(done)
	}()
	n.bans.RunPruneLoop(done)
}

// runMiningLoop continuously produces and submits candidate blocks until
// the node stops. A candidate is not abandoned or rebuilt when the tip
// changes while it is being sealed; it is submitted once sealed and
// consensus accepts or rejects it.
func (n *Node) runMiningLoop() {
	defer n.wg.Done()
	logger := klog.WithComponent("miner")

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		blk, err := n.miner.ProduceBlock(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("block production failed")
			time.Sleep(time.Second)
			continue
		}

		if err := n.ch.ProcessBlock(blk); err != nil {
			logger.Warn().Err(err).Msg("mined block rejected by consensus")
			continue
		}

		logger.Info().
			Uint64("height", uint64(blk.Header.Index)).
			Str("hash", blk.Hash().String()).
			Str("difficulty", formatDifficulty(uint64(blk.Header.Bits))).
			Msg("block mined")

		if err := n.gossip.BroadcastBlock(blk); err != nil {
			logger.Warn().Err(err).Msg("broadcasting mined block failed")
		}
	}
}

// Chain exposes the underlying chain for callers that need direct
// read access (diagnostics, future RPC).
func (n *Node) Chain() *chain.Chain { return n.ch }

// Mempool exposes the underlying mempool.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

// PeerCount returns the number of currently connected peers.
func (n *Node) PeerCount() int { return n.p2pNode.PeerCount() }
