// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errs.New(errs.Chain, "transaction already in mempool")
	ErrPoolFull      = errs.New(errs.Chain, "mempool is full")
	ErrValidation    = errs.New(errs.Rules, "transaction failed validation")
)

// entry wraps a transaction with its declared fee, captured once at
// admission time so SelectForBlock doesn't recompute it per sort.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	fee    uint64
}

// Pool holds unconfirmed transactions in a bounded map keyed by tx_hash
// (§4.6). It never evicts an existing entry to make room for a better
// one: admission above capacity is rejected outright.
type Pool struct {
	mu      sync.Mutex
	txs     map[types.Hash]*entry
	maxSize int
	utxos   tx.UTXOProvider
	policy  *Policy
}

// New creates a mempool bounded at maxSize entries, validating admissions
// against utxos. maxSize <= 0 falls back to a sensible default.
func New(utxos tx.UTXOProvider, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		maxSize: maxSize,
		utxos:   utxos,
		policy:  DefaultPolicy(),
	}
}

// SetPolicy overrides the node-local acceptance policy (size/shape
// checks applied before UTXO-aware validation).
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add validates and admits transaction, reporting whether it was
// admitted. Rejects outright — never evicting an existing entry — if
// the transaction is already present or the pool is at capacity.
func (p *Pool) Add(transaction *tx.Transaction) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.Hash()
	if _, exists := p.txs[txHash]; exists {
		return false, ErrAlreadyExists
	}
	if len(p.txs) >= p.maxSize {
		return false, ErrPoolFull
	}

	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	if _, err := transaction.ValidateWithUTXOs(p.utxos); err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	p.txs[txHash] = &entry{tx: transaction, txHash: txHash, fee: transaction.Fee}
	return true, nil
}

// Remove deletes a transaction by hash. Silent if not present.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, txHash)
}

// RemoveMined deletes each of the given transactions by hash, silent on
// any that aren't present (already removed, or never seen).
func (p *Pool) RemoveMined(txs []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range txs {
		delete(p.txs, t.Hash())
	}
}

// Has reports whether a transaction is currently pending.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a pending transaction by hash, or nil if absent.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// PendingCount returns the number of transactions currently pending.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// SelectForBlock returns up to maxCount pending transactions sorted by
// declared fee descending, ties broken by tx_hash ascending for a
// deterministic order across nodes (§4.6).
func (p *Pool) SelectForBlock(maxCount int) []*tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].fee != entries[j].fee {
			return entries[i].fee > entries[j].fee
		}
		return bytes.Compare(entries[i].txHash[:], entries[j].txHash[:]) < 0
	})

	if maxCount < 0 || maxCount > len(entries) {
		maxCount = len(entries)
	}
	result := make([]*tx.Transaction, maxCount)
	for i := 0; i < maxCount; i++ {
		result[i] = entries[i].tx
	}
	return result
}
