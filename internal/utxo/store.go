package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO   = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixScript = []byte("s/") // s/<len(script_pubkey) BE32><script_pubkey><txid><index> -> empty (index)
)

// Store implements Set backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+4)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

// scriptPrefix builds the index prefix for a script_pubkey: "s/" + its
// length (BE32) + the bytes themselves. The length prefix disambiguates
// one script_pubkey from another that happens to be a byte-prefix of it.
func scriptPrefix(scriptPubKey []byte) []byte {
	prefix := make([]byte, len(prefixScript)+4+len(scriptPubKey))
	copy(prefix, prefixScript)
	binary.BigEndian.PutUint32(prefix[len(prefixScript):], uint32(len(scriptPubKey)))
	copy(prefix[len(prefixScript)+4:], scriptPubKey)
	return prefix
}

// scriptKey builds a full script index key: scriptPrefix + txid(32) + index(4).
func scriptKey(scriptPubKey []byte, op types.Outpoint) []byte {
	prefix := scriptPrefix(scriptPubKey)
	key := make([]byte, len(prefix)+types.HashSize+4)
	copy(key, prefix)
	copy(key[len(prefix):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefix)+types.HashSize:], op.Index)
	return key
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// GetUTXO implements pkg/tx.UTXOProvider, the minimal read shape needed
// by transaction validation.
func (s *Store) GetUTXO(outpoint types.Outpoint) (value uint64, scriptPubKey []byte, ok bool) {
	u, err := s.Get(outpoint)
	if err != nil {
		return 0, nil, false
	}
	return u.Output.Value, u.Output.ScriptPubKey, true
}

// Add stores a UTXO and updates its script_pubkey index entry.
func (s *Store) Add(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := s.db.Put(scriptKey(u.Output.ScriptPubKey, u.Outpoint), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// Remove deletes a UTXO and its script_pubkey index entry. It errors if
// the outpoint does not exist rather than silently no-opping: the
// underlying storage.DB.Delete never errors on a missing key, so without
// this existence check a spend of a nonexistent UTXO would otherwise
// pass ApplyBatch undetected.
func (s *Store) Remove(outpoint types.Outpoint) error {
	u, err := s.Get(outpoint)
	if err != nil {
		return fmt.Errorf("utxo remove: %w", err)
	}
	if err := s.db.Delete(scriptKey(u.Output.ScriptPubKey, u.Outpoint)); err != nil {
		return fmt.Errorf("utxo index delete: %w", err)
	}
	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in the store.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// GetByScriptPubKey returns all UTXOs whose output script_pubkey equals
// the given bytes exactly (§4.5's address-index contract: callers build
// a P2PKH script_pubkey for an address and search for matches).
func (s *Store) GetByScriptPubKey(scriptPubKey []byte) ([]*UTXO, error) {
	prefix := scriptPrefix(scriptPubKey)

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		if len(key) < len(prefix)+types.HashSize+4 {
			return nil // malformed key, skip
		}
		off := len(prefix)
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		u, err := s.Get(op)
		if err != nil {
			return nil // spent since index was written, skip
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan script index: %w", err)
	}
	return utxos, nil
}

// ApplyBatch adds new outputs and removes spent ones. Per §4.5 this must
// be all-or-nothing; since storage.DB exposes no transaction primitive,
// writes apply in spent-then-added order so a failure partway through
// never leaves a double-spendable UTXO (the surviving state is always a
// subset of "fully applied", never a superset).
func (s *Store) ApplyBatch(adds []*UTXO, spent []types.Outpoint) error {
	for _, op := range spent {
		if err := s.Remove(op); err != nil {
			return fmt.Errorf("apply batch: remove %s: %w", op, err)
		}
	}
	for _, u := range adds {
		if err := s.Add(u); err != nil {
			return fmt.Errorf("apply batch: add %s: %w", u.Outpoint, err)
		}
	}
	return nil
}

// TotalSupply sums the value of every UTXO currently in the set.
func (s *Store) TotalSupply() (uint64, error) {
	var total uint64
	err := s.ForEach(func(u *UTXO) error {
		total += u.Output.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return total, nil
}

// Clear removes every UTXO and index entry. Used for resync/reorg rebuild.
func (s *Store) Clear() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixScript} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}
