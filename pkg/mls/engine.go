package mls

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// EngineStore is the opaque key-value store the MLS engine persists its own
// cryptographic state into (signing keys, ratchet trees, epoch secrets). Keys
// and values are raw byte strings that may contain any byte, including NUL;
// this store never interprets them. State is persisted alongside, but encoded
// independently from, the rest of the protocol state.
//
// Mutations are serialized through the owning Store's lock, the same lock the
// full-snapshot writes hold. Without that, a snapshot encoded before an engine
// mutation could reach the medium after the mutation's own blob, and a write
// that returned success would be missing after a reload.
type EngineStore struct {
	mu     sync.RWMutex
	values map[string][]byte

	// owner serializes mutations against snapshot writes and persists the
	// engine blob. nil while the store is being constructed.
	owner *Store
}

func newEngineStore() *EngineStore {
	return &EngineStore{values: make(map[string][]byte)}
}

// Get returns the value stored under key, or nil if absent.
func (e *EngineStore) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	value, ok := e.values[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Set stores value under key and persists the engine blob.
func (e *EngineStore) Set(key, value []byte) error {
	if e.owner == nil {
		e.put(key, value)
		return nil
	}

	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	e.put(key, value)
	return e.owner.persistEngine()
}

// Delete removes key and persists the engine blob. Deleting an absent key is
// not an error.
func (e *EngineStore) Delete(key []byte) error {
	if e.owner == nil {
		e.drop(key)
		return nil
	}

	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	e.drop(key)
	return e.owner.persistEngine()
}

func (e *EngineStore) put(key, value []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[string(key)] = append([]byte(nil), value...)
}

func (e *EngineStore) drop(key []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, string(key))
}

// KeysWithPrefix returns copies of all keys beginning with prefix, in byte
// order. An empty prefix lists every key.
func (e *EngineStore) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var keys [][]byte
	for k := range e.values {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, []byte(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

// Len reports the number of stored entries.
func (e *EngineStore) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.values)
}

// engineSnapshot is the persisted form: hex(key) -> hex(value), so arbitrary
// bytes survive the text-only medium.
type engineSnapshot struct {
	Version int               `json:"v"`
	Values  map[string]string `json:"values"`
}

func (e *EngineStore) encode() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := engineSnapshot{Version: snapshotVersion, Values: make(map[string]string, len(e.values))}
	for k, v := range e.values {
		doc.Values[hex.EncodeToString([]byte(k))] = hex.EncodeToString(v)
	}
	return json.Marshal(doc)
}

// decodeEngineSnapshot rebuilds the raw map from a persisted blob. Any bad
// entry rejects the whole document.
func decodeEngineSnapshot(data []byte) (map[string][]byte, error) {
	var doc engineSnapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse engine snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported engine snapshot version %d", doc.Version)
	}

	values := make(map[string][]byte, len(doc.Values))
	for k, v := range doc.Values {
		key, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("decode engine key: %w", err)
		}
		value, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode engine value: %w", err)
		}
		values[string(key)] = value
	}
	return values, nil
}
