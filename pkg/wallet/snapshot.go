package wallet

import (
	"encoding/json"
	"fmt"
)

// snapshotVersion tags persisted documents so a future format change can be
// detected instead of silently misread.
const snapshotVersion = 1

// walletState is both the in-memory index set and, with its JSON tags, the
// persisted snapshot document. Every key here is already a string kind, so no
// key re-encoding is needed; the binary-key problem only exists on the
// protocol side.
type walletState struct {
	Version        int                      `json:"v"`
	Mints          map[MintURL]*MintInfo    `json:"mints"`
	Keysets        map[MintURL][]KeySetInfo `json:"keysets"`
	KeysetByID     map[KeysetID]*KeySetInfo `json:"keyset_map"`
	MintQuotes     map[string]*MintQuote    `json:"mint_quotes"`
	MeltQuotes     map[string]*MeltQuote    `json:"melt_quotes"`
	Keys           map[KeysetID]Keys        `json:"keys"`
	Proofs         []ProofInfo              `json:"proofs"`
	KeysetCounters map[KeysetID]uint32      `json:"keyset_counters"`
	Transactions   []Transaction            `json:"transactions"`
}

func newWalletState() walletState {
	return walletState{
		Version:        snapshotVersion,
		Mints:          make(map[MintURL]*MintInfo),
		Keysets:        make(map[MintURL][]KeySetInfo),
		KeysetByID:     make(map[KeysetID]*KeySetInfo),
		MintQuotes:     make(map[string]*MintQuote),
		MeltQuotes:     make(map[string]*MeltQuote),
		Keys:           make(map[KeysetID]Keys),
		KeysetCounters: make(map[KeysetID]uint32),
	}
}

func (s *walletState) encode() ([]byte, error) {
	return json.Marshal(s)
}

// decodeWalletState parses a persisted snapshot. A parse failure or version
// mismatch rejects the whole document; the caller starts empty.
func decodeWalletState(data []byte) (walletState, error) {
	var s walletState
	if err := json.Unmarshal(data, &s); err != nil {
		return walletState{}, fmt.Errorf("parse wallet snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return walletState{}, fmt.Errorf("unsupported wallet snapshot version %d", s.Version)
	}

	// Maps omitted from an older (but same-version) document decode as nil;
	// normalize so the store never indexes into a nil map.
	if s.Mints == nil {
		s.Mints = make(map[MintURL]*MintInfo)
	}
	if s.Keysets == nil {
		s.Keysets = make(map[MintURL][]KeySetInfo)
	}
	if s.KeysetByID == nil {
		s.KeysetByID = make(map[KeysetID]*KeySetInfo)
	}
	if s.MintQuotes == nil {
		s.MintQuotes = make(map[string]*MintQuote)
	}
	if s.MeltQuotes == nil {
		s.MeltQuotes = make(map[string]*MeltQuote)
	}
	if s.Keys == nil {
		s.Keys = make(map[KeysetID]Keys)
	}
	if s.KeysetCounters == nil {
		s.KeysetCounters = make(map[KeysetID]uint32)
	}
	return s, nil
}
