package wallet

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
)

// ErrPersist wraps medium write failures. When a mutating operation returns
// it, the in-memory change has still been applied; only durability failed.
var ErrPersist = errors.New("persist wallet state")

// Config configures a wallet state store.
type Config struct {
	// StateKey is the medium key the wallet snapshot is stored under.
	// Default: "wallet_state".
	StateKey string

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default medium key.
func DefaultConfig() Config {
	return Config{StateKey: "wallet_state"}
}

// Store is the persistent wallet state store. One mutex guards all indexes;
// mutations rewrite the full snapshot before returning. Construction loads
// whatever the medium holds, treating missing or undecodable content as an
// empty store.
type Store struct {
	mu    sync.Mutex
	state walletState

	medium storage.Medium
	cfg    Config
	logger *slog.Logger
}

var _ Database = (*Store)(nil)

// Open builds a store over medium. Decode failures of persisted content are
// logged and discarded; a failing initial write is returned.
func Open(medium storage.Medium, cfg Config) (*Store, error) {
	if cfg.StateKey == "" {
		cfg.StateKey = DefaultConfig().StateKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		state:  newWalletState(),
		medium: medium,
		cfg:    cfg,
		logger: cfg.Logger,
	}

	if raw, ok, err := medium.GetItem(cfg.StateKey); err != nil {
		s.logger.Warn("reading wallet snapshot failed, starting empty", "key", cfg.StateKey, "error", err)
	} else if ok {
		if decoded, err := decodeWalletState([]byte(raw)); err != nil {
			s.logger.Warn("wallet snapshot undecodable, starting empty", "key", cfg.StateKey, "error", err)
		} else {
			s.state = decoded
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) persistLocked() error {
	doc, err := s.state.encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.medium.SetItem(s.cfg.StateKey, string(doc)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// MediumKey returns the medium key this store persists under.
func (s *Store) MediumKey() string {
	return s.cfg.StateKey
}

func (s *Store) AddMint(url MintURL, info *MintInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info != nil {
		copied := *info
		info = &copied
	}
	s.state.Mints[url] = info
	return s.persistLocked()
}

func (s *Store) RemoveMint(url MintURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.Mints, url)
	return s.persistLocked()
}

func (s *Store) GetMint(url MintURL) (*MintInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.state.Mints[url]
	if info == nil {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}

func (s *Store) GetMints() (map[MintURL]*MintInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[MintURL]*MintInfo, len(s.state.Mints))
	for url, info := range s.state.Mints {
		if info == nil {
			out[url] = nil
			continue
		}
		copied := *info
		out[url] = &copied
	}
	return out, nil
}

func (s *Store) UpdateMintURL(oldURL, newURL MintURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Both URL-keyed indexes move together; per-row mint URLs embedded in
	// proofs and transactions stay as written.
	if info, ok := s.state.Mints[oldURL]; ok {
		delete(s.state.Mints, oldURL)
		s.state.Mints[newURL] = info
	}
	if keysets, ok := s.state.Keysets[oldURL]; ok {
		delete(s.state.Keysets, oldURL)
		s.state.Keysets[newURL] = keysets
	}
	return s.persistLocked()
}

func (s *Store) AddMintKeysets(url MintURL, keysets []KeySetInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Keysets[url] = append([]KeySetInfo(nil), keysets...)
	for _, keyset := range keysets {
		copied := keyset
		s.state.KeysetByID[keyset.ID] = &copied
	}
	return s.persistLocked()
}

func (s *Store) GetMintKeysets(url MintURL) ([]KeySetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]KeySetInfo(nil), s.state.Keysets[url]...), nil
}

func (s *Store) GetKeysetByID(id KeysetID) (*KeySetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyset, ok := s.state.KeysetByID[id]
	if !ok {
		return nil, nil
	}
	copied := *keyset
	return &copied, nil
}

func (s *Store) AddMintQuote(quote MintQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.MintQuotes[quote.ID] = &quote
	return s.persistLocked()
}

func (s *Store) GetMintQuote(quoteID string) (*MintQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.state.MintQuotes[quoteID]
	if !ok {
		return nil, nil
	}
	copied := *quote
	return &copied, nil
}

func (s *Store) GetMintQuotes() ([]MintQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := make([]MintQuote, 0, len(s.state.MintQuotes))
	for _, quote := range s.state.MintQuotes {
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

func (s *Store) RemoveMintQuote(quoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.MintQuotes, quoteID)
	return s.persistLocked()
}

func (s *Store) AddMeltQuote(quote MeltQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.MeltQuotes[quote.ID] = &quote
	return s.persistLocked()
}

func (s *Store) GetMeltQuote(quoteID string) (*MeltQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.state.MeltQuotes[quoteID]
	if !ok {
		return nil, nil
	}
	copied := *quote
	return &copied, nil
}

func (s *Store) GetMeltQuotes() ([]MeltQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := make([]MeltQuote, 0, len(s.state.MeltQuotes))
	for _, quote := range s.state.MeltQuotes {
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

func (s *Store) RemoveMeltQuote(quoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.MeltQuotes, quoteID)
	return s.persistLocked()
}

func (s *Store) AddKeys(id KeysetID, keys Keys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(Keys, len(keys))
	for amount, pubkey := range keys {
		copied[amount] = pubkey
	}
	s.state.Keys[id] = copied
	return s.persistLocked()
}

func (s *Store) GetKeys(id KeysetID) (Keys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.state.Keys[id]
	if !ok {
		return nil, nil
	}
	copied := make(Keys, len(keys))
	for amount, pubkey := range keys {
		copied[amount] = pubkey
	}
	return copied, nil
}

func (s *Store) RemoveKeys(id KeysetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.Keys, id)
	return s.persistLocked()
}

func (s *Store) UpdateProofs(added []ProofInfo, removedYs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove the requested Ys plus any existing proofs the added set
	// supersedes, so the result never holds two proofs with the same Y.
	drop := make(map[string]struct{}, len(removedYs)+len(added))
	for _, y := range removedYs {
		drop[y] = struct{}{}
	}
	for i := range added {
		drop[added[i].Y] = struct{}{}
	}

	kept := s.state.Proofs[:0]
	for i := range s.state.Proofs {
		if _, gone := drop[s.state.Proofs[i].Y]; !gone {
			kept = append(kept, s.state.Proofs[i])
		}
	}
	s.state.Proofs = kept
	for i := range added {
		s.state.Proofs = append(s.state.Proofs, added[i].clone())
	}
	return s.persistLocked()
}

func (s *Store) GetProofs(filter ProofFilter) ([]ProofInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ProofInfo
	for i := range s.state.Proofs {
		if proofMatches(&s.state.Proofs[i], &filter) {
			out = append(out, s.state.Proofs[i].clone())
		}
	}
	return out, nil
}

func proofMatches(p *ProofInfo, f *ProofFilter) bool {
	if f.MintURL != nil && p.MintURL != *f.MintURL {
		return false
	}
	if f.Unit != nil && p.Unit != *f.Unit {
		return false
	}
	if f.States != nil {
		found := false
		for _, state := range f.States {
			if p.State == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SpendingConditions != nil {
		// An unconditional proof never satisfies a concrete condition
		// filter.
		if p.SpendingCondition == nil {
			return false
		}
		found := false
		for _, cond := range f.SpendingConditions {
			if *p.SpendingCondition == cond {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) UpdateProofsState(ys []string, newState ProofState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := make(map[string]struct{}, len(ys))
	for _, y := range ys {
		match[y] = struct{}{}
	}
	for i := range s.state.Proofs {
		if _, ok := match[s.state.Proofs[i].Y]; ok {
			s.state.Proofs[i].State = newState
		}
	}
	return s.persistLocked()
}

func (s *Store) IncrementKeysetCounter(id KeysetID, count uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.KeysetCounters[id] += count
	value := s.state.KeysetCounters[id]
	if err := s.persistLocked(); err != nil {
		return value, err
	}
	return value, nil
}

func (s *Store) AddTransaction(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-adding a transaction with the same derived id replaces it instead
	// of duplicating the log entry.
	id := tx.ID()
	for i := range s.state.Transactions {
		if s.state.Transactions[i].ID() == id {
			s.state.Transactions[i] = tx.clone()
			return s.persistLocked()
		}
	}
	s.state.Transactions = append(s.state.Transactions, tx.clone())
	return s.persistLocked()
}

func (s *Store) GetTransaction(id TransactionID) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Transactions {
		if s.state.Transactions[i].ID() == id {
			tx := s.state.Transactions[i].clone()
			return &tx, nil
		}
	}
	return nil, nil
}

func (s *Store) ListTransactions(filter TransactionFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for i := range s.state.Transactions {
		tx := &s.state.Transactions[i]
		if filter.MintURL != nil && tx.MintURL != *filter.MintURL {
			continue
		}
		if filter.Direction != nil && tx.Direction != *filter.Direction {
			continue
		}
		if filter.Unit != nil && tx.Unit != *filter.Unit {
			continue
		}
		out = append(out, tx.clone())
	}
	return out, nil
}

func (s *Store) RemoveTransaction(id TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Transactions[:0]
	for i := range s.state.Transactions {
		if s.state.Transactions[i].ID() != id {
			kept = append(kept, s.state.Transactions[i])
		}
	}
	s.state.Transactions = kept
	return s.persistLocked()
}
