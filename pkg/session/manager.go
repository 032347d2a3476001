// Package session owns the per-process store handles. Both state stores keep
// a divergent in-memory copy of whatever they were constructed from, so every
// caller in a process must share one instance per store; the Manager
// constructs each store once and hands the same handle to all callers.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/mls"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/wallet"
)

// Config configures a session.
type Config struct {
	// MLS configures the protocol state store. Zero value uses defaults.
	MLS mls.Config

	// Wallet configures the wallet state store. Zero value uses defaults.
	Wallet wallet.Config

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger
}

// Manager lazily constructs and caches one store of each kind over a shared
// medium.
type Manager struct {
	medium storage.Medium
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	mls    *mls.Store
	wallet *wallet.Store
}

// NewManager creates a session manager over medium.
func NewManager(medium storage.Medium, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MLS.Logger == nil {
		cfg.MLS.Logger = cfg.Logger
	}
	if cfg.Wallet.Logger == nil {
		cfg.Wallet.Logger = cfg.Logger
	}
	return &Manager{medium: medium, cfg: cfg, logger: cfg.Logger}
}

// Medium returns the underlying persistence medium.
func (m *Manager) Medium() storage.Medium {
	return m.medium
}

// MLS returns the shared protocol state store, constructing it on first use.
func (m *Manager) MLS() (*mls.Store, error) {
	m.mu.RLock()
	if m.mls != nil {
		defer m.mu.RUnlock()
		return m.mls, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock
	if m.mls != nil {
		return m.mls, nil
	}

	store, err := mls.Open(m.medium, m.cfg.MLS)
	if err != nil {
		return nil, err
	}
	m.mls = store
	return store, nil
}

// Wallet returns the shared wallet state store, constructing it on first use.
func (m *Manager) Wallet() (*wallet.Store, error) {
	m.mu.RLock()
	if m.wallet != nil {
		defer m.mu.RUnlock()
		return m.wallet, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wallet != nil {
		return m.wallet, nil
	}

	store, err := wallet.Open(m.medium, m.cfg.Wallet)
	if err != nil {
		return nil, err
	}
	m.wallet = store
	return store, nil
}

// Clear drops the cached store handles and wipes their blobs from the medium.
// Meant for identity switches; stores handed out earlier must not be used
// afterwards.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, key := range m.mediumKeys() {
		errs = append(errs, m.medium.RemoveItem(key))
	}
	m.mls = nil
	m.wallet = nil
	return errors.Join(errs...)
}

// mediumKeys resolves the keys the stores persist under, whether or not the
// stores have been constructed yet.
func (m *Manager) mediumKeys() []string {
	mlsCfg := m.cfg.MLS
	def := mls.DefaultConfig()
	if mlsCfg.StateKey == "" {
		mlsCfg.StateKey = def.StateKey
	}
	if mlsCfg.EngineKey == "" {
		mlsCfg.EngineKey = def.EngineKey
	}
	walletKey := m.cfg.Wallet.StateKey
	if walletKey == "" {
		walletKey = wallet.DefaultConfig().StateKey
	}
	return []string{mlsCfg.StateKey, mlsCfg.EngineKey, walletKey}
}
