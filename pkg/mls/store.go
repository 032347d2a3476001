package mls

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
)

// ErrPersist wraps medium write failures. When a mutating operation returns
// it, the in-memory change has still been applied; only durability failed.
var ErrPersist = errors.New("persist protocol state")

// Config configures a protocol state store.
type Config struct {
	// StateKey is the medium key the protocol snapshot is stored under.
	// Default: "mls_state".
	StateKey string

	// EngineKey is the medium key the engine blob is stored under.
	// Default: "mls_engine_state".
	EngineKey string

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default medium keys.
func DefaultConfig() Config {
	return Config{
		StateKey:  "mls_state",
		EngineKey: "mls_engine_state",
	}
}

// Store is the persistent protocol state store. All indexes live in memory
// behind one mutex; every mutation rewrites the full snapshot into the medium
// before returning. Construction loads whatever the medium holds, treating
// missing or undecodable content as an empty store.
type Store struct {
	mu     sync.Mutex
	state  state
	engine *EngineStore

	medium storage.Medium
	cfg    Config
	logger *slog.Logger
}

var _ StorageProvider = (*Store)(nil)

// Open builds a store over medium. A decode failure of previously persisted
// content is logged and discarded, never returned: a corrupted snapshot must
// not prevent startup. A failing initial write is returned, since the medium
// is evidently unusable.
func Open(medium storage.Medium, cfg Config) (*Store, error) {
	def := DefaultConfig()
	if cfg.StateKey == "" {
		cfg.StateKey = def.StateKey
	}
	if cfg.EngineKey == "" {
		cfg.EngineKey = def.EngineKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		state:  newState(),
		engine: newEngineStore(),
		medium: medium,
		cfg:    cfg,
		logger: cfg.Logger,
	}

	if raw, ok, err := medium.GetItem(cfg.StateKey); err != nil {
		s.logger.Warn("reading protocol snapshot failed, starting empty", "key", cfg.StateKey, "error", err)
	} else if ok {
		if decoded, err := decodeSnapshot([]byte(raw)); err != nil {
			s.logger.Warn("protocol snapshot undecodable, starting empty", "key", cfg.StateKey, "error", err)
		} else {
			s.state = decoded
		}
	}

	if raw, ok, err := medium.GetItem(cfg.EngineKey); err != nil {
		s.logger.Warn("reading engine blob failed, starting empty", "key", cfg.EngineKey, "error", err)
	} else if ok {
		if values, err := decodeEngineSnapshot([]byte(raw)); err != nil {
			s.logger.Warn("engine blob undecodable, starting empty", "key", cfg.EngineKey, "error", err)
		} else {
			s.engine.values = values
		}
	}
	s.engine.owner = s

	// Write immediately so the medium reflects the loaded state.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// persistLocked snapshots both blobs. The two medium keys are independent, so
// the writes run concurrently; a crash between them leaving the blobs
// mutually inconsistent is an accepted limitation of the medium.
func (s *Store) persistLocked() error {
	stateDoc, err := s.state.encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	engineDoc, err := s.engine.encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	var g errgroup.Group
	g.Go(func() error { return s.medium.SetItem(s.cfg.StateKey, string(stateDoc)) })
	g.Go(func() error { return s.medium.SetItem(s.cfg.EngineKey, string(engineDoc)) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// persistEngine writes only the engine blob; the protocol indexes are
// untouched by engine mutations. Callers must hold s.mu so the encode and the
// medium write cannot interleave with a full snapshot write.
func (s *Store) persistEngine() error {
	doc, err := s.engine.encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.medium.SetItem(s.cfg.EngineKey, string(doc)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// EngineStorage returns the engine-owned blob store.
func (s *Store) EngineStorage() *EngineStore {
	return s.engine
}

// MediumKeys returns the medium keys this store persists under, for callers
// that need to wipe them.
func (s *Store) MediumKeys() (stateKey, engineKey string) {
	return s.cfg.StateKey, s.cfg.EngineKey
}

func (s *Store) AllGroups() ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]*Group, 0, len(s.state.groups))
	for _, g := range s.state.groups {
		groups = append(groups, g.clone())
	}
	return groups, nil
}

func (s *Store) FindGroupByMLSGroupID(id GroupID) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.state.groups[id.mapKey()]
	if !ok {
		return nil, nil
	}
	return g.clone(), nil
}

func (s *Store) FindGroupByNostrGroupID(id NostrGroupID) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.state.groupsByNostrID[id]
	if !ok {
		return nil, nil
	}
	return g.clone(), nil
}

func (s *Store) SaveGroup(group *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := group.clone()
	s.state.groups[stored.MLSGroupID.mapKey()] = stored
	s.state.groupsByNostrID[stored.NostrGroupID] = stored
	return s.persistLocked()
}

func (s *Store) Messages(id GroupID) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.state.messagesByGroup[id.mapKey()]
	out := make([]*Message, len(list))
	for i, m := range list {
		out[i] = m.clone()
	}
	return out, nil
}

func (s *Store) Admins(id GroupID) ([]PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.state.groups[id.mapKey()]
	if !ok {
		return []PublicKey{}, nil
	}
	return append([]PublicKey(nil), g.AdminPubkeys...), nil
}

func (s *Store) GroupRelays(id GroupID) ([]GroupRelay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.state.groupRelays[id.mapKey()]
	relays := make([]GroupRelay, 0, len(set))
	for _, relay := range set {
		relays = append(relays, relay)
	}
	sort.Slice(relays, func(i, j int) bool { return relays[i].RelayURL < relays[j].RelayURL })
	return relays, nil
}

func (s *Store) ReplaceGroupRelays(id GroupID, relayURLs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]GroupRelay, len(relayURLs))
	for _, url := range relayURLs {
		set[url] = GroupRelay{
			MLSGroupID: append(GroupID(nil), id...),
			RelayURL:   url,
		}
	}
	s.state.groupRelays[id.mapKey()] = set
	return s.persistLocked()
}

func (s *Store) GroupExporterSecret(id GroupID, epoch uint64) (*GroupExporterSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.state.exporterSecrets[exporterKey{groupID: id.mapKey(), epoch: epoch}]
	if !ok {
		return nil, nil
	}
	return secret.clone(), nil
}

func (s *Store) SaveGroupExporterSecret(secret *GroupExporterSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := secret.clone()
	key := exporterKey{groupID: stored.MLSGroupID.mapKey(), epoch: stored.Epoch}
	s.state.exporterSecrets[key] = stored
	return s.persistLocked()
}

func (s *Store) SaveMessage(message *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := message.clone()
	s.state.messages[stored.ID] = stored
	gid := stored.MLSGroupID.mapKey()
	s.state.messagesByGroup[gid] = append(s.state.messagesByGroup[gid], stored)
	return s.persistLocked()
}

func (s *Store) FindMessageByEventID(id EventID) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.state.messages[id]
	if !ok {
		return nil, nil
	}
	return m.clone(), nil
}

func (s *Store) SaveProcessedMessage(processed *ProcessedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := processed.clone()
	s.state.processedMessages[stored.WrapperEventID] = stored
	return s.persistLocked()
}

func (s *Store) FindProcessedMessageByEventID(id EventID) (*ProcessedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.state.processedMessages[id]
	if !ok {
		return nil, nil
	}
	return m.clone(), nil
}

func (s *Store) SaveWelcome(welcome *Welcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := welcome.clone()
	s.state.welcomes[stored.ID] = stored
	return s.persistLocked()
}

func (s *Store) FindWelcomeByEventID(id EventID) (*Welcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.state.welcomes[id]
	if !ok {
		return nil, nil
	}
	return w.clone(), nil
}

func (s *Store) PendingWelcomes() ([]*Welcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*Welcome
	for id, w := range s.state.welcomes {
		if _, done := s.state.processedWelcomes[id]; !done {
			pending = append(pending, w.clone())
		}
	}
	return pending, nil
}

func (s *Store) SaveProcessedWelcome(processed *ProcessedWelcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := processed.clone()
	s.state.processedWelcomes[stored.WrapperEventID] = stored
	return s.persistLocked()
}

func (s *Store) FindProcessedWelcomeByEventID(id EventID) (*ProcessedWelcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.state.processedWelcomes[id]
	if !ok {
		return nil, nil
	}
	return w.clone(), nil
}
