package mls

// GroupStorage is the group-metadata surface the MLS engine drives.
type GroupStorage interface {
	// AllGroups returns every stored group, order unspecified.
	AllGroups() ([]*Group, error)

	// FindGroupByMLSGroupID returns the group for an engine group id, or nil.
	FindGroupByMLSGroupID(id GroupID) (*Group, error)

	// FindGroupByNostrGroupID returns the group for a nostr group id, or nil.
	FindGroupByNostrGroupID(id NostrGroupID) (*Group, error)

	// SaveGroup upserts a group into both id indexes.
	SaveGroup(group *Group) error

	// Messages returns the group's messages in insertion order. An unknown
	// group yields an empty slice.
	Messages(id GroupID) ([]*Message, error)

	// Admins returns the group's admin public keys, empty if the group is
	// unknown.
	Admins(id GroupID) ([]PublicKey, error)

	// GroupRelays returns the group's relay set.
	GroupRelays(id GroupID) ([]GroupRelay, error)

	// ReplaceGroupRelays replaces the group's relay set wholesale; the new
	// set supersedes the old one, this is not a merge.
	ReplaceGroupRelays(id GroupID, relayURLs []string) error

	// GroupExporterSecret returns the secret for (group, epoch), or nil.
	GroupExporterSecret(id GroupID, epoch uint64) (*GroupExporterSecret, error)

	// SaveGroupExporterSecret stores a secret under its (group, epoch) key,
	// last write wins. Epoch monotonicity is the engine's responsibility.
	SaveGroupExporterSecret(secret *GroupExporterSecret) error
}

// MessageStorage is the message surface the MLS engine drives.
type MessageStorage interface {
	// SaveMessage indexes a message by event id and appends it to its
	// group's ordered list.
	SaveMessage(message *Message) error

	// FindMessageByEventID returns a message by its event id, or nil.
	FindMessageByEventID(id EventID) (*Message, error)

	// SaveProcessedMessage records that a wrapper event has been applied.
	SaveProcessedMessage(processed *ProcessedMessage) error

	// FindProcessedMessageByEventID returns the dedup marker for a wrapper
	// event id, or nil.
	FindProcessedMessageByEventID(id EventID) (*ProcessedMessage, error)
}

// WelcomeStorage is the invitation surface the MLS engine drives.
type WelcomeStorage interface {
	// SaveWelcome stores an invitation by its event id.
	SaveWelcome(welcome *Welcome) error

	// FindWelcomeByEventID returns a welcome by its event id, or nil.
	FindWelcomeByEventID(id EventID) (*Welcome, error)

	// PendingWelcomes returns every welcome whose wrapper event has no
	// ProcessedWelcome marker yet. Computed fresh on each call.
	PendingWelcomes() ([]*Welcome, error)

	// SaveProcessedWelcome records that a welcome wrapper has been applied.
	SaveProcessedWelcome(processed *ProcessedWelcome) error

	// FindProcessedWelcomeByEventID returns the dedup marker for a wrapper
	// event id, or nil.
	FindProcessedWelcomeByEventID(id EventID) (*ProcessedWelcome, error)
}

// StorageProvider is everything the MLS engine needs from its storage backend:
// the three entity surfaces plus the opaque key-value store it keeps its
// cryptographic state in.
type StorageProvider interface {
	GroupStorage
	MessageStorage
	WelcomeStorage

	// EngineStorage exposes the engine-owned blob store.
	EngineStorage() *EngineStore
}
