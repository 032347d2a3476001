package mls

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// snapshotVersion tags persisted documents so a future format change can be
// detected instead of silently misread.
const snapshotVersion = 1

// exporterKey is the composite index key for exporter secrets.
type exporterKey struct {
	groupID string // raw group id bytes
	epoch   uint64
}

// state holds every in-memory index of the protocol store. Group indexes are
// keyed by the raw id bytes; the hex encoding exists only in the snapshot.
type state struct {
	groups            map[string]*Group
	groupsByNostrID   map[NostrGroupID]*Group
	groupRelays       map[string]map[string]GroupRelay // group id -> relay URL -> relay
	welcomes          map[EventID]*Welcome
	processedWelcomes map[EventID]*ProcessedWelcome
	messages          map[EventID]*Message
	messagesByGroup   map[string][]*Message
	processedMessages map[EventID]*ProcessedMessage
	exporterSecrets   map[exporterKey]*GroupExporterSecret
}

func newState() state {
	return state{
		groups:            make(map[string]*Group),
		groupsByNostrID:   make(map[NostrGroupID]*Group),
		groupRelays:       make(map[string]map[string]GroupRelay),
		welcomes:          make(map[EventID]*Welcome),
		processedWelcomes: make(map[EventID]*ProcessedWelcome),
		messages:          make(map[EventID]*Message),
		messagesByGroup:   make(map[string][]*Message),
		processedMessages: make(map[EventID]*ProcessedMessage),
		exporterSecrets:   make(map[exporterKey]*GroupExporterSecret),
	}
}

// snapshot is the persisted form of state. Binary keys become hex strings; the
// exporter-secret composite key becomes "hex(group id):epoch".
type snapshot struct {
	Version           int                            `json:"v"`
	Groups            map[string]*Group              `json:"groups"`
	GroupsByNostrID   map[string]*Group              `json:"groups_by_nostr_id"`
	GroupRelays       map[string][]GroupRelay        `json:"group_relays"`
	Welcomes          map[string]*Welcome            `json:"welcomes"`
	ProcessedWelcomes map[string]*ProcessedWelcome   `json:"processed_welcomes"`
	Messages          map[string]*Message            `json:"messages"`
	MessagesByGroup   map[string][]*Message          `json:"messages_by_group"`
	ProcessedMessages map[string]*ProcessedMessage   `json:"processed_messages"`
	ExporterSecrets   map[string]*GroupExporterSecret `json:"group_exporter_secrets"`
}

func (s *state) encode() ([]byte, error) {
	doc := snapshot{
		Version:           snapshotVersion,
		Groups:            make(map[string]*Group, len(s.groups)),
		GroupsByNostrID:   make(map[string]*Group, len(s.groupsByNostrID)),
		GroupRelays:       make(map[string][]GroupRelay, len(s.groupRelays)),
		Welcomes:          make(map[string]*Welcome, len(s.welcomes)),
		ProcessedWelcomes: make(map[string]*ProcessedWelcome, len(s.processedWelcomes)),
		Messages:          make(map[string]*Message, len(s.messages)),
		MessagesByGroup:   make(map[string][]*Message, len(s.messagesByGroup)),
		ProcessedMessages: make(map[string]*ProcessedMessage, len(s.processedMessages)),
		ExporterSecrets:   make(map[string]*GroupExporterSecret, len(s.exporterSecrets)),
	}

	for k, v := range s.groups {
		doc.Groups[GroupID(k).Hex()] = v
	}
	for k, v := range s.groupsByNostrID {
		doc.GroupsByNostrID[k.Hex()] = v
	}
	for k, relays := range s.groupRelays {
		list := make([]GroupRelay, 0, len(relays))
		for _, relay := range relays {
			list = append(list, relay)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].RelayURL < list[j].RelayURL })
		doc.GroupRelays[GroupID(k).Hex()] = list
	}
	for k, v := range s.welcomes {
		doc.Welcomes[k.Hex()] = v
	}
	for k, v := range s.processedWelcomes {
		doc.ProcessedWelcomes[k.Hex()] = v
	}
	for k, v := range s.messages {
		doc.Messages[k.Hex()] = v
	}
	for k, v := range s.messagesByGroup {
		doc.MessagesByGroup[GroupID(k).Hex()] = v
	}
	for k, v := range s.processedMessages {
		doc.ProcessedMessages[k.Hex()] = v
	}
	for k, v := range s.exporterSecrets {
		key := GroupID(k.groupID).Hex() + ":" + strconv.FormatUint(k.epoch, 10)
		doc.ExporterSecrets[key] = v
	}

	return json.Marshal(doc)
}

// decodeSnapshot rebuilds the full index set from a persisted document. Any
// malformed key or unparseable entry rejects the whole document; the caller
// falls back to an empty state.
func decodeSnapshot(data []byte) (state, error) {
	var doc snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return state{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return state{}, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	s := newState()

	for k, v := range doc.Groups {
		id, err := ParseGroupID(k)
		if err != nil {
			return state{}, err
		}
		s.groups[id.mapKey()] = v
	}
	for k, v := range doc.GroupsByNostrID {
		id, err := ParseNostrGroupID(k)
		if err != nil {
			return state{}, err
		}
		s.groupsByNostrID[id] = v
	}
	for k, relays := range doc.GroupRelays {
		id, err := ParseGroupID(k)
		if err != nil {
			return state{}, err
		}
		set := make(map[string]GroupRelay, len(relays))
		for _, relay := range relays {
			set[relay.RelayURL] = relay
		}
		s.groupRelays[id.mapKey()] = set
	}
	for k, v := range doc.Welcomes {
		id, err := ParseEventID(k)
		if err != nil {
			return state{}, err
		}
		s.welcomes[id] = v
	}
	for k, v := range doc.ProcessedWelcomes {
		id, err := ParseEventID(k)
		if err != nil {
			return state{}, err
		}
		s.processedWelcomes[id] = v
	}
	for k, v := range doc.Messages {
		id, err := ParseEventID(k)
		if err != nil {
			return state{}, err
		}
		s.messages[id] = v
	}
	for k, v := range doc.MessagesByGroup {
		id, err := ParseGroupID(k)
		if err != nil {
			return state{}, err
		}
		s.messagesByGroup[id.mapKey()] = v
	}
	for k, v := range doc.ProcessedMessages {
		id, err := ParseEventID(k)
		if err != nil {
			return state{}, err
		}
		s.processedMessages[id] = v
	}
	for k, v := range doc.ExporterSecrets {
		id, epoch, err := parseExporterKey(k)
		if err != nil {
			return state{}, err
		}
		s.exporterSecrets[exporterKey{groupID: id.mapKey(), epoch: epoch}] = v
	}

	return s, nil
}

// parseExporterKey splits a "hex(group id):epoch" composite key. The epoch is
// always the part after the last colon, so group ids are unconstrained.
func parseExporterKey(key string) (GroupID, uint64, error) {
	sep := strings.LastIndexByte(key, ':')
	if sep < 0 {
		return nil, 0, fmt.Errorf("exporter secret key %q: missing separator", key)
	}
	id, err := ParseGroupID(key[:sep])
	if err != nil {
		return nil, 0, err
	}
	epoch, err := strconv.ParseUint(key[sep+1:], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("exporter secret key %q: bad epoch: %w", key, err)
	}
	return id, epoch, nil
}
