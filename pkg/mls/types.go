// Package mls implements the persistent state store backing the MLS group
// messaging engine: group metadata, messages, welcomes and their dedup
// markers, per-epoch exporter secrets, and the engine's own opaque key-value
// state. All indexes live in memory and are snapshotted into a Medium after
// every mutation so they survive a restart.
package mls

import (
	"encoding/hex"
	"fmt"
)

// GroupID is the opaque byte-string identifier the MLS engine assigns to a
// group. Its length is engine-defined; treat it as a black box.
type GroupID []byte

func (id GroupID) Hex() string {
	return hex.EncodeToString(id)
}

// mapKey returns the raw bytes as a string for use as an index key.
func (id GroupID) mapKey() string {
	return string(id)
}

func (id GroupID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id)), nil
}

func (id *GroupID) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode group id: %w", err)
	}
	*id = decoded
	return nil
}

// ParseGroupID decodes a hex-encoded group id.
func ParseGroupID(s string) (GroupID, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode group id: %w", err)
	}
	return GroupID(decoded), nil
}

// EventID is a 32-byte Nostr event identifier.
type EventID [32]byte

func (id EventID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id EventID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *EventID) UnmarshalText(text []byte) error {
	return decode32(text, (*[32]byte)(id), "event id")
}

// ParseEventID decodes a 64-character hex event id.
func ParseEventID(s string) (EventID, error) {
	var id EventID
	err := decode32([]byte(s), (*[32]byte)(&id), "event id")
	return id, err
}

// PublicKey is a 32-byte x-only Nostr public key.
type PublicKey [32]byte

func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.Hex()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	return decode32(text, (*[32]byte)(pk), "public key")
}

// NostrGroupID is the fixed 32-byte group identifier the Nostr transport layer
// uses to reference a group, independent of the engine's GroupID.
type NostrGroupID [32]byte

func (id NostrGroupID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id NostrGroupID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *NostrGroupID) UnmarshalText(text []byte) error {
	return decode32(text, (*[32]byte)(id), "nostr group id")
}

// ParseNostrGroupID decodes a 64-character hex nostr group id.
func ParseNostrGroupID(s string) (NostrGroupID, error) {
	var id NostrGroupID
	err := decode32([]byte(s), (*[32]byte)(&id), "nostr group id")
	return id, err
}

func decode32(text []byte, out *[32]byte, what string) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("decode %s: got %d bytes, want 32", what, len(decoded))
	}
	copy(out[:], decoded)
	return nil
}

// HexBytes is a byte slice that marshals as hex instead of base64.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

// Timestamp is a unix timestamp in seconds.
type Timestamp int64

// GroupState tracks whether we still hold a usable MLS state for the group.
type GroupState string

const (
	GroupStateActive   GroupState = "active"
	GroupStateInactive GroupState = "inactive"
	GroupStatePending  GroupState = "pending"
)

// Group is the application-level metadata for one MLS group. It is indexed by
// both its engine GroupID and its NostrGroupID; the two indexes are always
// written together.
type Group struct {
	MLSGroupID    GroupID      `json:"mls_group_id"`
	NostrGroupID  NostrGroupID `json:"nostr_group_id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	ImageHash     HexBytes     `json:"image_hash,omitempty"`
	AdminPubkeys  []PublicKey  `json:"admin_pubkeys"`
	LastMessageID *EventID     `json:"last_message_id,omitempty"`
	LastMessageAt *Timestamp   `json:"last_message_at,omitempty"`
	Epoch         uint64       `json:"epoch"`
	State         GroupState   `json:"state"`
}

// clone returns a copy that shares no mutable memory with the receiver.
func (g *Group) clone() *Group {
	out := *g
	out.MLSGroupID = append(GroupID(nil), g.MLSGroupID...)
	out.ImageHash = append(HexBytes(nil), g.ImageHash...)
	out.AdminPubkeys = append([]PublicKey(nil), g.AdminPubkeys...)
	if g.LastMessageID != nil {
		id := *g.LastMessageID
		out.LastMessageID = &id
	}
	if g.LastMessageAt != nil {
		at := *g.LastMessageAt
		out.LastMessageAt = &at
	}
	return &out
}

// GroupRelay associates a group with one relay endpoint it is published on.
type GroupRelay struct {
	MLSGroupID GroupID `json:"mls_group_id"`
	RelayURL   string  `json:"relay_url"`
}

// GroupExporterSecret is the exported secret for one (group, epoch) pair, used
// by the transport layer to derive message encryption keys.
type GroupExporterSecret struct {
	MLSGroupID GroupID  `json:"mls_group_id"`
	Epoch      uint64   `json:"epoch"`
	Secret     HexBytes `json:"secret"`
}

func (s *GroupExporterSecret) clone() *GroupExporterSecret {
	out := *s
	out.MLSGroupID = append(GroupID(nil), s.MLSGroupID...)
	out.Secret = append(HexBytes(nil), s.Secret...)
	return &out
}

// MessageState tracks the lifecycle of an application message.
type MessageState string

const (
	MessageStateCreated   MessageState = "created"
	MessageStateProcessed MessageState = "processed"
	MessageStateDeleted   MessageState = "deleted"
)

// Message is one decrypted application message in a group.
type Message struct {
	ID             EventID      `json:"id"`
	Pubkey         PublicKey    `json:"pubkey"`
	Kind           uint16       `json:"kind"`
	MLSGroupID     GroupID      `json:"mls_group_id"`
	CreatedAt      Timestamp    `json:"created_at"`
	Content        string       `json:"content"`
	Tags           [][]string   `json:"tags,omitempty"`
	WrapperEventID EventID      `json:"wrapper_event_id"`
	State          MessageState `json:"state"`
}

func (m *Message) clone() *Message {
	out := *m
	out.MLSGroupID = append(GroupID(nil), m.MLSGroupID...)
	if m.Tags != nil {
		out.Tags = make([][]string, len(m.Tags))
		for i, tag := range m.Tags {
			out.Tags[i] = append([]string(nil), tag...)
		}
	}
	return &out
}

// ProcessedMessageState records the outcome of processing a wrapper event.
type ProcessedMessageState string

const (
	ProcessedMessageStateProcessed ProcessedMessageState = "processed"
	ProcessedMessageStateFailed    ProcessedMessageState = "failed"
)

// ProcessedMessage is the dedup marker for a message wrapper event: its
// presence means the wrapper has already been applied and must not be
// reapplied.
type ProcessedMessage struct {
	WrapperEventID EventID               `json:"wrapper_event_id"`
	MessageEventID *EventID              `json:"message_event_id,omitempty"`
	ProcessedAt    Timestamp             `json:"processed_at"`
	State          ProcessedMessageState `json:"state"`
	FailureReason  string                `json:"failure_reason,omitempty"`
}

func (m *ProcessedMessage) clone() *ProcessedMessage {
	out := *m
	if m.MessageEventID != nil {
		id := *m.MessageEventID
		out.MessageEventID = &id
	}
	return &out
}

// WelcomeState tracks what the user decided about an invitation.
type WelcomeState string

const (
	WelcomeStatePending  WelcomeState = "pending"
	WelcomeStateAccepted WelcomeState = "accepted"
	WelcomeStateDeclined WelcomeState = "declined"
	WelcomeStateIgnored  WelcomeState = "ignored"
)

// Welcome is an unconsumed group invitation. A welcome with no corresponding
// ProcessedWelcome marker is pending.
type Welcome struct {
	ID                EventID      `json:"id"`
	MLSGroupID        GroupID      `json:"mls_group_id"`
	NostrGroupID      NostrGroupID `json:"nostr_group_id"`
	GroupName         string       `json:"group_name"`
	GroupDescription  string       `json:"group_description"`
	GroupAdminPubkeys []PublicKey  `json:"group_admin_pubkeys"`
	GroupRelays       []string     `json:"group_relays"`
	Welcomer          PublicKey    `json:"welcomer"`
	MemberCount       uint32       `json:"member_count"`
	State             WelcomeState `json:"state"`
	WrapperEventID    EventID      `json:"wrapper_event_id"`
}

func (w *Welcome) clone() *Welcome {
	out := *w
	out.MLSGroupID = append(GroupID(nil), w.MLSGroupID...)
	out.GroupAdminPubkeys = append([]PublicKey(nil), w.GroupAdminPubkeys...)
	out.GroupRelays = append([]string(nil), w.GroupRelays...)
	return &out
}

// ProcessedWelcomeState records the outcome of processing a welcome wrapper.
type ProcessedWelcomeState string

const (
	ProcessedWelcomeStateProcessed ProcessedWelcomeState = "processed"
	ProcessedWelcomeStateFailed    ProcessedWelcomeState = "failed"
)

// ProcessedWelcome is the dedup marker for a welcome wrapper event.
type ProcessedWelcome struct {
	WrapperEventID EventID               `json:"wrapper_event_id"`
	WelcomeEventID *EventID              `json:"welcome_event_id,omitempty"`
	ProcessedAt    Timestamp             `json:"processed_at"`
	State          ProcessedWelcomeState `json:"state"`
	FailureReason  string                `json:"failure_reason,omitempty"`
}

func (w *ProcessedWelcome) clone() *ProcessedWelcome {
	out := *w
	if w.WelcomeEventID != nil {
		id := *w.WelcomeEventID
		out.WelcomeEventID = &id
	}
	return &out
}
