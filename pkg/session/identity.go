package session

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// identityMediumKey is where the hex-encoded Nostr secret key lives in the
// medium, matching what the web front end writes.
const identityMediumKey = "nostr_secret_key"

// Identity is the session's Nostr keypair.
type Identity struct {
	key *secp256k1.PrivateKey
}

// SecretHex returns the 32-byte secret key, hex encoded.
func (id *Identity) SecretHex() string {
	return hex.EncodeToString(id.key.Serialize())
}

// PublicKeyHex returns the x-only public key, hex encoded.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.xOnlyPubKey())
}

// Npub returns the public key in bech32 npub form.
func (id *Identity) Npub() (string, error) {
	npub, err := bech32.EncodeFromBase256("npub", id.xOnlyPubKey())
	if err != nil {
		return "", fmt.Errorf("encode npub: %w", err)
	}
	return npub, nil
}

// Nsec returns the secret key in bech32 nsec form.
func (id *Identity) Nsec() (string, error) {
	nsec, err := bech32.EncodeFromBase256("nsec", id.key.Serialize())
	if err != nil {
		return "", fmt.Errorf("encode nsec: %w", err)
	}
	return nsec, nil
}

// xOnlyPubKey drops the parity byte from the compressed point, per the Nostr
// key format.
func (id *Identity) xOnlyPubKey() []byte {
	return id.key.PubKey().SerializeCompressed()[1:]
}

// GenerateIdentity creates a fresh keypair and stores it in the medium,
// replacing any existing one.
func (m *Manager) GenerateIdentity() (*Identity, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	id := &Identity{key: key}
	if err := m.medium.SetItem(identityMediumKey, id.SecretHex()); err != nil {
		return nil, fmt.Errorf("store identity: %w", err)
	}
	return id, nil
}

// Identity returns the stored keypair, or nil if none exists. A stored value
// that does not parse as a 32-byte hex secret is an error, not an absent
// identity; wiping a key is an explicit operation.
func (m *Manager) Identity() (*Identity, error) {
	raw, ok, err := m.medium.GetItem(identityMediumKey)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	if !ok {
		return nil, nil
	}

	secret, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse stored identity: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("parse stored identity: got %d bytes, want 32", len(secret))
	}
	return &Identity{key: secp256k1.PrivKeyFromBytes(secret)}, nil
}

// GetOrCreateIdentity returns the stored keypair, generating and storing one
// if none exists yet.
func (m *Manager) GetOrCreateIdentity() (*Identity, error) {
	id, err := m.Identity()
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}
	return m.GenerateIdentity()
}

// ClearIdentity removes the stored keypair.
func (m *Manager) ClearIdentity() error {
	return m.medium.RemoveItem(identityMediumKey)
}
