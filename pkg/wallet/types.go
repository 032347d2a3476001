// Package wallet implements the persistent state store backing the ecash
// wallet engine: mint registrations, keysets, key material, quotes, proofs,
// derivation counters, and the transaction log. Like the protocol store, all
// indexes live in memory and are snapshotted into a Medium after every
// mutation.
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MintURL identifies a mint by its base URL.
type MintURL string

// CurrencyUnit is the unit a keyset or proof is denominated in.
type CurrencyUnit string

const (
	UnitSat  CurrencyUnit = "sat"
	UnitMsat CurrencyUnit = "msat"
	UnitUSD  CurrencyUnit = "usd"
)

// MintInfo is the metadata a mint advertises about itself. A mint can be
// registered without any metadata.
type MintInfo struct {
	Name            string `json:"name,omitempty"`
	Version         string `json:"version,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionLong string `json:"description_long,omitempty"`
	IconURL         string `json:"icon_url,omitempty"`
	MOTD            string `json:"motd,omitempty"`
}

// KeysetID is a mint-assigned keyset identifier (hex string).
type KeysetID string

// KeySetInfo describes one keyset offered by a mint.
type KeySetInfo struct {
	ID          KeysetID     `json:"id"`
	Unit        CurrencyUnit `json:"unit"`
	Active      bool         `json:"active"`
	InputFeePPK uint64       `json:"input_fee_ppk"`
}

// Keys is the keyset's public key per amount, pubkeys hex encoded.
type Keys map[uint64]string

// QuoteState is the lifecycle state of a mint or melt quote.
type QuoteState string

const (
	QuoteStateUnpaid  QuoteState = "unpaid"
	QuoteStatePaid    QuoteState = "paid"
	QuoteStatePending QuoteState = "pending"
	QuoteStateIssued  QuoteState = "issued"
)

// MintQuote is a pending request to mint new ecash against a payment.
type MintQuote struct {
	ID      string       `json:"id"`
	MintURL MintURL      `json:"mint_url"`
	Amount  uint64       `json:"amount"`
	Unit    CurrencyUnit `json:"unit"`
	Request string       `json:"request"`
	State   QuoteState   `json:"state"`
	Expiry  int64        `json:"expiry"`
}

// MeltQuote is a pending request to pay an invoice with ecash.
type MeltQuote struct {
	ID              string       `json:"id"`
	MintURL         MintURL      `json:"mint_url"`
	Amount          uint64       `json:"amount"`
	Unit            CurrencyUnit `json:"unit"`
	Request         string       `json:"request"`
	FeeReserve      uint64       `json:"fee_reserve"`
	State           QuoteState   `json:"state"`
	Expiry          int64        `json:"expiry"`
	PaymentPreimage string       `json:"payment_preimage,omitempty"`
}

// ProofState is the spend state of an ecash note.
type ProofState string

const (
	ProofStateUnspent      ProofState = "unspent"
	ProofStatePending      ProofState = "pending"
	ProofStateReserved     ProofState = "reserved"
	ProofStatePendingSpent ProofState = "pending_spent"
	ProofStateSpent        ProofState = "spent"
)

// SpendingConditionKind names a spending-condition scheme.
type SpendingConditionKind string

const (
	ConditionP2PK SpendingConditionKind = "p2pk"
	ConditionHTLC SpendingConditionKind = "htlc"
)

// SpendingCondition locks a proof to a condition (a public key for p2pk, a
// hash for htlc). The struct is comparable so it can be matched in filters.
type SpendingCondition struct {
	Kind SpendingConditionKind `json:"kind"`
	Data string                `json:"data"`
}

// Proof is one blind-signed ecash note.
type Proof struct {
	Amount   uint64   `json:"amount"`
	KeysetID KeysetID `json:"keyset_id"`
	Secret   string   `json:"secret"`
	C        string   `json:"c"`
	Witness  string   `json:"witness,omitempty"`
}

// ProofInfo is a stored proof plus the bookkeeping the wallet tracks for it.
// Y is the hex-encoded curve point derived from the secret; it uniquely
// identifies the proof.
type ProofInfo struct {
	Proof             Proof              `json:"proof"`
	Y                 string             `json:"y"`
	MintURL           MintURL            `json:"mint_url"`
	State             ProofState         `json:"state"`
	SpendingCondition *SpendingCondition `json:"spending_condition,omitempty"`
	Unit              CurrencyUnit       `json:"unit"`
}

func (p *ProofInfo) clone() ProofInfo {
	out := *p
	if p.SpendingCondition != nil {
		cond := *p.SpendingCondition
		out.SpendingCondition = &cond
	}
	return out
}

// TransactionDirection says whether value entered or left the wallet.
type TransactionDirection string

const (
	DirectionIncoming TransactionDirection = "incoming"
	DirectionOutgoing TransactionDirection = "outgoing"
)

// TransactionID is the content-derived identifier of a transaction: the
// SHA-256 digest of its ordered proof identifier (Y) set.
type TransactionID [32]byte

func (id TransactionID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id TransactionID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *TransactionID) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode transaction id: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("decode transaction id: got %d bytes, want 32", len(decoded))
	}
	copy(id[:], decoded)
	return nil
}

// ParseTransactionID decodes a 64-character hex transaction id.
func ParseTransactionID(s string) (TransactionID, error) {
	var id TransactionID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// Transaction is one entry in the append-only transaction log.
type Transaction struct {
	MintURL   MintURL              `json:"mint_url"`
	Direction TransactionDirection `json:"direction"`
	Amount    uint64               `json:"amount"`
	Fee       uint64               `json:"fee"`
	Unit      CurrencyUnit         `json:"unit"`
	Ys        []string             `json:"ys"`
	Timestamp int64                `json:"timestamp"`
	Memo      string               `json:"memo,omitempty"`
	QuoteID   string               `json:"quote_id,omitempty"`
}

// ID derives the transaction's identifier from its Y set.
func (t *Transaction) ID() TransactionID {
	h := sha256.New()
	for _, y := range t.Ys {
		h.Write([]byte(y))
	}
	var id TransactionID
	copy(id[:], h.Sum(nil))
	return id
}

func (t *Transaction) clone() Transaction {
	out := *t
	out.Ys = append([]string(nil), t.Ys...)
	return out
}

// ProofFilter narrows GetProofs results. Nil fields are wildcards.
type ProofFilter struct {
	MintURL *MintURL
	Unit    *CurrencyUnit

	// States matches proofs whose state is in the slice. Nil is a wildcard.
	States []ProofState

	// SpendingConditions matches proofs locked to one of the given
	// conditions. Nil is a wildcard. A proof with no condition never
	// matches a concrete condition filter.
	SpendingConditions []SpendingCondition
}

// TransactionFilter narrows ListTransactions results. Nil fields are
// wildcards.
type TransactionFilter struct {
	MintURL   *MintURL
	Direction *TransactionDirection
	Unit      *CurrencyUnit
}
