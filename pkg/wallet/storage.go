package wallet

// Database is the persistence surface the wallet engine drives. Absent
// entities come back as nil (or empty collections), never as errors.
type Database interface {
	// Mint registry. A mint can be registered with or without metadata.
	AddMint(url MintURL, info *MintInfo) error
	RemoveMint(url MintURL) error
	GetMint(url MintURL) (*MintInfo, error)
	GetMints() (map[MintURL]*MintInfo, error)

	// UpdateMintURL renames a mint. The registry entry and the per-mint
	// keyset index move to the new URL; records that embed the URL per row
	// (proofs, transactions) are not rewritten.
	UpdateMintURL(oldURL, newURL MintURL) error

	// Keysets, dual-keyed: per-mint list and flat id lookup.
	AddMintKeysets(url MintURL, keysets []KeySetInfo) error
	GetMintKeysets(url MintURL) ([]KeySetInfo, error)
	GetKeysetByID(id KeysetID) (*KeySetInfo, error)

	// Quotes.
	AddMintQuote(quote MintQuote) error
	GetMintQuote(quoteID string) (*MintQuote, error)
	GetMintQuotes() ([]MintQuote, error)
	RemoveMintQuote(quoteID string) error
	AddMeltQuote(quote MeltQuote) error
	GetMeltQuote(quoteID string) (*MeltQuote, error)
	GetMeltQuotes() ([]MeltQuote, error)
	RemoveMeltQuote(quoteID string) error

	// Key material per keyset.
	AddKeys(id KeysetID, keys Keys) error
	GetKeys(id KeysetID) (Keys, error)
	RemoveKeys(id KeysetID) error

	// UpdateProofs removes the proofs whose Y is in removedYs, then adds
	// the given proofs, as one atomic step: no reader observes the state
	// in between.
	UpdateProofs(added []ProofInfo, removedYs []string) error

	// GetProofs returns the proofs matching every supplied filter field.
	GetProofs(filter ProofFilter) ([]ProofInfo, error)

	// UpdateProofsState transitions the matching proofs to newState.
	// Unknown Ys are silently ignored.
	UpdateProofsState(ys []string, newState ProofState) error

	// IncrementKeysetCounter advances the keyset's derivation counter by
	// count and returns the value after the increment. An unseen keyset
	// starts at zero.
	IncrementKeysetCounter(id KeysetID, count uint32) (uint32, error)

	// Transaction log.
	AddTransaction(tx Transaction) error
	GetTransaction(id TransactionID) (*Transaction, error)
	ListTransactions(filter TransactionFilter) ([]Transaction, error)
	RemoveTransaction(id TransactionID) error
}
