package storage

// Medium abstracts the string-keyed blob medium the state stores persist into.
// It mirrors the web-storage contract the browser build runs against: get, set,
// remove, no transactions across keys, values expected to stay reasonably small.
//
// Absence of a key is reported through the bool return, never as an error.
type Medium interface {
	// GetItem returns the value stored under key, or ("", false, nil) if the
	// key is not present.
	GetItem(key string) (string, bool, error)

	// SetItem stores value under key, replacing any previous value. A failed
	// write (quota, backend error) is an ordinary error; callers decide how
	// much they care.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error
}
