// Package dsmedium bridges any go-datastore implementation into the Medium
// contract, so the state stores can persist into whatever datastore a host
// application already carries.
package dsmedium

import (
	"context"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
)

type Medium struct {
	ds ds.Datastore
}

var _ storage.Medium = (*Medium)(nil)

// Wrap adapts a datastore. The datastore must already be safe for the caller's
// concurrency needs (wrap with dssync.MutexWrap if in doubt).
func Wrap(d ds.Datastore) *Medium {
	return &Medium{ds: d}
}

func (m *Medium) GetItem(key string) (string, bool, error) {
	value, err := m.ds.Get(context.Background(), ds.NewKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return string(value), true, nil
}

func (m *Medium) SetItem(key, value string) error {
	if err := m.ds.Put(context.Background(), ds.NewKey(key), []byte(value)); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (m *Medium) RemoveItem(key string) error {
	if err := m.ds.Delete(context.Background(), ds.NewKey(key)); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
