// Package leveldb provides a storage.Medium backed by a LevelDB database, for
// desktop front ends that want snapshot persistence without SQLite.
package leveldb

import (
	"fmt"

	goleveldb "github.com/syndtr/goleveldb/leveldb"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
)

type Medium struct {
	db *goleveldb.DB
}

var _ storage.Medium = (*Medium)(nil)

// Open creates or opens a LevelDB database at path.
func Open(path string) (*Medium, error) {
	db, err := goleveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Medium{db: db}, nil
}

func (m *Medium) Close() error {
	return m.db.Close()
}

func (m *Medium) GetItem(key string) (string, bool, error) {
	value, err := m.db.Get([]byte(key), nil)
	if err == goleveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return string(value), true, nil
}

func (m *Medium) SetItem(key, value string) error {
	if err := m.db.Put([]byte(key), []byte(value), nil); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (m *Medium) RemoveItem(key string) error {
	if err := m.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
