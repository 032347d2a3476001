package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// cacheSize bounds the read cache. Snapshot blobs are few but large; the cache
// mostly exists so repeated loads during a session never hit disk.
const cacheSize = 128

// Medium is a storage.Medium backed by a single-table SQLite database. Reads
// are fronted by an LRU cache; writes go through to the database and update
// the cache so a following read sees the new value without a disk round trip.
type Medium struct {
	db     *sql.DB
	dbPath string
	cache  *lru.Cache[string, string]
}

var _ storage.Medium = (*Medium)(nil)

// Open creates or opens the medium database under dir.
func Open(dir string) (*Medium, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create medium directory: %w", err)
	}

	dbPath := filepath.Join(dir, "medium.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)"+ // Wait on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create read cache: %w", err)
	}

	return &Medium{db: db, dbPath: dbPath, cache: cache}, nil
}

func (m *Medium) Close() error {
	return m.db.Close()
}

// DBPath returns the path of the backing database file.
func (m *Medium) DBPath() string {
	return m.dbPath
}

func (m *Medium) GetItem(key string) (string, bool, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, true, nil
	}

	var value string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}

	m.cache.Add(key, value)
	return value, true, nil
}

func (m *Medium) SetItem(key, value string) error {
	_, err := m.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	m.cache.Add(key, value)
	return nil
}

func (m *Medium) RemoveItem(key string) error {
	if _, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	m.cache.Remove(key)
	return nil
}
