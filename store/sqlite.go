package store

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteProvider stores all namespaces in a single sqlite database.
// Each entry carries a monotonically increasing sequence number assigned on
// first insert, which preserves insertion order across restarts.
type SQLiteProvider struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteProvider creates a new provider with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteProvider(filename string) *SQLiteProvider {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		bytes BLOB NOT NULL,
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS seq_idx ON entries (namespace, seq)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return &SQLiteProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (p *SQLiteProvider) Open(namespace string) (Store, error) {
	return &sqliteStore{provider: p, namespace: namespace}, nil
}

func (p *SQLiteProvider) Namespaces() ([]string, error) {
	rows, err := p.db.Query("SELECT DISTINCT namespace FROM entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (p *SQLiteProvider) DeleteNamespace(namespace string) error {
	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()
	_, err := p.db.Exec("DELETE FROM entries WHERE namespace = ?", namespace)
	return err
}

func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

type sqliteStore struct {
	provider  *SQLiteProvider
	namespace string
}

func (s *sqliteStore) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.provider.db.QueryRow(
		"SELECT bytes FROM entries WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

// Put inserts the entry with the next free sequence number.
// On conflict only the bytes are replaced, so the entry keeps the insertion
// position of its first write.
func (s *sqliteStore) Put(key string, bytes []byte) error {
	s.provider.writeMutex.Lock()
	defer s.provider.writeMutex.Unlock()
	_, err := s.provider.db.Exec(`INSERT INTO entries (namespace, key, seq, bytes)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE namespace = ?), ?)
		ON CONFLICT (namespace, key) DO UPDATE SET bytes = excluded.bytes`,
		s.namespace, key, s.namespace, bytes)
	return err
}

func (s *sqliteStore) Delete(key string) error {
	s.provider.writeMutex.Lock()
	defer s.provider.writeMutex.Unlock()
	_, err := s.provider.db.Exec(
		"DELETE FROM entries WHERE namespace = ? AND key = ?",
		s.namespace, key)
	return err
}

func (s *sqliteStore) Keys() ([]string, error) {
	rows, err := s.provider.db.Query(
		"SELECT key FROM entries WHERE namespace = ? ORDER BY seq ASC",
		s.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) Len() (int, error) {
	var count int
	err := s.provider.db.QueryRow(
		"SELECT COUNT(*) FROM entries WHERE namespace = ?",
		s.namespace).Scan(&count)
	return count, err
}
