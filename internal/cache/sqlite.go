package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aukc1970/formwork/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS responses (
	key      TEXT PRIMARY KEY,
	status   INTEGER NOT NULL,
	header   TEXT NOT NULL DEFAULT '{}',
	body     BLOB NOT NULL,
	saved_at INTEGER NOT NULL
);
`

// SQLiteStore persists responses in a SQLite database so they survive restarts.
type SQLiteStore struct {
	conn *sql.DB
}

const pragmas = "_journal_mode=WAL&_busy_timeout=5000"

// withPragmas appends the connection pragmas, keeping any query the
// configured DSN already carries.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Fetch(key string) (*Entry, error) {
	var (
		status  int
		header  string
		body    []byte
		savedAt int64
	)
	err := s.conn.QueryRow(`SELECT status, header, body, saved_at FROM responses WHERE key = ?`, key).
		Scan(&status, &header, &body, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: fetch %q: %w", key, err)
	}
	h := http.Header{}
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, fmt.Errorf("cache: decode header %q: %w", key, err)
	}
	return &Entry{
		Response: &models.Response{Status: status, Header: h, Body: body},
		SavedAt:  time.Unix(0, savedAt),
	}, nil
}

func (s *SQLiteStore) Save(key string, e *Entry) error {
	if e == nil || e.Response == nil {
		return fmt.Errorf("cache: save %q: empty entry", key)
	}
	header, err := json.Marshal(e.Response.Header)
	if err != nil {
		return fmt.Errorf("cache: encode header %q: %w", key, err)
	}
	body := e.Response.Body
	if body == nil {
		body = []byte{}
	}
	_, err = s.conn.Exec(`
		INSERT INTO responses (key, status, header, body, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status   = excluded.status,
			header   = excluded.header,
			body     = excluded.body,
			saved_at = excluded.saved_at
	`, key, e.Response.Status, string(header), body, e.SavedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("cache: save %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM responses WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.conn.Exec(`DELETE FROM responses`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Has(key string) (bool, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT count(*) FROM responses WHERE key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("cache: has %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	rows, err := s.conn.Query(`SELECT key FROM responses ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("cache: keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Oldest returns the save time of the oldest entry. ok is false when the
// store is empty.
func (s *SQLiteStore) Oldest() (time.Time, bool, error) {
	var oldest sql.NullInt64
	if err := s.conn.QueryRow(`SELECT MIN(saved_at) FROM responses`).Scan(&oldest); err != nil {
		return time.Time{}, false, fmt.Errorf("cache: oldest: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, oldest.Int64), true, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

var _ Store = (*SQLiteStore)(nil)
