package mdp

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqlitePersistence is a durable PersistenceController implementation
// backing request records with a real file, using database/sql with
// the modernc.org/sqlite driver.
type sqlitePersistence struct {
	db *sql.DB
}

// NewSQLitePersistence opens (creating if needed) a SQLite-backed
// persistence controller at path. Use ":memory:" for an ephemeral
// database that still exercises the same SQL code path as a real file,
// useful in tests.
func NewSQLitePersistence(path string) (PersistenceController, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mdp: open sqlite persistence: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS requests (
	rid TEXT PRIMARY KEY,
	service TEXT NOT NULL,
	client_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	timeout_ms INTEGER NOT NULL,
	retry INTEGER NOT NULL,
	cache_ttl INTEGER NOT NULL,
	hash TEXT NOT NULL,
	ts_unix_ms INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mdp: migrate sqlite persistence schema: %w", err)
	}

	return &sqlitePersistence{db: db}, nil
}

func (s *sqlitePersistence) RSet(req PersistedRequest) error {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("mdp: marshal persisted payload: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO requests (rid, service, client_id, payload, timeout_ms, retry, cache_ttl, hash, ts_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(rid) DO UPDATE SET
	service=excluded.service, client_id=excluded.client_id, payload=excluded.payload,
	timeout_ms=excluded.timeout_ms, retry=excluded.retry, cache_ttl=excluded.cache_ttl,
	hash=excluded.hash, ts_unix_ms=excluded.ts_unix_ms`,
		req.Rid, req.Service, req.ClientID, string(payload),
		req.TimeoutMS, req.Retry, req.CacheTTL, req.Hash, req.TsUnixMS)
	if err != nil {
		return fmt.Errorf("mdp: persist request %s: %w", req.Rid, err)
	}
	return nil
}

func (s *sqlitePersistence) RDel(rid string) error {
	if _, err := s.db.Exec(`DELETE FROM requests WHERE rid = ?`, rid); err != nil {
		return fmt.Errorf("mdp: delete persisted request %s: %w", rid, err)
	}
	return nil
}

func (s *sqlitePersistence) RGet(rid string) (PersistedRequest, bool, error) {
	row := s.db.QueryRow(`
SELECT rid, service, client_id, payload, timeout_ms, retry, cache_ttl, hash, ts_unix_ms
FROM requests WHERE rid = ?`, rid)

	req, err := scanPersistedRequest(row.Scan)
	if err == sql.ErrNoRows {
		return PersistedRequest{}, false, nil
	}
	if err != nil {
		return PersistedRequest{}, false, fmt.Errorf("mdp: load persisted request %s: %w", rid, err)
	}
	return req, true, nil
}

func (s *sqlitePersistence) RGetAll() ([]PersistedRequest, error) {
	rows, err := s.db.Query(`
SELECT rid, service, client_id, payload, timeout_ms, retry, cache_ttl, hash, ts_unix_ms
FROM requests ORDER BY ts_unix_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("mdp: list persisted requests: %w", err)
	}
	defer rows.Close()

	var out []PersistedRequest
	for rows.Next() {
		req, err := scanPersistedRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("mdp: scan persisted request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *sqlitePersistence) Close() error {
	return s.db.Close()
}

func scanPersistedRequest(scan func(...interface{}) error) (PersistedRequest, error) {
	var req PersistedRequest
	var payload string
	if err := scan(&req.Rid, &req.Service, &req.ClientID, &payload,
		&req.TimeoutMS, &req.Retry, &req.CacheTTL, &req.Hash, &req.TsUnixMS); err != nil {
		return PersistedRequest{}, err
	}
	if err := json.Unmarshal([]byte(payload), &req.Payload); err != nil {
		return PersistedRequest{}, fmt.Errorf("unmarshal persisted payload: %w", err)
	}
	return req, nil
}
