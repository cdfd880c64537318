package cache

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dthille/corpusqa/pkg/types"
)

const createCacheTables = `
CREATE TABLE IF NOT EXISTS exact_entries (
	fingerprint BLOB PRIMARY KEY,
	answer      TEXT NOT NULL,
	citations   TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS semantic_entries (
	embedding   BLOB PRIMARY KEY,
	answer      TEXT NOT NULL,
	citations   TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// SQLStore is the durable backing store for both cache tiers. Single-entry
// writes are atomic (INSERT OR REPLACE); eviction is a bulk scan keyed on
// stored creation time and TTL.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (and migrates) the cache database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(createCacheTables); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// SaveExact atomically overwrites the durable entry for a fingerprint.
func (s *SQLStore) SaveExact(fp types.Fingerprint, ent *Entry, ttl time.Duration) error {
	citations, err := json.Marshal(ent.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO exact_entries (fingerprint, answer, citations, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		fp[:], ent.Answer, citations, ent.CreatedAt.Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("save exact entry: %w", err)
	}
	return nil
}

// LoadExact fetches the durable entry for a fingerprint, if present.
func (s *SQLStore) LoadExact(fp types.Fingerprint) (*Entry, bool, error) {
	var (
		answer    string
		citations []byte
		createdAt int64
	)
	err := s.db.QueryRow(
		`SELECT answer, citations, created_at FROM exact_entries WHERE fingerprint = ?`,
		fp[:],
	).Scan(&answer, &citations, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load exact entry: %w", err)
	}

	ent := &Entry{Answer: answer, CreatedAt: time.Unix(createdAt, 0)}
	if err := json.Unmarshal(citations, &ent.Citations); err != nil {
		return nil, false, fmt.Errorf("unmarshal citations: %w", err)
	}
	return ent, true, nil
}

// SaveSemantic atomically overwrites the durable entry for an embedding.
func (s *SQLStore) SaveSemantic(vec types.EmbeddingVector, ent *Entry, ttl time.Duration) error {
	citations, err := json.Marshal(ent.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO semantic_entries (embedding, answer, citations, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		serializeVector(vec), ent.Answer, citations, ent.CreatedAt.Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("save semantic entry: %w", err)
	}
	return nil
}

// LoadSemantic returns all persisted semantic entries, used to warm the
// in-memory tier at startup.
func (s *SQLStore) LoadSemantic() ([]semanticEntry, error) {
	rows, err := s.db.Query(`SELECT embedding, answer, citations, created_at FROM semantic_entries`)
	if err != nil {
		return nil, fmt.Errorf("load semantic entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []semanticEntry
	for rows.Next() {
		var (
			blob      []byte
			answer    string
			citations []byte
			createdAt int64
		)
		if err := rows.Scan(&blob, &answer, &citations, &createdAt); err != nil {
			return nil, fmt.Errorf("scan semantic entry: %w", err)
		}
		ent := &Entry{Answer: answer, CreatedAt: time.Unix(createdAt, 0), LastAccess: time.Unix(createdAt, 0)}
		if err := json.Unmarshal(citations, &ent.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		out = append(out, semanticEntry{vec: deserializeVector(blob), entry: ent})
	}
	return out, rows.Err()
}

// EvictExpired removes all durable entries whose TTL has elapsed at now.
func (s *SQLStore) EvictExpired(now time.Time) error {
	for _, table := range []string{"exact_entries", "semantic_entries"} {
		_, err := s.db.Exec(
			`DELETE FROM `+table+` WHERE created_at + ttl_seconds < ? AND ttl_seconds > 0`,
			now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("evict expired from %s: %w", table, err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// serializeVector converts a float32 slice to a little-endian byte blob.
func serializeVector(vec types.EmbeddingVector) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice.
func deserializeVector(blob []byte) types.EmbeddingVector {
	vec := make(types.EmbeddingVector, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
