// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library persists the user's reference library, the per-item
// embeddings derived from it, and a cache of candidate embeddings.
//
// The store is the only state that survives between runs. Embeddings are
// written only after a provider call succeeds, so a crash mid-build leaves
// some items current and the rest stale; the next incremental build picks
// up the remainder.
package library

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperwatch/pkg/types"
)

const profileMetaKey = "profile"

// cacheTimeLayout has a fixed width so cache timestamps compare lexically.
const cacheTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Store manages the library SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the library database at cfg.DBPath and creates
// the schema if it does not exist.
func NewStore(cfg types.LibraryConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating library directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Writes are serialised through one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			key TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			abstract TEXT,
			authors TEXT,
			venue TEXT,
			year INTEGER,
			doi TEXT,
			added_at TEXT,
			content_hash TEXT NOT NULL,
			embedding BLOB,
			embedded_hash TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			model TEXT NOT NULL,
			text_hash TEXT NOT NULL,
			vector BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (model, text_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_doi ON items(doi)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// AllItems returns every library item ordered by key.
func (s *Store) AllItems(ctx context.Context) ([]types.LibraryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, abstract, authors, venue, year, doi, added_at,
			content_hash, embedding, embedded_hash
		FROM items ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []types.LibraryItem
	for rows.Next() {
		var (
			it           types.LibraryItem
			abstract     sql.NullString
			authorsJSON  sql.NullString
			venue        sql.NullString
			year         sql.NullInt64
			doi          sql.NullString
			addedAt      sql.NullString
			blob         []byte
			embeddedHash sql.NullString
		)
		if err := rows.Scan(&it.Key, &it.Title, &abstract, &authorsJSON, &venue, &year, &doi,
			&addedAt, &it.ContentHash, &blob, &embeddedHash); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}

		it.Abstract = abstract.String
		it.Venue = venue.String
		it.Year = int(year.Int64)
		it.DOI = doi.String
		it.EmbeddedHash = embeddedHash.String
		if authorsJSON.Valid && authorsJSON.String != "" {
			if err := json.Unmarshal([]byte(authorsJSON.String), &it.Authors); err != nil {
				return nil, fmt.Errorf("decoding authors of %s: %w", it.Key, err)
			}
		}
		if addedAt.Valid && addedAt.String != "" {
			if t, err := time.Parse(time.RFC3339, addedAt.String); err == nil {
				it.AddedAt = t
			}
		}
		if len(blob) > 0 {
			vec, err := decodeVector(blob)
			if err != nil {
				return nil, fmt.Errorf("decoding embedding of %s: %w", it.Key, err)
			}
			it.Embedding = vec
		}

		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateItem stores a freshly computed embedding and the content hash it was
// computed from.
func (s *Store) UpdateItem(ctx context.Context, key string, embedding []float64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET embedding = ?, embedded_hash = ?, updated_at = ? WHERE key = ?`,
		encodeVector(embedding), hash, time.Now().UTC().Format(time.RFC3339), key)
	if err != nil {
		return fmt.Errorf("updating embedding of %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating embedding of %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("item %s not found", key)
	}
	return nil
}

// SyncSummary holds counts from a library sync.
type SyncSummary struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
}

// Sync upserts items into the store. New items are inserted without an
// embedding; items whose content hash changed have their metadata replaced
// while the old embedding is kept until it is recomputed. When prune is
// true, stored items absent from items are removed.
func (s *Store) Sync(ctx context.Context, items []types.LibraryItem, prune bool) (SyncSummary, error) {
	var summary SyncSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing := make(map[string]string)
	rows, err := tx.QueryContext(ctx, `SELECT key, content_hash FROM items`)
	if err != nil {
		return summary, fmt.Errorf("querying hashes: %w", err)
	}
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			rows.Close()
			return summary, fmt.Errorf("scanning hash: %w", err)
		}
		existing[key] = hash
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("querying hashes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		if it.Key == "" {
			return summary, fmt.Errorf("library item %q has no key", it.Title)
		}
		seen[it.Key] = struct{}{}
		hash := it.ComputeContentHash()

		stored, ok := existing[it.Key]
		if ok && stored == hash {
			summary.Unchanged++
			continue
		}

		authorsJSON, err := json.Marshal(it.Authors)
		if err != nil {
			return summary, fmt.Errorf("encoding authors of %s: %w", it.Key, err)
		}
		addedAt := ""
		if !it.AddedAt.IsZero() {
			addedAt = it.AddedAt.UTC().Format(time.RFC3339)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (key, title, abstract, authors, venue, year, doi, added_at, content_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				title=excluded.title, abstract=excluded.abstract, authors=excluded.authors,
				venue=excluded.venue, year=excluded.year, doi=excluded.doi,
				added_at=COALESCE(NULLIF(excluded.added_at, ''), items.added_at),
				content_hash=excluded.content_hash, updated_at=excluded.updated_at`,
			it.Key, it.Title, it.Abstract, string(authorsJSON), it.Venue, it.Year, it.DOI,
			addedAt, hash, now,
		)
		if err != nil {
			return summary, fmt.Errorf("upserting %s: %w", it.Key, err)
		}
		if ok {
			summary.Updated++
		} else {
			summary.Added++
		}
	}

	if prune {
		for key := range existing {
			if _, ok := seen[key]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
				return summary, fmt.Errorf("removing %s: %w", key, err)
			}
			summary.Removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing sync: %w", err)
	}
	return summary, nil
}

// Remove deletes items by key and returns how many existed.
func (s *Store) Remove(ctx context.Context, keys []string) (int, error) {
	removed := 0
	for _, key := range keys {
		res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key)
		if err != nil {
			return removed, fmt.Errorf("removing %s: %w", key, err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

// Status summarises embedding freshness.
type Status struct {
	Items    int
	Embedded int
	Stale    int
}

// Status counts items, items with any embedding, and items needing a fresh one.
func (s *Store) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
			COALESCE(SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedding IS NULL OR embedded_hash IS NULL
				OR embedded_hash != content_hash THEN 1 ELSE 0 END), 0)
		FROM items`,
	).Scan(&st.Items, &st.Embedded, &st.Stale)
	if err != nil {
		return st, fmt.Errorf("counting items: %w", err)
	}
	return st, nil
}

// SaveProfile persists the latest profile in the metadata table.
func (s *Store) SaveProfile(ctx context.Context, p types.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		profileMetaKey, string(data))
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// ErrNoProfile is returned by LoadProfile before the first profile build.
var ErrNoProfile = errors.New("no profile has been built")

// LoadProfile returns the last persisted profile.
func (s *Store) LoadProfile(ctx context.Context) (types.Profile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, profileMetaKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Profile{}, ErrNoProfile
	}
	if err != nil {
		return types.Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	var p types.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return types.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return p, nil
}

// CachedEmbedding returns a cached candidate embedding created at or after
// notBefore.
func (s *Store) CachedEmbedding(ctx context.Context, model, textHash string, notBefore time.Time) ([]float64, bool, error) {
	var (
		blob      []byte
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, created_at FROM embedding_cache WHERE model = ? AND text_hash = ?`,
		model, textHash,
	).Scan(&blob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading embedding cache: %w", err)
	}

	created, err := time.Parse(cacheTimeLayout, createdAt)
	if err != nil || created.Before(notBefore) {
		return nil, false, nil
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, nil
	}
	return vec, true, nil
}

// PutEmbedding stores a candidate embedding in the cache.
func (s *Store) PutEmbedding(ctx context.Context, model, textHash string, vec []float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_cache (model, text_hash, vector, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(model, text_hash) DO UPDATE SET vector=excluded.vector, created_at=excluded.created_at`,
		model, textHash, encodeVector(vec), at.UTC().Format(cacheTimeLayout))
	if err != nil {
		return fmt.Errorf("writing embedding cache: %w", err)
	}
	return nil
}

// PruneEmbeddingCache deletes cache entries created before cutoff.
func (s *Store) PruneEmbeddingCache(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE created_at < ?`, cutoff.UTC().Format(cacheTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning embedding cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// encodeVector packs a vector as little-endian float64s.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 8", len(buf))
	}
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}
