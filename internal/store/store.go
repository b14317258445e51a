// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists fetched documents in a content-addressed raw area.
// Blobs are keyed by the SHA-256 of their bytes, so byte-identical content
// observed via any number of URLs is stored exactly once. A SQLite catalog
// records the hash→path mapping and every URL observation, making the store
// the fetch stage's idempotency key across runs.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

const dbFile = "index.db"

// Store manages the raw blob directory and its SQLite catalog. All writes
// go through a single mutex so concurrent fetches of identical content
// never race to create two artifacts for one hash.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	rawDir string
}

// Open creates or opens the store rooted at rawDir.
func Open(rawDir string) (*Store, error) {
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating raw directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(rawDir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening store catalog: %w", err)
	}

	s := &Store{db: db, rawDir: rawDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store schema: %w", err)
	}
	return s, nil
}

// Close releases the catalog connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			hash TEXT PRIMARY KEY,
			content_type TEXT,
			storage_path TEXT NOT NULL,
			size INTEGER NOT NULL,
			first_seen TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			hash TEXT NOT NULL REFERENCES documents(hash),
			company TEXT,
			http_status INTEGER,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_url ON observations(url)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_hash ON observations(hash)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Put stores body under its content hash and returns the hash, the blob
// path, and whether a new artifact was created. Existing hashes are reused
// without rewriting the blob. The blob is written to a temp file and
// renamed into place so an interrupted run never leaves a half-written
// artifact.
func (s *Store) Put(body []byte, contentType string) (hash, path string, created bool, err error) {
	sum := sha256.Sum256(body)
	hash = hex.EncodeToString(sum[:])
	path = filepath.Join(s.rawDir, hash+"."+extFor(contentType))

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	row := s.db.QueryRow(`SELECT storage_path FROM documents WHERE hash = ?`, hash)
	switch err = row.Scan(&existing); err {
	case nil:
		return hash, existing, false, nil
	case sql.ErrNoRows:
		// First sighting; fall through to write.
	default:
		return "", "", false, fmt.Errorf("querying catalog: %w", err)
	}

	tmp, err := os.CreateTemp(s.rawDir, ".blob-*.tmp")
	if err != nil {
		return "", "", false, fmt.Errorf("creating temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(body)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return "", "", false, fmt.Errorf("writing blob: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", "", false, fmt.Errorf("closing temp blob: %w", closeErr)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", "", false, fmt.Errorf("renaming blob: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO documents (hash, content_type, storage_path, size, first_seen)
		 VALUES (?, ?, ?, ?, ?)`,
		hash, contentType, path, len(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", "", false, fmt.Errorf("cataloging blob: %w", err)
	}
	return hash, path, true, nil
}

// Observe links a URL fetch event to a stored hash. Every fetch records an
// observation, including repeat sightings of known content.
func (s *Store) Observe(url, hash, company string, httpStatus int, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO observations (url, hash, company, http_status, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		url, hash, company, httpStatus, fetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording observation: %w", err)
	}
	return nil
}

// LookupURL returns the most recent stored document observed at url, or
// ok=false if the URL has never been fetched. Used for resume: a diary
// replay skips the network round trip for URLs already in the store.
func (s *Store) LookupURL(url string) (types.RawDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT o.hash, o.http_status, o.fetched_at, d.content_type, d.storage_path, d.size
		 FROM observations o JOIN documents d ON d.hash = o.hash
		 WHERE o.url = ? ORDER BY o.rowid DESC LIMIT 1`, url)

	var doc types.RawDocument
	var fetchedAt string
	err := row.Scan(&doc.ContentHash, &doc.HTTPStatus, &fetchedAt, &doc.ContentType, &doc.StoragePath, &doc.Size)
	if err == sql.ErrNoRows {
		return types.RawDocument{}, false, nil
	}
	if err != nil {
		return types.RawDocument{}, false, fmt.Errorf("looking up url: %w", err)
	}
	doc.URL = url
	if t, parseErr := time.Parse(time.RFC3339Nano, fetchedAt); parseErr == nil {
		doc.FetchedAt = t
	}
	return doc, true, nil
}

// ReadBlob returns the stored bytes for a hash.
func (s *Store) ReadBlob(doc types.RawDocument) ([]byte, error) {
	data, err := os.ReadFile(doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", doc.ContentHash, err)
	}
	return data, nil
}

// DocumentCount returns the number of unique stored artifacts.
func (s *Store) DocumentCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// extFor maps a Content-Type header to a blob filename extension.
func extFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "html"):
		return "html"
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "text/plain"):
		return "txt"
	default:
		return "bin"
	}
}
