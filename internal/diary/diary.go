// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package diary keeps the append-only log of every search query issued.
// The diary is the pipeline's audit and replay record: an entry is durable
// on disk before its result URLs are handed to the fetcher, so a crash
// between recording and fetching still leaves a truthful account of "this
// query was issued, these were its results". On resume the diary is the
// sole source of truth for "has this query already been run".
package diary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/evidence-pipeline/pkg/types"
)

// Diary appends query records to one JSONL file per company under the log
// directory. Files are opened append-only and never rewritten; corrections
// are new entries.
type Diary struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File // company slug → open log file
}

// Open prepares a diary rooted at dir, creating the directory if needed.
func Open(dir string) (*Diary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating diary directory: %w", err)
	}
	return &Diary{dir: dir, files: make(map[string]*os.File)}, nil
}

// Record appends the entry to its company's log and syncs it to disk
// before returning. Callers must not fetch any of the entry's URLs until
// Record has returned.
func (d *Diary) Record(company types.Company, entry types.DiaryEntry) error {
	if entry.ResultCount != len(entry.ResultURLs) {
		entry.ResultCount = len(entry.ResultURLs)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling diary entry: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := d.file(company)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending diary entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing diary: %w", err)
	}
	return nil
}

// Entries replays the company's recorded entries in execution order. A
// missing log file means no queries have run yet and yields an empty slice.
func (d *Diary) Entries(company types.Company) ([]types.DiaryEntry, error) {
	path := d.path(company)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening diary %s: %w", path, err)
	}
	defer f.Close()

	var entries []types.DiaryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry types.DiaryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("diary %s line %d: %w", path, line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading diary %s: %w", path, err)
	}
	return entries, nil
}

// Seen returns the recorded entry for (query, backend) if the diary already
// holds a successful one, enabling resume without re-querying the backend.
// Entries recorded with an error don't count as seen: the query is retried
// on the next run and the retry becomes a new entry.
func (d *Diary) Seen(company types.Company, query, backend string) (types.DiaryEntry, bool, error) {
	entries, err := d.Entries(company)
	if err != nil {
		return types.DiaryEntry{}, false, err
	}
	for _, e := range entries {
		if e.Query == query && e.Backend == backend && e.Error == "" {
			return e, true, nil
		}
	}
	return types.DiaryEntry{}, false, nil
}

// Close closes all open log files.
func (d *Diary) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.files = make(map[string]*os.File)
	return firstErr
}

func (d *Diary) path(company types.Company) string {
	return filepath.Join(d.dir, company.Slug()+".jsonl")
}

// file returns the company's open append handle, creating it on first use.
// Callers hold d.mu.
func (d *Diary) file(company types.Company) (*os.File, error) {
	slug := company.Slug()
	if f, ok := d.files[slug]; ok {
		return f, nil
	}
	f, err := os.OpenFile(d.path(company), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening diary for %s: %w", company.Name, err)
	}
	d.files[slug] = f
	return f, nil
}
