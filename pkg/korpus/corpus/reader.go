package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Reader provides read access to a finished partition file.
type Reader struct {
	db *sql.DB
}

// StoredRecord is a record as persisted, with its run attribution.
type StoredRecord struct {
	Record
	RunID     string
	HasSerial bool
}

// RunInfo describes one run that wrote into a partition file.
type RunInfo struct {
	RunID     string
	StartedAt time.Time
	Append    bool
	Records   int64
}

// Summary aggregates one partition file.
type Summary struct {
	Records int64
	Tokens  int64
	Domains map[string]int64
	Years   map[int]int64
	Runs    []RunInfo
}

// OpenReader opens an existing partition file read-only.
func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: partition file %s", internalerr.ErrNotFound, path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Summarize aggregates the partition's records, token totals and runs.
func (r *Reader) Summarize(ctx context.Context) (Summary, error) {
	sum := Summary{
		Domains: make(map[string]int64),
		Years:   make(map[int]int64),
	}

	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(token_count), 0) FROM records;
`).Scan(&sum.Records, &sum.Tokens)
	if err != nil {
		return Summary{}, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT domain, COUNT(*) FROM records GROUP BY domain`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var domain string
		var count int64
		if err := rows.Scan(&domain, &count); err != nil {
			return Summary{}, err
		}
		sum.Domains[domain] = count
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	yearRows, err := r.db.QueryContext(ctx, `SELECT year, COUNT(*) FROM records GROUP BY year`)
	if err != nil {
		return Summary{}, err
	}
	defer yearRows.Close()
	for yearRows.Next() {
		var year int
		var count int64
		if err := yearRows.Scan(&year, &count); err != nil {
			return Summary{}, err
		}
		sum.Years[year] = count
	}
	if err := yearRows.Err(); err != nil {
		return Summary{}, err
	}

	sum.Runs, err = r.runs(ctx)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (r *Reader) runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT r.run_id, r.started_at, r.append_mode, COUNT(rec.fulltext_hash)
FROM runs r
LEFT JOIN records rec ON rec.run_id = r.run_id
GROUP BY r.run_id, r.started_at, r.append_mode
ORDER BY r.run_id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var started string
		var appendMode int
		if err := rows.Scan(&info.RunID, &started, &appendMode, &info.Records); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339, started); perr == nil {
			info.StartedAt = parsed
		}
		info.Append = appendMode != 0
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// GetRecord retrieves one record by hash and run.
func (r *Reader) GetRecord(ctx context.Context, hash, runID string) (StoredRecord, bool, error) {
	var (
		rec      StoredRecord
		serial   sql.NullInt64
		captured string
		tokens   string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT fulltext_hash, run_id, serial, domain, title, uri, year, captured_at, tokens
FROM records
WHERE fulltext_hash = ? AND run_id = ?;
`, hash, runID).Scan(&rec.Hash, &rec.RunID, &serial, &rec.Domain, &rec.Title, &rec.URI, &rec.Year, &captured, &tokens)
	if err == sql.ErrNoRows {
		return StoredRecord{}, false, nil
	}
	if err != nil {
		return StoredRecord{}, false, err
	}

	if serial.Valid {
		rec.Serial = serial.Int64
		rec.HasSerial = true
	}
	if parsed, perr := time.Parse(time.RFC3339, captured); perr == nil {
		rec.CapturedAt = parsed
	}
	if err := json.Unmarshal([]byte(tokens), &rec.Tokens); err != nil {
		return StoredRecord{}, false, err
	}
	return rec, true, nil
}

// Hashes returns every stored fulltext_hash in sorted order, once per
// run it appears in.
func (r *Reader) Hashes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fulltext_hash FROM records ORDER BY fulltext_hash, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DuplicateHashes returns hashes stored more than once for the same run.
// A well-formed partition always returns none; the primary key enforces
// it, and the inspect tool cross-checks it.
func (r *Reader) DuplicateHashes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT fulltext_hash
FROM records
GROUP BY fulltext_hash, run_id
HAVING COUNT(*) > 1
ORDER BY fulltext_hash;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
