package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// unit is one open partition file. A unit is only ever written from one
// goroutine; the Writer's routing guarantees it.
type unit struct {
	key    Key
	path   string
	db     *sql.DB
	buf    []Record
	failed bool
}

const unitSchema = `
CREATE TABLE IF NOT EXISTS records (
	fulltext_hash TEXT NOT NULL,
	run_id TEXT NOT NULL,
	serial INTEGER,
	domain TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	uri TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL,
	captured_at TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	tokens TEXT NOT NULL,
	PRIMARY KEY (fulltext_hash, run_id)
);

CREATE INDEX IF NOT EXISTS idx_records_domain ON records(domain);
CREATE INDEX IF NOT EXISTS idx_records_year ON records(year);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	append_mode INTEGER NOT NULL
);
`

// openUnit opens or creates the partition file, with WAL mode and the
// schema in place, and registers the writing run.
func openUnit(ctx context.Context, path string, key Key, opts Options) (*unit, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, unitSchema); err != nil {
		db.Close()
		return nil, err
	}

	appendMode := 0
	if opts.Append {
		appendMode = 1
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, append_mode) VALUES (?, ?, ?)
ON CONFLICT(run_id) DO NOTHING;
`, opts.RunID, time.Now().UTC().Format(time.RFC3339), appendMode)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &unit{
		key:  key,
		path: path,
		db:   db,
		buf:  make([]Record, 0, opts.BatchSize),
	}, nil
}

// flush commits the buffered records in one transaction. Either the
// whole batch lands or none of it does: any failure rolls back, empties
// the buffer and reports the records as discarded.
func (u *unit) flush(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if len(u.buf) == 0 {
		return res, nil
	}

	discard := func(err error) (Result, error) {
		n := len(u.buf)
		u.buf = u.buf[:0]
		return Result{Discarded: n}, err
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return discard(fmt.Errorf("%w: begin flush on %s: %w", internalerr.ErrWriteFailed, u.key.Filename(), err))
	}
	defer tx.Rollback()

	dupSQL := `SELECT 1 FROM records WHERE fulltext_hash = ? LIMIT 1`
	if opts.Append {
		// Append mode only guards against duplicates within this run
		dupSQL = `SELECT 1 FROM records WHERE fulltext_hash = ? AND run_id = ? LIMIT 1`
	}
	dupStmt, err := tx.PrepareContext(ctx, dupSQL)
	if err != nil {
		return discard(fmt.Errorf("%w: prepare flush on %s: %w", internalerr.ErrWriteFailed, u.key.Filename(), err))
	}
	defer dupStmt.Close()

	insert, err := tx.PrepareContext(ctx, `
INSERT INTO records (fulltext_hash, run_id, serial, domain, title, uri, year, captured_at, token_count, tokens)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return discard(fmt.Errorf("%w: prepare flush on %s: %w", internalerr.ErrWriteFailed, u.key.Filename(), err))
	}
	defer insert.Close()

	for _, rec := range u.buf {
		args := []interface{}{rec.Hash}
		if opts.Append {
			args = append(args, opts.RunID)
		}
		var one int
		err := dupStmt.QueryRowContext(ctx, args...).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			// not present yet
		case err != nil:
			return discard(fmt.Errorf("%w: duplicate probe on %s: %w", internalerr.ErrWriteFailed, u.key.Filename(), err))
		default:
			if opts.Strict {
				return discard(fmt.Errorf("%w: record %s already in %s", internalerr.ErrDuplicate, rec.Hash, u.key.Filename()))
			}
			res.Duplicates = append(res.Duplicates, rec.Hash)
			continue
		}

		tokensJSON, err := json.Marshal(rec.Tokens)
		if err != nil {
			return discard(fmt.Errorf("%w: encode tokens for %s: %w", internalerr.ErrWriteFailed, rec.Hash, err))
		}

		var serial interface{}
		if opts.Serials {
			serial = rec.Serial
		}

		_, err = insert.ExecContext(ctx,
			rec.Hash,
			opts.RunID,
			serial,
			rec.Domain,
			rec.Title,
			rec.URI,
			rec.Year,
			rec.CapturedAt.UTC().Format(time.RFC3339),
			len(rec.Tokens),
			string(tokensJSON),
		)
		if err != nil {
			return discard(fmt.Errorf("%w: insert %s into %s: %w", internalerr.ErrWriteFailed, rec.Hash, u.key.Filename(), err))
		}
		res.Written++
	}

	if err := tx.Commit(); err != nil {
		return discard(fmt.Errorf("%w: commit flush on %s: %w", internalerr.ErrWriteFailed, u.key.Filename(), err))
	}
	u.buf = u.buf[:0]
	return res, nil
}

func (u *unit) close() error {
	if u.db == nil {
		return nil
	}
	err := u.db.Close()
	u.db = nil
	return err
}
