package source

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Config tunes how the harvest store is read.
type Config struct {
	BatchSize    int           // records fetched per query
	QueryTimeout time.Duration // deadline for each batch query
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	return c
}

// DB streams full-text records out of a PostgreSQL harvest store. The
// store joins warcinfo (capture metadata) with fulltext (extracted text)
// on fulltext_hash.
type DB struct {
	pool *pgxpool.Pool
	cfg  Config
	log  logrus.FieldLogger
}

// Open connects to the harvest store and verifies it is reachable.
func Open(ctx context.Context, dsn string, cfg Config, log logrus.FieldLogger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse harvest dsn: %w", internalerr.ErrInvalidConfig, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect harvest store: %w", internalerr.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping harvest store: %w", internalerr.ErrStoreUnavailable, err)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DB{
		pool: pool,
		cfg:  cfg.withDefaults(),
		log:  log.WithField("component", "source"),
	}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// BuildDSN assembles a connection string from individual harvest store
// parameters.
func BuildDSN(host string, port int, dbname, user, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   dbname,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else if user != "" {
		u.User = url.User(user)
	}
	return u.String()
}

// Repeated captures of the same page collapse to the earliest one inside
// the window. The hash cursor makes each batch pick up exactly where the
// previous one stopped, so memory stays bounded by the batch size.
const streamQuery = `
SELECT DISTINCT ON (w.fulltext_hash)
       w.fulltext_hash,
       COALESCE(w.domain, ''),
       COALESCE(w.target_uri, ''),
       w.content_type,
       w.date,
       f.fulltext
FROM warcinfo w
JOIN fulltext f ON f.fulltext_hash = w.fulltext_hash
WHERE w.fulltext_hash > $1
  AND w.date >= $2
  AND w.date < $3
  AND (w.content_type LIKE 'text/html%' OR w.content_type LIKE 'application/xhtml%')
  AND f.fulltext <> ''
ORDER BY w.fulltext_hash, w.date
LIMIT $4;
`

// Stream starts reading records captured inside the window. Each call
// re-issues the read from the start.
func (db *DB) Stream(ctx context.Context, w Window) (Stream, error) {
	if !w.To.After(w.From) {
		return nil, fmt.Errorf("%w: empty capture window %s..%s", internalerr.ErrInvalidConfig, w.From, w.To)
	}
	return &batchStream{
		pool:   db.pool,
		cfg:    db.cfg,
		window: w,
		log:    db.log,
	}, nil
}

type batchStream struct {
	pool   *pgxpool.Pool
	cfg    Config
	window Window
	log    logrus.FieldLogger

	buf    []Record
	pos    int
	cursor string // last fulltext_hash handed out
	done   bool   // a short batch means nothing is left behind it
	err    error
	rec    Record
}

// Next advances to the following record, fetching the next batch from
// the store when the buffered one is spent.
func (s *batchStream) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if s.pos >= len(s.buf) {
		if s.done || !s.fill(ctx) {
			return false
		}
	}
	s.rec = s.buf[s.pos]
	s.pos++
	s.cursor = s.rec.Hash
	return true
}

func (s *batchStream) fill(ctx context.Context) bool {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(qctx, streamQuery, s.cursor, s.window.From, s.window.To, s.cfg.BatchSize)
	if err != nil {
		s.err = fmt.Errorf("%w: fetch batch after %q: %w", internalerr.ErrStoreUnavailable, s.cursor, err)
		return false
	}
	defer rows.Close()

	s.buf = s.buf[:0]
	s.pos = 0
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Hash, &rec.Domain, &rec.URI, &rec.ContentType, &rec.CapturedAt, &rec.Text); err != nil {
			s.err = fmt.Errorf("%w: scan record: %w", internalerr.ErrStoreUnavailable, err)
			return false
		}
		s.buf = append(s.buf, rec)
	}
	if err := rows.Err(); err != nil {
		s.err = fmt.Errorf("%w: fetch batch after %q: %w", internalerr.ErrStoreUnavailable, s.cursor, err)
		return false
	}

	if len(s.buf) < s.cfg.BatchSize {
		s.done = true
	}
	if len(s.buf) == 0 {
		return false
	}
	s.log.WithField("after", s.cursor).Debugf("Fetched batch of %d records", len(s.buf))
	return true
}

// Record returns the record Next advanced to.
func (s *batchStream) Record() Record {
	return s.rec
}

// Err returns the source failure that ended the stream, if any.
func (s *batchStream) Err() error {
	return s.err
}

// Close is a no-op: batches are fully drained per query, so nothing is
// held open between calls to Next.
func (s *batchStream) Close() {}
