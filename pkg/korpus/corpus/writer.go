package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Options configures a corpus writer.
type Options struct {
	Scheme       Scheme
	BatchSize    int  // records buffered per partition before a flush
	Append       bool // accept hashes written by earlier runs
	Strict       bool // a duplicate aborts the flush instead of being skipped
	Serials      bool // persist per-record serial numbers
	RunID        string
	NamespaceRun bool // place files under <dir>/<run-id>/
	FlushTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Result accounts for flushed records.
type Result struct {
	Written    int
	Duplicates []string // hashes skipped because they were already present
	Discarded  int      // records dropped with a failed batch
}

func (r *Result) add(other Result) {
	r.Written += other.Written
	r.Duplicates = append(r.Duplicates, other.Duplicates...)
	r.Discarded += other.Discarded
}

// Writer routes tokenized records to per-partition SQLite files, opening
// each partition on first use. Writes to different partitions may run
// concurrently; a single partition is always written from one goroutine
// at a time. A partition that fails stays failed, without stopping its
// siblings.
type Writer struct {
	dir  string
	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex
	units map[Key]*unit
}

// Open prepares the output directory and returns a writer for it. The
// directory must be creatable and writable up front.
func Open(dir string, opts Options) (*Writer, error) {
	if opts.RunID == "" {
		return nil, fmt.Errorf("%w: corpus writer needs a run id", internalerr.ErrInvalidConfig)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.NamespaceRun {
		dir = filepath.Join(dir, opts.RunID)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", internalerr.ErrInvalidConfig, err)
	}
	probe, err := os.CreateTemp(dir, ".korpus-probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: output dir not writable: %w", internalerr.ErrInvalidConfig, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Writer{
		dir:   dir,
		opts:  opts,
		log:   opts.Logger.WithField("component", "corpus"),
		units: make(map[Key]*unit),
	}, nil
}

// Dir returns the directory partition files are written into.
func (w *Writer) Dir() string {
	return w.dir
}

// Scheme returns the partitioning scheme, so callers routing records
// themselves derive the same keys the writer does.
func (w *Writer) Scheme() Scheme {
	return w.opts.Scheme
}

// Write buffers one record on its partition, flushing that partition
// when it reaches the batch size. Outcomes:
//
//	(nil, nil)  buffered, nothing flushed yet
//	(res, nil)  a flush happened; res accounts for it
//	(res, err)  the flush failed; res.Discarded covers the whole batch,
//	            this record included
//	(nil, err)  the record was not accepted (failed partition)
func (w *Writer) Write(ctx context.Context, rec Record) (*Result, error) {
	key := w.opts.Scheme.KeyFor(rec.Domain, rec.Year)
	u, err := w.unitFor(ctx, key)
	if err != nil {
		return nil, err
	}
	if u.failed {
		return nil, fmt.Errorf("%w: partition %s is failed", internalerr.ErrWriteFailed, key.Filename())
	}

	u.buf = append(u.buf, rec)
	if len(u.buf) < w.opts.BatchSize {
		return nil, nil
	}

	res, err := w.flushUnit(ctx, u)
	return &res, err
}

// Close flushes and closes every partition. The combined result covers
// the final flushes; errors are joined so one bad partition does not
// hide another.
func (w *Writer) Close(ctx context.Context) (Result, error) {
	w.mu.Lock()
	units := make([]*unit, 0, len(w.units))
	for _, u := range w.units {
		units = append(units, u)
	}
	w.mu.Unlock()

	sort.Slice(units, func(i, j int) bool {
		return units[i].key.Filename() < units[j].key.Filename()
	})

	var total Result
	var errs []error
	for _, u := range units {
		if !u.failed {
			res, err := w.flushUnit(ctx, u)
			total.add(res)
			if err != nil {
				errs = append(errs, err)
			}
		}
		if err := u.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// FailedPartitions returns the file names of partitions that have been
// latched failed, sorted.
func (w *Writer) FailedPartitions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var failed []string
	for _, u := range w.units {
		if u.failed {
			failed = append(failed, u.key.Filename())
		}
	}
	sort.Strings(failed)
	return failed
}

func (w *Writer) unitFor(ctx context.Context, key Key) (*unit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if u, ok := w.units[key]; ok {
		return u, nil
	}

	u, err := openUnit(ctx, filepath.Join(w.dir, key.Filename()), key, w.opts)
	if err != nil {
		// Remember the partition as failed so later records fail fast
		// instead of retrying the open per record.
		w.units[key] = &unit{key: key, failed: true}
		w.log.WithField("partition", key.Filename()).Errorf("Open partition: %v", err)
		return nil, fmt.Errorf("%w: open partition %s: %w", internalerr.ErrWriteFailed, key.Filename(), err)
	}
	w.units[key] = u
	w.log.WithField("partition", key.Filename()).Debug("Opened partition")
	return u, nil
}

// flushUnit commits the unit's buffer. The flush runs to completion even
// when the run context is being cancelled; only the flush timeout bounds
// it. A failed flush latches the partition.
func (w *Writer) flushUnit(ctx context.Context, u *unit) (Result, error) {
	if len(u.buf) == 0 {
		return Result{}, nil
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.FlushTimeout)
	defer cancel()

	res, err := u.flush(fctx, w.opts)
	if err != nil {
		u.failed = true
		w.log.WithField("partition", u.key.Filename()).Errorf("Flush failed, partition latched: %v", err)
		return res, err
	}
	if res.Written > 0 || len(res.Duplicates) > 0 {
		w.log.WithField("partition", u.key.Filename()).Debugf("Flushed %d records (%d duplicates skipped)", res.Written, len(res.Duplicates))
	}
	return res, nil
}
