package korpus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cognicore/aviskorpus/pkg/korpus/corpus"
	"github.com/cognicore/aviskorpus/pkg/korpus/filter"
	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
	"github.com/cognicore/aviskorpus/pkg/korpus/source"
	"github.com/cognicore/aviskorpus/pkg/korpus/tokenize"
)

// Source opens record streams over the harvest store
type Source interface {
	Stream(ctx context.Context, w source.Window) (source.Stream, error)
}

// Pipeline is the extraction pipeline facade: it drains a harvest
// record stream through the domain filter, the tokenizer adapter and
// the partitioned corpus writer, accounting for every record.
type Pipeline struct {
	src    Source
	filter *filter.Spec
	tok    *tokenize.Adapter
	writer *corpus.Writer

	opts  Options
	log   logrus.FieldLogger
	stats stats
	state atomic.Int32

	serial atomic.Int64
}

// Options configures a Pipeline instance
type Options struct {
	Source    Source
	Filter    *filter.Spec
	Tokenizer tokenize.Tokenizer
	Writer    *corpus.Writer

	// Window bounds capture time; the source applies it in-query.
	Window source.Window

	// StripMarkup removes HTML before tokenizing.
	StripMarkup bool

	// Serials numbers filter-accepted records in stream order starting
	// at SerialStart. Records dropped later leave gaps, so serials are
	// identical regardless of the worker count.
	Serials     bool
	SerialStart int64

	// Workers > 1 processes partitions concurrently; 0 resolves to one
	// worker per physical core.
	Workers int

	// Strict makes any duplicate hash fatal for the run.
	Strict bool

	Logger logrus.FieldLogger
}

// New creates a Pipeline with the given dependencies
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: source is required", internalerr.ErrInvalidConfig)
	}
	if opts.Filter == nil {
		return nil, fmt.Errorf("%w: filter is required", internalerr.ErrInvalidConfig)
	}
	if opts.Tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", internalerr.ErrInvalidConfig)
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("%w: writer is required", internalerr.ErrInvalidConfig)
	}
	if !opts.Window.To.After(opts.Window.From) {
		return nil, fmt.Errorf("%w: window end %s is not after start %s",
			internalerr.ErrInvalidConfig, opts.Window.To.Format("2006-01-02"), opts.Window.From.Format("2006-01-02"))
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative, got %d", internalerr.ErrInvalidConfig, opts.Workers)
	}
	if opts.Serials && opts.SerialStart < 0 {
		return nil, fmt.Errorf("%w: serial start must not be negative, got %d", internalerr.ErrInvalidConfig, opts.SerialStart)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Pipeline{
		src:    opts.Source,
		filter: opts.Filter,
		tok:    tokenize.NewAdapter(opts.Tokenizer),
		writer: opts.Writer,
		opts:   opts,
		log:    log.WithField("component", "pipeline"),
	}
	p.serial.Store(opts.SerialStart)
	return p, nil
}

// State reports the current lifecycle phase, observable during a run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

// Stats returns a snapshot of the run counters. Safe to call while the
// run is live.
func (p *Pipeline) Stats() RunStats {
	return p.stats.snapshot()
}

// Run executes one full pass over the source window. It consumes the
// writer: every partition is flushed and closed before Run returns,
// even when the source is lost mid-run, so the pipeline is not
// reusable afterwards. The returned stats cover everything processed
// up to the point of a failure.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	p.setState(StateStreaming)

	stream, err := p.src.Stream(ctx, p.opts.Window)
	if err != nil {
		return p.finish(ctx, fmt.Errorf("open source stream: %w", err))
	}
	defer stream.Close()

	workers := p.opts.Workers
	if workers == 0 {
		workers = physicalCores()
	}
	p.log.Debugf("Streaming %s to %s with %d workers",
		p.opts.Window.From.Format("2006-01-02"), p.opts.Window.To.Format("2006-01-02"), workers)

	var runErr error
	if workers <= 1 {
		runErr = p.consume(ctx, stream)
	} else {
		runErr = p.consumeParallel(ctx, stream, workers)
	}
	if runErr == nil {
		runErr = stream.Err()
	}

	return p.finish(ctx, runErr)
}

// consume is the sequential pass: one record at a time through filter,
// tokenizer and writer.
func (p *Pipeline) consume(ctx context.Context, stream source.Stream) error {
	for stream.Next(ctx) {
		if err := p.processRecord(ctx, stream.Record()); err != nil {
			return err
		}
	}
	return nil
}

// finish drains the writer and settles the final state. Partition
// flush failures during the drain are already counted as discards and
// do not fail an otherwise healthy run; a strict-mode duplicate does.
func (p *Pipeline) finish(ctx context.Context, runErr error) (RunStats, error) {
	p.setState(StateDraining)

	closed, closeErr := p.writer.Close(ctx)
	strictErr := p.accountFlush(closed)
	if closeErr != nil {
		if runErr == nil && errors.Is(closeErr, internalerr.ErrDuplicate) {
			runErr = closeErr
		} else {
			p.log.Warnf("Drain: %v", closeErr)
		}
	}
	if runErr == nil {
		runErr = strictErr
	}

	snap := p.stats.snapshot()
	if runErr != nil {
		p.setState(StateFailed)
		return snap, runErr
	}

	if failed := p.writer.FailedPartitions(); len(failed) > 0 {
		p.log.Warnf("Run finished with %d failed partitions: %v", len(failed), failed)
	}
	p.setState(StateDone)
	p.log.Infof("Run done: %d seen, %d written, %d filtered, %d duplicates, %d failed",
		snap.Seen, snap.Written, snap.Filtered, snap.Duplicates, snap.Failed)
	return snap, nil
}

// processRecord accounts one record and routes it through the
// remaining stages. A non-nil error aborts the whole run; per-record
// problems are counted instead.
func (p *Pipeline) processRecord(ctx context.Context, rec source.Record) error {
	p.stats.seen.Add(1)

	pub, ok := p.filter.Match(rec.Domain)
	if !ok {
		p.stats.filtered.Add(1)
		return nil
	}

	j := job{rec: rec, pub: pub}
	if p.opts.Serials {
		j.serial = p.nextSerial()
	}
	return p.handle(ctx, j)
}

// handle tokenizes one filter-accepted record and hands it to the
// writer. In parallel mode this is the worker side; the filter and the
// serial were already applied in stream order.
func (p *Pipeline) handle(ctx context.Context, j job) error {
	text := j.rec.Text
	if p.opts.StripMarkup {
		text = tokenize.StripMarkup(text)
	}

	tokens, err := p.tok.Run(j.rec.Hash, text)
	if err != nil {
		p.stats.failed.Add(1)
		p.log.WithField("fulltext_hash", j.rec.Hash).Warnf("Tokenization failed: %v", err)
		return nil
	}
	if len(tokens) == 0 {
		// Nothing left after cleanup counts as filtered out, not as
		// a failure.
		p.stats.filtered.Add(1)
		return nil
	}
	p.stats.tokenized.Add(1)

	// Records are filed under the publication's canonical domain, so
	// subdomain captures share their publication's partition. The exact
	// host survives in the URI.
	return p.write(ctx, corpus.Record{
		Hash:       j.rec.Hash,
		Domain:     j.pub.Domain,
		Title:      j.pub.Title,
		URI:        j.rec.URI,
		Year:       j.rec.CapturedAt.UTC().Year(),
		CapturedAt: j.rec.CapturedAt,
		Serial:     j.serial,
		Tokens:     tokens,
	})
}

// write hands one record to the writer and folds any flush result into
// the counters. Only a duplicate in strict mode is fatal; a failed
// partition only costs the records routed to it.
func (p *Pipeline) write(ctx context.Context, rec corpus.Record) error {
	res, err := p.writer.Write(ctx, rec)
	var strictErr error
	if res != nil {
		strictErr = p.accountFlush(*res)
	}
	if err != nil {
		if errors.Is(err, internalerr.ErrDuplicate) {
			return err
		}
		if res == nil {
			// The record was not accepted at all.
			p.stats.failed.Add(1)
			p.log.WithField("fulltext_hash", rec.Hash).Debugf("Record rejected: %v", err)
		} else {
			p.log.Warnf("Partition flush failed: %v", err)
		}
		return nil
	}
	return strictErr
}

// accountFlush folds one flush result into the counters. A duplicate
// reported by a non-strict writer still fails the run when the
// pipeline itself is strict.
func (p *Pipeline) accountFlush(res corpus.Result) error {
	p.stats.written.Add(int64(res.Written))
	p.stats.duplicates.Add(int64(len(res.Duplicates)))
	p.stats.failed.Add(int64(res.Discarded))
	if p.opts.Strict && len(res.Duplicates) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrDuplicate, res.Duplicates[0])
	}
	return nil
}

func (p *Pipeline) nextSerial() int64 {
	return p.serial.Add(1) - 1
}
