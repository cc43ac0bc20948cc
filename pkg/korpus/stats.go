package korpus

import "sync/atomic"

// RunStats is the accounting a run emits. Every record drawn from the
// source ends up in exactly one of Filtered, Written, Duplicates or
// Failed; Tokenized counts the records that reached the writer.
type RunStats struct {
	Seen       int64
	Filtered   int64
	Tokenized  int64
	Written    int64
	Duplicates int64
	Failed     int64
}

// stats accumulates the run counters. Counters are atomic so partition
// workers and the progress reporter can touch them concurrently.
type stats struct {
	seen       atomic.Int64
	filtered   atomic.Int64
	tokenized  atomic.Int64
	written    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

func (s *stats) snapshot() RunStats {
	return RunStats{
		Seen:       s.seen.Load(),
		Filtered:   s.filtered.Load(),
		Tokenized:  s.tokenized.Load(),
		Written:    s.written.Load(),
		Duplicates: s.duplicates.Load(),
		Failed:     s.failed.Load(),
	}
}
