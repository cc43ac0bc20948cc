package source

import (
	"context"
	"time"
)

// Record is one full-text capture drawn from the harvest store.
type Record struct {
	Hash        string
	Domain      string
	URI         string
	ContentType string
	CapturedAt  time.Time
	Text        string
}

// Window is a half-open [From, To) capture-time range.
type Window struct {
	From time.Time
	To   time.Time
}

// YearWindow builds the window covering the calendar years from through
// to, inclusive, in UTC.
func YearWindow(from, to int) Window {
	return Window{
		From: time.Date(from, time.January, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(to+1, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Stream iterates harvest records in fulltext_hash order. After Next
// returns false, Err distinguishes exhaustion from a lost source.
type Stream interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close()
}
