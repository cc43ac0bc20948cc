package progress

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/cognicore/aviskorpus/pkg/korpus"
)

// DefaultInterval is the time between progress lines when the caller
// does not choose one.
const DefaultInterval = time.Second * 10

// Reporter logs run progress at a regular interval. It observes the
// pipeline through a snapshot function only, so it never blocks or
// slows the run itself.
type Reporter struct {
	snapshot func() korpus.RunStats
	interval time.Duration
	clock    clockwork.Clock
	log      logrus.FieldLogger

	stop chan struct{}
	done chan struct{}
}

// NewReporter returns a reporter over the given snapshot function. A
// zero interval falls back to DefaultInterval; a nil clock uses the
// wall clock.
func NewReporter(snapshot func() korpus.RunStats, interval time.Duration, clock clockwork.Clock, log logrus.FieldLogger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reporter{
		snapshot: snapshot,
		interval: interval,
		clock:    clock,
		log:      log.WithField("component", "progress"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reporting goroutine.
func (r *Reporter) Start() {
	go r.run()
}

func (r *Reporter) run() {
	defer close(r.done)

	last := r.snapshot()
	lastTime := r.clock.Now()
	ticker := r.clock.After(r.interval)
	for {
		select {
		case <-r.stop:
			return
		case <-ticker:
			now := r.clock.Now()
			snap := r.snapshot()

			var rate float64
			if elapsed := now.Sub(lastTime).Seconds(); elapsed > 0 {
				rate = float64(snap.Seen-last.Seen) / elapsed
			}
			r.log.Infof("Progress: %d seen, %d written, %d filtered, %d failed (%.1f records/s)",
				snap.Seen, snap.Written, snap.Filtered, snap.Failed, rate)

			last = snap
			lastTime = now
			ticker = r.clock.After(r.interval)
		}
	}
}

// Stop halts the reporter and logs a final summary. It must be called
// exactly once, after Start.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done

	snap := r.snapshot()
	r.log.Infof("Final: %d seen, %d written, %d filtered, %d duplicates, %d failed",
		snap.Seen, snap.Written, snap.Filtered, snap.Duplicates, snap.Failed)
}
