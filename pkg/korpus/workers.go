package korpus

import (
	"context"
	"hash/fnv"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/aviskorpus/pkg/korpus/filter"
	"github.com/cognicore/aviskorpus/pkg/korpus/source"
)

// routeQueueDepth bounds how far the router may run ahead of a worker.
const routeQueueDepth = 64

// job is one filter-accepted record on its way to tokenization.
type job struct {
	rec    source.Record
	pub    filter.Publication
	serial int64
}

// physicalCores resolves the worker count for Workers == 0.
func physicalCores() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// consumeParallel fans filter-accepted records out to workers. The
// router stays single-threaded so serials follow stream order, and
// records are routed by partition key so one partition is only ever
// written by one worker; that keeps the writer's duplicate probes and
// batch flushes as safe as in the sequential pass.
func (p *Pipeline) consumeParallel(ctx context.Context, stream source.Stream, workers int) error {
	g, ctx := errgroup.WithContext(ctx)

	queues := make([]chan job, workers)
	for i := range queues {
		queues[i] = make(chan job, routeQueueDepth)
	}

	for i := 0; i < workers; i++ {
		queue := queues[i]
		g.Go(func() error {
			for j := range queue {
				if err := p.handle(ctx, j); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()

		for stream.Next(ctx) {
			rec := stream.Record()
			p.stats.seen.Add(1)

			pub, ok := p.filter.Match(rec.Domain)
			if !ok {
				p.stats.filtered.Add(1)
				continue
			}

			j := job{rec: rec, pub: pub}
			if p.opts.Serials {
				j.serial = p.nextSerial()
			}

			select {
			case queues[p.routeIndex(j, workers)] <- j:
			case <-ctx.Done():
				// A worker already failed; its error wins in Wait.
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// routeIndex pins a record's partition to one worker. Keys derive from
// the publication domain, the same way handle files the record.
func (p *Pipeline) routeIndex(j job, workers int) int {
	key := p.writer.Scheme().KeyFor(j.pub.Domain, j.rec.CapturedAt.UTC().Year())
	h := fnv.New32a()
	h.Write([]byte(key.Filename()))
	return int(h.Sum32() % uint32(workers))
}
