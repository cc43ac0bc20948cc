package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/cognicore/aviskorpus/internal/progress"
	"github.com/cognicore/aviskorpus/pkg/korpus"
	"github.com/cognicore/aviskorpus/pkg/korpus/corpus"
	"github.com/cognicore/aviskorpus/pkg/korpus/filter"
	"github.com/cognicore/aviskorpus/pkg/korpus/source"
	"github.com/cognicore/aviskorpus/pkg/korpus/tokenize"
)

func main() {
	var (
		host         = flag.String("host", "localhost", "Harvest store host")
		port         = flag.Int("port", 5432, "Harvest store port")
		dbname       = flag.String("dbname", "", "Harvest store database name (required)")
		user         = flag.String("user", "", "Harvest store user")
		password     = flag.String("password", "", "Harvest store password")
		fromYear     = flag.Int("from-year", 2018, "First capture year to extract")
		toYear       = flag.Int("to-year", 2022, "Last capture year to extract")
		sourceBatch  = flag.Int("source-batch", 500, "Records fetched per store query")
		queryTimeout = flag.Duration("query-timeout", 30*time.Second, "Deadline for each store query")

		filterFile = flag.String("filter-file", "", "Publication allow-list YAML (required)")

		outputDir    = flag.String("output-dir", "", "Directory for corpus files (required)")
		partition    = flag.String("partition", "domain", "Partition scheme: domain, year or domain-year")
		batchSize    = flag.Int("batch-size", 200, "Records buffered per partition before a flush")
		appendMode   = flag.Bool("append", false, "Accept hashes written by earlier runs")
		strict       = flag.Bool("strict", false, "Abort the run on the first duplicate")
		namespaceRun = flag.Bool("namespace-run", false, "Place corpus files under <output-dir>/<run-id>/")
		flushTimeout = flag.Duration("flush-timeout", time.Minute, "Deadline for each partition flush")

		keepMarkup  = flag.Bool("keep-markup", false, "Tokenize raw text without stripping markup")
		serialStart = flag.Int64("serial-start", 1, "First serial number to assign")
		noSerials   = flag.Bool("no-serials", false, "Skip serial number assignment")

		workers       = flag.Int("workers", 1, "Partition workers (0 = one per physical core)")
		progressEvery = flag.Duration("progress", progress.DefaultInterval, "Progress log interval (0 disables)")
		logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	)
	flag.Parse()

	if *dbname == "" {
		log.Fatal("--dbname required")
	}
	if *filterFile == "" {
		log.Fatal("--filter-file required")
	}
	if *outputDir == "" {
		log.Fatal("--output-dir required")
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logger := logrus.StandardLogger()

	scheme, err := corpus.ParseScheme(*partition)
	if err != nil {
		log.Fatalf("parse partition scheme: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, draining...")
		cancel()
	}()

	// Load the publication allow-list
	spec, err := filter.Load(*filterFile)
	if err != nil {
		log.Fatalf("load publication list: %v", err)
	}
	log.Printf("Loaded %d publications from %s", spec.Len(), *filterFile)

	// Open the harvest store
	dsn := source.BuildDSN(*host, *port, *dbname, *user, *password)
	db, err := source.Open(ctx, dsn, source.Config{
		BatchSize:    *sourceBatch,
		QueryTimeout: *queryTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("open harvest store: %v", err)
	}
	defer db.Close()

	// Open the corpus writer
	runID := ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
	writer, err := corpus.Open(*outputDir, corpus.Options{
		Scheme:       scheme,
		BatchSize:    *batchSize,
		Append:       *appendMode,
		Strict:       *strict,
		Serials:      !*noSerials,
		RunID:        runID,
		NamespaceRun: *namespaceRun,
		FlushTimeout: *flushTimeout,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("open corpus writer: %v", err)
	}

	pipe, err := korpus.New(korpus.Options{
		Source:      db,
		Filter:      spec,
		Tokenizer:   tokenize.NewNorsk(),
		Writer:      writer,
		Window:      source.YearWindow(*fromYear, *toYear),
		StripMarkup: !*keepMarkup,
		Serials:     !*noSerials,
		SerialStart: *serialStart,
		Workers:     *workers,
		Strict:      *strict,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("configure pipeline: %v", err)
	}

	var reporter *progress.Reporter
	if *progressEvery > 0 {
		reporter = progress.NewReporter(pipe.Stats, *progressEvery, nil, logger)
		reporter.Start()
	}

	log.Printf("Korpus extraction started (run %s, %d-%d)", runID, *fromYear, *toYear)

	stats, err := pipe.Run(ctx)
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		log.Fatalf("extraction failed: %v (%d of %d records written)", err, stats.Written, stats.Seen)
	}

	log.Printf("✓ Extraction complete: %d seen, %d written, %d filtered, %d duplicates, %d failed",
		stats.Seen, stats.Written, stats.Filtered, stats.Duplicates, stats.Failed)
}
