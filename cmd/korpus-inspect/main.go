package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cognicore/aviskorpus/pkg/korpus/corpus"
)

type report struct {
	Partitions []partitionJSON `json:"partitions"`
	Records    int64           `json:"records"`
	Tokens     int64           `json:"tokens"`
	Years      map[int]int64   `json:"years"`
	Duplicates []duplicateJSON `json:"duplicates,omitempty"`
}

type partitionJSON struct {
	File    string           `json:"file"`
	Records int64            `json:"records"`
	Tokens  int64            `json:"tokens"`
	Domains map[string]int64 `json:"domains"`
	Years   map[int]int64    `json:"years"`
	Runs    []runJSON        `json:"runs"`
}

type runJSON struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Append    bool   `json:"append"`
	Records   int64  `json:"records"`
}

type duplicateJSON struct {
	File   string   `json:"file"`
	Hashes []string `json:"hashes"`
}

func main() {
	var (
		input  = flag.String("input", "", "Corpus file or directory of them (required)")
		verify = flag.Bool("verify", false, "Cross-check that no hash repeats within a run")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("--input required")
	}

	ctx := context.Background()

	files, err := collectUnits(*input)
	if err != nil {
		log.Fatalf("collect corpus files: %v", err)
	}

	rep := report{Years: make(map[int]int64)}
	for _, file := range files {
		part, dups, err := inspectFile(ctx, file, *verify)
		if err != nil {
			log.Fatalf("inspect %s: %v", file, err)
		}
		rep.Partitions = append(rep.Partitions, part)
		rep.Records += part.Records
		rep.Tokens += part.Tokens
		for year, count := range part.Years {
			rep.Years[year] += count
		}
		if len(dups) > 0 {
			rep.Duplicates = append(rep.Duplicates, duplicateJSON{
				File:   part.File,
				Hashes: dups,
			})
		}
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("marshal report: %v", err)
	}
	fmt.Println(string(out))

	if len(rep.Duplicates) > 0 {
		log.Fatalf("verification failed: repeated hashes in %d of %d files", len(rep.Duplicates), len(files))
	}
}

func collectUnits(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	files, err := filepath.Glob(filepath.Join(input, "*.db"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no corpus files under %s", input)
	}
	return files, nil
}

func inspectFile(ctx context.Context, path string, verify bool) (partitionJSON, []string, error) {
	reader, err := corpus.OpenReader(path)
	if err != nil {
		return partitionJSON{}, nil, err
	}
	defer reader.Close()

	sum, err := reader.Summarize(ctx)
	if err != nil {
		return partitionJSON{}, nil, err
	}

	part := partitionJSON{
		File:    filepath.Base(path),
		Records: sum.Records,
		Tokens:  sum.Tokens,
		Domains: sum.Domains,
		Years:   sum.Years,
	}
	for _, run := range sum.Runs {
		part.Runs = append(part.Runs, runJSON{
			RunID:     run.RunID,
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Append:    run.Append,
			Records:   run.Records,
		})
	}

	var dups []string
	if verify {
		dups, err = reader.DuplicateHashes(ctx)
		if err != nil {
			return partitionJSON{}, nil, err
		}
	}
	return part, dups, nil
}
