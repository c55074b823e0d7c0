package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/replay"
	"github.com/danielpatrickdp/muse-gate/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to muse_gate.db")
	last := flag.Int("last", 50, "number of most recent decisions to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	learner := flag.String("learner", "", "only export one learner")
	stageName := flag.String("stage", "", "only export one stage")
	ratio := flag.Float64("ratio", classifier.DefaultConfig().MeaninglessRatio, "meaningless ratio the decisions were made under")
	minLen := flag.Int("min-ratio-length", classifier.DefaultConfig().MinRatioLength, "min ratio length the decisions were made under")
	desc := flag.String("desc", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--last N] [--learner id] [--stage name] [--ratio R]")
		os.Exit(2)
	}

	f := store.Filter{LearnerID: *learner, Stage: *stageName, Limit: *last}
	cfg := classifier.Config{MeaninglessRatio: *ratio, MinRatioLength: *minLen}
	if err := run(*dbPath, f, cfg, *desc, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath string, f store.Filter, cfg classifier.Config, desc, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	records, err := st.ListAudit(context.Background(), f)
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no decisions found in last %d audit entries", f.Limit)
	}
	// Newest first from the store, fixtures read chronologically.
	slices.Reverse(records)

	if desc == "" {
		desc = fmt.Sprintf("Exported from %s: %d decisions", dbPath, len(records))
	}
	fixture := replay.FixtureFromRecords(desc, cfg, records)

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Fprintf(os.Stderr, "exported %d decisions to %s\n", len(records), outPath)
	return nil
}

// #endregion export
