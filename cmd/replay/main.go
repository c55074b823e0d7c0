package main

import (
	"context"
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
	dbPath := flag.String("db", "", "path to muse_gate.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	last := flag.Int("last", 200, "DB mode: number of most recent decisions to replay")
	stageName := flag.String("stage", "", "DB mode: only replay one stage")
	ratio := flag.Float64("ratio", 0, "candidate meaningless ratio (default: recorded or 0.5)")
	minLen := flag.Int("min-ratio-length", 0, "candidate min ratio length (default: recorded or 10)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/muse_gate.db [--last N] [--stage name] [--ratio R]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--ratio R]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *ratio, *minLen)
	} else {
		exitCode = runDBMode(*dbPath, store.Filter{Stage: *stageName, Limit: *last}, *ratio, *minLen)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runDBMode(dbPath string, f store.Filter, ratio float64, minLen int) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	records, err := st.ListAudit(context.Background(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list audit: %v\n", err)
		return 2
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found in audit_log")
		return 2
	}
	slices.Reverse(records)

	interactions := make([]replay.Interaction, len(records))
	for i, rec := range records {
		interactions[i] = replay.FromRecord(rec)
	}

	cfg := candidate(classifier.DefaultConfig(), ratio, minLen)
	return report(replay.Replay(context.Background(), interactions, cfg), cfg)
}

func runFixtureMode(path string, ratio float64, minLen int) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}

	cfg := candidate(f.Config.ToClassifierConfig(), ratio, minLen)
	return report(replay.Replay(context.Background(), f.ToInteractions(), cfg), cfg)
}

// candidate overrides base with any thresholds given on the command line.
func candidate(base classifier.Config, ratio float64, minLen int) classifier.Config {
	if ratio > 0 {
		base.MeaninglessRatio = ratio
	}
	if minLen > 0 {
		base.MinRatioLength = minLen
	}
	return base
}

// #endregion modes

// #region output

// report prints a comparison table and returns the exit code: 1 when any
// screening outcome drifted.
func report(results []replay.ReplayResult, cfg classifier.Config) int {
	fmt.Printf("Candidate thresholds: ratio=%.2f min_ratio_length=%d\n\n", cfg.MeaninglessRatio, cfg.MinRatioLength)
	fmt.Printf("%-12s| %-16s| %-24s| %-24s| %s\n", "Decision", "Stage", "Recorded", "Replayed", "Match")
	fmt.Printf("%-12s+%-17s+%-25s+%-25s+%s\n",
		"------------", "-----------------", "-------------------------", "-------------------------", "------")

	for _, r := range results {
		match := "OK"
		if r.Changed {
			match = "DIFF"
		}
		fmt.Printf("%-12s| %-16s| %-24s| %-24s| %s\n", shortID(r.AuditID), r.Stage, r.Recorded, r.Replayed, match)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d newly rejected, %d newly passed, %d other\n",
		s.Total, s.Unchanged, s.NewlyRejected, s.NewlyPassed, s.OtherChanges)

	if s.Unchanged < s.Total {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
