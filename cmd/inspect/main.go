package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to muse_gate.db")
	last := flag.Int("last", 20, "show N most recent decisions")
	id := flag.String("id", "", "show single decision detail")
	learner := flag.String("learner", "", "filter to one learner")
	stageName := flag.String("stage", "", "filter to one stage")
	outcome := flag.String("outcome", "", "filter to one outcome")
	counts := flag.Bool("counts", false, "show outcome counts instead of rows")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/muse_gate.db [--last N] [--id audit-id] [--learner id] [--stage name] [--outcome name] [--counts] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	switch {
	case *id != "":
		err = runDetailMode(ctx, st, *id, *jsonOut)
	case *counts:
		err = runCountsMode(ctx, st, *stageName, *jsonOut)
	default:
		f := store.Filter{LearnerID: *learner, Stage: *stageName, Outcome: *outcome, Limit: *last}
		err = runListMode(ctx, st, f, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ID        string `json:"id"`
	LearnerID string `json:"learner_id"`
	Stage     string `json:"stage"`
	Outcome   string `json:"outcome"`
	Advance   bool   `json:"can_advance"`
	Evaluated bool   `json:"evaluator_called"`
	ElapsedMS int64  `json:"elapsed_ms"`
	CreatedAt string `json:"created_at"`
	Text      string `json:"text"`
}

func runListMode(ctx context.Context, st *store.Store, f store.Filter, jsonOut bool) error {
	records, err := st.ListAudit(ctx, f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}

	// Store returns newest first, reverse for chronological.
	rows := make([]listRow, len(records))
	for i, rec := range records {
		rows[len(records)-1-i] = listRow{
			ID:        rec.ID,
			LearnerID: rec.LearnerID,
			Stage:     rec.Stage,
			Outcome:   rec.Outcome,
			Advance:   rec.Output.CanAdvance,
			Evaluated: rec.Output.EvaluatorCalled,
			ElapsedMS: rec.Output.ElapsedMS,
			CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Text:      subjectText(rec),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	return printListTable(rows)
}

func printListTable(rows []listRow) error {
	fmt.Printf("%-8s  %-10s  %-15s  %-23s  %-4s  %7s  %-20s  %s\n",
		"ID", "Learner", "Stage", "Outcome", "Eval", "Ms", "Time", "Text")
	fmt.Printf("%-8s+-%-10s+-%-15s+-%-23s+-%-4s+-%7s+-%-20s+-%s\n",
		"--------", "----------", "---------------", "-----------------------", "----", "-------", "--------------------", "------------------------")

	for _, r := range rows {
		eval := "no"
		if r.Evaluated {
			eval = "yes"
		}
		fmt.Printf("%-8s  %-10s  %-15s  %-23s  %-4s  %7d  %-20s  %s\n",
			shortID(r.ID), clip(r.LearnerID, 10), r.Stage, r.Outcome, eval, r.ElapsedMS, r.CreatedAt, clip(r.Text, 40))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(ctx context.Context, st *store.Store, id string, jsonOut bool) error {
	rec, err := st.GetAudit(ctx, id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rec)
	}

	fmt.Printf("ID:          %s\n", rec.ID)
	fmt.Printf("Learner:     %s\n", rec.LearnerID)
	fmt.Printf("Stage:       %s\n", rec.Stage)
	fmt.Printf("Outcome:     %s\n", rec.Outcome)
	fmt.Printf("Created:     %s\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Elapsed:     %dms\n", rec.Output.ElapsedMS)

	fmt.Printf("\nInput:\n")
	fmt.Printf("  Section:   %d\n", rec.Input.SectionIndex)
	if rec.Input.CurrentText != "" {
		fmt.Printf("  Text:      %s\n", rec.Input.CurrentText)
	}
	for _, t := range rec.Input.History {
		fmt.Printf("  [%s] %s\n", t.Role, t.Content)
	}
	printMap("  Context", rec.Input.Context)

	c := rec.Output.Classifier
	fmt.Printf("\nClassifier:\n")
	fmt.Printf("  Gibberish:     %v\n", c.IsGibberish)
	fmt.Printf("  Basic meaning: %v\n", c.HasBasicMeaning)
	fmt.Printf("  Ratio:         %.2f\n", c.MeaninglessRatio)

	fmt.Printf("\nOutput:\n")
	fmt.Printf("  Evaluator:  %v\n", rec.Output.EvaluatorCalled)
	fmt.Printf("  Advance:    %v\n", rec.Output.CanAdvance)
	if len(rec.Output.EligibleFields) > 0 {
		fmt.Printf("  Eligible:   %s\n", strings.Join(rec.Output.EligibleFields, ", "))
	}
	if rec.Output.Feedback != "" {
		fmt.Printf("  Feedback:   %s\n", rec.Output.Feedback)
	}
	printMap("  Fields", rec.Output.ExtractedFields)
	if rec.Output.Error != "" {
		fmt.Printf("  Error:      %s\n", rec.Output.Error)
	}
	return nil
}

// #endregion detail-mode

// #region counts-mode

func runCountsMode(ctx context.Context, st *store.Store, stageName string, jsonOut bool) error {
	counts, err := st.OutcomeCounts(ctx, stageName)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(counts)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}
	for _, k := range sortedKeys(counts) {
		fmt.Printf("  %-24s %6d  %5.1f%%\n", k, counts[k], 100*float64(counts[k])/float64(total))
	}
	fmt.Printf("  %-24s %6d\n", "total", total)
	return nil
}

// #endregion counts-mode

// #region output

// subjectText is the text a reader most wants to see in one line.
func subjectText(rec logging.AuditRecord) string {
	if rec.Input.CurrentText != "" {
		return rec.Input.CurrentText
	}
	for i := len(rec.Input.History) - 1; i >= 0; i-- {
		if rec.Input.History[i].Role == "student" {
			return rec.Input.History[i].Content
		}
	}
	return ""
}

func printMap[V any](label string, m map[string]V) {
	if len(m) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, k := range sortedKeys(m) {
		fmt.Printf("    %-14s %v\n", k, m[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
