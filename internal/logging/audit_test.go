package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE audit_log (
		id          TEXT PRIMARY KEY,
		learner_id  TEXT,
		stage       TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		input_json  TEXT NOT NULL,
		output_json TEXT NOT NULL,
		error       TEXT,
		created_at  TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func sampleRecord() AuditRecord {
	return AuditRecord{
		ID:        "rec-1",
		LearnerID: "kid-1",
		Stage:     "book_review",
		Outcome:   "advance",
		Input: InputSnapshot{
			CurrentText:  "I liked how the hero saved his friend at the end.",
			Context:      map[string]string{"book_title": "Holes"},
			SectionIndex: 1,
		},
		Output: OutputSnapshot{
			Feedback:        "Great job!",
			CanAdvance:      true,
			Classifier:      ClassifierSnapshot{HasBasicMeaning: true, MeaninglessRatio: 0.5},
			EvaluatorCalled: true,
			ElapsedMS:       12,
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogDecision(context.Background(), db, sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var id, stage, outcome, outputJSON string
	db.QueryRow("SELECT id, stage, outcome, output_json FROM audit_log").Scan(&id, &stage, &outcome, &outputJSON)
	if id != "rec-1" {
		t.Errorf("expected id 'rec-1', got %q", id)
	}
	if stage != "book_review" || outcome != "advance" {
		t.Errorf("got stage %q outcome %q", stage, outcome)
	}

	var out OutputSnapshot
	if err := json.Unmarshal([]byte(outputJSON), &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out.Feedback != "Great job!" || !out.CanAdvance {
		t.Errorf("output snapshot not preserved: %+v", out)
	}
}

func TestLogDecision_FillsIDAndCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := AuditRecord{Stage: "plot_brainstorm", Outcome: "needs_more_conversation"}

	before := time.Now().UTC()
	if err := LogDecision(context.Background(), db, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var id, createdAtStr string
	db.QueryRow("SELECT id, created_at FROM audit_log").Scan(&id, &createdAtStr)
	if id == "" {
		t.Error("expected generated id")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := sampleRecord()
	rec.LearnerID = ""
	if err := LogDecision(context.Background(), db, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var learnerID, errText sql.NullString
	db.QueryRow("SELECT learner_id, error FROM audit_log").Scan(&learnerID, &errText)
	if learnerID.Valid {
		t.Error("expected NULL learner_id for empty string")
	}
	if errText.Valid {
		t.Error("expected NULL error for successful decision")
	}
}

func TestLogDecision_ErrorColumn(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := sampleRecord()
	rec.Outcome = "evaluator_timeout"
	rec.Output = OutputSnapshot{EvaluatorCalled: true, Error: "evaluator_timeout: no response within deadline"}
	if err := LogDecision(context.Background(), db, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var errText sql.NullString
	db.QueryRow("SELECT error FROM audit_log").Scan(&errText)
	if !errText.Valid || errText.String != rec.Output.Error {
		t.Errorf("expected error column %q, got %+v", rec.Output.Error, errText)
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogDecision(context.Background(), db, sampleRecord()); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestSQLiteSink_Write(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	sink := NewSQLiteSink(db)
	if err := sink.Write(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

// #endregion log-decision-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
