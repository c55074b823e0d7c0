package replay

import (
	"context"
	"testing"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// helper: free-writing interaction with a recorded outcome.
func writing(id, text, recorded string) Interaction {
	return Interaction{
		AuditID:  id,
		Request:  stage.Request{Stage: stage.FreeWriting, LearnerID: "kid-1", CurrentText: text},
		Recorded: recorded,
	}
}

func TestScreenClass(t *testing.T) {
	tests := []struct {
		outcome string
		want    string
	}{
		{"advance", OutcomeScreenPass},
		{"feedback", OutcomeScreenPass},
		{"evaluator_timeout", OutcomeScreenPass},
		{"evaluator_unavailable", OutcomeScreenPass},
		{"rejected", "rejected"},
		{"not_ready", "not_ready"},
		{"needs_more_conversation", "needs_more_conversation"},
	}
	for _, tt := range tests {
		if got := ScreenClass(tt.outcome); got != tt.want {
			t.Errorf("ScreenClass(%q) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestReplay_NewlyPassed(t *testing.T) {
	// Recorded under a strict ratio, replayed under the default.
	inters := []Interaction{writing("w1", "dog ran @#@#@# fast", "rejected")}
	results := Replay(context.Background(), inters, classifier.DefaultConfig())

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Replayed != OutcomeScreenPass || !r.Changed {
		t.Errorf("expected changed screen_pass, got %+v", r)
	}
	if s := Summarize(results); s.NewlyPassed != 1 || s.NewlyRejected != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestReplay_InvalidStage(t *testing.T) {
	inters := []Interaction{{
		AuditID:  "x1",
		Request:  stage.Request{Stage: "poetry", CurrentText: "Roses are red and violets are blue."},
		Recorded: "feedback",
	}}
	results := Replay(context.Background(), inters, classifier.DefaultConfig())
	if results[0].Replayed != OutcomeInvalid || !results[0].Changed {
		t.Errorf("expected invalid, got %+v", results[0])
	}
	if s := Summarize(results); s.OtherChanges != 1 {
		t.Errorf("expected one other change, got %+v", s)
	}
}

func TestReplay_Empty(t *testing.T) {
	results := Replay(context.Background(), nil, classifier.DefaultConfig())
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	s := Summarize(results)
	if s.Total != 0 || len(s.ByOutcome) != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestSummarize_ByOutcome(t *testing.T) {
	results := []ReplayResult{
		{Recorded: OutcomeScreenPass, Replayed: OutcomeScreenPass},
		{Recorded: "rejected", Replayed: "rejected"},
		{Recorded: OutcomeScreenPass, Replayed: "not_ready", Changed: true},
	}
	s := Summarize(results)
	if s.Unchanged != 2 || s.NewlyRejected != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ByOutcome[OutcomeScreenPass] != 1 || s.ByOutcome["rejected"] != 1 || s.ByOutcome["not_ready"] != 1 {
		t.Errorf("unexpected counts: %v", s.ByOutcome)
	}
}

func TestFromRecord(t *testing.T) {
	rec := logging.AuditRecord{
		ID:        "a1",
		LearnerID: "kid-9",
		Stage:     "plot_brainstorm",
		Outcome:   "advance",
		Input: logging.InputSnapshot{
			History: []logging.TurnSnapshot{
				{Role: "student", Content: "A robot wants to see the sea."},
				{Role: "assistant", Content: "Why the sea?"},
			},
			Context:        map[string]string{"book_title": "Robots"},
			SectionIndex:   1,
			ConversationID: "conv-1",
		},
	}
	inter := FromRecord(rec)
	req := inter.Request

	if inter.AuditID != "a1" || inter.Recorded != "advance" {
		t.Errorf("unexpected interaction: %+v", inter)
	}
	if req.Stage != stage.PlotBrainstorm || req.LearnerID != "kid-9" || req.SectionIndex != 1 || req.ConversationID != "conv-1" {
		t.Errorf("unexpected request: %+v", req)
	}
	if got := req.StudentTurns(); len(got) != 1 || got[0] != "A robot wants to see the sea." {
		t.Errorf("unexpected student turns: %v", got)
	}
	rec.Input.Context["book_title"] = "changed"
	if req.Context["book_title"] != "Robots" {
		t.Error("expected context to be copied")
	}
}
