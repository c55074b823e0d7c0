package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

type cannedEvaluator struct {
	verdict evaluator.Verdict
	err     error
	calls   int
}

func (c *cannedEvaluator) Evaluate(context.Context, evaluator.Request) (evaluator.Verdict, error) {
	c.calls++
	return c.verdict, c.err
}

func TestSession_PlotAccumulatesTurns(t *testing.T) {
	s := newSession(stage.PlotBrainstorm, "kid-1", nil, 0)

	req := s.prepare("A fox lives in a hollow tree.")
	if len(req.History) != 1 || req.History[0].Role != stage.RoleStudent {
		t.Fatalf("expected the typed line as the only student turn, got %+v", req.History)
	}

	s.apply("A fox lives in a hollow tree.", gate.Result{Outcome: gate.OutcomeFeedback, Feedback: "What does the fox want?", ConversationID: "conv-1"})
	if len(s.history) != 2 || s.history[1].Role != stage.RoleAssistant {
		t.Fatalf("expected student and assistant turns, got %+v", s.history)
	}
	if s.conversationID != "conv-1" {
		t.Errorf("expected conversation id to be kept, got %q", s.conversationID)
	}

	s.apply("qwerty", gate.Result{Outcome: gate.OutcomeRejected, Feedback: "Try again"})
	if len(s.history) != 2 {
		t.Errorf("rejected lines must not enter the history, got %d turns", len(s.history))
	}

	req = s.prepare("She wants to find her lost map.")
	if len(req.History) != 3 || req.ConversationID != "conv-1" {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(s.history) != 2 {
		t.Error("prepare must not mutate the session history")
	}
}

func TestSession_SectionAdvance(t *testing.T) {
	s := newSession(stage.FreeWriting, "kid-1", nil, 1)
	s.apply("text", gate.Result{Outcome: gate.OutcomeFeedback})
	if s.section != 1 {
		t.Errorf("feedback must not move the section, got %d", s.section)
	}
	s.apply("text", gate.Result{Outcome: gate.OutcomeAdvance, CanAdvance: true})
	if s.section != 2 {
		t.Errorf("expected section 2 after advance, got %d", s.section)
	}
	s.reset()
	if s.section != 1 || s.history != nil {
		t.Errorf("reset should return to the starting section, got %d", s.section)
	}
}

func TestRepl(t *testing.T) {
	logger = zap.NewNop()
	eval := &cannedEvaluator{verdict: evaluator.Verdict{Advance: true, CleanedFeedback: "Great job!"}}
	g := gate.New(eval)
	sess := newSession(stage.FreeWriting, "kid-1", nil, 0)

	in := strings.NewReader("asdfasdf\n\nMy cat likes to nap in the sun.\nquit\nnever read\n")
	var out bytes.Buffer
	if err := repl(context.Background(), g, sess, in, &out); err != nil {
		t.Fatalf("repl: %v", err)
	}

	got := out.String()
	for _, want := range []string{"rejected", "advance", "Great job!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if eval.calls != 1 {
		t.Errorf("expected one evaluator call, got %d", eval.calls)
	}
	if sess.section != 1 {
		t.Errorf("expected to move to section 1, got %d", sess.section)
	}
}

func TestRepl_EvaluatorErrorContinues(t *testing.T) {
	logger = zap.NewNop()
	eval := &cannedEvaluator{err: &evaluator.Error{Kind: evaluator.KindTimeout, Detail: "no reply"}}
	g := gate.New(eval)
	sess := newSession(stage.BookReview, "kid-2", map[string]string{stage.CtxBookTitle: "Holes"}, 0)

	in := strings.NewReader("I liked the ending because it was a surprise.\nI also liked Stanley.\n")
	var out bytes.Buffer
	if err := repl(context.Background(), g, sess, in, &out); err != nil {
		t.Fatalf("repl: %v", err)
	}
	if eval.calls != 2 {
		t.Errorf("expected the loop to keep going after an error, got %d calls", eval.calls)
	}
	if !strings.Contains(out.String(), "evaluator_timeout") {
		t.Errorf("expected the error kind in the output:\n%s", out.String())
	}
	if sess.section != 0 {
		t.Errorf("errors must not move the section, got %d", sess.section)
	}
}
