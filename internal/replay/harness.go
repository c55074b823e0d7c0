package replay

import (
	"context"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// #region types

// Replayed outcomes beyond the gate's own.
const (
	// OutcomeScreenPass means screening and turn policy let the request
	// through to the evaluator. Replay never calls a real evaluator, so every
	// evaluator-side outcome collapses to this one.
	OutcomeScreenPass = "screen_pass"
	// OutcomeInvalid means the recorded input no longer forms a valid request.
	OutcomeInvalid = "invalid"
)

// Interaction is one recorded decision to re-screen.
type Interaction struct {
	AuditID  string
	Request  stage.Request
	Recorded string // outcome at the time of the decision
}

// ReplayResult captures one re-screened decision.
type ReplayResult struct {
	AuditID  string
	Stage    string
	Recorded string // ScreenClass of the recorded outcome
	Replayed string // ScreenClass of the replayed outcome
	Feedback string // learner-facing text for rejections
	Changed  bool
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Total         int
	Unchanged     int
	NewlyRejected int // passed when recorded, refused now
	NewlyPassed   int // refused when recorded, passes now
	OtherChanges  int
	ByOutcome     map[string]int // replayed outcome counts
}

// #endregion types

// #region convert

// RequestFromSnapshot rebuilds a gate request from an audit input snapshot.
func RequestFromSnapshot(stageName, learnerID string, in logging.InputSnapshot) stage.Request {
	req := stage.Request{
		Stage:          stage.Kind(stageName),
		LearnerID:      learnerID,
		CurrentText:    in.CurrentText,
		SectionIndex:   in.SectionIndex,
		ConversationID: in.ConversationID,
	}
	if len(in.History) > 0 {
		req.History = make([]stage.Turn, len(in.History))
		for i, t := range in.History {
			req.History[i] = stage.Turn{Role: stage.Role(t.Role), Content: t.Content}
		}
	}
	if len(in.Context) > 0 {
		req.Context = make(map[string]string, len(in.Context))
		for k, v := range in.Context {
			req.Context[k] = v
		}
	}
	return req
}

// FromRecord converts an audit record into a replay interaction.
func FromRecord(rec logging.AuditRecord) Interaction {
	return Interaction{
		AuditID:  rec.ID,
		Request:  RequestFromSnapshot(rec.Stage, rec.LearnerID, rec.Input),
		Recorded: rec.Outcome,
	}
}

// ScreenClass folds outcomes that depend on the evaluator into
// OutcomeScreenPass, leaving the screening outcomes as they are.
func ScreenClass(outcome string) string {
	switch gate.Outcome(outcome) {
	case gate.OutcomeAdvance, gate.OutcomeFeedback, gate.OutcomeTimeout, gate.OutcomeUnavailable:
		return OutcomeScreenPass
	}
	return outcome
}

// #endregion convert

// #region replay

// passEvaluator stands in for the upstream service. Reaching it is the
// replayed answer.
type passEvaluator struct{}

func (passEvaluator) Evaluate(context.Context, evaluator.Request) (evaluator.Verdict, error) {
	return evaluator.Verdict{}, nil
}

// Replay re-runs every interaction through the gate under cfg, without
// contacting the evaluator or writing audit records.
func Replay(ctx context.Context, interactions []Interaction, cfg classifier.Config) []ReplayResult {
	g := gate.New(passEvaluator{}, gate.WithClassifier(classifier.New(cfg)))
	results := make([]ReplayResult, 0, len(interactions))

	for _, inter := range interactions {
		r := ReplayResult{
			AuditID:  inter.AuditID,
			Stage:    string(inter.Request.Stage),
			Recorded: ScreenClass(inter.Recorded),
		}
		res, err := g.Run(ctx, inter.Request)
		if err != nil {
			// passEvaluator never fails, so only request validation gets here.
			r.Replayed = OutcomeInvalid
		} else {
			r.Replayed = ScreenClass(string(res.Outcome))
			if refused(r.Replayed) {
				r.Feedback = res.Feedback
			}
		}
		r.Changed = r.Recorded != r.Replayed
		results = append(results, r)
	}
	return results
}

// Summarize computes aggregate drift from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{
		Total:     len(results),
		ByOutcome: make(map[string]int),
	}
	for _, r := range results {
		s.ByOutcome[r.Replayed]++
		switch {
		case !r.Changed:
			s.Unchanged++
		case r.Recorded == OutcomeScreenPass && refused(r.Replayed):
			s.NewlyRejected++
		case refused(r.Recorded) && r.Replayed == OutcomeScreenPass:
			s.NewlyPassed++
		default:
			s.OtherChanges++
		}
	}
	return s
}

func refused(outcome string) bool {
	return outcome == string(gate.OutcomeRejected) || outcome == string(gate.OutcomeNotReady)
}

// #endregion replay
