package gate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

var tracer = otel.Tracer("github.com/danielpatrickdp/muse-gate/internal/gate")

// #region gate
// Gate decides whether a learner may advance. It holds no per-learner state;
// every call is fully described by its request.
type Gate struct {
	classifier *classifier.Classifier
	evaluator  Evaluator
	audit      Auditor
	logger     *zap.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClassifier replaces the default screening thresholds.
func WithClassifier(c *classifier.Classifier) Option {
	return func(g *Gate) { g.classifier = c }
}

// WithAuditor sends one record per decision to a.
func WithAuditor(a Auditor) Option {
	return func(g *Gate) { g.audit = a }
}

// WithLogger attaches a logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// New creates a gate over an evaluator.
func New(eval Evaluator, opts ...Option) *Gate {
	g := &Gate{
		classifier: classifier.New(classifier.DefaultConfig()),
		evaluator:  eval,
		audit:      nopAuditor{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// #endregion gate

// #region run
// Run screens, decides, and (when warranted) consults the evaluator.
// Expected outcomes come back in Result. Only evaluator failures
// (*evaluator.Error) and invalid requests return an error.
func (g *Gate) Run(ctx context.Context, req stage.Request) (Result, error) {
	start := time.Now()
	auditID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "gate.run",
		trace.WithAttributes(
			attribute.String("gate.stage", string(req.Stage)),
			attribute.Int("gate.section_index", req.SectionIndex),
			attribute.Int("gate.history_len", len(req.History)),
		))
	defer span.End()

	policy, err := stage.For(req.Stage)
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.SectionIndex < 0 {
		span.SetStatus(codes.Error, "invalid request")
		return Result{}, fmt.Errorf("%w: negative section index %d", ErrInvalidRequest, req.SectionIndex)
	}

	out := logging.OutputSnapshot{}
	finish := func(res Result) Result {
		res.AuditID = auditID
		out.Feedback = res.Feedback
		out.CanAdvance = res.CanAdvance
		out.NeedsMoreConversation = res.NeedsMoreConversation
		out.ExtractedFields = maps.Clone(res.ExtractedFields)
		g.emit(auditID, req, res.Outcome, out, start)
		span.SetAttributes(
			attribute.String("gate.outcome", string(res.Outcome)),
			attribute.Bool("gate.can_advance", res.CanAdvance))
		g.logger.Info("[GATE] decision",
			zap.String("audit_id", auditID),
			zap.String("learner_id", req.LearnerID),
			zap.String("stage", string(req.Stage)),
			zap.String("outcome", string(res.Outcome)),
			zap.Bool("can_advance", res.CanAdvance),
			zap.Duration("elapsed", time.Since(start)))
		return res
	}

	// 1. Screen. An extraction stage with nothing said yet skips straight to
	// the turn policy, which reports that more conversation is needed.
	subject := policy.Subject(req)
	if !(policy.Extracts() && subject == "") {
		verdict := g.classifier.Classify(subject)
		out.Classifier = logging.ClassifierSnapshot{
			IsGibberish:      verdict.IsGibberish,
			HasBasicMeaning:  verdict.HasBasicMeaning,
			MeaninglessRatio: g.classifier.Config().MeaninglessRatio,
		}
		if verdict.Rejects() {
			outcome := OutcomeRejected
			if !classifier.Judgeable(subject) {
				outcome = OutcomeNotReady
			}
			return finish(Result{
				Feedback: policy.Reject(req, verdict),
				Outcome:  outcome,
			}), nil
		}
	}

	// 2. Turn policy.
	decision := policy.Decide(req)
	out.EligibleFields = slices.Clone(decision.Eligible)
	if !decision.ShouldEvaluate {
		return finish(Result{
			NeedsMoreConversation: true,
			Outcome:               OutcomeNeedsMore,
		}), nil
	}

	// 3. Evaluator.
	evalReq := evaluator.Request{
		Persona:        string(req.Stage),
		Prompt:         policy.RenderPrompt(req, decision),
		Inputs:         policy.Inputs(req),
		ConversationID: req.ConversationID,
		User:           req.LearnerID,
	}
	if policy.Extracts() {
		evalReq.Fields = decision.Eligible
	}
	out.EvaluatorCalled = true
	verdict, err := g.evaluator.Evaluate(ctx, evalReq)
	if err != nil {
		out.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.emit(auditID, req, failureOutcome(err), out, start)
		g.logger.Warn("[GATE] evaluator failure",
			zap.String("audit_id", auditID),
			zap.String("learner_id", req.LearnerID),
			zap.String("stage", string(req.Stage)),
			zap.Error(err))
		return Result{}, err
	}

	// 4. Merge.
	res := Result{
		Feedback:        verdict.CleanedFeedback,
		CanAdvance:      verdict.Advance,
		ExtractedFields: verdict.Fields,
		ConversationID:  verdict.ConversationID,
		Outcome:         OutcomeFeedback,
	}
	if res.CanAdvance {
		res.Outcome = OutcomeAdvance
	}
	return finish(res), nil
}

func failureOutcome(err error) Outcome {
	if errors.Is(err, evaluator.ErrTimeout) {
		return OutcomeTimeout
	}
	return OutcomeUnavailable
}

// #endregion run

// #region audit
func (g *Gate) emit(id string, req stage.Request, outcome Outcome, out logging.OutputSnapshot, start time.Time) {
	out.ElapsedMS = time.Since(start).Milliseconds()
	g.audit.Emit(logging.AuditRecord{
		ID:        id,
		LearnerID: req.LearnerID,
		Stage:     string(req.Stage),
		Outcome:   string(outcome),
		Input:     snapshotInput(req),
		Output:    out,
		CreatedAt: time.Now().UTC(),
	})
}

func snapshotInput(req stage.Request) logging.InputSnapshot {
	in := logging.InputSnapshot{
		CurrentText:    req.CurrentText,
		SectionIndex:   req.SectionIndex,
		ConversationID: req.ConversationID,
	}
	if len(req.History) > 0 {
		in.History = make([]logging.TurnSnapshot, len(req.History))
		for i, t := range req.History {
			in.History[i] = logging.TurnSnapshot{Role: string(t.Role), Content: t.Content}
		}
	}
	if len(req.Context) > 0 {
		in.Context = make(map[string]string, len(req.Context))
		for k, v := range req.Context {
			in.Context[k] = v
		}
	}
	return in
}

// #endregion audit
