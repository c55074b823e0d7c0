package stage

// #region imports
import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
)

// #endregion

// #region policy

// Policy is the per-stage rule set consulted by the gate.
type Policy interface {
	Kind() Kind
	// Extracts reports whether the stage mines structured fields from conversation.
	Extracts() bool
	// Subject returns the learner text the classifier should screen.
	Subject(req Request) string
	// Decide says whether enough has been said to consult the evaluator.
	Decide(req Request) Decision
	// RenderPrompt builds the instruction text sent to the evaluator.
	RenderPrompt(req Request, d Decision) string
	// Inputs returns the structured context sent alongside the prompt.
	Inputs(req Request) map[string]string
	// Reject synthesizes corrective feedback when screening refuses the text.
	Reject(req Request, v classifier.Verdict) string
}

// ErrUnknownStage is returned for a stage kind with no registered policy.
var ErrUnknownStage = errors.New("unknown stage")

// #endregion

// #region registry

// Policies maps every stage kind to its policy.
var Policies = map[Kind]Policy{
	PlotBrainstorm: plotPolicy{},
	LetterWriting:  letterWriting,
	FreeWriting:    freeWriting,
	BookReview:     bookReview,
	LetterSetup:    setupPolicy{},
}

// For returns the policy registered for kind.
func For(kind Kind) (Policy, error) {
	p, ok := Policies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, kind)
	}
	return p, nil
}

// Decide applies the stage's turn policy to a conversation.
func Decide(kind Kind, history []Turn, sectionIndex int) (Decision, error) {
	p, err := For(kind)
	if err != nil {
		return Decision{}, err
	}
	return p.Decide(Request{Stage: kind, History: history, SectionIndex: sectionIndex}), nil
}

// RenderPrompt renders the evaluator prompt for req using its stage's policy.
func RenderPrompt(kind Kind, req Request) (string, error) {
	p, err := For(kind)
	if err != nil {
		return "", err
	}
	return p.RenderPrompt(req, p.Decide(req)), nil
}

// ParseKind validates a stage name from the wire.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Policies[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
	return k, nil
}

// #endregion

// #region helpers

func trim(s string) string {
	return strings.TrimSpace(s)
}

func orDefault(s, fallback string) string {
	if s = trim(s); s == "" {
		return fallback
	}
	return s
}

// splitOutline accepts one section per line or sections joined with "->".
func splitOutline(outline string) []string {
	sep := "->"
	if strings.Contains(outline, "\n") {
		sep = "\n"
	}
	var out []string
	for _, part := range strings.Split(outline, sep) {
		if part = trim(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// #endregion
