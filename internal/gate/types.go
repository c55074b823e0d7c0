package gate

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
)

// #region outcome
// Outcome names how a gate decision ended. Stored on every audit record.
type Outcome string

const (
	OutcomeAdvance     Outcome = "advance"                 // evaluator said done
	OutcomeFeedback    Outcome = "feedback"                // evaluator replied without done
	OutcomeRejected    Outcome = "rejected"                // classifier refused the text
	OutcomeNotReady    Outcome = "not_ready"               // text too short to judge
	OutcomeNeedsMore   Outcome = "needs_more_conversation" // extraction stage lacks student turns
	OutcomeTimeout     Outcome = "evaluator_timeout"
	OutcomeUnavailable Outcome = "evaluator_unavailable"
)

// #endregion outcome

// #region result
// Result is what a stage gets back from one gate decision.
type Result struct {
	Feedback              string            `json:"feedback_text"`
	CanAdvance            bool              `json:"can_advance"`
	ExtractedFields       map[string]string `json:"extracted_fields,omitempty"`
	NeedsMoreConversation bool              `json:"needs_more_conversation,omitempty"`
	Outcome               Outcome           `json:"outcome"`
	ConversationID        string            `json:"conversation_id,omitempty"`
	AuditID               string            `json:"audit_id"`
}

// #endregion result

// #region collaborators
// Evaluator is the upstream judgment service. *evaluator.Client satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (evaluator.Verdict, error)
}

// Auditor receives one record per decision and must not block.
// *logging.Dispatcher satisfies it.
type Auditor interface {
	Emit(rec logging.AuditRecord)
}

type nopAuditor struct{}

func (nopAuditor) Emit(logging.AuditRecord) {}

// #endregion collaborators

// ErrInvalidRequest wraps request validation failures such as an unknown stage.
var ErrInvalidRequest = errors.New("invalid gate request")
