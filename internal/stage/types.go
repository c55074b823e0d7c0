package stage

// #region kind

// Kind identifies one stage of the guided writing workflow.
type Kind string

const (
	PlotBrainstorm Kind = "plot_brainstorm"
	LetterWriting  Kind = "letter_writing"
	FreeWriting    Kind = "free_writing"
	BookReview     Kind = "book_review"
	LetterSetup    Kind = "letter_setup"
)

// Kinds lists every stage in workflow order.
var Kinds = []Kind{PlotBrainstorm, FreeWriting, LetterSetup, LetterWriting, BookReview}

// #endregion

// #region role

// Role is the author of one conversation turn.
type Role string

const (
	RoleStudent   Role = "student"
	RoleAssistant Role = "assistant"
)

// #endregion

// #region field-names

// Extraction fields mined from plot brainstorming, in unlock order.
const (
	FieldSetting  = "setting"
	FieldConflict = "conflict"
	FieldGoal     = "goal"
)

// PlotFields lists extraction fields in the order they become eligible.
var PlotFields = []string{FieldSetting, FieldConflict, FieldGoal}

// Unknown is the literal value for a field the learner has not discussed enough.
const Unknown = "unknown"

// #endregion

// #region context-keys

// Context keys callers may set on Request.Context.
const (
	CtxRecipient  = "recipient"
	CtxOccasion   = "occasion"
	CtxBookTitle  = "book_title"
	CtxReviewType = "review_type"
	CtxCharacter  = "character"
	CtxPlot       = "plot"
	CtxStructure  = "structure"
	CtxOutline    = "outline" // section names, one per line or joined with "->"
	CtxSection    = "section" // explicit section name, wins over outline
)

// #endregion

// #region request

// Turn is one message of a stage conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the full input to one gate decision. Callers resend the whole
// conversation every time.
type Request struct {
	Stage          Kind              `json:"stage"`
	LearnerID      string            `json:"learner_id"`
	CurrentText    string            `json:"current_text"`
	History        []Turn            `json:"history,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	SectionIndex   int               `json:"section_index"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// Field returns a trimmed context value, or "" when unset.
func (r Request) Field(key string) string {
	if r.Context == nil {
		return ""
	}
	return trim(r.Context[key])
}

// StudentTurns returns the learner-authored turns in order.
func (r Request) StudentTurns() []string {
	var out []string
	for _, t := range r.History {
		if t.Role == RoleStudent {
			out = append(out, t.Content)
		}
	}
	return out
}

// #endregion

// #region decision

// Decision is the policy's verdict on whether to consult the evaluator.
type Decision struct {
	ShouldEvaluate bool     `json:"should_evaluate"`
	Eligible       []string `json:"eligible,omitempty"` // extraction fields, unlock order
}

// Has reports whether field is eligible for extraction.
func (d Decision) Has(field string) bool {
	for _, f := range d.Eligible {
		if f == field {
			return true
		}
	}
	return false
}

// #endregion
