package logging

import "time"

// TimeLayout is the fixed-width UTC timestamp stored in created_at so that
// string order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region audit-record
// AuditRecord is one row in the audit_log table. One per gate decision,
// written once and never updated.
type AuditRecord struct {
	ID        string         `json:"id"`
	LearnerID string         `json:"learner_id,omitempty"`
	Stage     string         `json:"stage"`
	Outcome   string         `json:"outcome"` // "advance" | "feedback" | "rejected" | "not_ready" | "needs_more_conversation" | "evaluator_timeout" | "evaluator_unavailable"
	Input     InputSnapshot  `json:"input"`
	Output    OutputSnapshot `json:"output"`
	CreatedAt time.Time      `json:"created_at"`
}
// #endregion audit-record

// #region snapshots
// InputSnapshot captures the request exactly as the gate saw it.
// Serialized as JSON into audit_log.input_json for replay.
type InputSnapshot struct {
	CurrentText    string            `json:"current_text"`
	History        []TurnSnapshot    `json:"history,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	SectionIndex   int               `json:"section_index"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// TurnSnapshot is one conversation turn.
type TurnSnapshot struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutputSnapshot captures what the gate decided and why.
type OutputSnapshot struct {
	Feedback              string            `json:"feedback,omitempty"`
	CanAdvance            bool              `json:"can_advance"`
	NeedsMoreConversation bool              `json:"needs_more_conversation,omitempty"`
	ExtractedFields       map[string]string `json:"extracted_fields,omitempty"`

	// Screening verdict as computed at runtime
	Classifier ClassifierSnapshot `json:"classifier"`

	// Evaluator call, if one was made
	EvaluatorCalled bool     `json:"evaluator_called"`
	EligibleFields  []string `json:"eligible_fields,omitempty"`
	Error           string   `json:"error,omitempty"`
	ElapsedMS       int64    `json:"elapsed_ms"`
}

// ClassifierSnapshot records both screening flags and the ratio threshold in effect.
type ClassifierSnapshot struct {
	IsGibberish      bool    `json:"is_gibberish"`
	HasBasicMeaning  bool    `json:"has_basic_meaning"`
	MeaninglessRatio float64 `json:"meaningless_ratio"`
}
// #endregion snapshots
