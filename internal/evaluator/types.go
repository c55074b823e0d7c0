package evaluator

import "time"

// #region request

// Request is one call to the upstream evaluator.
type Request struct {
	// Persona selects which upstream evaluator answers. One per stage.
	Persona        string
	Prompt         string
	Inputs         map[string]string
	ConversationID string
	User           string
	// Fields lists the extraction fields the caller wants parsed from the reply.
	// Empty means no extraction.
	Fields []string
}

// #endregion

// #region verdict

// Verdict is the normalized evaluator reply.
type Verdict struct {
	RawText         string            `json:"raw_text"`
	Advance         bool              `json:"advance"`
	CleanedFeedback string            `json:"cleaned_feedback"`
	Fields          map[string]string `json:"fields,omitempty"`
	ConversationID  string            `json:"conversation_id,omitempty"`
}

// #endregion

// #region config

// Persona is the upstream identity for one stage.
type Persona struct {
	AppID  string `yaml:"app_id" json:"app_id"`
	APIKey string `yaml:"api_key" json:"-"` // overrides Config.APIKey when set
}

// Config holds upstream connection settings. Evaluate refuses a persona
// missing from Personas.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Personas map[string]Persona
}

// DefaultTimeout bounds one evaluator round trip. The learner is waiting on it.
const DefaultTimeout = 20 * time.Second

// DefaultBaseURL is the hosted chat-messages API.
const DefaultBaseURL = "https://api.dify.ai/v1"

// #endregion
