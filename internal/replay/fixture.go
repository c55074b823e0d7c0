package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig records the classifier thresholds the outcomes were produced under.
type FixtureConfig struct {
	MeaninglessRatio float64 `json:"meaningless_ratio"`
	MinRatioLength   int     `json:"min_ratio_length"`
}

// FixtureInteraction is one audited decision input.
type FixtureInteraction struct {
	AuditID   string                `json:"audit_id"`
	LearnerID string                `json:"learner_id,omitempty"`
	Stage     string                `json:"stage"`
	Input     logging.InputSnapshot `json:"input"`
}

// FixtureExpectedResult captures the recorded outcome per decision.
type FixtureExpectedResult struct {
	AuditID string `json:"audit_id"`
	Outcome string `json:"outcome"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// FixtureFromRecords builds a fixture from audit records, oldest first.
// cfg is the classifier configuration the records were produced under.
func FixtureFromRecords(description string, cfg classifier.Config, records []logging.AuditRecord) *Fixture {
	f := &Fixture{
		Description: description,
		Config: FixtureConfig{
			MeaninglessRatio: cfg.MeaninglessRatio,
			MinRatioLength:   cfg.MinRatioLength,
		},
		Interactions:    make([]FixtureInteraction, 0, len(records)),
		ExpectedResults: make([]FixtureExpectedResult, 0, len(records)),
	}
	for _, rec := range records {
		f.Interactions = append(f.Interactions, FixtureInteraction{
			AuditID:   rec.ID,
			LearnerID: rec.LearnerID,
			Stage:     rec.Stage,
			Input:     rec.Input,
		})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			AuditID: rec.ID,
			Outcome: rec.Outcome,
		})
	}
	return f
}

// ToInteractions pairs each fixture input with its recorded outcome.
func (f *Fixture) ToInteractions() []Interaction {
	recorded := make(map[string]string, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		recorded[e.AuditID] = e.Outcome
	}
	out := make([]Interaction, len(f.Interactions))
	for i, fi := range f.Interactions {
		out[i] = Interaction{
			AuditID:  fi.AuditID,
			Request:  RequestFromSnapshot(fi.Stage, fi.LearnerID, fi.Input),
			Recorded: recorded[fi.AuditID],
		}
	}
	return out
}

// ToClassifierConfig converts the recorded thresholds. Zero values fall back
// to the defaults.
func (fc FixtureConfig) ToClassifierConfig() classifier.Config {
	cfg := classifier.DefaultConfig()
	if fc.MeaninglessRatio > 0 {
		cfg.MeaninglessRatio = fc.MeaninglessRatio
	}
	if fc.MinRatioLength > 0 {
		cfg.MinRatioLength = fc.MinRatioLength
	}
	return cfg
}

// #endregion fixture-loader
