package classifier

// #region verdict

// Verdict is the heuristic screening result for one block of learner text.
type Verdict struct {
	IsGibberish     bool `json:"is_gibberish"`
	HasBasicMeaning bool `json:"has_basic_meaning"`
}

// Rejects reports whether a stage should refuse the text without asking the evaluator.
func (v Verdict) Rejects() bool {
	return v.IsGibberish || !v.HasBasicMeaning
}

// #endregion

// #region config

// Config holds the tunable thresholds of the classifier.
type Config struct {
	// MeaninglessRatio is the share of unexpected characters above which
	// text longer than MinRatioLength is treated as gibberish.
	MeaninglessRatio float64
	MinRatioLength   int
}

// DefaultConfig returns the thresholds the product shipped with.
func DefaultConfig() Config {
	return Config{
		MeaninglessRatio: 0.5,
		MinRatioLength:   10,
	}
}

// #endregion
