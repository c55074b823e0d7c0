package classifier

// #region imports
import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// #endregion

// #region thresholds

const (
	minJudgeableRunes = 3
	minMeaningRunes   = 5
	minCJKRunes       = 3
	minTokens         = 2
	minLetters        = 5
	maxRepeatRun      = 5
	minMashRunes      = 6
	minClusterRunes   = 4
)

// qwertyRows is every letter reachable on the three QWERTY letter rows.
const qwertyRows = "qwertyuiopasdfghjklzxcvbnm"

// mashClusters are the home-row and bottom-row four-key groups kids tend to hammer.
var mashClusters = []string{"asdf", "zxcv"}

// basicPunctuation is allowed in normal writing and never counts as noise.
const basicPunctuation = ".,!?;:'\"-"

// #endregion

// #region classifier

// Classifier screens learner text with deterministic heuristics. No model call.
type Classifier struct {
	config Config
}

// New creates a classifier with the given thresholds.
func New(config Config) *Classifier {
	if config.MinRatioLength <= 0 {
		config.MinRatioLength = DefaultConfig().MinRatioLength
	}
	if config.MeaninglessRatio <= 0 {
		config.MeaninglessRatio = DefaultConfig().MeaninglessRatio
	}
	return &Classifier{config: config}
}

var defaultClassifier = New(DefaultConfig())

// Classify screens text with the default thresholds.
func Classify(text string) Verdict {
	return defaultClassifier.Classify(text)
}

// Config returns the thresholds in effect.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify returns both flags for text. Text under three runes is not judged
// and comes back with both flags false.
func (c *Classifier) Classify(text string) Verdict {
	trimmed := normalize(text)
	if utf8.RuneCountInString(trimmed) < minJudgeableRunes {
		return Verdict{}
	}
	return Verdict{
		IsGibberish:     c.isGibberish(trimmed),
		HasBasicMeaning: hasBasicMeaning(trimmed),
	}
}

// Judgeable reports whether text is long enough for the heuristics to say anything.
func Judgeable(text string) bool {
	return utf8.RuneCountInString(normalize(text)) >= minJudgeableRunes
}

// #endregion

// #region normalize

// normalize folds full-width Latin letters and digits to ASCII and trims.
func normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

// #endregion

// #region gibberish

func (c *Classifier) isGibberish(trimmed string) bool {
	if hasRepeatedRun(trimmed) {
		return true
	}
	if isKeyboardMash(trimmed) {
		return true
	}
	if isOnlySymbols(trimmed) {
		return true
	}
	return c.noiseRatioExceeded(trimmed)
}

// hasRepeatedRun fires when one character repeats five or more times in a row.
func hasRepeatedRun(trimmed string) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(trimmed) {
		if run > 0 && r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= maxRepeatRun {
			return true
		}
	}
	return false
}

func isKeyboardMash(trimmed string) bool {
	lower := strings.ToLower(trimmed)
	n := utf8.RuneCountInString(lower)
	if n >= minMashRunes && onlyFrom(lower, qwertyRows) {
		return true
	}
	if n >= minClusterRunes {
		for _, cluster := range mashClusters {
			if onlyFrom(lower, cluster) {
				return true
			}
		}
	}
	return false
}

func onlyFrom(s, set string) bool {
	for _, r := range s {
		if !strings.ContainsRune(set, r) {
			return false
		}
	}
	return true
}

// isOnlySymbols fires when nothing but punctuation, symbols, and spaces remain.
func isOnlySymbols(trimmed string) bool {
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || isCJK(r) {
			return false
		}
	}
	return true
}

func (c *Classifier) noiseRatioExceeded(trimmed string) bool {
	total := utf8.RuneCountInString(trimmed)
	if total <= c.config.MinRatioLength {
		return false
	}
	noise := 0
	for _, r := range trimmed {
		if !isExpected(r) {
			noise++
		}
	}
	return float64(noise)/float64(total) > c.config.MeaninglessRatio
}

func isExpected(r rune) bool {
	return unicode.IsLetter(r) ||
		unicode.IsDigit(r) ||
		isCJK(r) ||
		unicode.IsSpace(r) ||
		strings.ContainsRune(basicPunctuation, r)
}

// #endregion

// #region basic-meaning

func hasBasicMeaning(trimmed string) bool {
	// CJK writing carries meaning in very few runes.
	if cjk := countCJK(trimmed); cjk > 0 {
		return cjk >= minCJKRunes
	}
	if utf8.RuneCountInString(trimmed) < minMeaningRunes {
		return false
	}
	if len(strings.Fields(trimmed)) < minTokens {
		return false
	}
	letters := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= minLetters
}

func countCJK(s string) int {
	n := 0
	for _, r := range s {
		if isCJK(r) {
			n++
		}
	}
	return n
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// #endregion
