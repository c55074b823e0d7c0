package evaluator

// #region imports
import (
	"regexp"
	"strings"
)

// #endregion

// #region advance-token

// AdvanceToken is the word an evaluator emits when the learner may move on.
const AdvanceToken = "done"

// Unknown fills an extraction field the evaluator did not supply.
const Unknown = "unknown"

var (
	advancePattern = regexp.MustCompile(`(?i)\bdone\b`)
	// stripPattern takes the token with the whitespace before it and the
	// punctuation after it ("Done, ", " done -"), or a whole "(done)".
	stripPattern   = regexp.MustCompile(`(?i)[ \t]*(?:\([ \t]*\bdone\b[ \t]*[.!]*[ \t]*\)|\bdone\b(?:[ \t]*[.!,;:\x{2013}\x{2014}-])*)`)
	emptyParens    = regexp.MustCompile(`[ \t]*\([ \t]*\)`)
	punctOnlyLine  = regexp.MustCompile(`(?m)^[ \t]*[,;:\x{2013}\x{2014}-]+[ \t]*$`)
	spaceRun       = regexp.MustCompile(`[ \t]{2,}`)
	blankLineRun   = regexp.MustCompile(`\n{3,}`)
	spaceBeforeEOL = regexp.MustCompile(`[ \t]+\n`)

	// trailingAdvance is a token closing a field value as its own sentence,
	// as in "goal: get home. Done!". "get the job done" is left alone.
	trailingAdvance = regexp.MustCompile(`(?i)([.!?])[ \t]*\bdone\b[.!]*$`)
)

// HasAdvance reports whether text contains the advance token as a whole word.
func HasAdvance(text string) bool {
	return advancePattern.MatchString(text)
}

// StripAdvance removes every whole-word advance token and tidies what is left.
func StripAdvance(text string) string {
	out := stripPattern.ReplaceAllString(text, "")
	out = emptyParens.ReplaceAllString(out, "")
	out = punctOnlyLine.ReplaceAllString(out, "")
	out = spaceRun.ReplaceAllString(out, " ")
	out = spaceBeforeEOL.ReplaceAllString(out, "\n")
	out = blankLineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// #endregion

// #region parse

// ParseVerdict normalizes a raw reply. fields, when non-empty, are parsed
// from "key: value" lines of the raw text, so a value that legitimately
// ends in "done" keeps it.
func ParseVerdict(raw string, fields []string) Verdict {
	v := Verdict{
		RawText:         raw,
		Advance:         HasAdvance(raw),
		CleanedFeedback: StripAdvance(raw),
	}
	if len(fields) > 0 {
		v.Fields = ExtractFields(raw, fields)
	}
	return v
}

// ExtractFields reads "key: value" lines for each wanted key. The first
// occurrence wins; a missing or empty value becomes Unknown.
func ExtractFields(text string, wanted []string) map[string]string {
	found := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-*• ")
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.Trim(line[:idx], "* "))
		if _, seen := found[key]; seen {
			continue
		}
		val := strings.Trim(strings.TrimSpace(line[idx+1:]), "*[]\"' ")
		found[key] = strings.TrimSpace(trailingAdvance.ReplaceAllString(val, "$1"))
	}

	out := make(map[string]string, len(wanted))
	for _, f := range wanted {
		val := found[f]
		if val == "" || strings.EqualFold(val, Unknown) {
			val = Unknown
		}
		out[f] = val
	}
	return out
}

// #endregion
