package stage

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
)

// #endregion

// #region plot-policy

// plotPolicy mines setting, conflict, and goal from a brainstorming chat.
// Fields unlock one per student turn.
type plotPolicy struct{}

func (plotPolicy) Kind() Kind     { return PlotBrainstorm }
func (plotPolicy) Extracts() bool { return true }

// Subject screens the pending text, or the latest student turn when none is pending.
func (plotPolicy) Subject(req Request) string {
	if s := trim(req.CurrentText); s != "" {
		return s
	}
	turns := req.StudentTurns()
	if len(turns) == 0 {
		return ""
	}
	return trim(turns[len(turns)-1])
}

func (plotPolicy) Decide(req Request) Decision {
	n := len(req.StudentTurns())
	if n > len(PlotFields) {
		n = len(PlotFields)
	}
	if n == 0 {
		return Decision{}
	}
	eligible := make([]string, n)
	copy(eligible, PlotFields[:n])
	return Decision{ShouldEvaluate: true, Eligible: eligible}
}

func (plotPolicy) Inputs(req Request) map[string]string {
	return map[string]string{"conversation": conversationText(req)}
}

func (plotPolicy) RenderPrompt(req Request, d Decision) string {
	turns := req.StudentTurns()
	var b strings.Builder

	fmt.Fprintf(&b, "You are analyzing a student's plot brainstorming conversation. The student has had %d exchanges with the AI.\n\n", len(turns))
	b.WriteString("Only extract these fields:\n")
	for _, f := range d.Eligible {
		fmt.Fprintf(&b, "- %s: %s\n", title(f), plotFieldHints[f])
	}

	b.WriteString("\nStudent's conversation:\n")
	b.WriteString(conversationText(req))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Write each value as a short phrase of 2-5 words, never a single word.\n")
	fmt.Fprintf(&b, "- If the student has not discussed a field enough, write %q.\n", Unknown)
	b.WriteString("- Be generous. Extract even brief ideas.\n")

	b.WriteString("\nFormat your response exactly as:\n")
	for _, f := range d.Eligible {
		fmt.Fprintf(&b, "%s: [short phrase or %s]\n", f, Unknown)
	}
	b.WriteString("\nOnly output \"done\" once every field above has a value, even if it is \"unknown\".")
	return b.String()
}

// Reject nudges the learner toward the next plot element still missing.
func (p plotPolicy) Reject(req Request, v classifier.Verdict) string {
	topic := plotTopics[nextPlotField(len(req.StudentTurns()))]
	if !classifier.Judgeable(p.Subject(req)) {
		return fmt.Sprintf("Tell me a little more! What about %s? 💭", topic)
	}
	return fmt.Sprintf("Hmm, that doesn't look like a real idea yet. Can you tell me about %s in a few words? ✨", topic)
}

// #endregion

// #region plot-text

var plotFieldHints = map[string]string{
	FieldSetting:  "where and when the story happens, a place or short phrase",
	FieldConflict: "the problem or challenge, e.g. \"save the library\"",
	FieldGoal:     "what the main character wants, e.g. \"become a wizard\"",
}

var plotTopics = map[string]string{
	FieldSetting:  "where your story happens",
	FieldConflict: "the problem your character faces",
	FieldGoal:     "what your character wants most",
}

// nextPlotField is the first field not yet unlocked after turns student turns.
func nextPlotField(turns int) string {
	if turns < len(PlotFields) {
		return PlotFields[turns]
	}
	return PlotFields[len(PlotFields)-1]
}

func conversationText(req Request) string {
	return strings.Join(req.StudentTurns(), "\n\n")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// #endregion
