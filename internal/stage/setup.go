package stage

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
)

// #endregion

// #region setup-policy

// setupPolicy checks that a letter has a recipient and a reason before
// the learner starts writing it.
type setupPolicy struct{}

func (setupPolicy) Kind() Kind     { return LetterSetup }
func (setupPolicy) Extracts() bool { return false }

// Subject joins recipient and occasion so "Mom" + "birthday" reads as a phrase.
func (setupPolicy) Subject(req Request) string {
	occasion := req.Field(CtxOccasion)
	if occasion == "" {
		occasion = trim(req.CurrentText)
	}
	return trim(req.Field(CtxRecipient) + " " + occasion)
}

func (setupPolicy) Decide(req Request) Decision {
	return Decision{ShouldEvaluate: true}
}

func (setupPolicy) Inputs(req Request) map[string]string {
	return map[string]string{
		"recipient": req.Field(CtxRecipient),
		"occasion":  req.Field(CtxOccasion),
	}
}

func (setupPolicy) RenderPrompt(req Request, _ Decision) string {
	var b strings.Builder
	b.WriteString("A student wants to write a letter.\n")
	fmt.Fprintf(&b, "- To: %q\n", orDefault(req.Field(CtxRecipient), "(not chosen yet)"))
	fmt.Fprintf(&b, "- Reason: %q\n\n", orDefault(req.Field(CtxOccasion), trim(req.CurrentText)))
	b.WriteString("Give brief, kid-friendly guidance (2-3 sentences) on what this letter could say. Emojis are welcome.\n")
	b.WriteString("If both the recipient and the reason are clear enough to start writing, end your reply with the single word \"done\" on its own line.")
	return b.String()
}

func (p setupPolicy) Reject(req Request, v classifier.Verdict) string {
	if !classifier.Judgeable(p.Subject(req)) {
		return "Who are you writing to, and why? Tell me a little more ✉️"
	}
	return "Hmm, I can't quite read that yet. Tell me who you're writing to and why, using a few real words ✨"
}

// #endregion
