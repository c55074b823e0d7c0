package stage

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
)

// #endregion

// #region section-policy

// sectionPolicy judges one subsection of an outlined piece of writing.
// The three section stages differ only in persona, default outline, and
// which context fields frame the prompt.
type sectionPolicy struct {
	kind    Kind
	persona string
	outline []string
	// framing renders the stage-specific context lines of the prompt.
	framing func(req Request) []string
	// inputs returns stage-specific structured context for the evaluator.
	inputs func(req Request, section string) map[string]string
	// about finishes the sentence "write something real about ...".
	about func(req Request, section string) string
}

func (p sectionPolicy) Kind() Kind     { return p.kind }
func (p sectionPolicy) Extracts() bool { return false }

func (p sectionPolicy) Subject(req Request) string {
	return trim(req.CurrentText)
}

// Decide always evaluates. Screening has already passed by the time the
// gate consults a section stage.
func (p sectionPolicy) Decide(req Request) Decision {
	return Decision{ShouldEvaluate: true}
}

func (p sectionPolicy) Inputs(req Request) map[string]string {
	return p.inputs(req, p.Section(req))
}

// Outline returns the caller's outline, or the stage default.
func (p sectionPolicy) Outline(req Request) []string {
	if parts := splitOutline(req.Field(CtxOutline)); len(parts) > 0 {
		return parts
	}
	return p.outline
}

// Section names the subsection being written.
func (p sectionPolicy) Section(req Request) string {
	if s := req.Field(CtxSection); s != "" {
		return s
	}
	outline := p.Outline(req)
	if req.SectionIndex >= 0 && req.SectionIndex < len(outline) {
		return outline[req.SectionIndex]
	}
	return fmt.Sprintf("Part %d", req.SectionIndex+1)
}

func (p sectionPolicy) RenderPrompt(req Request, _ Decision) string {
	section := p.Section(req)
	outline := p.Outline(req)
	var b strings.Builder

	fmt.Fprintf(&b, "You are Muse, a friendly %s for elementary students.\n\n", p.persona)
	for _, line := range p.framing(req) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Outline: %s\n", strings.Join(outline, " -> "))
	fmt.Fprintf(&b, "Current section: %q (part %d of %d)\n", section, req.SectionIndex+1, max(len(outline), req.SectionIndex+1))
	fmt.Fprintf(&b, "Purpose of this section: %s\n", sectionPurpose(section))
	fmt.Fprintf(&b, "Student's writing: %q\n\n", orDefault(req.CurrentText, "(no text yet)"))

	b.WriteString("How to respond:\n")
	b.WriteString("1. Give brief, encouraging feedback (1-2 sentences). Emojis are welcome ✨\n")
	fmt.Fprintf(&b, "2. Judge whether the writing fulfils the purpose of the %q section, not how long it is.\n", section)
	b.WriteString("3. Be generous with reasonable effort. Reject only random characters, off-topic text, or placeholders.\n")
	b.WriteString("4. Only when the section is ready, end your reply with the single word \"done\" on its own line. Never write \"done\" anywhere else.")
	return b.String()
}

func (p sectionPolicy) Reject(req Request, v classifier.Verdict) string {
	section := p.Section(req)
	if !classifier.Judgeable(req.CurrentText) {
		return fmt.Sprintf("Keep going! Write a little more for the %s part ✏️", section)
	}
	return fmt.Sprintf("I see you're trying to write, but this doesn't look like meaningful text yet. Please write something real about %s. Try to express your thoughts clearly! ✨", p.about(req, section))
}

// #endregion

// #region stages

var letterWriting = sectionPolicy{
	kind:    LetterWriting,
	persona: "letter writing teacher",
	outline: []string{"Greeting", "Opening", "Body", "Closing"},
	framing: func(req Request) []string {
		return []string{
			fmt.Sprintf("Student is writing a letter to: %q", orDefault(req.Field(CtxRecipient), "someone special")),
			fmt.Sprintf("Reason for the letter: %q", orDefault(req.Field(CtxOccasion), "just because")),
		}
	},
	inputs: func(req Request, section string) map[string]string {
		return map[string]string{
			"recipient":       req.Field(CtxRecipient),
			"occasion":        req.Field(CtxOccasion),
			"current_section": section,
			"current_text":    req.CurrentText,
		}
	},
	about: func(req Request, section string) string {
		return fmt.Sprintf("%s for %s", strings.ToLower(section), orDefault(req.Field(CtxRecipient), "your reader"))
	},
}

var freeWriting = sectionPolicy{
	kind:    FreeWriting,
	persona: "story writing teacher",
	outline: []string{"Setup", "Confrontation", "Resolution"},
	framing: func(req Request) []string {
		return []string{
			"Character: " + orDefault(req.Field(CtxCharacter), "Unknown"),
			"Plot: " + orDefault(req.Field(CtxPlot), "Unknown"),
			"Story structure: " + orDefault(req.Field(CtxStructure), "Unknown"),
		}
	},
	inputs: func(req Request, section string) map[string]string {
		return map[string]string{
			"character_info":  req.Field(CtxCharacter),
			"plot_info":       req.Field(CtxPlot),
			"structure_info":  req.Field(CtxStructure),
			"current_text":    req.CurrentText,
			"current_section": section,
		}
	},
	about: func(req Request, section string) string {
		return fmt.Sprintf("the %s part of your story", strings.ToLower(section))
	},
}

var bookReview = sectionPolicy{
	kind:    BookReview,
	persona: "book review writing teacher",
	outline: []string{"Introduction", "What I Loved", "Recommendation"},
	framing: func(req Request) []string {
		return []string{
			fmt.Sprintf("Student is writing a %s review for the book: %q",
				orDefault(req.Field(CtxReviewType), "recommendation"),
				orDefault(req.Field(CtxBookTitle), "their book")),
		}
	},
	inputs: func(req Request, section string) map[string]string {
		return map[string]string{
			"review_type":     req.Field(CtxReviewType),
			"book_title":      req.Field(CtxBookTitle),
			"current_section": section,
			"student_writing": req.CurrentText,
		}
	},
	about: func(req Request, section string) string {
		return fmt.Sprintf("%s for the %s part", orDefault(req.Field(CtxBookTitle), "your book"), strings.ToLower(section))
	},
}

// #endregion

// #region purposes

var sectionPurposes = map[string]string{
	"greeting":       "say hello to the reader by name",
	"opening":        "tell the reader why you are writing",
	"body":           "share the main message with a detail or two",
	"closing":        "wrap up warmly and sign off",
	"setup":          "introduce the character and where the story happens",
	"confrontation":  "show the problem the character runs into",
	"resolution":     "show how the problem gets solved",
	"exposition":     "introduce the character and the world",
	"rising action":  "build up the problem step by step",
	"climax":         "show the most exciting moment",
	"falling action": "show what happens right after the big moment",
	"introduction":   "name the book and what it is about",
	"what i loved":   "share a favourite part and why",
	"recommendation": "say who should read it and why",
	"conclusion":     "wrap up your thoughts about the book",
}

func sectionPurpose(section string) string {
	if p, ok := sectionPurposes[strings.ToLower(trim(section))]; ok {
		return p
	}
	return "do what the section name suggests"
}

// #endregion
