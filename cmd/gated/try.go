package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
	"github.com/danielpatrickdp/muse-gate/internal/store"
)

var (
	tryStage   string
	tryLearner string
	trySection int
	tryContext map[string]string
	tryAudit   bool
)

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Type learner answers and watch the gate decide",
	Long: `try reads one learner answer per line and runs the gate on it.

Plot brainstorming accumulates the conversation turn by turn. Section stages
move to the next section when the evaluator lets the learner advance.
Type /next to skip a section, /reset to start over, quit to exit.`,
	Args: cobra.NoArgs,
	RunE: runTry,
}

func init() {
	tryCmd.Flags().StringVar(&tryStage, "stage", string(stage.FreeWriting), "Stage to run")
	tryCmd.Flags().StringVar(&tryLearner, "learner", "try-user", "Learner id sent upstream")
	tryCmd.Flags().IntVar(&trySection, "section", 0, "Starting section index")
	tryCmd.Flags().StringToStringVar(&tryContext, "ctx", nil, "Stage context, e.g. --ctx recipient=Grandma,occasion=birthday")
	tryCmd.Flags().BoolVar(&tryAudit, "audit", false, "Write decisions to the audit database")
}

// #region main
func runTry(cmd *cobra.Command, args []string) error {
	kind, err := stage.ParseKind(tryStage)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []gate.Option{
		gate.WithClassifier(classifier.New(cfg.Classifier())),
		gate.WithLogger(logger),
	}
	if tryAudit {
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		d := logging.NewDispatcher(logger, cfg.Dispatcher(), logging.NewSQLiteSink(st.DB()))
		defer d.Close(context.Background())
		opts = append(opts, gate.WithAuditor(d))
	}
	g := gate.New(evaluator.NewClient(cfg.Evaluator(), evaluator.WithLogger(logger)), opts...)

	sess := newSession(kind, tryLearner, tryContext, trySection)
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, titleStyle.Render("Muse readiness gate"))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("stage=%s learner=%s evaluator=%s", kind, tryLearner, cfg.EvaluatorURL)))
	fmt.Fprintln(out, "Type an answer (or 'quit' to exit):")

	return repl(cmd.Context(), g, sess, cmd.InOrStdin(), out)
}

func repl(ctx context.Context, g *gate.Gate, sess *session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s> ", sess.prompt())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "/next":
			sess.section++
			continue
		case "/reset":
			sess.reset()
			continue
		}

		req := sess.prepare(line)
		res, err := g.Run(ctx, req)
		if err != nil {
			fmt.Fprintln(out, renderError(err))
			logger.Debug("[TRY] gate error", zap.Error(err))
			continue
		}
		sess.apply(line, res)
		fmt.Fprintln(out, renderResult(res))
	}
	return scanner.Err()
}

// #endregion main

// #region session

// session holds the client-side conversation a real caller would keep.
type session struct {
	kind           stage.Kind
	learner        string
	context        map[string]string
	start          int
	section        int
	history        []stage.Turn
	conversationID string
}

func newSession(kind stage.Kind, learner string, ctx map[string]string, section int) *session {
	return &session{kind: kind, learner: learner, context: ctx, start: section, section: section}
}

func (s *session) prompt() string {
	if s.kind == stage.PlotBrainstorm {
		return fmt.Sprintf("%s turn %d", s.kind, len(s.studentTurns())+1)
	}
	return fmt.Sprintf("%s part %d", s.kind, s.section+1)
}

func (s *session) studentTurns() []stage.Turn {
	var out []stage.Turn
	for _, t := range s.history {
		if t.Role == stage.RoleStudent {
			out = append(out, t)
		}
	}
	return out
}

// prepare builds the request for one typed line.
func (s *session) prepare(line string) stage.Request {
	req := stage.Request{
		Stage:          s.kind,
		LearnerID:      s.learner,
		CurrentText:    line,
		Context:        s.context,
		SectionIndex:   s.section,
		ConversationID: s.conversationID,
	}
	if s.kind == stage.PlotBrainstorm {
		req.History = append(append([]stage.Turn(nil), s.history...), stage.Turn{Role: stage.RoleStudent, Content: line})
	}
	return req
}

// apply folds a decision back into the session.
func (s *session) apply(line string, res gate.Result) {
	if res.ConversationID != "" {
		s.conversationID = res.ConversationID
	}
	switch res.Outcome {
	case gate.OutcomeRejected, gate.OutcomeNotReady:
		return
	}
	if s.kind == stage.PlotBrainstorm {
		s.history = append(s.history, stage.Turn{Role: stage.RoleStudent, Content: line})
		if res.Feedback != "" {
			s.history = append(s.history, stage.Turn{Role: stage.RoleAssistant, Content: res.Feedback})
		}
		return
	}
	if res.CanAdvance {
		s.section++
	}
}

func (s *session) reset() {
	s.section = s.start
	s.history = nil
	s.conversationID = ""
}

// #endregion session

// #region render

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	badgeStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))
	feedbackStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(72)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func outcomeColor(o gate.Outcome) lipgloss.Color {
	switch o {
	case gate.OutcomeAdvance:
		return lipgloss.Color("10")
	case gate.OutcomeFeedback:
		return lipgloss.Color("11")
	case gate.OutcomeNeedsMore:
		return lipgloss.Color("14")
	default:
		return lipgloss.Color("9")
	}
}

func renderResult(res gate.Result) string {
	var b strings.Builder
	b.WriteString(badgeStyle.Background(outcomeColor(res.Outcome)).Render(string(res.Outcome)))
	if res.NeedsMoreConversation {
		b.WriteString(dimStyle.Render("  keep chatting before the gate can judge"))
	}
	b.WriteString("\n")
	if res.Feedback != "" {
		b.WriteString(feedbackStyle.Render(res.Feedback))
		b.WriteString("\n")
	}
	if len(res.ExtractedFields) > 0 {
		keys := make([]string, 0, len(res.ExtractedFields))
		for k := range res.ExtractedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  %-10s %s\n", k+":", res.ExtractedFields[k]))
		}
	}
	b.WriteString(dimStyle.Render("audit " + res.AuditID))
	return b.String()
}

func renderError(err error) string {
	var ee *evaluator.Error
	if errors.As(err, &ee) {
		return errorStyle.Render(string(ee.Kind)) + " " + ee.Detail
	}
	return errorStyle.Render("error") + " " + err.Error()
}

// #endregion render
