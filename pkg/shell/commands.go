package shell

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

func (s *Shell) handleList(ctx context.Context) {
	list, err := s.tutor.Questions(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(list) == 0 {
		s.printf("No questions available.\n")
		return
	}
	s.printf("Questions:\n")
	for _, q := range list {
		title := q.Title
		if title == "" {
			title = q.ID
		}
		s.printf("  %-20s %s\n", q.ID, title)
	}
	s.printf("Open one with ':open <id>'.\n")
}

func (s *Shell) handleOpen(ctx context.Context, id string) {
	sess, err := s.tutor.Open(ctx, id)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	title := sess.Question.Title
	if title == "" {
		title = sess.Question.ID
	}
	s.printf("Opened %s (%d steps), session %s.\n", title, sess.Progress.Total(), sess.ID)
	if desc := strings.TrimSpace(sess.Question.Description); desc != "" {
		s.printf("%s\n", desc)
	}
	if err := sess.BootstrapErr(); err != nil {
		s.printf("Warning: session setup failed: %v\n", err)
	}
	s.showStep()
}

// showStep prints the active step's content.
func (s *Shell) showStep() {
	sess := s.tutor.Session()
	if sess == nil {
		s.printf("No question open.\n")
		return
	}
	i := sess.Progress.Current()
	s.printf("\n%s Step %d of %d\n", strings.Join(glyphs(sess.Progress), ""), tutorial.StepNumber(i), sess.Progress.Total())
	md := sess.Question.Steps[i].Content
	out, err := glamour.Render(md, "auto")
	if err != nil {
		out = md + "\n"
	}
	s.printf("%s", out)
}

func glyphs(p *tutorial.Progress) []string {
	var out []string
	for _, ind := range p.Indicators() {
		switch {
		case ind.Active && ind.Completed:
			out = append(out, "◉")
		case ind.Active:
			out = append(out, "●")
		case ind.Completed:
			out = append(out, "✓")
		default:
			out = append(out, "○")
		}
	}
	return out
}

func (s *Shell) handleExec(ctx context.Context, line string) {
	res, err := s.tutor.Execute(ctx, line)
	if err != nil {
		if errors.Is(err, tutorial.ErrUnscoped) {
			s.printf("Open a question first (':list', ':open <id>').\n")
			return
		}
		s.printf("Error: %v\n", err)
		return
	}
	for _, l := range tutorial.Lines(res.Output) {
		s.printf("%s\n", l)
	}
	if !res.Success {
		s.printf("[exit %d]\n", res.ReturnCode)
	}
}

func (s *Shell) handleCheck(ctx context.Context) {
	out, err := s.tutor.Check(ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	n := tutorial.StepNumber(out.Index)
	if out.Passed {
		s.printf("  ✓ step %d passed\n", n)
	} else {
		s.printf("  ✗ step %d not complete\n", n)
	}
	if out.Output != "" {
		s.printf("    %s\n", strings.ReplaceAll(strings.TrimRight(out.Output, "\n"), "\n", "\n    "))
	}
	if out.AdvanceScheduled {
		s.printf("  Moving to step %d shortly.\n", n+1)
	}
}

func (s *Shell) handleMove(move func() error) {
	if err := move(); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.showStep()
}

func (s *Shell) handleGoto(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		s.printf("Usage: :goto <step-number>\n")
		return
	}
	s.handleMove(func() error { return s.tutor.GoTo(n - 1) })
}

func (s *Shell) handleNamespace(ctx context.Context, label string) {
	if label == "" {
		s.printf("Usage: :ns <namespace>\n")
		return
	}
	st, err := s.tutor.VerifyNamespace(ctx, label)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if st.Verified {
		s.printf("  ✓ namespace %s verified\n", st.Asserted)
		return
	}
	switch {
	case st.Err != nil:
		s.printf("  ✗ could not read the current namespace: %v\n", st.Err)
	case st.Actual != "":
		s.printf("  ✗ current project is %q, not %q\n", st.Actual, st.Asserted)
	default:
		s.printf("  ✗ namespace %s is not the current project\n", st.Asserted)
	}
	if len(st.Remediation) > 0 {
		s.printf("  Create it with: %s\n", st.Remediation[0])
	}
	if len(st.Remediation) > 1 {
		s.printf("  Then verify with: %s\n", st.Remediation[1])
	}
}

// handleHelp displays available commands.
func (s *Shell) handleHelp() {
	s.printf("Anything not starting with ':' runs in your session.\n")
	s.printf("Available commands:\n")
	s.printf("  :list (:ls)      List questions\n")
	s.printf("  :open <id>       Open a question\n")
	s.printf("  :show (:s)       Show the active step\n")
	s.printf("  :check (:c)      Check the active step\n")
	s.printf("  :next (:n)       Go to the next step\n")
	s.printf("  :prev (:p)       Go to the previous step\n")
	s.printf("  :goto <n>        Jump to step n\n")
	s.printf("  :ns <namespace>  Set and verify your namespace (first step)\n")
	s.printf("  :status          Show progress as JSON\n")
	s.printf("  :close           Close the question\n")
	s.printf("  :help (:?)       Show this help\n")
	s.printf("  :quit (:q)       Exit\n")
}
