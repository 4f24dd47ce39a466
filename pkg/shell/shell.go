// Package shell implements a line-oriented learner front end. Input lines
// run as commands in the session; lines starting with ':' drive the
// tutorial itself.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

// Shell is an interactive REPL over a Tutor.
type Shell struct {
	tutor *tutorial.Tutor
	rl    *readline.Instance

	mu     sync.Mutex
	output io.Writer
}

// New creates a shell writing to stdout.
func New(tutor *tutorial.Tutor) *Shell {
	return &Shell{tutor: tutor, output: os.Stdout}
}

// SetOutput redirects shell output.
func (s *Shell) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = w
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.output, format, args...)
}

var metaCommands = []string{":list", ":open", ":show", ":check", ":next", ":prev",
	":goto", ":ns", ":status", ":close", ":help", ":quit"}

// Run starts the REPL and opens questionID first when it is set. The open
// session is closed when the loop ends.
func (s *Shell) Run(ctx context.Context, questionID string) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range metaCommands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	s.rl = rl
	s.SetOutput(rl.Stdout())
	defer rl.Close()
	defer func() {
		s.tutor.Close()
		s.tutor.Wait()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchEvents(ctx)

	s.printf("steplab shell. Type a command to run it in your session, or ':help'.\n\n")
	if questionID != "" {
		s.handleOpen(ctx, questionID)
	} else {
		s.handleList(ctx)
	}

	for {
		rl.SetPrompt(s.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.Dispatch(ctx, line); errors.Is(err, errQuit) {
			return nil
		}
	}
}

// watchEvents reports auto-advances while the learner sits at the prompt.
func (s *Shell) watchEvents(ctx context.Context) {
	events := s.tutor.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != tutorial.EventAdvanced {
				continue
			}
			s.printf("\n→ Moved to step %d.\n", tutorial.StepNumber(ev.Index))
			s.showStep()
			if s.rl != nil {
				s.rl.SetPrompt(s.buildPrompt())
				s.rl.Refresh()
			}
		}
	}
}

// Dispatch handles one input line.
func (s *Shell) Dispatch(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, ":") {
		s.handleExec(ctx, line)
		return nil
	}

	parts := strings.Fields(line)
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	switch parts[0] {
	case ":list", ":ls":
		s.handleList(ctx)
	case ":open", ":o":
		if arg == "" {
			s.printf("Usage: :open <question-id>\n")
			return nil
		}
		s.handleOpen(ctx, arg)
	case ":show", ":s":
		s.showStep()
	case ":check", ":c":
		s.handleCheck(ctx)
	case ":next", ":n":
		s.handleMove(s.tutor.Next)
	case ":prev", ":p":
		s.handleMove(s.tutor.Previous)
	case ":goto", ":g":
		s.handleGoto(arg)
	case ":ns":
		s.handleNamespace(ctx, arg)
	case ":status":
		s.handleStatus()
	case ":close":
		s.tutor.Close()
		s.printf("Question closed.\n")
	case ":help", ":?":
		s.handleHelp()
	case ":quit", ":q":
		s.printf("Bye.\n")
		return errQuit
	default:
		s.printf("Unknown command: %q. Type ':help' for available commands.\n", parts[0])
	}
	return nil
}

// buildPrompt creates the prompt: steplab[q1 2/5 ✓]$
func (s *Shell) buildPrompt() string {
	sess := s.tutor.Session()
	if sess == nil {
		return "steplab$ "
	}
	p := sess.Progress
	mark := ""
	if p.IsCompleted(p.Current()) {
		mark = " ✓"
	}
	return fmt.Sprintf("steplab[%s %d/%d%s]$ ", sess.Question.ID, tutorial.StepNumber(p.Current()), p.Total(), mark)
}

// statusJSON is the machine-readable :status output.
type statusJSON struct {
	Question  string                 `json:"question"`
	Session   string                 `json:"session"`
	Namespace string                 `json:"namespace,omitempty"`
	Ready     bool                   `json:"ready"`
	Progress  tutorial.ProgressState `json:"progress"`
	Steps     []string               `json:"steps"`
}

func (s *Shell) handleStatus() {
	sess := s.tutor.Session()
	if sess == nil {
		s.printf("No question open.\n")
		return
	}
	st := statusJSON{
		Question:  sess.Question.ID,
		Session:   sess.ID,
		Namespace: sess.Namespace(),
		Ready:     sess.Ready(),
		Progress:  sess.Progress.Snapshot(),
	}
	for _, ind := range sess.Progress.Indicators() {
		st.Steps = append(st.Steps, ind.String())
	}
	data, _ := json.MarshalIndent(st, "", "  ")
	s.printf("%s\n", data)
}
