package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// --- Tea messages ---

type questionsMsg struct {
	list []tutorial.QuestionSummary
	err  error
}

type openedMsg struct {
	session *tutorial.Session
	err     error
}

// Completion messages carry the session they were started for; results
// for a session that is no longer shown are dropped.

type commandDoneMsg struct {
	sessionID string
	command   string
	result    *tutorial.CommandResult
	err       error
}

type checkDoneMsg struct {
	sessionID string
	outcome   *tutorial.CheckOutcome
	err       error
}

type namespaceDoneMsg struct {
	sessionID string
	status    *tutorial.NamespaceStatus
	err       error
}

// tutorEventMsg wraps an event the tutor raised on its own, such as an
// auto-advance.
type tutorEventMsg struct{ ev tutorial.Event }

type eventsClosedMsg struct{}

// --- View state ---

type view int

const (
	viewList view = iota
	viewQuestion
)

type focus int

const (
	focusNone focus = iota
	focusCommand
	focusNamespace
)

// --- Model ---

// Model is the top-level Bubble Tea model.
type Model struct {
	tutor *tutorial.Tutor
	ctx   context.Context

	view  view
	focus focus

	// Question list
	questions []tutorial.QuestionSummary
	cursor    int

	// Open question
	session    *tutorial.Session
	steps      stepsPanel
	content    viewport.Model
	transcript transcriptPanel
	command    textinput.Model
	namespace  textinput.Model

	spinner   spinner.Model
	loading   bool
	executing bool
	checking  bool
	verifying bool

	status    string
	statusErr bool

	openID  string
	compact bool

	width  int
	height int
}

// Config holds the parameters needed to launch the TUI.
type Config struct {
	Tutor *tutorial.Tutor
	// QuestionID, when set, is opened immediately.
	QuestionID string
	Compact    bool
}

// NewModel builds the model without starting a program.
func NewModel(ctx context.Context, cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	cmd := textinput.New()
	cmd.Prompt = "$ "
	cmd.Placeholder = "type a command"
	cmd.CharLimit = 1024

	ns := textinput.New()
	ns.Prompt = "namespace: "
	ns.Placeholder = "my-namespace"
	ns.CharLimit = 63

	return Model{
		tutor:     cfg.Tutor,
		ctx:       ctx,
		content:   viewport.New(40, 10),
		command:   cmd,
		namespace: ns,
		spinner:   sp,
		openID:    cfg.QuestionID,
		compact:   cfg.Compact,
		loading:   true,
	}
}

// Run starts the TUI and blocks until the learner quits. The open session
// is closed on the way out.
func Run(ctx context.Context, cfg Config) error {
	m := NewModel(ctx, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	cfg.Tutor.Close()
	cfg.Tutor.Wait()
	return err
}

// Init starts the spinner, listens for tutor events and loads the list
// (or opens the requested question).
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.listenForEvents(), m.loadQuestions()}
	if m.openID != "" {
		cmds = append(cmds, m.openQuestion(m.openID))
	}
	return tea.Batch(cmds...)
}

// --- Commands ---

func (m Model) listenForEvents() tea.Cmd {
	events := m.tutor.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return tutorEventMsg{ev: ev}
	}
}

func (m Model) loadQuestions() tea.Cmd {
	return func() tea.Msg {
		list, err := m.tutor.Questions(m.ctx)
		return questionsMsg{list: list, err: err}
	}
}

func (m Model) openQuestion(id string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.tutor.Open(m.ctx, id)
		return openedMsg{session: s, err: err}
	}
}

func (m Model) runCommand(text string) tea.Cmd {
	id := m.sessionID()
	return func() tea.Msg {
		res, err := m.tutor.Execute(m.ctx, text)
		return commandDoneMsg{sessionID: id, command: text, result: res, err: err}
	}
}

func (m Model) runCheck() tea.Cmd {
	id := m.sessionID()
	return func() tea.Msg {
		out, err := m.tutor.Check(m.ctx)
		return checkDoneMsg{sessionID: id, outcome: out, err: err}
	}
}

func (m Model) verifyNamespace(label string) tea.Cmd {
	id := m.sessionID()
	return func() tea.Msg {
		st, err := m.tutor.VerifyNamespace(m.ctx, label)
		return namespaceDoneMsg{sessionID: id, status: st, err: err}
	}
}

func (m Model) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

// current reports whether id is the session on screen.
func (m Model) current(id string) bool {
	return m.sessionID() == id
}

// --- Update ---

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width < 80 {
			m.compact = true
		}
		m.layoutPanels()
		m.refreshContent()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.transcript.Update(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case questionsMsg:
		m.loading = false
		if msg.err != nil {
			m.setStatus("Failed to load questions: "+msg.err.Error(), true)
			break
		}
		m.questions = msg.list
		if m.cursor >= len(m.questions) {
			m.cursor = max(len(m.questions)-1, 0)
		}

	case openedMsg:
		m.loading = false
		if msg.err != nil {
			m.setStatus(openError(msg.err), true)
			m.view = viewList
			break
		}
		m.enterQuestion(msg.session)

	case commandDoneMsg:
		if !m.current(msg.sessionID) {
			break
		}
		m.executing = false
		switch {
		case msg.err != nil:
			m.transcript.AppendNote("$ "+msg.command, commandStyle)
			m.transcript.AppendNote(msg.err.Error(), errorStyle)
		default:
			m.transcript.AppendCommand(msg.command, msg.result)
		}

	case checkDoneMsg:
		if !m.current(msg.sessionID) {
			break
		}
		m.checking = false
		m.handleCheck(msg)

	case namespaceDoneMsg:
		if !m.current(msg.sessionID) {
			break
		}
		m.verifying = false
		m.handleNamespace(msg)

	case tutorEventMsg:
		m.handleEvent(msg.ev)
		cmds = append(cmds, m.listenForEvents())

	case eventsClosedMsg:
		// No more events; nothing to re-arm.
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func openError(err error) string {
	var ce *tutorial.CatalogError
	var se *tutorial.SessionError
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("Could not load question %s: %v", ce.QuestionID, ce.Err)
	case errors.As(err, &se):
		return fmt.Sprintf("Could not start a session: %v", se.Err)
	}
	return err.Error()
}

// enterQuestion switches to the question view for s.
func (m *Model) enterQuestion(s *tutorial.Session) {
	m.session = s
	m.view = viewQuestion
	m.focus = focusNone
	m.executing, m.checking, m.verifying = false, false, false
	m.steps.SetQuestion(s.Question)
	m.steps.Sync(s.Progress)
	m.transcript.Reset()
	m.namespace.SetValue("")
	m.command.SetValue("")
	m.setStatus("", false)
	if err := s.BootstrapErr(); err != nil {
		m.setStatus("Session setup failed: "+err.Error(), true)
		var be *tutorial.BootstrapError
		if errors.As(err, &be) && be.Output != "" {
			m.transcript.AppendNote(be.Output, errorStyle)
		}
	}
	m.layoutPanels()
	m.refreshContent()
}

// leaveQuestion returns to the list and closes the session.
func (m *Model) leaveQuestion() {
	m.tutor.Close()
	m.session = nil
	m.view = viewList
	m.focus = focusNone
	m.executing, m.checking, m.verifying = false, false, false
	m.steps.Clear()
	m.command.Blur()
	m.namespace.Blur()
	m.setStatus("", false)
}

func (m *Model) handleCheck(msg checkDoneMsg) {
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, tutorial.ErrCheckInProgress):
			m.setStatus("A check is already running.", false)
		default:
			m.setStatus("Check failed: "+msg.err.Error(), true)
		}
		return
	}
	out := msg.outcome
	if !m.current(out.SessionID) {
		return
	}
	n := tutorial.StepNumber(out.Index)
	if out.Passed {
		text := fmt.Sprintf("Step %d passed.", n)
		if out.AdvanceScheduled {
			text += " Moving on…"
		} else if m.session != nil && m.session.Progress.IsLast(out.Index) {
			text += " Question complete."
		}
		m.setStatus(text, false)
	} else {
		m.setStatus(fmt.Sprintf("Step %d not complete yet.", n), true)
	}
	if strings.TrimSpace(out.Output) != "" {
		style := failedStyle
		if out.Passed {
			style = passedStyle
		}
		m.transcript.AppendNote(fmt.Sprintf("[check step %d] %s", n, out.Output), style)
	}
	m.sync()
}

func (m *Model) handleNamespace(msg namespaceDoneMsg) {
	if msg.err != nil {
		m.setStatus("Namespace: "+msg.err.Error(), true)
		return
	}
	st := msg.status
	if st.Verified {
		m.setStatus(fmt.Sprintf("Namespace %s verified.", st.Asserted), false)
		return
	}
	switch {
	case st.Err != nil:
		m.setStatus("Could not read the current namespace: "+st.Err.Error(), true)
	case st.Actual == "":
		m.setStatus(fmt.Sprintf("Namespace %s is not the current project.", st.Asserted), true)
	default:
		m.setStatus(fmt.Sprintf("Current project is %s, not %s.", st.Actual, st.Asserted), true)
	}
	if len(st.Remediation) > 0 {
		m.transcript.AppendNote("Try:\n  "+strings.Join(st.Remediation, "\n  "), runningStyle)
	}
}

func (m *Model) handleEvent(ev tutorial.Event) {
	if m.session == nil || ev.SessionID != m.session.ID {
		return
	}
	if ev.Kind == tutorial.EventAdvanced {
		m.setStatus(fmt.Sprintf("Now on step %d.", tutorial.StepNumber(ev.Index)), false)
		m.sync()
	}
}

// sync redraws everything derived from progress.
func (m *Model) sync() {
	if m.session == nil {
		return
	}
	m.steps.Sync(m.session.Progress)
	m.refreshContent()
}

func (m *Model) refreshContent() {
	if m.session == nil {
		return
	}
	i := m.session.Progress.Current()
	md := m.session.Question.Steps[i].Content
	m.content.SetContent(renderMarkdown(md, m.content.Width))
	m.content.GotoTop()
}

// --- Keys ---

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.focus {
	case focusCommand:
		return m.handleCommandKey(msg)
	case focusNamespace:
		return m.handleNamespaceKey(msg)
	}

	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.view == viewList {
		return m.handleListKey(msg)
	}
	return m.handleQuestionKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.questions)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Refresh):
		m.loading = true
		return m, m.loadQuestions()
	case key.Matches(msg, keys.Open):
		if len(m.questions) == 0 || m.loading {
			return m, nil
		}
		m.loading = true
		m.setStatus("Opening "+m.questions[m.cursor].ID+"…", false)
		return m, m.openQuestion(m.questions[m.cursor].ID)
	}
	return m, nil
}

func (m Model) handleQuestionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.session.Progress

	switch {
	case key.Matches(msg, keys.Back):
		m.leaveQuestion()
		return m, nil

	case key.Matches(msg, keys.Command):
		m.focus = focusCommand
		return m, m.command.Focus()

	case key.Matches(msg, keys.Namespace):
		if p.Current() != 0 {
			m.setStatus("The namespace is set on the first step.", false)
			return m, nil
		}
		m.focus = focusNamespace
		m.namespace.SetValue(m.session.Namespace())
		return m, m.namespace.Focus()

	case key.Matches(msg, keys.Check):
		if m.checking {
			return m, nil
		}
		m.checking = true
		m.setStatus(fmt.Sprintf("Checking step %d…", tutorial.StepNumber(p.Current())), false)
		return m, m.runCheck()

	case key.Matches(msg, keys.Prev):
		if err := m.tutor.Previous(); err != nil {
			m.setStatus("Already at the first step.", false)
		}
		m.sync()

	case key.Matches(msg, keys.Next):
		if err := m.tutor.Next(); err != nil {
			m.setStatus("Already at the last step.", false)
		}
		m.sync()

	case key.Matches(msg, keys.PgUp):
		m.transcript.PageUp()

	case key.Matches(msg, keys.PgDown):
		m.transcript.PageDown()

	case key.Matches(msg, keys.Up):
		m.content.ScrollUp(1)

	case key.Matches(msg, keys.Down):
		m.content.ScrollDown(1)

	default:
		if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			n := int(s[0] - '0')
			if err := m.tutor.GoTo(n - 1); err != nil {
				m.setStatus(fmt.Sprintf("There is no step %d.", n), false)
			}
			m.sync()
		}
	}
	return m, nil
}

func (m Model) handleCommandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.focus = focusNone
		m.command.Blur()
		return m, nil
	case key.Matches(msg, keys.Submit):
		text := strings.TrimSpace(m.command.Value())
		if text == "" || m.executing {
			return m, nil
		}
		m.command.SetValue("")
		m.executing = true
		return m, m.runCommand(text)
	case key.Matches(msg, keys.PgUp):
		m.transcript.PageUp()
		return m, nil
	case key.Matches(msg, keys.PgDown):
		m.transcript.PageDown()
		return m, nil
	}
	var cmd tea.Cmd
	m.command, cmd = m.command.Update(msg)
	return m, cmd
}

func (m Model) handleNamespaceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.focus = focusNone
		m.namespace.Blur()
		return m, nil
	case key.Matches(msg, keys.Submit):
		label := strings.TrimSpace(m.namespace.Value())
		if label == "" {
			m.setStatus("Enter a namespace first.", true)
			return m, nil
		}
		m.focus = focusNone
		m.namespace.Blur()
		m.verifying = true
		m.setStatus("Verifying namespace "+label+"…", false)
		return m, m.verifyNamespace(label)
	}
	var cmd tea.Cmd
	m.namespace, cmd = m.namespace.Update(msg)
	return m, cmd
}

// --- Layout ---

// layoutPanels recalculates panel sizes from the terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// header(1) + indicator strip(1) + description(0-1) + main + input(1)
	// + status(1) + keys(1)
	mainH := m.height - 6
	if m.description() != "" {
		mainH--
	}
	mainH = max(mainH, 6)

	stepsW := 0
	if !m.compact {
		stepsW = min(max(m.width*25/100, 22), 40)
	}
	m.steps.width = stepsW

	rest := m.width - stepsW
	contentH := mainH * 55 / 100
	m.content.Width = max(rest-2, 10)
	m.content.Height = max(contentH, 3)
	m.transcript.SetSize(rest, mainH-contentH)
	m.command.Width = max(m.width-4, 10)
}

// View renders the complete TUI.
func (m Model) View() string {
	header := m.renderHeader()
	var body string
	if m.view == viewList {
		body = m.renderList()
	} else {
		body = m.renderQuestion()
	}
	return header + "\n" + body + "\n" + m.renderStatus() + "\n" +
		keyBarStyle.Render(keyBarText(m.view, m.focus, m.session != nil && m.session.Progress.Current() == 0))
}

func (m Model) renderHeader() string {
	left := headerStyle.Render("steplab")
	if m.session != nil {
		left += " " + badgeStyle.Render(m.session.Question.ID)
		if m.session.Question.Title != "" {
			left += "  " + m.session.Question.Title
		}
	}
	var right string
	switch {
	case m.loading, m.executing, m.checking, m.verifying:
		right = m.spinner.View()
	case m.session != nil && m.session.Namespace() != "":
		right = labelStyle.Render("ns ") + m.session.Namespace()
	}
	pad := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-1, 1)
	return left + strings.Repeat(" ", pad) + right
}

func (m Model) renderList() string {
	if m.loading && len(m.questions) == 0 {
		return "  " + m.spinner.View() + " loading questions…"
	}
	if len(m.questions) == 0 {
		return "  No questions available."
	}
	var b strings.Builder
	b.WriteString(panelTitle.Render("Questions") + "\n")
	for i, q := range m.questions {
		title := q.Title
		if title == "" {
			title = q.ID
		}
		line := "  " + listItem.Render(title)
		if i == m.cursor {
			line = stepActive.Render(GlyphCursor) + " " + listSelected.Render(title)
		}
		if q.Description != "" {
			line += "  " + listDesc.Render(q.Description)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderQuestion() string {
	p := m.session.Progress
	strip := fmt.Sprintf(" %s  %s", m.steps.Dots(),
		keyDescStyle.Render(fmt.Sprintf("step %d of %d", tutorial.StepNumber(p.Current()), p.Total())))

	right := lipgloss.JoinVertical(lipgloss.Left,
		panelBorder.Width(max(m.content.Width, 1)).Render(m.content.View()),
		m.transcript.View(),
	)
	main := right
	if m.steps.width > 0 {
		list := lipgloss.NewStyle().Width(m.steps.width).Render(m.steps.View())
		main = lipgloss.JoinHorizontal(lipgloss.Top, list, right)
	}

	input := m.command.View()
	if m.focus == focusNamespace {
		input = m.namespace.View()
	}
	if desc := m.description(); desc != "" {
		if m.width > 2 {
			desc = runewidth.Truncate(desc, m.width-2, "…")
		}
		strip += "\n " + listDesc.Render(desc)
	}
	return strip + "\n" + main + "\n" + input
}

// description is the open question's description on one line.
func (m Model) description() string {
	if m.session == nil {
		return ""
	}
	return strings.Join(strings.Fields(m.session.Question.Description), " ")
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return " " + errorStyle.Render(m.status)
	}
	return " " + runningStyle.Render(m.status)
}
