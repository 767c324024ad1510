// Package driver renders a stepping session as a bubbletea terminal
// UI: source with the current line highlighted, the local/global env
// tables, the indexed store, and the frame stack. It never decides
// program semantics — it only calls tick/is_fixed_point and renders
// whatever state comes back.
package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"tickstep/internal/machine"
	"tickstep/internal/static"
	"tickstep/internal/trace"
)

type keyMap struct {
	Forward key.Binding
	Back    key.Binding
	Expand  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Forward: key.NewBinding(key.WithKeys("right", "n"), key.WithHelp("→/n", "step forward")),
	Back:    key.NewBinding(key.WithKeys("left", "p"), key.WithHelp("←/p", "step back")),
	Expand:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle closure detail")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	lineStyle    = lipgloss.NewStyle()
	currentStyle = lipgloss.NewStyle().Reverse(true).Bold(true)
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true)
)

// Model is the bubbletea model for a single stepping session: it owns
// the full history of states so far (so ← never re-derives a state
// tick can't recompute backward on its own) plus the static tables
// and source lines that never change across the run.
type Model struct {
	static  *static.Static
	src     []string
	history []*machine.State // history[0] is init_state; history[len-1] is current
	err     error            // set once tick returns absent; history stops growing

	sessionID uuid.UUID
	started   time.Time
	recorder  *trace.Recorder

	expandClosures bool
	store          viewport.Model
	width, height  int
}

func New(st *static.Static, source string, recorder *trace.Recorder) Model {
	initial := machine.InitState(st)
	sessionID := uuid.New()
	if recorder != nil {
		sessionID = recorder.SessionID()
	}
	m := Model{
		static:    st,
		src:       strings.Split(source, "\n"),
		history:   []*machine.State{initial},
		sessionID: sessionID,
		started:   time.Now(),
		recorder:  recorder,
		store:     viewport.New(0, 0),
	}
	m.store.SetContent(m.renderStoreDump(initial))
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) current() *machine.State { return m.history[len(m.history)-1] }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.store.Width = msg.Width - 4
		m.store.Height = msg.Height / 2
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.recorder != nil {
				m.recorder.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Expand):
			m.expandClosures = !m.expandClosures
			m.store.SetContent(m.renderStoreDump(m.current()))
			return m, nil
		case key.Matches(msg, keys.Back):
			if len(m.history) > 1 {
				m.history = m.history[:len(m.history)-1]
				m.err = nil
				m.store.SetContent(m.renderStoreDump(m.current()))
			}
			return m, nil
		case key.Matches(msg, keys.Forward):
			if m.err != nil {
				return m, nil
			}
			cur := m.current()
			if machine.IsFixedPoint(cur, m.static) {
				return m, nil
			}
			next, err := machine.Tick(cur, m.static)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.history = append(m.history, next)
			m.store.SetContent(m.renderStoreDump(next))
			if m.recorder != nil {
				m.recorder.Record(next.Lineno, len(next.Store), len(next.Stack))
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.store, cmd = m.store.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	cur := m.current()
	var b strings.Builder

	b.WriteString(paneStyle.Render(m.renderSource(cur)))
	b.WriteString("\n")
	b.WriteString(paneStyle.Render(m.renderEnvs(cur)))
	b.WriteString("\n")
	b.WriteString(paneStyle.Render("store (indexed by address):\n" + m.store.View()))
	b.WriteString("\n")
	b.WriteString(paneStyle.Render(m.renderStack(cur)))
	b.WriteString("\n")
	b.WriteString(m.renderStatus(cur))
	return b.String()
}

// renderStoreDump lists every store slot in address order, the way an
// "expand closures" toggle over a flat indexed store is described: a
// one-line summary per slot, or the captured env detail when toggled
// on and the slot holds a Closure.
func (m Model) renderStoreDump(cur *machine.State) string {
	var b strings.Builder
	for addr, v := range cur.Store {
		if m.expandClosures {
			if cl, ok := v.AsClosure(); ok {
				fmt.Fprintf(&b, "[%4d] <closure line %d, captures %v>\n", addr, cl.DefLine, cl.Env)
				continue
			}
		}
		fmt.Fprintf(&b, "[%4d] %s\n", addr, v.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSource(cur *machine.State) string {
	var b strings.Builder
	for i, line := range m.src {
		lineno := i + 1
		if lineno == cur.Lineno {
			fmt.Fprintf(&b, "%s\n", currentStyle.Render(fmt.Sprintf("%4d  %s", lineno, line)))
		} else {
			fmt.Fprintf(&b, "%s\n", lineStyle.Render(fmt.Sprintf("%4d  %s", lineno, line)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderEnvs(cur *machine.State) string {
	var b strings.Builder
	b.WriteString("global:\n")
	for name, addr := range cur.GlobalEnv {
		fmt.Fprintf(&b, "  %s -> [%d] %s\n", name, addr, m.describe(cur, addr))
	}
	if cur.LocalEnv != nil {
		b.WriteString("local:\n")
		for name, addr := range cur.LocalEnv {
			fmt.Fprintf(&b, "  %s -> [%d] %s\n", name, addr, m.describe(cur, addr))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) describe(cur *machine.State, addr int) string {
	if addr < 0 || addr >= len(cur.Store) {
		return "<out of range>"
	}
	v := cur.Store[addr]
	if !m.expandClosures {
		return v.String()
	}
	if cl, ok := v.AsClosure(); ok {
		return fmt.Sprintf("<closure line %d, captures %v>", cl.DefLine, cl.Env)
	}
	return v.String()
}

func (m Model) renderStack(cur *machine.State) string {
	if len(cur.Stack) == 0 {
		return "stack: (empty)"
	}
	var b strings.Builder
	b.WriteString("stack (top first):\n")
	for i := len(cur.Stack) - 1; i >= 0; i-- {
		switch f := cur.Stack[i].(type) {
		case machine.LexicalFrame:
			fmt.Fprintf(&b, "  lexical: return to line %d%s\n", f.ReturnLine, initTag(f.IsInit))
		case machine.ClassFrame:
			fmt.Fprintf(&b, "  class: body of line %d\n", f.ClassDefLine)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func initTag(isInit bool) string {
	if isInit {
		return " (__init__)"
	}
	return ""
}

func (m Model) renderStatus(cur *machine.State) string {
	status := fmt.Sprintf(
		"session %s · started %s · step %d · store %s slots · stack depth %d",
		m.sessionID.String()[:8],
		humanize.Time(m.started),
		len(m.history)-1,
		humanize.Comma(int64(len(cur.Store))),
		len(cur.Stack),
	)
	if m.err != nil {
		status = errorStyle.Render(m.err.Error()) + "\n" + status
	}
	return statusStyle.Render(status)
}
