package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// Slash command constants.
const (
	cmdHelp    = "/help"
	cmdClear   = "/clear"
	cmdAttach  = "/attach"
	cmdDetach  = "/detach"
	cmdHistory = "/history"
	cmdExit    = "/exit"
	cmdQuit    = "/quit"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll/older")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	// Check for Ctrl modifier
	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			cmd := m.cleanup()
			return m, cmd
		}
	}

	// Check special keys
	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput {
			// Enter without Shift = submit
			// Shift+Enter = newline (pass through to textarea)
			if k.Mod&tea.ModShift == 0 {
				return m.handleSubmit()
			}
		}

	case tea.KeyUp:
		// Up at first line navigates history, otherwise pass to textarea
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateHistory(-1)
		}

	case tea.KeyDown:
		// Down at last line navigates history, otherwise pass to textarea
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateHistory(1)
		}

	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			m.cancelStream()
			return m, nil
		}

	case tea.KeyPgUp:
		// PgUp while already at the top requests the next older page.
		if m.viewport.AtTop() && !m.loadingHistory && m.pager.HasMore() {
			m.loadingHistory = true
			return m, m.loadHistory()
		}
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Pass keys to textarea for typing - ALWAYS allow typing even during
	// streaming so the next message can be prepared while the reply arrives
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second = quit
	if now.Sub(m.lastCtrlC) < time.Second {
		cmd := m.cleanup()
		return m, cmd
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()
		return m, nil

	case StateThinking, StateStreaming:
		m.cancelStream()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}

	// Handle slash commands
	if strings.HasPrefix(query, "/") {
		return m.handleSlashCommand(query)
	}

	// Unfinished uploads block the send instead of being dropped silently.
	descs, err := m.uploads.Descriptors()
	if err != nil {
		m.status = m.styles.Error.Render(err.Error())
		m.rebuildViewportContent()
		return m, nil
	}

	// Add to history (enforce maxHistory cap)
	m.history = append(m.history, query)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = len(m.history)

	m.input.Reset()
	m.status = ""
	m.state = StateThinking

	return m, tea.Batch(
		m.spinner.Tick,
		m.startStream(query, descs),
	)
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(cmd)
	name, args := fields[0], fields[1:]

	switch name {
	case cmdHelp:
		m.status = m.styles.System.Render(
			"Commands: " + strings.Join([]string{cmdHelp, cmdClear, cmdAttach + " <path>", cmdDetach + " <n>", cmdHistory, cmdExit}, ", ") +
				"\nShortcuts:\n  Enter: send message\n  Shift+Enter: new line\n  Ctrl+C: cancel/clear\n  Ctrl+D: exit\n  Up/Down: history\n  PgUp/PgDn: scroll, PgUp at top loads older messages")
		m.rebuildViewportContent()

	case cmdClear:
		m.session.Clear()
		m.pager.Reset()
		m.uploads.Clear()
		m.state = StateInput
		m.status = ""
		m.rebuildViewportContent()

	case cmdAttach:
		if len(args) != 1 {
			m.status = m.styles.Error.Render("usage: " + cmdAttach + " <path>")
			m.rebuildViewportContent()
			break
		}
		m.input.Reset()
		return m, m.attachFile(args[0])

	case cmdDetach:
		m.detach(args)
		m.rebuildViewportContent()

	case cmdHistory:
		if m.loadingHistory || !m.pager.HasMore() {
			break
		}
		m.input.Reset()
		m.loadingHistory = true
		return m, m.loadHistory()

	case cmdExit, cmdQuit:
		cleanupCmd := m.cleanup()
		return m, cleanupCmd

	default:
		m.status = m.styles.Error.Render("Unknown command: " + name)
		m.rebuildViewportContent()
	}
	m.input.Reset()
	return m, nil
}

// detach removes one attachment by its 1-based position in the bar.
func (m *Model) detach(args []string) {
	tasks := m.uploads.Tasks()
	if len(args) != 1 || len(tasks) == 0 {
		m.status = m.styles.Error.Render("usage: " + cmdDetach + " <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(tasks) {
		m.status = m.styles.Error.Render(fmt.Sprintf("no attachment %q, pick 1-%d", args[0], len(tasks)))
		return
	}
	m.uploads.Remove(tasks[n-1].ID)
	m.status = ""
}

func (m *Model) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}

	m.historyIdx += delta

	if m.historyIdx < 0 {
		m.historyIdx = 0
	}
	if m.historyIdx > len(m.history) {
		m.historyIdx = len(m.history)
	}

	if m.historyIdx == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.historyIdx])
		// Move cursor to end of text
		m.input.CursorEnd()
	}

	return m, nil
}

// cancelStream aborts the in-flight reply. The session resolves the final
// state; streamFinishedMsg returns the TUI to input mode.
func (m *Model) cancelStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
}

// cleanup cancels any active work and returns the quit command.
func (m *Model) cleanup() tea.Cmd {
	// Cancel the main context first - this unwinds the session stream and
	// any uploads still in flight
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}
	m.cancelStream()

	return tea.Quit
}

// renderStatusBar returns state-appropriate keyboard shortcut help.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Cancel, m.keys.Quit, m.keys.ScrollUp,
		}
	case StateThinking, StateStreaming:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	}
	return m.help.ShortHelpView(bindings)
}
