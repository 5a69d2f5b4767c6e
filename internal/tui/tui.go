// Package tui provides the Bubble Tea terminal interface for the storefront
// assistant: a scrollable transcript, a streaming reply view, attachment
// management and backward history paging.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/mercantile/chatkit/internal/chat"
	"github.com/mercantile/chatkit/internal/log"
	"github.com/mercantile/chatkit/internal/upload"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Request sent, first chunk not yet arrived
	StateStreaming              // Reply streaming in
)

// maxHistory bounds the input history to prevent unbounded growth.
const maxHistory = 100

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Two separator lines (above and below input)
	helpLines      = 1 // Help bar height
	promptLines    = 1 // Prompt prefix line
	minViewport    = 3 // Minimum viewport height
)

// Deps are the wired dependencies of the interface.
type Deps struct {
	Session *chat.Session
	Pager   *chat.HistoryPager
	Uploads *upload.Coordinator

	// Changes delivers coalesced change notifications from the session and
	// the upload coordinator. Build it with NewChangeNotifier and hand the
	// ping function to both OnChange hooks.
	Changes <-chan struct{}

	Logger log.Logger
}

// NewChangeNotifier returns a coalesced notification channel and the ping
// function feeding it. Ping never blocks: while a redraw is already queued,
// further pings fold into it.
func NewChangeNotifier() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	ping := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return ch, ping
}

// Model is the Bubble Tea model for the assistant terminal interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time
	status    string // transient status line, cleared on the next submit

	// Output
	spinner spinner.Model
	viewBuf strings.Builder // Reusable buffer for View() to reduce allocations

	// Scrollable transcript viewport
	viewport       viewport.Model
	loadingHistory bool

	// Help bar for keyboard shortcuts
	help help.Model
	keys keyMap

	// Stream management. No sync.WaitGroup: Bubble Tea's event loop
	// provides synchronization, the session owns the stream goroutine.
	streamCancel context.CancelFunc

	// Dependencies (direct, no interface)
	session *chat.Session
	pager   *chat.HistoryPager
	uploads *upload.Coordinator
	changes <-chan struct{}
	logger  log.Logger

	ctx       context.Context
	ctxCancel context.CancelFunc // For canceling all operations on exit

	// Dimensions
	width  int
	height int

	// Styles
	styles Styles
}

// New creates a Model for chat interaction.
// Returns error if required dependencies are nil.
//
// IMPORTANT: ctx MUST be the same context passed to tea.WithContext()
// to ensure consistent cancellation behavior.
func New(ctx context.Context, deps Deps) (*Model, error) {
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	if deps.Session == nil {
		return nil, errors.New("tui.New: session is required")
	}
	if deps.Pager == nil {
		return nil, errors.New("tui.New: pager is required")
	}
	if deps.Uploads == nil {
		return nil, errors.New("tui.New: uploads is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	// Create cancellable context for cleanup on exit
	ctx, cancel := context.WithCancel(ctx)

	// Create textarea for multi-line input
	// Enter submits, Shift+Enter adds newline (default behavior)
	ta := textarea.New()
	ta.Placeholder = "Ask about products, orders, returns..."
	ta.SetHeight(1)  // Single line by default
	ta.SetWidth(120) // Wide enough for long text, updated on WindowSizeMsg
	ta.MaxWidth = 0  // No max width limit
	ta.ShowLineNumbers = false

	// Clean, minimal styling: no background colors, just simple text
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Create viewport for the scrollable transcript.
	// Disable built-in keyboard handling; keys are routed explicitly in
	// handleKey to avoid conflicts with textarea/history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{} // Disable default key bindings

	h := help.New()

	return &Model{
		session:   deps.Session,
		pager:     deps.Pager,
		uploads:   deps.Uploads,
		changes:   deps.Changes,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      h,
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		width:     80, // Default width until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
		listenForChanges(m.changes),
	)
}

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Calculate viewport height: total - input - separators - help
		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines + m.attachmentLines()
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		m.help.SetWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case changedMsg:
		// The session or the upload coordinator mutated; mirror it.
		if m.state == StateThinking && m.session.State() == chat.StateStreaming {
			m.state = StateStreaming
		}
		m.rebuildViewportContent()
		if m.state == StateThinking || m.state == StateStreaming {
			m.viewport.GotoBottom()
		}
		return m, listenForChanges(m.changes)

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.state = StateThinking
		m.uploads.Clear() // attachments now belong to the sent message
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, tea.Batch(m.spinner.Tick, m.awaitStream())

	case streamFinishedMsg:
		m.state = StateInput
		m.streamCancel = nil

		switch {
		case msg.err != nil:
			m.status = m.styles.Error.Render("Error: " + msg.err.Error())
		case msg.state == chat.StateCancelled:
			m.status = m.styles.System.Render("(Canceled)")
		default:
			m.status = ""
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		// Re-focus textarea after the reply settles
		return m, m.input.Focus()

	case historyLoadedMsg:
		return m.handleHistoryLoaded(msg)

	case attachResultMsg:
		if msg.err != nil {
			m.status = m.styles.Error.Render(msg.err.Error())
		} else {
			m.status = ""
		}
		m.rebuildViewportContent()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleHistoryLoaded folds an older page into the transcript while keeping
// the content the user was looking at anchored in place.
func (m *Model) handleHistoryLoaded(msg historyLoadedMsg) (tea.Model, tea.Cmd) {
	m.loadingHistory = false

	if msg.err != nil {
		// Throttle and in-flight refusals are expected during fast
		// scrolling and not worth a status line.
		if !errors.Is(msg.err, chat.ErrThrottled) && !errors.Is(msg.err, chat.ErrLoadInFlight) {
			m.status = m.styles.Error.Render(msg.err.Error())
			m.rebuildViewportContent()
		}
		return m, nil
	}
	if msg.info.AnchorDelta == 0 {
		return m, nil
	}

	// Prepended lines push everything down; shift the offset by exactly the
	// growth so the previously visible lines stay where they were.
	before := m.viewport.TotalLineCount()
	m.rebuildViewportContent()
	grown := m.viewport.TotalLineCount() - before
	if grown > 0 {
		m.viewport.SetYOffset(m.viewport.YOffset() + grown)
	}
	return m, nil
}

// View implements tea.Model.
// Uses AltScreen with viewport for the scrollable transcript.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	// Viewport (scrollable transcript)
	_, _ = m.viewBuf.WriteString(m.viewport.View())
	_, _ = m.viewBuf.WriteString("\n")

	// Attachment bar (only when files are attached)
	for _, line := range m.attachmentBar() {
		_, _ = m.viewBuf.WriteString(line)
		_, _ = m.viewBuf.WriteString("\n")
	}

	// Separator line above input
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// Input prompt - always visible, users can type while a reply streams
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")

	// Separator line below input
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// Help bar (keyboard shortcuts)
	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from history,
// live transcript and state. Called when any of them changes.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.RenderBanner())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.styles.RenderWelcomeTips())
	_, _ = b.WriteString("\n")

	if m.pager.HasMore() {
		_, _ = b.WriteString(m.styles.System.Render("── PgUp at the top loads older messages ──"))
		_, _ = b.WriteString("\n\n")
	}

	// Older pages first, then the live conversation.
	for _, msg := range m.pager.Messages() {
		m.renderMessage(&b, msg)
	}
	for _, msg := range m.session.Messages() {
		m.renderMessage(&b, msg)
	}

	// Thinking indicator before the first chunk arrives
	if m.state == StateThinking {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Thinking...\n\n")
	}

	if m.status != "" {
		_, _ = b.WriteString(m.status)
		_, _ = b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
}

// renderMessage writes one transcript entry.
func (m *Model) renderMessage(b *strings.Builder, msg chat.Message) {
	switch msg.Role {
	case chat.RoleUser:
		_, _ = b.WriteString(m.styles.User.Render("You> "))
		_, _ = b.WriteString(msg.Content)
		for _, att := range msg.Attachments {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.styles.Attachment.Render("  📎 " + att.FileName))
		}
	case chat.RoleAssistant:
		if msg.Content == "" && len(msg.Artifacts) == 0 && msg.Pending {
			return // nothing arrived yet, the spinner covers it
		}
		_, _ = b.WriteString(m.styles.Assistant.Render("Shop> "))
		_, _ = b.WriteString(msg.Content)
		for _, a := range msg.Artifacts {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.renderArtifact(a))
		}
	}
	_, _ = b.WriteString("\n\n")
}

// attachmentBar renders one line per pending attachment, progress included.
func (m *Model) attachmentBar() []string {
	tasks := m.uploads.Tasks()
	if len(tasks) == 0 {
		return nil
	}

	lines := make([]string, 0, len(tasks))
	for i, tk := range tasks {
		var suffix string
		switch tk.Status {
		case upload.StatusPending:
			suffix = "waiting"
		case upload.StatusUploading:
			suffix = fmt.Sprintf("%d%%", tk.Progress)
		case upload.StatusUploaded:
			suffix = "ready"
		case upload.StatusError:
			suffix = "failed: " + tk.Err
		}
		line := fmt.Sprintf("  [%d] %s (%s)", i+1, tk.FileName, suffix)
		if tk.Status == upload.StatusError {
			lines = append(lines, m.styles.Error.Render(line))
		} else {
			lines = append(lines, m.styles.Attachment.Render(line))
		}
	}
	return lines
}

// attachmentLines reports the height the attachment bar currently occupies.
func (m *Model) attachmentLines() int {
	return len(m.uploads.Tasks())
}

// renderSeparator returns a horizontal line separator.
func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80 // Default width
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}
