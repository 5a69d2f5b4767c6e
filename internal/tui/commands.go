package tui

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	tea "charm.land/bubbletea/v2"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/chat"
	"github.com/mercantile/chatkit/internal/upload"
)

// Bubble Tea message types.
type (
	// changedMsg signals that the session or the upload coordinator
	// mutated and the transcript needs a rebuild.
	changedMsg struct{}

	// streamStartedMsg carries the cancel handle for an accepted send.
	streamStartedMsg struct {
		cancel func()
	}

	// streamFinishedMsg reports how the reply ended.
	streamFinishedMsg struct {
		state chat.State
		err   error
	}

	// historyLoadedMsg reports the outcome of one backward page load.
	historyLoadedMsg struct {
		info chat.PrependInfo
		err  error
	}

	// attachResultMsg reports whether a file was admitted for upload.
	attachResultMsg struct {
		err error
	}
)

// listenForChanges waits for the next coalesced change notification.
// The command re-arms itself from Update on every changedMsg.
func listenForChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// startStream submits the message. A refused send (another reply in flight,
// empty input) surfaces as an immediate streamFinishedMsg.
func (m *Model) startStream(text string, attachments []api.FileDescriptor) tea.Cmd {
	return func() tea.Msg {
		cancel, err := m.session.Send(m.ctx, text, attachments)
		if err != nil {
			return streamFinishedMsg{state: m.session.State(), err: err}
		}
		return streamStartedMsg{cancel: cancel}
	}
}

// awaitStream blocks until the reply reaches a terminal state. The session
// owns the stream goroutine; this command only observes it.
func (m *Model) awaitStream() tea.Cmd {
	return func() tea.Msg {
		m.session.Wait()
		return streamFinishedMsg{state: m.session.State(), err: m.session.Err()}
	}
}

// loadHistory fetches the next older history page.
func (m *Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		info, err := m.pager.LoadMore(m.ctx)
		return historyLoadedMsg{info: info, err: err}
	}
}

// attachFile opens a local file and admits it for upload. The coordinator
// takes ownership of the handle and closes it when the upload finishes.
func (m *Model) attachFile(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return attachResultMsg{err: err}
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return attachResultMsg{err: err}
		}
		if info.IsDir() {
			_ = f.Close()
			return attachResultMsg{err: fmt.Errorf("%s is a directory", path)}
		}

		file := upload.File{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Size:        info.Size(),
			Reader:      f,
		}
		if err := m.uploads.Add(m.ctx, []upload.File{file}); err != nil {
			_ = f.Close()
			return attachResultMsg{err: err}
		}
		return attachResultMsg{}
	}
}
