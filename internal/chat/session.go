package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/artifact"
	"github.com/mercantile/chatkit/internal/log"
	"github.com/mercantile/chatkit/internal/stream"
)

// Sentinel errors for Send. Check with errors.Is().
var (
	// ErrBusy indicates a send was attempted while a reply is still streaming.
	ErrBusy = errors.New("a reply is already in progress")

	// ErrEmptyMessage indicates a send with no text and no attachments.
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the lifecycle state of the session.
//
// Send moves the session through sending and streaming; the terminal states
// describe how the last reply ended and a new Send is allowed from any of
// them.
type State string

// Session states.
const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
	StateCancelled State = "cancelled"
)

// Busy reports whether a reply is currently being produced.
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}

// StreamOpener opens the server-sent event stream for one outgoing message.
// *api.Client satisfies this.
type StreamOpener interface {
	OpenStream(ctx context.Context, req api.SendRequest) (io.ReadCloser, error)
}

// Session holds one live conversation: the transcript, the single in-flight
// assistant reply, and the state machine around it.
//
// At most one reply streams at a time. A Send while busy is refused with
// ErrBusy rather than queued, so the visible transcript never interleaves two
// replies. All exported reads return copies; mutation happens under one lock.
type Session struct {
	opener   StreamOpener
	logger   log.Logger
	onChange func() // optional, invoked outside the lock after state changes

	mu        sync.Mutex
	state     State
	messages  []*Message
	assistant *Message // open reply, nil unless busy
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionOnChange registers a hook invoked after any transcript or state
// change. The hook runs outside the session lock and must not call back into
// mutating methods synchronously.
func WithSessionOnChange(fn func()) SessionOption {
	return func(s *Session) { s.onChange = fn }
}

// NewSession creates a Session.
//
// Parameters:
//   - opener: stream transport (required)
//   - logger: logger for debugging (nil = discard)
func NewSession(opener StreamOpener, logger log.Logger, opts ...SessionOption) (*Session, error) {
	if opener == nil {
		return nil, fmt.Errorf("chat.NewSession: opener is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Session{
		opener: opener,
		logger: logger,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send appends the user message to the transcript, opens the reply stream and
// returns a cancel function for it. The user message is appended optimistically
// before any network activity so the transcript updates without waiting on the
// server.
//
// The returned cancel is idempotent; calling it after the reply finished is a
// no-op. While a reply is in flight, further sends fail with ErrBusy.
func (s *Session) Send(ctx context.Context, text string, attachments []api.FileDescriptor) (context.CancelFunc, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state.Busy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	streamCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	user := &Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     text,
		CreatedAt:   now,
		Attachments: append([]api.FileDescriptor(nil), attachments...),
	}
	reply := &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: now,
		Pending:   true,
	}
	s.messages = append(s.messages, user, reply)
	s.assistant = reply
	s.state = StateSending
	s.lastErr = nil
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.logger.Debug("sending message", "attachments", len(attachments))
	s.notify()

	req := api.SendRequest{Message: text, FileMetadata: append([]api.FileDescriptor(nil), attachments...)}
	go s.run(streamCtx, cancel, req, done)
	return cancel, nil
}

// run drives one reply stream to a terminal state.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, req api.SendRequest, done chan struct{}) {
	defer close(done)
	defer cancel()

	body, err := s.opener.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(StateCancelled, nil)
			return
		}
		s.finish(StateErrored, fmt.Errorf("open stream: %w", err))
		return
	}
	defer body.Close()

	s.markStreaming()

	d := stream.NewDispatcher(stream.Handlers{
		OnContent:  s.appendContent,
		OnArtifact: s.mergeArtifact,
		OnComplete: func() { s.finish(StateCompleted, nil) },
		OnError:    func(err error) { s.finish(StateErrored, err) },
	}, s.logger)
	d.Run(ctx, body)

	// The dispatcher stays silent on cancellation; resolve it here.
	if ctx.Err() != nil {
		s.finish(StateCancelled, nil)
	}
}

// appendContent grows the open reply by one chunk.
func (s *Session) appendContent(text string) {
	s.mu.Lock()
	if s.assistant == nil {
		s.mu.Unlock()
		return
	}
	s.assistant.Content += text
	s.mu.Unlock()
	s.notify()
}

// mergeArtifact folds an incoming artifact into the open reply, merging
// same-typed payloads and de-duplicating their items.
func (s *Session) mergeArtifact(a artifact.Artifact) {
	s.mu.Lock()
	if s.assistant == nil {
		s.mu.Unlock()
		return
	}
	s.assistant.Artifacts = artifact.Merge(s.assistant.Artifacts, a)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) markStreaming() {
	s.mu.Lock()
	changed := s.state == StateSending
	if changed {
		s.state = StateStreaming
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// finish moves the session to a terminal state exactly once. Partial content
// accumulated before an error or cancellation stays in the transcript; a reply
// that produced nothing is dropped so the transcript does not end on an empty
// bubble.
func (s *Session) finish(st State, err error) {
	s.mu.Lock()
	if !s.state.Busy() {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.lastErr = err

	if a := s.assistant; a != nil {
		a.Pending = false
		a.Artifacts = artifact.Dedup(a.Artifacts)
		if st != StateCompleted && a.Content == "" && len(a.Artifacts) == 0 {
			for i := len(s.messages) - 1; i >= 0; i-- {
				if s.messages[i] == a {
					s.messages = append(s.messages[:i], s.messages[i+1:]...)
					break
				}
			}
		}
	}
	s.assistant = nil
	s.cancel = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("reply failed", "error", err)
	} else {
		s.logger.Debug("reply finished", "state", string(st))
	}
	s.notify()
}

// Messages returns a snapshot of the transcript in order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.clone())
	}
	return out
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the last reply, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Clear cancels any in-flight reply and empties the transcript.
func (s *Session) Clear() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.Wait()
	}

	s.mu.Lock()
	s.messages = nil
	s.assistant = nil
	s.state = StateIdle
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// Wait blocks until the current reply, if any, reaches a terminal state.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
