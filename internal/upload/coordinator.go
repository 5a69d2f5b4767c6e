// Package upload manages the set of files attached to the next outgoing
// chat message: batch admission against count/size caps, independent
// concurrent uploads, and per-task progress tracking.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/log"
)

// Sentinel errors for batch admission and the send gate.
// Check with errors.Is(); the wrapped message carries the user-facing reason.
var (
	// ErrTooManyFiles indicates the batch would exceed the attachment count cap.
	ErrTooManyFiles = errors.New("too many attachments")

	// ErrTooLarge indicates the batch would exceed the cumulative size cap.
	ErrTooLarge = errors.New("attachments too large")

	// ErrUploadsPending indicates a send was attempted while uploads are
	// still pending or in flight.
	ErrUploadsPending = errors.New("attachments still uploading")
)

// Status is the lifecycle state of one upload task.
// Transitions: pending → uploading → (uploaded | error); terminal states are
// immutable.
type Status string

// Task statuses.
const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusError     Status = "error"
)

// File is an input file admitted for attachment. When Reader implements
// io.Closer it is closed once its upload finishes.
type File struct {
	Name        string
	ContentType string // optional; left to the backend to sniff when empty
	Size        int64
	Reader      io.Reader
}

// Task is a read-only snapshot of one upload's state.
type Task struct {
	ID         uuid.UUID
	FileName   string
	Size       int64
	Status     Status
	Progress   int // 0..100, monotonically non-decreasing
	Descriptor *api.FileDescriptor
	Err        string
}

// Uploader submits a single file and returns its descriptor.
// *api.Client satisfies this.
type Uploader interface {
	UploadFile(ctx context.Context, fileName, contentType string, size int64, r io.Reader, progress func(int)) (api.FileDescriptor, error)
}

// task is the internal mutable state behind a Task snapshot.
type task struct {
	id         uuid.UUID
	fileName   string
	size       int64
	status     Status
	progress   int
	descriptor *api.FileDescriptor
	errMsg     string
	cancel     context.CancelFunc
	removed    bool
}

// Coordinator owns the attachment list for the next outgoing message.
// It is the single writer of its task list; all exported reads return copies.
type Coordinator struct {
	uploader Uploader
	logger   log.Logger
	maxFiles int
	maxBytes int64
	onChange func() // optional, invoked outside the lock after state changes

	mu    sync.Mutex
	tasks []*task

	// eg tracks upload goroutines. A bare Group (no WithContext) on
	// purpose: one failed upload must not cancel its siblings.
	eg errgroup.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOnChange registers a hook invoked after any task state change.
// The hook runs outside the coordinator lock and must not call back into
// mutating methods synchronously.
func WithOnChange(fn func()) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// New creates a Coordinator.
//
// Parameters:
//   - uploader: upload transport (required)
//   - maxFiles: attachment count cap per message
//   - maxBytes: cumulative attachment size cap per message
//   - logger: logger for debugging (nil = discard)
func New(uploader Uploader, maxFiles int, maxBytes int64, logger log.Logger, opts ...Option) (*Coordinator, error) {
	if uploader == nil {
		return nil, fmt.Errorf("upload.New: uploader is required")
	}
	if maxFiles < 1 || maxBytes < 1 {
		return nil, fmt.Errorf("upload.New: caps must be positive (files=%d bytes=%d)", maxFiles, maxBytes)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Coordinator{
		uploader: uploader,
		logger:   logger,
		maxFiles: maxFiles,
		maxBytes: maxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Add admits a batch of files and starts their uploads concurrently.
//
// Admission is atomic: if the batch would exceed the count cap or the
// cumulative size cap (existing attachments included), the whole batch is
// rejected with a specific reason and no task is created. The check happens
// before any network call.
func (c *Coordinator) Add(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}

	c.mu.Lock()
	if len(c.tasks)+len(files) > c.maxFiles {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d attached + %d new exceeds the %d file limit",
			ErrTooManyFiles, len(c.tasks), len(files), c.maxFiles)
	}

	total := c.attachedBytesLocked()
	for _, f := range files {
		total += f.Size
	}
	if total > c.maxBytes {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d bytes total exceeds the %d byte limit",
			ErrTooLarge, total, c.maxBytes)
	}

	started := make([]*task, 0, len(files))
	for _, f := range files {
		taskCtx, cancel := context.WithCancel(ctx)
		tk := &task{
			id:       uuid.New(),
			fileName: f.Name,
			size:     f.Size,
			status:   StatusPending,
			cancel:   cancel,
		}
		c.tasks = append(c.tasks, tk)
		started = append(started, tk)

		file := f
		c.eg.Go(func() error { return c.run(taskCtx, tk, file) })
	}
	c.mu.Unlock()

	c.logger.Debug("admitted upload batch", "files", len(started), "total_bytes", total)
	c.notify()
	return nil
}

// run performs one upload. A failure is isolated to its task: siblings keep
// uploading and the conversation stream is unaffected.
func (c *Coordinator) run(ctx context.Context, tk *task, f File) error {
	defer tk.cancel()
	if closer, ok := f.Reader.(io.Closer); ok {
		defer closer.Close()
	}

	c.setStatus(tk, StatusUploading)

	desc, err := c.uploader.UploadFile(ctx, f.Name, f.ContentType, f.Size, f.Reader, func(pct int) {
		c.setProgress(tk, pct)
	})

	c.mu.Lock()
	if err != nil {
		removed := tk.removed
		tk.status = StatusError
		tk.errMsg = err.Error()
		c.mu.Unlock()
		if removed {
			// Canceled by removal or Clear; not a failure.
			return nil
		}
		c.logger.Warn("upload failed", "file_name", tk.fileName, "error", err)
		c.notify()
		return fmt.Errorf("upload %s: %w", tk.fileName, err)
	}
	tk.status = StatusUploaded
	tk.progress = 100
	tk.descriptor = &desc
	c.mu.Unlock()

	c.logger.Debug("upload finished", "file_name", tk.fileName, "file_id", desc.FileID)
	c.notify()
	return nil
}

// Remove drops a single task before send. An in-flight upload is canceled;
// sibling tasks and their progress are untouched. Returns false if the id is
// unknown.
func (c *Coordinator) Remove(id uuid.UUID) bool {
	c.mu.Lock()
	var found *task
	for i, tk := range c.tasks {
		if tk.id == id {
			found = tk
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			break
		}
	}
	if found != nil {
		found.removed = true
		found.cancel()
	}
	c.mu.Unlock()

	if found == nil {
		return false
	}
	c.notify()
	return true
}

// Clear discards every task, canceling any still in flight. Called after a
// successful send or an explicit discard.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	for _, tk := range c.tasks {
		tk.removed = true
		tk.cancel()
	}
	c.tasks = nil
	c.mu.Unlock()
	c.notify()
}

// Tasks returns a snapshot of all tasks in admission order.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Task, 0, len(c.tasks))
	for _, tk := range c.tasks {
		out = append(out, tk.snapshot())
	}
	return out
}

// Descriptors returns the finalized descriptors for a send.
//
// It refuses with ErrUploadsPending while any task is pending or uploading so
// unfinished attachments are never silently dropped. Tasks in the error state
// are excluded; the caller decides whether to remove or retry them.
func (c *Coordinator) Descriptors() ([]api.FileDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []api.FileDescriptor
	for _, tk := range c.tasks {
		switch tk.status {
		case StatusPending, StatusUploading:
			return nil, fmt.Errorf("%w: %s is not finished", ErrUploadsPending, tk.fileName)
		case StatusUploaded:
			out = append(out, *tk.descriptor)
		case StatusError:
			// Excluded from the send; surfaced via Tasks().
		}
	}
	return out, nil
}

// Wait blocks until all started uploads have finished or been canceled and
// returns the first upload failure, if any. Task state is authoritative
// either way; the error is a convenience for CLI flows and tests.
func (c *Coordinator) Wait() error {
	return c.eg.Wait()
}

// setStatus moves a task to a new non-terminal status.
func (c *Coordinator) setStatus(tk *task, s Status) {
	c.mu.Lock()
	changed := !tk.removed && tk.status != s
	if changed {
		tk.status = s
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// setProgress records monotonically non-decreasing progress for one task.
func (c *Coordinator) setProgress(tk *task, pct int) {
	c.mu.Lock()
	changed := !tk.removed && pct > tk.progress && tk.status == StatusUploading
	if changed {
		tk.progress = pct
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// attachedBytesLocked sums the sizes of all current tasks. Caller holds mu.
func (c *Coordinator) attachedBytesLocked() int64 {
	var total int64
	for _, tk := range c.tasks {
		total += tk.size
	}
	return total
}

func (c *Coordinator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (t *task) snapshot() Task {
	out := Task{
		ID:       t.id,
		FileName: t.fileName,
		Size:     t.size,
		Status:   t.status,
		Progress: t.progress,
		Err:      t.errMsg,
	}
	if t.descriptor != nil {
		d := *t.descriptor
		out.Descriptor = &d
	}
	return out
}
