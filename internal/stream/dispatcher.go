package stream

import (
	"context"
	"io"

	"github.com/mercantile/chatkit/internal/artifact"
	"github.com/mercantile/chatkit/internal/log"
)

// Handlers receives classified stream events. Nil callbacks are allowed and
// skipped. Content callbacks fire in strict arrival order.
type Handlers struct {
	OnContent  func(text string)
	OnArtifact func(a artifact.Artifact)
	OnComplete func()
	OnError    func(err error)
}

// Dispatcher drives one stream: it decodes frames, classifies payloads, and
// invokes handlers, guaranteeing that exactly one of OnComplete/OnError fires
// per stream, and that neither fires after caller-initiated cancellation.
//
// A Dispatcher is single-use and is not safe for concurrent use; Run is meant
// to be called once from one goroutine.
type Dispatcher struct {
	handlers Handlers
	logger   log.Logger
	terminal bool
}

// NewDispatcher creates a Dispatcher for one stream.
func NewDispatcher(h Handlers, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{handlers: h, logger: logger}
}

// Run decodes the stream body until it ends, firing handlers along the way.
//
// Terminal behavior:
//   - [DONE] sentinel, explicit completion marker, or clean transport close:
//     OnComplete, exactly once (completion is synthesized when the transport
//     closes without a terminator).
//   - Transport/read failure: OnError, exactly once.
//   - Caller cancellation: silent, no further callbacks at all.
func (d *Dispatcher) Run(ctx context.Context, body io.Reader) {
	err := Decode(ctx, body, d.dispatch)

	if ctx.Err() != nil {
		// Cancellation is not an error and must not reach OnError.
		return
	}

	if err != nil {
		d.fail(err)
		return
	}
	d.complete()
}

// dispatch routes one classified payload. Events arriving after the terminal
// callback are dropped so a sealed message is never mutated.
func (d *Dispatcher) dispatch(payload string) {
	if d.terminal {
		return
	}

	event := Classify(payload)
	switch event.Kind {
	case KindContent:
		if event.Content == "" {
			return
		}
		if d.handlers.OnContent != nil {
			d.handlers.OnContent(event.Content)
		}

	case KindArtifact:
		if d.handlers.OnArtifact != nil {
			d.handlers.OnArtifact(event.Artifact)
		}

	case KindDone:
		d.complete()

	case KindUnknown:
		// Dropping one bad frame beats aborting the whole turn.
		d.logger.Debug("dropped unrecognized stream frame", "payload_len", len(payload))
	}
}

func (d *Dispatcher) complete() {
	if d.terminal {
		return
	}
	d.terminal = true
	if d.handlers.OnComplete != nil {
		d.handlers.OnComplete()
	}
}

func (d *Dispatcher) fail(err error) {
	if d.terminal {
		return
	}
	d.terminal = true
	if d.handlers.OnError != nil {
		d.handlers.OnError(err)
	}
}
