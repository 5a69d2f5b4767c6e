package stream

import (
	"encoding/json"

	"github.com/mercantile/chatkit/internal/artifact"
)

// Kind discriminates classified stream events.
type Kind int

// Event kinds, exhaustive for classification.
const (
	// KindContent carries a text chunk for the open assistant message.
	KindContent Kind = iota

	// KindArtifact carries a typed side payload to merge into the message.
	KindArtifact

	// KindDone is an explicit completion marker.
	KindDone

	// KindUnknown is a structured payload the client does not recognize.
	// It is dropped rather than aborting the stream.
	KindUnknown
)

// Payload type discriminants on the wire.
const (
	typeMessageChunk = "message_chunk"
	typeArtifact     = "artifact"
	typeDone         = "done"
)

// Event is the tagged union produced by Classify.
type Event struct {
	Kind     Kind
	Content  string            // set for KindContent
	Artifact artifact.Artifact // set for KindArtifact
}

// envelope is the structured wire shape of a payload.
type envelope struct {
	Type      string             `json:"type"`
	Content   string             `json:"content"`
	Artifacts *artifact.Artifact `json:"artifacts"`
}

// Classify parses one payload string into an Event. It never fails:
//
//   - A payload that is not valid JSON is legacy plain text and becomes a
//     content chunk as-is, so naive payloads still render.
//   - Valid JSON that is not a recognized envelope (wrong shape, unknown or
//     missing type, empty artifact payload) classifies as KindUnknown, which
//     consumers treat as a no-op.
func Classify(payload string) Event {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		if json.Valid([]byte(payload)) {
			// Structurally valid JSON of the wrong shape (array, bare
			// string, ...) is an unrecognized frame, not legacy text.
			return Event{Kind: KindUnknown}
		}
		return Event{Kind: KindContent, Content: payload}
	}

	switch env.Type {
	case typeMessageChunk:
		return Event{Kind: KindContent, Content: env.Content}

	case typeArtifact:
		if env.Artifacts == nil || env.Artifacts.Empty() {
			return Event{Kind: KindUnknown}
		}
		return Event{Kind: KindArtifact, Artifact: *env.Artifacts}

	case typeDone:
		return Event{Kind: KindDone}

	case "":
		// Older payloads carry content without a type field.
		if env.Content != "" {
			return Event{Kind: KindContent, Content: env.Content}
		}
		return Event{Kind: KindUnknown}

	default:
		return Event{Kind: KindUnknown}
	}
}
