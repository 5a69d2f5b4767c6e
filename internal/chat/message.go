// Package chat owns the conversational state of the client: the ordered
// message transcript, the lifecycle of an in-flight assistant reply, and
// backward paging through persisted history.
package chat

import (
	"slices"
	"time"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/artifact"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the transcript.
//
// Local messages carry a generated ID; messages loaded from history keep the
// server-assigned one. An assistant reply has Pending set while its stream is
// still open; its Content grows by appending chunks in arrival order.
type Message struct {
	ID          string
	Role        Role
	Content     string
	CreatedAt   time.Time
	Attachments []api.FileDescriptor
	Artifacts   []artifact.Artifact
	Pending     bool
}

// clone returns a deep enough copy for a caller-owned snapshot.
func (m *Message) clone() Message {
	out := *m
	out.Attachments = slices.Clone(m.Attachments)
	out.Artifacts = slices.Clone(m.Artifacts)
	return out
}

// fromHistory converts a persisted history record into a transcript message.
func fromHistory(h api.HistoryMessage) Message {
	return Message{
		ID:          h.ID,
		Role:        roleFrom(h.Role),
		Content:     h.Content,
		CreatedAt:   h.CreatedAt,
		Attachments: slices.Clone(h.Attachments),
	}
}

func roleFrom(s string) Role {
	if s == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}
