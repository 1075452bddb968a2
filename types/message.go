package types

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolTag identifies the message protocol revision. Every message created
// by this runtime carries it so mixed-version meshes can reject envelopes they
// do not understand.
const ProtocolTag = "agenthub/v1"

// MessageKind classifies the intent of a message envelope.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
	KindEvent        MessageKind = "event"
	KindCommand      MessageKind = "command"
	KindQuery        MessageKind = "query"
	KindNotification MessageKind = "notification"
)

// Priority orders message handling when a recipient has a choice.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Message is the envelope exchanged between agents. It is created per
// invocation and treated as immutable after construction; the builder methods
// return a modified copy.
type Message struct {
	ID            string            `json:"id"`
	Kind          MessageKind       `json:"kind"`
	Sender        string            `json:"sender"`
	Recipient     string            `json:"recipient"`
	Capability    string            `json:"capability,omitempty"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Priority      Priority          `json:"priority"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Protocol      string            `json:"protocol"`
}

// NewMessage creates a message envelope with a generated ID, the current
// timestamp, normal priority and the runtime protocol tag.
func NewMessage(kind MessageKind, sender, recipient string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
		Protocol:  ProtocolTag,
	}
}

// NewRequest creates a request message targeting a named capability.
func NewRequest(sender, recipient, capability string, payload map[string]any) Message {
	m := NewMessage(KindRequest, sender, recipient)
	m.Capability = capability
	m.Payload = payload
	return m
}

// WithPriority sets the message priority.
func (m Message) WithPriority(p Priority) Message {
	m.Priority = p
	return m
}

// WithMetadata sets the message metadata.
func (m Message) WithMetadata(metadata map[string]string) Message {
	m.Metadata = metadata
	return m
}

// WithCorrelationID ties the message to an originating request.
func (m Message) WithCorrelationID(id string) Message {
	m.CorrelationID = id
	return m
}

// Correlation returns the ID a response to this message must carry: the
// explicit correlation ID when present, otherwise the message's own ID.
func (m Message) Correlation() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.ID
}
