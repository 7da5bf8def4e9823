package kafka

import (
	"time"
)

// TopicMonetizationEvents carries every event the paymaster service emits:
// message inserts, applied charges, conversation creations. Each service
// replica consumes the topic to feed its local websocket hub, and downstream
// analytics read the same stream.
const TopicMonetizationEvents = "monetization_events"

// Event types published to the monetization topic.
const (
	EventMessageCreated      = "message.created"
	EventChargeApplied       = "charge.applied"
	EventConversationCreated = "conversation.created"
)

// Event is the envelope for everything published by paymaster.
type Event struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	Source         string                 `json:"source"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	SchemaVersion  string                 `json:"schema_version"`
}

// EventHandler processes a decoded Event.
type EventHandler interface {
	HandleEvent(event Event) error
}
