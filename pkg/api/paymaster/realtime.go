package paymaster

import "time"

// Subscription actions on the websocket stream.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Event types pushed on the websocket stream.
const (
	EventTypeMessageCreated      = "message_created"
	EventTypeConversationCreated = "conversation_created"
	EventTypeChargeApplied       = "charge_applied"
	EventTypeSubscriptionAck     = "subscription_confirmed"
	EventTypeUnsubscriptionAck   = "unsubscription_confirmed"
)

// Event is a realtime message pushed to websocket clients.
type Event struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	UserID         *string                `json:"user_id,omitempty"`
	Data           map[string]interface{} `json:"data"`
	Timestamp      time.Time              `json:"timestamp"`
}

// SubscriptionMessage is a subscribe/unsubscribe request sent by a client.
type SubscriptionMessage struct {
	Action        string   `json:"action"`
	Conversations []string `json:"conversations"`
	UserID        *string  `json:"user_id,omitempty"`
}
