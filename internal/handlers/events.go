package handlers

import (
	"context"
	"encoding/json"

	"paypadm/core/pkg/kafka"
)

// HandleMonetizationEvent consumes one event from the monetization topic and
// fans it out to this replica's websocket clients. Registered as the topic
// handler on the Kafka consumer.
func (h *PaymasterHandlers) HandleMonetizationEvent(ctx context.Context, msg kafka.Message) error {
	var event kafka.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Undecodable events are skipped, not retried: redelivery cannot fix
		// a malformed payload.
		h.logger.WithError(err).WithField("offset", msg.Offset).Warn("Dropping undecodable event")
		if h.metrics != nil {
			h.metrics.KafkaMessages.WithLabelValues(msg.Topic, "consume", "undecodable").Inc()
		}
		return nil
	}

	if h.metrics != nil {
		h.metrics.KafkaMessages.WithLabelValues(msg.Topic, "consume", "ok").Inc()
	}

	switch event.Type {
	case kafka.EventMessageCreated:
		h.hub.BroadcastToConversation(event.ConversationID, "message_created", event.Data)

	case kafka.EventConversationCreated:
		h.hub.BroadcastToConversation(event.ConversationID, "conversation_created", event.Data)

	case kafka.EventChargeApplied:
		// Charges have no conversation audience; both parties get a receipt.
		for _, field := range []string{"payer_id", "payee_id"} {
			if userID, ok := event.Data[field].(string); ok {
				h.hub.BroadcastToUser(userID, "charge_applied", event.Data)
			}
		}

	default:
		// Forward-compatible: newer producers may emit types this replica
		// does not know yet. Skip rather than block the partition.
		h.logger.WithField("event_type", event.Type).Debug("Ignoring unknown event type")
	}

	return nil
}
